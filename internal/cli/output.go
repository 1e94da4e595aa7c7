// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/jeranaias/ollama-ai/internal/ollama"
	"github.com/jeranaias/ollama-ai/internal/util"
)

// =============================================================================
// STREAMED OUTPUT
// =============================================================================

// eventPrinter writes streamed events as they arrive: generated text inline,
// progress as status lines, anything else as one JSON document per line.
type eventPrinter struct {
	w       io.Writer
	op      ollama.Operation
	raw     bool
	midLine bool
}

func newEventPrinter(w io.Writer, op ollama.Operation, raw bool) *eventPrinter {
	return &eventPrinter{w: w, op: op, raw: raw}
}

// print is an ollama.EventFunc.
func (p *eventPrinter) print(value any, _ ollama.RawChunk) error {
	if !p.raw {
		if text, ok := eventText(p.op, value); ok {
			_, err := io.WriteString(p.w, text)
			p.midLine = p.midLine || text != ""
			return err
		}
		if line, ok := progressLine(value); ok {
			p.endLine()
			_, err := fmt.Fprintln(p.w, DimStyle.Render(line))
			return err
		}
	}
	p.endLine()
	return writeJSONLine(p.w, value)
}

// finish terminates a partially written line of text.
func (p *eventPrinter) finish() {
	p.endLine()
}

func (p *eventPrinter) endLine() {
	if p.midLine {
		fmt.Fprintln(p.w)
		p.midLine = false
	}
}

// eventText extracts the generated text carried by a generate or chat event.
func eventText(op ollama.Operation, value any) (string, bool) {
	m, ok := value.(map[string]any)
	if !ok {
		return "", false
	}
	switch op {
	case ollama.OpGenerate:
		text, ok := m["response"].(string)
		return text, ok
	case ollama.OpChat:
		msg, ok := m["message"].(map[string]any)
		if !ok {
			return "", false
		}
		text, ok := msg["content"].(string)
		return text, ok
	}
	return "", false
}

// progressLine renders a pull, push or create status event.
func progressLine(value any) (string, bool) {
	m, ok := value.(map[string]any)
	if !ok {
		return "", false
	}
	if _, ok := m["status"].(string); !ok {
		return "", false
	}

	var p ollama.ProgressResponse
	if err := ollama.DecodeInto(value, &p); err != nil {
		return "", false
	}
	if p.Total > 0 {
		return fmt.Sprintf("%s %3.0f%%", p.Status, p.Percent()), true
	}
	return p.Status, true
}

// =============================================================================
// BUFFERED OUTPUT
// =============================================================================

// printResult writes the result of a buffered call.
func printResult(w io.Writer, op ollama.Operation, result any, raw bool) error {
	switch v := result.(type) {
	case bool:
		_, err := fmt.Fprintln(w, RenderStatus("ok"), string(op))
		return err
	case string:
		_, err := fmt.Fprintln(w, v)
		return err
	case []any:
		if raw {
			return writeJSON(w, v)
		}
		return printValues(w, op, v)
	default:
		return writeJSON(w, v)
	}
}

func printValues(w io.Writer, op ollama.Operation, values []any) error {
	switch op {
	case ollama.OpGenerate, ollama.OpChat:
		var text strings.Builder
		for _, v := range values {
			if s, ok := eventText(op, v); ok {
				text.WriteString(s)
			}
		}
		if text.Len() > 0 {
			_, err := fmt.Fprintln(w, text.String())
			return err
		}
	case ollama.OpTags:
		var lists []ollama.ListModelsResponse
		if err := ollama.DecodeInto(values, &lists); err == nil && len(lists) == 1 {
			return printModels(w, lists[0].Models)
		}
	case ollama.OpShow:
		var shows []ollama.ShowModelResponse
		if err := ollama.DecodeInto(values, &shows); err == nil && len(shows) == 1 {
			return printModelDetails(w, shows[0])
		}
	}

	for _, v := range values {
		if err := writeJSON(w, v); err != nil {
			return err
		}
	}
	return nil
}

func printModels(w io.Writer, models []ollama.ModelInfo) error {
	if len(models) == 0 {
		_, err := fmt.Fprintln(w, DimStyle.Render("No local models."))
		return err
	}

	fmt.Fprintln(w, TitleStyle.Render(modelRow("NAME", "SIZE", "MODIFIED")))
	for _, m := range models {
		modified := ""
		if !m.ModifiedAt.IsZero() {
			modified = m.ModifiedAt.Format("2006-01-02 15:04")
		}
		fmt.Fprintln(w, modelRow(m.Name, m.FormatSize(), DimStyle.Render(modified)))
	}
	return nil
}

const (
	nameColumn = 40
	sizeColumn = 10
)

func modelRow(name, size, modified string) string {
	return util.PadRight(util.Truncate(name, nameColumn), nameColumn) + " " +
		util.PadRight(size, sizeColumn) + " " + modified
}

func printModelDetails(w io.Writer, info ollama.ShowModelResponse) error {
	rows := []struct{ label, value string }{
		{"Family", info.Details.Family},
		{"Format", info.Details.Format},
		{"Parameters", info.Details.ParameterSize},
		{"Quantization", info.Details.QuantizationLevel},
	}
	for _, r := range rows {
		if r.value == "" {
			continue
		}
		fmt.Fprintln(w, RenderLabel(r.label+":")+ValueStyle.Render(r.value))
	}
	if info.Template != "" {
		fmt.Fprintln(w, TitleStyle.Render("Template"))
		fmt.Fprintln(w, info.Template)
	}
	if info.Parameters != "" {
		fmt.Fprintln(w, TitleStyle.Render("Parameters"))
		fmt.Fprintln(w, info.Parameters)
	}
	return nil
}

// =============================================================================
// JSON
// =============================================================================

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeJSONLine(w io.Writer, v any) error {
	return json.NewEncoder(w).Encode(v)
}
