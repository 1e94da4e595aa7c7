// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small file and text helpers shared by the config and
// cli packages.
//
//	// Write the config file without leaving a partial file behind
//	err := util.WriteFileAtomic(path, data, 0o600, 0o700)
//
//	// Fit a model name into a table column
//	cell := util.PadRight(util.Truncate(name, 40), 40)
package util
