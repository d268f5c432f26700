// Package cli provides common terminal helpers for the automuter
// command-line tool.
//
// This package includes:
//   - Output formatting (YAML, JSON, raw)
//   - Request file loading (YAML/JSON)
//   - Styled reports for similarity and mining summaries
//   - The per-user application directory layout
//
// Example usage:
//
//	cli.Output(speakers, cli.OutputOptions{
//	    Format: cli.FormatJSON,
//	    File:   outputPath,
//	})
package cli
