// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"

	"gopkg.in/yaml.v3"
)

// outputFormat is the value of the --output flag.
type outputFormat string

const (
	outputTable outputFormat = "table"
	outputJSON  outputFormat = "json"
	outputYAML  outputFormat = "yaml"
)

// ErrInvalidOutputFormat is returned for an unknown --output value.
var ErrInvalidOutputFormat = errors.New("invalid output format")

//nolint:gochecknoglobals // Read-only lookup table.
var outputFormats = []outputFormat{outputTable, outputJSON, outputYAML}

// parseOutputFormat validates a --output flag value.
func parseOutputFormat(s string) (outputFormat, error) {
	f := outputFormat(s)
	if !slices.Contains(outputFormats, f) {
		return "", fmt.Errorf("%w %q (valid: table, json, yaml)", ErrInvalidOutputFormat, s)
	}
	return f, nil
}

// writeStructured encodes v as JSON or YAML. Table output is the caller's job.
func writeStructured(w io.Writer, format outputFormat, v any) error {
	switch format {
	case outputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case outputYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("%w %q for structured output", ErrInvalidOutputFormat, format)
	}
}
