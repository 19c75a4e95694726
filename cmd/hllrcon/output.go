// Copyright 2024 Matt Schultz <schultz@sent.com>. All rights reserved.
// Use of this source code is governed by an ISC license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

type outputFormat string

const (
	outputRaw  outputFormat = "raw"
	outputJSON outputFormat = "json"
	outputYAML outputFormat = "yaml"
)

func parseOutputFormat(s string) (outputFormat, error) {
	switch f := outputFormat(s); f {
	case outputRaw, outputJSON, outputYAML:
		return f, nil
	}
	return "", fmt.Errorf("unknown output format %q (want raw, json or yaml)", s)
}

// writeOutput writes a content body. JSON and YAML output require the body to be JSON.
func writeOutput(w io.Writer, content []byte, f outputFormat) error {
	trimmed := bytes.TrimSpace(content)
	switch f {
	case outputJSON:
		var buf bytes.Buffer
		if err := json.Indent(&buf, trimmed, "", "  "); err != nil {
			return fmt.Errorf("content body is not JSON: %w", err)
		}
		buf.WriteByte('\n')
		_, err := w.Write(buf.Bytes())
		return err
	case outputYAML:
		out, err := convertJSONToYAML(trimmed)
		if err != nil {
			return fmt.Errorf("content body is not JSON: %w", err)
		}
		_, err = w.Write(out)
		return err
	}
	if len(trimmed) > 0 {
		trimmed = append(trimmed, '\n')
	}
	_, err := w.Write(trimmed)
	return err
}

// writeValue encodes a decoded response in format f.
func writeValue(w io.Writer, v any, f outputFormat) error {
	js, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return writeOutput(w, js, f)
}

func convertJSONToYAML(data []byte) ([]byte, error) {
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return yaml.Marshal(doc)
}
