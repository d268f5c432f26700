package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-yaml"
)

// LoadRequest loads a request from a YAML or JSON file into the provided
// value. A path of "-" reads stdin.
func LoadRequest(path string, v any) error {
	if path == "-" {
		return LoadRequestFromReader(os.Stdin, v)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}
	return ParseRequest(data, path, v)
}

// ParseRequest parses request data based on file extension or content
func ParseRequest(data []byte, filename string, v any) error {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, v); err != nil {
			return fmt.Errorf("failed to parse YAML: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, v); err != nil {
			return fmt.Errorf("failed to parse JSON: %w", err)
		}
	default:
		// YAML is a superset of JSON.
		if err := yaml.Unmarshal(data, v); err != nil {
			return fmt.Errorf("failed to parse file (tried YAML and JSON): %w", err)
		}
	}
	return nil
}

// LoadRequestFromReader loads a request from r, trying JSON then YAML.
func LoadRequestFromReader(r io.Reader, v any) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		if err2 := yaml.Unmarshal(data, v); err2 != nil {
			return fmt.Errorf("failed to parse input (tried JSON and YAML)")
		}
	}
	return nil
}
