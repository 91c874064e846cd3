package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"
)

// render writes v as JSON or YAML, or calls table for the default format.
// A nil table falls back to YAML.
func render(w io.Writer, format string, v interface{}, table func(tw *tabwriter.Writer)) error {
	switch strings.ToLower(format) {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		return writeYAML(w, v)
	case "", "table":
		if table == nil {
			return writeYAML(w, v)
		}
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		table(tw)
		return tw.Flush()
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}

func writeYAML(w io.Writer, v interface{}) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

// printf writes to w unless quiet is set.
func printf(w io.Writer, quiet bool, format string, args ...interface{}) {
	if quiet {
		return
	}
	fmt.Fprintf(w, format, args...)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
