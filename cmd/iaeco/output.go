package main

import (
	"encoding/json"
	"io"
	"text/tabwriter"

	"gopkg.in/yaml.v3"
)

// print writes v as json or yaml, or calls text with a tab-aligned writer.
func (c *cli) print(v any, text func(w io.Writer)) error {
	switch c.output {
	case "json":
		enc := json.NewEncoder(c.stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		plain, err := toPlain(v)
		if err != nil {
			return err
		}
		enc := yaml.NewEncoder(c.stdout)
		enc.SetIndent(2)
		if err := enc.Encode(plain); err != nil {
			return err
		}
		return enc.Close()
	}
	tw := tabwriter.NewWriter(c.stdout, 0, 4, 2, ' ', 0)
	text(tw)
	return tw.Flush()
}

// toPlain round-trips v through JSON so YAML keys match the JSON field names.
func toPlain(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}
