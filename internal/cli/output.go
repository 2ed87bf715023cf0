package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// Format — формат вывода.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat проверяет значение флага -o.
func ParseFormat(s string) (Format, error) {
	switch f := Format(s); f {
	case FormatJSON, FormatYAML:
		return f, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want json or yaml)", s)
	}
}

// Print выводит значение в выбранном формате.
// YAML строится из JSON-представления: имена полей и их порядок совпадают
// с ответом API.
func Print(w io.Writer, format Format, v any) error {
	const op = "cli/Print"

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if format == FormatJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(json.RawMessage(data)); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		return nil
	}

	// JSON — подмножество YAML: разбираем в дерево узлов, сохраняя порядок ключей.
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	blockStyle(&doc)

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return enc.Close()
}

// blockStyle снимает flow-стиль и кавычки, унаследованные от JSON.
func blockStyle(n *yaml.Node) {
	n.Style = 0
	for _, c := range n.Content {
		blockStyle(c)
	}
}
