package matcher

import (
	"bytes"
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	perrors "github.com/Aman-CERP/prometheus/internal/errors"
)

// LoadFile reads pattern definitions from a YAML or JSON file. JSON is
// recognized by the .json extension.
//
// Accepted shapes:
//
//	patterns: [{name, regex|pattern|expression, flags|options}, ...]
//	[{name, regex, flags}, ...]
//	{Name: expression, ...}
//	{Name: {expression, options}, ...}
//
// Definitions without options are case-insensitive. An explicit empty option
// list selects none.
func LoadFile(path string) ([]Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, perrors.New(perrors.ErrCodeConfigNotFound, "pattern file not found: "+path, err).
				WithDetail("path", path)
		}
		return nil, perrors.ConfigError("failed to read pattern file "+path, err).WithDetail("path", path)
	}

	var defs []Definition
	if strings.EqualFold(filepath.Ext(path), ".json") {
		defs, err = ParseJSON(data)
	} else {
		defs, err = ParseYAML(data)
	}
	if err != nil {
		var pe *perrors.PrometheusError
		if errors.As(err, &pe) {
			return nil, pe.WithDetail("path", path)
		}
		return nil, err
	}
	return defs, nil
}

// ParseYAML parses pattern definitions from YAML.
func ParseYAML(data []byte) ([]Definition, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, perrors.ConfigError("pattern file is not valid YAML", err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, perrors.ConfigError("pattern file defines no patterns", nil)
	}
	return fromNode(doc.Content[0])
}

// ParseJSON parses pattern definitions from JSON, keeping object key order.
func ParseJSON(data []byte) ([]Definition, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	root, err := jsonNode(dec)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, perrors.ConfigError("pattern file defines no patterns", nil)
		}
		return nil, perrors.ConfigError("pattern file is not valid JSON", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, perrors.ConfigError("pattern file is not valid JSON", errors.New("trailing data"))
	}
	return fromNode(root)
}

func fromNode(root *yaml.Node) ([]Definition, error) {
	var defs []Definition
	var err error

	switch root.Kind {
	case yaml.SequenceNode:
		defs, err = fromList(root)
	case yaml.MappingNode:
		if list := mappingValue(root, "patterns"); list != nil && list.Kind == yaml.SequenceNode {
			defs, err = fromList(list)
		} else {
			defs, err = fromNamed(root)
		}
	default:
		return nil, perrors.ConfigError("unsupported pattern file structure", nil).
			WithSuggestion("Use a list of {name, regex, flags} entries or a name: expression mapping")
	}
	if err != nil {
		return nil, err
	}
	if len(defs) == 0 {
		return nil, perrors.ConfigError("pattern file defines no patterns", nil)
	}

	seen := make(map[string]bool, len(defs))
	for _, d := range defs {
		if seen[d.Name] {
			return nil, perrors.ConfigError(fmt.Sprintf("duplicate pattern name %q", d.Name), nil)
		}
		seen[d.Name] = true
	}
	return defs, nil
}

type rawEntry struct {
	Name       string    `yaml:"name"`
	Regex      string    `yaml:"regex"`
	Pattern    string    `yaml:"pattern"`
	Expression string    `yaml:"expression"`
	Flags      yaml.Node `yaml:"flags"`
	Options    yaml.Node `yaml:"options"`
}

func fromList(list *yaml.Node) ([]Definition, error) {
	defs := make([]Definition, 0, len(list.Content))
	for i, item := range list.Content {
		if item.Kind != yaml.MappingNode {
			return nil, perrors.ConfigError(fmt.Sprintf("pattern entry %d is not a mapping", i+1), nil)
		}
		d, err := fromEntry(item, "")
		if err != nil {
			return nil, err
		}
		defs = append(defs, d)
	}
	return defs, nil
}

func fromNamed(m *yaml.Node) ([]Definition, error) {
	defs := make([]Definition, 0, len(m.Content)/2)
	for i := 0; i+1 < len(m.Content); i += 2 {
		name, value := m.Content[i].Value, m.Content[i+1]
		switch value.Kind {
		case yaml.ScalarNode:
			if name == "" || value.Value == "" {
				return nil, perrors.ConfigError("pattern entries require a name and an expression", nil)
			}
			defs = append(defs, Definition{Name: name, Expression: value.Value, Options: DefaultOptions})
		case yaml.MappingNode:
			d, err := fromEntry(value, name)
			if err != nil {
				return nil, err
			}
			defs = append(defs, d)
		default:
			return nil, perrors.ConfigError(fmt.Sprintf("pattern %q must be an expression or a mapping", name), nil)
		}
	}
	return defs, nil
}

func fromEntry(n *yaml.Node, name string) (Definition, error) {
	var raw rawEntry
	if err := n.Decode(&raw); err != nil {
		return Definition{}, perrors.ConfigError("malformed pattern entry", err)
	}
	raw.Name = cmp.Or(raw.Name, name)
	expr := cmp.Or(raw.Regex, raw.Pattern, raw.Expression)
	if raw.Name == "" || expr == "" {
		return Definition{}, perrors.ConfigError("pattern entries require a name and an expression", nil).
			WithSuggestion("Each entry needs 'name' and 'regex' fields")
	}

	optNode := &raw.Options
	if optNode.Kind == 0 {
		optNode = &raw.Flags
	}
	opts, err := optionsFromNode(optNode)
	if err != nil {
		var pe *perrors.PrometheusError
		if errors.As(err, &pe) {
			pe.WithDetail("pattern", raw.Name)
		}
		return Definition{}, err
	}
	return Definition{Name: raw.Name, Expression: expr, Options: opts}, nil
}

func optionsFromNode(n *yaml.Node) (Option, error) {
	switch n.Kind {
	case 0:
		return DefaultOptions, nil
	case yaml.ScalarNode:
		if n.Tag == "!!null" {
			return DefaultOptions, nil
		}
		// "ignorecase,multiline" and "ignorecase multiline" are both accepted.
		return ParseOptions(strings.FieldsFunc(n.Value, func(r rune) bool {
			return r == ',' || r == ' ' || r == '|'
		}))
	case yaml.SequenceNode:
		names := make([]string, 0, len(n.Content))
		for _, item := range n.Content {
			if item.Kind != yaml.ScalarNode {
				return 0, perrors.ConfigError("pattern option names must be strings", nil)
			}
			names = append(names, item.Value)
		}
		return ParseOptions(names)
	default:
		return 0, perrors.ConfigError("pattern options must be a string or a list of strings", nil)
	}
}

func mappingValue(m *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return m.Content[i+1]
		}
	}
	return nil
}

// jsonNode reads one JSON value into a yaml.Node so both formats share one
// ordered representation.
func jsonNode(dec *json.Decoder) (*yaml.Node, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			n := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
			for dec.More() {
				key, err := dec.Token()
				if err != nil {
					return nil, unexpected(err)
				}
				ks, ok := key.(string)
				if !ok {
					return nil, fmt.Errorf("object key %v is not a string", key)
				}
				val, err := jsonNode(dec)
				if err != nil {
					return nil, unexpected(err)
				}
				n.Content = append(n.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: ks}, val)
			}
			if _, err := dec.Token(); err != nil {
				return nil, unexpected(err)
			}
			return n, nil
		case '[':
			n := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
			for dec.More() {
				val, err := jsonNode(dec)
				if err != nil {
					return nil, unexpected(err)
				}
				n.Content = append(n.Content, val)
			}
			if _, err := dec.Token(); err != nil {
				return nil, unexpected(err)
			}
			return n, nil
		}
		return nil, fmt.Errorf("unexpected %v", t)
	case string:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: t}, nil
	case json.Number:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int", Value: t.String()}, nil
	case bool:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!bool", Value: fmt.Sprint(t)}, nil
	case nil:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: "null"}, nil
	}
	return nil, fmt.Errorf("unexpected token %v", tok)
}

// unexpected turns an EOF inside a value into a syntax error.
func unexpected(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}
