package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Format selects the catalog encoding.
type Format int

const (
	FormatJSON Format = iota
	FormatYAML
)

func (f Format) String() string {
	if f == FormatYAML {
		return "yaml"
	}
	return "json"
}

// FormatFor picks a format from a file extension. Unknown extensions are read as JSON.
func FormatFor(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// field and record keep mapping keys in source order, so feature maps render
// their values in the order the catalog author wrote them.
type field struct {
	key   string
	value any
}

type record []field

func (r record) lookup(names ...string) (any, bool) {
	for _, name := range names {
		for _, f := range r {
			if f.key == name {
				return f.value, true
			}
		}
	}
	return nil, false
}

var errNotSequence = errors.New("catalog root must be a sequence of records")

// decode reads the whole input into a sequence of generic values. Mappings
// become record, sequences []any, and numbers json.Number or Go numerics.
func decode(r io.Reader, format Format) ([]any, error) {
	var (
		root any
		err  error
	)
	switch format {
	case FormatYAML:
		root, err = decodeYAML(r)
	default:
		root, err = decodeJSON(r)
	}
	if err != nil {
		return nil, err
	}
	seq, ok := root.([]any)
	if !ok {
		return nil, errNotSequence
	}
	return seq, nil
}

func decodeJSON(r io.Reader) (any, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	v, err := readJSONValue(dec)
	if err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New("unexpected data after catalog")
	}
	return v, nil
}

func readJSONValue(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		if err == io.EOF {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}
	delim, ok := tok.(json.Delim)
	if !ok {
		return tok, nil
	}
	switch delim {
	case '[':
		arr := make([]any, 0)
		for dec.More() {
			v, err := readJSONValue(dec)
			if err != nil {
				return nil, err
			}
			arr = append(arr, v)
		}
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
		return arr, nil
	case '{':
		rec := record{}
		for dec.More() {
			kt, err := dec.Token()
			if err != nil {
				return nil, err
			}
			key, ok := kt.(string)
			if !ok {
				return nil, fmt.Errorf("object key %v is not a string", kt)
			}
			v, err := readJSONValue(dec)
			if err != nil {
				return nil, err
			}
			rec = append(rec, field{key: key, value: v})
		}
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
		return rec, nil
	default:
		return nil, fmt.Errorf("unexpected delimiter %q", delim)
	}
}

func decodeYAML(r io.Reader) (any, error) {
	var doc yaml.Node
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if err == io.EOF {
			return nil, errors.New("empty catalog document")
		}
		return nil, err
	}
	return convertYAML(&doc)
}

func convertYAML(n *yaml.Node) (any, error) {
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return nil, errors.New("empty catalog document")
		}
		return convertYAML(n.Content[0])
	case yaml.AliasNode:
		return convertYAML(n.Alias)
	case yaml.SequenceNode:
		arr := make([]any, 0, len(n.Content))
		for _, c := range n.Content {
			v, err := convertYAML(c)
			if err != nil {
				return nil, err
			}
			arr = append(arr, v)
		}
		return arr, nil
	case yaml.MappingNode:
		rec := make(record, 0, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			v, err := convertYAML(n.Content[i+1])
			if err != nil {
				return nil, err
			}
			rec = append(rec, field{key: n.Content[i].Value, value: v})
		}
		return rec, nil
	case yaml.ScalarNode:
		var v any
		if err := n.Decode(&v); err != nil {
			return nil, fmt.Errorf("line %d: %w", n.Line, err)
		}
		return v, nil
	default:
		return nil, fmt.Errorf("line %d: unsupported yaml node", n.Line)
	}
}
