package core

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

type verbWire struct {
	Name string `json:"name"`
	Args []any  `json:"args"`
}

type chainWire struct {
	Reference Reference  `json:"reference"`
	Verbs     []verbWire `json:"verbs"`
}

// MarshalJSON implements json.Marshaler.
func (c Chain) MarshalJSON() ([]byte, error) {
	if c.Ref == nil {
		return nil, fmt.Errorf("%w: chain has no initial reference", ErrInvalidReference)
	}
	w := chainWire{Reference: c.Ref, Verbs: make([]verbWire, len(c.Verbs))}
	for i, v := range c.Verbs {
		args := v.Args
		if args == nil {
			args = []any{}
		}
		w.Verbs[i] = verbWire{Name: v.Name, Args: args}
	}
	return json.Marshal(w)
}

// UnmarshalJSON implements json.Unmarshaler.
func (c *Chain) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	chain, err := DecodeChain(raw)
	if err != nil {
		return err
	}
	*c = chain
	return nil
}

// MarshalJSON implements json.Marshaler. Results are written in recipe order.
func (r *Recipe) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range r.entries {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(e.Name)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(e.Chain)
		if err != nil {
			return nil, fmt.Errorf("recipe result %q: %w", e.Name, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON implements json.Unmarshaler, keeping the order of the keys.
func (r *Recipe) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("failed to parse recipe: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("failed to parse recipe: expected an object")
	}

	out := &Recipe{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("failed to parse recipe: %w", err)
		}
		name, _ := tok.(string)

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("failed to parse recipe result %q: %w", name, err)
		}
		var tree any
		if err := json.Unmarshal(raw, &tree); err != nil {
			return fmt.Errorf("failed to parse recipe result %q: %w", name, err)
		}
		chain, err := DecodeChain(tree)
		if err != nil {
			return fmt.Errorf("recipe result %q: %w", name, err)
		}
		if err := out.Add(name, chain); err != nil {
			return err
		}
	}
	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("failed to parse recipe: %w", err)
	}

	*r = *out
	return nil
}

// UnmarshalYAML implements yaml.Unmarshaler, keeping the order of the keys.
func (r *Recipe) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.DocumentNode && len(node.Content) == 1 {
		node = node.Content[0]
	}
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: recipe must be a mapping", node.Line)
	}

	out := &Recipe{}
	for i := 0; i+1 < len(node.Content); i += 2 {
		keyNode, valNode := node.Content[i], node.Content[i+1]
		var tree any
		if err := valNode.Decode(&tree); err != nil {
			return fmt.Errorf("line %d: recipe result %q: %w", valNode.Line, keyNode.Value, err)
		}
		chain, err := DecodeChain(tree)
		if err != nil {
			return fmt.Errorf("line %d: recipe result %q: %w", valNode.Line, keyNode.Value, err)
		}
		if err := out.Add(keyNode.Value, chain); err != nil {
			return fmt.Errorf("line %d: %w", keyNode.Line, err)
		}
	}

	*r = *out
	return nil
}

// DecodeChain builds a chain from a generic decoded tree.
func DecodeChain(v any) (Chain, error) {
	m, ok := asMap(v)
	if !ok {
		return Chain{}, fmt.Errorf("chain must be an object, got %T", v)
	}
	ref, err := DecodeReference(m["reference"])
	if err != nil {
		return Chain{}, err
	}
	chain := Chain{Ref: ref}

	rawVerbs, ok := m["verbs"].([]any)
	if !ok && m["verbs"] != nil {
		return Chain{}, fmt.Errorf("verbs must be a list, got %T", m["verbs"])
	}
	for i, rv := range rawVerbs {
		vm, ok := asMap(rv)
		if !ok {
			return Chain{}, fmt.Errorf("verb %d must be an object", i)
		}
		name, _ := vm["name"].(string)
		if name == "" {
			return Chain{}, fmt.Errorf("verb %d has no name", i)
		}
		rawArgs, ok := vm["args"].([]any)
		if !ok && vm["args"] != nil {
			return Chain{}, fmt.Errorf("verb %q: args must be a list", name)
		}
		args := make([]any, len(rawArgs))
		for j, ra := range rawArgs {
			arg, err := decodeArg(ra)
			if err != nil {
				return Chain{}, fmt.Errorf("verb %q argument %d: %w", name, j, err)
			}
			args[j] = arg
		}
		chain.Verbs = append(chain.Verbs, VerbCall{Name: name, Args: args})
	}
	return chain, nil
}

// decodeArg maps an argument tree to a Reference, a nested Chain or a literal.
func decodeArg(v any) (any, error) {
	if m, ok := asMap(v); ok {
		if _, isRef := m["type"]; isRef {
			return DecodeReference(m)
		}
		if _, isChain := m["reference"]; isChain {
			return DecodeChain(m)
		}
		out := make(map[string]any, len(m))
		for k, val := range m {
			lit, err := decodeArg(val)
			if err != nil {
				return nil, fmt.Errorf("key %q: %w", k, err)
			}
			out[k] = lit
		}
		return out, nil
	}

	switch t := v.(type) {
	case []any:
		out := make([]any, len(t))
		for i, el := range t {
			arg, err := decodeArg(el)
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", i, err)
			}
			out[i] = arg
		}
		return out, nil
	case int:
		return float64(t), nil
	case int64:
		return float64(t), nil
	case uint64:
		return float64(t), nil
	case float32:
		return float64(t), nil
	default:
		return v, nil
	}
}
