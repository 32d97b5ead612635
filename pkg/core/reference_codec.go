package core

import (
	"encoding/json"
	"fmt"
)

// Wire shapes of the serialized reference forms. Field order here is the
// canonical order used for signatures.
type (
	conceptWire struct {
		Type      Kind     `json:"type"`
		Reference []string `json:"reference"`
		Property  string   `json:"property,omitempty"`
	}
	layerWire struct {
		Type      Kind     `json:"type"`
		Reference []string `json:"reference"`
	}
	resultWire struct {
		Type Kind   `json:"type"`
		Name string `json:"name"`
	}
	selfWire struct {
		Type Kind `json:"type"`
	}
	collectionWire struct {
		Type     Kind        `json:"type"`
		Elements []Reference `json:"elements"`
	}
)

// MarshalJSON implements json.Marshaler.
func (c ConceptRef) MarshalJSON() ([]byte, error) {
	return json.Marshal(conceptWire{Type: KindConcept, Reference: c.path, Property: c.property})
}

// MarshalJSON implements json.Marshaler.
func (l LayerRef) MarshalJSON() ([]byte, error) {
	return json.Marshal(layerWire{Type: KindLayer, Reference: l.path})
}

// MarshalJSON implements json.Marshaler.
func (r ResultRef) MarshalJSON() ([]byte, error) {
	return json.Marshal(resultWire{Type: KindResult, Name: r.name})
}

// MarshalJSON implements json.Marshaler.
func (SelfRef) MarshalJSON() ([]byte, error) {
	return json.Marshal(selfWire{Type: KindSelf})
}

// MarshalJSON implements json.Marshaler.
func (c CollectionRef) MarshalJSON() ([]byte, error) {
	elements := c.elements
	if elements == nil {
		elements = []Reference{}
	}
	return json.Marshal(collectionWire{Type: KindCollection, Elements: elements})
}

// MarshalReference serializes a reference to its JSON form.
func MarshalReference(ref Reference) ([]byte, error) {
	if ref == nil {
		return nil, fmt.Errorf("%w: nil reference", ErrInvalidReference)
	}
	return json.Marshal(ref)
}

// UnmarshalReference parses the JSON form of a reference.
func UnmarshalReference(data []byte) (Reference, error) {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidReference, err)
	}
	return DecodeReference(raw)
}

// DecodeReference builds a reference from a generic decoded tree, as
// produced by encoding/json or yaml.v3 decoding into an interface value.
func DecodeReference(v any) (Reference, error) {
	m, ok := asMap(v)
	if !ok {
		return nil, fmt.Errorf("%w: expected an object, got %T", ErrInvalidReference, v)
	}
	typ, _ := m["type"].(string)

	switch Kind(typ) {
	case KindConcept:
		path, err := decodeStrings(m["reference"])
		if err != nil {
			return nil, fmt.Errorf("concept reference: %w", err)
		}
		ref, err := NewConcept(path...)
		if err != nil {
			return nil, err
		}
		if p, present := m["property"]; present && p != nil {
			prop, ok := p.(string)
			if !ok {
				return nil, fmt.Errorf("%w: concept property must be a string, got %T", ErrInvalidReference, p)
			}
			if prop == "" {
				return nil, fmt.Errorf("%w: concept property must not be empty", ErrInvalidReference)
			}
			ref = ref.WithProperty(prop)
		}
		return ref, nil

	case KindLayer:
		path, err := decodeStrings(m["reference"])
		if err != nil {
			return nil, fmt.Errorf("layer reference: %w", err)
		}
		return NewLayer(path...)

	case KindResult:
		name, ok := m["name"].(string)
		if !ok {
			return nil, fmt.Errorf("%w: result reference needs a string name", ErrInvalidReference)
		}
		return NewResult(name)

	case KindSelf:
		return Self(), nil

	case KindCollection:
		rawElems, ok := m["elements"].([]any)
		if !ok && m["elements"] != nil {
			return nil, fmt.Errorf("%w: collection elements must be a list", ErrInvalidReference)
		}
		elements := make([]Reference, 0, len(rawElems))
		for i, raw := range rawElems {
			el, err := DecodeReference(raw)
			if err != nil {
				return nil, fmt.Errorf("collection element %d: %w", i, err)
			}
			elements = append(elements, el)
		}
		return NewCollection(elements...)

	default:
		return nil, fmt.Errorf("%w: unknown reference type %q", ErrInvalidReference, typ)
	}
}

// canonicalKey is the JSON encoding of a reference. Encoding string slices
// cannot fail, so the error is dropped.
func canonicalKey(ref Reference) string {
	b, _ := json.Marshal(ref)
	return string(b)
}

// asMap accepts the map shapes produced by encoding/json and yaml.v3.
func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, val := range m {
			key, ok := k.(string)
			if !ok {
				return nil, false
			}
			out[key] = val
		}
		return out, true
	default:
		return nil, false
	}
}

func decodeStrings(v any) ([]string, error) {
	switch vals := v.(type) {
	case []string:
		return vals, nil
	case []any:
		out := make([]string, len(vals))
		for i, el := range vals {
			s, ok := el.(string)
			if !ok {
				return nil, fmt.Errorf("%w: path segment %d must be a string, got %T", ErrInvalidReference, i, el)
			}
			out[i] = s
		}
		return out, nil
	case nil:
		return nil, fmt.Errorf("%w: missing reference path", ErrInvalidReference)
	default:
		return nil, fmt.Errorf("%w: reference path must be a list, got %T", ErrInvalidReference, v)
	}
}
