package condition

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Parse decodes a JSON document into a condition tree, preserving object key
// order. Trailing content after the first value is rejected.
func Parse(data []byte) (Node, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	node, err := parseValue(dec)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidJSON, err)
	}

	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: trailing content after condition", ErrInvalidJSON)
	}
	return node, nil
}

// ParseObject decodes a condition document that must be a JSON object.
// Empty input is treated as the empty condition {}.
func ParseObject(data []byte) (*Object, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return &Object{}, nil
	}

	node, err := Parse(data)
	if err != nil {
		return nil, err
	}

	obj, ok := node.(*Object)
	if !ok {
		return nil, fmt.Errorf("%w: condition must be a JSON object", ErrInvalidJSON)
	}
	return obj, nil
}

func parseValue(dec *json.Decoder) (Node, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	return parseToken(dec, tok)
}

func parseToken(dec *json.Decoder, tok json.Token) (Node, error) {
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			return parseObjectBody(dec)
		case '[':
			return parseArrayBody(dec)
		default:
			return nil, fmt.Errorf("unexpected delimiter %q", t.String())
		}
	case string:
		return String(t), nil
	case json.Number:
		return Number(t.String()), nil
	case bool:
		return Bool(t), nil
	case nil:
		return Null(), nil
	default:
		return nil, fmt.Errorf("unexpected token %v", tok)
	}
}

func parseObjectBody(dec *json.Decoder) (*Object, error) {
	obj := &Object{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, fmt.Errorf("object key is not a string: %v", keyTok)
		}

		value, err := parseValue(dec)
		if err != nil {
			return nil, err
		}
		obj.Fields = append(obj.Fields, Field{Key: key, Value: value})
	}

	// Consume the closing brace.
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return obj, nil
}

func parseArrayBody(dec *json.Decoder) (*Array, error) {
	arr := &Array{}
	for dec.More() {
		item, err := parseValue(dec)
		if err != nil {
			return nil, err
		}
		arr.Items = append(arr.Items, item)
	}

	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return arr, nil
}
