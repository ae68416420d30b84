package condition

import (
	"bytes"
	"encoding/json"
	"slices"
	"strconv"
)

// Node is a value in a condition tree. Exactly three implementations exist:
// *Object, *Array and *Leaf.
type Node interface {
	json.Marshaler

	// AppendJSON appends the compact JSON encoding of the node to dst.
	AppendJSON(dst []byte) []byte

	// Clone returns a deep copy that shares no memory with the receiver.
	Clone() Node
}

// Field is a single key/value pair inside an Object.
type Field struct {
	Key   string
	Value Node
}

// Object is a JSON object with stable field ordering.
type Object struct {
	Fields []Field
}

// NewObject builds an object from the given fields.
func NewObject(fields ...Field) *Object {
	return &Object{Fields: fields}
}

// Get returns the value bound to key, or nil if the key is absent.
func (o *Object) Get(key string) (Node, bool) {
	for _, f := range o.Fields {
		if f.Key == key {
			return f.Value, true
		}
	}
	return nil, false
}

// Has reports whether key is present.
func (o *Object) Has(key string) bool {
	_, ok := o.Get(key)
	return ok
}

// Set replaces the value bound to key, appending a new field when absent.
func (o *Object) Set(key string, value Node) {
	for i, f := range o.Fields {
		if f.Key == key {
			o.Fields[i].Value = value
			return
		}
	}
	o.Fields = append(o.Fields, Field{Key: key, Value: value})
}

// Delete removes key, preserving the order of the remaining fields.
func (o *Object) Delete(key string) bool {
	for i, f := range o.Fields {
		if f.Key == key {
			o.Fields = slices.Delete(o.Fields, i, i+1)
			return true
		}
	}
	return false
}

// Len returns the number of fields.
func (o *Object) Len() int { return len(o.Fields) }

// AppendJSON implements Node.
func (o *Object) AppendJSON(dst []byte) []byte {
	dst = append(dst, '{')
	for i, f := range o.Fields {
		if i > 0 {
			dst = append(dst, ',')
		}
		dst = appendQuoted(dst, f.Key)
		dst = append(dst, ':')
		dst = f.Value.AppendJSON(dst)
	}
	return append(dst, '}')
}

// MarshalJSON implements json.Marshaler.
func (o *Object) MarshalJSON() ([]byte, error) {
	return o.AppendJSON(nil), nil
}

// Clone implements Node.
func (o *Object) Clone() Node {
	fields := make([]Field, len(o.Fields))
	for i, f := range o.Fields {
		fields[i] = Field{Key: f.Key, Value: f.Value.Clone()}
	}
	return &Object{Fields: fields}
}

// Array is a JSON array.
type Array struct {
	Items []Node
}

// NewArray builds an array from the given items.
func NewArray(items ...Node) *Array {
	return &Array{Items: items}
}

// AppendJSON implements Node.
func (a *Array) AppendJSON(dst []byte) []byte {
	dst = append(dst, '[')
	for i, item := range a.Items {
		if i > 0 {
			dst = append(dst, ',')
		}
		dst = item.AppendJSON(dst)
	}
	return append(dst, ']')
}

// MarshalJSON implements json.Marshaler.
func (a *Array) MarshalJSON() ([]byte, error) {
	return a.AppendJSON(nil), nil
}

// Clone implements Node.
func (a *Array) Clone() Node {
	items := make([]Node, len(a.Items))
	for i, item := range a.Items {
		items[i] = item.Clone()
	}
	return &Array{Items: items}
}

// Leaf is a JSON scalar (string, number, boolean or null) kept verbatim.
type Leaf struct {
	Raw json.RawMessage
}

// String builds a string leaf.
func String(s string) *Leaf {
	return &Leaf{Raw: appendQuoted(nil, s)}
}

// Number builds a numeric leaf from its literal representation.
func Number(literal string) *Leaf {
	return &Leaf{Raw: json.RawMessage(literal)}
}

// Bool builds a boolean leaf.
func Bool(b bool) *Leaf {
	return &Leaf{Raw: json.RawMessage(strconv.FormatBool(b))}
}

// Null builds a null leaf.
func Null() *Leaf {
	return &Leaf{Raw: json.RawMessage("null")}
}

// StringValue returns the leaf's string value when it holds a JSON string.
func (l *Leaf) StringValue() (string, bool) {
	var s string
	if err := json.Unmarshal(l.Raw, &s); err != nil {
		return "", false
	}
	return s, true
}

// AppendJSON implements Node.
func (l *Leaf) AppendJSON(dst []byte) []byte {
	return append(dst, l.Raw...)
}

// MarshalJSON implements json.Marshaler.
func (l *Leaf) MarshalJSON() ([]byte, error) {
	return append([]byte(nil), l.Raw...), nil
}

// Clone implements Node.
func (l *Leaf) Clone() Node {
	return &Leaf{Raw: append(json.RawMessage(nil), l.Raw...)}
}

// JSON returns the compact JSON encoding of any node.
func JSON(n Node) []byte {
	if n == nil {
		return []byte("null")
	}
	return n.AppendJSON(nil)
}

// Equal reports whether two nodes encode to the same JSON document.
func Equal(a, b Node) bool {
	return bytes.Equal(JSON(a), JSON(b))
}

func appendQuoted(dst []byte, s string) []byte {
	// json.Marshal on a string cannot fail and handles all escaping rules.
	b, _ := json.Marshal(s)
	return append(dst, b...)
}
