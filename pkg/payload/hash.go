package payload

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/flagkit/flagkit/pkg/condition"
)

// HashSecureAttributes replaces every string value bound to a secure
// attribute inside a condition with sha256(salt + value). The walk tracks
// which attribute is in scope across operator objects and arrays so only
// values of secure attributes are hashed, never keys and never strings
// belonging to other attributes.
func HashSecureAttributes(raw json.RawMessage, secure map[string]bool, salt string) json.RawMessage {
	if len(raw) == 0 || len(secure) == 0 {
		return raw
	}

	obj, err := condition.ParseObject(raw)
	if err != nil {
		// A condition we cannot parse is left untouched; the resolver marks
		// invalid conditions separately.
		return raw
	}
	return condition.JSON(hashNode(obj, secure, salt, false))
}

func hashNode(node condition.Node, secure map[string]bool, salt string, inScope bool) condition.Node {
	switch n := node.(type) {
	case *condition.Leaf:
		if !inScope {
			return n.Clone()
		}
		s, ok := n.StringValue()
		if !ok {
			return n.Clone()
		}
		return condition.String(hashValue(salt, s))
	case *condition.Array:
		items := make([]condition.Node, len(n.Items))
		for i, item := range n.Items {
			items[i] = hashNode(item, secure, salt, inScope)
		}
		return &condition.Array{Items: items}
	case *condition.Object:
		out := &condition.Object{}
		for _, f := range n.Fields {
			scope := inScope
			if !isOperatorKey(f.Key) {
				// A plain key names an attribute and resets the scope.
				scope = secure[f.Key]
			}
			out.Fields = append(out.Fields, condition.Field{
				Key:   f.Key,
				Value: hashNode(f.Value, secure, salt, scope),
			})
		}
		return out
	default:
		return node
	}
}

// isOperatorKey reports whether a key is a condition operator ($in, $and,
// $elemMatch, ...) rather than an attribute name. Operators inherit the
// attribute scope of their parent.
func isOperatorKey(key string) bool {
	return len(key) > 0 && key[0] == '$'
}

func hashValue(salt, value string) string {
	sum := sha256.Sum256([]byte(salt + value))
	return hex.EncodeToString(sum[:])
}
