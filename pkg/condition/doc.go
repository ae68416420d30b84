// Package condition models SDK targeting conditions as a typed JSON tree.
//
// Targeting conditions are authored as JSON documents whose key order is
// significant: SDKs evaluate operators in the order they appear, so a parse
// followed by a serialize must reproduce the original ordering. The standard
// encoding/json map types cannot guarantee that, so this package keeps object
// fields in an ordered slice and parses with a streaming decoder.
//
// The tree is a small tagged union:
//
//   - Object: an ordered list of key/value fields
//   - Array:  an ordered list of values
//   - Leaf:   any JSON scalar, kept as raw bytes
//
// Consumers transform conditions with plain type switches:
//
//	switch n := node.(type) {
//	case *condition.Object:
//	    // inspect n.Fields
//	case *condition.Array:
//	    // inspect n.Items
//	case *condition.Leaf:
//	    // n.Raw holds the scalar verbatim
//	}
package condition
