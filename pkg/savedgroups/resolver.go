package savedgroups

import (
	"strings"

	"github.com/flagkit/flagkit/pkg/condition"
)

// MaxDepth bounds how many group expansions may stack on a single path
// before resolution truncates with a __sgMaxDepth__ marker.
const MaxDepth = 10

// Error marker keys spliced into resolved conditions. Each marker object is
// always-false under SDK evaluation, so a broken reference disables the rule
// it appears in without failing the payload build.
const (
	MarkerCycle    = "__sgCycle__"
	MarkerMaxDepth = "__sgMaxDepth__"
	MarkerUnknown  = "__sgUnknown__"
	MarkerInvalid  = "__sgInvalid__"
)

// Reference operators understood by the resolver.
const (
	keySavedGroups = "$savedGroups"
	keyInGroup     = "$inGroup"
	keyNotInGroup  = "$notInGroup"
	keyIn          = "$in"
	keyNotIn       = "$nin"
	keyAnd         = "$and"
)

// Resolver expands saved-group references against a fixed GroupMap.
type Resolver struct {
	groups       GroupMap
	keepListRefs bool
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithListReferences keeps $inGroup/$notInGroup operators untouched so they
// can be shipped by reference alongside a saved-group value map. Condition
// groups referenced via $savedGroups are still expanded inline.
func WithListReferences() ResolverOption {
	return func(r *Resolver) { r.keepListRefs = true }
}

// NewResolver creates a resolver over the given group map. The map is not
// copied and must not be mutated while the resolver is in use.
func NewResolver(groups GroupMap, opts ...ResolverOption) *Resolver {
	r := &Resolver{groups: groups}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns a new condition tree with every saved-group reference
// replaced by concrete operators. The input tree is not mutated.
func (r *Resolver) Resolve(cond condition.Node) condition.Node {
	return r.resolve(cond, map[string]struct{}{}, 0)
}

// ResolveJSON parses, resolves and re-serializes a condition document.
// Empty input resolves to the empty condition "{}".
func (r *Resolver) ResolveJSON(raw []byte) ([]byte, error) {
	obj, err := condition.ParseObject(raw)
	if err != nil {
		return nil, err
	}
	return condition.JSON(r.Resolve(obj)), nil
}

// HasErrorMarker reports whether any resolution error marker appears as a
// JSON key in the serialized condition.
func HasErrorMarker(raw []byte) bool {
	s := string(raw)
	for _, marker := range []string{MarkerCycle, MarkerMaxDepth, MarkerUnknown, MarkerInvalid} {
		if strings.Contains(s, `"`+marker+`"`) {
			return true
		}
	}
	return false
}

func (r *Resolver) resolve(node condition.Node, visited map[string]struct{}, depth int) condition.Node {
	switch n := node.(type) {
	case *condition.Leaf:
		return n.Clone()
	case *condition.Array:
		items := make([]condition.Node, len(n.Items))
		for i, item := range n.Items {
			items[i] = r.resolve(item, visited, depth)
		}
		return &condition.Array{Items: items}
	case *condition.Object:
		return r.resolveObject(n, visited, depth)
	default:
		return node
	}
}

// resolveObject rewrites one object node. Its own fields (with in-group
// operators rewritten and $savedGroups removed) and every referenced group's
// resolved condition become siblings combined with logical AND. Conflicting
// keys across the union are intentionally left to coexist inside $and so a
// key recurring with different operators keeps both meanings.
func (r *Resolver) resolveObject(obj *condition.Object, visited map[string]struct{}, depth int) condition.Node {
	own := &condition.Object{}
	var expanded []condition.Node

	for _, f := range obj.Fields {
		if f.Key == keySavedGroups {
			for _, id := range referencedIDs(f.Value) {
				expanded = append(expanded, r.groupCondition(id, visited, depth))
			}
			continue
		}
		own.Fields = append(own.Fields, condition.Field{
			Key:   f.Key,
			Value: r.resolveOperand(f.Value, visited, depth),
		})
	}

	if len(expanded) == 0 {
		return own
	}

	conds := make([]condition.Node, 0, len(expanded)+1)
	if own.Len() > 0 {
		conds = append(conds, own)
	}
	conds = append(conds, expanded...)

	// A single surviving condition is flattened rather than wrapped in a
	// redundant one-element $and.
	if len(conds) == 1 {
		return conds[0]
	}

	// Siblings with disjoint key sets collapse into one flat object. On any
	// key recurring across the union the whole set is wrapped in $and
	// instead, so a key carrying different operators keeps both meanings.
	if merged, ok := mergeDisjoint(conds); ok {
		return merged
	}
	return condition.NewObject(condition.Field{
		Key:   keyAnd,
		Value: &condition.Array{Items: conds},
	})
}

// mergeDisjoint flattens sibling condition objects into a single object.
// It fails when any key appears in more than one sibling.
func mergeDisjoint(conds []condition.Node) (condition.Node, bool) {
	seen := make(map[string]struct{})
	merged := &condition.Object{}
	for _, c := range conds {
		obj, ok := c.(*condition.Object)
		if !ok {
			return nil, false
		}
		for _, f := range obj.Fields {
			if _, dup := seen[f.Key]; dup {
				return nil, false
			}
			seen[f.Key] = struct{}{}
			merged.Fields = append(merged.Fields, f)
		}
	}
	return merged, true
}

// resolveOperand handles field values, rewriting $inGroup/$notInGroup
// operators in place before descending.
func (r *Resolver) resolveOperand(node condition.Node, visited map[string]struct{}, depth int) condition.Node {
	op, ok := node.(*condition.Object)
	if !ok {
		return r.resolve(node, visited, depth)
	}

	out := &condition.Object{}
	for _, f := range op.Fields {
		switch f.Key {
		case keyInGroup, keyNotInGroup:
			if r.keepListRefs {
				out.Fields = append(out.Fields, condition.Field{Key: f.Key, Value: f.Value.Clone()})
				continue
			}
			out.Fields = append(out.Fields, r.inGroupField(f, visited, depth)...)
		default:
			out.Fields = append(out.Fields, condition.Field{
				Key:   f.Key,
				Value: r.resolveOperand(f.Value, visited, depth),
			})
		}
	}
	return out
}

// inGroupField rewrites a single $inGroup/$notInGroup operator into $in/$nin
// over the group's concrete values, or an error marker for bad references.
func (r *Resolver) inGroupField(f condition.Field, visited map[string]struct{}, depth int) []condition.Field {
	id, ok := leafString(f.Value)
	if !ok {
		return []condition.Field{{Key: MarkerInvalid, Value: f.Value.Clone()}}
	}

	group, ok := r.groups[id]
	if !ok {
		return []condition.Field{{Key: MarkerUnknown, Value: condition.String(id)}}
	}

	switch group.Type {
	case TypeList:
		op := keyIn
		if f.Key == keyNotInGroup {
			op = keyNotIn
		}
		return []condition.Field{{Key: op, Value: valuesArray(group)}}
	case TypeCondition:
		// Condition groups cannot back a membership operator; present the
		// reference as unresolvable rather than guessing semantics.
		return []condition.Field{{Key: MarkerInvalid, Value: condition.String(id)}}
	default:
		return []condition.Field{{Key: MarkerUnknown, Value: condition.String(id)}}
	}
}

// groupCondition resolves one $savedGroups reference into a condition node.
func (r *Resolver) groupCondition(id string, visited map[string]struct{}, depth int) condition.Node {
	if _, seen := visited[id]; seen {
		return marker(MarkerCycle, condition.String(id))
	}
	if depth+1 >= MaxDepth {
		return marker(MarkerMaxDepth, condition.Bool(true))
	}

	group, ok := r.groups[id]
	if !ok {
		return marker(MarkerUnknown, condition.String(id))
	}

	switch group.Type {
	case TypeList:
		return condition.NewObject(condition.Field{
			Key: group.AttributeKey,
			Value: condition.NewObject(condition.Field{
				Key:   keyIn,
				Value: valuesArray(group),
			}),
		})
	case TypeCondition:
		stored, err := condition.ParseObject([]byte(group.Condition))
		if err != nil {
			return marker(MarkerInvalid, condition.String(id))
		}
		visited[id] = struct{}{}
		resolved := r.resolveObject(stored, visited, depth+1)
		delete(visited, id)
		return resolved
	default:
		return marker(MarkerUnknown, condition.String(id))
	}
}

func marker(key string, value condition.Node) condition.Node {
	return condition.NewObject(condition.Field{Key: key, Value: value})
}

// referencedIDs extracts group ids from a $savedGroups value, which may be a
// single id or an array of ids. Non-string entries are skipped.
func referencedIDs(node condition.Node) []string {
	switch n := node.(type) {
	case *condition.Leaf:
		if id, ok := n.StringValue(); ok {
			return []string{id}
		}
	case *condition.Array:
		ids := make([]string, 0, len(n.Items))
		for _, item := range n.Items {
			if id, ok := leafString(item); ok {
				ids = append(ids, id)
			}
		}
		return ids
	}
	return nil
}

func leafString(node condition.Node) (string, bool) {
	leaf, ok := node.(*condition.Leaf)
	if !ok {
		return "", false
	}
	return leaf.StringValue()
}

func valuesArray(group Group) condition.Node {
	items := make([]condition.Node, 0, len(group.Values))
	for _, v := range group.Values {
		switch val := v.(type) {
		case string:
			items = append(items, condition.String(val))
		case float64:
			items = append(items, numberLeaf(val))
		case int:
			items = append(items, condition.Number(itoa(val)))
		case int64:
			items = append(items, condition.Number(itoa64(val)))
		default:
			// Unsupported value types are dropped rather than serialized
			// into something SDKs cannot compare against.
		}
	}
	return &condition.Array{Items: items}
}
