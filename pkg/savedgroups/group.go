package savedgroups

import (
	"encoding/json"
	"time"
)

// Type discriminates the two saved-group representations.
type Type string

const (
	// TypeList is a concrete set of attribute values.
	TypeList Type = "list"
	// TypeCondition is a stored condition document that may reference
	// further groups.
	TypeCondition Type = "condition"
)

// Group is a reusable targeting rule referenced from feature and experiment
// rules.
type Group struct {
	ID           string    `json:"id" bson:"id"`
	Organization string    `json:"organization" bson:"organization"`
	Type         Type      `json:"type" bson:"type"`
	GroupName    string    `json:"groupName" bson:"groupName"`
	AttributeKey string    `json:"attributeKey,omitempty" bson:"attributeKey,omitempty"`
	Values       []any     `json:"values,omitempty" bson:"values,omitempty"`
	Condition    string    `json:"condition,omitempty" bson:"condition,omitempty"`
	DateUpdated  time.Time `json:"dateUpdated" bson:"dateUpdated"`
}

// GroupMap indexes resolved groups by id. It is built once per propagation
// pass and is read-only during resolution.
type GroupMap map[string]Group

// NewGroupMap indexes groups by id. Later duplicates win, matching a
// last-write document store read.
func NewGroupMap(groups []Group) GroupMap {
	m := make(GroupMap, len(groups))
	for _, g := range groups {
		m[g.ID] = g
	}
	return m
}

// ValuesJSON renders a list group's values as a JSON array literal.
func (g Group) ValuesJSON() json.RawMessage {
	if len(g.Values) == 0 {
		return json.RawMessage("[]")
	}
	b, err := json.Marshal(g.Values)
	if err != nil {
		return json.RawMessage("[]")
	}
	return b
}
