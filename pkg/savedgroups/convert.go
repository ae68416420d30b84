package savedgroups

import (
	"strconv"

	"github.com/flagkit/flagkit/pkg/condition"
)

func itoa(v int) string { return strconv.Itoa(v) }

func itoa64(v int64) string { return strconv.FormatInt(v, 10) }

// numberLeaf renders a float without a trailing ".0" for integral values so
// list-group values round-trip the way they were authored.
func numberLeaf(v float64) condition.Node {
	return condition.Number(strconv.FormatFloat(v, 'f', -1, 64))
}
