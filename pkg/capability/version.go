package capability

import (
	"strconv"
	"strings"
)

// CompareVersions orders two loose dotted version strings. Missing segments
// count as zero, numeric segments compare numerically, and anything else
// falls back to a lexical comparison, matching how SDKs report versions in
// the wild ("0.27.0", "1.0.0-beta.2", "v2.1").
func CompareVersions(a, b string) int {
	as := splitVersion(a)
	bs := splitVersion(b)

	n := max(len(as), len(bs))
	for i := range n {
		av, bv := segment(as, i), segment(bs, i)
		if av == bv {
			continue
		}

		ai, aNum := parseSegment(av)
		bi, bNum := parseSegment(bv)
		switch {
		case aNum && bNum:
			if ai != bi {
				if ai < bi {
					return -1
				}
				return 1
			}
		case aNum != bNum:
			// A numeric segment sorts before a pre-release tag at the same
			// position ("1.0.0" > "1.0.0-rc").
			if aNum {
				return 1
			}
			return -1
		default:
			return strings.Compare(av, bv)
		}
	}
	return 0
}

func splitVersion(v string) []string {
	v = strings.TrimPrefix(strings.TrimSpace(v), "v")
	if v == "" {
		return nil
	}
	return strings.FieldsFunc(v, func(r rune) bool {
		return r == '.' || r == '-' || r == '+'
	})
}

func segment(parts []string, i int) string {
	if i >= len(parts) {
		return "0"
	}
	return parts[i]
}

func parseSegment(s string) (int, bool) {
	n, err := strconv.Atoi(s)
	return n, err == nil
}
