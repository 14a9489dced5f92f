package rules

import (
	"strconv"
	"strings"
)

// Version is a parsed dotted version with up to three numeric parts.
type Version [3]int

// ParseVersion parses "18", "3.10" or "1.2.3". Missing parts are zero.
func ParseVersion(s string) (Version, bool) {
	var v Version
	s = strings.TrimPrefix(strings.TrimSpace(s), "v")
	if s == "" {
		return v, false
	}
	parts := strings.Split(s, ".")
	if len(parts) > 3 {
		return v, false
	}
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return v, false
		}
		v[i] = n
	}
	return v, true
}

// Less reports whether v sorts before other.
func (v Version) Less(other Version) bool {
	for i := range v {
		if v[i] != other[i] {
			return v[i] < other[i]
		}
	}
	return false
}

func (v Version) String() string {
	switch {
	case v[2] != 0:
		return strconv.Itoa(v[0]) + "." + strconv.Itoa(v[1]) + "." + strconv.Itoa(v[2])
	case v[1] != 0:
		return strconv.Itoa(v[0]) + "." + strconv.Itoa(v[1])
	default:
		return strconv.Itoa(v[0])
	}
}
