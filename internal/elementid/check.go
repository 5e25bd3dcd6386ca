// Package elementid keeps the element ids of the plugin instances on one page unique.
//
// A page records, in its glossary under element_ids, the element id assigned to each
// plugin instance, keyed by the instance id. Edits are rejected when they would
// duplicate an id already used on the page; newly created instances are renamed with
// a numeric suffix instead.
package elementid

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

type Verdict int

const (
	// Undetermined means the instance has no page yet, so there is nothing to check
	// against.
	Undetermined Verdict = iota
	Unique
	Conflicting
)

func (v Verdict) String() string {
	switch v {
	case Unique:
		return "unique"
	case Conflicting:
		return "conflicting"
	default:
		return "undetermined"
	}
}

// Check reports whether assigning candidate to key keeps every value in ids
// distinct. ids is not modified.
func Check(ids map[string]string, key, candidate string) Verdict {
	entries := len(ids)
	if _, ok := ids[key]; !ok {
		entries++
	}
	distinct := make(map[string]struct{}, entries)
	for k, v := range ids {
		if k == key {
			continue
		}
		distinct[v] = struct{}{}
	}
	distinct[candidate] = struct{}{}
	if entries == len(distinct) {
		return Unique
	}
	return Conflicting
}

// Resolve returns candidate unchanged when no other key uses it. Otherwise it tries
// candidate_1, candidate_2, ... and returns the first one no other key uses together
// with the suffix number.
func Resolve(ids map[string]string, key, candidate string) (string, int) {
	taken := make(map[string]struct{}, len(ids))
	for k, v := range ids {
		if k != key {
			taken[v] = struct{}{}
		}
	}
	if _, clash := taken[candidate]; !clash {
		return candidate, 0
	}
	for n := 1; ; n++ {
		next := fmt.Sprintf("%s_%d", candidate, n)
		if _, clash := taken[next]; !clash {
			return next, n
		}
	}
}

// Normalize trims the id and folds it to Unicode NFKC.
func Normalize(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}
	return norm.NFKC.String(trimmed)
}

func hasSpace(id string) bool {
	return strings.ContainsFunc(id, unicode.IsSpace)
}
