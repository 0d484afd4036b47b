package rfc9110

import (
	"strings"
)

// ETag is a parsed entity tag.
//
// §  8.8.3.  ETag
// §
// §       ETag       = entity-tag
// §
// §       entity-tag = [ weak ] opaque-tag
// §       weak       = %s"W/"
// §       opaque-tag = DQUOTE *etagc DQUOTE
type ETag struct {
	// Tag is the opaque-tag including its double quotes.
	Tag  string
	Weak bool
}

// ParseETag parses a single entity-tag.
// It reports false when the value is not a valid entity-tag.
func ParseETag(value string) (ETag, bool) {
	value = strings.TrimSpace(value)
	weak := false
	if strings.HasPrefix(value, "W/") {
		weak = true
		value = value[2:]
	}
	if len(value) < 2 || value[0] != '"' || value[len(value)-1] != '"' {
		return ETag{}, false
	}
	if strings.ContainsRune(value[1:len(value)-1], '"') {
		return ETag{}, false
	}
	return ETag{Tag: value, Weak: weak}, true
}

func (e ETag) String() string {
	if e.Weak {
		return "W/" + e.Tag
	}
	return e.Tag
}

// §  8.8.3.2.  Comparison
// §
// §     Strong comparison:  two entity tags are equivalent if both are not
// §        weak and their opaque-tags match character-by-character.
// §
// §     Weak comparison:  two entity tags are equivalent if their opaque-tags
// §        match character-by-character, regardless of either or both being
// §        tagged as "weak".

// StrongMatch reports whether a and b match using strong comparison.
func StrongMatch(a, b ETag) bool {
	return !a.Weak && !b.Weak && a.Tag == b.Tag
}

// WeakMatch reports whether a and b match using weak comparison.
func WeakMatch(a, b ETag) bool {
	return a.Tag == b.Tag
}

// ParseETagList parses a list of entity tags as used by If-Match and If-None-Match.
// It reports wildcard=true for "*". Invalid members are skipped.
func ParseETagList(members []string) (tags []ETag, wildcard bool) {
	for _, m := range members {
		if m == "*" {
			wildcard = true
			continue
		}
		if tag, ok := ParseETag(m); ok {
			tags = append(tags, tag)
		}
	}
	return tags, wildcard
}
