package model

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// Key identifies a provision: a whole section when Subsection is empty,
// otherwise the nested unit addressed by its parenthesized path, e.g. "(a)(1)(A)".
type Key struct {
	Title      int    `json:"title"`
	Section    string `json:"section"`
	Subsection string `json:"subsection,omitempty"`
}

// SectionRef returns the key of the enclosing section.
func (k Key) SectionRef() Key {
	return Key{Title: k.Title, Section: k.Section}
}

// IsZero reports whether the key is unset.
func (k Key) IsZero() bool {
	return k.Title == 0 && k.Section == ""
}

// String renders the key in U.S. Code citation form.
func (k Key) String() string {
	return fmt.Sprintf("%d U.S.C. %s%s", k.Title, k.Section, k.Subsection)
}

// Less orders keys by title, natural section label, then subsection path.
func (k Key) Less(o Key) bool {
	return CompareKeys(k, o) < 0
}

// CompareKeys returns -1, 0 or 1.
func CompareKeys(a, b Key) int {
	if a.Title != b.Title {
		if a.Title < b.Title {
			return -1
		}
		return 1
	}
	if c := CompareSectionLabels(a.Section, b.Section); c != 0 {
		return c
	}
	return strings.Compare(a.Subsection, b.Subsection)
}

// CompareSectionLabels compares section labels naturally so that
// "202" < "2014" < "2014a" < "2015".
func CompareSectionLabels(a, b string) int {
	an, arest := splitNumericPrefix(a)
	bn, brest := splitNumericPrefix(b)
	switch {
	case an >= 0 && bn >= 0:
		if an != bn {
			if an < bn {
				return -1
			}
			return 1
		}
		return strings.Compare(arest, brest)
	case an >= 0:
		return -1
	case bn >= 0:
		return 1
	}
	return strings.Compare(a, b)
}

func splitNumericPrefix(s string) (int, string) {
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i == 0 {
		return -1, s
	}
	n, err := strconv.Atoi(s[:i])
	if err != nil {
		return -1, s
	}
	return n, s[i:]
}

// SubsectionPath joins labels into the canonical subsection form.
func SubsectionPath(labels ...string) string {
	var b strings.Builder
	for _, l := range labels {
		if l == "" {
			continue
		}
		b.WriteByte('(')
		b.WriteString(l)
		b.WriteByte(')')
	}
	return b.String()
}

// SplitSubsectionPath splits "(a)(1)(A)" into its labels. Input without
// parentheses ("a/1/A" or "a") is accepted as well.
func SplitSubsectionPath(path string) []string {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}
	if !strings.HasPrefix(path, "(") {
		return strings.FieldsFunc(path, func(r rune) bool { return r == '/' || r == '.' })
	}
	var labels []string
	for _, part := range strings.Split(path, "(") {
		part = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(part), ")"))
		if part != "" {
			labels = append(labels, part)
		}
	}
	return labels
}

// NormalizeSubsection returns the canonical parenthesized form of path.
func NormalizeSubsection(path string) string {
	return SubsectionPath(SplitSubsectionPath(path)...)
}

// CleanLabel strips decoration from a displayed number such as "§ 2014." or "(a)".
func CleanLabel(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimLeft(s, "§ ")
	s = strings.TrimFunc(s, func(r rune) bool {
		return r == '(' || r == ')' || r == '.' || r == '—' || r == '-' || unicode.IsSpace(r)
	})
	return s
}
