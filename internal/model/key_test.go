package model

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompareSectionLabels(t *testing.T) {
	labels := []string{"2015", "2014a", "202", "2014", "1a", "A1"}
	sort.Slice(labels, func(i, j int) bool { return CompareSectionLabels(labels[i], labels[j]) < 0 })
	assert.Equal(t, []string{"1a", "202", "2014", "2014a", "2015", "A1"}, labels)
}

func TestKeyString(t *testing.T) {
	k := Key{Title: 7, Section: "2014", Subsection: "(a)(1)"}
	assert.Equal(t, "7 U.S.C. 2014(a)(1)", k.String())
	assert.Equal(t, Key{Title: 7, Section: "2014"}, k.SectionRef())
}

func TestSubsectionPaths(t *testing.T) {
	assert.Equal(t, "(a)(1)(A)", SubsectionPath("a", "1", "A"))
	assert.Equal(t, []string{"a", "1"}, SplitSubsectionPath("(a)(1)"))
	assert.Equal(t, "(a)(1)", NormalizeSubsection("a/1"))
	assert.Equal(t, "(b)", NormalizeSubsection("b"))
	assert.Equal(t, "", NormalizeSubsection(""))
}

func TestCleanLabel(t *testing.T) {
	assert.Equal(t, "2014", CleanLabel("§ 2014."))
	assert.Equal(t, "a", CleanLabel("(a)"))
	assert.Equal(t, "iv", CleanLabel(" (iv) "))
}

func TestWithin(t *testing.T) {
	assert.True(t, Within("(a)(1)", "(a)"))
	assert.True(t, Within("(a)", "(a)"))
	assert.False(t, Within("(a)(10)", "(a)(1)"))
	assert.False(t, Within("(b)", "(a)"))
}
