package search

import (
	"testing"

	"github.com/jjenkins/lawarchive/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func doc(title int, section, sub, heading, body string) Document {
	return Document{Key: model.Key{Title: title, Section: section, Subsection: sub}, Heading: heading, Body: body}
}

func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"§", "2014", "a", "eligible", "households"},
		Tokenize("§ 2014(a). Eligible Households of the"))
	assert.Equal(t, []string{"7", "u", "s", "c", "2012"}, Tokenize("7 U.S.C. 2012"))
	assert.Empty(t, Tokenize("the of and"))
}

func TestSearchFindsBodyAndHeading(t *testing.T) {
	idx := NewIndex()
	idx.AddGroup("v1", []Document{
		doc(7, "2014", "", "Eligible households", "Participation shall be limited to those households."),
		doc(7, "2017", "", "Value of allotment", "The value of the allotment shall be the thrifty food plan."),
	})

	res := idx.Search("allotment", Options{})
	require.Len(t, res, 1)
	assert.Equal(t, "2017", res[0].Section)
	assert.Contains(t, res[0].Snippet, "allotment")

	res = idx.Search("eligible", Options{})
	require.Len(t, res, 1)
	assert.Equal(t, "2014", res[0].Section)

	assert.Empty(t, idx.Search("nonexistent", Options{}))
	assert.Empty(t, idx.Search("", Options{}))
}

func TestSearchHeadingNeverBelowShorterBodyMatch(t *testing.T) {
	idx := NewIndex()
	idx.AddGroup("v1", []Document{
		doc(7, "2020", "", "", "reserve"),
		doc(7, "2030", "", "Reserve", "Funds held for operations of the program over several years."),
	})

	res := idx.Search("reserve", Options{})
	require.Len(t, res, 2)
	assert.Equal(t, "2030", res[0].Section)
	assert.Greater(t, res[0].Score, res[1].Score)
}

func TestSearchDeterministicOrderingAndTies(t *testing.T) {
	idx := NewIndex()
	idx.AddGroup("v1", []Document{
		doc(7, "2015", "", "", "income limit"),
		doc(7, "202", "", "", "income limit"),
		doc(5, "9", "", "", "income limit"),
	})

	first := idx.Search("income", Options{})
	require.Len(t, first, 3)
	assert.Equal(t, model.Key{Title: 5, Section: "9"}, first[0].Key())
	assert.Equal(t, model.Key{Title: 7, Section: "202"}, first[1].Key())
	assert.Equal(t, model.Key{Title: 7, Section: "2015"}, first[2].Key())

	for i := 0; i < 5; i++ {
		assert.Equal(t, first, idx.Search("income", Options{}))
	}
}

func TestSearchTitleScopeAndLimit(t *testing.T) {
	idx := NewIndex()
	idx.AddGroup("v1", []Document{
		doc(7, "1", "", "", "benefit"),
		doc(7, "2", "", "", "benefit"),
		doc(26, "1", "", "", "benefit"),
	})

	res := idx.Search("benefit", Options{Title: 26})
	require.Len(t, res, 1)
	assert.Equal(t, 26, res[0].Title)

	assert.Len(t, idx.Search("benefit", Options{Limit: 2}), 2)
}

func TestSearchSectionNumbersAndSymbol(t *testing.T) {
	idx := NewIndex()
	idx.AddGroup("v1", []Document{
		doc(7, "2014", "(a)", "", "as defined in § 2012 of this title"),
	})

	res := idx.Search("§ 2012", Options{})
	require.Len(t, res, 1)
	assert.Equal(t, "(a)", res[0].Subsection)
}

func TestSearchGroupsDedupeAndRemoval(t *testing.T) {
	idx := NewIndex()
	idx.AddGroup("chapter", []Document{doc(7, "2014", "", "Eligible households", "text")})
	idx.AddGroup("single", []Document{doc(7, "2014", "", "Eligible households", "text")})

	assert.Len(t, idx.Search("eligible", Options{}), 1)

	idx.RemoveGroup("chapter")
	assert.Len(t, idx.Search("eligible", Options{}), 1)

	idx.Swap([]string{"single"}, "", nil)
	assert.Empty(t, idx.Search("eligible", Options{}))
	assert.Equal(t, 0, idx.Len())
}

func TestSnippetWindow(t *testing.T) {
	long := "Lorem ipsum dolor sit amet consectetur adipiscing elit sed do eiusmod tempor incididunt ut labore " +
		"et dolore magna aliqua target word appears here and then the text keeps going for quite a while longer " +
		"so that the snippet must be truncated on both ends of the window."
	idx := NewIndex()
	idx.AddGroup("v1", []Document{doc(1, "1", "", "", long)})

	res := idx.Search("target", Options{})
	require.Len(t, res, 1)
	assert.Contains(t, res[0].Snippet, "target word")
	assert.True(t, len([]rune(res[0].Snippet)) < len([]rune(long)))
	assert.Equal(t, "…", string([]rune(res[0].Snippet)[0]))
}
