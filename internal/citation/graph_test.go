package citation

import (
	"testing"

	"github.com/jjenkins/lawarchive/internal/model"
	"github.com/stretchr/testify/assert"
)

func cite(fromSec, fromSub, toSec string) model.Citation {
	c := model.Citation{Source: model.Key{Title: 7, Section: fromSec, Subsection: fromSub}}
	if toSec != "" {
		c.Target = &model.Key{Title: 7, Section: toSec}
	}
	return c
}

func ref(section string) model.Key {
	return model.Key{Title: 7, Section: section}
}

func TestGraphDirection(t *testing.T) {
	g := NewGraph()
	g.AddGroup("v1", []model.Citation{
		cite("2014", "(a)", "2012"),
		cite("2014", "(b)", "2012"),
		cite("2017", "", "2014"),
		cite("2014", "", "2014"),
		cite("2014", "(c)", ""),
	})

	assert.Equal(t, []model.Key{ref("2014")}, g.ReferencesTo(ref("2012")))
	assert.Equal(t, []model.Key{ref("2012")}, g.ReferencedBy(ref("2014")))
	assert.Equal(t, []model.Key{ref("2017")}, g.ReferencesTo(ref("2014")))
	assert.Empty(t, g.ReferencedBy(ref("2012")))
	assert.NotNil(t, g.ReferencedBy(ref("9999")))
	assert.Equal(t, 1, g.Dangling(ref("2014")))
}

func TestGraphIndexesAreMutuallyDerivable(t *testing.T) {
	g := NewGraph()
	g.AddGroup("v1", []model.Citation{
		cite("2014", "", "2012"),
		cite("2014", "", "2015"),
		cite("2017", "", "2012"),
	})

	for _, e := range g.Edges() {
		assert.Contains(t, g.ReferencedBy(e.From), e.To)
		assert.Contains(t, g.ReferencesTo(e.To), e.From)
	}
	assert.Len(t, g.Edges(), 3)
}

func TestGraphGroupsAreReferenceCounted(t *testing.T) {
	g := NewGraph()
	g.AddGroup("chapter", []model.Citation{cite("2014", "", "2012")})
	g.AddGroup("single", []model.Citation{cite("2014", "", "2012")})

	g.RemoveGroup("chapter")
	assert.Equal(t, []model.Key{ref("2014")}, g.ReferencesTo(ref("2012")))

	g.RemoveGroup("single")
	assert.Empty(t, g.ReferencesTo(ref("2012")))
	assert.Empty(t, g.Edges())
}

func TestGraphSwap(t *testing.T) {
	g := NewGraph()
	g.AddGroup("old", []model.Citation{cite("2014", "", "2012"), cite("2014", "(a)", "")})

	g.Swap([]string{"old"}, "new", []model.Citation{cite("2014", "", "2020")})

	assert.Empty(t, g.ReferencesTo(ref("2012")))
	assert.Equal(t, []model.Key{ref("2014")}, g.ReferencesTo(ref("2020")))
	assert.Equal(t, 0, g.Dangling(ref("2014")))
}
