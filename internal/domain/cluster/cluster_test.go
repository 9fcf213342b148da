package cluster

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentifier_Compare(t *testing.T) {
	ids := []Identifier{SpeciesID("a"), TermID("chebi:2"), TermID("chebi:1"), SpeciesID("0")}
	SortIdentifiers(ids)
	assert.Equal(t, []Identifier{TermID("chebi:1"), TermID("chebi:2"), SpeciesID("0"), SpeciesID("a")}, ids)
	assert.Equal(t, "term:chebi:1", TermID("chebi:1").String())
	assert.True(t, SpeciesID("x").IsSpecies())
	assert.False(t, SpeciesID("x").IsTerm())
}

func TestSet_Operations(t *testing.T) {
	a := NewSet(TermID("1"), TermID("2"), TermID("3"))
	b := NewSet(TermID("2"), TermID("3"), SpeciesID("s"))

	assert.Equal(t, 2, a.IntersectLen(b))
	assert.True(t, a.Intersect(b).Equal(NewSet(TermID("2"), TermID("3"))))

	c := a.Clone()
	c.Subtract(b)
	assert.True(t, c.Equal(NewSet(TermID("1"))))
	assert.Equal(t, 3, a.Len())
}

func TestSet_KeyIsOrderIndependent(t *testing.T) {
	a := NewSet(TermID("x"), TermID("y"))
	b := NewSet(TermID("y"), TermID("x"))
	assert.Equal(t, a.Key(), b.Key())
	assert.NotEqual(t, a.Key(), NewSet(TermID("x"), SpeciesID("y")).Key())
}

func TestPath_ChildDoesNotAlias(t *testing.T) {
	root := NewPath(TermSegment("chebi:1"))
	base := root.Child(0)
	a := base.Child(1)
	b := base.Child(2)

	require.Len(t, a, 3)
	assert.Equal(t, 1, a[2].Index)
	assert.Equal(t, 2, b[2].Index)
	assert.Len(t, base, 2)
	assert.True(t, a.HasPrefix(base))
	assert.True(t, a.HasPrefix(root))
	assert.False(t, base.HasPrefix(a))
}

func TestPath_Compare(t *testing.T) {
	term := NewPath(TermSegment("chebi:1"))
	paths := []Path{
		term.Child(1),
		NewPath(SpeciesSegment("s1")),
		term,
		term.Child(0),
		NewPath(IndexSegment(5)),
		term.WithTerm("chebi:0"),
	}
	SortPaths(paths)

	assert.Equal(t, "5", paths[0].String())
	assert.True(t, paths[1].Equal(term))
	assert.Equal(t, "chebi:1/0", paths[2].String())
	assert.Equal(t, "chebi:1/1", paths[3].String())
	assert.Equal(t, "chebi:1/chebi:0", paths[4].String())
	assert.Equal(t, "s1", paths[5].String())
}

func TestPath_KeyIsCollisionFree(t *testing.T) {
	a := NewPath(TermSegment("a/b"))
	b := NewPath(TermSegment("a"), TermSegment("b"))
	c := NewPath(TermSegment("1"))
	d := NewPath(IndexSegment(1))

	assert.Equal(t, a.String(), b.String())
	assert.NotEqual(t, a.Key(), b.Key())
	assert.NotEqual(t, c.Key(), d.Key())
	assert.Equal(t, a.Key(), NewPath(TermSegment("a/b")).Key())
}

func TestSingleton(t *testing.T) {
	assert.Equal(t, SegmentTerm, Singleton(TermID("chebi:1"))[0].Kind)
	assert.Equal(t, SegmentSpecies, Singleton(SpeciesID("M_x"))[0].Kind)

	head, ok := Singleton(TermID("chebi:1")).Head()
	require.True(t, ok)
	assert.Equal(t, "chebi:1", head.ID)

	_, ok = Path(nil).Head()
	assert.False(t, ok)
}

func TestMap_GroupsAreDeterministic(t *testing.T) {
	root := NewPath(TermSegment("chebi:1"))
	m := Map{
		TermID("t3"):    root.Child(1),
		TermID("t1"):    root.Child(0),
		SpeciesID("s1"): root.Child(0),
		TermID("t2"):    root.Child(0),
	}

	groups := m.Groups()
	require.Len(t, groups, 2)
	assert.Equal(t, "chebi:1/0", groups[0].Path.String())
	assert.Equal(t, []Identifier{TermID("t1"), TermID("t2"), SpeciesID("s1")}, groups[0].Members)
	assert.Equal(t, []Identifier{TermID("t3")}, groups[1].Members)
	assert.True(t, m.Members(root.Child(0)).Equal(NewSet(TermID("t1"), TermID("t2"), SpeciesID("s1"))))
}

func TestMap_Apply(t *testing.T) {
	root := NewPath(TermSegment("r"))
	m := Map{TermID("a"): root, TermID("b"): root}
	c := m.Clone()

	m.Apply([]Assignment{
		{ID: TermID("a"), Path: root.Child(0)},
		{ID: TermID("b"), Path: nil},
	})

	assert.True(t, m[TermID("a")].Equal(root.Child(0)))
	_, ok := m[TermID("b")]
	assert.False(t, ok)
	assert.True(t, c[TermID("a")].Equal(root))
}
