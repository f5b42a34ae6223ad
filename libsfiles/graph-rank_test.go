package libsfiles_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sfiles-systems/gosfiles/libsfiles"
)

// chainSheet builds raw -> r -> sep -> prod with units added in the given
// order.
func chainSheet(t *testing.T, order []string) *libsfiles.Flowsheet {
	t.Helper()
	X := libsfiles.NewFlowsheet()
	for _, typ := range order {
		X.AddUnit(typ)
	}
	link := func(a, b string) {
		ra, _ := X.NodeRefByID(libsfiles.UnitID{Type: a, Index: 1})
		rb, _ := X.NodeRefByID(libsfiles.UnitID{Type: b, Index: 1})
		X.AddStream(ra, rb)
	}
	link("raw", "r")
	link("r", "sep")
	link("sep", "prod")
	return X
}

func TestRanksIgnoreInsertionOrder(t *testing.T) {
	a := chainSheet(t, []string{"raw", "r", "sep", "prod"})
	b := chainSheet(t, []string{"prod", "sep", "r", "raw"})

	ranksA := libsfiles.CanonicalRanks(a)
	ranksB := libsfiles.CanonicalRanks(b)

	for _, typ := range []string{"raw", "r", "sep", "prod"} {
		ra, _ := a.NodeRefByID(libsfiles.UnitID{Type: typ, Index: 1})
		rb, _ := b.NodeRefByID(libsfiles.UnitID{Type: typ, Index: 1})
		require.Equal(t, ranksA[ra], ranksB[rb], "rank of %s", typ)
	}
}

func TestRanksChainAllDistinct(t *testing.T) {
	X := chainSheet(t, []string{"raw", "r", "sep", "prod"})
	ranks := libsfiles.CanonicalRanks(X)
	seen := map[int]bool{}
	for _, rk := range ranks {
		require.False(t, seen[rk])
		seen[rk] = true
	}
}

func TestRanksSymmetricUnitsShareClass(t *testing.T) {
	X := libsfiles.NewFlowsheet()
	f1 := X.AddUnit("raw")
	f2 := X.AddUnit("raw")
	mix := X.AddUnit("mix")
	prod := X.AddUnit("prod")
	X.AddStream(f1, mix)
	X.AddStream(f2, mix)
	X.AddStream(mix, prod)

	ranks := libsfiles.CanonicalRanks(X)
	require.Equal(t, ranks[f1], ranks[f2])
	require.NotEqual(t, ranks[f1], ranks[mix])
	require.NotEqual(t, ranks[mix], ranks[prod])
}

func TestRanksSeparateTagAsymmetricFeeds(t *testing.T) {
	// Same degrees and types, but the feed streams carry different tags, so
	// the units must not share a class.
	X := libsfiles.NewFlowsheet()
	f1 := X.AddUnit("raw")
	f2 := X.AddUnit("raw")
	mix := X.AddUnit("mix")
	prod := X.AddUnit("prod")
	X.AddStream(f1, mix).Tags.Other = []string{"x_1"}
	X.AddStream(f2, mix).Tags.Other = []string{"y_1"}
	X.AddStream(mix, prod)

	ranks := libsfiles.CanonicalRanks(X)
	require.NotEqual(t, ranks[f1], ranks[f2])
}

func TestRanksRefineThroughNeighbors(t *testing.T) {
	// Two splitters with identical degrees but different neighborhoods must
	// separate during refinement.
	X := libsfiles.NewFlowsheet()
	raw := X.AddUnit("raw")
	s1 := X.AddUnit("splt")
	s2 := X.AddUnit("splt")
	r := X.AddUnit("r")
	p1 := X.AddUnit("prod")
	p2 := X.AddUnit("prod")
	p3 := X.AddUnit("prod")
	X.AddStream(raw, s1)
	X.AddStream(s1, s2)
	X.AddStream(s1, r)
	X.AddStream(s2, p1)
	X.AddStream(s2, p2)
	X.AddStream(r, p3)

	ranks := libsfiles.CanonicalRanks(X)
	require.NotEqual(t, ranks[s1], ranks[s2])
}
