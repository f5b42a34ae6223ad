package libsfiles_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sfiles-systems/gosfiles/gosfiles"
	"github.com/sfiles-systems/gosfiles/libsfiles"
)

func mustRef(t *testing.T, X *libsfiles.Flowsheet, id libsfiles.UnitID) libsfiles.NodeRef {
	t.Helper()
	ref, ok := X.NodeRefByID(id)
	require.True(t, ok, "unit %s not in graph", id)
	return ref
}

func requireStream(t *testing.T, X *libsfiles.Flowsheet, from, to libsfiles.UnitID) *libsfiles.Edge {
	t.Helper()
	e := X.FindEdge(mustRef(t, X, from), mustRef(t, X, to), libsfiles.MaterialEdge)
	require.NotNil(t, e, "no stream %s -> %s", from, to)
	return e
}

func unit(typ string, index int) libsfiles.UnitID {
	return libsfiles.UnitID{Type: typ, Index: index}
}

func TestParseLinearChain(t *testing.T) {
	X, err := libsfiles.Parse("(raw)(r)(sep)(prod)")
	require.NoError(t, err)
	require.Equal(t, 4, X.NumNodes())
	require.Equal(t, 3, X.NumEdges())
	requireStream(t, X, unit("raw", 1), unit("r", 1))
	requireStream(t, X, unit("r", 1), unit("sep", 1))
	requireStream(t, X, unit("sep", 1), unit("prod", 1))
}

func TestParseBranch(t *testing.T) {
	X, err := libsfiles.Parse("(raw)[(r)](hex)(sep)(prod)")
	require.NoError(t, err)
	requireStream(t, X, unit("raw", 1), unit("r", 1))
	requireStream(t, X, unit("raw", 1), unit("hex", 1))
	requireStream(t, X, unit("hex", 1), unit("sep", 1))
	require.Equal(t, 4, X.NumEdges())
}

func TestParseTagOnStream(t *testing.T) {
	X, err := libsfiles.Parse("(raw)(r)(hex){hot_in}(sep)(prod)")
	require.NoError(t, err)
	e := requireStream(t, X, unit("r", 1), unit("hex", 1))
	require.Equal(t, []libsfiles.HeatTag{{Group: 1, Side: libsfiles.HotSide, Port: libsfiles.PortIn}}, e.Tags.HeatX)
	require.True(t, requireStream(t, X, unit("raw", 1), unit("r", 1)).Tags.IsEmpty())
}

func TestParseIncomingBranch(t *testing.T) {
	X, err := libsfiles.Parse("(raw-1)<&|(raw-2)&|{cold_in}(mix)(prod)")
	require.NoError(t, err)
	requireStream(t, X, unit("raw", 1), unit("mix", 1))
	join := requireStream(t, X, unit("raw", 2), unit("mix", 1))
	require.Equal(t, []libsfiles.HeatTag{{Group: 1, Side: libsfiles.ColdSide, Port: libsfiles.PortIn}}, join.Tags.HeatX)
}

func TestParseRecycleDirection(t *testing.T) {
	// The unit bearing the closing digit is the source of the recycle.
	X, err := libsfiles.Parse("(raw)(r)<1(sep)1(prod)")
	require.NoError(t, err)
	requireStream(t, X, unit("sep", 1), unit("r", 1))
	require.Nil(t, X.FindEdge(
		mustRef(t, X, unit("r", 1)), mustRef(t, X, unit("sep", 1)), libsfiles.MaterialEdge))
}

func TestParseSignalEitherOrder(t *testing.T) {
	// Target marker first
	X, err := libsfiles.Parse("(raw)(v)<_1(prod)n|(c)_1{sig_fc}")
	require.NoError(t, err)
	sig := X.FindEdge(mustRef(t, X, unit("c", 1)), mustRef(t, X, unit("v", 1)), libsfiles.SignalEdge)
	require.NotNil(t, sig)
	require.Equal(t, []libsfiles.SignalTag{{Role: "fc"}}, sig.Tags.Signal)

	// Source marker first
	X, err = libsfiles.Parse("(c)_1{sig_fc}n|(raw)(v)<_1(prod)")
	require.NoError(t, err)
	sig = X.FindEdge(mustRef(t, X, unit("c", 1)), mustRef(t, X, unit("v", 1)), libsfiles.SignalEdge)
	require.NotNil(t, sig)
	require.Equal(t, []libsfiles.SignalTag{{Role: "fc"}}, sig.Tags.Signal)
}

func TestParseSeparator(t *testing.T) {
	X, err := libsfiles.Parse("(a)(b)n|(c)(d)")
	require.NoError(t, err)
	require.Equal(t, 4, X.NumNodes())
	require.Equal(t, 2, X.NumEdges())
	require.Nil(t, X.FindEdge(
		mustRef(t, X, unit("b", 1)), mustRef(t, X, unit("c", 1)), libsfiles.MaterialEdge))
}

func TestParseRenumbering(t *testing.T) {
	// Literal indices are cosmetic: instances renumber by first appearance.
	X, err := libsfiles.Parse("(r-7)(r-3)(r)")
	require.NoError(t, err)
	requireStream(t, X, unit("r", 1), unit("r", 2))
	requireStream(t, X, unit("r", 2), unit("r", 3))

	// Sub-stream units sharing a literal index keep sharing it.
	X, err = libsfiles.Parse("(raw)(hex-4/1)(r)(hex-4/2)(prod)")
	require.NoError(t, err)
	h1 := libsfiles.UnitID{Type: "hex", Index: 1, Sub: 1}
	h2 := libsfiles.UnitID{Type: "hex", Index: 1, Sub: 2}
	requireStream(t, X, unit("raw", 1), h1)
	requireStream(t, X, unit("r", 1), h2)
}

func TestParseTopologyErrors(t *testing.T) {
	cases := []string{
		"(a)<1(b)",          // cycle never closed
		"(a)1(b)",           // close without open
		"(a)<1(b)<1(c)11",   // index reopened while open
		"(a)<&|&|(b)",       // empty incoming branch
		"(a)<&|(b)&|n|(c)",  // incoming branch never joined
		"(a){hot_in}",       // tag with no stream
		"(a)<_1(b)",         // signal never paired
		"(hex-1/1)(hex-1/1)", // duplicate unit instance
	}
	for _, in := range cases {
		_, err := libsfiles.Parse(in)
		require.ErrorIs(t, err, gosfiles.ErrMalformedTopology, "input %q", in)
	}
}

func TestBuildFlowsheetRejectsUnbalancedClosers(t *testing.T) {
	// Tokenize refuses these strings outright, but BuildFlowsheet is public
	// and must not trust its caller to have balanced the stream.
	node := libsfiles.Token{Kind: libsfiles.TokNode, Unit: libsfiles.UnitID{Type: "r", Index: 1}}
	cases := [][]libsfiles.Token{
		{node, {Kind: libsfiles.TokBranchClose}},
		{node, {Kind: libsfiles.TokIncomingClose}},
	}
	for _, toks := range cases {
		_, err := libsfiles.BuildFlowsheet(toks)
		require.ErrorIs(t, err, gosfiles.ErrMalformedTopology)
	}
}

func TestParseAmbiguousHeatGroup(t *testing.T) {
	// Three streams in one group with no sub-stream units cannot pair.
	_, err := libsfiles.Parse("(raw)(hex){hot_in}(r){hot_out}(sep){hot_in}(prod)")
	require.ErrorIs(t, err, gosfiles.ErrAmbiguousHeatIntegration)
}
