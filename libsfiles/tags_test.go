package libsfiles

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWellFormedTag(t *testing.T) {
	for _, good := range []string{"hot_in", "cold_out_2", "t_out", "sig_fc", "he_7", "x_1"} {
		require.True(t, wellFormedTag(good), "entry %q", good)
	}
	for _, bad := range []string{"", "solo", "_in", "hot_", "hot__in", "hot-in", "hot_i n"} {
		require.False(t, wellFormedTag(bad), "entry %q", bad)
	}
}

func TestTagRecordClassification(t *testing.T) {
	var r TagRecord
	r.add("hot_in")
	r.add("cold_out_3")
	r.add("t_out")
	r.add("b_in")
	r.add("sig_fc")
	r.add("he_7")

	require.Equal(t, []HeatTag{
		{Group: 1, Side: HotSide, Port: PortIn},
		{Group: 3, Side: ColdSide, Port: PortOut},
	}, r.HeatX)
	require.Equal(t, []ColumnTag{
		{End: TopEnd, Port: PortOut},
		{End: BottomEnd, Port: PortIn},
	}, r.Column)
	require.Equal(t, []SignalTag{{Role: "fc"}}, r.Signal)
	require.Equal(t, []string{"he_7"}, r.Other)
	require.Equal(t, 6, r.NumEntries())
}

func TestTagRecordUnrecognizedGroupStaysOpaque(t *testing.T) {
	var r TagRecord
	r.add("hot_in_0")
	r.add("hot_in_x")
	require.Empty(t, r.HeatX)
	require.Equal(t, []string{"hot_in_0", "hot_in_x"}, r.Other)
}

func TestTagRecordEntriesCanonicalOrder(t *testing.T) {
	var a, b TagRecord
	for _, e := range []string{"sig_fc", "cold_out", "t_in", "hot_in"} {
		a.add(e)
	}
	for _, e := range []string{"hot_in", "t_in", "sig_fc", "cold_out"} {
		b.add(e)
	}
	a.normalize()
	b.normalize()
	require.Equal(t, a.entries(), b.entries())
	require.Equal(t, []string{"hot_in", "cold_out", "t_in", "sig_fc"}, a.entries())
}

func TestTagRecordDefaultGroupElidedOnRender(t *testing.T) {
	require.Equal(t, "hot_in", HeatTag{Group: 1, Side: HotSide, Port: PortIn}.String())
	require.Equal(t, "hot_in_2", HeatTag{Group: 2, Side: HotSide, Port: PortIn}.String())
}

func TestTagRecordMerge(t *testing.T) {
	var a, b TagRecord
	a.add("hot_in")
	b.add("cold_in")
	b.add("sig_fc")
	a.merge(b)
	require.Equal(t, 3, a.NumEntries())
	require.Equal(t, []string{"hot_in", "cold_in", "sig_fc"}, a.entries())
}
