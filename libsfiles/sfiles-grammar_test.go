package libsfiles_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sfiles-systems/gosfiles/gosfiles"
	"github.com/sfiles-systems/gosfiles/libsfiles"
)

func kindsOf(toks []libsfiles.Token) []libsfiles.TokenKind {
	kinds := make([]libsfiles.TokenKind, len(toks))
	for i, t := range toks {
		kinds[i] = t.Kind
	}
	return kinds
}

func TestTokenizeBasic(t *testing.T) {
	toks, err := libsfiles.Tokenize("(raw)(r)(hex){hot_in}(sep)(prod)")
	require.NoError(t, err)
	require.Equal(t, []libsfiles.TokenKind{
		libsfiles.TokNode, libsfiles.TokNode, libsfiles.TokNode,
		libsfiles.TokTagBlock, libsfiles.TokNode, libsfiles.TokNode,
	}, kindsOf(toks))
	require.Equal(t, "hot_in", toks[3].Tag)
	require.Equal(t, "hex", toks[2].Unit.Type)
}

func TestTokenizeUnitLiterals(t *testing.T) {
	toks, err := libsfiles.Tokenize("(hex-2/1)(splt3)")
	require.NoError(t, err)
	require.Equal(t, libsfiles.UnitID{Type: "hex", Index: 2, Sub: 1}, toks[0].Unit)
	require.Equal(t, libsfiles.UnitID{Type: "splt3"}, toks[1].Unit)

	_, err = libsfiles.Tokenize("(hex-0)")
	require.ErrorIs(t, err, gosfiles.ErrMalformedSyntax)
	_, err = libsfiles.Tokenize("(hex-1/0)")
	require.ErrorIs(t, err, gosfiles.ErrMalformedSyntax)
}

func TestTokenizeRejectsWhitespace(t *testing.T) {
	for _, in := range []string{"(raw) (r)", "(raw)\t(r)", "(raw)(r)\n", " (raw)"} {
		_, err := libsfiles.Tokenize(in)
		require.ErrorIs(t, err, gosfiles.ErrMalformedSyntax, "input %q", in)
	}
}

func TestTokenizeBalance(t *testing.T) {
	for _, in := range []string{
		"(a)[(b)",
		"(a)](b)",
		"<&|(a)",
		"(a)&|(b)",
		"(a)[(b)]]",
	} {
		_, err := libsfiles.Tokenize(in)
		require.ErrorIs(t, err, gosfiles.ErrMalformedSyntax, "input %q", in)
	}
}

func TestTokenizeMarkerRefs(t *testing.T) {
	toks, err := libsfiles.Tokenize("(a)<%12(b)%12")
	require.NoError(t, err)
	require.Equal(t, libsfiles.TokCycleOpen, toks[1].Kind)
	require.Equal(t, 12, toks[1].Ref)
	require.Equal(t, libsfiles.TokCycleClose, toks[3].Kind)
	require.Equal(t, 12, toks[3].Ref)

	// A bare digit run is consecutive single-digit closers, never one
	// two-digit index.
	toks, err = libsfiles.Tokenize("(a)12")
	require.NoError(t, err)
	require.Equal(t, []libsfiles.TokenKind{
		libsfiles.TokNode, libsfiles.TokCycleClose, libsfiles.TokCycleClose,
	}, kindsOf(toks))
	require.Equal(t, 1, toks[1].Ref)
	require.Equal(t, 2, toks[2].Ref)

	toks, err = libsfiles.Tokenize("(a)<_1(b)_1")
	require.NoError(t, err)
	require.Equal(t, libsfiles.TokSignalOpen, toks[1].Kind)
	require.Equal(t, libsfiles.TokSignalClose, toks[3].Kind)
}

func TestTokenizeTagRules(t *testing.T) {
	// Malformed entries
	for _, in := range []string{"(a)(b){hot-in}", "(a)(b){_x}", "(a)(b){x_}", "(a)(b){solo}"} {
		_, err := libsfiles.Tokenize(in)
		require.ErrorIs(t, err, gosfiles.ErrMalformedSyntax, "input %q", in)
	}

	// A tag block may only follow a unit, a closing marker, or another tag
	_, err := libsfiles.Tokenize("(a)[{hot_in}(b)]")
	require.ErrorIs(t, err, gosfiles.ErrMalformedSyntax)
	_, err = libsfiles.Tokenize("{hot_in}(a)")
	require.ErrorIs(t, err, gosfiles.ErrMalformedSyntax)

	// Empty blocks carry nothing and disappear
	toks, err := libsfiles.Tokenize("(a)(b){}")
	require.NoError(t, err)
	require.Len(t, toks, 2)

	// Stacked blocks each carry one entry
	toks, err = libsfiles.Tokenize("(a)(b){hot_in}{he_7}")
	require.NoError(t, err)
	require.Len(t, toks, 4)
	require.Equal(t, "he_7", toks[3].Tag)
}

func TestTokenizeOffsets(t *testing.T) {
	toks, err := libsfiles.Tokenize("(raw)[(r)]")
	require.NoError(t, err)
	require.Equal(t, 0, toks[0].Offset)
	require.Equal(t, 5, toks[1].Offset)
	require.Equal(t, 6, toks[2].Offset)

	_, err = libsfiles.Tokenize("(raw)(r)*")
	require.ErrorIs(t, err, gosfiles.ErrMalformedSyntax)
	require.Contains(t, err.Error(), "offset 8")
}
