package libsfiles_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sfiles-systems/gosfiles/gosfiles"
	"github.com/sfiles-systems/gosfiles/libsfiles"
)

func TestDefaultUnitNames(t *testing.T) {
	m := libsfiles.DefaultUnitNames()

	name, ok := m.NameOf("hex")
	require.True(t, ok)
	require.Equal(t, "HeatExchanger", name)

	code, ok := m.CodeOf("Reactor")
	require.True(t, ok)
	require.Equal(t, "r", code)

	_, ok = m.NameOf("nosuch")
	require.False(t, ok)
}

func TestUnitNamesStayBijective(t *testing.T) {
	m := libsfiles.NewUnitNames()
	require.NoError(t, m.Register("r", "Reactor"))

	// Re-registering the same pair is fine
	require.NoError(t, m.Register("r", "Reactor"))

	// Rebinding either side is not
	err := m.Register("r", "Reformer")
	require.ErrorIs(t, err, gosfiles.ErrBadUnitMapping)
	err = m.Register("rx", "Reactor")
	require.ErrorIs(t, err, gosfiles.ErrBadUnitMapping)

	require.Equal(t, 1, m.NumCodes())
}

func TestUnitNamesRejectUnwritableCodes(t *testing.T) {
	m := libsfiles.NewUnitNames()
	for _, code := range []string{"", "R", "1x", "he-x", "he x"} {
		err := m.Register(code, "Whatever")
		require.ErrorIs(t, err, gosfiles.ErrBadUnitMapping, "code %q", code)
	}
	err := m.Register("ok2", "")
	require.ErrorIs(t, err, gosfiles.ErrBadUnitMapping)
}
