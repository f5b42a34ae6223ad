package libsfiles

import (
	"github.com/pkg/errors"

	"github.com/sfiles-systems/gosfiles/gosfiles"
)

// UnitNames is a bijective mapping between the short unit-operation codes
// that appear in unit tokens and longer display names.  Both directions
// must stay unique; Register refuses anything that would break that.
type UnitNames struct {
	byCode map[string]string
	byName map[string]string
}

func NewUnitNames() *UnitNames {
	return &UnitNames{
		byCode: make(map[string]string),
		byName: make(map[string]string),
	}
}

// Register binds a unit code to a display name.  The code must be writable
// as a unit token: a lowercase letter followed by lowercase letters or
// digits.
func (m *UnitNames) Register(code, name string) error {
	if !validUnitCode(code) {
		return errors.Wrapf(gosfiles.ErrBadUnitMapping, "code %q is not a writable unit token", code)
	}
	if name == "" {
		return errors.Wrapf(gosfiles.ErrBadUnitMapping, "empty name for code %q", code)
	}
	if prev, ok := m.byCode[code]; ok && prev != name {
		return errors.Wrapf(gosfiles.ErrBadUnitMapping, "code %q already names %q", code, prev)
	}
	if prev, ok := m.byName[name]; ok && prev != code {
		return errors.Wrapf(gosfiles.ErrBadUnitMapping, "name %q already bound to %q", name, prev)
	}
	m.byCode[code] = name
	m.byName[name] = code
	return nil
}

// NameOf resolves a unit code to its display name.
func (m *UnitNames) NameOf(code string) (string, bool) {
	name, ok := m.byCode[code]
	return name, ok
}

// CodeOf resolves a display name back to its unit code.
func (m *UnitNames) CodeOf(name string) (string, bool) {
	code, ok := m.byName[name]
	return code, ok
}

func (m *UnitNames) NumCodes() int { return len(m.byCode) }

func validUnitCode(code string) bool {
	if len(code) == 0 || code[0] < 'a' || code[0] > 'z' {
		return false
	}
	for i := 1; i < len(code); i++ {
		c := code[i]
		if (c < 'a' || c > 'z') && (c < '0' || c > '9') {
			return false
		}
	}
	return true
}

// DefaultUnitNames returns the stock unit-operation vocabulary.
func DefaultUnitNames() *UnitNames {
	m := NewUnitNames()
	stock := [][2]string{
		{"raw", "RawMaterial"},
		{"prod", "Product"},
		{"mix", "Mixer"},
		{"splt", "Splitter"},
		{"r", "Reactor"},
		{"sep", "Separator"},
		{"hex", "HeatExchanger"},
		{"dist", "DistillationColumn"},
		{"rect", "RectificationColumn"},
		{"abs", "AbsorptionColumn"},
		{"extr", "Extractor"},
		{"flash", "Flash"},
		{"filt", "Filter"},
		{"tank", "Tank"},
		{"pump", "Pump"},
		{"comp", "Compressor"},
		{"expand", "Expander"},
		{"v", "Valve"},
		{"c", "Controller"},
	}
	for _, kv := range stock {
		if err := m.Register(kv[0], kv[1]); err != nil {
			panic(err) // the stock table is internally consistent
		}
	}
	return m
}
