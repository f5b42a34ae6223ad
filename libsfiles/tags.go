package libsfiles

import (
	"sort"
	"strconv"
	"strings"
)

// PortDir is the direction of a tagged port relative to its unit.
type PortDir int8

const (
	PortIn PortDir = iota + 1
	PortOut
)

func (p PortDir) String() string {
	if p == PortIn {
		return "in"
	}
	return "out"
}

// HeatSide distinguishes the hot and cold passes of an exchanger.
type HeatSide int8

const (
	HotSide HeatSide = iota + 1
	ColdSide
)

func (s HeatSide) String() string {
	if s == HotSide {
		return "hot"
	}
	return "cold"
}

// ColumnEnd distinguishes top and bottom column connectivity.
type ColumnEnd int8

const (
	TopEnd ColumnEnd = iota + 1
	BottomEnd
)

func (e ColumnEnd) String() string {
	if e == TopEnd {
		return "t"
	}
	return "b"
}

// HeatTag is one heat-integration annotation: the pairing group, which side
// of the exchange the stream is on, and the port role.
type HeatTag struct {
	Group int
	Side  HeatSide
	Port  PortDir
}

func (t HeatTag) String() string {
	s := t.Side.String() + "_" + t.Port.String()
	if t.Group != 1 {
		s += "_" + strconv.Itoa(t.Group)
	}
	return s
}

// ColumnTag is one column-connectivity annotation.
type ColumnTag struct {
	End  ColumnEnd
	Port PortDir
}

func (t ColumnTag) String() string {
	return t.End.String() + "_" + t.Port.String()
}

// SignalTag is one signal annotation, e.g. a controller role.
type SignalTag struct {
	Role string
}

func (t SignalTag) String() string {
	return "sig_" + t.Role
}

// TagRecord is the per-edge annotation record: three ordered sequences of
// recognized entries, plus a passthrough list for well-formed entries the
// codec does not interpret.  Empty sequences are the default.
type TagRecord struct {
	HeatX  []HeatTag
	Column []ColumnTag
	Signal []SignalTag
	Other  []string
}

func (r *TagRecord) IsEmpty() bool {
	return len(r.HeatX) == 0 && len(r.Column) == 0 && len(r.Signal) == 0 && len(r.Other) == 0
}

// NumEntries counts every entry across the four sequences.
func (r *TagRecord) NumEntries() int {
	return len(r.HeatX) + len(r.Column) + len(r.Signal) + len(r.Other)
}

// wellFormedTag reports whether one tag-block entry matches the
// kind_qualifier grammar: two or more alphanumeric words joined by '_'.
func wellFormedTag(entry string) bool {
	parts := strings.Split(entry, "_")
	if len(parts) < 2 {
		return false
	}
	for _, p := range parts {
		if len(p) == 0 {
			return false
		}
		for _, r := range p {
			alnum := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
			if !alnum {
				return false
			}
		}
	}
	return true
}

// add classifies one well-formed entry into the record.  Recognized shapes
// are interpreted; anything else is preserved opaquely.
func (r *TagRecord) add(entry string) {
	parts := strings.Split(entry, "_")

	if side, port, ok := heatParts(parts); ok {
		group := 1
		if len(parts) == 3 {
			if g, err := strconv.Atoi(parts[2]); err == nil && g > 0 {
				group = g
			} else {
				r.Other = append(r.Other, entry)
				return
			}
		}
		r.HeatX = append(r.HeatX, HeatTag{Group: group, Side: side, Port: port})
		return
	}

	if len(parts) == 2 && (parts[0] == "t" || parts[0] == "b") {
		if port, ok := portOf(parts[1]); ok {
			end := TopEnd
			if parts[0] == "b" {
				end = BottomEnd
			}
			r.Column = append(r.Column, ColumnTag{End: end, Port: port})
			return
		}
	}

	if parts[0] == "sig" {
		r.Signal = append(r.Signal, SignalTag{Role: strings.Join(parts[1:], "_")})
		return
	}

	r.Other = append(r.Other, entry)
}

func heatParts(parts []string) (HeatSide, PortDir, bool) {
	if len(parts) != 2 && len(parts) != 3 {
		return 0, 0, false
	}
	var side HeatSide
	switch parts[0] {
	case "hot":
		side = HotSide
	case "cold":
		side = ColdSide
	default:
		return 0, 0, false
	}
	port, ok := portOf(parts[1])
	return side, port, ok
}

func portOf(s string) (PortDir, bool) {
	switch s {
	case "in":
		return PortIn, true
	case "out":
		return PortOut, true
	}
	return 0, false
}

// entries renders the record back to tag-block entries in canonical order:
// heat-integration, column, signal, then opaque entries.
func (r *TagRecord) entries() []string {
	out := make([]string, 0, r.NumEntries())
	for _, t := range r.HeatX {
		out = append(out, t.String())
	}
	for _, t := range r.Column {
		out = append(out, t.String())
	}
	for _, t := range r.Signal {
		out = append(out, t.String())
	}
	out = append(out, r.Other...)
	return out
}

// merge absorbs another record, then normalizes ordering so records built
// in different recording orders compare equal.
func (r *TagRecord) merge(other TagRecord) {
	r.HeatX = append(r.HeatX, other.HeatX...)
	r.Column = append(r.Column, other.Column...)
	r.Signal = append(r.Signal, other.Signal...)
	r.Other = append(r.Other, other.Other...)
	r.normalize()
}

// normalize sorts each sequence into its canonical order.
func (r *TagRecord) normalize() {
	sort.Slice(r.HeatX, func(i, j int) bool {
		a, b := r.HeatX[i], r.HeatX[j]
		if a.Group != b.Group {
			return a.Group < b.Group
		}
		if a.Side != b.Side {
			return a.Side < b.Side
		}
		return a.Port < b.Port
	})
	sort.Slice(r.Column, func(i, j int) bool {
		a, b := r.Column[i], r.Column[j]
		if a.End != b.End {
			return a.End < b.End
		}
		return a.Port < b.Port
	})
	sort.Slice(r.Signal, func(i, j int) bool {
		return r.Signal[i].Role < r.Signal[j].Role
	})
	sort.Strings(r.Other)
}

func (r TagRecord) clone() TagRecord {
	return TagRecord{
		HeatX:  append([]HeatTag(nil), r.HeatX...),
		Column: append([]ColumnTag(nil), r.Column...),
		Signal: append([]SignalTag(nil), r.Signal...),
		Other:  append([]string(nil), r.Other...),
	}
}
