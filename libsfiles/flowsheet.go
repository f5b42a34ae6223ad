package libsfiles

import (
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/sfiles-systems/gosfiles/gosfiles"
)

// UnitID names one process unit instance: an enumerated unit-operation code,
// a one-based instance index, and an optional sub-stream index used for
// heat-integration sub-nodes.  (Type, Index, Sub) is unique within a graph.
type UnitID struct {
	Type  string
	Index int // 0 when numbering has been stripped or not yet assigned
	Sub   int // 0 when absent
}

func (id UnitID) String() string {
	if id.Index == 0 {
		return id.Type
	}
	s := id.Type + "-" + strconv.Itoa(id.Index)
	if id.Sub > 0 {
		s += "/" + strconv.Itoa(id.Sub)
	}
	return s
}

// Compare orders UnitIDs by (Type, Index, Sub).
func (id UnitID) Compare(other UnitID) int {
	if d := strings.Compare(id.Type, other.Type); d != 0 {
		return d
	}
	if id.Index != other.Index {
		return id.Index - other.Index
	}
	return id.Sub - other.Sub
}

// NodeRef is a stable arena index addressing one node of a Flowsheet.
type NodeRef int32

const NilNode NodeRef = -1

// EdgeKind discriminates process streams from control connections.
type EdgeKind int8

const (
	MaterialEdge EdgeKind = iota // a physical stream between units
	SignalEdge                   // a non-material control connection
)

// Edge is a directed connection between two nodes.  At most one edge of a
// given kind may connect the same ordered node pair; the encoder enforces
// this precondition.
type Edge struct {
	From NodeRef
	To   NodeRef
	Kind EdgeKind
	Tags TagRecord
}

// Flowsheet is a directed graph of process units.  Nodes and edges live in
// arenas addressed by small stable indices; edges reference node ids, never
// object identities.  The graph may be disconnected.
type Flowsheet struct {
	nodes []UnitID
	edges []Edge
	byID  map[UnitID]NodeRef
	next  map[string]int // per-type index auto-assignment
}

func NewFlowsheet() *Flowsheet {
	return &Flowsheet{
		byID: make(map[UnitID]NodeRef),
		next: make(map[string]int),
	}
}

// AddUnit adds a node of the given unit-operation type, assigning the next
// free instance index for that type.
func (X *Flowsheet) AddUnit(unitType string) NodeRef {
	X.next[unitType]++
	id := UnitID{Type: unitType, Index: X.next[unitType]}
	ref, _ := X.AddNode(id)
	return ref
}

// AddNode adds a node with an explicit UnitID.
func (X *Flowsheet) AddNode(id UnitID) (NodeRef, error) {
	if _, dup := X.byID[id]; dup {
		return NilNode, errors.Wrapf(gosfiles.ErrDuplicateUnit, "unit %s", id)
	}
	ref := NodeRef(len(X.nodes))
	X.nodes = append(X.nodes, id)
	X.byID[id] = ref
	if id.Index > X.next[id.Type] {
		X.next[id.Type] = id.Index
	}
	return ref, nil
}

// AddStream adds a material edge and returns it for tag attachment.
func (X *Flowsheet) AddStream(from, to NodeRef) *Edge {
	return X.addEdge(from, to, MaterialEdge)
}

// AddSignal adds a signal (control) edge.
func (X *Flowsheet) AddSignal(from, to NodeRef) *Edge {
	return X.addEdge(from, to, SignalEdge)
}

func (X *Flowsheet) addEdge(from, to NodeRef, kind EdgeKind) *Edge {
	X.edges = append(X.edges, Edge{From: from, To: to, Kind: kind})
	return &X.edges[len(X.edges)-1]
}

func (X *Flowsheet) NumNodes() int { return len(X.nodes) }
func (X *Flowsheet) NumEdges() int { return len(X.edges) }

// Node returns the UnitID of the given node.
func (X *Flowsheet) Node(ref NodeRef) UnitID { return X.nodes[ref] }

// NodeRefByID resolves a UnitID to its arena index.
func (X *Flowsheet) NodeRefByID(id UnitID) (NodeRef, bool) {
	ref, ok := X.byID[id]
	return ref, ok
}

// Nodes exposes the node arena.  The slice is owned by the Flowsheet and
// must be treated as read-only.
func (X *Flowsheet) Nodes() []UnitID { return X.nodes }

// Edges exposes the edge arena.  The slice is owned by the Flowsheet and
// must be treated as read-only.
func (X *Flowsheet) Edges() []Edge { return X.edges }

// FindEdge returns the edge of the given kind between an ordered node pair,
// or nil.
func (X *Flowsheet) FindEdge(from, to NodeRef, kind EdgeKind) *Edge {
	for i := range X.edges {
		e := &X.edges[i]
		if e.From == from && e.To == to && e.Kind == kind {
			return e
		}
	}
	return nil
}

// MaterialInDegree counts incoming material edges of a node.
func (X *Flowsheet) MaterialInDegree(ref NodeRef) int {
	n := 0
	for i := range X.edges {
		if X.edges[i].Kind == MaterialEdge && X.edges[i].To == ref {
			n++
		}
	}
	return n
}

// Clone returns a deep copy sharing no mutable state with X.
func (X *Flowsheet) Clone() *Flowsheet {
	c := NewFlowsheet()
	c.nodes = append(c.nodes, X.nodes...)
	c.edges = make([]Edge, len(X.edges))
	for i := range X.edges {
		e := X.edges[i]
		e.Tags = e.Tags.clone()
		c.edges[i] = e
	}
	for id, ref := range X.byID {
		c.byID[id] = ref
	}
	for t, n := range X.next {
		c.next[t] = n
	}
	return c
}

// renumber reassigns instance indices per type so that (Type, Index) pairs
// are unique and ordered by first appearance.  Sub-nodes that shared an
// index keep sharing the reassigned one; the grouping keys are the indices
// in effect when renumber is called.
func (X *Flowsheet) renumber() {
	counters := make(map[string]int)
	groups := make(map[UnitID]int) // (Type, Index) of sub-node groups
	byID := make(map[UnitID]NodeRef, len(X.nodes))

	for i, id := range X.nodes {
		if id.Sub > 0 {
			key := UnitID{Type: id.Type, Index: id.Index}
			idx, seen := groups[key]
			if !seen {
				counters[id.Type]++
				idx = counters[id.Type]
				groups[key] = idx
			}
			id.Index = idx
		} else {
			counters[id.Type]++
			id.Index = counters[id.Type]
		}
		X.nodes[i] = id
		byID[id] = NodeRef(i)
	}

	X.byID = byID
	X.next = counters
}

// sortEdges orders edges deterministically by endpoint UnitIDs and kind,
// used after normalization so rewritten graphs compare equal regardless of
// recording order.
func (X *Flowsheet) sortEdges() {
	sort.SliceStable(X.edges, func(i, j int) bool {
		a, b := &X.edges[i], &X.edges[j]
		if d := X.nodes[a.From].Compare(X.nodes[b.From]); d != 0 {
			return d < 0
		}
		if d := X.nodes[a.To].Compare(X.nodes[b.To]); d != 0 {
			return d < 0
		}
		return a.Kind < b.Kind
	})
}
