package libsfiles

import (
	"sort"

	"github.com/pkg/errors"
	"github.com/plan-systems/klog"

	"github.com/sfiles-systems/gosfiles/gosfiles"
)

// validateHeatGroups rejects heat-integration annotations whose pass pairing
// cannot be resolved.  Up to two tagged streams per group always resolve.
// Beyond that, the group needs an even stream count and every tagged stream
// must touch a sub-stream unit, since only the n/1, n/2 sub-units make the
// in/out pairing explicit.
func validateHeatGroups(X *Flowsheet) error {
	groupEdges := map[int][]int{}
	for i := range X.edges {
		for _, ht := range X.edges[i].Tags.HeatX {
			groupEdges[ht.Group] = append(groupEdges[ht.Group], i)
		}
	}

	groups := make([]int, 0, len(groupEdges))
	for g := range groupEdges {
		groups = append(groups, g)
	}
	sort.Ints(groups)

	for _, g := range groups {
		edges := groupEdges[g]
		if len(edges) <= 2 {
			continue
		}
		if len(edges)%2 != 0 {
			return errors.Wrapf(gosfiles.ErrAmbiguousHeatIntegration,
				"heat group %d tags %d streams", g, len(edges))
		}
		for _, ei := range edges {
			e := &X.edges[ei]
			if X.nodes[e.From].Sub == 0 && X.nodes[e.To].Sub == 0 {
				return errors.Wrapf(gosfiles.ErrAmbiguousHeatIntegration,
					"heat group %d needs sub-stream units to pair %d streams", g, len(edges))
			}
		}
	}
	return nil
}

// NormalizeHeatIntegration rewrites a flowsheet into one of the two
// equivalent heat-integration representations: SplitHeatX materializes one
// sub-stream unit per exchanger pass, MergeHeatX collapses sub-stream
// families back into single units.  The input is not modified.
func NormalizeHeatIntegration(X *Flowsheet, mode gosfiles.NormalizeMode) (*Flowsheet, error) {
	if err := validateHeatGroups(X); err != nil {
		return nil, err
	}
	switch mode {
	case gosfiles.MergeHeatX:
		return mergeHeatX(X)
	case gosfiles.SplitHeatX:
		return splitHeatX(X)
	}
	return nil, errors.Errorf("unknown heat integration mode %d", mode)
}

// passKey identifies one exchanger pass: a heat group traversed on one side.
type passKey struct {
	Group int
	Side  HeatSide
}

// splitHeatX gives every exchanger pass its own sub-stream unit.  A unit is
// split only when its incident streams describe more than one pass; passes
// order by (group, hot before cold) so sub-indices are canonical.
func splitHeatX(X *Flowsheet) (*Flowsheet, error) {
	passes := make([]map[passKey]int, len(X.nodes)) // pass -> sub index, per node

	for v := range X.nodes {
		if X.nodes[v].Sub > 0 {
			continue
		}
		keys := map[passKey]struct{}{}
		for i := range X.edges {
			e := &X.edges[i]
			if e.Kind != MaterialEdge || (e.From != NodeRef(v) && e.To != NodeRef(v)) {
				continue
			}
			if ht, ok, _ := passTagFor(e, e.From == NodeRef(v)); ok {
				keys[passKey{ht.Group, ht.Side}] = struct{}{}
			}
		}
		if len(keys) < 2 {
			continue
		}
		ordered := make([]passKey, 0, len(keys))
		for k := range keys {
			ordered = append(ordered, k)
		}
		sort.Slice(ordered, func(i, j int) bool {
			if ordered[i].Group != ordered[j].Group {
				return ordered[i].Group < ordered[j].Group
			}
			return ordered[i].Side < ordered[j].Side
		})
		passes[v] = make(map[passKey]int, len(ordered))
		for sub, k := range ordered {
			passes[v][k] = sub + 1
		}
	}

	out := NewFlowsheet()
	first := make([]NodeRef, len(X.nodes)) // new ref of the node (or its first pass)
	for v, id := range X.nodes {
		if passes[v] == nil {
			ref, err := out.AddNode(id)
			if err != nil {
				return nil, err
			}
			first[v] = ref
			continue
		}
		for sub := 1; sub <= len(passes[v]); sub++ {
			ref, err := out.AddNode(UnitID{Type: id.Type, Index: id.Index, Sub: sub})
			if err != nil {
				return nil, err
			}
			if sub == 1 {
				first[v] = ref
			}
		}
	}

	for i := range X.edges {
		e := &X.edges[i]
		from, err := splitEndpoint(X, e, e.From, true, passes, first)
		if err != nil {
			return nil, err
		}
		to, err := splitEndpoint(X, e, e.To, false, passes, first)
		if err != nil {
			return nil, err
		}
		ne := out.addEdge(from, to, e.Kind)
		ne.Tags = e.Tags.clone()
	}

	out.renumber()
	out.sortEdges()
	return out, nil
}

// splitEndpoint resolves which sub-stream unit an edge attaches to after a
// split.  Streams without a matching pass tag (signal lines, untagged
// streams) attach to the first pass.
func splitEndpoint(X *Flowsheet, e *Edge, v NodeRef, isFrom bool, passes []map[passKey]int, first []NodeRef) (NodeRef, error) {
	if passes[v] == nil {
		return first[v], nil
	}
	ht, ok, ambiguous := passTagFor(e, isFrom)
	if ambiguous {
		return NilNode, errors.Wrapf(gosfiles.ErrAmbiguousHeatIntegration,
			"stream %s -> %s tags multiple passes", X.nodes[e.From], X.nodes[e.To])
	}
	if !ok {
		return first[v], nil
	}
	if sub, found := passes[v][passKey{ht.Group, ht.Side}]; found {
		return first[v] + NodeRef(sub-1), nil
	}
	return first[v], nil
}

// passTagFor picks the heat tag describing this endpoint of the edge: an
// out-port tag describes the source unit, an in-port tag the destination.
func passTagFor(e *Edge, isFrom bool) (HeatTag, bool, bool) {
	var found HeatTag
	n := 0
	for _, ht := range e.Tags.HeatX {
		if (isFrom && ht.Port == PortOut) || (!isFrom && ht.Port == PortIn) {
			found = ht
			n++
		}
	}
	return found, n == 1, n > 1
}

// mergeHeatX collapses every sub-stream family (units sharing type and
// index) into a single unit.  A family is left as is, with a warning, when
// collapsing it would fold two distinct streams into one edge or collide
// with an existing unit name; the merged form simply cannot represent such
// a sheet.
func mergeHeatX(X *Flowsheet) (*Flowsheet, error) {
	type family struct {
		Type  string
		Index int
	}
	members := map[family][]NodeRef{}
	for i, id := range X.nodes {
		if id.Sub > 0 {
			k := family{id.Type, id.Index}
			members[k] = append(members[k], NodeRef(i))
		}
	}
	if len(members) == 0 {
		return X.Clone(), nil
	}

	fams := make([]family, 0, len(members))
	for k := range members {
		fams = append(fams, k)
	}
	sort.Slice(fams, func(i, j int) bool {
		if fams[i].Type != fams[j].Type {
			return fams[i].Type < fams[j].Type
		}
		return fams[i].Index < fams[j].Index
	})

	rep := make([]NodeRef, len(X.nodes))
	for i := range rep {
		rep[i] = NodeRef(i)
	}
	merged := make([]bool, len(X.nodes)) // rep keeps type+index but drops its sub

	for _, k := range fams {
		ms := members[k]
		if _, taken := X.byID[UnitID{Type: k.Type, Index: k.Index}]; taken {
			klog.Warningf("heat integration: %s-%d exists unsplit, leaving its sub-units unmerged", k.Type, k.Index)
			continue
		}
		if mergeFoldsEdges(X, rep, ms) {
			klog.Warningf("heat integration: merging %s-%d sub-units would fold parallel streams, leaving them unmerged", k.Type, k.Index)
			continue
		}
		for _, m := range ms {
			rep[m] = ms[0]
		}
		merged[ms[0]] = true
	}

	out := NewFlowsheet()
	newRef := make([]NodeRef, len(X.nodes))
	for v, id := range X.nodes {
		if rep[v] != NodeRef(v) {
			continue
		}
		if merged[v] {
			id.Sub = 0
		}
		ref, err := out.AddNode(id)
		if err != nil {
			return nil, err
		}
		newRef[v] = ref
	}
	for i := range X.edges {
		e := &X.edges[i]
		ne := out.addEdge(newRef[rep[e.From]], newRef[rep[e.To]], e.Kind)
		ne.Tags = e.Tags.clone()
	}

	out.renumber()
	out.sortEdges()
	return out, nil
}

// mergeFoldsEdges reports whether collapsing the given family members onto
// one unit would make two edges identical.
func mergeFoldsEdges(X *Flowsheet, rep []NodeRef, ms []NodeRef) bool {
	inFam := map[NodeRef]struct{}{}
	for _, m := range ms {
		inFam[m] = struct{}{}
	}
	trial := func(v NodeRef) NodeRef {
		if _, ok := inFam[v]; ok {
			return ms[0]
		}
		return rep[v]
	}

	type pair struct {
		from, to NodeRef
		kind     EdgeKind
	}
	seen := make(map[pair]struct{}, len(X.edges))
	for i := range X.edges {
		e := &X.edges[i]
		k := pair{trial(e.From), trial(e.To), e.Kind}
		if _, dup := seen[k]; dup {
			return true
		}
		seen[k] = struct{}{}
	}
	return false
}
