package libsfiles

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/sfiles-systems/gosfiles/gosfiles"
)

// Encode renders a flowsheet as a single SFILES string.  With
// opts.Canonical set, encoding the same graph under any node or edge
// ordering yields a byte-identical string: traversal order is driven by the
// invariant ranks with the fixed tie-break chain (rank, lookahead
// sub-encoding, tag count, numeric index).  Preconditions: at most one edge
// of a kind per ordered node pair, and every component reachable from at
// least one material source; violations fail with ErrUnencodableGraph.
func Encode(X *Flowsheet, opts gosfiles.EncodeOpts) (string, error) {
	if err := validateEncodable(X); err != nil {
		return "", err
	}
	if err := validateHeatGroups(X); err != nil {
		return "", err
	}

	enc := newEncoder(X, opts)
	if err := enc.run(); err != nil {
		return "", err
	}
	return renderTokens(enc.toks, opts), nil
}

// validateEncodable checks the single-edge-per-ordered-pair precondition.
func validateEncodable(X *Flowsheet) error {
	type pair struct {
		from, to NodeRef
		kind     EdgeKind
	}
	seen := make(map[pair]struct{}, len(X.edges))
	for i := range X.edges {
		e := &X.edges[i]
		k := pair{e.From, e.To, e.Kind}
		if _, dup := seen[k]; dup {
			return errors.Wrapf(gosfiles.ErrUnencodableGraph,
				"duplicate edge %s -> %s", X.nodes[e.From], X.nodes[e.To])
		}
		seen[k] = struct{}{}
	}
	return nil
}

func renderTokens(toks []Token, opts gosfiles.EncodeOpts) string {
	dst := make([]byte, 0, 16*len(toks))
	for _, t := range toks {
		if t.Kind == TokTagBlock && opts.Version != gosfiles.V2 {
			continue // v1 is lossy by design: tag blocks only
		}
		dst = t.appendText(dst, opts.RemoveNumbering)
	}
	return string(dst)
}

type encoder struct {
	X    *Flowsheet
	opts gosfiles.EncodeOpts
	rank []int

	matOut [][]int32 // outgoing material edge indices per node
	matIn  [][]int32 // incoming material edge indices per node
	sigs   []int32   // all signal edge indices

	typeCount map[string]int // unit instances per type

	toks     []Token
	visited  []bool
	claimed  []bool // reserved for an in-flight incoming-branch spine
	edgeDone []bool
	headPos  []int // insertion point for cycle-open markers, -1 until emitted
	anchor   []int // insertion point for deferred signal markers
	nextRef  int   // shared cycle / signal index allocator
	depth    int   // lookahead recursion depth
	err      error // first traversal invariant breach, checked by run
}

func newEncoder(X *Flowsheet, opts gosfiles.EncodeOpts) *encoder {
	n := len(X.nodes)
	enc := &encoder{
		X:         X,
		opts:      opts,
		matOut:    make([][]int32, n),
		matIn:     make([][]int32, n),
		typeCount: make(map[string]int),
		visited:   make([]bool, n),
		claimed:   make([]bool, n),
		edgeDone:  make([]bool, len(X.edges)),
		headPos:   newPosArray(n),
		anchor:    newPosArray(n),
		nextRef:   1,
	}
	for _, id := range X.nodes {
		enc.typeCount[id.Type]++
	}
	for i := range X.edges {
		e := &X.edges[i]
		if e.Kind == MaterialEdge {
			enc.matOut[e.From] = append(enc.matOut[e.From], int32(i))
			enc.matIn[e.To] = append(enc.matIn[e.To], int32(i))
		} else {
			enc.sigs = append(enc.sigs, int32(i))
		}
	}
	if opts.Canonical {
		enc.rank = CanonicalRanks(X)
	} else {
		enc.rank = numberingRanks(X)
	}
	return enc
}

func newPosArray(n int) []int {
	pos := make([]int, n)
	for i := range pos {
		pos[i] = -1
	}
	return pos
}

// numberingRanks orders nodes by their UnitID alone: the non-canonical but
// still deterministic traversal order.
func numberingRanks(X *Flowsheet) []int {
	order := make([]NodeRef, len(X.nodes))
	for i := range order {
		order[i] = NodeRef(i)
	}
	sort.Slice(order, func(i, j int) bool {
		return X.nodes[order[i]].Compare(X.nodes[order[j]]) < 0
	})
	rank := make([]int, len(X.nodes))
	for pos, ref := range order {
		rank[ref] = pos
	}
	return rank
}

func (enc *encoder) run() error {
	comps, err := enc.components()
	if err != nil {
		return err
	}

	for ci, comp := range comps {
		if ci > 0 {
			enc.toks = append(enc.toks, Token{Kind: TokSeparator})
		}
		enc.visit(comp.start, -1)

		// The incoming-branch joins normally pull every feed path in; a
		// region is left over only when joining it would have required a
		// forward marker reference.  Such regions render as extra
		// separator segments tied back through cycle markers.
		for {
			next, ok := enc.nextLeftover(comp.nodes)
			if !ok {
				break
			}
			enc.toks = append(enc.toks, Token{Kind: TokSeparator})
			enc.visit(next, -1)
		}
	}

	enc.placeSignals()
	enc.renumberTokens()
	return enc.err
}

// renumberTokens rewrites instance indices in first-appearance order, the
// same order the parser assigns them, so re-encoding a parsed canonical
// string reproduces it byte for byte.  Sub-stream units sharing an index
// keep sharing the rewritten one.
func (enc *encoder) renumberTokens() {
	counters := map[string]int{}
	groups := map[UnitID]int{}
	for i := range enc.toks {
		t := &enc.toks[i]
		if t.Kind != TokNode || t.Unit.Index == 0 {
			continue
		}
		key := UnitID{Type: t.Unit.Type, Index: t.Unit.Index}
		idx, seen := groups[key]
		if !seen {
			counters[t.Unit.Type]++
			idx = counters[t.Unit.Type]
			groups[key] = idx
		}
		t.Unit.Index = idx
	}
}

// component is one weakly-connected material subgraph and its chosen
// primary start node.
type component struct {
	nodes []NodeRef
	start NodeRef
}

// components partitions the graph by weak connectivity over material edges
// and orders the partitions by their best start node (rank, then UnitID).
// A component with no material source cannot be encoded.
func (enc *encoder) components() ([]component, error) {
	n := len(enc.X.nodes)
	comp := make([]int, n)
	for i := range comp {
		comp[i] = -1
	}

	var comps []component
	for seed := 0; seed < n; seed++ {
		if comp[seed] >= 0 {
			continue
		}
		id := len(comps)
		queue := []NodeRef{NodeRef(seed)}
		comp[seed] = id
		var members []NodeRef
		for len(queue) > 0 {
			v := queue[0]
			queue = queue[1:]
			members = append(members, v)
			for _, ei := range enc.matOut[v] {
				if t := enc.X.edges[ei].To; comp[t] < 0 {
					comp[t] = id
					queue = append(queue, t)
				}
			}
			for _, ei := range enc.matIn[v] {
				if f := enc.X.edges[ei].From; comp[f] < 0 {
					comp[f] = id
					queue = append(queue, f)
				}
			}
		}
		comps = append(comps, component{nodes: members})
	}

	for i := range comps {
		start, ok := enc.bestStart(comps[i].nodes)
		if !ok {
			return nil, errors.Wrapf(gosfiles.ErrUnencodableGraph,
				"component of %s has no material source", enc.X.nodes[comps[i].nodes[0]])
		}
		comps[i].start = start
	}

	sort.Slice(comps, func(i, j int) bool {
		a, b := comps[i].start, comps[j].start
		if enc.rank[a] != enc.rank[b] {
			return enc.rank[a] < enc.rank[b]
		}
		return enc.X.nodes[a].Compare(enc.X.nodes[b]) < 0
	})
	return comps, nil
}

// bestStart picks the material source with the lowest (rank, UnitID) key.
func (enc *encoder) bestStart(nodes []NodeRef) (NodeRef, bool) {
	best, found := NilNode, false
	for _, v := range nodes {
		if len(enc.matIn[v]) > 0 {
			continue
		}
		if !found || enc.startLess(v, best) {
			best, found = v, true
		}
	}
	return best, found
}

func (enc *encoder) startLess(a, b NodeRef) bool {
	if enc.rank[a] != enc.rank[b] {
		return enc.rank[a] < enc.rank[b]
	}
	return enc.X.nodes[a].Compare(enc.X.nodes[b]) < 0
}

// nextLeftover picks the next unvisited node of a component: sources of the
// unvisited subgraph first, otherwise the best-ranked unvisited node.
func (enc *encoder) nextLeftover(nodes []NodeRef) (NodeRef, bool) {
	best, found := NilNode, false
	bestIsSource := false
	for _, v := range nodes {
		if enc.visited[v] {
			continue
		}
		source := true
		for _, ei := range enc.matIn[v] {
			if !enc.visited[enc.X.edges[ei].From] {
				source = false
				break
			}
		}
		switch {
		case !found,
			source && !bestIsSource,
			source == bestIsSource && enc.startLess(v, best):
			best, found, bestIsSource = v, true, source
		}
	}
	return best, found
}

func (enc *encoder) visit(v NodeRef, via int32) {
	enc.visitForced(v, via, nil, false)
}

// visitForced emits node v and everything hanging off it.  A non-empty
// forced chain pins the inline continuation to the next chain node (the
// spine of an incoming branch); terminal suppresses any inline continuation
// once the chain is exhausted so the join marker binds the spine's end.
func (enc *encoder) visitForced(v NodeRef, via int32, forced []NodeRef, terminal bool) {
	if enc.visited[v] {
		// Spine claiming keeps this from happening; a second emission would
		// corrupt the output, so refuse and surface the breach.
		if enc.depth == 0 && enc.err == nil {
			enc.err = errors.Wrapf(gosfiles.ErrUnencodableGraph,
				"traversal revisited %s", enc.X.nodes[v])
		}
		return
	}
	enc.visited[v] = true
	enc.claimed[v] = false
	if via >= 0 {
		enc.edgeDone[via] = true
	}

	enc.emitJoins(v)

	enc.toks = append(enc.toks, Token{Kind: TokNode, Unit: enc.unitToken(v)})
	if via >= 0 {
		enc.emitTagBlocks(&enc.X.edges[via].Tags)
	}
	enc.headPos[v] = len(enc.toks)

	enc.emitOut(v, forced, terminal)
}

// unitToken renders a node's UnitID for output.  A unit whose type occurs
// once and has no sub-stream needs no instance number, matching how sheets
// are conventionally written.
func (enc *encoder) unitToken(v NodeRef) UnitID {
	id := enc.X.nodes[v]
	if id.Sub == 0 && enc.typeCount[id.Type] == 1 {
		id.Index = 0
	}
	return id
}

// emitOut renders v's outgoing material edges: back edges become cycle
// marker pairs, all but the last remaining unvisited edge become bracketed
// branches, and the last one continues the main line inline.  Signal edges
// are deferred entirely (placeSignals) so they cannot perturb material
// ordering.
func (enc *encoder) emitOut(v NodeRef, forced []NodeRef, terminal bool) {
	var forcedEdge int32 = -1
	if len(forced) > 0 {
		forcedEdge = enc.findMatEdge(v, forced[0])
		enc.edgeDone[forcedEdge] = true
	}

	var pending []int32
	for _, ei := range enc.matOut[v] {
		if !enc.edgeDone[ei] {
			pending = append(pending, ei)
		}
	}
	enc.orderEdges(pending)

	// Cycle closers bind the unit the cursor sits on, so edges into visited
	// targets (including targets preempted by an earlier branch of this very
	// loop) are flushed before anything that moves the cursor away.  The
	// inline continuation is taken only once it is the sole edge left, which
	// guarantees it is the last emission at v.
	inlineDone := false
	for len(pending) > 0 {
		rest := pending[:0]
		for _, ei := range pending {
			if enc.visited[enc.X.edges[ei].To] {
				enc.edgeDone[ei] = true
				enc.emitBack(ei)
			} else {
				rest = append(rest, ei)
			}
		}
		pending = rest
		if len(pending) == 0 {
			break
		}

		ei := pending[0]
		t := enc.X.edges[ei].To
		enc.edgeDone[ei] = true
		if len(pending) == 1 && forcedEdge < 0 && !terminal {
			pending = pending[1:]
			enc.anchor[v] = len(enc.toks)
			inlineDone = true
			enc.visit(t, ei)
		} else {
			pending = pending[1:]
			enc.toks = append(enc.toks, Token{Kind: TokBranchOpen})
			enc.visit(t, ei)
			enc.toks = append(enc.toks, Token{Kind: TokBranchClose})
		}
	}

	if !inlineDone {
		enc.anchor[v] = len(enc.toks)
	}
	if forcedEdge >= 0 {
		enc.visitForced(forced[0], forcedEdge, forced[1:], true)
	}
}

// emitBack renders an edge into an already-visited node as a cycle marker
// pair: the open marker is spliced in right after the target's head, the
// close marker (plus the edge's tags) is appended here at the source.  A
// missing head is legitimate only inside a lookahead, where targets
// emitted by the parent have no position in the child buffer; at the top
// level it means the traversal invariants broke, and an unmatched closer
// must not reach the output.
func (enc *encoder) emitBack(ei int32) {
	e := &enc.X.edges[ei]
	if enc.headPos[e.To] < 0 && enc.depth == 0 {
		if enc.err == nil {
			enc.err = errors.Wrapf(gosfiles.ErrUnencodableGraph,
				"no head for cycle into %s", enc.X.nodes[e.To])
		}
		return
	}
	ref := enc.nextRef
	enc.nextRef++
	if enc.headPos[e.To] >= 0 {
		enc.insert(enc.headPos[e.To], Token{Kind: TokCycleOpen, Ref: ref})
	}
	enc.toks = append(enc.toks, Token{Kind: TokCycleClose, Ref: ref})
	enc.emitTagBlocks(&e.Tags)
}

// emitJoins renders every unvisited material feed path into v as an
// incoming branch directly before v's token.  The chosen spine is claimed
// before emission so joins and branches nested inside it cannot consume
// nodes the forced continuation still owes; unsafe feed regions are left
// for the separator fallback.
func (enc *encoder) emitJoins(v NodeRef) {
	for {
		var cands []int32
		for _, ei := range enc.matIn[v] {
			e := &enc.X.edges[ei]
			if !enc.edgeDone[ei] && !enc.visited[e.From] && !enc.claimed[e.From] {
				cands = append(cands, ei)
			}
		}
		if len(cands) == 0 {
			return
		}
		sort.Slice(cands, func(i, j int) bool {
			return enc.joinLess(cands[i], cands[j])
		})

		joined := false
		for _, ei := range cands {
			spine, chain := enc.buildSpine(enc.X.edges[ei].From)
			if !enc.joinSafe(spine, chain, v, ei) {
				continue
			}
			enc.edgeDone[ei] = true
			for _, u := range spine {
				enc.claimed[u] = true
			}
			enc.toks = append(enc.toks, Token{Kind: TokIncomingOpen})
			enc.visitForced(spine[0], -1, spine[1:], true)
			enc.toks = append(enc.toks, Token{Kind: TokIncomingClose})
			enc.emitTagBlocks(&enc.X.edges[ei].Tags)
			joined = true
			break
		}
		if !joined {
			return
		}
	}
}

func (enc *encoder) joinLess(a, b int32) bool {
	ea, eb := &enc.X.edges[a], &enc.X.edges[b]
	if enc.rank[ea.From] != enc.rank[eb.From] {
		return enc.rank[ea.From] < enc.rank[eb.From]
	}
	if na, nb := ea.Tags.NumEntries(), eb.Tags.NumEntries(); na != nb {
		return na < nb
	}
	// Tag content decides before the numeric fallback so relabeling unit
	// indices cannot change which feed joins first.
	ta, tb := ea.Tags.entries(), eb.Tags.entries()
	for i := range ta {
		if ta[i] != tb[i] {
			return ta[i] < tb[i]
		}
	}
	return enc.X.nodes[ea.From].Compare(enc.X.nodes[eb.From]) < 0
}

// buildSpine walks upstream from u through unvisited, unclaimed
// predecessors, always taking the best (rank, tags, UnitID) edge,
// producing the main line of an incoming branch ending at u plus the
// chain edges connecting consecutive spine nodes.
func (enc *encoder) buildSpine(u NodeRef) ([]NodeRef, []int32) {
	spine := []NodeRef{u}
	var chain []int32
	onSpine := map[NodeRef]struct{}{u: {}}
	for {
		head := spine[0]
		var best int32 = -1
		for _, ei := range enc.matIn[head] {
			e := &enc.X.edges[ei]
			if enc.edgeDone[ei] || enc.visited[e.From] || enc.claimed[e.From] {
				continue
			}
			if _, loop := onSpine[e.From]; loop {
				continue
			}
			if best < 0 || enc.joinLess(ei, best) {
				best = ei
			}
		}
		if best < 0 {
			return spine, chain
		}
		prev := enc.X.edges[best].From
		spine = append([]NodeRef{prev}, spine...)
		chain = append([]int32{best}, chain...)
		onSpine[prev] = struct{}{}
	}
}

// joinSafe reports whether the feed region behind a candidate join touches
// the rest of the rendering only through the join edge and the spine's own
// chain.  The region is the weak closure of unvisited, unclaimed nodes
// around the spine start: nested incoming branches can pull in upstream
// tributaries, so predecessors count as much as successors.  Any other
// region edge into v, into a spine node, or into a node claimed by an
// enclosing spine would need a cycle opener at a head that does not exist
// when the closer renders, so such feeds are left for the separator
// fallback.
func (enc *encoder) joinSafe(spine []NodeRef, chain []int32, v NodeRef, joinEdge int32) bool {
	onSpine := make(map[NodeRef]struct{}, len(spine))
	for _, u := range spine {
		onSpine[u] = struct{}{}
	}
	chainEdge := make(map[int32]struct{}, len(chain))
	for _, ei := range chain {
		chainEdge[ei] = struct{}{}
	}

	start := spine[0]
	seen := map[NodeRef]struct{}{start: {}}
	queue := []NodeRef{start}
	for len(queue) > 0 {
		u := queue[0]
		queue = queue[1:]
		for _, ei := range enc.matOut[u] {
			if ei == joinEdge || enc.edgeDone[ei] {
				continue
			}
			t := enc.X.edges[ei].To
			if _, ok := chainEdge[ei]; !ok {
				if t == v || enc.claimed[t] {
					return false
				}
				if _, sp := onSpine[t]; sp {
					return false
				}
			}
			if enc.visited[t] {
				continue
			}
			if _, ok := seen[t]; !ok {
				seen[t] = struct{}{}
				queue = append(queue, t)
			}
		}
		for _, ei := range enc.matIn[u] {
			if ei == joinEdge || enc.edgeDone[ei] {
				continue
			}
			f := enc.X.edges[ei].From
			if enc.visited[f] || enc.claimed[f] {
				continue
			}
			if _, ok := seen[f]; !ok {
				seen[f] = struct{}{}
				queue = append(queue, f)
			}
		}
	}
	return true
}

// orderEdges sorts candidate edges by the documented tie-break chain:
// target rank, then a lookahead comparison of the candidate sub-encodings,
// then tag count, then numeric index.
func (enc *encoder) orderEdges(cands []int32) {
	if len(cands) < 2 {
		return
	}
	memo := make(map[int32]string, len(cands))
	look := func(ei int32) string {
		s, ok := memo[ei]
		if !ok {
			s = enc.lookaheadStr(ei)
			memo[ei] = s
		}
		return s
	}
	sort.SliceStable(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		ea, eb := &enc.X.edges[a], &enc.X.edges[b]
		if enc.rank[ea.To] != enc.rank[eb.To] {
			return enc.rank[ea.To] < enc.rank[eb.To]
		}
		if la, lb := look(a), look(b); la != lb {
			return la < lb
		}
		if na, nb := ea.Tags.NumEntries(), eb.Tags.NumEntries(); na != nb {
			return na < nb
		}
		return enc.X.nodes[ea.To].Compare(enc.X.nodes[eb.To]) < 0
	})
}

// lookaheadStr speculatively encodes the sub-traversal behind one candidate
// edge and returns its rendering with unit numbering stripped, so the
// comparison is structural.  The speculation runs on copied visited-state
// (copy-on-branch, never rollback) and is depth-bounded by the node count.
func (enc *encoder) lookaheadStr(ei int32) string {
	e := &enc.X.edges[ei]
	if enc.visited[e.To] || enc.depth > len(enc.X.nodes) {
		return ""
	}
	bare := enc.opts
	bare.RemoveNumbering = true

	child := &encoder{
		X:         enc.X,
		opts:      bare,
		rank:      enc.rank,
		matOut:    enc.matOut,
		matIn:     enc.matIn,
		typeCount: enc.typeCount,
		visited:   append([]bool(nil), enc.visited...),
		claimed:   append([]bool(nil), enc.claimed...),
		edgeDone:  append([]bool(nil), enc.edgeDone...),
		headPos:   newPosArray(len(enc.X.nodes)),
		anchor:    newPosArray(len(enc.X.nodes)),
		nextRef:   1,
		depth:     enc.depth + 1,
	}
	child.visit(e.To, ei)
	return renderTokens(child.toks, bare)
}

// placeSignals splices the deferred signal marker pairs (and their tags)
// into the finished material rendering.  Markers sit at their node's
// anchor: after all material branching at that node is resolved.  Pairs
// are ordered by the source node's anchor so index allocation continues
// the shared pool deterministically.
func (enc *encoder) placeSignals() {
	if len(enc.sigs) == 0 {
		return
	}
	ordered := append([]int32(nil), enc.sigs...)
	sort.Slice(ordered, func(i, j int) bool {
		a, b := &enc.X.edges[ordered[i]], &enc.X.edges[ordered[j]]
		if enc.anchor[a.From] != enc.anchor[b.From] {
			return enc.anchor[a.From] < enc.anchor[b.From]
		}
		return enc.anchor[a.To] < enc.anchor[b.To]
	})

	for _, ei := range ordered {
		e := &enc.X.edges[ei]
		ref := enc.nextRef
		enc.nextRef++
		enc.insert(enc.anchor[e.To], Token{Kind: TokSignalOpen, Ref: ref})

		at := enc.anchor[e.From]
		enc.insert(at, Token{Kind: TokSignalClose, Ref: ref})
		for _, entry := range e.Tags.entries() {
			at++
			enc.insert(at, Token{Kind: TokTagBlock, Tag: entry})
		}
	}
}

// insert splices a token at pos and shifts every recorded position at or
// beyond it.
func (enc *encoder) insert(pos int, tok Token) {
	enc.toks = append(enc.toks, Token{})
	copy(enc.toks[pos+1:], enc.toks[pos:])
	enc.toks[pos] = tok

	for i := range enc.headPos {
		if enc.headPos[i] >= pos {
			enc.headPos[i]++
		}
	}
	for i := range enc.anchor {
		if enc.anchor[i] >= pos {
			enc.anchor[i]++
		}
	}
}

func (enc *encoder) emitTagBlocks(rec *TagRecord) {
	for _, entry := range rec.entries() {
		enc.toks = append(enc.toks, Token{Kind: TokTagBlock, Tag: entry})
	}
}

func (enc *encoder) findMatEdge(from, to NodeRef) int32 {
	for _, ei := range enc.matOut[from] {
		if enc.X.edges[ei].To == to {
			return ei
		}
	}
	return -1
}
