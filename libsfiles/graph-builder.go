package libsfiles

import (
	"github.com/emirpasic/gods/stacks/arraystack"
	"github.com/pkg/errors"

	"github.com/sfiles-systems/gosfiles/gosfiles"
)

// Parse reconstructs a flowsheet graph from an SFILES string.
func Parse(sfiles string) (*Flowsheet, error) {
	toks, err := Tokenize(sfiles)
	if err != nil {
		return nil, err
	}
	return BuildFlowsheet(toks)
}

func topologyErrf(offset int, format string, args ...interface{}) error {
	err := errors.Wrapf(gosfiles.ErrMalformedTopology, format, args...)
	return errors.Wrapf(err, "offset %d", offset)
}

// joinSource is a pending incoming-branch terminus: its edge into the next
// main-line node is deferred until that node is emitted, as are any tags
// written after the closing join marker.
type joinSource struct {
	node NodeRef
	tags TagRecord
}

// sigSource is a signal source marker seen before its matching target
// marker.  Tags written after the source marker accumulate here until the
// pair resolves into an edge.
type sigSource struct {
	node NodeRef
	tags TagRecord
}

// incomingFrame is the builder state saved across an incoming-branch scope.
type incomingFrame struct {
	cursor NodeRef
	joins  []joinSource
}

const noTagEdge = -1

// BuildFlowsheet materializes a directed graph from a token sequence,
// resolving branch nesting, cycle and signal back-references, and incoming
// joins into graph edges, then renumbers unit instances by first
// appearance.
func BuildFlowsheet(toks []Token) (*Flowsheet, error) {
	X := NewFlowsheet()

	var (
		cursor      = NilNode
		branches    = arraystack.New() // saved cursors for [ ] scopes
		incomings   = arraystack.New() // saved frames for <&| ... &| scopes
		joins       []joinSource
		pendCycles  = map[int]NodeRef{}
		pendSigDsts = map[int]NodeRef{}    // signal targets awaiting their source
		pendSigSrcs = map[int]*sigSource{} // signal sources awaiting their target
		tagEdge     = noTagEdge            // edge index receiving subsequent tag entries
		tagJoin     = false                // tags go to the latest pending join instead
		tagSig      *sigSource             // tags go to a pending signal source instead
	)

	for _, tok := range toks {
		if tok.Kind != TokTagBlock {
			tagJoin = false
			tagSig = nil
		}

		switch tok.Kind {
		case TokNode:
			ref := NodeRef(len(X.nodes))
			X.nodes = append(X.nodes, tok.Unit)
			for i := range joins {
				e := X.AddStream(joins[i].node, ref)
				e.Tags = joins[i].tags
			}
			joins = joins[:0]
			tagEdge = noTagEdge
			if cursor != NilNode {
				X.AddStream(cursor, ref)
				tagEdge = len(X.edges) - 1
			}
			cursor = ref

		case TokBranchOpen:
			branches.Push(cursor)

		case TokBranchClose:
			saved, ok := branches.Pop()
			if !ok {
				return nil, topologyErrf(tok.Offset, "branch closed without open")
			}
			cursor = saved.(NodeRef)

		case TokIncomingOpen:
			incomings.Push(incomingFrame{cursor: cursor, joins: joins})
			cursor = NilNode
			joins = nil

		case TokIncomingClose:
			if cursor == NilNode {
				return nil, topologyErrf(tok.Offset, "empty incoming branch")
			}
			src := cursor
			saved, ok := incomings.Pop()
			if !ok {
				return nil, topologyErrf(tok.Offset, "incoming branch closed without open")
			}
			frame := saved.(incomingFrame)
			cursor = frame.cursor
			joins = append(frame.joins, joinSource{node: src})
			tagJoin = true

		case TokCycleOpen:
			if cursor == NilNode {
				return nil, topologyErrf(tok.Offset, "cycle %d opened before any unit", tok.Ref)
			}
			if _, open := pendCycles[tok.Ref]; open {
				return nil, topologyErrf(tok.Offset, "cycle %d reopened while open", tok.Ref)
			}
			pendCycles[tok.Ref] = cursor

		case TokCycleClose:
			target, open := pendCycles[tok.Ref]
			if !open {
				return nil, topologyErrf(tok.Offset, "cycle %d closed without open", tok.Ref)
			}
			if cursor == NilNode {
				return nil, topologyErrf(tok.Offset, "cycle %d closed before any unit", tok.Ref)
			}
			delete(pendCycles, tok.Ref)
			X.AddStream(cursor, target)
			tagEdge = len(X.edges) - 1

		// Signal markers pair in either order: the <_n marker always binds
		// the receiving unit and _n the sending unit, whichever is written
		// first.
		case TokSignalOpen:
			if cursor == NilNode {
				return nil, topologyErrf(tok.Offset, "signal %d marker before any unit", tok.Ref)
			}
			if _, dup := pendSigDsts[tok.Ref]; dup {
				return nil, topologyErrf(tok.Offset, "signal %d target marker repeated", tok.Ref)
			}
			if src, ok := pendSigSrcs[tok.Ref]; ok {
				delete(pendSigSrcs, tok.Ref)
				e := X.AddSignal(src.node, cursor)
				e.Tags = src.tags
			} else {
				pendSigDsts[tok.Ref] = cursor
			}

		case TokSignalClose:
			if cursor == NilNode {
				return nil, topologyErrf(tok.Offset, "signal %d marker before any unit", tok.Ref)
			}
			if _, dup := pendSigSrcs[tok.Ref]; dup {
				return nil, topologyErrf(tok.Offset, "signal %d source marker repeated", tok.Ref)
			}
			if target, ok := pendSigDsts[tok.Ref]; ok {
				delete(pendSigDsts, tok.Ref)
				X.AddSignal(cursor, target)
				tagEdge = len(X.edges) - 1
			} else {
				src := &sigSource{node: cursor}
				pendSigSrcs[tok.Ref] = src
				tagSig = src
				tagEdge = noTagEdge
			}

		case TokTagBlock:
			switch {
			case tagJoin:
				joins[len(joins)-1].tags.add(tok.Tag)
			case tagSig != nil:
				tagSig.tags.add(tok.Tag)
			case tagEdge != noTagEdge:
				X.edges[tagEdge].Tags.add(tok.Tag)
			default:
				return nil, topologyErrf(tok.Offset, "tag block %q has no stream to describe", tok.Tag)
			}

		case TokSeparator:
			if len(joins) > 0 {
				return nil, topologyErrf(tok.Offset, "incoming branch not joined before separator")
			}
			cursor = NilNode
			tagEdge = noTagEdge
		}
	}

	if len(joins) > 0 {
		return nil, topologyErrf(len(toks), "incoming branch never joined")
	}
	for ref := range pendCycles {
		return nil, errors.Wrapf(gosfiles.ErrMalformedTopology, "cycle %d never closed", ref)
	}
	for ref := range pendSigDsts {
		return nil, errors.Wrapf(gosfiles.ErrMalformedTopology, "signal %d never paired", ref)
	}
	for ref := range pendSigSrcs {
		return nil, errors.Wrapf(gosfiles.ErrMalformedTopology, "signal %d never paired", ref)
	}

	X.renumber()
	if len(X.byID) != len(X.nodes) {
		return nil, errors.Wrap(gosfiles.ErrMalformedTopology, "duplicate unit instance")
	}
	for i := range X.edges {
		X.edges[i].Tags.normalize()
	}
	if err := validateHeatGroups(X); err != nil {
		return nil, err
	}
	return X, nil
}
