package libsfiles

import (
	"sort"
	"strconv"
	"strings"

	"github.com/emirpasic/gods/trees/redblacktree"
)

// CanonicalRanks computes a per-node canonical rank by iterative
// neighbor-label refinement over the material-edge subgraph.  Initial
// labels are (material in-degree, material out-degree, unit type, sorted
// incident-edge tag entries); each round relabels every node with the
// ordered multiset of its in- and out-neighbors' classes,
// direction-tagged.  Refinement stops when the induced partition stops
// growing or after a round count bounded by the node count.  The result
// depends only on node and edge attributes and material topology, never
// on insertion order or unit numbering; nodes may share a rank, with ties
// resolved by the encoder.
func CanonicalRanks(X *Flowsheet) []int {
	n := len(X.nodes)
	if n == 0 {
		return nil
	}

	matIn := make([][]int, n)
	matOut := make([][]int, n)
	for i := range X.edges {
		e := &X.edges[i]
		if e.Kind != MaterialEdge {
			continue
		}
		matOut[e.From] = append(matOut[e.From], int(e.To))
		matIn[e.To] = append(matIn[e.To], int(e.From))
	}

	// Degrees come before the type so dead-end side branches rank ahead of
	// the continuing main line regardless of type spelling.  The tag
	// fingerprint separates attribute-asymmetric nodes the topology alone
	// cannot, keeping the canonical form independent of unit numbering.
	fp := tagFingerprints(X)
	labels := make([]string, n)
	for i, id := range X.nodes {
		labels[i] = pad(len(matIn[i])) + "|" + pad(len(matOut[i])) + "|" + id.Type + "|" + fp[i]
	}
	class := assignClasses(labels)

	distinct := countDistinct(class)
	for round := 0; round < n; round++ {
		for i := range labels {
			labels[i] = refineLabel(class[i], class, matIn[i], matOut[i])
		}
		next := assignClasses(labels)
		nextDistinct := countDistinct(next)
		if nextDistinct == distinct {
			break
		}
		class, distinct = next, nextDistinct
	}
	return class
}

// tagFingerprints renders, per node, the sorted direction-tagged tag
// entries of its incident edges (both kinds).
func tagFingerprints(X *Flowsheet) []string {
	parts := make([][]string, len(X.nodes))
	for i := range X.edges {
		e := &X.edges[i]
		for _, entry := range e.Tags.entries() {
			parts[e.From] = append(parts[e.From], ">"+entry)
			parts[e.To] = append(parts[e.To], "<"+entry)
		}
	}
	fp := make([]string, len(X.nodes))
	for i, p := range parts {
		sort.Strings(p)
		fp[i] = strings.Join(p, ",")
	}
	return fp
}

// refineLabel serializes a node's current class together with the sorted,
// direction-tagged classes of its material neighbors.
func refineLabel(self int, class []int, in, out []int) string {
	var b strings.Builder
	b.WriteString(pad(self))
	b.WriteByte('<')
	for _, c := range sortedClasses(class, in) {
		b.WriteString(pad(c))
		b.WriteByte(',')
	}
	b.WriteByte('>')
	for _, c := range sortedClasses(class, out) {
		b.WriteString(pad(c))
		b.WriteByte(',')
	}
	return b.String()
}

func sortedClasses(class []int, refs []int) []int {
	out := make([]int, len(refs))
	for i, r := range refs {
		out[i] = class[r]
	}
	sort.Ints(out)
	return out
}

// assignClasses maps labels to dense class ids ordered by label, using a
// red-black tree so numbering is independent of node order.
func assignClasses(labels []string) []int {
	tree := redblacktree.NewWithStringComparator()
	for _, lb := range labels {
		tree.Put(lb, 0)
	}
	ord := make(map[string]int, tree.Size())
	for i, key := range tree.Keys() {
		ord[key.(string)] = i
	}
	class := make([]int, len(labels))
	for i, lb := range labels {
		class[i] = ord[lb]
	}
	return class
}

func countDistinct(class []int) int {
	seen := make(map[int]struct{}, len(class))
	for _, c := range class {
		seen[c] = struct{}{}
	}
	return len(seen)
}

// pad renders a small non-negative int fixed-width so label strings compare
// consistently.
func pad(v int) string {
	s := strconv.Itoa(v)
	if len(s) >= 6 {
		return s
	}
	return "000000"[:6-len(s)] + s
}
