package gosfiles

// SFILESVersion selects the schema of the emitted notation.
type SFILESVersion int32

const (
	// V1 is the legacy schema: units, branches, cycles, and signals only.
	// Tag blocks are dropped, so heat-integration and column detail is lost.
	V1 SFILESVersion = 1

	// V2 adds {} tag blocks carrying heat-integration, column connectivity,
	// and signal annotations per edge.
	V2 SFILESVersion = 2
)

// EncodeOpts specifies how a flowsheet graph is rendered to a string.
type EncodeOpts struct {
	Version SFILESVersion

	// Canonical selects the invariant-ranked traversal, guaranteeing that
	// encoding the same graph (under any node ordering) yields a byte
	// identical string.  When false, a valid but implementation-defined
	// traversal ordered by unit numbering is used instead.
	Canonical bool

	// RemoveNumbering emits unit tokens without their instance numbers,
	// e.g. "(hex)" instead of "(hex-1)", for template-level comparison of
	// flowsheets that differ only in instance counts.
	RemoveNumbering bool
}

// DefaultEncodeOpts produces the canonical v2 form.
var DefaultEncodeOpts = EncodeOpts{
	Version:   V2,
	Canonical: true,
}

// NormalizeMode selects the direction of heat-integration normalization.
type NormalizeMode int32

const (
	// MergeHeatX collapses sub-stream exchanger nodes that share a unit or
	// a heat-integration group into one node with a composite tag record.
	MergeHeatX NormalizeMode = iota + 1

	// SplitHeatX decomposes a multi-stream exchanger node into one
	// index/sub-index node per stream pass.
	SplitHeatX
)

// CatalogOpts specifies params for opening a flowsheet Catalog.
type CatalogOpts struct {
	DbPathName string // omit for an in-memory db
	ReadOnly   bool   // open in read-only mode
}

// Catalog wraps a database of canonical SFILES strings.
type Catalog interface {

	// TryAdd adds the given canonical string to this catalog.
	// If true is returned, the string did not exist and was added.
	TryAdd(canonical string) (bool, error)

	// Contains reports whether the given canonical string is present.
	Contains(canonical string) (bool, error)

	// NumFlowsheets returns the number of canonical strings stored.
	NumFlowsheets() (int64, error)

	// Select fires the given callback with each stored canonical string
	// sharing the given prefix, in lexicographic order, until the callback
	// returns false.
	Select(prefix string, onHit func(canonical string) bool) error

	// IsReadOnly returns true if this catalog was opened read-only.
	IsReadOnly() bool

	Close() error
}

// CatalogContext is a container for open / active Catalog instances.
type CatalogContext interface {

	// Attaches the given Catalog to this context.
	AttachCatalog(cat Catalog)

	// Detaches the given Catalog from this context.
	DetachCatalog(cat Catalog)

	// Closes all open catalogs then closes this context.
	Close()

	// Signals when Close() completed and all open Catalogs have been closed.
	Done() <-chan struct{}
}
