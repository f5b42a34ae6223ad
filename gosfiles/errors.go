package gosfiles

import "errors"

// Errors
var (
	ErrMalformedSyntax          = errors.New("malformed sfiles syntax")
	ErrMalformedTopology        = errors.New("malformed flowsheet topology")
	ErrAmbiguousHeatIntegration = errors.New("ambiguous heat integration")
	ErrUnencodableGraph         = errors.New("flowsheet graph cannot be encoded")
	ErrDuplicateUnit            = errors.New("duplicate unit in flowsheet")
	ErrUnknownUnit              = errors.New("unknown unit in flowsheet")
	ErrBadUnitMapping           = errors.New("unit name mapping is not bijective")
	ErrBadCatalogParam          = errors.New("bad catalog param")
	ErrCatalogReadOnly          = errors.New("catalog is read-only")
)
