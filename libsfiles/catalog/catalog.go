package catalog

import (
	"encoding/binary"
	"runtime"
	"sync"

	"github.com/dgraph-io/badger/v3"
	"github.com/pkg/errors"
	"github.com/plan-systems/klog"

	"github.com/sfiles-systems/gosfiles/gosfiles"
	"github.com/sfiles-systems/gosfiles/libsfiles"
)

/***

Catalog database format:

	gCatalogStateKey => catalogState

	kSheetPrefix, canonical SFILES bytes => nil

Keys under kSheetPrefix are the canonical strings themselves, so prefix
selection and lexicographic enumeration fall out of the LSM ordering with
no secondary index.

***/

var (
	gCatalogStateKey = []byte{0x00, 0x00, 0x01}
)

const kSheetPrefix = byte(0x02)

const (
	kMajorVers = 2024
	kMinorVers = 1
)

// catalogState is the single metadata record of a catalog db.
type catalogState struct {
	MajorVers uint32
	MinorVers uint32
	NumSheets uint64
}

func (s *catalogState) Marshal(dst []byte) []byte {
	var buf [16]byte
	binary.BigEndian.PutUint32(buf[0:], s.MajorVers)
	binary.BigEndian.PutUint32(buf[4:], s.MinorVers)
	binary.BigEndian.PutUint64(buf[8:], s.NumSheets)
	return append(dst, buf[:]...)
}

func (s *catalogState) Unmarshal(val []byte) error {
	if len(val) < 16 {
		return errors.New("catalog state record truncated")
	}
	s.MajorVers = binary.BigEndian.Uint32(val[0:])
	s.MinorVers = binary.BigEndian.Uint32(val[4:])
	s.NumSheets = binary.BigEndian.Uint64(val[8:])
	return nil
}

// catalog is a db wrapper for a canonical flowsheet registry.
type catalog struct {
	ctx      gosfiles.CatalogContext
	readOnly bool
	db       *badger.DB

	mu         sync.Mutex
	state      catalogState
	stateDirty bool
}

func OpenCatalog(ctx gosfiles.CatalogContext, opts gosfiles.CatalogOpts) (gosfiles.Catalog, error) {
	cat := &catalog{
		ctx:      ctx,
		readOnly: opts.ReadOnly,
	}

	dbOpts := badger.DefaultOptions(opts.DbPathName)
	dbOpts.ReadOnly = opts.ReadOnly
	dbOpts.DetectConflicts = false // not needed so disable for performance
	dbOpts.Logger = nil

	// Badger for windows currently does not support read-only mode
	if runtime.GOOS == "windows" {
		dbOpts.ReadOnly = false
	}

	if len(opts.DbPathName) == 0 {
		if opts.ReadOnly {
			return nil, errors.Wrap(gosfiles.ErrBadCatalogParam, "DbPathName must be specified for read-only catalog")
		}
		dbOpts.InMemory = true
	}

	var err error
	cat.db, err = badger.Open(dbOpts)
	if err != nil {
		return nil, err
	}

	// Once the db is open, the catalog ctx is blocked until the catalog closes
	ctx.AttachCatalog(cat)

	err = cat.loadState()
	if err == badger.ErrKeyNotFound {
		err = nil
		cat.stateDirty = true
		cat.state.MajorVers = kMajorVers
		cat.state.MinorVers = kMinorVers
	}
	if err == nil && (cat.state.MajorVers != kMajorVers || cat.state.MinorVers != kMinorVers) {
		err = errors.New("catalog version is incompatible")
	}
	if err != nil {
		cat.Close()
		return nil, err
	}

	klog.Infof("opened flowsheet catalog %q (%d flowsheets)", opts.DbPathName, cat.state.NumSheets)
	return cat, nil
}

func (cat *catalog) loadState() error {
	return cat.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(gCatalogStateKey)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return cat.state.Unmarshal(val)
		})
	})
}

func (cat *catalog) flushState() {
	cat.mu.Lock()
	defer cat.mu.Unlock()

	if !cat.stateDirty || cat.readOnly {
		return
	}
	err := cat.db.Update(func(txn *badger.Txn) error {
		return txn.Set(gCatalogStateKey, cat.state.Marshal(nil))
	})
	if err != nil {
		panic(err)
	}
	cat.stateDirty = false
}

func (cat *catalog) Close() error {
	cat.flushState()
	if cat.db != nil {
		cat.db.Close()
		cat.db = nil
		cat.ctx.DetachCatalog(cat)
		cat.ctx = nil
	}
	return nil
}

func (cat *catalog) IsReadOnly() bool {
	return cat.readOnly
}

func sheetKey(canonical string) []byte {
	key := make([]byte, 0, 1+len(canonical))
	key = append(key, kSheetPrefix)
	return append(key, canonical...)
}

// TryAdd adds the given canonical string if it isn't already present.
// If true is returned, the string was not present and was added.
func (cat *catalog) TryAdd(canonical string) (bool, error) {
	if cat.readOnly {
		return false, errors.Wrap(gosfiles.ErrCatalogReadOnly, "TryAdd")
	}
	if len(canonical) == 0 {
		return false, errors.Wrap(gosfiles.ErrBadCatalogParam, "empty flowsheet string")
	}

	key := sheetKey(canonical)
	added := false
	err := cat.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		if err == nil {
			return nil
		}
		if err != badger.ErrKeyNotFound {
			return err
		}
		added = true
		return txn.Set(key, nil)
	})
	if err != nil {
		return false, err
	}

	if added {
		cat.mu.Lock()
		cat.state.NumSheets++
		cat.stateDirty = true
		cat.mu.Unlock()
	}
	return added, nil
}

func (cat *catalog) Contains(canonical string) (bool, error) {
	found := false
	err := cat.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(sheetKey(canonical))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err == nil {
			found = true
		}
		return err
	})
	return found, err
}

func (cat *catalog) NumFlowsheets() (int64, error) {
	cat.mu.Lock()
	defer cat.mu.Unlock()
	return int64(cat.state.NumSheets), nil
}

// Select fires onHit with each stored canonical string sharing the given
// prefix, in lexicographic order, until onHit returns false.
func (cat *catalog) Select(prefix string, onHit func(canonical string) bool) error {
	return cat.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{
			PrefetchValues: false,
			Prefix:         sheetKey(prefix),
		})
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			key := it.Item().Key()
			if !onHit(string(key[1:])) {
				break
			}
		}
		return nil
	})
}

// AddFlowsheet canonically encodes X and adds the result to the catalog.
func AddFlowsheet(cat gosfiles.Catalog, X *libsfiles.Flowsheet) (bool, error) {
	canonical, err := libsfiles.Encode(X, gosfiles.DefaultEncodeOpts)
	if err != nil {
		return false, err
	}
	return cat.TryAdd(canonical)
}
