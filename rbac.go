package rbac

import (
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Config holds the dependencies of the RBAC engine.
type Config struct {
	Store     Store
	Directory Directory
	Catalog   Catalog
	Logger    *zap.Logger
	// Now defaults to time.Now.
	Now func() time.Time
	// BulkWorkers bounds the concurrency of CheckAccessBulk. Defaults to 10.
	BulkWorkers int
}

// RBAC resolves scoped permissions and administers grants. It keeps no state
// between calls; every decision re-reads the store and the directory.
type RBAC struct {
	store       Store
	dir         Directory
	catalog     Catalog
	hierarchy   *Hierarchy
	log         *zap.Logger
	now         func() time.Time
	bulkWorkers int
}

// New initializes the RBAC engine.
func New(cfg Config) (*RBAC, error) {
	if cfg.Store == nil || cfg.Directory == nil || cfg.Catalog == nil {
		return nil, fmt.Errorf("%w: store, directory and catalog are required", ErrInvalidInput)
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.BulkWorkers <= 0 {
		cfg.BulkWorkers = 10
	}

	return &RBAC{
		store:       cfg.Store,
		dir:         cfg.Directory,
		catalog:     cfg.Catalog,
		hierarchy:   NewHierarchy(cfg.Directory),
		log:         cfg.Logger,
		now:         cfg.Now,
		bulkWorkers: cfg.BulkWorkers,
	}, nil
}

// Hierarchy exposes the reporting-line resolver used by the engine.
func (r *RBAC) Hierarchy() *Hierarchy {
	return r.hierarchy
}

// Directory exposes the employee directory used by the engine.
func (r *RBAC) Directory() Directory {
	return r.dir
}

// Catalog exposes the permission catalog used by the engine.
func (r *RBAC) Catalog() Catalog {
	return r.catalog
}
