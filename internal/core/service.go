package core

import (
	"context"
	"sync"
	"time"

	"github.com/JonMunkholm/reviewflow/internal/database"
	"github.com/JonMunkholm/reviewflow/internal/enum"
	"github.com/JonMunkholm/reviewflow/internal/services/catalog"
	"github.com/JonMunkholm/reviewflow/internal/services/forms"
)

// OperationTimeout bounds single-submission operations.
var OperationTimeout = 2 * time.Minute

// RunTimeout bounds a batch stage or full pipeline run.
var RunTimeout = 30 * time.Minute

// Options configures a Service. Zero values fall back to defaults.
type Options struct {
	// Forms lists new submissions. Required for the ingest stage only.
	Forms forms.Lister
	// Catalog searches products. Required for the match stage only.
	Catalog catalog.Searcher

	// Aliases substitutes lookup labels before resolution.
	Aliases enum.Aliases

	BatchSize         int
	PageSize          int
	CacheTTL          time.Duration
	ProgressInterval  time.Duration
	MaxConcurrentRuns int
	RunWaitTime       time.Duration

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Service provides the pipeline operations.
type Service struct {
	db       database.DB
	forms    forms.Lister
	catalog  catalog.Searcher
	handlers map[Stage]stageHandler

	batchSize        int
	pageSize         int
	cacheTTL         time.Duration
	progressInterval time.Duration
	now              func() time.Time

	limiter  *RunLimiter
	progress *ProgressBroker

	mu      sync.RWMutex
	aliases enum.Aliases
}

// DefaultProgressInterval is the minimum gap between progress events.
const DefaultProgressInterval = time.Second

// NewService creates a Service over db.
func NewService(db database.DB, opts Options) *Service {
	s := &Service{
		db:               db,
		forms:            opts.Forms,
		catalog:          opts.Catalog,
		batchSize:        opts.BatchSize,
		pageSize:         opts.PageSize,
		cacheTTL:         opts.CacheTTL,
		progressInterval: opts.ProgressInterval,
		now:              opts.Now,
		aliases:          opts.Aliases,
		limiter:          NewRunLimiter(opts.MaxConcurrentRuns, opts.RunWaitTime),
		progress:         NewProgressBroker(),
	}
	if s.cacheTTL <= 0 {
		s.cacheTTL = enum.DefaultCacheTTL
	}
	if s.progressInterval <= 0 {
		s.progressInterval = DefaultProgressInterval
	}
	if s.now == nil {
		s.now = time.Now
	}

	s.handlers = map[Stage]stageHandler{
		StageCleanTitle:            cleanStage{},
		StageMatchProduct:          matchStage{catalog: s.catalog},
		StageGenerateSpecification: generateStage{},
	}
	return s
}

// Progress returns the broker that receives materialization progress.
func (s *Service) Progress() *ProgressBroker {
	return s.progress
}

// Limiter returns the run limiter, for monitoring and shutdown.
func (s *Service) Limiter() *RunLimiter {
	return s.limiter
}

// Aliases returns the active lookup aliases.
func (s *Service) Aliases() enum.Aliases {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.aliases
}

// SetAliases swaps the lookup aliases used by subsequent runs.
func (s *Service) SetAliases(a enum.Aliases) {
	s.mu.Lock()
	s.aliases = a
	s.mu.Unlock()
}

// Shutdown waits for active runs to finish.
func (s *Service) Shutdown(ctx context.Context) error {
	return s.limiter.WaitForDrain(ctx)
}
