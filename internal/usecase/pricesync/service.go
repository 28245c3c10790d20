package pricesync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/simaogato/tldpricing-backend/internal/domain"
	"github.com/simaogato/tldpricing-backend/internal/usecase/derivation"
	"github.com/simaogato/tldpricing-backend/internal/usecase/reconcile"
)

// Mode selects which snapshot entries a sync run reconciles
type Mode string

const (
	ModeAll      Mode = "all"
	ModeExisting Mode = "existing"
	ModeSelected Mode = "selected"
)

// ParseMode maps a transport value to a Mode
func ParseMode(raw string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(raw))) {
	case ModeAll, "":
		return ModeAll, nil
	case ModeExisting:
		return ModeExisting, nil
	case ModeSelected:
		return ModeSelected, nil
	}
	return "", &domain.ConfigError{Field: "sync mode", Value: raw, Reason: "expected all, existing or selected"}
}

// ErrNoExtensions is returned when a selected sync names nothing
var ErrNoExtensions = errors.New("no extensions selected")

// Reconciler writes one derived set into the store
type Reconciler interface {
	Reconcile(ctx context.Context, key string, derived *domain.DerivedPriceSet) *reconcile.Result
}

// BatchResult summarizes one sync run
type BatchResult struct {
	RunID          uuid.UUID
	Mode           Mode
	StartedAt      time.Time
	FinishedAt     time.Time
	ProcessedCount int
	UpdatedCount   int
	CreatedCount   int
	PromoCount     int
	Errors         []string
	Cancelled      bool
}

// SyncService runs fetch, derive and reconcile over an upstream snapshot
type SyncService struct {
	Source     domain.CatalogSource
	Store      domain.PricingStore
	Pipeline   *derivation.Pipeline
	Reconciler Reconciler
	Clock      clockwork.Clock
	Workers    int
	Logger     zerolog.Logger
}

// NewSyncService creates a new SyncService instance. Workers below one run sequentially.
func NewSyncService(
	source domain.CatalogSource,
	store domain.PricingStore,
	pipeline *derivation.Pipeline,
	reconciler Reconciler,
	clock clockwork.Clock,
	workers int,
	logger zerolog.Logger,
) *SyncService {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if pipeline == nil {
		pipeline = derivation.NewPipeline(time.UTC)
	}
	if workers < 1 {
		workers = 1
	}
	return &SyncService{
		Source:     source,
		Store:      store,
		Pipeline:   pipeline,
		Reconciler: reconciler,
		Clock:      clock,
		Workers:    workers,
		Logger:     logger,
	}
}

// SyncAll reconciles every entry of the upstream snapshot
func (s *SyncService) SyncAll(ctx context.Context, policy domain.PricingPolicy) (*BatchResult, error) {
	return s.run(ctx, ModeAll, policy, nil)
}

// SyncExisting reconciles only the snapshot entries whose extension is already stored
func (s *SyncService) SyncExisting(ctx context.Context, policy domain.PricingPolicy) (*BatchResult, error) {
	extensions, err := s.Store.ListExtensions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list stored extensions: %w", err)
	}
	if extensions == nil {
		extensions = []string{}
	}
	return s.run(ctx, ModeExisting, policy, extensions)
}

// SyncSelected reconciles the named extensions. Names missing from the snapshot are reported as errors.
func (s *SyncService) SyncSelected(ctx context.Context, policy domain.PricingPolicy, extensions []string) (*BatchResult, error) {
	if len(extensions) == 0 {
		return nil, ErrNoExtensions
	}
	return s.run(ctx, ModeSelected, policy, extensions)
}

// Sync dispatches on mode
func (s *SyncService) Sync(ctx context.Context, mode Mode, policy domain.PricingPolicy, extensions []string) (*BatchResult, error) {
	switch mode {
	case ModeExisting:
		return s.SyncExisting(ctx, policy)
	case ModeSelected:
		return s.SyncSelected(ctx, policy, extensions)
	default:
		return s.SyncAll(ctx, policy)
	}
}

// run executes one cycle.
// Logic:
//  1. Fetch the snapshot, a FetchError aborts before anything is written
//  2. Keep the entries the mode asks for and derive them, failed entries become errors
//  3. Reconcile keys over a bounded pool, checking cancellation before each key
//
// A key that has started always finishes even when ctx is cancelled.
func (s *SyncService) run(ctx context.Context, mode Mode, policy domain.PricingPolicy, only []string) (*BatchResult, error) {
	result := &BatchResult{
		RunID:     uuid.New(),
		Mode:      mode,
		StartedAt: s.Clock.Now(),
	}
	logger := s.Logger.With().Str("run_id", result.RunID.String()).Str("mode", string(mode)).Logger()

	if err := policy.Validate(); err != nil {
		return nil, &domain.ConfigError{Field: "pricing policy", Value: string(policy.Margin.Type), Reason: err.Error()}
	}

	entries, err := s.Source.FetchSnapshot(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("failed to fetch upstream snapshot")
		return nil, err
	}

	if only != nil {
		var missing []string
		entries, missing = filterEntries(entries, only)
		if mode == ModeSelected {
			for _, ext := range missing {
				result.Errors = append(result.Errors, fmt.Sprintf("%s: not present in upstream snapshot", ext))
			}
		}
	}

	derived, failures := s.Pipeline.DeriveBatch(entries, policy, result.StartedAt)
	for _, failure := range failures {
		logger.Warn().Err(failure).Msg("skipping catalog entry")
		result.Errors = append(result.Errors, failure.Error())
		result.ProcessedCount++
	}

	var (
		mu      sync.Mutex
		g       errgroup.Group
		skipped bool
	)
	g.SetLimit(s.Workers)

	for _, set := range derived {
		if ctx.Err() != nil {
			mu.Lock()
			skipped = true
			mu.Unlock()
			break
		}

		g.Go(func() error {
			if ctx.Err() != nil {
				mu.Lock()
				skipped = true
				mu.Unlock()
				return nil
			}

			res := s.Reconciler.Reconcile(context.WithoutCancel(ctx), set.Extension, set)

			mu.Lock()
			defer mu.Unlock()
			result.ProcessedCount++
			if res.Updated {
				result.UpdatedCount++
			}
			if res.Created {
				result.CreatedCount++
			}
			if set.PromoActive {
				result.PromoCount++
			}
			result.Errors = append(result.Errors, res.Errors...)
			return nil
		})
	}
	_ = g.Wait()

	result.Cancelled = skipped
	result.FinishedAt = s.Clock.Now()

	logger.Info().
		Int("processed", result.ProcessedCount).
		Int("updated", result.UpdatedCount).
		Int("promos", result.PromoCount).
		Int("errors", len(result.Errors)).
		Bool("cancelled", result.Cancelled).
		Dur("took", result.FinishedAt.Sub(result.StartedAt)).
		Msg("sync finished")

	return result, nil
}

// filterEntries keeps the entries named in only and returns the names the snapshot lacks
func filterEntries(entries []domain.CatalogEntry, only []string) ([]domain.CatalogEntry, []string) {
	wanted := make(map[string]bool, len(only))
	for _, ext := range only {
		if ext = domain.NormalizeExtension(ext); ext != "" {
			wanted[ext] = false
		}
	}

	kept := make([]domain.CatalogEntry, 0, len(wanted))
	for _, entry := range entries {
		if _, ok := wanted[entry.Key()]; ok {
			kept = append(kept, entry)
			wanted[entry.Key()] = true
		}
	}

	var missing []string
	for _, ext := range only {
		ext = domain.NormalizeExtension(ext)
		if seen, ok := wanted[ext]; ok && !seen {
			missing = append(missing, ext)
			wanted[ext] = true
		}
	}
	return kept, missing
}
