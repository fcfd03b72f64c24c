package automation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"product-pricing-service/internal/clock"
	"product-pricing-service/internal/domain"
	"product-pricing-service/internal/pricing"
)

// ErrInvalidInterval is returned when a non-positive cycle interval is requested.
var ErrInvalidInterval = errors.New("automation: interval must be greater than zero")

const defaultCycleTimeout = 30 * time.Second

// Repository is the read/write pair one cycle needs.
// ApplyPriceUpdates must be atomic: all updates and history entries, or none.
type Repository interface {
	FetchAllProducts(ctx context.Context) ([]domain.Product, error)
	ApplyPriceUpdates(ctx context.Context, updates []domain.PriceUpdate, history []domain.PriceHistoryEntry) error
}

// Status is a point-in-time snapshot of the scheduler.
type Status struct {
	IsRunning   bool         `json:"is_running"`
	LastUpdate  *time.Time   `json:"last_update"` // nil until the first successful cycle
	UpdateCount int64        `json:"update_count"`
	ErrorCount  int64        `json:"error_count"`
	Interval    float64      `json:"interval"` // seconds
	PriceRange  pricing.Band `json:"price_range"`
}

// Scheduler periodically re-prices the whole catalog while running.
//
// Locking: mu serializes Start, Stop and reconfiguration and is held by Stop
// while it joins the worker. stateMu guards the fields below it and is the only
// lock taken by the worker and by Status; it is never held across repository I/O.
type Scheduler struct {
	repo          Repository
	policy        *pricing.Policy
	clock         clock.Clock
	logger        *log.Logger
	cycleTimeout  time.Duration
	debug         bool
	stateListener func(running bool)

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	cycleMu sync.Mutex

	stateMu     sync.RWMutex
	running     bool
	interval    time.Duration
	band        pricing.Band
	lastUpdate  time.Time
	updateCount int64
	errorCount  int64
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock sets the clock used to stamp price updates.
func WithClock(c clock.Clock) Option {
	return func(s *Scheduler) { s.clock = c }
}

// WithPolicy sets the pricing policy.
func WithPolicy(p *pricing.Policy) Option {
	return func(s *Scheduler) { s.policy = p }
}

// WithLogger sets the logger used for lifecycle and cycle messages.
func WithLogger(l *log.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// WithCycleTimeout bounds the repository I/O of a single cycle.
func WithCycleTimeout(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.cycleTimeout = d
		}
	}
}

// WithStateListener registers fn to be called after every Start and Stop that
// changed the running state.
func WithStateListener(fn func(running bool)) Option {
	return func(s *Scheduler) { s.stateListener = fn }
}

// WithDebug enables per-cycle debug logging.
func WithDebug(enabled bool) Option {
	return func(s *Scheduler) { s.debug = enabled }
}

// New creates a stopped Scheduler. The worker is only launched by Start.
func New(repo Repository, interval time.Duration, band pricing.Band, opts ...Option) (*Scheduler, error) {
	if repo == nil {
		return nil, errors.New("automation: repository is required")
	}
	if interval <= 0 {
		return nil, ErrInvalidInterval
	}
	if err := band.Validate(); err != nil {
		return nil, err
	}

	s := &Scheduler{
		repo:         repo,
		policy:       pricing.NewPolicy(nil),
		clock:        clock.NewRealClock(),
		logger:       log.Default(),
		cycleTimeout: defaultCycleTimeout,
		interval:     interval,
		band:         band,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Start launches the worker. It returns false if the scheduler was already running.
func (s *Scheduler) Start() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		s.logger.Println("WARN: Price automation start requested, but it is already running.")
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.cancel, s.done = cancel, done
	s.setRunning(true)

	go s.run(ctx, done)

	s.logger.Printf("INFO: Price automation started (interval: %s).", s.currentInterval())
	return true
}

// Stop cancels the worker and blocks until it has exited. A cycle that is
// already persisting finishes first. It returns false if the scheduler was not running.
func (s *Scheduler) Stop() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel == nil {
		s.logger.Println("WARN: Price automation stop requested, but it is not running.")
		return false
	}

	s.cancel()
	<-s.done
	s.cancel, s.done = nil, nil
	s.setRunning(false)

	s.logger.Println("INFO: Price automation stopped.")
	return true
}

// Status returns the current snapshot without waiting on an in-flight cycle.
func (s *Scheduler) Status() Status {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()

	st := Status{
		IsRunning:   s.running,
		UpdateCount: s.updateCount,
		ErrorCount:  s.errorCount,
		Interval:    s.interval.Seconds(),
		PriceRange:  s.band,
	}
	if !s.lastUpdate.IsZero() {
		last := s.lastUpdate
		st.LastUpdate = &last
	}
	return st
}

// SetInterval changes the wait between cycles, effective from the next wait.
func (s *Scheduler) SetInterval(d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if d <= 0 {
		s.logger.Printf("WARN: Rejected automation interval %s: must be greater than zero.", d)
		return ErrInvalidInterval
	}

	s.stateMu.Lock()
	s.interval = d
	s.stateMu.Unlock()

	s.logger.Printf("INFO: Automation interval set to %s.", d)
	return nil
}

// SetPriceRange changes the factor band applied to original prices. An invalid
// band is rejected and the previous one kept.
func (s *Scheduler) SetPriceRange(minFactor, maxFactor float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	band := pricing.Band{MinFactor: minFactor, MaxFactor: maxFactor}
	if err := band.Validate(); err != nil {
		s.logger.Printf("WARN: Rejected automation price range [%v, %v]: %v", minFactor, maxFactor, err)
		return err
	}

	s.stateMu.Lock()
	s.band = band
	s.stateMu.Unlock()

	s.logger.Printf("INFO: Automation price range set to [%v, %v].", minFactor, maxFactor)
	return nil
}

func (s *Scheduler) setRunning(running bool) {
	s.stateMu.Lock()
	s.running = running
	s.stateMu.Unlock()

	if s.stateListener != nil {
		s.stateListener(running)
	}
}

func (s *Scheduler) currentInterval() time.Duration {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.interval
}

func (s *Scheduler) currentBand() pricing.Band {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.band
}

func (s *Scheduler) run(ctx context.Context, done chan<- struct{}) {
	defer close(done)

	for {
		if ctx.Err() != nil {
			return
		}

		s.runCycle(ctx)

		timer := time.NewTimer(s.currentInterval())
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// runCycle fetches the catalog, re-prices it and persists the batch atomically.
// It returns the number of products updated. Failures are counted, never fatal.
func (s *Scheduler) runCycle(ctx context.Context) (int, error) {
	s.cycleMu.Lock()
	defer s.cycleMu.Unlock()

	cycleID := uuid.NewString()

	// Detached from Stop: a started cycle always runs to completion.
	ioCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cycleTimeout)
	defer cancel()

	band := s.currentBand()

	products, err := s.repo.FetchAllProducts(ioCtx)
	if err != nil {
		s.recordFailure()
		s.logger.Printf("ERROR: Automation cycle %s failed to fetch products: %v", cycleID, err)
		return 0, fmt.Errorf("automation: cycle failed to fetch products: %w", err)
	}

	now := s.clock.Now()
	updates := make([]domain.PriceUpdate, 0, len(products))
	history := make([]domain.PriceHistoryEntry, 0, len(products))
	for _, p := range products {
		price, ok := s.policy.NewPrice(p.OriginalPrice, p.CurrentPrice, band)
		if !ok {
			continue
		}
		updates = append(updates, domain.PriceUpdate{ProductID: p.ID, NewPrice: price, UpdatedAt: now})
		history = append(history, domain.PriceHistoryEntry{ProductID: p.ID, Price: price, Timestamp: now})
	}

	if len(updates) == 0 {
		s.debugf("Automation cycle %s: no price changes for %d products.", cycleID, len(products))
		return 0, nil
	}

	if err := s.repo.ApplyPriceUpdates(ioCtx, updates, history); err != nil {
		s.recordFailure()
		s.logger.Printf("ERROR: Automation cycle %s failed to persist %d price updates: %v", cycleID, len(updates), err)
		return 0, fmt.Errorf("automation: cycle failed to persist price updates: %w", err)
	}

	s.recordSuccess(now)
	s.logger.Printf("INFO: Automation cycle %s updated %d of %d products.", cycleID, len(updates), len(products))
	return len(updates), nil
}

func (s *Scheduler) recordSuccess(at time.Time) {
	s.stateMu.Lock()
	s.lastUpdate = at
	s.updateCount++
	s.stateMu.Unlock()
}

func (s *Scheduler) recordFailure() {
	s.stateMu.Lock()
	s.errorCount++
	s.stateMu.Unlock()
}

func (s *Scheduler) debugf(format string, args ...any) {
	if s.debug {
		s.logger.Printf("DEBUG: "+format, args...)
	}
}
