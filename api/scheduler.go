/*
scheduler.go - Automated opening-balance verification

PURPOSE:
  Periodically verifies the opening balance of every student for the
  current accounting period. The first sweep of a period establishes the
  baseline snapshots; later sweeps surface backdated changes as
  DISCREPANCY results.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Resolves the current period from the configured PeriodConfig
  - Fans students out to a bounded pool of workers
  - Keeps the most recent runs in memory for the API and logs

CONFIGURATION:
  - CheckInterval: How often to sweep (default: 1 hour)
  - Workers: Concurrent verifications per sweep (default: 4)
  - Enabled: Whether the scheduler is active

USAGE:
  scheduler := NewVerificationScheduler(engine, store, periods, logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: VerifyOpeningBalance endpoint (single student)
  - ledger/verify.go: BalanceVerifier
*/
package api

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/warp/fee-ledger/ledger"
)

// maxRuns bounds the in-memory run history.
const maxRuns = 50

const (
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// StudentLister lists the students a sweep covers.
type StudentLister interface {
	ListStudents(ctx context.Context) ([]ledger.Student, error)
}

// Verifier is the part of the engine a sweep needs.
type Verifier interface {
	VerifyOpeningBalance(ctx context.Context, subjectID ledger.SubjectID, periodStart ledger.Date) (*ledger.VerificationResult, error)
}

// VerificationRun summarises one sweep.
type VerificationRun struct {
	ID            string
	PeriodStart   ledger.Date
	Status        string
	Checked       int
	Verified      int
	Established   int
	Discrepancies []ledger.SubjectID
	Errors        []string
	StartedAt     time.Time
	CompletedAt   time.Time
}

// VerificationScheduler handles periodic opening-balance verification.
type VerificationScheduler struct {
	Verifier      Verifier
	Students      StudentLister
	Periods       ledger.PeriodConfig
	CheckInterval time.Duration
	Workers       int
	Enabled       bool
	Logger        *slog.Logger

	// Today returns the date whose period is verified. Defaults to ledger.Today.
	Today func() ledger.Date

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex

	runsMu sync.Mutex
	runs   []VerificationRun
}

// NewVerificationScheduler creates a new scheduler.
func NewVerificationScheduler(verifier Verifier, students StudentLister, periods ledger.PeriodConfig, logger *slog.Logger) *VerificationScheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &VerificationScheduler{
		Verifier:      verifier,
		Students:      students,
		Periods:       periods,
		CheckInterval: time.Hour,
		Workers:       4,
		Enabled:       true,
		Logger:        logger.With("component", "scheduler"),
		Today:         ledger.Today,
	}
}

// Start begins the scheduler.
func (vs *VerificationScheduler) Start() {
	vs.mu.Lock()
	defer vs.mu.Unlock()

	if !vs.Enabled {
		vs.Logger.Info("disabled, not starting")
		return
	}
	if vs.ticker != nil {
		return
	}

	vs.ticker = time.NewTicker(vs.CheckInterval)
	vs.stop = make(chan struct{})
	vs.wg.Add(1)

	go vs.run()

	vs.Logger.Info("started", "interval", vs.CheckInterval, "workers", vs.Workers)
}

// Stop stops the scheduler and waits for an in-flight sweep to finish.
func (vs *VerificationScheduler) Stop() {
	vs.mu.Lock()
	defer vs.mu.Unlock()

	if vs.ticker != nil {
		vs.ticker.Stop()
		close(vs.stop)
		vs.wg.Wait()
		vs.ticker = nil
		vs.Logger.Info("stopped")
	}
}

func (vs *VerificationScheduler) run() {
	defer vs.wg.Done()

	// Run immediately on start
	vs.RunNow(context.Background())

	for {
		select {
		case <-vs.ticker.C:
			vs.RunNow(context.Background())
		case <-vs.stop:
			return
		}
	}
}

// RunNow performs one sweep synchronously and records it. Audit entries
// are attributed to "scheduler" unless ctx already names an actor.
func (vs *VerificationScheduler) RunNow(ctx context.Context) VerificationRun {
	if ledger.ActorFrom(ctx) == ledger.SystemActor {
		ctx = ledger.WithActor(ctx, "scheduler")
	}
	period := vs.Periods.PeriodFor(vs.today())

	run := VerificationRun{
		ID:          uuid.NewString(),
		PeriodStart: period.Start,
		Status:      RunStatusCompleted,
		StartedAt:   time.Now(),
	}

	students, err := vs.Students.ListStudents(ctx)
	if err != nil {
		run.Status = RunStatusFailed
		run.Errors = append(run.Errors, err.Error())
		run.CompletedAt = time.Now()
		vs.Logger.Error("listing students failed", "error", err)
		vs.record(run)
		return run
	}

	jobs := make(chan ledger.SubjectID)
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for i := 0; i < vs.workers(); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range jobs {
				res, err := vs.Verifier.VerifyOpeningBalance(ctx, id, period.Start)

				mu.Lock()
				run.Checked++
				switch {
				case err != nil:
					run.Errors = append(run.Errors, string(id)+": "+err.Error())
					vs.Logger.Warn("verification failed", "student_id", id, "error", err)
				case res.Verified:
					run.Verified++
					if res.Established {
						run.Established++
					}
				default:
					run.Discrepancies = append(run.Discrepancies, id)
					vs.Logger.Warn("opening balance discrepancy",
						"student_id", id,
						"period_start", period.Start.String(),
						"calculated", res.OpeningBalance.String(),
						"recorded", res.RecordedBalance.String())
				}
				mu.Unlock()
			}
		}()
	}

	for _, st := range students {
		select {
		case jobs <- st.ID:
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			break
		}
	}
	close(jobs)
	wg.Wait()

	if ctx.Err() != nil {
		run.Status = RunStatusFailed
		run.Errors = append(run.Errors, ctx.Err().Error())
	}
	run.CompletedAt = time.Now()
	vs.record(run)

	vs.Logger.Info("sweep completed",
		"run_id", run.ID,
		"period_start", run.PeriodStart.String(),
		"checked", run.Checked,
		"verified", run.Verified,
		"established", run.Established,
		"discrepancies", len(run.Discrepancies),
		"errors", len(run.Errors))
	return run
}

// Runs returns recorded sweeps, newest first.
func (vs *VerificationScheduler) Runs() []VerificationRun {
	vs.runsMu.Lock()
	defer vs.runsMu.Unlock()

	out := make([]VerificationRun, len(vs.runs))
	for i, run := range vs.runs {
		out[len(vs.runs)-1-i] = run
	}
	return out
}

func (vs *VerificationScheduler) record(run VerificationRun) {
	vs.runsMu.Lock()
	defer vs.runsMu.Unlock()

	vs.runs = append(vs.runs, run)
	if len(vs.runs) > maxRuns {
		vs.runs = vs.runs[len(vs.runs)-maxRuns:]
	}
}

func (vs *VerificationScheduler) workers() int {
	if vs.Workers < 1 {
		return 1
	}
	return vs.Workers
}

func (vs *VerificationScheduler) today() ledger.Date {
	if vs.Today != nil {
		return vs.Today()
	}
	return ledger.Today()
}
