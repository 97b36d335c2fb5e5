/*
scheduler.go - Periodic ledger audit

PURPOSE:
  Replays every user's ledger on an interval and logs any account whose
  stored balance drifted from the sum of its applied transactions. Drift
  means a bug or a manual database edit; nothing is corrected automatically.

DESIGN:
  - Runs a background goroutine with a configurable interval
  - Pages through users and replays each inside its own transaction, so a
    concurrent purchase cannot show up as a false drift
  - Keeps the last run for inspection

USAGE:
  scheduler := NewAuditScheduler(store, time.Hour)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - ledger/query.go: Replay
  - GET /users/{id}/audit: the on-demand single-user audit
*/
package api

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/campus/rewards-engine/ledger"
	"github.com/campus/rewards-engine/loyalty"
)

const auditPageSize = 100

// AuditRun summarises one pass over all users.
type AuditRun struct {
	StartedAt time.Time
	Users     int
	Drifted   []ledger.Audit
}

// AuditScheduler handles the periodic ledger audit.
type AuditScheduler struct {
	Store         loyalty.TxStore
	CheckInterval time.Duration
	Enabled       bool
	Now           func() time.Time

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
	last   *AuditRun
}

// NewAuditScheduler creates a scheduler. A zero interval disables it.
func NewAuditScheduler(store loyalty.TxStore, interval time.Duration) *AuditScheduler {
	return &AuditScheduler{
		Store:         store,
		CheckInterval: interval,
		Enabled:       interval > 0,
		Now:           time.Now,
	}
}

// Start begins the scheduler.
func (s *AuditScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Enabled {
		log.Println("[Audit] Disabled, not starting")
		return
	}
	if s.ticker != nil {
		return
	}

	s.ticker = time.NewTicker(s.CheckInterval)
	s.stop = make(chan struct{})
	s.wg.Add(1)
	go s.run(s.ticker, s.stop)

	log.Printf("[Audit] Started with interval: %v", s.CheckInterval)
}

// Stop stops the scheduler and waits for a running pass to finish.
func (s *AuditScheduler) Stop() {
	s.mu.Lock()
	if s.ticker == nil {
		s.mu.Unlock()
		return
	}
	s.ticker.Stop()
	close(s.stop)
	s.ticker = nil
	s.mu.Unlock()

	s.wg.Wait()
	log.Println("[Audit] Stopped")
}

// LastRun returns the most recent completed pass, or nil.
func (s *AuditScheduler) LastRun() *AuditRun {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

func (s *AuditScheduler) run(ticker *time.Ticker, stop <-chan struct{}) {
	defer s.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-stop
		cancel()
	}()

	s.pass(ctx)
	for {
		select {
		case <-ticker.C:
			s.pass(ctx)
		case <-stop:
			return
		}
	}
}

func (s *AuditScheduler) pass(ctx context.Context) {
	run, err := s.RunOnce(ctx)
	if err != nil {
		log.Printf("[Audit] Pass failed: %v", err)
		return
	}
	if len(run.Drifted) > 0 {
		log.Printf("[Audit] Completed: %d users, %d drifted", run.Users, len(run.Drifted))
	}
}

// RunOnce audits every user and records the result as the last run.
func (s *AuditScheduler) RunOnce(ctx context.Context) (*AuditRun, error) {
	run := &AuditRun{StartedAt: s.Now()}

	for page := 1; ; page++ {
		users, total, err := s.Store.ListUsers(ctx, loyalty.UserFilter{
			Page: loyalty.Page{Page: page, Limit: auditPageSize},
		})
		if err != nil {
			return nil, err
		}
		for _, u := range users {
			audit, err := s.replay(ctx, u.ID)
			if err != nil {
				return nil, err
			}
			run.Users++
			if !audit.Consistent() {
				log.Printf("[Audit] Drift for %s: stored %d, replayed %d", u.Utorid, audit.Stored, audit.Replayed)
				run.Drifted = append(run.Drifted, *audit)
			}
		}
		if len(users) == 0 || page*auditPageSize >= total {
			break
		}
	}

	s.mu.Lock()
	s.last = run
	s.mu.Unlock()
	return run, nil
}

func (s *AuditScheduler) replay(ctx context.Context, userID int64) (*ledger.Audit, error) {
	var audit *ledger.Audit
	err := s.Store.WithTx(ctx, func(tx loyalty.Store) error {
		a, err := ledger.Replay(ctx, tx, userID)
		audit = a
		return err
	})
	return audit, err
}
