package payments

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/roastrush/game-server/internal/app/system"
	"github.com/roastrush/game-server/pkg/logger"
)

// Journal entry states. A payment is pending until broadcast succeeds,
// broadcast until the ledger credit commits, then credited. A broadcast
// entry that never becomes credited is the "paid but not credited" case the
// reconcile poller reports.
const (
	entryPending   = "pending"
	entryBroadcast = "broadcast"
	entryCredited  = "credited"
	entryFailed    = "failed"
)

// Entry is one tracked payment.
type Entry struct {
	ID        string
	TxID      string
	Payer     string
	PackageID int
	Amount    int64
	State     string
	Detail    string
	UpdatedAt time.Time
}

// Journal tracks payments between validation and ledger credit so that a
// crash in the window after broadcast leaves an inspectable trace.
type Journal struct {
	mu      sync.Mutex
	entries map[string]Entry
	byTxID  map[string]string
}

// NewJournal creates an empty journal.
func NewJournal() *Journal {
	return &Journal{
		entries: make(map[string]Entry),
		byTxID:  make(map[string]string),
	}
}

// RecordPending registers a validated payment about to be broadcast.
func (j *Journal) RecordPending(payer string, packageID int, amount int64) string {
	j.mu.Lock()
	defer j.mu.Unlock()

	id := uuid.NewString()
	j.entries[id] = Entry{
		ID:        id,
		Payer:     payer,
		PackageID: packageID,
		Amount:    amount,
		State:     entryPending,
		UpdatedAt: time.Now().UTC(),
	}
	return id
}

// MarkBroadcast transitions an entry after a successful broadcast.
func (j *Journal) MarkBroadcast(id, txID string) {
	j.mu.Lock()
	defer j.mu.Unlock()

	e, ok := j.entries[id]
	if !ok {
		return
	}
	e.TxID = txID
	e.State = entryBroadcast
	e.UpdatedAt = time.Now().UTC()
	j.entries[id] = e
	j.byTxID[txID] = id
}

// MarkFailed records a broadcast failure. Failed entries are terminal: the
// ledger was never touched.
func (j *Journal) MarkFailed(id, detail string) {
	j.mu.Lock()
	defer j.mu.Unlock()

	e, ok := j.entries[id]
	if !ok {
		return
	}
	e.State = entryFailed
	e.Detail = detail
	e.UpdatedAt = time.Now().UTC()
	j.entries[id] = e
}

// MarkCredited closes the entry for a broadcast transaction whose ledger
// credit committed.
func (j *Journal) MarkCredited(txID string) {
	j.mu.Lock()
	defer j.mu.Unlock()

	id, ok := j.byTxID[txID]
	if !ok {
		return
	}
	e := j.entries[id]
	e.State = entryCredited
	e.UpdatedAt = time.Now().UTC()
	j.entries[id] = e
}

// Uncredited returns broadcast entries older than the cutoff that never saw
// their ledger credit commit.
func (j *Journal) Uncredited(olderThan time.Duration) []Entry {
	j.mu.Lock()
	defer j.mu.Unlock()

	cutoff := time.Now().UTC().Add(-olderThan)
	var out []Entry
	for _, e := range j.entries {
		if e.State == entryBroadcast && e.UpdatedAt.Before(cutoff) {
			out = append(out, e)
		}
	}
	return out
}

// ReconcilePoller periodically reports payments that were broadcast but
// never credited, so operators can reconcile them against the chain. It does
// not re-credit automatically: replay protection is delegated to the payment
// network and double-crediting here would be worse than flagging.
type ReconcilePoller struct {
	journal  *Journal
	interval time.Duration
	lag      time.Duration
	log      *logger.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

var _ system.Service = (*ReconcilePoller)(nil)

// NewReconcilePoller creates the poller over the service's journal.
func NewReconcilePoller(journal *Journal, log *logger.Logger) *ReconcilePoller {
	if log == nil {
		log = logger.NewDefault("payments-reconcile")
	}
	return &ReconcilePoller{
		journal:  journal,
		interval: 30 * time.Second,
		lag:      time.Minute,
		log:      log,
	}
}

func (p *ReconcilePoller) Name() string { return "payments-reconcile" }

func (p *ReconcilePoller) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.running = true

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				p.tick()
			}
		}
	}()

	p.log.Info("payment reconcile poller started")
	return nil
}

func (p *ReconcilePoller) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	cancel := p.cancel
	p.running = false
	p.cancel = nil
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		p.wg.Wait()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	return nil
}

func (p *ReconcilePoller) tick() {
	for _, e := range p.journal.Uncredited(p.lag) {
		p.log.WithFields(map[string]interface{}{
			"txid":    e.TxID,
			"payer":   e.Payer,
			"package": e.PackageID,
			"amount":  e.Amount,
			"age":     time.Since(e.UpdatedAt).String(),
		}).Warn("broadcast payment still uncredited")
	}
}
