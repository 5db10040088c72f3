// Package pool supervises one ingestion worker per tenant.
package pool

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/nextlevelbuilder/tgmon/internal/ingest"
	"github.com/nextlevelbuilder/tgmon/internal/platform"
	"github.com/nextlevelbuilder/tgmon/internal/store"
)

// SessionFactory builds a platform session for a tenant.
type SessionFactory func(t store.Tenant) platform.Session

// Pool maps tenant ids to running workers.
type Pool struct {
	st        *store.Store
	factory   SessionFactory
	groups    []platform.GroupRef
	retention int
	alerter   ingest.Alerter

	// one shared mutex so concurrent gap recoveries across tenants
	// serialize their batch inserts
	batchMu sync.Mutex

	mu      sync.Mutex
	running map[int64]*running
}

type running struct {
	worker *ingest.Worker
	cancel context.CancelFunc
	done   chan struct{}
}

// New builds an empty pool.
func New(st *store.Store, factory SessionFactory, groups []platform.GroupRef, retentionDays int, alerter ingest.Alerter) *Pool {
	return &Pool{
		st:        st,
		factory:   factory,
		groups:    groups,
		retention: retentionDays,
		alerter:   alerter,
		running:   make(map[int64]*running),
	}
}

// StartAll starts a worker for every active tenant concurrently.
func (p *Pool) StartAll(ctx context.Context) error {
	tenants, err := p.st.GetTenants(true)
	if err != nil {
		return err
	}
	g, _ := errgroup.WithContext(ctx)
	for _, t := range tenants {
		t := t
		g.Go(func() error {
			p.StartTenant(ctx, t)
			return nil
		})
	}
	return g.Wait()
}

// StartTenant launches the tenant's worker. Starting an already-running
// tenant is a no-op.
func (p *Pool) StartTenant(ctx context.Context, t store.Tenant) {
	p.mu.Lock()
	if _, ok := p.running[t.ID]; ok {
		p.mu.Unlock()
		slog.Info("tenant already running", "tenant", t.Phone)
		return
	}

	sess := p.factory(t)
	w := ingest.New(ingest.Config{
		TenantID:      t.ID,
		Name:          t.Phone,
		Groups:        p.groups,
		RetentionDays: p.retention,
	}, p.st, sess, p.alerter, &p.batchMu)

	wctx, cancel := context.WithCancel(ctx)
	r := &running{worker: w, cancel: cancel, done: make(chan struct{})}
	p.running[t.ID] = r
	p.mu.Unlock()

	go func() {
		defer close(r.done)
		if err := w.Run(wctx); err != nil {
			slog.Error("worker exited", "tenant", t.Phone, "error", err)
		}
		p.mu.Lock()
		delete(p.running, t.ID)
		p.mu.Unlock()
	}()
	slog.Info("tenant started", "tenant", t.Phone)
}

// StopTenant cancels the tenant's worker and waits for it to exit.
func (p *Pool) StopTenant(id int64) {
	p.mu.Lock()
	r, ok := p.running[id]
	p.mu.Unlock()
	if !ok {
		return
	}
	r.cancel()
	<-r.done
}

// StopAll stops every worker concurrently and waits.
func (p *Pool) StopAll() {
	p.mu.Lock()
	rs := make([]*running, 0, len(p.running))
	for _, r := range p.running {
		rs = append(rs, r)
	}
	p.mu.Unlock()

	var wg sync.WaitGroup
	for _, r := range rs {
		wg.Add(1)
		go func(r *running) {
			defer wg.Done()
			r.cancel()
			<-r.done
		}(r)
	}
	wg.Wait()
}

// Status snapshots every running worker.
func (p *Pool) Status() []ingest.Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]ingest.Status, 0, len(p.running))
	for _, r := range p.running {
		out = append(out, r.worker.Status())
	}
	return out
}
