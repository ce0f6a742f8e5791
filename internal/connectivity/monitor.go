// Package connectivity reports whether the remote system of record is
// reachable.
//
// The sync orchestrator consumes the Monitor interface: a subscription that
// delivers the current state immediately and every transition afterwards.
// Probe is the production implementation, polling a health endpoint. Manual
// is a settable flag for tests and the CLI's one-shot commands.
package connectivity

import (
	"context"
	"log"
	"net/http"
	"os"
	"sync"
	"time"
)

// Monitor reports binary online/offline state and transition events.
type Monitor interface {
	// Subscribe registers fn and invokes it immediately with the current
	// state. Afterwards fn fires on every transition. The returned cancel
	// function removes the subscription.
	Subscribe(fn func(online bool)) (cancel func())
	// Online returns the last observed state.
	Online() bool
}

// notifier implements subscriber bookkeeping shared by Monitor
// implementations.
type notifier struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]func(online bool)
	online bool
}

func newNotifier(online bool) *notifier {
	return &notifier{
		subs:   make(map[int]func(online bool)),
		online: online,
	}
}

func (n *notifier) Subscribe(fn func(online bool)) func() {
	n.mu.Lock()
	id := n.nextID
	n.nextID++
	n.subs[id] = fn
	current := n.online
	n.mu.Unlock()

	// Initial state is delivered immediately on subscription.
	fn(current)

	return func() {
		n.mu.Lock()
		delete(n.subs, id)
		n.mu.Unlock()
	}
}

func (n *notifier) Online() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.online
}

// set records the new state and returns the subscribers to notify, or nil
// when nothing changed.
func (n *notifier) set(online bool) []func(online bool) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.online == online {
		return nil
	}
	n.online = online

	fns := make([]func(online bool), 0, len(n.subs))
	for _, fn := range n.subs {
		fns = append(fns, fn)
	}
	return fns
}

// Manual is a Monitor whose state is set explicitly. It serves tests and
// one-shot CLI commands that assume connectivity.
type Manual struct {
	*notifier
}

// NewManual creates a Manual monitor with the given initial state.
func NewManual(online bool) *Manual {
	return &Manual{notifier: newNotifier(online)}
}

// SetOnline records the state and notifies subscribers on a transition.
func (m *Manual) SetOnline(online bool) {
	for _, fn := range m.set(online) {
		fn(online)
	}
}

// Probe polls a health endpoint and reports reachability transitions.
type Probe struct {
	*notifier

	healthURL string
	interval  time.Duration
	http      *http.Client
	logger    *log.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// ProbeConfig configures a Probe.
type ProbeConfig struct {
	// HealthURL is the endpoint checked for reachability.
	HealthURL string
	// Interval between checks. Defaults to 10 seconds.
	Interval time.Duration
	// Timeout for a single check. Defaults to 5 seconds.
	Timeout time.Duration
	// Logger for probe activity. Defaults to a stderr logger.
	Logger *log.Logger
}

// NewProbe creates a connectivity probe. The probe starts offline; the first
// check runs when Start is called.
func NewProbe(cfg ProbeConfig) *Probe {
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(os.Stderr, "[connectivity] ", log.LstdFlags)
	}

	return &Probe{
		notifier:  newNotifier(false),
		healthURL: cfg.HealthURL,
		interval:  cfg.Interval,
		http:      &http.Client{Timeout: cfg.Timeout},
		logger:    cfg.Logger,
	}
}

// Start checks once immediately, then keeps polling until Stop or context
// cancellation.
func (p *Probe) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)

	p.check(ctx)

	p.wg.Add(1)
	go p.loop(ctx)
}

// Stop halts polling and waits for the poll goroutine to exit.
func (p *Probe) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
}

func (p *Probe) loop(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.check(ctx)
		}
	}
}

func (p *Probe) check(ctx context.Context) {
	online := p.reachable(ctx)

	fns := p.set(online)
	if fns == nil {
		return
	}

	if online {
		p.logger.Printf("Connectivity regained (%s)", p.healthURL)
	} else {
		p.logger.Printf("Connectivity lost (%s)", p.healthURL)
	}
	for _, fn := range fns {
		fn(online)
	}
}

func (p *Probe) reachable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.healthURL, nil)
	if err != nil {
		return false
	}

	resp, err := p.http.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode < 500
}
