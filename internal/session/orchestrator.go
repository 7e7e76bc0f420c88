// Package session owns the current user's authentication state.
//
// All state transitions run on a single event-loop goroutine. Provider push
// events, completions of remote calls and public commands are queued as
// closures and executed one at a time in arrival order. Remote calls run on
// their own goroutines and post their results back; every result carries a
// ticket (generation, subject, request id) and is dropped if it is no longer
// current. Readers on other goroutines only ever see published State
// snapshots.
package session

import (
	"context"
	"errors"
	"sync"

	"github.com/dgellow/grant-intake/internal/credential"
	"github.com/dgellow/grant-intake/internal/identity"
	"github.com/dgellow/grant-intake/internal/log"
	"github.com/dgellow/grant-intake/internal/profile"
	"github.com/dgellow/grant-intake/internal/retry"
	"golang.org/x/sync/singleflight"
)

// ErrNoCredential is returned by AccessToken when no token, fresh or stale,
// is available.
var ErrNoCredential = errors.New("no credential available")

// ErrNotStarted is returned by commands issued before Start or after Stop.
var ErrNotStarted = errors.New("session orchestrator not running")

// Orchestrator is the session state machine.
type Orchestrator struct {
	provider identity.Provider
	fetcher  profile.Fetcher
	creds    *credential.Cache
	profiles *profile.Cache

	timeouts       Timeouts
	retryPolicy    retry.Policy
	privilegedRole string
	onExpired      func()

	ctx         context.Context
	cancel      context.CancelFunc
	done        chan struct{}
	unsubscribe func()
	startOnce   sync.Once
	stopOnce    sync.Once

	qmu     sync.Mutex
	pending []func()
	closed  bool
	signal  chan struct{}

	// loop-owned
	status      Status
	subject     string
	current     *profile.Profile
	expired     bool
	generation  uint64
	nextRequest uint64
	minRequest  uint64
	inFlight    int

	// credential misses collapse into one provider call
	group singleflight.Group

	stateMu  sync.RWMutex
	state    State
	watchers map[uint64]chan State
	nextWID  uint64
}

// New wires an orchestrator. Call Start to begin.
func New(provider identity.Provider, fetcher profile.Fetcher, creds *credential.Cache, profiles *profile.Cache, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		provider:       provider,
		fetcher:        fetcher,
		creds:          creds,
		profiles:       profiles,
		timeouts:       DefaultTimeouts(),
		retryPolicy:    retry.DefaultPolicy(),
		privilegedRole: DefaultPrivilegedRole,
		done:           make(chan struct{}),
		signal:         make(chan struct{}, 1),
		status:         StatusUninitialized,
		state:          State{Status: StatusUninitialized, Loading: true},
		watchers:       make(map[uint64]chan State),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Start subscribes to provider events and runs startup. It returns
// immediately; watch State or Watch for the outcome.
func (o *Orchestrator) Start(ctx context.Context) {
	o.startOnce.Do(func() {
		o.ctx, o.cancel = context.WithCancel(ctx)
		go o.loop()

		// startup is queued ahead of the provider's initial_session event
		o.post(o.beginStartup)
		o.unsubscribe = o.provider.Subscribe(func(ev identity.Event) {
			o.post(func() { o.handleEvent(ev) })
		})
	})
}

// Stop unsubscribes from the provider and ends the event loop. Late results
// of outstanding remote calls are dropped.
func (o *Orchestrator) Stop() {
	o.stopOnce.Do(func() {
		if o.unsubscribe != nil {
			o.unsubscribe()
		}

		o.qmu.Lock()
		o.closed = true
		o.pending = nil
		o.qmu.Unlock()

		if o.cancel != nil {
			o.cancel()
			<-o.done
		}

		o.stateMu.Lock()
		for id, ch := range o.watchers {
			close(ch)
			delete(o.watchers, id)
		}
		o.stateMu.Unlock()
	})
}

// State returns the latest published snapshot.
func (o *Orchestrator) State() State {
	o.stateMu.RLock()
	defer o.stateMu.RUnlock()
	return o.state
}

// Watch returns a channel receiving the current snapshot and then every
// subsequent one. Slow readers only miss intermediate snapshots, never the
// latest. The returned function stops the watch. After Stop the channel
// carries the last snapshot and is already closed.
func (o *Orchestrator) Watch() (<-chan State, func()) {
	ch := make(chan State, 1)

	o.stateMu.Lock()
	o.qmu.Lock()
	stopped := o.closed
	o.qmu.Unlock()
	if stopped {
		ch <- o.state
		close(ch)
		o.stateMu.Unlock()
		return ch, func() {}
	}
	id := o.nextWID
	o.nextWID++
	o.watchers[id] = ch
	ch <- o.state
	o.stateMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			o.stateMu.Lock()
			if _, ok := o.watchers[id]; ok {
				delete(o.watchers, id)
				close(ch)
			}
			o.stateMu.Unlock()
		})
	}
}

// ForceRefresh starts a profile fetch for the active subject even if one is
// already outstanding.
func (o *Orchestrator) ForceRefresh() {
	o.post(func() {
		if o.status != StatusAuthenticated || o.subject == "" {
			log.LogDebugWithFields("session", "Ignoring refresh request without a session", map[string]any{
				"status": string(o.status),
			})
			return
		}
		o.scheduleFetch(true)
	})
}

// SignOut asks the provider to end the session everywhere. Local state
// follows from the provider's signed_out event; if the provider call fails,
// local state is torn down anyway and the error is returned.
func (o *Orchestrator) SignOut(ctx context.Context) error {
	err := o.provider.SignOut(ctx, identity.ScopeGlobal)
	if err != nil {
		log.LogWarnWithFields("session", "Provider sign-out failed, signing out locally", map[string]any{
			"error": err.Error(),
		})
		o.post(o.handleSignedOut)
	}

	if syncErr := o.sync(ctx); syncErr != nil && err == nil {
		err = syncErr
	}
	return err
}

// sync waits until everything queued so far has run.
func (o *Orchestrator) sync(ctx context.Context) error {
	done := make(chan struct{})
	if !o.post(func() { close(done) }) {
		return ErrNotStarted
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-o.done:
		return ErrNotStarted
	}
}

// post queues fn for the loop. It never blocks and reports false once the
// orchestrator is stopped.
func (o *Orchestrator) post(fn func()) bool {
	o.qmu.Lock()
	if o.closed {
		o.qmu.Unlock()
		return false
	}
	o.pending = append(o.pending, fn)
	o.qmu.Unlock()

	select {
	case o.signal <- struct{}{}:
	default:
	}
	return true
}

func (o *Orchestrator) next() func() {
	o.qmu.Lock()
	defer o.qmu.Unlock()
	if len(o.pending) == 0 {
		return nil
	}
	fn := o.pending[0]
	o.pending[0] = nil
	o.pending = o.pending[1:]
	return fn
}

func (o *Orchestrator) loop() {
	defer close(o.done)

	for {
		select {
		case <-o.ctx.Done():
			return
		case <-o.signal:
		}

		for fn := o.next(); fn != nil; fn = o.next() {
			if o.ctx.Err() != nil {
				return
			}
			fn()
		}
	}
}

// publish snapshots loop-owned state for readers. Loop only.
func (o *Orchestrator) publish() {
	s := State{
		Status:         o.status,
		Loading:        o.status == StatusLoading || o.status == StatusUninitialized,
		Subject:        o.subject,
		SessionExpired: o.expired,
	}
	if o.current != nil {
		p := *o.current
		s.Profile = &p
		s.Privileged = p.Role == o.privilegedRole
	}

	o.stateMu.Lock()
	o.state = s
	for _, ch := range o.watchers {
		// only the loop sends, so after a drain there is room
		select {
		case ch <- s:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- s
		}
	}
	o.stateMu.Unlock()

	log.LogTraceWithFields("session", "State published", map[string]any{
		"status":  string(s.Status),
		"subject": s.Subject,
		"expired": s.SessionExpired,
	})
}
