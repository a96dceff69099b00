package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/shunichi-ikebuchi/smartspend/pkg/ledger"
)

// DefaultDebounce is the quiet period after the last local change before a
// push is attempted.
const DefaultDebounce = 2 * time.Second

// Ledger is the local store the engine replicates.
type Ledger interface {
	Snapshot() ledger.Snapshot
	ReplaceSnapshot(snap ledger.Snapshot) error
	Subscribe(fn func(ledger.Change)) func()
}

// Replica is the remote endpoint.
type Replica interface {
	Push(ctx context.Context, url string, snap ledger.Snapshot) error
	Pull(ctx context.Context, url string) (ledger.Snapshot, error)
}

// Connectivity reports whether the network is believed reachable.
type Connectivity interface {
	Online() bool
	OnBecameOnline(fn func()) func()
}

// Confirmer decides whether a pulled snapshot replaces the local ledger.
type Confirmer func(ctx context.Context, remote ledger.Snapshot) (bool, error)

// PullResult reports what a Pull did.
type PullResult struct {
	Remote  ledger.Snapshot
	Applied bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithDebounce sets the debounce window.
func WithDebounce(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.debounce = d
		}
	}
}

// WithScheduler replaces the wall-clock scheduler.
func WithScheduler(s Scheduler) Option {
	return func(e *Engine) { e.scheduler = s }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithMetrics records engine activity into m.
func WithMetrics(m *Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithHistory records every finished operation into h.
func WithHistory(h History) Option {
	return func(e *Engine) { e.history = h }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// Engine keeps the remote replica converged with the local ledger. At most
// one network operation is in flight at a time.
type Engine struct {
	ledger    Ledger
	replica   Replica
	conn      Connectivity
	configs   ConfigStore
	scheduler Scheduler
	debounce  time.Duration
	logger    *slog.Logger
	metrics   *Metrics
	history   History
	now       func() time.Time

	mu        sync.Mutex
	state     State
	cfg       *Config
	lastErr   error
	busy      bool
	timer     Task
	timerSeq  uint64
	dirtyGen  uint64
	configGen uint64
	deferred  bool
	closed    bool
	events    []State

	nextListener int
	listeners    map[int]func(State)

	wg     sync.WaitGroup
	unsubs []func()
}

// New creates an Engine. The state starts Synced when a configuration is
// stored and Inactive otherwise.
func New(l Ledger, r Replica, conn Connectivity, configs ConfigStore, opts ...Option) (*Engine, error) {
	e := &Engine{
		ledger:    l,
		replica:   r,
		conn:      conn,
		configs:   configs,
		scheduler: NewTimerScheduler(),
		debounce:  DefaultDebounce,
		logger:    slog.Default(),
		now:       time.Now,
		state:     StateInactive,
		listeners: make(map[int]func(State)),
	}
	for _, opt := range opts {
		opt(e)
	}

	cfg, err := configs.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load sync config: %w", err)
	}
	if cfg != nil && cfg.URL != "" {
		e.cfg = cfg
		e.state = StateSynced
	}
	e.metrics.setState(e.state)

	e.unsubs = append(e.unsubs,
		l.Subscribe(e.onLedgerChange),
		conn.OnBecameOnline(e.onOnline),
	)
	return e, nil
}

// State returns the current state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Status returns the current state with its context.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	st := Status{State: e.state, Online: e.conn.Online()}
	if e.cfg != nil {
		cfg := *e.cfg
		st.Config = &cfg
	}
	if e.lastErr != nil {
		st.LastError = e.lastErr.Error()
	}
	return st
}

// Subscribe registers fn for state transitions. fn is called without engine
// locks held. The returned function unsubscribes.
func (e *Engine) Subscribe(fn func(State)) func() {
	e.mu.Lock()
	id := e.nextListener
	e.nextListener++
	e.listeners[id] = fn
	e.mu.Unlock()

	return func() {
		e.mu.Lock()
		delete(e.listeners, id)
		e.mu.Unlock()
	}
}

// SetConfig stores cfg and activates the engine. Changing the URL discards
// the result of any in-flight operation and schedules a push of the current
// ledger to the new endpoint.
func (e *Engine) SetConfig(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	e.mu.Lock()
	if e.cfg != nil && e.cfg.URL == cfg.URL {
		if cfg.LastSynced == nil {
			cfg.LastSynced = e.cfg.LastSynced
		}
	}
	if err := e.configs.SaveConfig(cfg); err != nil {
		e.mu.Unlock()
		return fmt.Errorf("failed to save sync config: %w", err)
	}

	changed := e.cfg == nil || e.cfg.URL != cfg.URL
	e.cfg = &cfg
	if changed {
		e.configGen++
		e.dirtyGen++
		e.deferred = false
		if !e.busy {
			e.transitionLocked(StatePending)
		}
		e.armLocked()
	}
	e.unlockAndNotify()

	e.logger.Info("sync configured", "url", cfg.URL)
	return nil
}

// ClearConfig removes the configuration. The engine becomes Inactive, any
// pending debounce is cancelled and an in-flight result will be discarded.
func (e *Engine) ClearConfig() error {
	e.mu.Lock()
	if err := e.configs.ClearConfig(); err != nil {
		e.mu.Unlock()
		return fmt.Errorf("failed to clear sync config: %w", err)
	}
	e.cfg = nil
	e.configGen++
	e.deferred = false
	e.lastErr = nil
	e.stopTimerLocked()
	e.transitionLocked(StateInactive)
	e.unlockAndNotify()

	e.logger.Info("sync configuration cleared")
	return nil
}

// Push sends the current ledger immediately, bypassing the debounce and the
// connectivity check.
func (e *Engine) Push(ctx context.Context) error {
	e.mu.Lock()
	if e.cfg == nil {
		e.mu.Unlock()
		return ErrNotConfigured
	}
	if e.busy {
		e.mu.Unlock()
		return ErrSyncInProgress
	}
	e.stopTimerLocked()
	op := e.beginLocked()
	e.unlockAndNotify()

	defer e.wg.Done()
	return e.push(ctx, op)
}

// Flush pushes right away if a change is still waiting for its debounce
// window. It waits for in-flight operations first and does nothing while
// offline or when there is nothing to push.
func (e *Engine) Flush(ctx context.Context) error {
	e.wg.Wait()

	e.mu.Lock()
	if e.cfg == nil || e.busy || !e.conn.Online() {
		e.mu.Unlock()
		return nil
	}
	if e.timer == nil && !e.deferred && e.state != StatePending {
		e.mu.Unlock()
		return nil
	}
	e.stopTimerLocked()
	e.deferred = false
	op := e.beginLocked()
	e.unlockAndNotify()

	defer e.wg.Done()
	return e.push(ctx, op)
}

// Pull fetches the remote snapshot and hands it to confirm. Only a confirmed
// snapshot replaces the local ledger. The engine stays busy until confirm
// returns, so no push can overwrite the remote in between.
func (e *Engine) Pull(ctx context.Context, confirm Confirmer) (PullResult, error) {
	e.mu.Lock()
	if e.cfg == nil {
		e.mu.Unlock()
		return PullResult{}, ErrNotConfigured
	}
	if e.busy {
		e.mu.Unlock()
		return PullResult{}, ErrSyncInProgress
	}
	prev := e.state
	op := e.beginLocked()
	e.unlockAndNotify()
	defer e.wg.Done()

	remote, err := e.replica.Pull(ctx, op.url)
	if err != nil {
		e.logger.Warn("pull failed", "error", err)
		e.finishPull(op, prev, OutcomeFailure, remote, err, false)
		return PullResult{}, err
	}

	if !e.stillCurrent(op) {
		e.finishPull(op, prev, OutcomeDiscarded, remote, ErrConfigChanged, false)
		return PullResult{}, ErrConfigChanged
	}

	e.touchLastSynced(op)

	ok, err := confirm(ctx, remote)
	if err != nil {
		e.finishPull(op, prev, OutcomeDeclined, remote, nil, false)
		return PullResult{Remote: remote}, fmt.Errorf("pull confirmation failed: %w", err)
	}
	if !ok {
		e.logger.Info("pull declined")
		e.finishPull(op, prev, OutcomeDeclined, remote, nil, false)
		return PullResult{Remote: remote}, nil
	}

	if !e.stillCurrent(op) {
		e.finishPull(op, prev, OutcomeDiscarded, remote, ErrConfigChanged, false)
		return PullResult{Remote: remote}, ErrConfigChanged
	}

	if err := e.ledger.ReplaceSnapshot(remote); err != nil {
		e.finishPull(op, prev, OutcomeFailure, remote, err, false)
		return PullResult{Remote: remote}, fmt.Errorf("failed to apply pulled snapshot: %w", err)
	}

	e.logger.Info("pulled snapshot applied",
		"transactions", len(remote.Transactions),
		"accounts", len(remote.Accounts),
	)
	e.finishPull(op, prev, OutcomeSuccess, remote, nil, true)
	return PullResult{Remote: remote, Applied: true}, nil
}

// Wait blocks until no operation is in flight.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// Close cancels the debounce timer, stops listening for changes and waits
// for the in-flight operation to finish.
func (e *Engine) Close() {
	e.mu.Lock()
	e.closed = true
	e.stopTimerLocked()
	unsubs := e.unsubs
	e.unsubs = nil
	e.mu.Unlock()

	for _, unsub := range unsubs {
		unsub()
	}
	e.wg.Wait()
}

type operation struct {
	url       string
	dirtyGen  uint64
	configGen uint64
}

// beginLocked marks the engine busy. The caller must call wg.Done when the
// operation ends.
func (e *Engine) beginLocked() operation {
	e.busy = true
	e.wg.Add(1)
	e.transitionLocked(StateSyncing)
	return operation{url: e.cfg.URL, dirtyGen: e.dirtyGen, configGen: e.configGen}
}

func (e *Engine) stillCurrent(op operation) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg != nil && e.configGen == op.configGen
}

func (e *Engine) onLedgerChange(c ledger.Change) {
	if c.Origin == ledger.OriginRemote {
		return
	}

	e.mu.Lock()
	if e.cfg == nil || e.closed {
		e.mu.Unlock()
		return
	}
	e.dirtyGen++
	if !e.busy {
		e.transitionLocked(StatePending)
	}
	e.armLocked()
	e.unlockAndNotify()
}

func (e *Engine) onOnline() {
	e.mu.Lock()
	if e.cfg == nil || e.busy || e.closed {
		e.mu.Unlock()
		return
	}
	if e.state != StatePending && e.state != StateError {
		e.mu.Unlock()
		return
	}
	e.logger.Info("connectivity restored, pushing")
	e.stopTimerLocked()
	e.startLocked()
	e.unlockAndNotify()
}

// armLocked (re)starts the debounce window. Only the callback of the latest
// timer can act.
func (e *Engine) armLocked() {
	if e.stopTimerLocked() {
		e.metrics.rearmed()
	}
	e.timerSeq++
	seq := e.timerSeq
	e.timer = e.scheduler.AfterFunc(e.debounce, func() { e.onTimer(seq) })
}

func (e *Engine) stopTimerLocked() bool {
	if e.timer == nil {
		return false
	}
	stopped := e.timer.Stop()
	e.timer = nil
	e.timerSeq++
	return stopped
}

func (e *Engine) onTimer(seq uint64) {
	e.mu.Lock()
	if seq != e.timerSeq || e.cfg == nil || e.closed {
		e.mu.Unlock()
		return
	}
	e.timer = nil
	switch {
	case e.busy:
		e.deferred = true
	case !e.conn.Online():
		e.logger.Debug("offline, push postponed")
		e.transitionLocked(StatePending)
	default:
		e.startLocked()
	}
	e.unlockAndNotify()
}

// startLocked launches a background push.
func (e *Engine) startLocked() {
	if e.closed {
		return
	}
	op := e.beginLocked()
	go func() {
		defer e.wg.Done()
		_ = e.push(context.Background(), op)
	}()
}

func (e *Engine) push(ctx context.Context, op operation) error {
	snap := e.ledger.Snapshot()
	err := e.replica.Push(ctx, op.url, snap)
	if err != nil {
		e.logger.Warn("push failed", "error", err)
	} else {
		e.logger.Info("push completed",
			"transactions", len(snap.Transactions),
			"accounts", len(snap.Accounts),
		)
	}
	return e.finishPush(op, snap, err)
}

func (e *Engine) finishPush(op operation, snap ledger.Snapshot, pushErr error) error {
	e.mu.Lock()
	e.busy = false

	var outcome string
	var result error
	switch {
	case e.cfg == nil || e.configGen != op.configGen:
		outcome = OutcomeDiscarded
		result = ErrConfigChanged
		if e.cfg != nil {
			e.transitionLocked(StatePending)
			e.resumeDeferredLocked()
		}
	case pushErr != nil:
		outcome = OutcomeFailure
		result = pushErr
		e.lastErr = pushErr
		e.deferred = false
		e.transitionLocked(StateError)
	default:
		outcome = OutcomeSuccess
		e.lastErr = nil
		e.saveLastSyncedLocked()
		e.settleLocked(op)
	}
	e.unlockAndNotify()

	e.record(DirectionPush, outcome, snap, pushErr)
	return result
}

func (e *Engine) finishPull(op operation, prev State, outcome string, remote ledger.Snapshot, opErr error, applied bool) {
	e.mu.Lock()
	e.busy = false
	switch {
	case e.cfg == nil || e.configGen != op.configGen:
		if e.cfg != nil {
			e.transitionLocked(StatePending)
			e.resumeDeferredLocked()
		}
	case applied:
		e.lastErr = nil
		e.stopTimerLocked()
		e.deferred = false
		e.transitionLocked(StateSynced)
	default:
		if opErr != nil && outcome == OutcomeFailure {
			e.lastErr = opErr
		}
		restore := prev
		if e.dirtyGen != op.dirtyGen {
			restore = StatePending
		}
		e.transitionLocked(restore)
		e.resumeDeferredLocked()
	}
	e.unlockAndNotify()

	e.record(DirectionPull, outcome, remote, opErr)
}

// settleLocked picks the state after a successful push.
func (e *Engine) settleLocked(op operation) {
	if e.dirtyGen == op.dirtyGen {
		e.deferred = false
		e.transitionLocked(StateSynced)
		return
	}
	e.transitionLocked(StatePending)
	e.resumeDeferredLocked()
}

// resumeDeferredLocked starts the push whose debounce fired while another
// operation was in flight.
func (e *Engine) resumeDeferredLocked() {
	if !e.deferred {
		return
	}
	e.deferred = false
	if e.conn.Online() {
		e.startLocked()
	}
}

func (e *Engine) touchLastSynced(op operation) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cfg == nil || e.configGen != op.configGen {
		return
	}
	e.saveLastSyncedLocked()
}

func (e *Engine) saveLastSyncedLocked() {
	now := e.now()
	cfg := *e.cfg
	cfg.LastSynced = &now
	if err := e.configs.SaveConfig(cfg); err != nil {
		e.logger.Warn("failed to save last synced time", "error", err)
		return
	}
	e.cfg = &cfg
}

func (e *Engine) record(direction, outcome string, snap ledger.Snapshot, opErr error) {
	e.metrics.observe(direction, outcome)
	if e.history == nil {
		return
	}
	a := Attempt{
		Direction:    direction,
		Outcome:      outcome,
		Transactions: len(snap.Transactions),
		Accounts:     len(snap.Accounts),
		At:           e.now(),
	}
	if opErr != nil {
		a.Error = opErr.Error()
	}
	if err := e.history.RecordAttempt(a); err != nil {
		e.logger.Warn("failed to record sync attempt", "error", err)
	}
}

func (e *Engine) transitionLocked(s State) {
	if e.state == s {
		return
	}
	e.logger.Debug("sync state", "from", e.state, "to", s)
	e.state = s
	e.events = append(e.events, s)
	e.metrics.setState(s)
}

// unlockAndNotify releases the engine lock and delivers queued transitions.
func (e *Engine) unlockAndNotify() {
	events := e.events
	e.events = nil
	var listeners []func(State)
	if len(events) > 0 {
		ids := make([]int, 0, len(e.listeners))
		for id := range e.listeners {
			ids = append(ids, id)
		}
		slices.Sort(ids)
		for _, id := range ids {
			listeners = append(listeners, e.listeners[id])
		}
	}
	e.mu.Unlock()

	for _, s := range events {
		for _, fn := range listeners {
			fn(s)
		}
	}
}
