package syncer

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shunichi-ikebuchi/smartspend/pkg/ledger"
)

// manualScheduler fires tasks only when Advance moves its clock past them.
type manualScheduler struct {
	mu    sync.Mutex
	now   time.Duration
	tasks []*manualTask
}

type manualTask struct {
	s       *manualScheduler
	at      time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (t *manualTask) Stop() bool {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

func (s *manualScheduler) AfterFunc(d time.Duration, f func()) Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &manualTask{s: s, at: s.now + d, f: f}
	s.tasks = append(s.tasks, t)
	return t
}

// Advance moves the clock and runs every task that became due, in order.
func (s *manualScheduler) Advance(d time.Duration) {
	s.mu.Lock()
	s.now += d
	var due []*manualTask
	for _, t := range s.tasks {
		if !t.stopped && !t.fired && t.at <= s.now {
			t.fired = true
			due = append(due, t)
		}
	}
	s.mu.Unlock()

	sort.SliceStable(due, func(i, j int) bool { return due[i].at < due[j].at })
	for _, t := range due {
		t.f()
	}
}

// Armed counts tasks that are still waiting.
func (s *manualScheduler) Armed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.tasks {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

// fakeReplica records pushes and serves a canned pull.
type fakeReplica struct {
	mu       sync.Mutex
	pushes   []ledger.Snapshot
	urls     []string
	pushErr  error
	pullSnap ledger.Snapshot
	pullErr  error
	pulls    int
	block    chan struct{}
	started  chan struct{}
}

func newFakeReplica() *fakeReplica {
	return &fakeReplica{}
}

// holdPushes makes every push wait until release is called.
func (r *fakeReplica) holdPushes() (release func()) {
	r.mu.Lock()
	r.block = make(chan struct{})
	r.started = make(chan struct{}, 16)
	block := r.block
	r.mu.Unlock()
	return func() { close(block) }
}

func (r *fakeReplica) Push(ctx context.Context, url string, snap ledger.Snapshot) error {
	r.mu.Lock()
	block, started := r.block, r.started
	r.mu.Unlock()

	if block != nil {
		started <- struct{}{}
		<-block
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.pushes = append(r.pushes, snap)
	r.urls = append(r.urls, url)
	return r.pushErr
}

func (r *fakeReplica) Pull(ctx context.Context, url string) (ledger.Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pulls++
	return r.pullSnap.Clone(), r.pullErr
}

func (r *fakeReplica) Pushes() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pushes)
}

// LastPush returns the most recent pushed snapshot, if any.
func (r *fakeReplica) LastPush() (ledger.Snapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.pushes) == 0 {
		return ledger.Snapshot{}, false
	}
	return r.pushes[len(r.pushes)-1], true
}

func (r *fakeReplica) URLs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.urls...)
}

func (r *fakeReplica) setPushErr(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pushErr = err
}

// memoryConfigs is an in-memory ConfigStore.
type memoryConfigs struct {
	mu    sync.Mutex
	cfg   *Config
	saves int
}

func (m *memoryConfigs) LoadConfig() (*Config, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cfg == nil {
		return nil, nil
	}
	cfg := *m.cfg
	return &cfg, nil
}

func (m *memoryConfigs) SaveConfig(cfg Config) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg = &cfg
	m.saves++
	return nil
}

func (m *memoryConfigs) ClearConfig() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg = nil
	return nil
}

// recordingHistory keeps attempts in memory.
type recordingHistory struct {
	mu       sync.Mutex
	attempts []Attempt
}

func (h *recordingHistory) RecordAttempt(a Attempt) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.attempts = append(h.attempts, a)
	return nil
}

func (h *recordingHistory) Attempts() []Attempt {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Attempt(nil), h.attempts...)
}

// stateLog collects state transitions.
type stateLog struct {
	mu     sync.Mutex
	states []State
}

func (l *stateLog) record(s State) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.states = append(l.states, s)
}

func (l *stateLog) All() []State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]State(nil), l.states...)
}
