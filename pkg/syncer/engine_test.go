package syncer

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shunichi-ikebuchi/smartspend/pkg/connectivity"
	"github.com/shunichi-ikebuchi/smartspend/pkg/ledger"
	"github.com/shunichi-ikebuchi/smartspend/pkg/replica"
)

const testURL = "https://replica.example.com/exec"

var fixedNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

type harness struct {
	store   *ledger.Store
	replica *fakeReplica
	conn    *connectivity.Monitor
	configs *memoryConfigs
	sched   *manualScheduler
	history *recordingHistory
	states  *stateLog
	engine  *Engine
}

type harnessOptions struct {
	configured bool
	online     bool
	extra      []Option
}

func newHarness(t *testing.T, o harnessOptions) *harness {
	t.Helper()

	store, err := ledger.Open(ledger.NewMemoryPersister())
	require.NoError(t, err)

	h := &harness{
		store:   store,
		replica: newFakeReplica(),
		conn:    connectivity.New(o.online),
		configs: &memoryConfigs{},
		sched:   &manualScheduler{},
		history: &recordingHistory{},
		states:  &stateLog{},
	}
	if o.configured {
		h.configs.cfg = &Config{URL: testURL}
	}

	opts := append([]Option{
		WithScheduler(h.sched),
		WithDebounce(2 * time.Second),
		WithHistory(h.history),
		WithClock(func() time.Time { return fixedNow }),
	}, o.extra...)

	h.engine, err = New(h.store, h.replica, h.conn, h.configs, opts...)
	require.NoError(t, err)
	h.engine.Subscribe(h.states.record)
	t.Cleanup(h.engine.Close)
	return h
}

func (h *harness) addExpense(t *testing.T, amount float64) ledger.Transaction {
	t.Helper()
	tx, err := h.store.AddTransaction(ledger.Draft{
		Date:      fixedNow,
		Amount:    amount,
		Type:      ledger.TypeExpense,
		Category:  "Food",
		AccountID: ledger.CashAccountID,
	})
	require.NoError(t, err)
	return tx
}

func assertLastPushLen(t *testing.T, r *fakeReplica, n int) {
	t.Helper()
	snap, ok := r.LastPush()
	require.True(t, ok, "nothing was pushed")
	assert.Len(t, snap.Transactions, n)
}

func (h *harness) advance(d time.Duration) {
	h.sched.Advance(d)
	h.engine.Wait()
}

func TestInitialState(t *testing.T) {
	configured := newHarness(t, harnessOptions{configured: true, online: true})
	assert.Equal(t, StateSynced, configured.engine.State())

	inactive := newHarness(t, harnessOptions{online: true})
	assert.Equal(t, StateInactive, inactive.engine.State())

	inactive.addExpense(t, 10)
	assert.Equal(t, StateInactive, inactive.engine.State())
	assert.Equal(t, 0, inactive.sched.Armed())
	inactive.advance(time.Minute)
	assert.Equal(t, 0, inactive.replica.Pushes())
}

func TestDebounceCoalescesMutations(t *testing.T) {
	h := newHarness(t, harnessOptions{configured: true, online: true})

	for i := 0; i < 5; i++ {
		h.addExpense(t, float64(i+1))
	}
	assert.Equal(t, StatePending, h.engine.State())
	assert.Equal(t, 1, h.sched.Armed())

	h.advance(2 * time.Second)

	assert.Equal(t, 1, h.replica.Pushes())
	assertLastPushLen(t, h.replica, 5)
	assert.Equal(t, StateSynced, h.engine.State())
	assert.Equal(t, []State{StatePending, StateSyncing, StateSynced}, h.states.All())
}

func TestDebounceRestartsOnEveryChange(t *testing.T) {
	h := newHarness(t, harnessOptions{configured: true, online: true})

	h.addExpense(t, 1)
	h.advance(100 * time.Millisecond)
	h.addExpense(t, 2)

	// The window restarts at the second change, so nothing goes out at t=2000ms.
	h.advance(1899 * time.Millisecond)
	assert.Equal(t, 0, h.replica.Pushes())
	h.advance(time.Millisecond)
	assert.Equal(t, 0, h.replica.Pushes())

	h.advance(99 * time.Millisecond)
	assert.Equal(t, 0, h.replica.Pushes())
	assert.Equal(t, StatePending, h.engine.State())

	h.advance(time.Millisecond)
	assert.Equal(t, 1, h.replica.Pushes())
	assertLastPushLen(t, h.replica, 2)
}

func TestOfflineChangesPushOnceOnReconnect(t *testing.T) {
	h := newHarness(t, harnessOptions{configured: true, online: false})

	h.addExpense(t, 10)
	h.advance(2 * time.Second)
	assert.Equal(t, StatePending, h.engine.State())
	assert.Equal(t, 0, h.replica.Pushes())

	h.conn.Set(true)
	h.engine.Wait()
	assert.Equal(t, 1, h.replica.Pushes())
	assert.Equal(t, StateSynced, h.engine.State())

	h.advance(time.Minute)
	assert.Equal(t, 1, h.replica.Pushes())
}

func TestReconnectBypassesArmedDebounce(t *testing.T) {
	h := newHarness(t, harnessOptions{configured: true, online: false})

	h.addExpense(t, 10)
	h.conn.Set(true)
	h.engine.Wait()
	assert.Equal(t, 1, h.replica.Pushes())
	assert.Equal(t, 0, h.sched.Armed())

	h.advance(time.Minute)
	assert.Equal(t, 1, h.replica.Pushes())
}

func TestReconnectWhileSyncedDoesNothing(t *testing.T) {
	h := newHarness(t, harnessOptions{configured: true, online: true})

	h.conn.Set(false)
	h.conn.Set(true)
	h.engine.Wait()
	assert.Equal(t, 0, h.replica.Pushes())
	assert.Equal(t, StateSynced, h.engine.State())
}

func TestPushFailureSetsErrorWithoutRetry(t *testing.T) {
	h := newHarness(t, harnessOptions{configured: true, online: true})
	h.replica.setPushErr(fmt.Errorf("%w: connection refused", replica.ErrNetwork))

	h.addExpense(t, 10)
	h.advance(2 * time.Second)
	assert.Equal(t, StateError, h.engine.State())
	assert.Contains(t, h.engine.Status().LastError, "connection refused")

	h.advance(time.Minute)
	assert.Equal(t, 1, h.replica.Pushes(), "no automatic retry without a new trigger")

	h.replica.setPushErr(nil)
	h.conn.Set(false)
	h.conn.Set(true)
	h.engine.Wait()
	assert.Equal(t, 2, h.replica.Pushes())
	assert.Equal(t, StateSynced, h.engine.State())
	assert.Empty(t, h.engine.Status().LastError)
}

func TestChangeDuringPushLeavesPending(t *testing.T) {
	h := newHarness(t, harnessOptions{configured: true, online: true})
	release := h.replica.holdPushes()

	h.addExpense(t, 10)
	h.sched.Advance(2 * time.Second)
	<-h.replica.started
	assert.Equal(t, StateSyncing, h.engine.State())

	h.addExpense(t, 20)
	assert.Equal(t, StateSyncing, h.engine.State())

	release()
	h.engine.Wait()
	assert.Equal(t, StatePending, h.engine.State())
	assert.Equal(t, 1, h.replica.Pushes())

	h.advance(2 * time.Second)
	assert.Equal(t, 2, h.replica.Pushes())
	assertLastPushLen(t, h.replica, 2)
	assert.Equal(t, StateSynced, h.engine.State())
}

func TestDebounceFiringDuringPushIsDeferred(t *testing.T) {
	h := newHarness(t, harnessOptions{configured: true, online: true})
	release := h.replica.holdPushes()

	h.addExpense(t, 10)
	h.sched.Advance(2 * time.Second)
	<-h.replica.started

	h.addExpense(t, 20)
	h.sched.Advance(2 * time.Second)
	assert.Equal(t, 0, h.replica.Pushes(), "second push must wait for the first")

	release()
	h.engine.Wait()

	assert.Equal(t, 2, h.replica.Pushes())
	assertLastPushLen(t, h.replica, 2)
	assert.Equal(t, StateSynced, h.engine.State())
}

func TestManualPush(t *testing.T) {
	t.Run("not configured", func(t *testing.T) {
		h := newHarness(t, harnessOptions{online: true})
		assert.ErrorIs(t, h.engine.Push(context.Background()), ErrNotConfigured)
	})

	t.Run("pushes regardless of state", func(t *testing.T) {
		h := newHarness(t, harnessOptions{configured: true, online: false})
		require.NoError(t, h.engine.Push(context.Background()))
		assert.Equal(t, 1, h.replica.Pushes())
		assert.Equal(t, StateSynced, h.engine.State())

		cfg, err := h.configs.LoadConfig()
		require.NoError(t, err)
		require.NotNil(t, cfg.LastSynced)
		assert.True(t, cfg.LastSynced.Equal(fixedNow))
	})

	t.Run("cancels armed debounce", func(t *testing.T) {
		h := newHarness(t, harnessOptions{configured: true, online: true})
		h.addExpense(t, 10)
		require.NoError(t, h.engine.Push(context.Background()))
		h.advance(time.Minute)
		assert.Equal(t, 1, h.replica.Pushes())
	})

	t.Run("rejected while in flight", func(t *testing.T) {
		h := newHarness(t, harnessOptions{configured: true, online: true})
		release := h.replica.holdPushes()

		h.addExpense(t, 10)
		h.sched.Advance(2 * time.Second)
		<-h.replica.started

		assert.ErrorIs(t, h.engine.Push(context.Background()), ErrSyncInProgress)
		_, err := h.engine.Pull(context.Background(), func(context.Context, ledger.Snapshot) (bool, error) {
			t.Fatal("confirm must not be called")
			return false, nil
		})
		assert.ErrorIs(t, err, ErrSyncInProgress)

		release()
		h.engine.Wait()
		assert.Equal(t, 1, h.replica.Pushes())
	})
}

func remoteSnapshot() ledger.Snapshot {
	return ledger.Snapshot{
		Accounts: []ledger.Account{{ID: "bank", Name: "Bank", Emoji: "🏦"}},
		Transactions: []ledger.Transaction{
			{ID: "r1", Date: fixedNow, Amount: 5000, Type: ledger.TypeIncome, Category: "Salary", AccountID: "bank"},
		},
	}
}

func TestPullRequiresConfirmation(t *testing.T) {
	h := newHarness(t, harnessOptions{configured: true, online: true})
	h.replica.pullSnap = remoteSnapshot()
	local := h.addExpense(t, 10)
	require.NoError(t, h.engine.Push(context.Background()))

	var seen ledger.Snapshot
	res, err := h.engine.Pull(context.Background(), func(_ context.Context, remote ledger.Snapshot) (bool, error) {
		seen = remote
		return false, nil
	})
	require.NoError(t, err)
	assert.False(t, res.Applied)
	assert.Equal(t, remoteSnapshot(), seen)
	assert.Equal(t, []ledger.Transaction{local}, h.store.Transactions())
	assert.Equal(t, StateSynced, h.engine.State())

	res, err = h.engine.Pull(context.Background(), func(context.Context, ledger.Snapshot) (bool, error) {
		return true, nil
	})
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.Equal(t, remoteSnapshot(), h.store.Snapshot())
	assert.Equal(t, StateSynced, h.engine.State())

	h.advance(time.Minute)
	assert.Equal(t, 1, h.replica.Pushes(), "an applied pull must not schedule a push")

	attempts := h.history.Attempts()
	require.Len(t, attempts, 3)
	assert.Equal(t, OutcomeDeclined, attempts[1].Outcome)
	assert.Equal(t, OutcomeSuccess, attempts[2].Outcome)
	assert.Equal(t, DirectionPull, attempts[2].Direction)
}

func TestPullDeclineKeepsPending(t *testing.T) {
	h := newHarness(t, harnessOptions{configured: true, online: true})
	h.replica.pullSnap = remoteSnapshot()
	h.addExpense(t, 10)

	_, err := h.engine.Pull(context.Background(), func(context.Context, ledger.Snapshot) (bool, error) {
		return false, nil
	})
	require.NoError(t, err)
	assert.Equal(t, StatePending, h.engine.State())

	h.advance(2 * time.Second)
	assert.Equal(t, 1, h.replica.Pushes())
}

func TestPullAppliedCancelsPendingPush(t *testing.T) {
	h := newHarness(t, harnessOptions{configured: true, online: true})
	h.replica.pullSnap = remoteSnapshot()
	h.addExpense(t, 10)

	_, err := h.engine.Pull(context.Background(), func(context.Context, ledger.Snapshot) (bool, error) {
		return true, nil
	})
	require.NoError(t, err)
	assert.Equal(t, StateSynced, h.engine.State())
	assert.Equal(t, 0, h.sched.Armed())
}

func TestMalformedPullLeavesLedgerUntouched(t *testing.T) {
	h := newHarness(t, harnessOptions{configured: true, online: true})
	h.replica.pullErr = fmt.Errorf("%w: missing accounts", replica.ErrMalformedRemoteData)
	local := h.addExpense(t, 10)
	require.NoError(t, h.engine.Push(context.Background()))

	_, err := h.engine.Pull(context.Background(), func(context.Context, ledger.Snapshot) (bool, error) {
		t.Fatal("confirm must not be called")
		return false, nil
	})
	assert.ErrorIs(t, err, replica.ErrMalformedRemoteData)
	assert.Equal(t, []ledger.Transaction{local}, h.store.Transactions())
	assert.Equal(t, StateSynced, h.engine.State())

	attempts := h.history.Attempts()
	require.Len(t, attempts, 2)
	assert.Equal(t, OutcomeFailure, attempts[1].Outcome)
	assert.Contains(t, attempts[1].Error, "missing accounts")
}

func TestPullConfirmationError(t *testing.T) {
	h := newHarness(t, harnessOptions{configured: true, online: true})
	h.replica.pullSnap = remoteSnapshot()

	_, err := h.engine.Pull(context.Background(), func(context.Context, ledger.Snapshot) (bool, error) {
		return false, errors.New("stdin closed")
	})
	assert.ErrorContains(t, err, "stdin closed")
	assert.Empty(t, h.store.Transactions())
	assert.Equal(t, StateSynced, h.engine.State())
}

func TestClearConfigCancelsDebounce(t *testing.T) {
	h := newHarness(t, harnessOptions{configured: true, online: true})

	h.addExpense(t, 10)
	assert.Equal(t, 1, h.sched.Armed())

	require.NoError(t, h.engine.ClearConfig())
	assert.Equal(t, StateInactive, h.engine.State())
	assert.Equal(t, 0, h.sched.Armed())

	h.advance(time.Minute)
	assert.Equal(t, 0, h.replica.Pushes())

	cfg, err := h.configs.LoadConfig()
	require.NoError(t, err)
	assert.Nil(t, cfg)
}

func TestClearConfigDiscardsInFlightResult(t *testing.T) {
	h := newHarness(t, harnessOptions{configured: true, online: true})
	release := h.replica.holdPushes()

	h.addExpense(t, 10)
	h.sched.Advance(2 * time.Second)
	<-h.replica.started

	require.NoError(t, h.engine.ClearConfig())
	release()
	h.engine.Wait()

	assert.Equal(t, StateInactive, h.engine.State())
	attempts := h.history.Attempts()
	require.Len(t, attempts, 1)
	assert.Equal(t, OutcomeDiscarded, attempts[0].Outcome)

	cfg, err := h.configs.LoadConfig()
	require.NoError(t, err)
	assert.Nil(t, cfg, "a discarded result must not resurrect the config")
}

func TestSetConfig(t *testing.T) {
	h := newHarness(t, harnessOptions{online: true})
	h.addExpense(t, 10)

	assert.Error(t, h.engine.SetConfig(Config{URL: "ftp://replica.example.com"}))
	assert.Error(t, h.engine.SetConfig(Config{URL: "not a url"}))
	assert.Equal(t, StateInactive, h.engine.State())

	require.NoError(t, h.engine.SetConfig(Config{URL: testURL}))
	assert.Equal(t, StatePending, h.engine.State())

	h.advance(2 * time.Second)
	require.Equal(t, 1, h.replica.Pushes())
	assert.Equal(t, []string{testURL}, h.replica.URLs())
	assert.Equal(t, StateSynced, h.engine.State())

	st := h.engine.Status()
	require.NotNil(t, st.Config)
	require.NotNil(t, st.Config.LastSynced)
	assert.True(t, st.Config.LastSynced.Equal(fixedNow))
	assert.True(t, st.Online)
}

func TestURLChangeDuringPushReachesNewEndpoint(t *testing.T) {
	const otherURL = "https://other.example.com/exec"

	h := newHarness(t, harnessOptions{configured: true, online: true})
	release := h.replica.holdPushes()

	h.addExpense(t, 10)
	h.sched.Advance(2 * time.Second)
	<-h.replica.started

	require.NoError(t, h.engine.SetConfig(Config{URL: otherURL}))
	h.sched.Advance(2 * time.Second)
	assert.Equal(t, 0, h.sched.Armed())

	release()
	h.engine.Wait()
	h.advance(time.Minute)

	assert.Equal(t, []string{testURL, otherURL}, h.replica.URLs())
	assertLastPushLen(t, h.replica, 1)
	assert.Equal(t, StateSynced, h.engine.State())

	attempts := h.history.Attempts()
	require.Len(t, attempts, 2)
	assert.Equal(t, OutcomeDiscarded, attempts[0].Outcome)
	assert.Equal(t, OutcomeSuccess, attempts[1].Outcome)
}

func TestURLChangeDuringPullReachesNewEndpoint(t *testing.T) {
	const otherURL = "https://other.example.com/exec"

	h := newHarness(t, harnessOptions{configured: true, online: true})
	h.replica.pullSnap = remoteSnapshot()

	result, err := h.engine.Pull(context.Background(), func(context.Context, ledger.Snapshot) (bool, error) {
		require.NoError(t, h.engine.SetConfig(Config{URL: otherURL}))
		h.sched.Advance(2 * time.Second)
		return true, nil
	})
	assert.ErrorIs(t, err, ErrConfigChanged)
	assert.False(t, result.Applied)
	h.engine.Wait()

	assert.Equal(t, []string{otherURL}, h.replica.URLs())
	assert.Equal(t, StateSynced, h.engine.State())
}

func TestRemoteOriginChangesAreIgnored(t *testing.T) {
	h := newHarness(t, harnessOptions{configured: true, online: true})

	require.NoError(t, h.store.ReplaceSnapshot(remoteSnapshot()))
	assert.Equal(t, StateSynced, h.engine.State())
	assert.Equal(t, 0, h.sched.Armed())
}

func TestFlush(t *testing.T) {
	t.Run("pushes waiting change", func(t *testing.T) {
		h := newHarness(t, harnessOptions{configured: true, online: true})
		h.addExpense(t, 10)

		require.NoError(t, h.engine.Flush(context.Background()))
		assert.Equal(t, 1, h.replica.Pushes())
		assert.Equal(t, 0, h.sched.Armed())
		assert.Equal(t, StateSynced, h.engine.State())
	})

	t.Run("nothing to push", func(t *testing.T) {
		h := newHarness(t, harnessOptions{configured: true, online: true})
		require.NoError(t, h.engine.Flush(context.Background()))
		assert.Equal(t, 0, h.replica.Pushes())
	})

	t.Run("offline keeps pending", func(t *testing.T) {
		h := newHarness(t, harnessOptions{configured: true, online: false})
		h.addExpense(t, 10)
		require.NoError(t, h.engine.Flush(context.Background()))
		assert.Equal(t, 0, h.replica.Pushes())
		assert.Equal(t, StatePending, h.engine.State())
	})
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	h := newHarness(t, harnessOptions{configured: true, online: true, extra: []Option{WithMetrics(m)}})

	h.addExpense(t, 1)
	h.addExpense(t, 2)
	h.advance(2 * time.Second)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Operations.WithLabelValues(DirectionPush, OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Rearms))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.State.WithLabelValues(string(StateSynced))))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.State.WithLabelValues(string(StatePending))))
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		url     string
		wantErr bool
	}{
		{"https://script.google.com/macros/s/abc/exec", false},
		{"http://localhost:8080", false},
		{"", true},
		{"localhost:8080", true},
		{"https://", true},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			err := Config{URL: tt.url}.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
