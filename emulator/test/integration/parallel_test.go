package integration

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/pigeonworks-llc/go-portalloc/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shunichi-ikebuchi/smartspend/emulator/internal/api"
	"github.com/shunichi-ikebuchi/smartspend/emulator/internal/store"
	"github.com/shunichi-ikebuchi/smartspend/pkg/connectivity"
	"github.com/shunichi-ikebuchi/smartspend/pkg/db"
	"github.com/shunichi-ikebuchi/smartspend/pkg/ledger"
	"github.com/shunichi-ikebuchi/smartspend/pkg/replica"
	"github.com/shunichi-ikebuchi/smartspend/pkg/syncer"
)

type parallelTestServer struct {
	baseURL string
	addr    string
	store   *store.Store
	closer  func()
}

func setupParallelTestServer(t *testing.T) *parallelTestServer {
	t.Helper()

	// Allocate a free port using go-portalloc
	allocator := ports.NewAllocator(nil)
	port, err := allocator.AllocateRange(1)
	if err != nil {
		t.Fatalf("Failed to allocate port: %v", err)
	}

	// Initialize store
	st, err := store.New(filepath.Join(t.TempDir(), fmt.Sprintf("sheets-%d.db", port)))
	if err != nil {
		t.Fatalf("Failed to initialize store: %v", err)
	}

	// Start server in background
	addr := fmt.Sprintf("localhost:%d", port)
	server := &http.Server{
		Addr:    addr,
		Handler: api.NewRouter(st, api.RouterConfig{}),
	}

	go func() {
		_ = server.ListenAndServe()
	}()

	// Wait for server to be ready
	baseURL := "http://" + addr
	maxRetries := 10
	for i := 0; i < maxRetries; i++ {
		resp, err := http.Get(baseURL + "/health")
		if err == nil {
			resp.Body.Close()
			break
		}
		if i == maxRetries-1 {
			st.Close()
			t.Fatalf("Server did not start: %v", err)
		}
		time.Sleep(50 * time.Millisecond)
	}

	var once sync.Once
	closer := func() {
		once.Do(func() {
			_ = server.Close()
			_ = st.Close()
		})
	}
	t.Cleanup(closer)

	return &parallelTestServer{
		baseURL: baseURL,
		addr:    addr,
		store:   st,
		closer:  closer,
	}
}

// device is one ledger with its own database and sync engine.
type device struct {
	ledger  *ledger.Store
	monitor *connectivity.Monitor
	engine  *syncer.Engine
}

func newDevice(t *testing.T, url string, configured bool) *device {
	t.Helper()

	conn, err := db.Open(filepath.Join(t.TempDir(), "smartspend.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	l, err := ledger.Open(db.NewLedgerStore(conn))
	require.NoError(t, err)

	configs := db.NewSyncConfigStore(conn)
	if configured {
		require.NoError(t, configs.SaveConfig(syncer.Config{URL: url}))
	}

	monitor := connectivity.New(true)
	rc := replica.NewClient(replica.ClientConfig{Timeout: 5 * time.Second, CheckStatus: true})

	engine, err := syncer.New(l, rc, monitor, configs,
		syncer.WithDebounce(20*time.Millisecond),
		syncer.WithHistory(db.NewSyncHistory(conn)),
	)
	require.NoError(t, err)
	t.Cleanup(engine.Close)

	return &device{ledger: l, monitor: monitor, engine: engine}
}

// remoteTransactions counts the rows of the Transactions sheet, -1 when the
// sheet cannot be read.
func (s *parallelTestServer) remoteTransactions() int {
	snap, err := s.store.Snapshot()
	if err != nil {
		return -1
	}
	return len(snap.Transactions)
}

func TestParallelEngineSync(t *testing.T) {
	t.Parallel()

	server := setupParallelTestServer(t)
	phone := newDevice(t, server.baseURL, false)

	require.NoError(t, phone.engine.SetConfig(syncer.Config{URL: server.baseURL}))
	require.NoError(t, phone.ledger.SetAccounts([]ledger.Account{walletAccount, bankAccount}))

	day := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	_, err := phone.ledger.AddTransaction(ledger.Draft{
		Date: day, Amount: 50000, Type: ledger.TypeIncome, Category: "Salary", AccountID: "bank",
	})
	require.NoError(t, err)
	_, err = phone.ledger.AddTransaction(ledger.Draft{
		Date: day, Amount: 450, Type: ledger.TypeExpense, Category: "Food", AccountID: "wallet",
	})
	require.NoError(t, err)

	t.Run("Debounced push reaches the replica", func(t *testing.T) {
		require.Eventually(t, func() bool {
			return phone.engine.State() == syncer.StateSynced && server.remoteTransactions() == 2
		}, 5*time.Second, 20*time.Millisecond)

		status := phone.engine.Status()
		require.NotNil(t, status.Config)
		assert.NotNil(t, status.Config.LastSynced)
	})

	t.Run("Offline changes are pushed on reconnect", func(t *testing.T) {
		phone.monitor.Set(false)

		_, err := phone.ledger.AddTransaction(ledger.Draft{
			Date: day.AddDate(0, 0, 1), Amount: 2000, Type: ledger.TypeTransfer,
			Category: "Transfer", AccountID: "bank", TargetAccountID: "wallet",
		})
		require.NoError(t, err)

		time.Sleep(100 * time.Millisecond)
		assert.Equal(t, syncer.StatePending, phone.engine.State())
		assert.Equal(t, 2, server.remoteTransactions())

		phone.monitor.Set(true)
		require.Eventually(t, func() bool {
			return phone.engine.State() == syncer.StateSynced && server.remoteTransactions() == 3
		}, 5*time.Second, 20*time.Millisecond)
	})

	t.Run("Second device restores with a confirmed pull", func(t *testing.T) {
		laptop := newDevice(t, server.baseURL, true)
		assert.Equal(t, syncer.StateSynced, laptop.engine.State())

		result, err := laptop.engine.Pull(context.Background(), func(ctx context.Context, remote ledger.Snapshot) (bool, error) {
			return len(remote.Transactions) == 3, nil
		})
		require.NoError(t, err)
		assert.True(t, result.Applied)

		assert.Len(t, laptop.ledger.Transactions(), 3)
		assert.Equal(t, phone.ledger.Snapshot(), laptop.ledger.Snapshot())
		assert.Equal(t, syncer.StateSynced, laptop.engine.State())
	})
}

func TestParallelProbe(t *testing.T) {
	t.Parallel()

	server := setupParallelTestServer(t)
	probe := connectivity.NewProbe(server.addr, 20*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	assert.True(t, probe.Reachable(ctx))

	monitor := connectivity.New(true)
	offline := make(chan struct{}, 1)
	monitor.OnBecameOffline(func() {
		select {
		case offline <- struct{}{}:
		default:
		}
	})
	go probe.Run(ctx, monitor)

	server.closer()

	select {
	case <-offline:
	case <-time.After(5 * time.Second):
		t.Fatal("Expected the probe to report the replica offline")
	}
	assert.False(t, monitor.Online())
}

func TestParallelConcurrentPushes(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping stress test in short mode")
	}

	t.Parallel()

	server := setupParallelTestServer(t)
	rc := replica.NewClient(replica.ClientConfig{Timeout: 5 * time.Second, CheckStatus: true})

	// Each push carries i+1 transactions and i+1 accounts, so a torn write
	// would show up as mismatched counts.
	t.Run("Concurrent pushes", func(t *testing.T) {
		for i := 0; i < 10; i++ {
			i := i
			t.Run(fmt.Sprintf("Push_%d", i), func(t *testing.T) {
				t.Parallel()

				b := NewSnapshotBuilder()
				for j := 0; j <= i; j++ {
					acc := ledger.Account{ID: fmt.Sprintf("acc-%d", j), Name: fmt.Sprintf("Account %d", j)}
					b.snap.Accounts = append(b.snap.Accounts, acc)
					b.Expense(float64(10*(j+1)), "Food", acc.ID, "2024-06-01")
				}

				if err := rc.Push(context.Background(), server.baseURL, b.Build()); err != nil {
					t.Errorf("Push %d failed: %v", i, err)
				}
			})
		}
	})

	t.Run("Replica holds one whole snapshot", func(t *testing.T) {
		got, err := rc.Pull(context.Background(), server.baseURL)
		require.NoError(t, err)
		assert.NotEmpty(t, got.Transactions)
		assert.Len(t, got.Accounts, len(got.Transactions))
	})
}
