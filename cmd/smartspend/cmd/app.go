package cmd

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/shunichi-ikebuchi/smartspend/pkg/config"
	"github.com/shunichi-ikebuchi/smartspend/pkg/connectivity"
	"github.com/shunichi-ikebuchi/smartspend/pkg/db"
	"github.com/shunichi-ikebuchi/smartspend/pkg/ledger"
	"github.com/shunichi-ikebuchi/smartspend/pkg/pathutil"
	"github.com/shunichi-ikebuchi/smartspend/pkg/replica"
	"github.com/shunichi-ikebuchi/smartspend/pkg/syncer"
)

// app bundles the components a command works with.
type app struct {
	cfg     *config.Config
	paths   *pathutil.PathResolver
	conn    *db.Connection
	ledger  *ledger.Store
	history *db.SyncHistory
	configs *db.SyncConfigStore
	monitor *connectivity.Monitor
	engine  *syncer.Engine
}

// openApp loads configuration and opens the local ledger.
func openApp() *app {
	cfg, err := config.Load(getConfigFile())
	exitOnError(err, "failed to load configuration")

	if err := cfg.Validate([]string{"smartspend", "home"}, []string{"smartspend", "currency"}); err != nil {
		exitOnError(err, "invalid configuration")
	}

	paths := pathutil.New(pathutil.Config{
		Home:          cfg.Home,
		DatabasePath:  cfg.DBPath,
		BeancountRoot: cfg.Beancount.Root,
		MappingFile:   cfg.Beancount.MappingFile,
	})

	dbPath := paths.GetDatabasePath()
	slog.Debug("Opening database", "path", dbPath)

	conn, err := db.Open(dbPath)
	exitOnError(err, "failed to open database")

	store, err := ledger.Open(db.NewLedgerStore(conn))
	if err != nil {
		conn.Close()
		exitOnError(err, "failed to load ledger")
	}

	return &app{
		cfg:     cfg,
		paths:   paths,
		conn:    conn,
		ledger:  store,
		history: db.NewSyncHistory(conn),
		configs: db.NewSyncConfigStore(conn),
	}
}

// startSync attaches the sync engine. The initial connectivity comes from the
// probe when one is configured; otherwise the host is assumed online.
func (a *app) startSync(ctx context.Context, reg prometheus.Registerer) {
	online := true
	if a.cfg.Probe.Addr != "" {
		online = connectivity.NewProbe(a.cfg.Probe.Addr, a.cfg.Probe.Interval).Reachable(ctx)
	}
	a.monitor = connectivity.New(online)

	client := replica.NewClient(replica.ClientConfig{
		Timeout:     a.cfg.Sync.HTTPTimeout,
		CheckStatus: a.cfg.Sync.CheckStatus,
	})

	opts := []syncer.Option{
		syncer.WithDebounce(a.cfg.Sync.Debounce),
		syncer.WithHistory(a.history),
		syncer.WithLogger(slog.Default()),
	}
	if reg != nil {
		opts = append(opts, syncer.WithMetrics(syncer.NewMetrics(reg)))
	}

	engine, err := syncer.New(a.ledger, client, a.monitor, a.configs, opts...)
	exitOnError(err, "failed to start sync engine")
	a.engine = engine
}

// close pushes changes still waiting for their debounce window, then releases
// everything.
func (a *app) close() {
	if a.engine != nil {
		ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Sync.HTTPTimeout+5*time.Second)
		if err := a.engine.Flush(ctx); err != nil {
			slog.Warn("Sync push failed, changes stay pending", "error", err)
		}
		cancel()
		a.engine.Close()
	}
	if err := a.conn.Close(); err != nil {
		slog.Error("Failed to close database", "error", err)
	}
}
