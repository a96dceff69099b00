package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/shunichi-ikebuchi/smartspend/pkg/connectivity"
	"github.com/shunichi-ikebuchi/smartspend/pkg/syncer"
)

var metricsAddr string

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run the sync engine until interrupted",
	Long: `Keep the sync engine running. Changes made by other smartspend commands
are picked up from the database, connectivity is sampled with the probe
(SMARTSPEND_PROBE_ADDR) and pending changes are pushed when the network
comes back.

Metrics are served on --metrics-addr at /metrics.

Example:
  SMARTSPEND_PROBE_ADDR=script.google.com:443 smartspend watch --metrics-addr :9310`,
	Args: cobra.NoArgs,
	Run:  runWatch,
}

func init() {
	watchCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
}

func runWatch(cmd *cobra.Command, args []string) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	a := openApp()
	a.startSync(ctx, reg)
	defer a.close()

	a.engine.Subscribe(func(s syncer.State) {
		slog.Info("Sync state changed", "state", s)
	})

	if a.cfg.Probe.Addr != "" {
		probe := connectivity.NewProbe(a.cfg.Probe.Addr, a.cfg.Probe.Interval)
		probe.Logger = slog.Default()
		go probe.Run(ctx, a.monitor)
		slog.Info("Probing connectivity", "addr", a.cfg.Probe.Addr, "interval", a.cfg.Probe.Interval)
	}

	var server *http.Server
	if metricsAddr != "" {
		r := chi.NewRouter()
		r.Use(middleware.Recoverer)
		r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = fmt.Fprintln(w, a.engine.State())
		})

		server = &http.Server{
			Addr:              metricsAddr,
			Handler:           r,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("Metrics server error", "error", err)
			}
		}()
		slog.Info("Serving metrics", "addr", metricsAddr)
	}

	// Pick up ledger writes made by other processes.
	go reloadLedger(ctx, a)

	status := a.engine.Status()
	slog.Info("Watching", "state", status.State, "online", status.Online)

	<-ctx.Done()
	slog.Info("Shutting down")

	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}
}

// reloadLedger polls the database and marks the ledger changed when another
// process rewrote the stored snapshot.
func reloadLedger(ctx context.Context, a *app) {
	ticker := time.NewTicker(a.cfg.Sync.Debounce)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			changed, err := a.ledger.Reload()
			if err != nil {
				slog.Warn("Failed to reload ledger", "error", err)
				continue
			}
			if changed {
				slog.Debug("Ledger changed on disk")
			}
		}
	}
}
