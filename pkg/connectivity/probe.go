package connectivity

import (
	"context"
	"log/slog"
	"net"
	"time"
)

// Probe samples reachability of a TCP address. It stands in for the
// platform's network-reachability signal on hosts that do not push one.
type Probe struct {
	Addr     string
	Interval time.Duration
	Timeout  time.Duration
	Logger   *slog.Logger

	dial func(ctx context.Context, network, addr string) (net.Conn, error)
}

// NewProbe creates a Probe for addr ("host:port").
func NewProbe(addr string, interval time.Duration) *Probe {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	d := &net.Dialer{}
	return &Probe{
		Addr:     addr,
		Interval: interval,
		Timeout:  3 * time.Second,
		Logger:   slog.Default(),
		dial:     d.DialContext,
	}
}

// Reachable reports whether a TCP connection to Addr can be opened.
func (p *Probe) Reachable(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	conn, err := p.dial(ctx, "tcp", p.Addr)
	if err != nil {
		p.Logger.Debug("probe failed", "addr", p.Addr, "error", err)
		return false
	}
	_ = conn.Close()
	return true
}

// Run feeds samples into m until ctx is done. Only transitions reach the
// monitor's handlers.
func (p *Probe) Run(ctx context.Context, m *Monitor) {
	ticker := time.NewTicker(p.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			online := p.Reachable(ctx)
			if online != m.Online() {
				p.Logger.Info("connectivity changed", "online", online, "addr", p.Addr)
			}
			m.Set(online)
		}
	}
}
