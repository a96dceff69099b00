package syncer

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

// State is the sync engine state.
type State string

const (
	// StateInactive means no sync configuration is present.
	StateInactive State = "inactive"
	// StatePending means local changes have not been pushed yet.
	StatePending State = "pending"
	// StateSyncing means a push or pull is in flight.
	StateSyncing State = "syncing"
	// StateSynced means the last network operation succeeded and no newer
	// local change exists.
	StateSynced State = "synced"
	// StateError means the last network operation failed.
	StateError State = "error"
)

// States lists every state, for metrics and display.
var States = []State{StateInactive, StatePending, StateSyncing, StateSynced, StateError}

var (
	// ErrNotConfigured is returned by manual operations while no
	// configuration is present.
	ErrNotConfigured = errors.New("sync is not configured")

	// ErrSyncInProgress is returned when a network operation is already in
	// flight.
	ErrSyncInProgress = errors.New("sync already in progress")

	// ErrConfigChanged is returned when the configuration was cleared or
	// replaced while an operation was in flight; its result is discarded.
	ErrConfigChanged = errors.New("sync configuration changed during operation")
)

// Config is the process-wide sync configuration. Its presence gates the
// engine.
type Config struct {
	URL        string     `json:"url"`
	LastSynced *time.Time `json:"lastSynced,omitempty"`
}

// Validate checks that URL is an absolute http(s) URL.
func (c Config) Validate() error {
	u, err := url.Parse(c.URL)
	if err != nil {
		return fmt.Errorf("invalid sync url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid sync url %q: scheme must be http or https", c.URL)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid sync url %q: missing host", c.URL)
	}
	return nil
}

// ConfigStore persists the sync configuration as a single record.
type ConfigStore interface {
	// LoadConfig returns nil when no configuration is stored.
	LoadConfig() (*Config, error)
	SaveConfig(cfg Config) error
	ClearConfig() error
}

// Direction of a sync attempt.
const (
	DirectionPush = "push"
	DirectionPull = "pull"
)

// Outcomes of a sync attempt.
const (
	OutcomeSuccess   = "success"
	OutcomeFailure   = "failure"
	OutcomeDeclined  = "declined"
	OutcomeDiscarded = "discarded"
)

// Attempt describes one finished network operation.
type Attempt struct {
	Direction    string
	Outcome      string
	Transactions int
	Accounts     int
	Error        string
	At           time.Time
}

// History records sync attempts.
type History interface {
	RecordAttempt(a Attempt) error
}

// Status is a point-in-time view of the engine.
type Status struct {
	State     State
	Config    *Config
	Online    bool
	LastError string
}
