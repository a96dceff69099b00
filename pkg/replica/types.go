// Package replica provides the client for the spreadsheet-backed remote
// replica. The wire contract is a full snapshot in both directions.
package replica

import (
	"encoding/json"
	"errors"

	"github.com/shunichi-ikebuchi/smartspend/pkg/ledger"
)

var (
	// ErrNetwork is returned for transport errors and non-success statuses.
	ErrNetwork = errors.New("replica network failure")

	// ErrMalformedRemoteData is returned when a pulled payload is not a
	// complete snapshot.
	ErrMalformedRemoteData = errors.New("malformed remote data")
)

// Actions understood by the remote endpoint.
const (
	ActionPush = "push"
	ActionPull = "pull"
)

// PushRequest is the body of POST <url>.
type PushRequest struct {
	Action       string               `json:"action"`
	Transactions []ledger.Transaction `json:"transactions"`
	Accounts     []ledger.Account     `json:"accounts"`
}

// PullResponse is the body returned by GET <url>?action=pull. Fields are kept
// raw so that a missing or null collection can be told apart from an empty one.
type PullResponse struct {
	Transactions json.RawMessage `json:"transactions"`
	Accounts     json.RawMessage `json:"accounts"`
}

// StatusResponse is what the remote answers to a push.
type StatusResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// NewPushRequest builds the push body for snap.
func NewPushRequest(snap ledger.Snapshot) PushRequest {
	snap = snap.Clone()
	return PushRequest{
		Action:       ActionPush,
		Transactions: snap.Transactions,
		Accounts:     snap.Accounts,
	}
}
