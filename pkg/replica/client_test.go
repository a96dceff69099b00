package replica

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shunichi-ikebuchi/smartspend/pkg/ledger"
)

func sampleSnapshot() ledger.Snapshot {
	return ledger.Snapshot{
		Accounts: []ledger.Account{{ID: "cash", Name: "Cash", Emoji: "💵"}, {ID: "bank", Name: "Bank", Emoji: "🏦"}},
		Transactions: []ledger.Transaction{
			{ID: "t2", Date: time.Date(2024, 5, 2, 9, 0, 0, 0, time.UTC), Amount: 200, Type: ledger.TypeTransfer, AccountID: "bank", TargetAccountID: "cash"},
			{ID: "t1", Date: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC), Amount: 1000, Type: ledger.TypeIncome, Category: "Salary", AccountID: "bank"},
		},
	}
}

func TestPushWireFormat(t *testing.T) {
	var gotMethod, gotContentType string
	var gotBody map[string]json.RawMessage

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotContentType = r.Header.Get("Content-Type")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_, _ = io.WriteString(w, `{"status":"success"}`)
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{})
	require.NoError(t, c.Push(context.Background(), srv.URL, sampleSnapshot()))

	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "application/json", gotContentType)
	assert.JSONEq(t, `"push"`, string(gotBody["action"]))

	var txs []map[string]interface{}
	require.NoError(t, json.Unmarshal(gotBody["transactions"], &txs))
	require.Len(t, txs, 2)
	assert.Equal(t, "cash", txs[0]["targetAccountId"])
	_, hasTarget := txs[1]["targetAccountId"]
	assert.False(t, hasTarget, "absent target must be omitted, not null or empty")
	assert.Equal(t, "bank", txs[1]["accountId"])
	assert.Equal(t, 1000.0, txs[1]["amount"])
}

func TestPushEmptySnapshotSendsArrays(t *testing.T) {
	var body string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		body = string(b)
	}))
	defer srv.Close()

	require.NoError(t, NewClient(ClientConfig{}).Push(context.Background(), srv.URL, ledger.Snapshot{}))
	assert.JSONEq(t, `{"action":"push","transactions":[],"accounts":[]}`, body)
}

func TestPushIgnoresStatusByDefault(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	assert.NoError(t, NewClient(ClientConfig{}).Push(context.Background(), srv.URL, sampleSnapshot()))

	err := NewClient(ClientConfig{CheckStatus: true}).Push(context.Background(), srv.URL, sampleSnapshot())
	assert.ErrorIs(t, err, ErrNetwork)
}

func TestPushTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	err := NewClient(ClientConfig{Timeout: time.Second}).Push(context.Background(), url, sampleSnapshot())
	assert.ErrorIs(t, err, ErrNetwork)
}

func TestPull(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"transactions":[{"id":"t1","date":"2024-05-01T09:00:00Z","amount":1000,"type":"income","category":"Salary","description":"","accountId":"bank"}],
			"accounts":[{"id":"bank","name":"Bank","emoji":"🏦"}]
		}`)
	}))
	defer srv.Close()

	snap, err := NewClient(ClientConfig{}).Pull(context.Background(), srv.URL+"/exec?key=abc")
	require.NoError(t, err)

	assert.Contains(t, gotQuery, "action=pull")
	assert.Contains(t, gotQuery, "key=abc")
	require.Len(t, snap.Transactions, 1)
	assert.Equal(t, "", snap.Transactions[0].TargetAccountID)
	assert.Equal(t, ledger.TypeIncome, snap.Transactions[0].Type)
	assert.Equal(t, []ledger.Account{{ID: "bank", Name: "Bank", Emoji: "🏦"}}, snap.Accounts)
}

func TestPullFailures(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{"null accounts", http.StatusOK, `{"transactions":[],"accounts":null}`, ErrMalformedRemoteData},
		{"missing transactions", http.StatusOK, `{"accounts":[]}`, ErrMalformedRemoteData},
		{"not json", http.StatusOK, `<html>login</html>`, ErrMalformedRemoteData},
		{"bad row", http.StatusOK, `{"transactions":[{"id":"x","amount":"ten"}],"accounts":[]}`, ErrMalformedRemoteData},
		{"unknown type", http.StatusOK, `{"transactions":[{"id":"x","date":"2024-01-01T00:00:00Z","type":"gift"}],"accounts":[]}`, ErrMalformedRemoteData},
		{"account without id", http.StatusOK, `{"transactions":[],"accounts":[{"name":"Bank"}]}`, ErrMalformedRemoteData},
		{"server error", http.StatusBadGateway, `{"status":"error","error":"quota"}`, ErrNetwork},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			_, err := NewClient(ClientConfig{}).Pull(context.Background(), srv.URL)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestDecodeSnapshotEmptyCollections(t *testing.T) {
	snap, err := DecodeSnapshot([]byte(`{"transactions":[],"accounts":[]}`))
	require.NoError(t, err)
	assert.Empty(t, snap.Transactions)
	assert.NotNil(t, snap.Accounts)
}

func TestParseErrorIncludesBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = io.WriteString(w, "denied")
	}))
	defer srv.Close()

	_, err := NewClient(ClientConfig{}).Pull(context.Background(), srv.URL)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "denied"))
}
