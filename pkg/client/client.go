// Package client is the sync client SDK: it wraps a local *store.Store and
// drives push/pull cycles against a remote pkg/server over HTTP+JSON.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/carrysync/carry/pkg/log"
	"github.com/carrysync/carry/pkg/operation"
	"github.com/carrysync/carry/pkg/reconcile"
	"github.com/carrysync/carry/pkg/store"
)

// Client drives sync cycles for one local Store against one remote server.
type Client struct {
	store      *store.Store
	addr       string
	httpClient *http.Client
	strategy   reconcile.MergeStrategy
	syncToken  string
	logger     zerolog.Logger
}

// Options configures a Client.
type Options struct {
	Timeout  time.Duration
	Strategy reconcile.MergeStrategy
}

// NewClient creates a sync client for st talking to the server at addr
// (e.g. "http://peer.example.com:8080").
func NewClient(addr string, st *store.Store, opts Options) *Client {
	if opts.Timeout == 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Strategy == "" {
		opts.Strategy = reconcile.ClockWins
	}
	return &Client{
		store:      st,
		addr:       addr,
		httpClient: &http.Client{Timeout: opts.Timeout},
		strategy:   opts.Strategy,
		logger:     log.WithComponent("client"),
	}
}

// pushPayload mirrors server.PushRequest without importing pkg/server,
// keeping the client dependency-free of the transport package's HTTP
// routing concerns.
type pushPayload struct {
	NodeID     string                `json:"nodeId"`
	Operations []operation.Operation `json:"operations"`
}

type rejectedOp struct {
	OpID   string `json:"opId"`
	Reason string `json:"reason"`
	Winner string `json:"winner,omitempty"`
}

type pushResult struct {
	Accepted    []string     `json:"accepted"`
	Rejected    []rejectedOp `json:"rejected"`
	ServerClock uint64       `json:"serverClock"`
}

type pullResult struct {
	Operations []operation.Operation `json:"operations"`
	SyncToken  string                `json:"syncToken"`
	HasMore    bool                  `json:"hasMore"`
}

// Push sends every pending local operation to the server and acknowledges
// whatever the server accepted.
func (c *Client) Push(ctx context.Context) (pushResult, error) {
	pending := c.store.PendingOps()
	payload := pushPayload{NodeID: c.store.NodeID(), Operations: pending}

	body, err := json.Marshal(payload)
	if err != nil {
		return pushResult{}, fmt.Errorf("marshal push payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.addr+"/push", bytes.NewReader(body))
	if err != nil {
		return pushResult{}, fmt.Errorf("build push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return pushResult{}, fmt.Errorf("push request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return pushResult{}, fmt.Errorf("push rejected with status %d", resp.StatusCode)
	}

	var result pushResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return pushResult{}, fmt.Errorf("decode push response: %w", err)
	}

	c.store.Acknowledge(result.Accepted)
	c.logger.Debug().
		Int("accepted", len(result.Accepted)).
		Int("rejected", len(result.Rejected)).
		Msg("push cycle complete")
	return result, nil
}

// Pull fetches new operations since the last successful Pull and reconciles
// them into the local store.
func (c *Client) Pull(ctx context.Context, limit int) (reconcile.Result, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	q := url.Values{}
	if c.syncToken != "" {
		q.Set("since", c.syncToken)
	}
	q.Set("limit", strconv.Itoa(limit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.addr+"/pull?"+q.Encode(), nil)
	if err != nil {
		return reconcile.Result{}, fmt.Errorf("build pull request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return reconcile.Result{}, fmt.Errorf("pull request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return reconcile.Result{}, fmt.Errorf("pull rejected with status %d", resp.StatusCode)
	}

	var pulled pullResult
	if err := json.NewDecoder(resp.Body).Decode(&pulled); err != nil {
		return reconcile.Result{}, fmt.Errorf("decode pull response: %w", err)
	}

	result, err := c.store.Reconcile(pulled.Operations, c.strategy)
	if err != nil {
		return reconcile.Result{}, fmt.Errorf("reconcile pulled operations: %w", err)
	}
	c.syncToken = pulled.SyncToken

	c.logger.Debug().
		Int("operations", len(pulled.Operations)).
		Bool("has_more", pulled.HasMore).
		Msg("pull cycle complete")
	return result, nil
}

// Sync runs a Push followed by a Pull, the usual one-shot sync cycle a
// client performs whenever connectivity is available.
func (c *Client) Sync(ctx context.Context) (pushResult, reconcile.Result, error) {
	pushed, err := c.Push(ctx)
	if err != nil {
		return pushResult{}, reconcile.Result{}, err
	}
	pulled, err := c.Pull(ctx, 0)
	if err != nil {
		return pushed, reconcile.Result{}, err
	}
	return pushed, pulled, nil
}
