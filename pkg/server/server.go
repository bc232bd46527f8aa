// Package server implements the HTTP+JSON transport for the Push/Pull sync
// contract described in spec.md §6, plus a WebSocket channel that lets
// connected replicas learn about newly accepted operations without
// polling Pull. It replaces the teacher's gRPC+protobuf pkg/api: the
// teacher's generated stubs depend on a .proto file outside the reference
// pack, and spec.md mandates a JSON wire format regardless.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/carrysync/carry/pkg/cluster"
	"github.com/carrysync/carry/pkg/log"
	"github.com/carrysync/carry/pkg/metrics"
	"github.com/carrysync/carry/pkg/operation"
	"github.com/carrysync/carry/pkg/persistence/postgres"
	"github.com/carrysync/carry/pkg/reconcile"
	"github.com/carrysync/carry/pkg/store"
)

// Publisher fans an accepted operation out to other server processes, e.g.
// pkg/broadcast's Redis pub/sub. Optional: a Server with no Publisher only
// notifies the WebSocket clients connected to itself.
type Publisher interface {
	Publish(ctx context.Context, op operation.Operation) error
}

// Server answers Push/Pull/health/ws requests against a server-side Store,
// durably persisting every accepted operation to the canonical operation
// log before acknowledging it.
type Server struct {
	store    *store.Store
	opLog    *postgres.OperationLog
	cluster  *cluster.Cluster
	strategy reconcile.MergeStrategy
	hub      *Hub
	logger   zerolog.Logger
	rateCfg  Config
	pub      Publisher

	storeMu sync.Mutex // serializes push requests' use of store

	limiterMu sync.Mutex
	limiters  map[string]*rate.Limiter

	router *mux.Router
}

// Config configures rate limiting and merge behavior.
type Config struct {
	Strategy        reconcile.MergeStrategy
	RateLimitPerSec float64
	RateLimitBurst  int
	Publisher       Publisher
}

// New builds a Server wired to st (server-side engine state), opLog
// (durable log), and an optional cluster for leadership checks.
func New(st *store.Store, opLog *postgres.OperationLog, cl *cluster.Cluster, cfg Config) *Server {
	if cfg.RateLimitPerSec == 0 {
		cfg.RateLimitPerSec = 50
	}
	if cfg.RateLimitBurst == 0 {
		cfg.RateLimitBurst = 100
	}
	if cfg.Strategy == "" {
		cfg.Strategy = reconcile.ClockWins
	}

	s := &Server{
		store:    st,
		opLog:    opLog,
		cluster:  cl,
		strategy: cfg.Strategy,
		hub:      newHub(),
		logger:   log.WithComponent("server"),
		rateCfg:  cfg,
		pub:      cfg.Publisher,
		limiters: map[string]*rate.Limiter{},
	}
	s.router = s.buildRouter()
	go s.hub.run()
	return s
}

func (s *Server) buildRouter() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/push", s.handlePush).Methods(http.MethodPost)
	r.HandleFunc("/pull", s.handlePull).Methods(http.MethodGet)
	r.HandleFunc("/healthz", metrics.HealthHandler()).Methods(http.MethodGet)
	r.HandleFunc("/ws", s.handleWebSocket).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	return r
}

// Router returns the HTTP handler to mount on an http.Server.
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) limiterFor(nodeID string) *rate.Limiter {
	s.limiterMu.Lock()
	defer s.limiterMu.Unlock()
	l, ok := s.limiters[nodeID]
	if !ok {
		l = rate.NewLimiter(rate.Limit(s.rateCfg.RateLimitPerSec), s.rateCfg.RateLimitBurst)
		s.limiters[nodeID] = l
	}
	return l
}

func (s *Server) handlePush(w http.ResponseWriter, r *http.Request) {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.SyncRequestDuration, "push")

	var req PushRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		metrics.PushRequestsTotal.WithLabelValues("invalid_request").Inc()
		http.Error(w, "invalid push request", http.StatusBadRequest)
		return
	}

	if !s.limiterFor(req.NodeID).Allow() {
		metrics.PushRequestsTotal.WithLabelValues("rate_limited").Inc()
		http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
		return
	}

	resp, err := s.push(r.Context(), req)
	if err != nil {
		metrics.PushRequestsTotal.WithLabelValues("error").Inc()
		s.logger.Error().Err(err).Str("node_id", req.NodeID).Msg("push failed")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	metrics.PushRequestsTotal.WithLabelValues("ok").Inc()
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *Server) push(ctx context.Context, req PushRequest) (PushResponse, error) {
	s.storeMu.Lock()
	defer s.storeMu.Unlock()

	byID := make(map[string]operation.Operation, len(req.Operations))
	opIDs := make([]string, 0, len(req.Operations))
	for _, op := range req.Operations {
		byID[op.OpID] = op
		opIDs = append(opIDs, op.OpID)
	}

	seen, err := s.opLog.SeenOpIDs(ctx, opIDs)
	if err != nil {
		return PushResponse{}, err
	}

	var fresh []operation.Operation
	for _, op := range req.Operations {
		if !seen[op.OpID] {
			fresh = append(fresh, op)
		}
	}

	result, err := s.store.Reconcile(fresh, s.strategy)
	if err != nil {
		return PushResponse{}, err
	}
	metrics.ReconciliationCyclesTotal.Inc()
	metrics.ConflictsTotal.WithLabelValues("resolved").Add(float64(len(result.Conflicts)))
	metrics.OrphanOpsTotal.Add(float64(len(result.SkippedOrphan)))

	resp := PushResponse{ServerClock: s.store.Clock().Counter}
	for id := range seen {
		resp.Accepted = append(resp.Accepted, id)
	}
	resp.Accepted = append(resp.Accepted, result.AppliedRemote...)

	winnerFor := map[string]string{}
	for _, c := range result.Conflicts {
		winnerFor[c.RemoteOp.OpID] = c.WinnerOpID
	}
	for _, id := range result.RejectedRemote {
		resp.Rejected = append(resp.Rejected, RejectedOp{OpID: id, Reason: "conflict", Winner: winnerFor[id]})
	}
	for _, id := range result.SkippedOrphan {
		resp.Rejected = append(resp.Rejected, RejectedOp{OpID: id, Reason: "no matching record"})
	}

	for _, id := range result.AppliedRemote {
		op, ok := byID[id]
		if !ok {
			continue
		}
		if err := s.opLog.Append(ctx, op); err != nil {
			return PushResponse{}, err
		}
		if rec, ok := s.store.GetIncludingDeleted(op.Collection, op.ID); ok {
			if err := s.opLog.UpsertRecord(ctx, rec.Collection, rec.ID, rec.Version, rec.Payload, rec.Deleted,
				rec.Metadata.CreatedAt, rec.Metadata.UpdatedAt, string(rec.Metadata.Origin), rec.Metadata.Clock); err != nil {
				return PushResponse{}, err
			}
		}
		s.hub.broadcast(op)
		if s.pub != nil {
			if err := s.pub.Publish(ctx, op); err != nil {
				s.logger.Warn().Err(err).Str("op_id", op.OpID).Msg("failed to publish operation to broadcast bus")
			}
		}
	}

	return resp, nil
}

// BroadcastLocal notifies this replica's own WebSocket clients about an
// operation accepted by a sibling replica, without re-publishing it (the
// caller is expected to be pkg/broadcast's Subscribe loop).
func (s *Server) BroadcastLocal(op operation.Operation) {
	s.hub.broadcast(op)
}

func (s *Server) handlePull(w http.ResponseWriter, r *http.Request) {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.SyncRequestDuration, "pull")

	since := r.URL.Query().Get("since")
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= 1000 {
			limit = parsed
		}
	}

	ops, token, hasMore, err := s.opLog.Since(r.Context(), since, limit)
	if err != nil {
		metrics.PullRequestsTotal.WithLabelValues("error").Inc()
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	metrics.PullRequestsTotal.WithLabelValues("ok").Inc()
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(PullResponse{Operations: ops, SyncToken: token, HasMore: hasMore})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	s.hub.serve(w, r)
}

// Shutdown stops the broadcast hub.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.stop()
	return nil
}
