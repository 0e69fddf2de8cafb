package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/creator-rank-crawler/internal/analytics"
	"github.com/JakeFAU/creator-rank-crawler/internal/channel"
	"github.com/JakeFAU/creator-rank-crawler/internal/logging"
	"github.com/JakeFAU/creator-rank-crawler/internal/metrics"
	"github.com/JakeFAU/creator-rank-crawler/internal/storage"
)

// Page size bounds for list reads.
const (
	DefaultLimit = 100
	MaxLimit     = 500
)

// Server wires HTTP handlers to the snapshot store.
type Server struct {
	router chi.Router
	store  channel.SnapshotStore
	opts   analytics.Options
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(store channel.SnapshotStore, opts analytics.Options, logger *zap.Logger) *Server {
	s := &Server{
		store:  store,
		opts:   opts,
		logger: logging.OrNop(logger).Named("api"),
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger))
	r.Use(recoverMiddleware(s.logger))
	r.Use(metricsMiddleware)
	r.Use(timeoutMiddleware(30 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Get("/health", s.health)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/channels", s.listChannels)
		r.Get("/channels/{rank}", s.getChannel)
		r.Get("/analytics", s.analytics)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": channel.StatusOK})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	h := storage.CheckHealth(r.Context(), s.store, channel.CollectionTop)
	status := http.StatusOK
	if h.Status != channel.StatusOK {
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, status, h)
}

type listResponse struct {
	Collection channel.Collection `json:"collection"`
	Total      int64              `json:"total"`
	Limit      int                `json:"limit"`
	Skip       int                `json:"skip"`
	Items      []channel.Snapshot `json:"items"`
}

func (s *Server) listChannels(w http.ResponseWriter, r *http.Request) {
	collection, err := parseCollection(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	q, err := parseQuery(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	items, err := s.store.FindSorted(r.Context(), collection, q)
	if err != nil {
		s.logger.Error("find sorted failed", zap.String("collection", string(collection)), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to read channels")
		return
	}
	total, err := s.store.CountAll(r.Context(), collection)
	if err != nil {
		s.logger.Error("count failed", zap.String("collection", string(collection)), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to count channels")
		return
	}
	if items == nil {
		items = []channel.Snapshot{}
	}
	s.writeJSON(w, http.StatusOK, listResponse{
		Collection: collection,
		Total:      total,
		Limit:      q.Limit,
		Skip:       q.Skip,
		Items:      items,
	})
}

func (s *Server) getChannel(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "rank")
	rank, err := strconv.Atoi(raw)
	if err != nil || rank < 1 {
		s.writeError(w, http.StatusBadRequest, "rank must be a positive integer")
		return
	}
	snap, err := s.store.Get(r.Context(), channel.CollectionTop, strconv.Itoa(rank))
	if errors.Is(err, channel.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "channel not found")
		return
	}
	if err != nil {
		s.logger.Error("get channel failed", zap.Int("rank", rank), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to read channel")
		return
	}
	s.writeJSON(w, http.StatusOK, snap)
}

func (s *Server) analytics(w http.ResponseWriter, r *http.Request) {
	collection, err := parseCollection(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	snaps, err := s.store.FindSorted(r.Context(), collection, channel.Query{Field: channel.SortByRank})
	if err != nil {
		s.logger.Error("analytics read failed", zap.String("collection", string(collection)), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to read channels")
		return
	}
	report := analytics.Compute(snaps, s.opts)
	if r.URL.Query().Get("entities") == "false" {
		report.Entities = nil
	}
	s.writeJSON(w, http.StatusOK, report)
}

func parseCollection(r *http.Request) (channel.Collection, error) {
	raw := r.URL.Query().Get("collection")
	if raw == "" {
		return channel.CollectionTop, nil
	}
	c := channel.Collection(raw)
	if !c.Valid() {
		return "", fmt.Errorf("unknown collection %q", raw)
	}
	return c, nil
}

func parseQuery(r *http.Request) (channel.Query, error) {
	values := r.URL.Query()
	q := channel.Query{Field: channel.SortByRank, Limit: DefaultLimit}

	if raw := values.Get("sort"); raw != "" {
		q.Field = channel.SortField(raw)
		if !q.Field.Valid() {
			return channel.Query{}, fmt.Errorf("unsupported sort field %q", raw)
		}
	}
	switch strings.ToLower(values.Get("order")) {
	case "", "asc":
		q.Direction = channel.Ascending
	case "desc":
		q.Direction = channel.Descending
	default:
		return channel.Query{}, fmt.Errorf("order must be asc or desc")
	}

	var err error
	if q.Limit, err = intParam(values.Get("limit"), DefaultLimit); err != nil || q.Limit < 1 || q.Limit > MaxLimit {
		return channel.Query{}, fmt.Errorf("limit must be between 1 and %d", MaxLimit)
	}
	if q.Skip, err = intParam(values.Get("skip"), 0); err != nil || q.Skip < 0 {
		return channel.Query{}, fmt.Errorf("skip must be a non-negative integer")
	}
	return q, nil
}

func intParam(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("parse %q: %w", raw, err)
	}
	return v, nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
