// Package server exposes a running pipeline over HTTP: line ingestion,
// pattern and anomaly queries, a websocket report feed and metrics.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/hejijunhao/logwhisper/internal/connector"
	"github.com/hejijunhao/logwhisper/internal/metrics"
	"github.com/hejijunhao/logwhisper/internal/model"
	"github.com/hejijunhao/logwhisper/internal/output/journal"
	"github.com/hejijunhao/logwhisper/internal/pipeline"
	"github.com/hejijunhao/logwhisper/internal/store"
)

// DefaultMaxBody caps the size of an ingest request body.
const DefaultMaxBody = 8 << 20

const shutdownTimeout = 10 * time.Second

// Option configures a Server.
type Option func(*Server)

// WithMetrics serves m on /metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithJournal answers /v1/anomalies from j instead of the last detection pass.
func WithJournal(j *journal.Journal) Option {
	return func(s *Server) { s.journal = j }
}

// WithHub serves h on /v1/stream.
func WithHub(h *Hub) Option {
	return func(s *Server) { s.hub = h }
}

// WithLogger sets the request logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) { s.log = l }
}

// WithMaxBody overrides DefaultMaxBody.
func WithMaxBody(n int64) Option {
	return func(s *Server) { s.maxBody = n }
}

// Server routes HTTP requests onto a pipeline.
type Server struct {
	pipeline *pipeline.Pipeline
	metrics  *metrics.Metrics
	journal  *journal.Journal
	hub      *Hub
	log      *zap.Logger
	maxBody  int64
	router   *mux.Router
}

// New creates a Server for p.
func New(p *pipeline.Pipeline, opts ...Option) *Server {
	s := &Server{pipeline: p, log: zap.NewNop(), maxBody: DefaultMaxBody}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.routes()
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)

	// Full paths on the root router so a method mismatch is a 405.
	r.HandleFunc("/v1/ingest", s.handleIngest).Methods(http.MethodPost)
	r.HandleFunc("/v1/ingest/stats", s.handleIngestStats).Methods(http.MethodGet)
	r.HandleFunc("/v1/patterns", s.handlePatterns).Methods(http.MethodGet)
	r.HandleFunc("/v1/patterns/stats", s.handlePatternStats).Methods(http.MethodGet)
	r.HandleFunc("/v1/anomalies", s.handleAnomalies).Methods(http.MethodGet)
	if s.hub != nil {
		r.HandleFunc("/v1/stream", s.hub.ServeWS).Methods(http.MethodGet)
	}
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	}

	r.Use(s.recoveryMiddleware)
	r.Use(s.loggingMiddleware)
	return r
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", zap.String("addr", addr))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type ingestResponse struct {
	Accepted int `json:"accepted"`
	Rejected int `json:"rejected"`
}

// handleIngest takes a newline-delimited body of raw log lines.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	body := http.MaxBytesReader(w, r.Body, s.maxBody)
	remote := r.RemoteAddr
	lr := connector.NewLineReader(body)
	raws, err := connector.Collect(r.Context(), lr, "http", 0, func(n int) map[string]any {
		return map[string]any{"remote_addr": remote, "line": n}
	})
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp := ingestResponse{Rejected: lr.Dropped}
	for _, raw := range raws {
		if s.pipeline.Ingest(raw) {
			resp.Accepted++
		} else {
			resp.Rejected++
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleIngestStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.pipeline.Engine().Metrics())
}

type patternView struct {
	Service    string         `json:"service"`
	Level      model.Level    `json:"level"`
	Template   string         `json:"template"`
	TotalCount int            `json:"total_count"`
	FirstSeen  time.Time      `json:"first_seen"`
	LastSeen   time.Time      `json:"last_seen"`
	Buckets    int            `json:"live_buckets"`
	Recent     []model.Bucket `json:"buckets,omitempty"`
}

// handlePatterns lists known patterns, busiest first. Query parameters:
// service, level, limit and buckets=true to include the live series.
func (s *Server) handlePatterns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := intParam(q.Get("limit"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	service := q.Get("service")
	level := q.Get("level")
	withBuckets := q.Get("buckets") == "true"

	out := []patternView{}
	s.pipeline.Store().View(func(rd store.Reader) {
		for _, key := range rd.Keys() {
			if service != "" && key.Service != service {
				continue
			}
			if level != "" && key.Level != model.ParseLevel(level) {
				continue
			}
			st, _ := rd.Stats(key)
			bs := rd.Buckets(key)
			v := patternView{
				Service:    key.Service,
				Level:      key.Level,
				Template:   key.Template,
				TotalCount: st.TotalCount,
				FirstSeen:  st.FirstSeen,
				LastSeen:   st.LastSeen,
				Buckets:    len(bs),
			}
			if withBuckets {
				v.Recent = bs
			}
			out = append(out, v)
		}
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].TotalCount > out[j].TotalCount })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	writeJSON(w, http.StatusOK, out)
}

type patternStats struct {
	Patterns    int                 `json:"patterns"`
	TotalEvents int                 `json:"total_events"`
	ByService   map[string]int      `json:"by_service"`
	ByLevel     map[model.Level]int `json:"by_level"`
	Latest      time.Time           `json:"latest_event,omitempty"`
}

func (s *Server) handlePatternStats(w http.ResponseWriter, _ *http.Request) {
	out := patternStats{ByService: map[string]int{}, ByLevel: map[model.Level]int{}}
	s.pipeline.Store().View(func(rd store.Reader) {
		for _, key := range rd.Keys() {
			st, _ := rd.Stats(key)
			out.Patterns++
			out.TotalEvents += st.TotalCount
			out.ByService[key.Service]++
			out.ByLevel[key.Level]++
		}
	})
	out.Latest = s.pipeline.Latest()
	writeJSON(w, http.StatusOK, out)
}

// handleAnomalies returns recent reports. With a journal they come from
// storage; otherwise from the last detection pass. Query parameters:
// service, band, since (RFC 3339) and limit.
func (s *Server) handleAnomalies(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := intParam(q.Get("limit"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	var since time.Time
	if v := q.Get("since"); v != "" {
		if since, err = time.Parse(time.RFC3339, v); err != nil {
			writeError(w, http.StatusBadRequest, "invalid since: want RFC 3339")
			return
		}
	}
	f := journal.Filter{
		Service: q.Get("service"),
		Band:    strings.ToLower(q.Get("band")),
		Since:   since,
		Limit:   limit,
	}

	if s.journal != nil {
		reports, err := s.journal.Recent(r.Context(), f)
		if err != nil {
			s.log.Error("journal query failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "journal query failed")
			return
		}
		if reports == nil {
			reports = []model.Report{}
		}
		writeJSON(w, http.StatusOK, reports)
		return
	}

	out := []model.Report{}
	for _, rep := range s.pipeline.LastResult().Reports {
		if f.Service != "" && rep.Anomaly.Key.Service != f.Service {
			continue
		}
		if f.Band != "" && rep.Band != f.Band {
			continue
		}
		if !f.Since.IsZero() && rep.GeneratedAt.Before(f.Since) {
			continue
		}
		out = append(out, rep)
		if f.Limit > 0 && len(out) >= f.Limit {
			break
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func intParam(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, errors.New("invalid integer")
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
