package httpx

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"log/slog"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/enzo-mourany/steroid-analytics/internal/domain"
	"github.com/enzo-mourany/steroid-analytics/internal/repository"
	"github.com/enzo-mourany/steroid-analytics/internal/service/ingest"
	"github.com/enzo-mourany/steroid-analytics/internal/service/site"
	"github.com/enzo-mourany/steroid-analytics/internal/service/stats"
	"github.com/enzo-mourany/steroid-analytics/internal/ws"
)

// Router wires HTTP endpoints to services.
type Router struct {
	mux        *http.ServeMux
	logger     *slog.Logger
	ingest     *ingest.Service
	stats      stats.Service
	sites      site.Service
	hub        *ws.Hub
	upgrader   websocket.Upgrader
	limiter    RateLimiter
	adminToken string
	dbHealth   func(context.Context) error

	metricsOnce        sync.Once
	metricsInitialized bool
	requestTotal       *prometheus.CounterVec
	requestLatency     *prometheus.HistogramVec
	rateLimitHits      *prometheus.CounterVec
}

const (
	rateWindowDefault  = time.Minute
	rateLimitIngest    = 600
	rateLimitRead      = 120
	maxBodyBytes       = 1 << 20
	healthCheckTimeout = 2 * time.Second
)

// NewRouter assembles routes with dependencies.
func NewRouter(logger *slog.Logger, ingestSvc *ingest.Service, statsSvc stats.Service, siteSvc site.Service, hub *ws.Hub, limiter RateLimiter, adminToken string, dbHealth func(context.Context) error) *Router {
	r := &Router{
		mux:    http.NewServeMux(),
		logger: logger,
		ingest: ingestSvc,
		stats:  statsSvc,
		sites:  siteSvc,
		hub:    hub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		limiter:    limiter,
		adminToken: strings.TrimSpace(adminToken),
		dbHealth:   dbHealth,
	}
	if r.limiter == nil {
		r.limiter = NewMemoryRateLimiter()
	}
	r.initMetrics()
	r.register()
	return r
}

// ServeHTTP delegates to underlying mux.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// Close releases background resources.
func (r *Router) Close() {
	if r.limiter != nil {
		r.limiter.Close()
	}
}

func (r *Router) register() {
	r.mux.HandleFunc("/healthz", r.audit("healthz", r.handleHealthz))
	r.mux.Handle("/metrics", promhttp.Handler())
	r.mux.HandleFunc("/events", r.audit("events", r.handleEvents))
	r.mux.HandleFunc("/stats", r.audit("stats", r.withRateLimit("stats", rateLimitRead, rateWindowDefault, r.handleStats)))
	r.mux.HandleFunc("/stats/active", r.audit("stats_active", r.withRateLimit("stats_active", rateLimitRead, rateWindowDefault, r.handleStatsActive)))
	r.mux.HandleFunc("/sites", r.audit("sites", r.requireAdmin(r.handleSites)))
	r.mux.HandleFunc("/ws/events", r.audit("ws_events", r.handleEventsWS))
}

func (r *Router) handleEvents(w http.ResponseWriter, req *http.Request) {
	switch req.Method {
	case http.MethodPost:
		r.withRateLimit("events_ingest", rateLimitIngest, rateWindowDefault, r.handleIngest)(w, req)
	case http.MethodGet:
		r.withRateLimit("events_list", rateLimitRead, rateWindowDefault, r.handleEventList)(w, req)
	default:
		r.methodNotAllowed(w)
	}
}

// handleIngest runs one event through the admission pipeline. Suppressed
// events answer 200 with ignored=true; only malformed bodies and storage
// faults are errors.
func (r *Router) handleIngest(w http.ResponseWriter, req *http.Request) {
	req.Body = http.MaxBytesReader(w, req.Body, maxBodyBytes)
	body, err := io.ReadAll(req.Body)
	if err != nil {
		writeRequestError(w, http.StatusBadRequest, "could not read request body", uuid.NewString())
		return
	}
	var event domain.Event
	if err := json.Unmarshal(body, &event); err != nil {
		writeRequestError(w, http.StatusBadRequest, "invalid JSON body", uuid.NewString())
		return
	}
	event.RawSize = len(body)
	if event.IP == "" {
		event.IP = clientIP(req)
	}

	outcome, err := r.ingest.Process(req.Context(), &event)
	if err != nil {
		r.logger.Error("event processing failed", "error", err, "request_id", outcome.RequestID)
		writeRequestError(w, http.StatusInternalServerError, "failed to process event", outcome.RequestID)
		return
	}
	if outcome.Ignored {
		writeJSON(w, http.StatusOK, apiResponse{
			Success:      true,
			Ignored:      true,
			IgnoreReason: outcome.IgnoreReason,
			RequestID:    outcome.RequestID,
		})
		return
	}
	writeJSON(w, http.StatusCreated, apiResponse{
		Success:   true,
		Data:      map[string]any{"eventId": outcome.EventID},
		RequestID: outcome.RequestID,
	})
}

func (r *Router) handleEventList(w http.ResponseWriter, req *http.Request) {
	query := req.URL.Query()
	filter := repository.EventFilter{
		WebsiteID: query.Get("websiteId"),
		Type:      query.Get("type"),
		Path:      query.Get("path"),
		VisitorID: query.Get("visitorId"),
		SessionID: query.Get("sessionId"),
	}
	if value := query.Get("startDate"); value != "" {
		start, err := stats.ParseDate(value)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid startDate")
			return
		}
		filter.Start = start
	}
	if value := query.Get("endDate"); value != "" {
		end, err := stats.ParseDate(value)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid endDate")
			return
		}
		filter.End = end
	}
	page, _ := strconv.Atoi(query.Get("page"))
	limit, _ := strconv.Atoi(query.Get("limit"))

	result, err := r.stats.Events(req.Context(), filter, page, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeData(w, http.StatusOK, result)
}

func (r *Router) handleStats(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	query := req.URL.Query()
	websiteID := query.Get("websiteId")
	if websiteID == "" {
		writeError(w, http.StatusBadRequest, "websiteId is required")
		return
	}
	startValue, endValue := query.Get("startDate"), query.Get("endDate")
	if startValue == "" || endValue == "" {
		writeError(w, http.StatusBadRequest, "startDate and endDate are required (RFC3339 or unix timestamp)")
		return
	}
	start, err := stats.ParseDate(startValue)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid startDate")
		return
	}
	end, err := stats.ParseDate(endValue)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid endDate")
		return
	}

	summary, err := r.stats.Summary(req.Context(), websiteID, start, end)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeData(w, http.StatusOK, summary)
}

func (r *Router) handleStatsActive(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	websiteID := req.URL.Query().Get("websiteId")
	if websiteID == "" {
		writeError(w, http.StatusBadRequest, "websiteId is required")
		return
	}
	window := time.Duration(0)
	if minutes, _ := strconv.Atoi(req.URL.Query().Get("windowMinutes")); minutes > 0 {
		window = time.Duration(minutes) * time.Minute
	}
	active, err := r.stats.Active(req.Context(), websiteID, window)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeData(w, http.StatusOK, active)
}

func (r *Router) handleSites(w http.ResponseWriter, req *http.Request) {
	switch req.Method {
	case http.MethodPost:
		var payload struct {
			WebsiteID    string   `json:"websiteId"`
			Domain       string   `json:"domain"`
			AllowedHosts []string `json:"allowedHosts"`
		}
		if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		registered, err := r.sites.Register(req.Context(), payload.WebsiteID, payload.Domain, payload.AllowedHosts)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeData(w, http.StatusCreated, registered)
	case http.MethodGet:
		sites, err := r.sites.List(req.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeData(w, http.StatusOK, sites)
	default:
		r.methodNotAllowed(w)
	}
}

func (r *Router) handleEventsWS(w http.ResponseWriter, req *http.Request) {
	websiteID := req.URL.Query().Get("website_id")
	if websiteID == "" {
		writeError(w, http.StatusBadRequest, "website_id query parameter required")
		return
	}
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	client := ws.NewClient(conn, r.logger)
	r.hub.Register(websiteID, client)
	go func() {
		defer func() {
			r.hub.Unregister(websiteID, client)
			client.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()
}

func (r *Router) handleHealthz(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	components := make(map[string]any)
	status := "ok"
	if r.dbHealth != nil {
		ctx, cancel := context.WithTimeout(req.Context(), healthCheckTimeout)
		defer cancel()
		if err := r.dbHealth(ctx); err != nil {
			status = "degraded"
			components["database"] = map[string]any{
				"status": "down",
				"error":  err.Error(),
			}
		} else {
			components["database"] = map[string]any{"status": "up"}
		}
	}
	payload := map[string]any{
		"status":     status,
		"components": components,
		"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
	}
	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, payload)
}

func (r *Router) audit(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w}
		start := time.Now()
		next(recorder, req)

		status := recorder.status
		if status == 0 {
			status = http.StatusOK
		}
		duration := time.Since(start)
		fields := []any{
			"method", req.Method,
			"path", req.URL.Path,
			"status", status,
			"bytes", recorder.bytes,
			"duration_ms", duration.Milliseconds(),
		}
		if ip := clientIP(req); ip != "" {
			fields = append(fields, "ip", ip)
		}
		if reqID := strings.TrimSpace(req.Header.Get("X-Request-ID")); reqID != "" {
			fields = append(fields, "request_id", reqID)
		}
		r.recordRequestMetrics(req.Method, route, status, duration)

		switch {
		case status >= http.StatusInternalServerError:
			r.logger.Error("http_request", fields...)
		case status >= http.StatusBadRequest:
			r.logger.Warn("http_request", fields...)
		default:
			r.logger.Info("http_request", fields...)
		}
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if sr.status == 0 {
		sr.status = http.StatusOK
	}
	n, err := sr.ResponseWriter.Write(b)
	sr.bytes += n
	return n, err
}

func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (sr *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := sr.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, errors.New("hijacker not supported")
}

func clientIP(req *http.Request) string {
	if forwarded := strings.TrimSpace(req.Header.Get("X-Forwarded-For")); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if len(parts) > 0 {
			ip := strings.TrimSpace(parts[0])
			if ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(req.RemoteAddr))
	if err != nil {
		return strings.TrimSpace(req.RemoteAddr)
	}
	return host
}

func (r *Router) applyRateHeaders(w http.ResponseWriter, limit int, decision rateDecision) {
	if limit <= 0 {
		return
	}
	remaining := limit - decision.count
	if remaining < 0 {
		remaining = 0
	}
	headers := w.Header()
	headers.Set("X-RateLimit-Limit", strconv.Itoa(limit))
	headers.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	if !decision.windowEnd.IsZero() {
		headers.Set("X-RateLimit-Reset", strconv.FormatInt(decision.windowEnd.Unix(), 10))
	}
}

func (r *Router) methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}
