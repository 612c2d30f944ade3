package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	json "github.com/goccy/go-json"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/uhyunpark/tradesim/pkg/book"
	"github.com/uhyunpark/tradesim/pkg/costmodel"
	"github.com/uhyunpark/tradesim/pkg/metrics"
	"github.com/uhyunpark/tradesim/pkg/orderbook"
)

const maxBodyBytes = 1 << 20

// Config holds the HTTP server settings.
type Config struct {
	Addr           string
	AllowedOrigins []string
	MaxDepth       int // default levels per side for aggregated views
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
}

// Server handles REST API and WebSocket connections
type Server struct {
	cfg      Config
	book     *book.Book
	model    *costmodel.Model
	metrics  *metrics.Metrics
	router   *mux.Router
	hub      *Hub
	validate *validator.Validate
	logger   *zap.SugaredLogger

	httpServer *http.Server
}

// NewServer creates a new API server around the live book and cost model
func NewServer(cfg Config, live *book.Book, model *costmodel.Model, m *metrics.Metrics, logger *zap.SugaredLogger) *Server {
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = orderbook.DefaultMaxDepth
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if m == nil {
		m = metrics.New()
	}

	s := &Server{
		cfg:      cfg,
		book:     live,
		model:    model,
		metrics:  m,
		router:   mux.NewRouter(),
		validate: newValidator(),
		logger:   logger,
	}
	s.hub = NewHub(logger, m)

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(requestID, accessLog(s.logger))

	// Original simulator path, kept for existing clients
	s.router.HandleFunc("/simulate", s.handleSimulate).Methods("POST")

	// API v1 routes
	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/simulate", s.handleSimulate).Methods("POST")
	api.HandleFunc("/orderbook", s.handleGetOrderbook).Methods("GET")
	api.HandleFunc("/orderbook", s.handlePutOrderbook).Methods("POST")
	api.HandleFunc("/orderbook/levels", s.handleUpdateLevels).Methods("POST")
	api.HandleFunc("/orderbook/aggregate", s.handleAggregate).Methods("POST")

	// WebSocket endpoint
	s.router.HandleFunc("/ws", s.handleWebSocket)

	s.router.Handle("/metrics", s.metrics.Handler()).Methods("GET")
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Handler returns the router wrapped in CORS handling
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:   s.cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
	})
	return c.Handler(s.router)
}

// Start runs the hub and serves HTTP until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	hubCtx, stopHub := context.WithCancel(ctx)
	defer stopHub()
	go s.hub.Run(hubCtx)

	s.httpServer = &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Infow("api_server_starting", "addr", s.cfg.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("api: listen: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.logger.Infow("api_server_stopping")
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("api: shutdown: %w", err)
	}
	return <-errCh
}

// ==============================
// REST Handlers
// ==============================

func (s *Server) handleSimulate(w http.ResponseWriter, r *http.Request) {
	var req SimulationRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	if err := s.validate.Struct(req); err != nil {
		s.rejectSimulation(w, r, validationError(err))
		return
	}
	params, err := toParams(req.Parameters)
	if err != nil {
		s.rejectSimulation(w, r, err)
		return
	}

	agg := orderbook.Aggregate(req.OrderbookData.Raw(), s.cfg.MaxDepth)
	est, err := s.model.Estimate(params, &agg)
	if err != nil {
		s.rejectSimulation(w, r, err)
		return
	}
	s.metrics.ObserveEstimate(est)

	s.logger.Infow("simulation_completed",
		"request_id", requestIDFrom(r.Context()),
		"order_size", params.OrderSize,
		"volatility", params.Volatility,
		"fee_tier", params.FeeTier,
		"slippage", est.Slippage,
		"fees", est.Fees,
		"market_impact", est.MarketImpact,
		"net_cost", est.NetCost,
		"total_ms", est.Timings.TotalMs)

	respondJSON(w, http.StatusOK, SimulationResponse(est))
}

func (s *Server) rejectSimulation(w http.ResponseWriter, r *http.Request, err error) {
	s.metrics.ObserveRejected()

	field := ""
	var fe *fieldError
	var ve *costmodel.ValidationError
	switch {
	case errors.As(err, &fe):
		field = fe.Field
	case errors.As(err, &ve):
		field = ve.Field
	}

	s.logger.Infow("simulation_rejected",
		"request_id", requestIDFrom(r.Context()),
		"field", field,
		"err", err.Error())

	respondJSON(w, http.StatusUnprocessableEntity, ErrorResponse{
		Error:   "validation failed",
		Message: err.Error(),
		Field:   field,
	})
}

func (s *Server) handleGetOrderbook(w http.ResponseWriter, r *http.Request) {
	depth, err := s.depthParam(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid depth", err.Error())
		return
	}

	agg := orderbook.Aggregate(s.book.Snapshot(depth), depth)
	s.metrics.ObserveBook(agg)
	respondJSON(w, http.StatusOK, newAggregatedOrderbook(s.book.Symbol(), agg, depth))
}

// handlePutOrderbook replaces the live book with a snapshot from an external collector
func (s *Server) handlePutOrderbook(w http.ResponseWriter, r *http.Request) {
	var req SnapshotRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if req.Timestamp == 0 {
		req.Timestamp = time.Now().UnixMilli()
	}

	raw := orderbook.RawBook{Bids: req.Bids, Asks: req.Asks, Timestamp: req.Timestamp}
	s.ApplySnapshot(raw)

	bids, asks := s.book.Depth()
	respondJSON(w, http.StatusOK, map[string]any{
		"status":    "applied",
		"bidLevels": bids,
		"askLevels": asks,
		"timestamp": req.Timestamp,
	})
}

// handleUpdateLevels applies incremental level changes to the live book
func (s *Server) handleUpdateLevels(w http.ResponseWriter, r *http.Request) {
	var req LevelUpdateRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if err := s.validate.Struct(req); err != nil {
		verr := validationError(err)
		field := ""
		var fe *fieldError
		if errors.As(verr, &fe) {
			field = fe.Field
		}
		respondJSON(w, http.StatusUnprocessableEntity, ErrorResponse{
			Error:   "validation failed",
			Message: verr.Error(),
			Field:   field,
		})
		return
	}
	if req.Timestamp == 0 {
		req.Timestamp = time.Now().UnixMilli()
	}

	for _, u := range req.Updates {
		side, err := book.ParseSide(u.Side)
		if err == nil {
			err = s.book.Set(side, u.Price, *u.Size, req.Timestamp)
		}
		if err != nil {
			respondError(w, http.StatusUnprocessableEntity, "validation failed", err.Error())
			return
		}
	}
	s.BroadcastOrderbook()

	bids, asks := s.book.Depth()
	respondJSON(w, http.StatusOK, map[string]any{
		"status":    "applied",
		"updates":   len(req.Updates),
		"bidLevels": bids,
		"askLevels": asks,
		"timestamp": req.Timestamp,
	})
}

func (s *Server) handleAggregate(w http.ResponseWriter, r *http.Request) {
	depth, err := s.depthParam(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid depth", err.Error())
		return
	}

	var req SnapshotRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	agg := orderbook.Aggregate(orderbook.RawBook{Bids: req.Bids, Asks: req.Asks, Timestamp: req.Timestamp}, depth)
	s.metrics.AggregationsTotal.Inc()
	respondJSON(w, http.StatusOK, newAggregatedOrderbook(s.book.Symbol(), agg, depth))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().Format(time.RFC3339),
	})
}

// ==============================
// Broadcast Methods (called from the feed)
// ==============================

// ApplySnapshot loads a snapshot into the live book and pushes the
// aggregated view to WebSocket subscribers
func (s *Server) ApplySnapshot(raw orderbook.RawBook) {
	s.book.Replace(raw)
	s.OnSnapshot(raw)
}

// OnSnapshot is the feed callback for a snapshot already applied to the live book
func (s *Server) OnSnapshot(orderbook.RawBook) {
	s.metrics.BookSnapshotsTotal.Inc()
	s.BroadcastOrderbook()
}

// BroadcastOrderbook broadcasts the aggregated live book to WebSocket clients
func (s *Server) BroadcastOrderbook() {
	update := s.orderbookUpdate()
	s.metrics.ObserveBook(orderbook.AggregatedBook{
		Bids: update.Bids, Asks: update.Asks, Timestamp: update.Timestamp,
	})
	s.hub.BroadcastToChannel("orderbook:"+s.book.Symbol(), update)
}

func (s *Server) orderbookUpdate() OrderbookUpdate {
	depth := s.cfg.MaxDepth
	agg := orderbook.Aggregate(s.book.Snapshot(depth), depth)
	return OrderbookUpdate{
		Type:                "orderbook",
		AggregatedOrderbook: newAggregatedOrderbook(s.book.Symbol(), agg, depth),
	}
}

// ==============================
// Helper Functions
// ==============================

// depthParam reads ?depth=N, defaulting to the configured max depth
func (s *Server) depthParam(r *http.Request) (int, error) {
	v := r.URL.Query().Get("depth")
	if v == "" {
		return s.cfg.MaxDepth, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("depth must be a positive integer, got %q", v)
	}
	return n, nil
}

func decodeBody(r *http.Request, v any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if len(body) == 0 {
		return errors.New("empty body")
	}
	return json.Unmarshal(body, v)
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, error string, message string) {
	respondJSON(w, status, ErrorResponse{
		Error:   error,
		Message: message,
	})
}
