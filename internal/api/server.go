package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-statestore/internal/bridge"
	"github.com/nerrad567/gray-logic-statestore/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-statestore/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-statestore/internal/statestore"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// defaultObserverBuffer is used when Deps.ObserverBuffer is unset.
const defaultObserverBuffer = 256

// HealthChecker is implemented by optional infrastructure clients
// (MQTT, InfluxDB) reported on the health endpoint.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// BridgeStats exposes MQTT bridge counters for the metrics endpoint.
type BridgeStats interface {
	Stats() bridge.Stats
}

// TelemetryStats exposes InfluxDB recorder counters.
type TelemetryStats interface {
	Written() uint64
	WriteErrors() uint64
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config         config.APIConfig
	WS             config.WebSocketConfig
	Security       config.SecurityConfig
	RoomID         string
	Logger         *logging.Logger
	Table          *statestore.Table
	Checks         map[string]HealthChecker // optional, keyed by component name
	Bridge         BridgeStats              // optional
	Telemetry      TelemetryStats           // optional
	ObserverBuffer int
	Version        string
}

// Server is the HTTP API server for the State Store.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg       config.APIConfig
	wsCfg     config.WebSocketConfig
	secCfg    config.SecurityConfig
	roomID    string
	logger    *logging.Logger
	table     *statestore.Table
	checks    map[string]HealthChecker
	bridge    BridgeStats
	telemetry TelemetryStats
	buffer    int
	version   string
	startTime time.Time
	tickets   *ticketStore
	server    *http.Server
	hub       *Hub
	cancel    context.CancelFunc // cancels background goroutines on Close()

	mu    sync.Mutex
	subID statestore.SubscriptionID
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Parameters:
//   - deps: Required dependencies (config, logger, table)
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Table == nil {
		return nil, fmt.Errorf("state table is required")
	}

	buffer := deps.ObserverBuffer
	if buffer < 1 {
		buffer = defaultObserverBuffer
	}

	return &Server{
		cfg:       deps.Config,
		wsCfg:     deps.WS,
		secCfg:    deps.Security,
		roomID:    deps.RoomID,
		logger:    deps.Logger,
		table:     deps.Table,
		checks:    deps.Checks,
		bridge:    deps.Bridge,
		telemetry: deps.Telemetry,
		buffer:    buffer,
		version:   deps.Version,
		startTime: time.Now(),
		tickets:   newTicketStore(),
		hub:       NewHub(deps.Table, deps.Logger),
	}, nil
}

// Start begins listening for HTTP connections.
//
// It starts the WebSocket hub, registers the hub as an asynchronous table
// observer, and launches the HTTP listener in a background goroutine. The
// server can be stopped with Close().
//
// Parameters:
//   - ctx: Parent context for background goroutines
//
// Returns:
//   - error: If the change relay cannot be registered
func (s *Server) Start(ctx context.Context) error {
	// Create internal context so Close() can stop background goroutines
	// independently of the parent context.
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	go s.hub.Run(srvCtx)
	go s.cleanTicketsLoop(srvCtx)

	if err := s.relayStateChanges(); err != nil {
		s.cancel()
		return fmt.Errorf("subscribing websocket relay: %w", err)
	}

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       s.cfg.Timeouts.ReadDuration(),
		ReadHeaderTimeout: s.cfg.Timeouts.ReadDuration(),
		WriteTimeout:      s.cfg.Timeouts.WriteDuration(),
		IdleTimeout:       s.cfg.Timeouts.IdleDuration(),
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", s.server.Addr)
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It removes the change relay, then waits up to 10 seconds for in-flight
// requests to complete before forcefully closing remaining connections.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.subID != "" {
		s.table.Unsubscribe(s.subID)
		s.subID = ""
	}
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}

	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running and responsive.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}

	return nil
}

// relayStateChanges registers the hub as an asynchronous observer so slow
// WebSocket clients never hold up Table.Update.
func (s *Server) relayStateChanges() error {
	id, err := s.table.Subscribe(func(c statestore.Change) {
		s.hub.BroadcastChange(c)
	}, statestore.WithAsync(s.buffer))
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.subID = id
	s.mu.Unlock()
	return nil
}
