package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/gravitas-games/prodsim/internal/config"
	"github.com/gravitas-games/prodsim/internal/journal"
	"github.com/gravitas-games/prodsim/internal/metrics"
	"github.com/gravitas-games/prodsim/internal/sim"
	"github.com/gravitas-games/prodsim/pkg/models"
)

// Server serves the simulation to websocket observers
type Server struct {
	config       *config.Config
	session      *Session
	upgrader     websocket.Upgrader
	httpSrv      *http.Server
	jwtValidator *JWTValidator
	redis        *redis.Client

	registry  *prometheus.Registry
	collector *metrics.Collector
	journal   *journal.Journal
	debug     *sim.Debug

	// Connection tracking
	connections map[*Connection]bool
	connMu      sync.RWMutex

	// Shutdown
	ctx     context.Context
	cancel  context.CancelFunc
	running sync.WaitGroup
}

// New creates a server around world. Redis, JWT, metrics, the journal
// and debug tracing are each enabled by their config section.
func New(cfg *config.Config, world *sim.World) (*Server, error) {
	log.Println("Initializing server...")

	ctx, cancel := context.WithCancel(context.Background())

	srv := &Server{
		config:      cfg,
		connections: make(map[*Connection]bool),
		ctx:         ctx,
		cancel:      cancel,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}

	var blacklist Blacklist
	if cfg.Redis.Address != "" {
		srv.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := srv.redis.Ping(ctx).Err(); err != nil {
			srv.closeResources()
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		blacklist = NewRedisBlacklist(srv.redis, cfg.Redis.BlacklistPrefix)
		log.Println("Connected to Redis")
	}

	if cfg.JWT.PublicKeyURL != "" {
		v, err := NewJWTValidator(ctx, cfg.JWT, blacklist)
		if err != nil {
			srv.closeResources()
			return nil, fmt.Errorf("failed to initialize JWT validator: %w", err)
		}
		srv.jwtValidator = v
	} else {
		log.Println("JWT disabled, observers connect anonymously")
	}

	srv.session = NewSession(uuid.NewString(), world, cfg.Server.TickRate, log.Default())

	if cfg.Metrics.Enabled {
		srv.registry = prometheus.NewRegistry()
		srv.collector = metrics.NewCollector()
		if err := srv.collector.Register(srv.registry); err != nil {
			srv.closeResources()
			return nil, fmt.Errorf("failed to register metrics: %w", err)
		}
		srv.collector.Attach(world)
		srv.session.OnTick(func(d time.Duration) {
			srv.collector.ObserveTick(d)
			srv.collector.Sample(world)
		})
	}

	if cfg.Journal.Enabled {
		j, err := journal.Open(cfg.Journal.Path, cfg.Journal.QueueSize, log.New(log.Writer(), "[journal] ", log.LstdFlags))
		if err != nil {
			srv.closeResources()
			return nil, err
		}
		j.Attach(world)
		srv.journal = j
		log.Printf("Journal writing to %s", cfg.Journal.Path)
	}

	if cfg.Debug.Enabled {
		srv.debug = sim.NewDebug(world, cfg.Debug, nil)
		srv.session.OnTick(func(time.Duration) { srv.debug.Tick() })
	}

	log.Println("Server initialized successfully")
	return srv, nil
}

// Session returns the simulation session
func (s *Server) Session() *Session { return s.session }

// Handler returns the HTTP routes
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)
	if s.registry != nil {
		mux.Handle(s.config.Metrics.Path, promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	}
	return mux
}

// RunSession starts ticking the world in the background until Shutdown.
func (s *Server) RunSession() {
	s.running.Add(1)
	go func() {
		defer s.running.Done()
		s.session.Run(s.ctx)
	}()
}

// Start runs the session and listens for connections
func (s *Server) Start(addr string) error {
	log.Printf("Starting WebSocket server on %s", addr)

	s.RunSession()

	s.httpSrv = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	log.Printf("WebSocket endpoint: ws://%s/ws", addr)
	log.Printf("Health endpoint: http://%s/health", addr)
	if s.registry != nil {
		log.Printf("Metrics endpoint: http://%s%s", addr, s.config.Metrics.Path)
	}

	if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}

	return nil
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown() error {
	log.Println("Shutting down server...")

	s.cancel()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if s.httpSrv != nil {
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		}
	}

	s.connMu.Lock()
	conns := make([]*Connection, 0, len(s.connections))
	for conn := range s.connections {
		conns = append(conns, conn)
	}
	s.connMu.Unlock()
	for _, conn := range conns {
		conn.Close()
	}

	// the world is no longer ticked past this point
	s.running.Wait()
	s.closeResources()

	log.Println("Server shutdown complete")
	return nil
}

func (s *Server) closeResources() {
	s.cancel()
	if s.session != nil {
		s.session.Close()
	}
	if s.debug != nil {
		s.debug.Close()
	}
	if s.collector != nil {
		s.collector.Close()
	}
	if s.journal != nil {
		if err := s.journal.Close(); err != nil {
			log.Printf("Journal close error: %v", err)
		}
		st := s.journal.Stats()
		log.Printf("Journal: %d written, %d dropped, %d failed", st.Written, st.Dropped, st.Failed)
	}
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			log.Printf("Redis close error: %v", err)
		}
	}
}

func (s *Server) authenticate(r *http.Request) (*models.Observer, error) {
	if s.jwtValidator == nil {
		return &models.Observer{Username: "anonymous", Anonymous: true}, nil
	}

	tokenString := extractTokenFromHeader(r)
	if tokenString == "" {
		return nil, fmt.Errorf("missing authentication token")
	}
	return s.jwtValidator.ValidateToken(r.Context(), tokenString)
}

// handleWebSocket handles WebSocket connection requests
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	observer, err := s.authenticate(r)
	if err != nil {
		log.Printf("Rejected observer from %s: %v", r.RemoteAddr, err)
		http.Error(w, fmt.Sprintf("Invalid token: %v", err), http.StatusUnauthorized)
		return
	}
	observer.ID = uuid.NewString()
	observer.ConnectedAt = time.Now()
	observer.SessionID = s.session.ID

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	oc := s.config.Observer
	limiter := rate.NewLimiter(rate.Limit(oc.ProgressRate), oc.ProgressBurst)
	conn := NewConnection(ws, s.session, observer, oc.SendBuffer, limiter)

	s.connMu.Lock()
	s.connections[conn] = true
	s.connMu.Unlock()

	log.Printf("WebSocket connection established: %s (%s)", observer.Username, r.RemoteAddr)

	// Handle connection (blocking)
	conn.Handle(s.ctx.Done())

	s.connMu.Lock()
	delete(s.connections, conn)
	s.connMu.Unlock()

	log.Printf("WebSocket connection closed: %s (%s)", observer.Username, r.RemoteAddr)
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	status := s.session.GetStatus()
	fmt.Fprintf(w, `{"status":"ok","state":%q,"tick":%d,"observers":%d}`, status.State, status.ServerTick, status.ObserverCount)
}
