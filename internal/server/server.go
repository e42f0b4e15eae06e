package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/gezin/internal/backup"
	"github.com/dukerupert/gezin/internal/handler"
	"github.com/dukerupert/gezin/internal/metrics"
	"github.com/dukerupert/gezin/internal/middleware"
	"github.com/dukerupert/gezin/internal/model"
	"github.com/dukerupert/gezin/internal/store"
	ws "github.com/dukerupert/gezin/internal/websocket"
)

// Options configures a Server.
type Options struct {
	Backend   store.Backend
	UniqueIDs bool

	CORSOrigins    []string
	RateLimitRPS   float64
	RateLimitBurst int

	// Metrics enables /metrics and request instrumentation when non-nil.
	Metrics *metrics.Metrics
	Backup  backup.Config
	Logger  *slog.Logger
}

type registrar interface {
	Register(mux *http.ServeMux, base string)
}

type resource struct {
	path string
	h    registrar
}

type Server struct {
	opts          Options
	hub           *ws.Hub
	resources     []resource
	backupH       *handler.BackupHandler
	backupManager *backup.Manager
	rateLimiter   *middleware.RateLimiter
	logger        *slog.Logger
}

// New opens every collection on the backend and wires the handlers.
func New(ctx context.Context, opts Options) (*Server, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if len(opts.CORSOrigins) == 0 {
		opts.CORSOrigins = []string{"http://localhost:3000"}
	}

	s := &Server{
		opts:   opts,
		hub:    ws.NewHub(logger.With("component", "websocket")),
		logger: logger,
	}

	storeOpts := []store.Option{store.WithLogger(logger.With("component", "store"))}
	if opts.Metrics != nil {
		storeOpts = append(storeOpts, store.WithObserver(opts.Metrics))
		opts.Metrics.GaugeFunc("websocket_clients", "Connected change-feed clients.", func() float64 {
			return float64(s.hub.ClientCount())
		})
	}
	if opts.UniqueIDs {
		storeOpts = append(storeOpts, store.WithUniqueIDs())
	}

	if err := s.mount(ctx, storeOpts); err != nil {
		return nil, err
	}

	backupMgr, err := backup.NewManager(ctx, opts.Backup, opts.Backend, store.Kinds, logger.With("component", "backup"), func(st backup.Status) {
		s.hub.Broadcast(ws.NewMessage("backup", "status", "", map[string]any{
			"state":      st.State,
			"inProgress": st.InProgress,
			"error":      st.Error,
		}))
	})
	if err != nil {
		return nil, fmt.Errorf("backup manager: %w", err)
	}
	s.backupManager = backupMgr
	s.backupH = handler.NewBackupHandler(backupMgr, logger.With("component", "backup_handler"))

	if opts.RateLimitRPS > 0 {
		s.rateLimiter = middleware.NewRateLimiter(opts.RateLimitRPS, opts.RateLimitBurst)
	}

	return s, nil
}

func (s *Server) mount(ctx context.Context, storeOpts []store.Option) error {
	return errors.Join(
		addResource[model.FamilyMember](ctx, s, "family-members", "Family member", "family_member", nil, storeOpts),
		addResource(ctx, s, "calendar-events", "Calendar event", "calendar_event", model.NewCalendarEvent, storeOpts),
		addResource[model.ShoppingCategory](ctx, s, "shopping-categories", "Shopping category", "shopping_category", nil, storeOpts),
		addResource(ctx, s, "shopping-items", "Shopping item", "shopping_item", model.NewShoppingItem, storeOpts),
		addResource(ctx, s, "meals", "Meal", "meal", model.NewMeal, storeOpts),
		addResource[model.Sleepover](ctx, s, "sleepovers", "Sleepover", "sleepover", nil, storeOpts),
		addResource[model.Task](ctx, s, "tasks", "Task", "task", nil, storeOpts),
	)
}

func addResource[T store.Record](ctx context.Context, s *Server, kind, noun, entity string, newRecord func() T, storeOpts []store.Option) error {
	records, err := store.NewCollection[T](ctx, s.opts.Backend, kind, storeOpts...)
	if err != nil {
		return fmt.Errorf("open %s: %w", kind, err)
	}
	h := handler.NewResource(noun, entity, records, newRecord, s.hub, s.logger.With("component", entity))
	s.resources = append(s.resources, resource{path: "/api/" + kind, h: h})
	return nil
}

// Hub returns the change-feed hub.
func (s *Server) Hub() *ws.Hub {
	return s.hub
}

// BackupManager returns the backup manager.
func (s *Server) BackupManager() *backup.Manager {
	return s.backupManager
}

// RateLimiter returns the rate limiter for cleanup tasks, or nil when rate
// limiting is off.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", handler.Health)
	mux.HandleFunc("GET /health", handler.Health)
	if s.opts.Metrics != nil {
		mux.Handle("GET /metrics", s.opts.Metrics.Handler())
	}
	mux.HandleFunc("GET /ws", ws.HandleWebSocket(s.hub, s.opts.CORSOrigins, s.logger.With("component", "websocket")))

	for _, res := range s.resources {
		res.h.Register(mux, res.path)
	}
	s.backupH.Register(mux, "/api/backups")

	var h http.Handler = mux
	if s.rateLimiter != nil {
		h = middleware.RateLimit(s.rateLimiter, middleware.RealIP)(h)
	}
	h = middleware.CORS(s.opts.CORSOrigins)(h)
	if s.opts.Metrics != nil {
		h = middleware.Instrument(s.opts.Metrics)(h)
	}
	h = middleware.RequestLogger(s.logger.With("component", "http"))(h)
	return middleware.RequestID(h)
}

// Start launches background work: scheduled backups and rate limiter
// cleanup. It returns immediately; cancel ctx and call Stop to end it.
func (s *Server) Start(ctx context.Context) {
	s.backupManager.Start(ctx)

	if s.rateLimiter == nil {
		return
	}
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.rateLimiter.Cleanup(3 * time.Minute)
			}
		}
	}()
}

// Stop waits for background work started by Start to finish.
func (s *Server) Stop() {
	s.backupManager.Stop()
	s.hub.Close()
}
