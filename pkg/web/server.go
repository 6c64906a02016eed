// Package web provides a real-time dashboard for a control session: REST
// routes for status and embodiment info, and websocket streams for live
// events and status snapshots.
package web

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/fleetmind/go-vla/pkg/hub"
	"github.com/fleetmind/go-vla/pkg/vla"
)

// eventLogSize bounds the in-memory event ring served by /api/events.
const eventLogSize = 200

// statusPeriod is how often the status stream pushes a snapshot.
const statusPeriod = 500 * time.Millisecond

// Server is the dashboard server for one controller.
type Server struct {
	app    *fiber.App
	addr   string
	logger *slog.Logger

	controller *vla.Controller
	loader     vla.EmbodimentLoader

	// Event ring buffer (most recent last).
	events   []vla.Event
	eventsMu sync.RWMutex

	// Hubs for websocket broadcast.
	eventHub  *hub.Hub
	statusHub *hub.Hub

	unsubscribe func()
	stopStatus  chan struct{}
}

// NewServer creates a dashboard server bound to the controller. The loader
// serves embodiment detail lookups; it may be the same one the controller
// uses.
func NewServer(addr string, controller *vla.Controller, loader vla.EmbodimentLoader, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		addr:       addr,
		logger:     logger.With("component", "web"),
		controller: controller,
		loader:     loader,
		events:     make([]vla.Event, 0, eventLogSize),
		eventHub:   hub.New("events", logger),
		statusHub:  hub.New("status", logger),
		stopStatus: make(chan struct{}),
	}

	app := fiber.New(fiber.Config{
		AppName:               "go-vla dashboard",
		DisableStartupMessage: true,
	})

	// CORS for local development
	app.Use(cors.New())

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/embodiment", s.handleEmbodiment)
	api.Get("/events", s.handleEvents)
	api.Post("/pause", s.handlePause)
	api.Post("/resume", s.handleResume)

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/events", websocket.New(s.handleEventsWS))
	app.Get("/ws/status", websocket.New(s.handleStatusWS))

	s.app = app
	return s
}

// Start runs the hubs, subscribes to controller events, and listens.
// It blocks until Shutdown.
func (s *Server) Start() error {
	go s.eventHub.Run()
	go s.statusHub.Run()
	go s.statusLoop()

	s.unsubscribe = s.controller.Subscribe(s.onEvent)

	s.logger.Info("dashboard listening", "addr", s.addr)
	return s.app.Listen(s.addr)
}

// StartAsync starts the server in a goroutine.
func (s *Server) StartAsync() {
	go func() {
		if err := s.Start(); err != nil {
			s.logger.Error("dashboard server failed", "error", err)
		}
	}()
}

// Shutdown unsubscribes from the controller and stops the listener.
func (s *Server) Shutdown() error {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	close(s.stopStatus)
	return s.app.Shutdown()
}

// onEvent records the event and fans it out to websocket clients. Called
// synchronously from controller goroutines, so it only appends and queues.
func (s *Server) onEvent(e vla.Event) {
	s.eventsMu.Lock()
	s.events = append(s.events, e)
	if len(s.events) > eventLogSize {
		s.events = s.events[1:]
	}
	s.eventsMu.Unlock()

	s.eventHub.BroadcastJSON(e)
}

// statusLoop pushes periodic status snapshots to the status stream.
func (s *Server) statusLoop() {
	ticker := time.NewTicker(statusPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopStatus:
			return
		case <-ticker.C:
			if s.statusHub.ClientCount() > 0 {
				s.statusHub.BroadcastJSON(s.controller.Status())
			}
		}
	}
}

// recentEvents returns a copy of the event ring.
func (s *Server) recentEvents() []vla.Event {
	s.eventsMu.RLock()
	defer s.eventsMu.RUnlock()
	out := make([]vla.Event, len(s.events))
	copy(out, s.events)
	return out
}
