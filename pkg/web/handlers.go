package web

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/fleetmind/go-vla/pkg/hub"
)

// handleStatus returns the controller's current snapshot.
func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.controller.Status())
}

// handleEmbodiment returns the active embodiment config.
func (s *Server) handleEmbodiment(c *fiber.Ctx) error {
	tag := s.controller.Status().EmbodimentTag
	if tag == "" {
		return c.JSON(s.loader.Default())
	}

	emb, err := s.loader.Load(tag)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.JSON(emb)
}

// handleEvents returns the recent event ring, oldest first.
func (s *Server) handleEvents(c *fiber.Ctx) error {
	return c.JSON(s.recentEvents())
}

// handlePause pauses the control loop.
func (s *Server) handlePause(c *fiber.Ctx) error {
	s.controller.Pause()
	return c.JSON(fiber.Map{"mode": string(s.controller.Mode())})
}

// handleResume resumes a paused control loop.
func (s *Server) handleResume(c *fiber.Ctx) error {
	s.controller.Resume()
	return c.JSON(fiber.Map{"mode": string(s.controller.Mode())})
}

// handleEventsWS streams events live. The backlog is sent first so a fresh
// client sees recent history.
func (s *Server) handleEventsWS(c *websocket.Conn) {
	for _, e := range s.recentEvents() {
		if err := c.WriteJSON(e); err != nil {
			c.Close()
			return
		}
	}

	client := hub.NewClient(s.eventHub, c)
	client.Run()
}

// handleStatusWS streams periodic status snapshots.
func (s *Server) handleStatusWS(c *websocket.Conn) {
	if err := c.WriteJSON(s.controller.Status()); err != nil {
		c.Close()
		return
	}

	client := hub.NewClient(s.statusHub, c)
	client.Run()
}
