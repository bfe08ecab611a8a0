package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fathima-sithara/relay-service/internal/auth"
	"github.com/fathima-sithara/relay-service/internal/config"
	"github.com/fathima-sithara/relay-service/internal/relay"
	"github.com/fathima-sithara/relay-service/internal/ws"
)

type Server struct {
	relay *relay.Relay
	log   *zap.SugaredLogger
}

func NewServer(cfg *config.Config, wsrv *ws.Server, rl *relay.Relay, authn auth.Authenticator, log *zap.SugaredLogger) *fiber.App {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Use(recover.New())
	if cfg.App.CORSOrigins != "" {
		app.Use(cors.New(cors.Config{AllowOrigins: cfg.App.CORSOrigins, AllowCredentials: cfg.App.CORSOrigins != "*"}))
	}
	if cfg.App.Env == "dev" {
		app.Use(logger.New())
	}
	s := &Server{relay: rl, log: log}

	if cfg.Metrics.Enabled {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
	}

	v1 := app.Group("/v1")
	v1.Get("/health", func(c *fiber.Ctx) error { return c.JSON(fiber.Map{"status": "ok"}) })

	requireAuth := auth.Middleware(authn, cfg.Auth.CookieName)

	v1.Get("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	}, requireAuth, websocket.New(wsrv.Handle))

	v1.Get("/presence/:user_id", requireAuth, s.getPresence)
	v1.Get("/online", requireAuth, s.getOnline)

	return app
}

func (s *Server) getPresence(c *fiber.Ctx) error {
	userID := c.Params("user_id")
	online, err := s.relay.IsOnline(c.UserContext(), userID)
	if err != nil {
		s.log.Errorw("presence lookup failed", "user_id", userID, "error", err)
		return fiber.ErrServiceUnavailable
	}
	return c.JSON(fiber.Map{"user_id": userID, "online": online})
}

func (s *Server) getOnline(c *fiber.Ctx) error {
	ids, err := s.relay.OnlineUsers(c.UserContext())
	if err != nil {
		s.log.Errorw("online list failed", "error", err)
		return fiber.ErrServiceUnavailable
	}
	return c.JSON(fiber.Map{"users": ids, "count": len(ids)})
}
