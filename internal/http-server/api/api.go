package api

import (
	"context"
	"errors"
	"fmt"
	"invitetrack/internal/config"
	"invitetrack/internal/http-server/handlers/invites"
	"invitetrack/lib/sl"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	handlerErrors "invitetrack/internal/http-server/handlers/errors"
	"invitetrack/internal/http-server/middleware/authenticate"
	"invitetrack/internal/http-server/middleware/timeout"
)

type Server struct {
	conf       *config.Config
	httpServer *http.Server
	log        *slog.Logger
}

type Handler interface {
	authenticate.Authenticate
	invites.Core
}

func New(conf *config.Config, log *slog.Logger, handler Handler) *Server {
	server := &Server{
		conf: conf,
		log:  log.With(sl.Module("api.server")),
	}

	httpLog := slog.NewLogLogger(log.Handler(), slog.LevelError)
	server.httpServer = &http.Server{
		Handler:      Routes(log, handler),
		ErrorLog:     httpLog,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 20 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return server
}

// Routes builds the API router. Everything under /v1 requires a bearer token.
func Routes(log *slog.Logger, handler Handler) http.Handler {
	router := chi.NewRouter()
	router.Use(timeout.Timeout(15))
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(render.SetContentType(render.ContentTypeJSON))

	router.NotFound(handlerErrors.NotFound(log))
	router.MethodNotAllowed(handlerErrors.NotAllowed(log))

	router.Route("/v1", func(v1 chi.Router) {
		v1.Use(authenticate.New(log, handler))
		v1.Route("/guilds/{guild}", func(g chi.Router) {
			g.Get("/invites", invites.List(log, handler))
			g.Get("/invites/total", invites.TotalUses(log, handler))
			g.Get("/invites/top", invites.Top(log, handler))
			g.Get("/invites/most-used", invites.MostUsed(log, handler))
			g.Delete("/invites/{code}", invites.Delete(log, handler))
			g.Get("/inviters/{user}", invites.Inviter(log, handler))
			g.Get("/members/{user}/inviter", invites.WhoInvited(log, handler))
			g.Get("/joins", invites.Joins(log, handler))
			g.Post("/channels/{channel}/invites", invites.Create(log, handler))
		})
		v1.Get("/channels/{channel}/invites", invites.ChannelList(log, handler))
	})
	return router
}

// Start listens on the configured address and serves until Shutdown.
func (s *Server) Start() error {
	serverAddress := fmt.Sprintf("%s:%s", s.conf.Listen.BindIp, s.conf.Listen.Port)
	listener, err := net.Listen("tcp", serverAddress)
	if err != nil {
		return err
	}

	s.log.Info("starting api server", slog.String("address", serverAddress))

	err = s.httpServer.Serve(listener)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
