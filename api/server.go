package api

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/meghashyamc/searchsync/config"
	"github.com/meghashyamc/searchsync/logger"
)

const shutdownTimeout = 10 * time.Second

type server struct {
	router     *gin.Engine
	httpServer *http.Server
	deps       *Dependencies
	logger     logger.Logger
	cfg        *config.Config
}

func Run(ctx context.Context, cfg *config.Config) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)

	defer cancel()

	s := &server{
		logger: logger.New(cfg.GetLogLevel()),
		cfg:    cfg,
	}
	if err := s.setupDependencies(ctx); err != nil {
		return err
	}
	s.setupRouter()
	serveErrC := s.setupHTTPServer()

	return s.setupGracefulShutdown(ctx, serveErrC)
}

func (s *server) setupDependencies(ctx context.Context) error {
	deps, err := OpenDependencies(ctx, s.cfg, s.logger)
	if err != nil {
		return err
	}
	s.deps = deps

	return nil
}

func (s *server) setupRouter() {
	router := newRouter()

	router.Use(loggingMiddleware(s.logger, s.deps.Metrics))

	setupRoutes(router, s.deps)

	s.router = router
}

func (s *server) setupHTTPServer() <-chan error {

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%s", s.cfg.GetPort()),
		Handler: s.router.Handler(),
	}
	s.httpServer = httpServer

	serveErrC := make(chan error, 1)
	go func() {
		s.logger.Info("starting http server", "addr", httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("http server failed", "err", err.Error())
			serveErrC <- err
		}
		close(serveErrC)
	}()

	return serveErrC
}

func (s *server) setupGracefulShutdown(ctx context.Context, serveErrC <-chan error) error {

	var serveErr error
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		select {
		case <-ctx.Done():
		case serveErr = <-serveErrC:
		}
		s.logger.Info("starting to shut down http server")
		shutdownCtx := context.Background()
		shutdownCtx, cancel := context.WithTimeout(shutdownCtx, shutdownTimeout)
		defer cancel()
		defer s.deps.Close()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("error shutting down http server", "err", err)
			return
		}
		s.logger.Info("shut down http server successfully")
	}()

	wg.Wait()
	return serveErr
}
