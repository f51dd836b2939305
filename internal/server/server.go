// Package server exposes the engine's HTTP surface: the pull API over
// the record cache, operational status endpoints and the websocket
// upgrade path for live subscribers.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	appconfig "signalflow/config"
	"signalflow/internal/alert"
	"signalflow/internal/broadcast"
	"signalflow/internal/cache"
	"signalflow/internal/papertrader"
	"signalflow/logger"
)

// Server hosts the Gin-powered API and websocket endpoint.
type Server struct {
	config     *appconfig.Config
	log        *logger.Log
	store      *cache.Store
	hub        *broadcast.Hub
	notifier   *alert.Notifier
	trader     *papertrader.Trader
	httpServer *http.Server
}

// NewServer wires the HTTP surface. notifier and trader may be nil when
// the corresponding features are disabled.
func NewServer(cfg *appconfig.Config, store *cache.Store, hub *broadcast.Hub, notifier *alert.Notifier, trader *papertrader.Trader) *Server {
	return &Server{
		config:   cfg,
		log:      logger.GetLogger(),
		store:    store,
		hub:      hub,
		notifier: notifier,
		trader:   trader,
	}
}

// Run starts the HTTP server and blocks until the context is cancelled
// or the listener fails.
func (s *Server) Run(ctx context.Context) error {
	router, err := s.buildRouter()
	if err != nil {
		return err
	}

	s.httpServer = &http.Server{
		Addr:    s.config.Server.Address,
		Handler: router,
	}

	s.log.WithComponent("server").WithFields(logger.Fields{
		"address": s.config.Server.Address,
	}).Info("http server listening")

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		<-errCh
		return nil
	case err := <-errCh:
		if err == nil {
			return nil
		}
		return err
	}
}

func (s *Server) buildRouter() (*gin.Engine, error) {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	if err := router.SetTrustedProxies(nil); err != nil {
		return nil, err
	}

	router.GET("/readiness", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})

	router.GET("/api/data", func(c *gin.Context) {
		c.JSON(http.StatusOK, s.store.Snapshot())
	})

	router.GET("/api/config", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"divergence_ui_threshold_bullish": s.config.Thresholds.DivergenceUIBullish,
			"divergence_ui_threshold_bearish": s.config.Thresholds.DivergenceUIBearish,
		})
	})

	router.GET("/api/blacklist", func(c *gin.Context) {
		if s.notifier == nil {
			c.JSON(http.StatusOK, []alert.BlacklistStatus{})
			return
		}
		c.JSON(http.StatusOK, s.notifier.Status())
	})

	router.GET("/api/logs", func(c *gin.Context) {
		if s.notifier == nil {
			c.JSON(http.StatusOK, []alert.Entry{})
			return
		}
		entries, err := s.notifier.SignalHistory()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not read signal log"})
			return
		}
		if entries == nil {
			entries = []alert.Entry{}
		}
		c.JSON(http.StatusOK, entries)
	})

	router.GET("/api/portfolio", func(c *gin.Context) {
		if s.trader == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "paper trading is disabled"})
			return
		}
		c.JSON(http.StatusOK, s.trader.Snapshot())
	})

	router.GET("/api/trades", func(c *gin.Context) {
		if s.trader == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "paper trading is disabled"})
			return
		}
		trades, err := s.trader.LedgerTrades(100)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not read trade ledger"})
			return
		}
		if trades == nil {
			trades = []papertrader.ClosedTrade{}
		}
		c.JSON(http.StatusOK, trades)
	})

	router.GET("/ws", func(c *gin.Context) {
		s.hub.HandleConnection(c.Writer, c.Request)
	})

	if dir := s.config.Server.StaticDir; dir != "" {
		router.NoRoute(gin.WrapH(http.FileServer(http.Dir(dir))))
	}

	return router, nil
}
