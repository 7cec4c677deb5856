// Package dashboard serves the coordinator's latest views as JSON over gin.
package dashboard

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"tradedash/config"
	"tradedash/internal/backend"
	"tradedash/internal/breakeven"
	"tradedash/internal/coordinator"
	"tradedash/internal/metrics"
	"tradedash/logger"
	"tradedash/models"
)

// Controller is the slice of the coordinator the HTTP routes drive.
type Controller interface {
	RequestSwitch(base string)
	RequestQuoteSwitch(quote string)
	SaveTradeParams(ctx context.Context, params models.TradeParams) (models.TradeParams, error)
	UpdateForm(updates map[string]string) models.TradeForm
	PreviewBreakEven(ctx context.Context) (breakeven.Result, error)
}

// Server hosts the dashboard API.
type Server struct {
	cfg        config.DashboardConfig
	log        *logger.Log
	store      *Store
	ctrl       Controller
	events     *eventStore
	logStore   *logStore
	listenerID metrics.ListenerID
	httpServer *http.Server
}

// NewServer returns nil when the dashboard is disabled.
func NewServer(cfg config.DashboardConfig, log *logger.Log, store *Store, ctrl Controller) (*Server, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if store == nil || ctrl == nil {
		return nil, errors.New("dashboard needs a store and a controller")
	}

	cfg.Address = normalizeAddress(cfg.Address)
	if cfg.LogHistory <= 0 {
		cfg.LogHistory = 200
	}

	events := newEventStore(cfg.LogHistory)
	logStore := newLogStore(cfg.LogHistory)
	log.AddHook(logStore)

	return &Server{
		cfg:        cfg,
		log:        log,
		store:      store,
		ctrl:       ctrl,
		events:     events,
		logStore:   logStore,
		listenerID: metrics.Subscribe(events.handle),
	}, nil
}

// Run serves until ctx is cancelled or the listener fails.
func (s *Server) Run(ctx context.Context) error {
	if s == nil {
		return nil
	}
	defer s.cleanup()

	router, err := s.buildRouter()
	if err != nil {
		return err
	}

	s.httpServer = &http.Server{
		Addr:              s.cfg.Address,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.log.WithComponent("dashboard").WithFields(logger.Fields{"address": s.cfg.Address}).Info("dashboard listening")

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
		return err
	}
}

func (s *Server) cleanup() {
	metrics.Unsubscribe(s.listenerID)
	if s.logStore != nil {
		s.logStore.close()
	}
}

func (s *Server) Address() string {
	if s == nil {
		return ""
	}
	return s.cfg.Address
}

func (s *Server) buildRouter() (*gin.Engine, error) {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	if err := router.SetTrustedProxies(nil); err != nil {
		return nil, err
	}

	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := router.Group("/api")
	api.GET("/state", func(c *gin.Context) {
		c.JSON(http.StatusOK, s.store.State())
	})

	api.GET("/orderbook", func(c *gin.Context) {
		book, ok := s.store.Book()
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "no order book yet"})
			return
		}
		c.JSON(http.StatusOK, book)
	})

	api.GET("/breakeven", func(c *gin.Context) {
		res, ok := s.store.BreakEvenTable()
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "no break-even table yet"})
			return
		}
		c.JSON(http.StatusOK, res)
	})

	api.GET("/logs", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"logs": s.logStore.snapshot()})
	})

	api.GET("/metrics", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"metrics": s.events.snapshot()})
	})

	api.POST("/pair", func(c *gin.Context) {
		var body struct {
			Base string `json:"base"`
		}
		if err := c.ShouldBindJSON(&body); err != nil || models.CanonicalCode(body.Base) == "" {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "base is required"})
			return
		}
		s.ctrl.RequestSwitch(body.Base)
		c.JSON(http.StatusAccepted, gin.H{"success": true})
	})

	api.POST("/quote", func(c *gin.Context) {
		var body struct {
			Quote string `json:"quote"`
		}
		if err := c.ShouldBindJSON(&body); err != nil || models.CanonicalCode(body.Quote) == "" {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "quote is required"})
			return
		}
		s.ctrl.RequestQuoteSwitch(body.Quote)
		c.JSON(http.StatusAccepted, gin.H{"success": true})
	})

	api.POST("/params", func(c *gin.Context) {
		var params models.TradeParams
		if err := c.ShouldBindJSON(&params); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
			return
		}
		saved, err := s.ctrl.SaveTradeParams(c.Request.Context(), params)
		if err != nil {
			c.JSON(statusFor(err), gin.H{"success": false, "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "params": saved})
	})

	api.POST("/form", func(c *gin.Context) {
		var updates map[string]string
		if err := c.ShouldBindJSON(&updates); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
			return
		}
		form := s.ctrl.UpdateForm(updates)
		res, err := s.ctrl.PreviewBreakEven(c.Request.Context())
		if err != nil {
			c.JSON(statusFor(err), gin.H{"success": false, "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "form": form, "breakeven": res})
	})

	return router, nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, coordinator.ErrNoPair):
		return http.StatusConflict
	case backend.IsAPIError(err):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadGateway
	}
}

func normalizeAddress(addr string) string {
	addr = strings.TrimSpace(addr)

	if addr == "" {
		return "0.0.0.0:8080"
	}

	if strings.Contains(addr, "://") {
		if parsed, err := url.Parse(addr); err == nil {
			if host := parsed.Host; host != "" {
				addr = host
			} else if parsed.Opaque != "" {
				addr = parsed.Opaque
			}
		}
	}

	if strings.HasPrefix(addr, ":") && len(addr) > 1 && addr[1] >= '0' && addr[1] <= '9' {
		return "0.0.0.0" + addr
	}

	if host, port, err := net.SplitHostPort(addr); err == nil {
		if host == "" || host == "*" {
			host = "0.0.0.0"
		}
		if port == "" {
			port = "8080"
		}
		return net.JoinHostPort(host, port)
	}

	if !strings.Contains(addr, ":") || net.ParseIP(addr) != nil {
		return net.JoinHostPort(addr, "8080")
	}
	return addr
}
