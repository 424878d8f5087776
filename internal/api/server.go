package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/socialeye/internal/alert"
	"github.com/socialeye/internal/auth"
	"github.com/socialeye/internal/models"
	"github.com/socialeye/internal/report"
)

const (
	defaultReportHours = 24
	maxReportHours     = 24 * 31
)

// Monitor is the monitoring service as seen by the admin API.
type Monitor interface {
	Rules() []*models.AlertRule
	Rule(id string) (*models.AlertRule, error)
	AddRule(rule *models.AlertRule)
	RemoveRule(id string)
	CheckRule(ctx context.Context, id string) (*models.Alert, error)
	ActiveAlerts() []*models.Alert
	History(ctx context.Context, limit int) ([]models.Alert, error)
	AlertsBetween(ctx context.Context, start, end time.Time) ([]models.Alert, error)
	Resolve(ctx context.Context, alertID, resolvedBy string) error
}

// RuleStore persists rules changed through the API.
type RuleStore interface {
	Save(ctx context.Context, rule *models.AlertRule) error
	Delete(ctx context.Context, id string) error
}

type Config struct {
	Monitor Monitor
	// Rules is optional; without it API changes last until restart.
	Rules     RuleStore
	JWTSecret string
	Gatherer  prometheus.Gatherer
	Logger    logrus.FieldLogger
}

type Server struct {
	monitor Monitor
	rules   RuleStore
	secret  string
	log     logrus.FieldLogger
	router  *gin.Engine
	now     func() time.Time
}

func NewServer(cfg Config) *Server {
	if cfg.Gatherer == nil {
		cfg.Gatherer = prometheus.DefaultGatherer
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(cfg.Logger))

	server := &Server{
		monitor: cfg.Monitor,
		rules:   cfg.Rules,
		secret:  cfg.JWTSecret,
		log:     cfg.Logger,
		router:  router,
		now:     time.Now,
	}

	server.setupRoutes(cfg.Gatherer)
	return server
}

func (s *Server) setupRoutes(gatherer prometheus.Gatherer) {
	s.router.GET("/healthz", s.health)
	s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	if s.secret == "" {
		s.log.Warn("server.jwt_secret not set, admin API disabled")
		return
	}

	// Protected routes (require authentication)
	api := s.router.Group("/api/v1")
	api.Use(auth.AuthMiddleware(s.secret))

	rules := api.Group("/rules")
	{
		rules.GET("", s.listRules)
		rules.GET("/:id", s.getRule)
		rules.POST("", auth.RequireRole(auth.RoleAdmin), s.createRule)
		rules.PUT("/:id", auth.RequireRole(auth.RoleAdmin), s.updateRule)
		rules.DELETE("/:id", auth.RequireRole(auth.RoleAdmin), s.deleteRule)
		rules.PUT("/:id/enable", auth.RequireRole(auth.RoleAdmin), s.enableRule)
		rules.PUT("/:id/disable", auth.RequireRole(auth.RoleAdmin), s.disableRule)
		rules.POST("/:id/check", auth.RequireRole(auth.RoleAdmin), s.checkRule)
	}

	alerts := api.Group("/alerts")
	{
		alerts.GET("/active", s.activeAlerts)
		alerts.GET("/history", s.alertHistory)
		alerts.PUT("/:id/resolve", auth.RequireRole(auth.RoleAdmin), s.resolveAlert)
	}

	api.GET("/reports/alerts", s.alertReport)
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves on addr until ctx is done, then drains connections.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.log.WithField("addr", addr).Info("admin API listening")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return fmt.Errorf("failed to serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	return nil
}

func requestLogger(log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.FullPath(),
			"status":   c.Writer.Status(),
			"duration": time.Since(start),
		}).Debug("request handled")
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":        "ok",
		"rules":         len(s.monitor.Rules()),
		"active_alerts": len(s.monitor.ActiveAlerts()),
	})
}

func (s *Server) listRules(c *gin.Context) {
	c.JSON(http.StatusOK, s.monitor.Rules())
}

func (s *Server) getRule(c *gin.Context) {
	rule, err := s.monitor.Rule(c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rule)
}

func (s *Server) createRule(c *gin.Context) {
	var rule models.AlertRule
	if err := c.ShouldBindJSON(&rule); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.saveRule(c.Request.Context(), &rule); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, rule)
}

func (s *Server) updateRule(c *gin.Context) {
	id := c.Param("id")
	if _, err := s.monitor.Rule(id); err != nil {
		s.fail(c, err)
		return
	}

	var rule models.AlertRule
	if err := c.ShouldBindJSON(&rule); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if rule.ID != "" && rule.ID != id {
		c.JSON(http.StatusBadRequest, gin.H{"error": "rule id in body does not match path"})
		return
	}
	rule.ID = id

	if err := s.saveRule(c.Request.Context(), &rule); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rule)
}

func (s *Server) deleteRule(c *gin.Context) {
	id := c.Param("id")
	if s.rules != nil {
		if err := s.rules.Delete(c.Request.Context(), id); err != nil {
			s.fail(c, err)
			return
		}
	}
	s.monitor.RemoveRule(id)
	c.JSON(http.StatusOK, gin.H{"message": "rule deleted successfully"})
}

func (s *Server) enableRule(c *gin.Context) {
	s.setEnabled(c, true)
}

func (s *Server) disableRule(c *gin.Context) {
	s.setEnabled(c, false)
}

func (s *Server) setEnabled(c *gin.Context, enabled bool) {
	rule, err := s.monitor.Rule(c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	rule.Enabled = enabled
	if err := s.saveRule(c.Request.Context(), rule); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rule)
}

func (s *Server) saveRule(ctx context.Context, rule *models.AlertRule) error {
	if err := alert.ValidateRule(rule); err != nil {
		return err
	}
	if s.rules != nil {
		if err := s.rules.Save(ctx, rule); err != nil {
			return err
		}
	}
	s.monitor.AddRule(rule)
	return nil
}

func (s *Server) checkRule(c *gin.Context) {
	fired, err := s.monitor.CheckRule(c.Request.Context(), c.Param("id"))
	if err != nil {
		var se *alert.SamplingError
		if errors.As(err, &se) {
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"triggered": fired != nil, "alert": fired})
}

func (s *Server) activeAlerts(c *gin.Context) {
	c.JSON(http.StatusOK, s.monitor.ActiveAlerts())
}

func (s *Server) alertHistory(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		l, err := strconv.Atoi(raw)
		if err != nil || l < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = l
	}

	alerts, err := s.monitor.History(c.Request.Context(), limit)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, alerts)
}

func (s *Server) resolveAlert(c *gin.Context) {
	var body struct {
		ResolvedBy string `json:"resolved_by"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	if body.ResolvedBy == "" {
		body.ResolvedBy = c.GetString(auth.ContextSubject)
	}

	if err := s.monitor.Resolve(c.Request.Context(), c.Param("id"), body.ResolvedBy); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "alert resolved"})
}

func (s *Server) alertReport(c *gin.Context) {
	hours := defaultReportHours
	if raw := c.Query("hours"); raw != "" {
		h, err := strconv.Atoi(raw)
		if err != nil || h <= 0 || h > maxReportHours {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid hours"})
			return
		}
		hours = h
	}

	end := s.now().UTC()
	start := end.Add(-time.Duration(hours) * time.Hour)
	alerts, err := s.monitor.AlertsBetween(c.Request.Context(), start, end)
	if err != nil {
		s.fail(c, err)
		return
	}
	data := report.Summarize(alerts, start, end)

	switch c.DefaultQuery("format", "json") {
	case "json":
		c.JSON(http.StatusOK, data)
	case "html":
		c.Header("Content-Type", "text/html; charset=utf-8")
		c.Status(http.StatusOK)
		if err := report.RenderHTML(c.Writer, data); err != nil {
			s.log.WithError(err).Error("failed to render report")
		}
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "format must be json or html"})
	}
}

func (s *Server) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, alert.ErrRuleNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, alert.ErrInvalidRule):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, alert.ErrRuleDisabled):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		s.log.WithError(err).WithField("path", c.FullPath()).Error("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
