// Package statusapi serves the endpoint status of a linkwatch engine over HTTP.
package statusapi

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/arloliu/go-linkwatch/internal/config"
	"github.com/arloliu/go-linkwatch/linkwatch"
)

// Source is the read side of the engine the API reports on.
type Source interface {
	Handles() []linkwatch.Handle
	Info(h linkwatch.Handle) (linkwatch.EndpointInfo, bool)
}

// EndpointStatus is the JSON view of one endpoint.
type EndpointStatus struct {
	Handle    uint64     `json:"handle"`
	Alias     string     `json:"alias"`
	Kind      string     `json:"kind"`
	Address   string     `json:"address"`
	Status    string     `json:"status"`
	Transport string     `json:"transport"`
	Logical   string     `json:"logical"`
	Sessions  int        `json:"sessions,omitempty"`
	Changed   *time.Time `json:"changed,omitempty"`
}

// Server is the status HTTP server.
type Server struct {
	src     Source
	changed *xsync.MapOf[linkwatch.Handle, time.Time]
	router  *gin.Engine
	srv     *http.Server
}

// New creates the server. metricsHandler is mounted at cfg.MetricsPath when not nil.
func New(cfg config.HTTPConfig, src Source, metricsHandler http.Handler) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		src:     src,
		changed: xsync.NewMapOf[linkwatch.Handle, time.Time](),
		router:  gin.New(),
	}
	s.router.Use(gin.Recovery())

	s.router.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	s.router.GET("/status", s.listStatus)
	s.router.GET("/status/:alias", s.getStatus)

	metricsPath := cfg.MetricsPath
	if metricsPath == "" {
		metricsPath = "/metrics"
	}
	if metricsHandler != nil {
		s.router.GET(metricsPath, gin.WrapH(metricsHandler))
	}

	s.srv = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Observe records the time of a published status change. It has the linkwatch.StatusHandler signature.
func (s *Server) Observe(h linkwatch.Handle, _ linkwatch.State) {
	s.changed.Store(h, time.Now())
}

// Start serves until Shutdown, returning http.ErrServerClosed then.
func (s *Server) Start() error {
	return s.srv.ListenAndServe()
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) listStatus(c *gin.Context) {
	handles := s.src.Handles()
	sort.Slice(handles, func(i, j int) bool { return handles[i] < handles[j] })

	list := make([]EndpointStatus, 0, len(handles))
	for _, h := range handles {
		if info, ok := s.src.Info(h); ok {
			list = append(list, s.view(info))
		}
	}

	c.JSON(http.StatusOK, list)
}

func (s *Server) getStatus(c *gin.Context) {
	alias := c.Param("alias")
	for _, h := range s.src.Handles() {
		info, ok := s.src.Info(h)
		if ok && info.Alias == alias {
			c.JSON(http.StatusOK, s.view(info))
			return
		}
	}

	c.JSON(http.StatusNotFound, gin.H{"error": "endpoint not found", "alias": alias})
}

func (s *Server) view(info linkwatch.EndpointInfo) EndpointStatus {
	st := EndpointStatus{
		Handle:    uint64(info.Handle),
		Alias:     info.Alias,
		Kind:      info.Kind.String(),
		Address:   info.Address,
		Status:    info.Status.String(),
		Transport: info.Transport.String(),
		Logical:   info.Logical.String(),
		Sessions:  info.Sessions,
	}
	if t, ok := s.changed.Load(info.Handle); ok {
		st.Changed = &t
	}

	return st
}
