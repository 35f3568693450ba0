// Package api exposes the HTTP and websocket surface: registration, login,
// deposits, order placement/cancellation, balance queries, and the
// authenticated market-data/ewma websocket stream.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"marketrouter/auth"
	"marketrouter/engine"
	"marketrouter/hub"
	"marketrouter/logger"
	"marketrouter/metrics"
)

// Server wires gin handlers to the engine and hub.
type Server struct {
	engine  *engine.Engine
	hub     *hub.Hub
	router  *gin.Engine
	httpSrv *http.Server
	symbols []string
	jwtTTL  time.Duration
}

// NewServer builds the gin router and registers every route.
func NewServer(e *engine.Engine, h *hub.Hub, symbols []string, jwtTTL time.Duration) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), metrics.GinMiddleware())

	s := &Server{engine: e, hub: h, router: router, symbols: symbols, jwtTTL: jwtTTL}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.POST("/register", s.handleRegister)
	s.router.POST("/login", s.handleLogin)
	s.router.GET("/info", s.handleInfo)
	s.router.GET("/metrics", gin.WrapH(metrics.Handler()))
	s.router.GET("/ws", s.handleWebsocket)

	authed := s.router.Group("/")
	authed.Use(s.requireAuth)
	authed.POST("/deposit", s.handleDeposit)
	authed.POST("/orders", s.handlePlaceOrder)
	authed.GET("/orders/:token_id", s.handleGetOrder)
	authed.DELETE("/orders/:token_id", s.handleCancelOrder)
	authed.GET("/balance", s.handleBalance)
	authed.POST("/logout", s.handleLogout)
}

// Start runs the HTTP server until ctx is cancelled.
func (s *Server) Start(ctx context.Context, addr string) error {
	s.httpSrv = &http.Server{Addr: addr, Handler: s.router}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
			logger.Log.Warnf("api: shutdown: %v", err)
		}
	}()

	logger.Log.Infof("api: listening on %s", addr)
	err := s.httpSrv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

const bearerContextKey = "auth_username"

func (s *Server) requireAuth(c *gin.Context) {
	header := c.GetHeader("Authorization")
	const prefix = "Bearer "
	if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": "missing bearer token"})
		return
	}

	token := header[len(prefix):]
	claims, err := auth.ValidateJWT(token)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": "invalid or expired token"})
		return
	}

	c.Set(bearerContextKey, claims.Username)
	c.Set("auth_token", token)
	c.Next()
}

func currentUser(c *gin.Context) string {
	v, _ := c.Get(bearerContextKey)
	username, _ := v.(string)
	return username
}
