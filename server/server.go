// Package server exposes the library service over HTTP. It owns token
// issuance and verification; everything below it works with a resolved
// Identity per request.
package server

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"library-server/library"
)

// Server wraps the echo instance and the domain service.
type Server struct {
	echo   *echo.Echo
	svc    *library.Service
	secret []byte
}

// New builds the HTTP server with all routes and middleware registered.
func New(svc *library.Service, secret []byte) *Server {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	s := &Server{echo: e, svc: svc, secret: secret}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.echo.GET("/health", s.health)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := s.echo.Group("/api")
	api.POST("/auth/register", s.register)
	api.POST("/auth/login", s.login)

	auth := api.Group("", s.authRequired)
	auth.GET("/auth/me", s.me)

	auth.GET("/books", s.listBooks)
	auth.GET("/books/:id", s.getBook)
	auth.POST("/books", s.createBook)
	auth.PUT("/books/:id", s.updateBook)
	auth.DELETE("/books/:id", s.deleteBook)

	auth.GET("/loans", s.listLoans)
	auth.POST("/loans", s.borrow)
	auth.POST("/loans/:id/return", s.returnLoan)

	auth.GET("/users", s.listUsers)
	auth.PUT("/users/:id", s.updateUser)

	auth.GET("/stats", s.stats)
}

// Start runs the server on addr until it fails or is shut down.
func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

// ServeHTTP lets tests drive the router without a listener.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}
