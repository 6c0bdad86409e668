package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/midaslabs/reimburse/internal/config"
)

// Server wraps the gin engine and the underlying http.Server.
type Server struct {
	engine *gin.Engine
	server *http.Server
	logger *zap.Logger
}

// NewServer builds the router and registers all routes.
func NewServer(cfg config.ServerConfig, handlers *Handlers, jwtSecret string, logger *zap.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(LoggingMiddleware(logger))
	engine.Use(CORSMiddleware())
	engine.MaxMultipartMemory = cfg.MaxUploadSize

	engine.GET("/health", handlers.HealthCheck)

	api := engine.Group("/api", AuthMiddleware(jwtSecret))
	{
		api.POST("/reimbursements", RequireRole("user"), handlers.SubmitReimbursement)
		api.GET("/reimbursements", handlers.ListMyReimbursements)

		admin := api.Group("/admin", RequireRole("admin"))
		{
			admin.GET("/reimbursements", handlers.ListGroupReimbursements)
			admin.GET("/reimbursements/export", handlers.ExportGroupReimbursements)
			admin.POST("/policies", handlers.CreatePolicy)
			admin.POST("/policies/upload", handlers.UploadPolicyDocument)
			admin.GET("/policies", handlers.ListPolicyDocuments)
		}
	}

	return &Server{
		engine: engine,
		server: &http.Server{
			Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			Handler:      engine,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		logger: logger,
	}
}

// Start begins serving; it blocks until the server stops.
func (s *Server) Start() error {
	s.logger.Info("HTTP server starting", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}
