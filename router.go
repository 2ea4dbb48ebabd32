package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/prdagent/prdagent/pkg/cache"
	"github.com/prdagent/prdagent/pkg/config"
	"github.com/prdagent/prdagent/pkg/event"
	"github.com/prdagent/prdagent/pkg/handler"
	"github.com/prdagent/prdagent/pkg/service"
	"github.com/prdagent/prdagent/pkg/utils"
)

type Server struct {
	ginEngine *gin.Engine
	logger    *slog.Logger
	config    *config.AppConfig
	db        *gorm.DB
	cache     *cache.Cache
	sweeper   *service.CompressionSweeper
}

func NewServer(cfg *config.AppConfig, database *gorm.DB) (*Server, error) {
	ginEngine := gin.New()
	ginEngine.Use(gin.Recovery())

	// CORS middleware: allow common localhost dev origins.
	ginEngine.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		// If there's no Origin header, it's not a browser CORS request.
		if origin != "" {
			allowed := strings.HasPrefix(origin, "http://localhost") ||
				strings.HasPrefix(origin, "http://127.0.0.1") ||
				strings.HasPrefix(origin, "https://localhost") ||
				strings.HasPrefix(origin, "https://127.0.0.1")

			if allowed {
				c.Header("Access-Control-Allow-Origin", origin)
				c.Header("Vary", "Origin")
				c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
				c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
			} else {
				c.AbortWithStatus(http.StatusForbidden)
				return
			}
		}

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	server := &Server{
		ginEngine: ginEngine,
		logger:    utils.GetLogger(),
		config:    cfg,
		db:        database,
		cache:     cache.New(cfg.RedisAddr(), cfg.RedisPassword(), cfg.RedisDB()),
	}

	if err := server.SetupRoutes(); err != nil {
		return nil, err
	}
	return server, nil
}

// Start listens and serves until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.Host(), s.config.Port())
	srv := &http.Server{Addr: addr, Handler: s.ginEngine}

	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return err
	}
	s.logger.Info("Server listening", "addr", addr)

	if err := s.sweeper.Start(); err != nil {
		return fmt.Errorf("start compression sweeper: %w", err)
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Serve(ln)
	}()

	select {
	case err := <-errChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	s.sweeper.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return s.cache.Close()
}

// SetupRoutes wires services and registers all API routes.
func (s *Server) SetupRoutes() error {
	modelService := service.NewModelService()
	sessionService := service.NewSessionService(s.db)
	documentService := service.NewDocumentService(s.db)
	sequenceService := service.NewSequenceService(s.db)
	compressionService := service.NewCompressionService(s.db, modelService, s.cache, s.config)
	bus := event.NewGroupBus(event.Global())
	chatService := service.NewChatService(s.db, modelService, sessionService, documentService,
		compressionService, sequenceService, s.cache, bus, s.config)
	s.sweeper = service.NewCompressionSweeper(s.db, compressionService)

	for _, migrate := range []func() error{
		sessionService.AutoMigrate,
		documentService.AutoMigrate,
		sequenceService.AutoMigrate,
		compressionService.AutoMigrate,
		chatService.AutoMigrate,
	} {
		if err := migrate(); err != nil {
			return fmt.Errorf("migrate database: %w", err)
		}
	}

	apiGroup := s.ginEngine.Group("/api/v1")

	// Model management API routes
	// /api/v1/models
	apiGroup.GET("/models", modelService.GetModelList)
	apiGroup.POST("/models", modelService.AddModel)
	apiGroup.PUT("/models/:id", modelService.UpdateModel)
	apiGroup.DELETE("/models/:id", modelService.DeleteModel)
	apiGroup.POST("/models/test", modelService.TestModelConnection)

	wsHandler := event.NewWSHandler()

	handler.NewChatHandler(chatService).RegisterRoutes(apiGroup)
	handler.NewSessionHandler(sessionService).RegisterRoutes(apiGroup)
	handler.NewGroupHandler(sessionService, compressionService, wsHandler).RegisterRoutes(apiGroup)
	handler.NewDocumentHandler(documentService).RegisterRoutes(apiGroup)
	handler.NewCompressionHandler(compressionService).RegisterRoutes(apiGroup)

	return nil
}
