package server

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
	"gorm.io/gorm"

	"github.com/customeros/mailvault/api"
	"github.com/customeros/mailvault/config"
	"github.com/customeros/mailvault/internal/cron"
	"github.com/customeros/mailvault/internal/logger"
	"github.com/customeros/mailvault/internal/repository"
	"github.com/customeros/mailvault/internal/tracing"
	"github.com/customeros/mailvault/services"
)

type Server struct {
	config       *config.Config
	httpServer   *http.Server
	router       *gin.Engine
	services     *services.Services
	repositories *repository.Repositories
	cronManager  *cron.CronManager
	tracerCloser io.Closer
}

func NewServer(cfg *config.Config, db *gorm.DB) (*Server, error) {
	// Initialize logger
	appLogger := logger.NewAppLogger(cfg.Logger)
	appLogger.InitLogger()

	// Initialize tracing
	tracer, closer, err := tracing.NewJaegerTracer(cfg.Tracing, appLogger)
	if err != nil {
		log.Fatalf("Could not initialize jaeger tracer: %s", err.Error())
	}
	opentracing.SetGlobalTracer(tracer)

	// Initialize repositories
	repos := repository.InitRepositories(db)

	// Initialize services
	svcs, err := services.InitServices(cfg, appLogger, repos)
	if err != nil {
		return nil, err
	}

	// Scheduler for automatic backups
	cronManager := cron.NewCronManager(cfg, appLogger, svcs.BackupService, repos.SettingsRepository)

	// Initialize Gin
	gin.SetMode(gin.ReleaseMode)
	router := gin.Default()

	return &Server{
		config:       cfg,
		router:       router,
		services:     svcs,
		repositories: repos,
		cronManager:  cronManager,
		tracerCloser: closer,
		httpServer: &http.Server{
			Addr:    ":" + cfg.AppConfig.APIPort,
			Handler: router,
		},
	}, nil
}

func (s *Server) Initialize(ctx context.Context) error {
	// Sweep temp files left behind by a previous crash before any run starts
	log.Println("Sweeping orphaned temp files...")
	removed, err := s.services.BackupService.CleanupOrphans(ctx)
	if err != nil {
		log.Printf("⚠️ Orphan sweep failed: %v", err)
	} else if removed > 0 {
		log.Printf("Removed %d orphaned temp files", removed)
	}

	// Setup API routes
	api.RegisterRoutes(s.router, s.services, s.repositories, s.cronManager, s.config.AppConfig.APIKey)

	return nil
}

func (s *Server) recoverWithJaeger(name string) {
	if r := recover(); r != nil {
		// Create a new span for the panic
		span := opentracing.GlobalTracer().StartSpan(
			fmt.Sprintf("panic.%s", name),
		)
		defer span.Finish()

		// Mark span as failed
		ext.Error.Set(span, true)

		// Log panic details
		span.LogKV(
			"event", "panic",
			"process", name,
			"error", fmt.Sprintf("%v", r),
			"stack", string(debug.Stack()),
		)

		log.Printf("❌ Panic in %s: %v\n%s", name, r, debug.Stack())
	}
}

func (s *Server) wrapGoroutine(name string, fn func()) {
	defer s.recoverWithJaeger(name)
	fn()
}

func (s *Server) Run() error {
	// Create root context for the application
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize server components
	if err := s.Initialize(ctx); err != nil {
		return err
	}

	// Start the scheduler
	log.Println("Starting scheduler...")
	if err := s.cronManager.Start(); err != nil {
		return err
	}
	log.Println("✅ Scheduler started successfully")

	// Start HTTP server in a goroutine with panic recovery
	go s.wrapGoroutine("http_server", func() {
		log.Println("Starting HTTP server")
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("❌ HTTP server error: %v", err)
		}
	})
	log.Println("✅ HTTP server started successfully")
	log.Println("MailVault is now running. Press Ctrl+C to exit.")

	return s.waitForShutdown()
}

func (s *Server) waitForShutdown() error {
	defer s.recoverWithJaeger("shutdown")

	// Set up signal handling for graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	// Wait for termination signal
	<-stop
	log.Println("Shutting down...")

	// Create a context with timeout for shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	// Shut down HTTP server
	log.Println("Shutting down HTTP server...")
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("❌ HTTP server shutdown error: %v", err)
	} else {
		log.Println("✅ HTTP server shut down successfully")
	}

	// Stop the scheduler so nothing new is dispatched while runs wind down
	log.Println("Stopping scheduler...")
	s.cronManager.Stop()
	log.Println("✅ Scheduler stopped successfully")

	// Cancel active backup runs with timeout and panic recovery
	log.Println("Stopping active backup runs...")
	stopDone := make(chan struct{})
	go s.wrapGoroutine("backup_shutdown", func() {
		defer close(stopDone)
		s.services.BackupService.Shutdown(shutdownCtx)
	})

	// Wait for runs to stop with timeout
	select {
	case <-stopDone:
		log.Println("✅ Backup runs stopped gracefully")
	case <-time.After(10 * time.Second):
		log.Println("⚠️ Backup shutdown timed out, forcing exit")
	}

	// Close the event publisher connection
	if err := s.services.Close(); err != nil {
		log.Printf("❌ Services shutdown error: %v", err)
	}

	// Flush remaining spans last
	if s.tracerCloser != nil {
		s.tracerCloser.Close()
	}

	return nil
}
