package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/Gerald18902/gestion-citas/internal/config"
	v1 "github.com/Gerald18902/gestion-citas/internal/handler/v1"
	"github.com/Gerald18902/gestion-citas/internal/repository"
	"github.com/Gerald18902/gestion-citas/internal/service"
	"github.com/Gerald18902/gestion-citas/pkg/database"
	"github.com/Gerald18902/gestion-citas/pkg/logger"
	"github.com/Gerald18902/gestion-citas/pkg/metrics"
	"github.com/Gerald18902/gestion-citas/pkg/tracer"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	zlog, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("building logger: %v", err)
	}
	defer func() { _ = zlog.Sync() }()

	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	tp, err := tracer.Init(cfg.Tracing)
	if err != nil {
		zlog.Fatal("initializing tracer", zap.Error(err))
	}

	db, err := database.Connect(cfg.Database)
	if err != nil {
		zlog.Fatal("connecting to database", zap.Error(err))
	}
	if err := database.Migrate(db, zlog); err != nil {
		zlog.Fatal("migrating database", zap.Error(err))
	}

	sqlDB, err := db.DB()
	if err != nil {
		zlog.Fatal("getting sql.DB handle", zap.Error(err))
	}

	collector := metrics.NewCollector("citas")

	auditSvc := service.NewAuditService(repository.NewAuditRepository(db), zlog, collector)
	apptSvc := service.NewAppointmentService(repository.NewAppointmentRepository(db), auditSvc, zlog, collector)

	h := v1.NewAppointmentHandler(apptSvc, zlog)
	router := v1.NewRouter(cfg, zlog, collector, h, func(ctx context.Context) error {
		return sqlDB.PingContext(ctx)
	})

	// Sample pool stats for the db gauge.
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			collector.DBConnections.Set(float64(sqlDB.Stats().OpenConnections))
		}
	}()

	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		zlog.Info("server listening",
			zap.String("addr", srv.Addr),
			zap.String("env", cfg.App.Environment),
			zap.String("version", cfg.App.Version),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Fatal("server error", zap.Error(err))
		}
	}()

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	<-ch

	zlog.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		zlog.Error("server shutdown", zap.Error(err))
	}
	auditSvc.Shutdown()
	if err := tp.Shutdown(ctx); err != nil {
		zlog.Error("tracer shutdown", zap.Error(err))
	}
	if err := sqlDB.Close(); err != nil {
		zlog.Error("closing database", zap.Error(err))
	}
}
