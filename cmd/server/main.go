package main // Entry point package

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/gatehouse/visit-registry/internal/cache"
	"github.com/gatehouse/visit-registry/internal/config"
	"github.com/gatehouse/visit-registry/internal/database"
	"github.com/gatehouse/visit-registry/internal/handler"
	"github.com/gatehouse/visit-registry/internal/middleware"
	"github.com/gatehouse/visit-registry/internal/notify"
	"github.com/gatehouse/visit-registry/internal/queue"
	"github.com/gatehouse/visit-registry/internal/repository"
	"github.com/gatehouse/visit-registry/internal/router"
	"github.com/gatehouse/visit-registry/internal/service"
)

func main() {
	_ = godotenv.Load() // .env is optional; real deployments set the environment directly

	cfg := config.Load()

	logger := newLogger(cfg.Env)
	defer logger.Sync() //nolint:errcheck

	policies, caps, err := config.LoadPolicies(cfg.PolicyFile)
	if err != nil {
		logger.Fatal("load policies", zap.Error(err))
	}

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		logger.Fatal("open database", zap.Error(err))
	}
	defer db.Close()

	rdb := config.NewRedisClient()
	if rdb == nil {
		logger.Warn("redis unavailable, counter cache and rate limiting disabled")
	}
	counters := cache.NewCounterCache(rdb, cfg.CounterTTL)

	var dispatcher notify.Dispatcher = notify.NewAMQPDispatcher(cfg.AMQPURL, logger)
	if cfg.AMQPURL == "" {
		logger.Warn("AMQP_URL not set, notifications will be dropped")
	} else {
		go func() {
			if err := queue.StartNotificationConsumer(cfg.AMQPURL, logger); err != nil {
				logger.Error("notification consumer stopped", zap.Error(err))
			}
		}()
		go func() {
			if err := queue.StartDeliveryStatusConsumer(cfg.AMQPURL, logger); err != nil {
				logger.Error("delivery status consumer stopped", zap.Error(err))
			}
		}()
	}

	entityRepo := repository.NewEntityRepo(db)
	visitRepo := repository.NewVisitRepo(db)
	staffRepo := repository.NewStaffRepo(db)

	clock := service.RealClock{}
	recalc := service.NewRecalcEngine(visitRepo, entityRepo, policies, counters, dispatcher, clock, logger)
	regSvc := service.NewRegistrationService(visitRepo, entityRepo, policies, counters, dispatcher, recalc, clock, logger)
	attSvc := service.NewAttendanceService(visitRepo, entityRepo, policies, dispatcher, clock, logger)
	sweeper := service.NewSweeper(visitRepo, entityRepo, recalc, dispatcher, clock, logger, cfg.SweepInterval)
	sweeper.Start()
	defer sweeper.Stop()

	handlers := router.Handlers{
		Auth:       handler.NewAuthHandler(cfg, staffRepo),
		Visits:     handler.NewVisitHandler(regSvc, caps),
		Attendance: handler.NewAttendanceHandler(attSvc),
		Entities:   handler.NewEntityHandler(entityRepo, visitRepo, policies, recalc, clock),
		Recalc:     handler.NewRecalcHandler(recalc, sweeper),
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb))

	router.RegisterRoutes(e, handlers)
	router.RegisterProtected(e, handlers, caps, cfg.JWTSecret)

	addr := ":" + cfg.Port
	go func() {
		logger.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env))
		if err := e.Start(addr); err != nil {
			logger.Info("server stopped", zap.Error(err))
		}
	}()

	// Block until a termination signal, then drain in-flight requests.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		logger.Error("shutdown", zap.Error(err))
	}
}

func newLogger(env string) *zap.Logger {
	var (
		logger *zap.Logger
		err    error
	)
	if env == "prod" {
		logger, err = zap.NewProduction()
	} else {
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	return logger
}
