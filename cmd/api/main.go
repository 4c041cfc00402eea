package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-redis/redis/v8"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/slotbook/clinic_booking/cache"
	config "github.com/slotbook/clinic_booking/configs"
	"github.com/slotbook/clinic_booking/database"
	"github.com/slotbook/clinic_booking/database/repository"
	"github.com/slotbook/clinic_booking/handlers"
	"github.com/slotbook/clinic_booking/jobs"
	"github.com/slotbook/clinic_booking/routes"
	"github.com/slotbook/clinic_booking/services"
	"github.com/slotbook/clinic_booking/utils"
	"github.com/slotbook/clinic_booking/websocket"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := utils.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer log.Sync()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	db, err := database.Connect(cfg, log)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer database.Close(db)

	if err := database.Migrate(db); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	log.Info("database ready")

	store := repository.NewGormStore(db,
		repository.WithTxTimeout(cfg.TxTimeout),
		repository.WithLockTimeout(cfg.LockTimeout),
	)

	hub := websocket.NewHub(log)
	go hub.Run(ctx)

	publishers := services.MultiPublisher{hub}
	var (
		slotCache   services.SlotListCache
		cachePinger handlers.Pinger
		redisClient *redis.Client
	)
	if cfg.CacheEnabled() {
		redisClient, err = cache.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisCacheDB)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer redisClient.Close()

		ac := cache.NewAvailabilityCache(redisClient, cfg.AvailabilityCacheTTL)
		slotCache = ac
		cachePinger = ac
		publishers = append(publishers, ac)
		log.Info("availability cache enabled", zap.String("addr", cfg.RedisAddr), zap.Duration("ttl", cfg.AvailabilityCacheTTL))
	}

	policy, err := services.ParseHardDeletePolicy(cfg.HardDeletePolicy)
	if err != nil {
		return err
	}

	catalog := services.NewCatalogService(store, slotCache, publishers, log)
	bookings := services.NewBookingService(store, publishers, log,
		services.RejectInactiveSlots(cfg.RejectInactiveSlotBookings),
	)
	lifecycle := services.NewLifecycleService(store, publishers, log, policy)

	app := routes.NewApp(routes.AppOptions{
		AppName:          cfg.AppName,
		CORSAllowOrigins: cfg.CORSAllowOrigins,
		RateLimitPerMin:  cfg.RateLimitPerMin,
		RateLimitBurst:   cfg.RateLimitBurst,
	}, routes.Handlers{
		Slots:    handlers.NewSlotHandler(catalog),
		Bookings: handlers.NewBookingHandler(bookings),
		Admin:    handlers.NewAdminHandler(catalog, lifecycle),
		Health:   handlers.NewHealthHandler(store, cachePinger, log),
		Hub:      hub,
	}, log)

	scheduler := cron.New()
	audit := jobs.NewOverbookingAudit(catalog, log)
	if err := audit.Schedule(scheduler, cfg.AuditSchedule); err != nil {
		return fmt.Errorf("schedule overbooking audit: %w", err)
	}
	scheduler.Start()

	serveErr := make(chan error, 1)
	go func() {
		log.Info("server starting", zap.String("port", cfg.AppPort), zap.String("hard_delete_policy", string(policy)))
		serveErr <- app.Listen(":" + cfg.AppPort)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serveErr:
		if err != nil {
			log.Error("server stopped", zap.Error(err))
		}
	case sig := <-quit:
		log.Info("shutting down", zap.String("signal", sig.String()))
	}

	if err := app.ShutdownWithTimeout(cfg.ShutdownTimeout); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}
	<-scheduler.Stop().Done()
	stop()

	log.Info("server stopped")
	return nil
}
