package http

import (
	"context"
	"fmt"
	"log"
	stdhttp "net/http"

	"pushgateway/internal/config"
	"pushgateway/internal/database"
	"pushgateway/internal/handler"
	"pushgateway/internal/push"
	"pushgateway/internal/redis"
	"pushgateway/internal/repository"
)

func Run() error {
	ctx := context.Background()

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	db, err := database.Connect(cfg)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	redisClient, err := redis.NewClient(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("failed to create redis client: %w", err)
	}
	defer redisClient.Close()

	if err := redisClient.Ping(ctx); err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}

	accounts := repository.NewAccountRepository(db)
	flags := repository.NewFeatureFlagRepository(db)

	apnSender, err := push.NewAPNSender(cfg.APNBaseURL, cfg.APNTeamID, cfg.APNKeyID, cfg.APNSigningKey, cfg.APNBundleID)
	if err != nil {
		return fmt.Errorf("failed to create apn sender: %w", err)
	}

	fcmSender, err := push.NewFCMSender(ctx, cfg.FCMProjectID, cfg.FCMClientEmail, cfg.FCMPrivateKey)
	if err != nil {
		return fmt.Errorf("failed to create fcm sender: %w", err)
	}

	scheduler := push.NewScheduler(redisClient, apnSender, accounts, push.SchedulerConfig{
		WorkerCount: cfg.SchedulerWorkerCount,
	})
	scheduler.Start(ctx)
	defer scheduler.Stop()

	dispatcher := push.NewDispatcher(accounts, apnSender, fcmSender, scheduler)

	router := NewRouter(RouterConfig{
		FeatureFlagHandler: handler.NewFeatureFlagHandler(flags, cfg.FeatureFlagTokens),
		DeviceTokenHandler: handler.NewDeviceTokenHandler(accounts, dispatcher),
		JWTSecret:          cfg.JWTSecret,
	})

	log.Printf("Starting server on :%s", cfg.ServerPort)
	return stdhttp.ListenAndServe(":"+cfg.ServerPort, router)
}
