// Command crawler starts a push-notification experiment: it sweeps the full
// account population, enrolls each eligible device exactly once, and applies
// the treatment matching the device's deterministic bucket.
package main

import (
	"context"
	"log"

	"github.com/spf13/pflag"

	"pushgateway/internal/config"
	"pushgateway/internal/database"
	"pushgateway/internal/experiment"
	"pushgateway/internal/push"
	"pushgateway/internal/redis"
	"pushgateway/internal/repository"
)

func main() {
	experimentName := pflag.String("experiment", "", "name of the experiment to start")
	maxConcurrency := pflag.Int("max-concurrency", experiment.DefaultMaxConcurrency,
		"max concurrency for store and transport operations")
	batchSize := pflag.Int("batch-size", 500, "accounts per page when crawling the account table")
	pflag.Parse()

	if *experimentName == "" {
		log.Fatalf("--experiment is required (known experiments: %v)", experiment.Names())
	}
	if *maxConcurrency <= 0 {
		log.Fatalf("--max-concurrency must be positive, got %d", *maxConcurrency)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	ctx := context.Background()

	redisClient, err := redis.NewClient(cfg.RedisURL)
	if err != nil {
		log.Fatalf("Failed to create redis client: %v", err)
	}
	defer redisClient.Close()

	if err := redisClient.Ping(ctx); err != nil {
		log.Fatalf("Failed to connect to redis: %v", err)
	}

	accounts := repository.NewAccountRepository(db)

	apnSender, err := push.NewAPNSender(cfg.APNBaseURL, cfg.APNTeamID, cfg.APNKeyID, cfg.APNSigningKey, cfg.APNBundleID)
	if err != nil {
		log.Fatalf("Failed to create apn sender: %v", err)
	}

	fcmSender, err := push.NewFCMSender(ctx, cfg.FCMProjectID, cfg.FCMClientEmail, cfg.FCMPrivateKey)
	if err != nil {
		log.Fatalf("Failed to create fcm sender: %v", err)
	}

	// The scheduler is used for its pending-notification writes only; no
	// worker loop runs in the crawl command.
	scheduler := push.NewScheduler(redisClient, apnSender, accounts, push.SchedulerConfig{})
	dispatcher := push.NewDispatcher(accounts, apnSender, fcmSender, scheduler)

	exp, err := experiment.Build(*experimentName, experiment.Dependencies{Sender: dispatcher})
	if err != nil {
		log.Fatalf("Failed to build experiment: %v", err)
	}

	crawler := experiment.NewCrawler(repository.NewExperimentSampleRepository(db), experiment.CrawlerConfig{
		MaxConcurrency: *maxConcurrency,
	})

	accountStream, errs := accounts.StreamAll(ctx, *batchSize)
	crawler.Crawl(ctx, exp, accountStream)

	if err := <-errs; err != nil {
		log.Fatalf("Crawl source failed: %v", err)
	}

	log.Printf("Crawl complete: experiment=%s alreadyEnrolled=%d", exp.Name(), crawler.AlreadyExistsCount())
}
