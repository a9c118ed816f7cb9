package push

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"pushgateway/internal/model"
	"pushgateway/internal/redis"
	"pushgateway/internal/repository"
)

const (
	backgroundPendingKey = "scheduled_notifications:background"
	voipPendingKey       = "scheduled_notifications:voip"

	// DefaultBackgroundDelay is how long after an accepted non-urgent APN
	// send the deferred background wake-up fires.
	DefaultBackgroundDelay = 20 * time.Minute

	// DefaultVoipInterval is the period of the recurring VOIP wake-up.
	DefaultVoipInterval = 15 * time.Second

	defaultPollInterval = time.Second
	defaultBatchSize    = 100
)

// Scheduler is a Redis-backed ScheduledNotificationService. Pending
// wake-ups live in sorted sets scored by due time; worker goroutines pop due
// entries and send the wake-up directly through the APN transport. Sending
// through the transport rather than the dispatcher keeps an accepted
// background send from immediately re-scheduling itself.
type Scheduler struct {
	redis     *redis.Client
	apnSender TransportSender
	accounts  repository.AccountRepository

	backgroundDelay time.Duration
	voipInterval    time.Duration
	workerCount     int
	batchSize       int64
	pollInterval    time.Duration

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// SchedulerConfig holds tunables for the scheduler's worker loop.
type SchedulerConfig struct {
	BackgroundDelay time.Duration
	VoipInterval    time.Duration
	WorkerCount     int
	BatchSize       int64
	PollInterval    time.Duration
}

func NewScheduler(redisClient *redis.Client, apnSender TransportSender, accounts repository.AccountRepository, cfg SchedulerConfig) *Scheduler {
	if cfg.BackgroundDelay <= 0 {
		cfg.BackgroundDelay = DefaultBackgroundDelay
	}
	if cfg.VoipInterval <= 0 {
		cfg.VoipInterval = DefaultVoipInterval
	}
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 2
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}

	return &Scheduler{
		redis:           redisClient,
		apnSender:       apnSender,
		accounts:        accounts,
		backgroundDelay: cfg.BackgroundDelay,
		voipInterval:    cfg.VoipInterval,
		workerCount:     cfg.WorkerCount,
		batchSize:       cfg.BatchSize,
		pollInterval:    cfg.PollInterval,
	}
}

// ScheduleBackgroundNotification arms a one-shot background wake-up for the
// device. Re-scheduling an already-armed device just moves its due time.
func (s *Scheduler) ScheduleBackgroundNotification(ctx context.Context, account *model.Account, device *model.Device) error {
	return s.schedule(ctx, backgroundPendingKey, account, device, s.backgroundDelay)
}

// ScheduleRecurringVoipNotification arms the recurring VOIP wake-up for the
// device; each delivered wake-up re-arms the next one.
func (s *Scheduler) ScheduleRecurringVoipNotification(ctx context.Context, account *model.Account, device *model.Device) error {
	return s.schedule(ctx, voipPendingKey, account, device, s.voipInterval)
}

func (s *Scheduler) schedule(ctx context.Context, key string, account *model.Account, device *model.Device, delay time.Duration) error {
	due := float64(time.Now().Add(delay).UnixMilli())
	err := s.redis.ZAdd(ctx, key, goredis.Z{Score: due, Member: member(account, device)}).Err()
	if err != nil {
		return fmt.Errorf("schedule notification: %w", err)
	}
	return nil
}

// CancelScheduledNotifications removes any pending background and VOIP
// wake-ups for the device. Safe to call when nothing is scheduled.
func (s *Scheduler) CancelScheduledNotifications(ctx context.Context, account *model.Account, device *model.Device) error {
	m := member(account, device)
	if err := s.redis.ZRem(ctx, backgroundPendingKey, m).Err(); err != nil {
		return fmt.Errorf("cancel scheduled notifications: %w", err)
	}
	if err := s.redis.ZRem(ctx, voipPendingKey, m).Err(); err != nil {
		return fmt.Errorf("cancel scheduled notifications: %w", err)
	}
	return nil
}

// Start begins the worker goroutines.
// Call Stop() to gracefully shut down.
func (s *Scheduler) Start(ctx context.Context) {
	s.ctx, s.cancel = context.WithCancel(ctx)

	log.Printf("[Scheduler] Starting %d workers", s.workerCount)
	for i := 0; i < s.workerCount; i++ {
		workerID := i + 1
		s.wg.Add(1)
		go s.runWorker(workerID)
	}
}

// Stop gracefully shuts down all workers.
// Blocks until all workers have finished.
func (s *Scheduler) Stop() {
	log.Printf("[Scheduler] Stopping workers...")
	s.cancel()
	s.wg.Wait()
	log.Printf("[Scheduler] All workers stopped")
}

func (s *Scheduler) runWorker(workerID int) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			log.Printf("[Scheduler-%d] Shutting down", workerID)
			return
		case <-ticker.C:
			s.processDue(workerID, backgroundPendingKey)
			s.processDue(workerID, voipPendingKey)
		}
	}
}

// processDue claims and delivers entries whose due time has passed. The ZREM
// is the claim: with several workers (or processes) polling the same sets,
// only the one whose removal succeeds delivers the wake-up.
func (s *Scheduler) processDue(workerID int, key string) {
	now := strconv.FormatInt(time.Now().UnixMilli(), 10)

	members, err := s.redis.ZRangeByScore(s.ctx, key, &goredis.ZRangeBy{
		Min:   "-inf",
		Max:   now,
		Count: s.batchSize,
	}).Result()
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			log.Printf("[Scheduler-%d] Error reading due entries: %v", workerID, err)
		}
		return
	}

	for _, m := range members {
		removed, err := s.redis.ZRem(s.ctx, key, m).Result()
		if err != nil {
			log.Printf("[Scheduler-%d] Error claiming %s: %v", workerID, m, err)
			continue
		}
		if removed == 0 {
			continue // claimed by another worker
		}

		if err := s.deliver(key, m); err != nil {
			log.Printf("[Scheduler-%d] Failed to deliver scheduled wake-up for %s: %v", workerID, m, err)
		}
	}
}

func (s *Scheduler) deliver(key, m string) error {
	identifier, deviceID, err := parseMember(m)
	if err != nil {
		return err
	}

	account, err := s.accounts.GetByAccountIdentifier(s.ctx, identifier)
	if errors.Is(err, repository.ErrAccountNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	device, ok := account.Device(deviceID)
	if !ok {
		return nil
	}

	var notification *model.PushNotification
	switch key {
	case voipPendingKey:
		if device.VoipApnID == "" {
			return nil
		}
		notification = &model.PushNotification{
			DeviceToken: device.VoipApnID,
			TokenType:   model.TokenTypeAPNVoip,
			Type:        model.NotificationTypeNewMessage,
			Account:     account,
			Device:      device,
			Urgent:      true,
		}
	default:
		if device.ApnID == "" {
			return nil
		}
		notification = &model.PushNotification{
			DeviceToken: device.ApnID,
			TokenType:   model.TokenTypeAPN,
			Type:        model.NotificationTypeNewMessage,
			Account:     account,
			Device:      device,
			Urgent:      false,
		}
	}

	result, err := s.apnSender.SendNotification(s.ctx, notification)
	if err != nil {
		return err
	}

	if result.Accepted && key == voipPendingKey {
		return s.ScheduleRecurringVoipNotification(s.ctx, account, device)
	}
	return nil
}

func member(account *model.Account, device *model.Device) string {
	return account.Identifier.String() + ":" + strconv.Itoa(int(device.ID))
}

func parseMember(m string) (uuid.UUID, uint8, error) {
	identifierPart, deviceIDPart, ok := strings.Cut(m, ":")
	if !ok {
		return uuid.Nil, 0, fmt.Errorf("malformed scheduled entry: %q", m)
	}

	identifier, err := uuid.Parse(identifierPart)
	if err != nil {
		return uuid.Nil, 0, fmt.Errorf("malformed scheduled entry %q: %w", m, err)
	}

	deviceID, err := strconv.ParseUint(deviceIDPart, 10, 8)
	if err != nil {
		return uuid.Nil, 0, fmt.Errorf("malformed scheduled entry %q: %w", m, err)
	}

	return identifier, uint8(deviceID), nil
}
