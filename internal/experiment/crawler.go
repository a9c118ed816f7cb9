package experiment

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"pushgateway/internal/model"
	"pushgateway/internal/repository"
)

const (
	// DefaultMaxConcurrency bounds in-flight work at each pipeline stage.
	DefaultMaxConcurrency = 16

	defaultRetryAttempts = 3
	defaultRetryBackoff  = time.Second
)

// Crawler sweeps the account population for one experiment: it expands
// accounts into (account, device) pairs, filters by eligibility, records an
// initial sample exactly once per pair, and applies the treatment matching
// the pair's deterministic bucket. Every stage runs under its own
// concurrency ceiling, and every per-item failure is contained at the item.
type Crawler struct {
	samples        repository.ExperimentSampleRepository
	maxConcurrency int
	retryAttempts  int
	retryBackoff   time.Duration

	alreadyExists atomic.Int64
}

// CrawlerConfig holds tunables for a crawl.
type CrawlerConfig struct {
	MaxConcurrency int
	RetryAttempts  int           // retries after the initial sample-store attempt
	RetryBackoff   time.Duration // first backoff, doubled per retry
}

func NewCrawler(samples repository.ExperimentSampleRepository, cfg CrawlerConfig) *Crawler {
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = DefaultMaxConcurrency
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = defaultRetryAttempts
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = defaultRetryBackoff
	}

	return &Crawler{
		samples:        samples,
		maxConcurrency: cfg.MaxConcurrency,
		retryAttempts:  cfg.RetryAttempts,
		retryBackoff:   cfg.RetryBackoff,
	}
}

// AlreadyExistsCount reports how many pairs were skipped because their
// sample record already existed, e.g. from an earlier or overlapping crawl.
func (c *Crawler) AlreadyExistsCount() int64 {
	return c.alreadyExists.Load()
}

type accountDevice struct {
	account *model.Account
	device  *model.Device
}

// Crawl drains the account source through all four stages and blocks until
// every produced account has been fully processed. There is no overall
// timeout; per-item retry exhaustion is the only per-item give-up signal.
func (c *Crawler) Crawl(ctx context.Context, experiment Experiment, accounts <-chan *model.Account) {
	pairs := make(chan accountDevice)
	eligible := make(chan accountDevice)
	recorded := make(chan accountDevice)

	go func() {
		defer close(pairs)
		for account := range accounts {
			for i := range account.Devices {
				pairs <- accountDevice{account: account, device: &account.Devices[i]}
			}
		}
	}()

	var eligibilityWG sync.WaitGroup
	for i := 0; i < c.maxConcurrency; i++ {
		eligibilityWG.Add(1)
		go func() {
			defer eligibilityWG.Done()
			for pair := range pairs {
				ok, err := experiment.IsDeviceEligible(ctx, pair.account, pair.device)
				if err != nil {
					log.Printf("[Crawler] Eligibility check failed for %s:%d in experiment %s: %v",
						pair.account.Identifier, pair.device.ID, experiment.Name(), err)
					continue
				}
				if ok {
					eligible <- pair
				}
			}
		}()
	}
	go func() {
		eligibilityWG.Wait()
		close(eligible)
	}()

	var recordWG sync.WaitGroup
	for i := 0; i < c.maxConcurrency; i++ {
		recordWG.Add(1)
		go func() {
			defer recordWG.Done()
			for pair := range eligible {
				if c.recordInitialSample(ctx, experiment, pair) {
					recorded <- pair
				}
			}
		}()
	}
	go func() {
		recordWG.Wait()
		close(recorded)
	}()

	var treatWG sync.WaitGroup
	for i := 0; i < c.maxConcurrency; i++ {
		treatWG.Add(1)
		go func() {
			defer treatWG.Done()
			for pair := range recorded {
				c.applyTreatment(ctx, experiment, pair)
			}
		}()
	}
	treatWG.Wait()
}

// recordInitialSample snapshots the device's state and conditionally creates
// its sample record, retrying transient store failures with backoff. It
// returns true only when a new record was stored; in every other case the
// pair is dropped from the treatment stage.
func (c *Crawler) recordInitialSample(ctx context.Context, experiment Experiment, pair accountDevice) bool {
	state, err := experiment.State(ctx, pair.account, pair.device)
	if err != nil {
		log.Printf("[Crawler] Failed to capture state for %s:%d in experiment %s: %v",
			pair.account.Identifier, pair.device.ID, experiment.Name(), err)
		return false
	}

	inExperimentGroup := InExperimentGroup(pair.account.Identifier, pair.device.ID, experiment.Name())

	backoff := c.retryBackoff
	var stored bool
	for attempt := 0; ; attempt++ {
		stored, err = c.samples.RecordInitialState(ctx,
			pair.account.Identifier, pair.device.ID, experiment.Name(), inExperimentGroup, state)
		if err == nil {
			break
		}
		if attempt == c.retryAttempts {
			log.Printf("[Crawler] Failed to record initial sample for %s:%d in experiment %s: %v",
				pair.account.Identifier, pair.device.ID, experiment.Name(), err)
			return false
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			log.Printf("[Crawler] Failed to record initial sample for %s:%d in experiment %s: %v",
				pair.account.Identifier, pair.device.ID, experiment.Name(), ctx.Err())
			return false
		case <-timer.C:
		}
		backoff *= 2
	}

	if !stored {
		// Another crawl already enrolled this device; treatment is applied
		// at most once per device per experiment.
		c.alreadyExists.Add(1)
		return false
	}
	return true
}

func (c *Crawler) applyTreatment(ctx context.Context, experiment Experiment, pair accountDevice) {
	inExperimentGroup := InExperimentGroup(pair.account.Identifier, pair.device.ID, experiment.Name())

	var err error
	if inExperimentGroup {
		err = experiment.ApplyExperimentTreatment(ctx, pair.account, pair.device)
	} else {
		err = experiment.ApplyControlTreatment(ctx, pair.account, pair.device)
	}

	if err != nil {
		group := "control"
		if inExperimentGroup {
			group = "experimental"
		}
		log.Printf("[Crawler] Failed to apply %s treatment for %s:%d in experiment %s: %v",
			group, pair.account.Identifier, pair.device.ID, experiment.Name(), err)
	}
}
