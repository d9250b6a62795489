// Package outbox drains notification intents written by payment commits and
// hands them to the email and messaging sinks.
//
// Intents are claimed with a conditional update before sending, so two
// dispatchers never send the same intent. A claimed intent that is never
// settled is released after StuckAfter. Payment.NotificationSent is set only
// once every intent of the payment is sent.
package outbox

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"

	"bank-transfer-reconciler/internal/models"
	"bank-transfer-reconciler/internal/notify"
	"bank-transfer-reconciler/internal/store"
	"bank-transfer-reconciler/pkg/logger"
)

// Config holds dispatcher settings
type Config struct {
	Interval    time.Duration `mapstructure:"interval"`
	BatchSize   int           `mapstructure:"batch_size"`
	MaxAttempts int           `mapstructure:"max_attempts"`
	StuckAfter  time.Duration `mapstructure:"stuck_after"`

	Now    func() time.Time `mapstructure:"-"`
	Logger logger.Logger    `mapstructure:"-"`
}

// DefaultConfig returns the default dispatcher configuration
func DefaultConfig() *Config {
	return &Config{
		Interval:    30 * time.Second,
		BatchSize:   50,
		MaxAttempts: 5,
		StuckAfter:  10 * time.Minute,
	}
}

// Validate checks the configuration
func (c *Config) Validate() error {
	if c.Interval <= 0 {
		return fmt.Errorf("dispatcher interval must be positive")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("dispatcher batch size must be positive")
	}
	if c.MaxAttempts <= 0 {
		return fmt.Errorf("dispatcher max attempts must be positive")
	}
	if c.StuckAfter <= 0 {
		return fmt.Errorf("dispatcher stuck-after must be positive")
	}
	return nil
}

// DrainResult counts what one drain did
type DrainResult struct {
	Released  int64
	Claimed   int
	Sent      int
	Retrying  int
	Failed    int
	Completed []uint
}

// Dispatcher delivers pending intents periodically or on demand
type Dispatcher struct {
	repo    store.Repository
	email   notify.EmailSender
	message notify.MessageSender
	config  Config
	now     func() time.Time
	logger  logger.Logger

	drainMu sync.Mutex
	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// NewDispatcher creates a dispatcher over the store and the two sinks
func NewDispatcher(repo store.Repository, email notify.EmailSender, message notify.MessageSender, config *Config) *Dispatcher {
	if config == nil {
		config = DefaultConfig()
	}
	now := config.Now
	if now == nil {
		now = time.Now
	}
	return &Dispatcher{
		repo:    repo,
		email:   email,
		message: message,
		config:  *config,
		now:     now,
		logger:  logger.OrGlobal(config.Logger).WithComponent("outbox"),
	}
}

// DrainOnce releases stuck intents, then claims and delivers up to one batch.
// Delivery failures are counted, not returned; the error carries store
// failures only.
func (d *Dispatcher) DrainOnce(ctx context.Context) (*DrainResult, error) {
	d.drainMu.Lock()
	defer d.drainMu.Unlock()

	result := &DrainResult{}
	now := d.now()

	released, err := d.repo.ReleaseStuckIntents(ctx, now.Add(-d.config.StuckAfter))
	if err != nil {
		return result, fmt.Errorf("release stuck intents: %w", err)
	}
	result.Released = released
	if released > 0 {
		d.logger.WithField("count", released).Warn("Released stuck notification intents")
	}

	intents, err := d.repo.ClaimIntents(ctx, d.config.BatchSize, now)
	result.Claimed = len(intents)
	if err != nil && len(intents) == 0 {
		return result, fmt.Errorf("claim intents: %w", err)
	}

	var errs error
	errs = multierr.Append(errs, err)
	touched := make(map[uint]struct{})
	var order []uint

	for _, intent := range intents {
		if _, ok := touched[intent.PaymentID]; !ok {
			touched[intent.PaymentID] = struct{}{}
			order = append(order, intent.PaymentID)
		}

		log := d.logger.WithFields(logger.Fields{
			"intent":  intent.ID,
			"channel": intent.Channel,
			"payment": intent.PaymentID,
			"attempt": intent.Attempts,
		})

		if sendErr := d.deliver(ctx, intent); sendErr != nil {
			status, markErr := d.repo.MarkIntentFailed(ctx, intent.ID, sendErr.Error(), d.config.MaxAttempts)
			if markErr != nil {
				errs = multierr.Append(errs, fmt.Errorf("mark intent %s failed: %w", intent.ID, markErr))
				continue
			}
			if status == models.IntentFailed {
				result.Failed++
				log.WithError(sendErr).Error("Notification abandoned after max attempts")
			} else {
				result.Retrying++
				log.WithError(sendErr).Warn("Notification failed, will retry")
			}
			continue
		}

		if err := d.repo.MarkIntentSent(ctx, intent.ID, d.now()); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("mark intent %s sent: %w", intent.ID, err))
			continue
		}
		result.Sent++
		log.Debug("Notification sent")
	}

	for _, paymentID := range order {
		done, err := d.repo.MarkNotificationSentIfComplete(ctx, paymentID)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("complete payment %d: %w", paymentID, err))
			continue
		}
		if done {
			result.Completed = append(result.Completed, paymentID)
		}
	}

	if result.Claimed > 0 {
		d.logger.WithFields(logger.Fields{
			"claimed":  result.Claimed,
			"sent":     result.Sent,
			"retrying": result.Retrying,
			"failed":   result.Failed,
		}).Info("Outbox drained")
	}
	return result, errs
}

func (d *Dispatcher) deliver(ctx context.Context, intent *models.NotificationIntent) error {
	switch intent.Channel {
	case models.ChannelEmail:
		if d.email == nil {
			return fmt.Errorf("no email sender configured")
		}
		return d.email.SendEmail(ctx, intent.Recipient, intent.Subject, intent.Body)
	case models.ChannelMessage:
		if d.message == nil {
			return fmt.Errorf("no message sender configured")
		}
		return d.message.SendMessage(ctx, intent.Recipient, intent.Body)
	}
	return fmt.Errorf("unknown channel %q", intent.Channel)
}

// Start drains the outbox every Interval until Stop is called
func (d *Dispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.running {
		return
	}
	d.stopCh = make(chan struct{})
	d.running = true

	d.wg.Add(1)
	go d.loop(d.stopCh)
	d.logger.WithField("interval", d.config.Interval.String()).Info("Outbox dispatcher started")
}

// Stop halts the periodic drain and waits for the current one to finish
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.running {
		return
	}
	close(d.stopCh)
	d.stopCh = nil
	d.running = false
	d.wg.Wait()
	d.logger.Info("Outbox dispatcher stopped")
}

func (d *Dispatcher) loop(stopCh <-chan struct{}) {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.Interval)
	defer ticker.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-stopCh
		cancel()
	}()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			if _, err := d.DrainOnce(ctx); err != nil && ctx.Err() == nil {
				d.logger.WithError(err).Error("Outbox drain failed")
			}
		}
	}
}
