package notifications

import (
	"context"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"pixelevents/internal/shared/constants"
	"pixelevents/internal/waitlist"
	"pixelevents/pkg/cache"
	"pixelevents/pkg/logger"
)

const (
	DefaultDispatchConcurrency  = 16
	DefaultDispatchStoreTimeout = 5 * time.Second
)

// DispatcherConfig bounds the fan-out. StoreTimeout applies to every single
// write, invalidation and push, so one stalled recipient cannot hold the batch.
type DispatcherConfig struct {
	Concurrency  int
	StoreTimeout time.Duration
}

func DefaultDispatcherConfig() *DispatcherConfig {
	return &DispatcherConfig{
		Concurrency:  DefaultDispatchConcurrency,
		StoreTimeout: DefaultDispatchStoreTimeout,
	}
}

// Dispatcher fans a draw result or a broadcast out to every recipient
type Dispatcher struct {
	repo         Repository
	channel      Channel
	cache        cache.Service
	log          *logger.Logger
	concurrency  int
	storeTimeout time.Duration
}

// NewDispatcher wires the dispatcher. channel, cacheService and config may be nil.
func NewDispatcher(repo Repository, channel Channel, cacheService cache.Service, log *logger.Logger, config *DispatcherConfig) *Dispatcher {
	if log == nil {
		log = logger.GetDefault()
	}
	if channel == nil {
		channel = NewLogChannel(log)
	}
	if config == nil {
		config = DefaultDispatcherConfig()
	}
	concurrency := config.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultDispatchConcurrency
	}
	storeTimeout := config.StoreTimeout
	if storeTimeout <= 0 {
		storeTimeout = DefaultDispatchStoreTimeout
	}
	return &Dispatcher{
		repo:         repo,
		channel:      channel,
		cache:        cacheService,
		log:          log,
		concurrency:  concurrency,
		storeTimeout: storeTimeout,
	}
}

// Dispatch sends LOTTERY_WIN to every winner and LOTTERY_LOSS to every loser.
// It must be called exactly once per committed draw; it never deduplicates
// against earlier draws.
func (d *Dispatcher) Dispatch(ctx context.Context, result *waitlist.DrawResult, eventID, eventTitle string) *DispatchReport {
	if result == nil {
		return &DispatchReport{Failed: []string{}}
	}

	batch := make([]*Notification, 0, len(result.Winners)+len(result.Losers))
	for _, id := range result.Winners {
		batch = append(batch, NewNotificationBuilder().
			WithType(NotificationTypeLotteryWin).
			WithRecipient(id).
			WithEvent(eventID).
			WithContent(WinTitle, WinMessage(eventTitle)).
			Build())
	}
	for _, id := range result.Losers {
		batch = append(batch, NewNotificationBuilder().
			WithType(NotificationTypeLotteryLoss).
			WithRecipient(id).
			WithEvent(eventID).
			WithContent(LossTitle, LossMessage(eventTitle)).
			Build())
	}

	return d.send(ctx, eventID, batch)
}

// Broadcast sends one GENERAL notification to each recipient
func (d *Dispatcher) Broadcast(ctx context.Context, recipients []string, eventID, eventTitle, message string) *DispatchReport {
	batch := make([]*Notification, 0, len(recipients))
	for _, id := range recipients {
		batch = append(batch, NewNotificationBuilder().
			WithType(NotificationTypeGeneral).
			WithRecipient(id).
			WithEvent(eventID).
			WithContent(eventTitle, message).
			Build())
	}
	return d.send(ctx, eventID, batch)
}

func (d *Dispatcher) send(ctx context.Context, eventID string, batch []*Notification) *DispatchReport {
	var (
		mu     sync.Mutex
		report = &DispatchReport{Failed: []string{}}
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.concurrency)

	for _, n := range batch {
		g.Go(func() error {
			ok := d.deliver(gctx, n)

			mu.Lock()
			if ok {
				report.Delivered++
			} else {
				report.Failed = append(report.Failed, n.RecipientID)
			}
			mu.Unlock()

			// Per-recipient failures never cancel the rest of the batch
			return nil
		})
	}
	_ = g.Wait()

	sort.Strings(report.Failed)
	d.log.LogNotificationDispatched(ctx, eventID, report.Delivered, len(report.Failed))
	return report
}

// deliver attempts both writes regardless of the other's outcome, then pushes.
// Each round trip gets its own deadline even when ctx has none.
func (d *Dispatcher) deliver(ctx context.Context, n *Notification) bool {
	auditErr := d.bounded(ctx, func(ctx context.Context) error {
		return d.repo.SaveToAuditLog(ctx, n.ToLog())
	})
	if auditErr != nil {
		d.log.Error("Audit log write failed",
			"error", auditErr,
			"notification_id", n.ID.String(),
			"recipient_id", n.RecipientID,
		)
	}

	inboxErr := d.bounded(ctx, func(ctx context.Context) error {
		return d.repo.SaveToInbox(ctx, n)
	})
	if inboxErr != nil {
		d.log.Error("Inbox write failed",
			"error", inboxErr,
			"notification_id", n.ID.String(),
			"recipient_id", n.RecipientID,
		)
	}

	if d.cache != nil {
		err := d.bounded(ctx, func(ctx context.Context) error {
			return d.cache.Invalidate(ctx, constants.BuildInboxKey(n.RecipientID))
		})
		if err != nil {
			d.log.Warn("Failed to invalidate inbox cache", "error", err, "recipient_id", n.RecipientID)
		}
	}

	if auditErr != nil || inboxErr != nil {
		return false
	}

	err := d.bounded(ctx, func(ctx context.Context) error {
		return d.channel.Send(ctx, n)
	})
	if err != nil {
		d.log.Warn("Push delivery failed",
			"error", err,
			"notification_id", n.ID.String(),
			"recipient_id", n.RecipientID,
		)
	}
	return true
}

func (d *Dispatcher) bounded(ctx context.Context, call func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, d.storeTimeout)
	defer cancel()
	return call(ctx)
}
