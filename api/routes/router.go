// api/routes/router.go
package routes

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"pixelevents/internal/lottery"
	"pixelevents/internal/notifications"
	"pixelevents/internal/shared/config"
	"pixelevents/internal/shared/database"
	"pixelevents/internal/waitlist"
	"pixelevents/pkg/cache"
	"pixelevents/pkg/logger"
)

// Router holds all route dependencies
type Router struct {
	config *config.Config
	db     *database.DB
	log    *logger.Logger

	waitlists     waitlist.Service
	lottery       lottery.Service
	notifications notifications.Service

	channel  notifications.Channel
	consumer *notifications.DeliveryConsumer
	jobs     *lottery.JobProcessor
}

// NewRouter wires every service. With Kafka disabled pushes are only logged
// and no receipt consumer runs.
func NewRouter(cfg *config.Config, db *database.DB, log *logger.Logger) (*Router, error) {
	if log == nil {
		log = logger.GetDefault()
	}
	r := &Router{config: cfg, db: db, log: log}

	// Waitlist and admission
	r.waitlists = waitlist.NewService(
		waitlist.NewRedisStore(db.GetRedisClient()),
		log,
		&waitlist.ServiceConfig{
			StoreTimeout:    cfg.Waitlist.StoreTimeout,
			DrawLockTTL:     cfg.Waitlist.DrawLockTTL,
			DefaultCapacity: cfg.Waitlist.DefaultCapacity,
		},
	)

	// Notifications
	notificationRepo := notifications.NewRepository(db.GetPostgreSQL())
	cacheService := cache.NewService(db.GetRedisClient())

	if err := r.setupChannel(notificationRepo); err != nil {
		return nil, err
	}

	dispatcher := notifications.NewDispatcher(notificationRepo, r.channel, cacheService, log, &notifications.DispatcherConfig{
		Concurrency:  cfg.Waitlist.DispatchConcurrency,
		StoreTimeout: cfg.Waitlist.StoreTimeout,
	})
	r.notifications = notifications.NewService(notificationRepo, dispatcher, r.waitlists, cacheService, log, &notifications.ServiceConfig{
		StoreTimeout: cfg.Waitlist.StoreTimeout,
		InboxTTL:     cfg.Redis.CacheTTL,
	})

	// Lottery
	r.lottery = lottery.NewService(
		r.waitlists,
		lottery.NewScheduleRepository(db.GetRedisClient()),
		dispatcher,
		nil,
		log,
		&lottery.ServiceConfig{
			StoreTimeout: cfg.Waitlist.StoreTimeout,
			ClaimBatch:   50,
			RetryDelay:   cfg.Waitlist.SchedulePollInterval,
		},
	)
	r.jobs = lottery.NewJobProcessor(r.lottery, log, &lottery.JobConfig{
		PollInterval: cfg.Waitlist.SchedulePollInterval,
	})

	return r, nil
}

func (r *Router) setupChannel(receipts notifications.ReceiptStore) error {
	if !r.config.Kafka.Enabled {
		r.channel = notifications.NewLogChannel(r.log)
		r.log.Info("Kafka disabled, push notifications will only be logged")
		return nil
	}

	channelConfig := notifications.DefaultKafkaChannelConfig()
	channelConfig.Brokers = r.config.Kafka.Brokers
	channelConfig.Topic = r.config.Kafka.NotificationTopic
	channelConfig.ClientID = r.config.Kafka.ClientID

	channel, err := notifications.NewKafkaChannel(channelConfig, r.log)
	if err != nil {
		return fmt.Errorf("failed to create push channel: %w", err)
	}
	r.channel = channel

	consumerConfig := notifications.DefaultConsumerConfig()
	consumerConfig.Brokers = r.config.Kafka.Brokers
	consumerConfig.Topics = []string{r.config.Kafka.NotificationTopic}
	consumerConfig.GroupID = r.config.Kafka.ConsumerGroup
	consumerConfig.ClientID = r.config.Kafka.ClientID

	consumer, err := notifications.NewDeliveryConsumer(consumerConfig, receipts, r.log)
	if err != nil {
		channel.Close()
		return fmt.Errorf("failed to create receipt consumer: %w", err)
	}
	r.consumer = consumer
	return nil
}

// SetupRoutes configures all application routes
func (r *Router) SetupRoutes(engine *gin.Engine) {
	// Health check and basic info endpoints
	r.setupHealthRoutes(engine)

	api := engine.Group(r.config.GetAPIBasePath())
	{
		waitlist.SetupWaitlistRoutes(api, waitlist.NewController(r.waitlists))
		lottery.SetupLotteryRoutes(api, lottery.NewController(r.lottery, r.jobs))
		notifications.SetupNotificationRoutes(api, notifications.NewController(r.notifications))
	}
}

// Start runs the draw scheduler and the receipt consumer
func (r *Router) Start(ctx context.Context) {
	r.jobs.Start(ctx)
	if r.consumer != nil {
		r.consumer.Start(ctx)
	}
}

// Stop shuts the background workers down and closes the push channel
func (r *Router) Stop() error {
	r.jobs.Stop()

	var errs []error
	if r.consumer != nil {
		if err := r.consumer.Stop(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := r.channel.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// setupHealthRoutes sets up health check and system status routes
func (r *Router) setupHealthRoutes(engine *gin.Engine) {
	engine.GET("/health", func(c *gin.Context) {
		components := gin.H{}
		healthy := true
		for component, err := range r.db.Components(c.Request.Context()) {
			if err != nil {
				healthy = false
				components[component] = err.Error()
				continue
			}
			components[component] = "up"
		}

		status, code := "healthy", http.StatusOK
		if !healthy {
			status, code = "unhealthy", http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{
			"status":     status,
			"components": components,
			"timestamp":  time.Now(),
			"service":    "pixelevents-waitlist",
		})
	})

	engine.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "pong",
			"version": r.config.APIVersion,
		})
	})

	engine.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":      "operational",
			"api_version": r.config.APIVersion,
			"kafka":       r.config.Kafka.Enabled,
			"scheduler":   r.jobs.GetJobStatus(),
			"timestamp":   time.Now(),
		})
	})
}
