package notifications

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"pixelevents/internal/shared/apperr"
	"pixelevents/internal/shared/constants"
	"pixelevents/internal/waitlist"
	"pixelevents/pkg/cache"
	"pixelevents/pkg/logger"
)

// Service exposes inbox reads, organizer broadcasts and the audit log
type Service interface {
	Broadcast(ctx context.Context, eventID string, request *BroadcastRequest) (*DispatchReport, error)

	ListInbox(ctx context.Context, recipientID string, query *ListQuery) ([]Notification, error)
	MarkRead(ctx context.Context, recipientID string, id uuid.UUID) error

	ListAuditLog(ctx context.Context, eventID string, query *ListQuery) ([]NotificationLog, error)
	WasIssued(ctx context.Context, id uuid.UUID) (bool, error)
}

type ServiceConfig struct {
	StoreTimeout time.Duration
	InboxTTL     time.Duration
}

func DefaultServiceConfig() *ServiceConfig {
	return &ServiceConfig{
		StoreTimeout: waitlist.DefaultStoreTimeout,
		InboxTTL:     constants.TTL_INBOX,
	}
}

type service struct {
	repo       Repository
	dispatcher *Dispatcher
	waitlists  waitlist.Service
	cache      cache.Service
	config     *ServiceConfig
	validate   *validator.Validate
	log        *logger.Logger
	now        func() time.Time
}

// NewService creates the notification service. cacheService may be nil.
func NewService(repo Repository, dispatcher *Dispatcher, waitlists waitlist.Service, cacheService cache.Service, log *logger.Logger, config *ServiceConfig) Service {
	if config == nil {
		config = DefaultServiceConfig()
	}
	if log == nil {
		log = logger.GetDefault()
	}
	return &service{
		repo:       repo,
		dispatcher: dispatcher,
		waitlists:  waitlists,
		cache:      cacheService,
		config:     config,
		validate:   validator.New(),
		log:        log,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (s *service) Broadcast(ctx context.Context, eventID string, request *BroadcastRequest) (*DispatchReport, error) {
	if err := s.validate.Struct(request); err != nil {
		return nil, fmt.Errorf("%w: %s", apperr.ErrInvalidArgument, err.Error())
	}

	var recipients []string
	switch request.Group {
	case GroupSelected:
		selected, err := s.waitlists.ListSelected(ctx, eventID)
		if err != nil {
			return nil, err
		}
		recipients = selected
	default:
		entry, err := s.waitlists.GetWaitlist(ctx, eventID)
		if err != nil {
			return nil, err
		}
		switch request.Group {
		case GroupAccepted:
			recipients = entry.Accepted
		case GroupCancelled:
			recipients = entry.Declined
		default:
			recipients = entry.Waiting
		}
	}

	report := s.dispatcher.Broadcast(context.WithoutCancel(ctx), recipients, eventID, request.EventTitle, request.Message)
	return report, nil
}

func (s *service) ListInbox(ctx context.Context, recipientID string, query *ListQuery) ([]Notification, error) {
	if query == nil {
		query = &ListQuery{}
	}
	query.Normalize()
	if err := s.validate.Struct(query); err != nil {
		return nil, fmt.Errorf("%w: %s", apperr.ErrInvalidArgument, err.Error())
	}

	ctx, cancel := context.WithTimeout(ctx, s.config.StoreTimeout)
	defer cancel()

	fetch := func() ([]Notification, error) {
		items, err := s.repo.ListInbox(ctx, recipientID, query.Limit, query.Offset)
		if err != nil {
			return nil, apperr.Transient("list inbox", err)
		}
		return items, nil
	}

	if s.cache == nil {
		return fetch()
	}

	return cache.Load(ctx, s.cache, constants.BuildInboxKey(recipientID),
		constants.BuildInboxField(query.Limit, query.Offset), s.config.InboxTTL, fetch)
}

func (s *service) MarkRead(ctx context.Context, recipientID string, id uuid.UUID) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.StoreTimeout)
	defer cancel()

	if err := s.repo.MarkRead(ctx, recipientID, id, s.now()); err != nil {
		if errors.Is(err, ErrNotificationNotFound) {
			return err
		}
		return apperr.Transient("mark notification read", err)
	}

	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, constants.BuildInboxKey(recipientID)); err != nil {
			s.log.Warn("Failed to invalidate inbox cache", "error", err, "recipient_id", recipientID)
		}
	}
	return nil
}

func (s *service) ListAuditLog(ctx context.Context, eventID string, query *ListQuery) ([]NotificationLog, error) {
	if query == nil {
		query = &ListQuery{}
	}
	query.Normalize()
	if err := s.validate.Struct(query); err != nil {
		return nil, fmt.Errorf("%w: %s", apperr.ErrInvalidArgument, err.Error())
	}

	ctx, cancel := context.WithTimeout(ctx, s.config.StoreTimeout)
	defer cancel()

	entries, err := s.repo.ListAuditLog(ctx, eventID, query.Limit, query.Offset)
	if err != nil {
		return nil, apperr.Transient("list audit log", err)
	}
	return entries, nil
}

func (s *service) WasIssued(ctx context.Context, id uuid.UUID) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.config.StoreTimeout)
	defer cancel()

	exists, err := s.repo.Exists(ctx, id)
	if err != nil {
		return false, apperr.Transient("check notification", err)
	}
	return exists, nil
}
