package waitlist

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"pixelevents/internal/shared/apperr"
	"pixelevents/pkg/logger"
)

// Service is the admission controller of every event's waitlist
type Service interface {
	// Lifecycle operations
	CreateWaitlist(ctx context.Context, request *CreateWaitlistRequest) (*WaitlistEntry, error)
	GetWaitlist(ctx context.Context, eventID string) (*WaitlistEntry, error)
	RestoreWaitlist(ctx context.Context, entry *WaitlistEntry) error
	DeleteWaitlist(ctx context.Context, eventID string) error
	CloseWaitlist(ctx context.Context, eventID string) error
	ReopenWaitlist(ctx context.Context, eventID string) error

	// Admission operations
	Join(ctx context.Context, eventID, entrantID string) (JoinOutcome, error)
	Leave(ctx context.Context, eventID, entrantID string) (LeaveOutcome, error)
	IsMember(ctx context.Context, eventID, entrantID string) (bool, error)
	IsSelected(ctx context.Context, eventID, entrantID string) (bool, error)
	Size(ctx context.Context, eventID string) (int, error)
	ListSelected(ctx context.Context, eventID string) ([]string, error)

	// Invitation operations
	Respond(ctx context.Context, eventID, entrantID string, accept bool) (ResponseOutcome, error)

	// Draw operations
	BeginDraw(ctx context.Context, eventID string) (*DrawLease, error)
	CommitDraw(ctx context.Context, lease *DrawLease, winners []string, drawnAt time.Time) error
	AbortDraw(ctx context.Context, lease *DrawLease) error
	DrawCommitted(ctx context.Context, lease *DrawLease) (bool, error)
}

// ServiceConfig contains configuration for the waitlist service
type ServiceConfig struct {
	StoreTimeout    time.Duration
	DrawLockTTL     time.Duration
	DefaultCapacity int
}

// DefaultServiceConfig returns default service configuration
func DefaultServiceConfig() *ServiceConfig {
	return &ServiceConfig{
		StoreTimeout:    DefaultStoreTimeout,
		DrawLockTTL:     DefaultDrawLockTTL,
		DefaultCapacity: DefaultCapacity,
	}
}

type service struct {
	store    Store
	config   *ServiceConfig
	validate *validator.Validate
	log      *logger.Logger
	now      func() time.Time
}

// NewService creates a new waitlist service
func NewService(store Store, log *logger.Logger, config *ServiceConfig) Service {
	if config == nil {
		config = DefaultServiceConfig()
	}
	if log == nil {
		log = logger.GetDefault()
	}

	return &service{
		store:    store,
		config:   config,
		validate: validator.New(),
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// bounded derives the context every store call runs under
func (s *service) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.config.StoreTimeout)
}

func (s *service) CreateWaitlist(ctx context.Context, request *CreateWaitlistRequest) (*WaitlistEntry, error) {
	if err := s.validate.Struct(request); err != nil {
		return nil, fmt.Errorf("%w: %s", apperr.ErrInvalidArgument, err.Error())
	}

	capacity := request.Capacity
	if capacity == 0 {
		capacity = s.config.DefaultCapacity
	}

	entry := &WaitlistEntry{
		EventID:   request.EventID,
		Capacity:  capacity,
		Waiting:   []string{},
		Selected:  []string{},
		Accepted:  []string{},
		Declined:  []string{},
		Status:    StatusWaiting,
		CreatedAt: s.now().Truncate(time.Millisecond),
	}

	ctx, cancel := s.bounded(ctx)
	defer cancel()

	if err := s.store.Create(ctx, entry); err != nil {
		return nil, apperr.Transient("create waitlist", err)
	}

	s.log.InfoWithContext(ctx, "Waitlist Created", map[string]interface{}{
		"event_id": entry.EventID,
		"capacity": entry.Capacity,
	})
	return entry, nil
}

func (s *service) GetWaitlist(ctx context.Context, eventID string) (*WaitlistEntry, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	entry, err := s.store.Get(ctx, eventID)
	if err != nil {
		return nil, apperr.Transient("get waitlist", err)
	}
	return entry, nil
}

// RestoreWaitlist overwrites a waitlist with a full snapshot. It is an organizer
// maintenance operation and never runs concurrently with admission traffic.
func (s *service) RestoreWaitlist(ctx context.Context, entry *WaitlistEntry) error {
	if err := entry.Validate(); err != nil {
		return err
	}
	if entry.Status == StatusDrawing {
		return fmt.Errorf("%w: cannot restore a list in drawing state", apperr.ErrInvalidArgument)
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now().Truncate(time.Millisecond)
	}

	ctx, cancel := s.bounded(ctx)
	defer cancel()

	return apperr.Transient("restore waitlist", s.store.Put(ctx, entry))
}

func (s *service) DeleteWaitlist(ctx context.Context, eventID string) error {
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	if err := s.store.Delete(ctx, eventID); err != nil {
		return apperr.Transient("delete waitlist", err)
	}

	s.log.InfoWithContext(ctx, "Waitlist Deleted", map[string]interface{}{"event_id": eventID})
	return nil
}

func (s *service) CloseWaitlist(ctx context.Context, eventID string) error {
	return s.setStatus(ctx, eventID, StatusClosed)
}

func (s *service) ReopenWaitlist(ctx context.Context, eventID string) error {
	return s.setStatus(ctx, eventID, StatusWaiting)
}

func (s *service) setStatus(ctx context.Context, eventID string, status ListStatus) error {
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	return apperr.Transient("set waitlist status", s.store.SetStatus(ctx, eventID, status))
}

// Join admits the entrant. NotFound, AlreadyMember and Full are outcomes, not errors.
func (s *service) Join(ctx context.Context, eventID, entrantID string) (JoinOutcome, error) {
	if eventID == "" || entrantID == "" {
		return "", fmt.Errorf("%w: event and entrant ids are required", apperr.ErrInvalidArgument)
	}

	ctx, cancel := s.bounded(ctx)
	defer cancel()

	outcome, err := s.store.AtomicJoin(ctx, eventID, entrantID)
	if err != nil {
		return "", apperr.Transient("join waitlist", err)
	}

	s.log.LogWaitlistJoin(ctx, eventID, entrantID, string(outcome))
	return outcome, nil
}

// Leave removes the entrant. Leaving twice reports NotMember the second time.
func (s *service) Leave(ctx context.Context, eventID, entrantID string) (LeaveOutcome, error) {
	if eventID == "" || entrantID == "" {
		return "", fmt.Errorf("%w: event and entrant ids are required", apperr.ErrInvalidArgument)
	}

	ctx, cancel := s.bounded(ctx)
	defer cancel()

	outcome, err := s.store.AtomicLeave(ctx, eventID, entrantID)
	if err != nil {
		return "", apperr.Transient("leave waitlist", err)
	}

	s.log.LogWaitlistLeave(ctx, eventID, entrantID, string(outcome))
	return outcome, nil
}

func (s *service) IsMember(ctx context.Context, eventID, entrantID string) (bool, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	member, err := s.store.IsMember(ctx, eventID, entrantID)
	if err != nil {
		return false, apperr.Transient("check membership", err)
	}
	return member, nil
}

func (s *service) IsSelected(ctx context.Context, eventID, entrantID string) (bool, error) {
	entry, err := s.GetWaitlist(ctx, eventID)
	if err != nil {
		return false, err
	}
	return entry.IsSelected(entrantID), nil
}

func (s *service) Size(ctx context.Context, eventID string) (int, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	size, err := s.store.Size(ctx, eventID)
	if err != nil {
		return 0, apperr.Transient("waitlist size", err)
	}
	return size, nil
}

func (s *service) ListSelected(ctx context.Context, eventID string) ([]string, error) {
	entry, err := s.GetWaitlist(ctx, eventID)
	if err != nil {
		return nil, err
	}
	return entry.Selected, nil
}

// Respond records a selected entrant's answer to the invitation. Declining
// does not return the entrant to the pool.
func (s *service) Respond(ctx context.Context, eventID, entrantID string, accept bool) (ResponseOutcome, error) {
	if eventID == "" || entrantID == "" {
		return "", fmt.Errorf("%w: event and entrant ids are required", apperr.ErrInvalidArgument)
	}

	ctx, cancel := s.bounded(ctx)
	defer cancel()

	outcome, err := s.store.AtomicRespond(ctx, eventID, entrantID, accept, s.now())
	if err != nil {
		return "", apperr.Transient("record response", err)
	}

	s.log.LogInvitationResponse(ctx, eventID, entrantID, string(outcome))
	return outcome, nil
}

// BeginDraw puts the list in drawing state and snapshots the waiting entrants
func (s *service) BeginDraw(ctx context.Context, eventID string) (*DrawLease, error) {
	token := uuid.NewString()

	ctx, cancel := s.bounded(ctx)
	defer cancel()

	members, err := s.store.BeginDraw(ctx, eventID, token, s.config.DrawLockTTL)
	if err != nil {
		return nil, apperr.Transient("begin draw", err)
	}

	return &DrawLease{
		EventID: eventID,
		Token:   token,
		Members: members,
	}, nil
}

// CommitDraw persists the winners and returns the list to waiting
func (s *service) CommitDraw(ctx context.Context, lease *DrawLease, winners []string, drawnAt time.Time) error {
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	return apperr.Transient("commit draw", s.store.CommitDraw(ctx, lease.EventID, lease.Token, winners, drawnAt))
}

// AbortDraw releases the lease without touching membership. It runs even when
// the caller's context is already done so a failed draw never leaves the list locked.
func (s *service) AbortDraw(ctx context.Context, lease *DrawLease) error {
	ctx, cancel := s.bounded(context.WithoutCancel(ctx))
	defer cancel()

	err := s.store.AbortDraw(ctx, lease.EventID, lease.Token)
	if errors.Is(err, ErrDrawLockLost) {
		// another caller already recovered the list
		return nil
	}
	return apperr.Transient("abort draw", err)
}

// DrawCommitted reports whether the commit of lease reached the store. A commit
// can time out after Redis already applied it, so a failed CommitDraw call is
// not proof that nothing changed. Like AbortDraw it ignores ctx cancellation.
func (s *service) DrawCommitted(ctx context.Context, lease *DrawLease) (bool, error) {
	ctx, cancel := s.bounded(context.WithoutCancel(ctx))
	defer cancel()

	entry, err := s.store.Get(ctx, lease.EventID)
	if err != nil {
		return false, apperr.Transient("verify draw commit", err)
	}
	return entry.LastDrawToken == lease.Token, nil
}
