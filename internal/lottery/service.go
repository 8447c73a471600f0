package lottery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"pixelevents/internal/notifications"
	"pixelevents/internal/shared/apperr"
	"pixelevents/internal/waitlist"
	"pixelevents/pkg/logger"
)

// Notifier fans a committed draw out to every entrant it touched
type Notifier interface {
	Dispatch(ctx context.Context, result *waitlist.DrawResult, eventID, eventTitle string) *notifications.DispatchReport
}

// Service is the lottery engine
type Service interface {
	Draw(ctx context.Context, eventID string, count int) (*waitlist.DrawResult, error)
	DrawAndNotify(ctx context.Context, eventID string, request *DrawRequest) (*DrawResponse, error)

	// Scheduled draws
	ScheduleDraw(ctx context.Context, eventID string, request *ScheduleDrawRequest) (*Schedule, error)
	GetScheduledDraw(ctx context.Context, eventID string) (*Schedule, error)
	CancelScheduledDraw(ctx context.Context, eventID string) error
	RunDueDraws(ctx context.Context) (int, error)
}

// ServiceConfig contains configuration for the lottery service
type ServiceConfig struct {
	StoreTimeout time.Duration
	ClaimBatch   int
	RetryDelay   time.Duration
}

// DefaultServiceConfig returns default service configuration
func DefaultServiceConfig() *ServiceConfig {
	return &ServiceConfig{
		StoreTimeout: waitlist.DefaultStoreTimeout,
		ClaimBatch:   50,
		RetryDelay:   time.Minute,
	}
}

type service struct {
	waitlists waitlist.Service
	schedules ScheduleRepository
	notifier  Notifier
	sampler   *Sampler
	config    *ServiceConfig
	validate  *validator.Validate
	log       *logger.Logger
	now       func() time.Time
}

// NewService creates a new lottery service. A nil sampler draws from OS entropy.
func NewService(waitlists waitlist.Service, schedules ScheduleRepository, notifier Notifier, sampler *Sampler, log *logger.Logger, config *ServiceConfig) Service {
	if config == nil {
		config = DefaultServiceConfig()
	}
	if sampler == nil {
		sampler = NewSampler()
	}
	if log == nil {
		log = logger.GetDefault()
	}

	return &service{
		waitlists: waitlists,
		schedules: schedules,
		notifier:  notifier,
		sampler:   sampler,
		config:    config,
		validate:  validator.New(),
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Draw selects count winners from the waiting entrants of eventID.
//
// The list is held in drawing state from snapshot to commit. When the commit
// call fails the list is re-read: a commit that landed anyway still yields its
// result so every entrant of the draw gets an outcome. Only a commit known not
// to have landed releases the lease and returns no result.
func (s *service) Draw(ctx context.Context, eventID string, count int) (*waitlist.DrawResult, error) {
	if count < 0 {
		return nil, ErrInvalidCount
	}

	lease, err := s.waitlists.BeginDraw(ctx, eventID)
	if err != nil {
		return nil, err
	}

	winners, losers := s.sampler.Pick(lease.Members, count)
	drawnAt := s.now().Truncate(time.Millisecond)
	result := &waitlist.DrawResult{
		EventID: eventID,
		Winners: winners,
		Losers:  losers,
		DrawnAt: drawnAt,
	}

	if err := s.waitlists.CommitDraw(ctx, lease, winners, drawnAt); err != nil {
		return s.recoverCommit(ctx, lease, result, err)
	}

	s.log.LogDrawCompleted(ctx, eventID, len(winners), len(losers))
	return result, nil
}

func (s *service) recoverCommit(ctx context.Context, lease *waitlist.DrawLease, result *waitlist.DrawResult, commitErr error) (*waitlist.DrawResult, error) {
	eventID := lease.EventID

	// the script checks the lock before writing anything
	if !errors.Is(commitErr, waitlist.ErrDrawLockLost) {
		committed, err := s.waitlists.DrawCommitted(ctx, lease)
		if err != nil {
			// unknown either way; the lock expires on its own if the commit
			// never ran, so it is left in place
			s.log.ErrorWithContext(ctx, "Draw commit outcome unknown", err, map[string]interface{}{
				"event_id": eventID,
			})
			s.log.LogDrawAborted(ctx, eventID, commitErr)
			return nil, commitErr
		}
		if committed {
			s.log.WarnContext(ctx, "Draw commit reported an error but was applied",
				"event_id", eventID,
				"error", commitErr,
			)
			s.log.LogDrawCompleted(ctx, eventID, len(result.Winners), len(result.Losers))
			return result, nil
		}
	}

	if err := s.waitlists.AbortDraw(ctx, lease); err != nil {
		s.log.ErrorWithContext(ctx, "Failed to release draw lease", err, map[string]interface{}{
			"event_id": eventID,
		})
	}
	s.log.LogDrawAborted(ctx, eventID, commitErr)
	return nil, commitErr
}

// DrawAndNotify runs a draw and dispatches its notifications exactly once.
// Dispatch is detached from ctx so a disconnecting caller cannot cut the fan-out short.
func (s *service) DrawAndNotify(ctx context.Context, eventID string, request *DrawRequest) (*DrawResponse, error) {
	if err := s.validate.Struct(request); err != nil {
		return nil, fmt.Errorf("%w: %s", apperr.ErrInvalidArgument, err.Error())
	}

	result, err := s.Draw(ctx, eventID, request.Count)
	if err != nil {
		return nil, err
	}

	report := s.notifier.Dispatch(context.WithoutCancel(ctx), result, eventID, request.EventTitle)
	return &DrawResponse{Result: result, Report: report}, nil
}

func (s *service) ScheduleDraw(ctx context.Context, eventID string, request *ScheduleDrawRequest) (*Schedule, error) {
	if err := s.validate.Struct(request); err != nil {
		return nil, fmt.Errorf("%w: %s", apperr.ErrInvalidArgument, err.Error())
	}

	// the list must exist and still accept draws
	entry, err := s.waitlists.GetWaitlist(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if entry.Status == waitlist.StatusClosed {
		return nil, waitlist.ErrWaitlistClosed
	}

	schedule := &Schedule{
		EventID:    eventID,
		Count:      request.Count,
		EventTitle: request.EventTitle,
		RunAt:      request.RunAt.UTC().Truncate(time.Millisecond),
		CreatedAt:  s.now().Truncate(time.Millisecond),
	}

	storeCtx, cancel := context.WithTimeout(ctx, s.config.StoreTimeout)
	defer cancel()

	if err := s.schedules.Save(storeCtx, schedule); err != nil {
		return nil, apperr.Transient("schedule draw", err)
	}

	s.log.InfoWithContext(ctx, "Draw Scheduled", map[string]interface{}{
		"event_id": eventID,
		"count":    schedule.Count,
		"run_at":   schedule.RunAt,
	})
	return schedule, nil
}

func (s *service) GetScheduledDraw(ctx context.Context, eventID string) (*Schedule, error) {
	ctx, cancel := context.WithTimeout(ctx, s.config.StoreTimeout)
	defer cancel()

	schedule, err := s.schedules.Get(ctx, eventID)
	if err != nil {
		return nil, apperr.Transient("get scheduled draw", err)
	}
	return schedule, nil
}

func (s *service) CancelScheduledDraw(ctx context.Context, eventID string) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.StoreTimeout)
	defer cancel()

	return apperr.Transient("cancel scheduled draw", s.schedules.Delete(ctx, eventID))
}

// RunDueDraws claims every due schedule and runs it. A draw that hits a busy
// or unreachable list is put back with a delay; any other failure drops it.
func (s *service) RunDueDraws(ctx context.Context) (int, error) {
	claimCtx, cancel := context.WithTimeout(ctx, s.config.StoreTimeout)
	due, err := s.schedules.ClaimDue(claimCtx, s.now(), s.config.ClaimBatch)
	cancel()
	if err != nil {
		return 0, apperr.Transient("claim due draws", err)
	}

	processed := 0
	for _, schedule := range due {
		_, err := s.DrawAndNotify(ctx, schedule.EventID, &DrawRequest{
			Count:      schedule.Count,
			EventTitle: schedule.EventTitle,
		})
		if err == nil {
			processed++
			continue
		}

		if errors.Is(err, ErrAlreadyDrawing) || errors.Is(err, apperr.ErrTransient) {
			schedule.RunAt = s.now().Add(s.config.RetryDelay)
			retryCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.config.StoreTimeout)
			if saveErr := s.schedules.Save(retryCtx, schedule); saveErr != nil {
				s.log.ErrorWithContext(ctx, "Failed to requeue scheduled draw", saveErr, map[string]interface{}{
					"event_id": schedule.EventID,
				})
			}
			cancel()
		}
		s.log.ErrorWithContext(ctx, "Scheduled draw failed", err, map[string]interface{}{
			"event_id": schedule.EventID,
		})
	}
	return processed, nil
}
