package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"pixelevents/internal/lottery"
	"pixelevents/internal/notifications"
	"pixelevents/internal/shared/config"
	"pixelevents/internal/shared/database"
	"pixelevents/internal/waitlist"
	"pixelevents/pkg/cache"
	"pixelevents/pkg/logger"
)

type Seeder struct {
	db        *database.DB
	waitlists waitlist.Service
	lottery   lottery.Service
}

// demo lists: one open, one already drawn, one closed
var demoLists = []struct {
	eventID  string
	title    string
	capacity int
	entrants int
	drawn    int
	closed   bool
}{
	{"swim-lessons-spring", "Spring Swim Lessons", 30, 24, -1, false},
	{"pottery-night", "Pottery Night", 12, 12, 4, false},
	{"city-marathon", "City Marathon", 100, 40, -1, true},
}

func main() {
	fmt.Println("🌱 Starting Pixel Events waitlist seeder...")

	cfg := config.Load()

	db, err := database.InitDB(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	seeder := NewSeeder(cfg, db)

	fmt.Println("\n🧹 Cleaning data...")
	if err := seeder.CleanDatabase(); err != nil {
		log.Fatalf("Failed to clean database: %v", err)
	}

	fmt.Println("\n🌱 Seeding waitlists...")
	if err := seeder.SeedAll(context.Background()); err != nil {
		log.Fatalf("Failed to seed: %v", err)
	}

	fmt.Println("\n🎉 Seeding completed!")
}

func NewSeeder(cfg *config.Config, db *database.DB) *Seeder {
	appLogger := logger.GetDefault()

	waitlists := waitlist.NewService(waitlist.NewRedisStore(db.GetRedisClient()), appLogger, &waitlist.ServiceConfig{
		StoreTimeout:    cfg.Waitlist.StoreTimeout,
		DrawLockTTL:     cfg.Waitlist.DrawLockTTL,
		DefaultCapacity: cfg.Waitlist.DefaultCapacity,
	})

	repo := notifications.NewRepository(db.GetPostgreSQL())
	dispatcher := notifications.NewDispatcher(repo, nil, cache.NewService(db.GetRedisClient()), appLogger, &notifications.DispatcherConfig{
		Concurrency:  cfg.Waitlist.DispatchConcurrency,
		StoreTimeout: cfg.Waitlist.StoreTimeout,
	})

	return &Seeder{
		db:        db,
		waitlists: waitlists,
		lottery:   lottery.NewService(waitlists, lottery.NewScheduleRepository(db.GetRedisClient()), dispatcher, nil, appLogger, nil),
	}
}

// CleanDatabase truncates the notification tables and drops the demo lists
func (s *Seeder) CleanDatabase() error {
	for _, table := range []string{"notifications", "notification_logs"} {
		fmt.Printf("  Truncating table: %s\n", table)
		if err := s.db.PostgreSQL.Exec(fmt.Sprintf("DELETE FROM %s", table)).Error; err != nil {
			return fmt.Errorf("failed to truncate table %s: %w", table, err)
		}
	}

	ctx := context.Background()
	for _, list := range demoLists {
		err := s.waitlists.DeleteWaitlist(ctx, list.eventID)
		if err != nil && !errors.Is(err, waitlist.ErrWaitlistNotFound) {
			return fmt.Errorf("failed to delete waitlist %s: %w", list.eventID, err)
		}
	}
	return nil
}

// SeedAll creates the demo lists through the admission path
func (s *Seeder) SeedAll(ctx context.Context) error {
	for _, list := range demoLists {
		if _, err := s.waitlists.CreateWaitlist(ctx, &waitlist.CreateWaitlistRequest{
			EventID:  list.eventID,
			Capacity: list.capacity,
		}); err != nil {
			return fmt.Errorf("failed to create waitlist %s: %w", list.eventID, err)
		}

		for i := 0; i < list.entrants; i++ {
			entrantID := fmt.Sprintf("entrant-%03d", i+1)
			if _, err := s.waitlists.Join(ctx, list.eventID, entrantID); err != nil {
				return fmt.Errorf("failed to join %s: %w", list.eventID, err)
			}
		}
		fmt.Printf("    ✅ %s: %d/%d entrants\n", list.eventID, list.entrants, list.capacity)

		if list.drawn >= 0 {
			resp, err := s.lottery.DrawAndNotify(ctx, list.eventID, &lottery.DrawRequest{
				Count:      list.drawn,
				EventTitle: list.title,
			})
			if err != nil {
				return fmt.Errorf("failed to draw %s: %w", list.eventID, err)
			}
			fmt.Printf("    🎲 drew %d winners, %d notifications delivered\n",
				len(resp.Result.Winners), resp.Report.Delivered)
		}

		if list.closed {
			if err := s.waitlists.CloseWaitlist(ctx, list.eventID); err != nil {
				return fmt.Errorf("failed to close %s: %w", list.eventID, err)
			}
		}
	}

	// a pending draw for the open list, an hour out
	_, err := s.lottery.ScheduleDraw(ctx, demoLists[0].eventID, &lottery.ScheduleDrawRequest{
		Count:      10,
		EventTitle: demoLists[0].title,
		RunAt:      time.Now().Add(time.Hour),
	})
	if err != nil {
		return fmt.Errorf("failed to schedule draw: %w", err)
	}
	return nil
}
