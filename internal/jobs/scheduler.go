package jobs

import (
	"fmt"
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// Scheduler runs the periodic maintenance jobs (session eviction and payment
// reconciliation)
type Scheduler struct {
	scheduler gocron.Scheduler
}

// NewScheduler creates a scheduler with second-level precision in UTC
func NewScheduler() (*Scheduler, error) {
	scheduler, err := gocron.NewScheduler(
		gocron.WithLocation(time.UTC),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}
	return &Scheduler{scheduler: scheduler}, nil
}

// Register adds a recurring job by interval
func (s *Scheduler) Register(name string, interval time.Duration, task func()) error {
	_, err := s.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(task),
		gocron.WithName(name),
	)
	if err != nil {
		return fmt.Errorf("failed to register job %s: %w", name, err)
	}
	log.Printf("📅 Registered job %s (every %v)", name, interval)
	return nil
}

// Start begins running registered jobs
func (s *Scheduler) Start() {
	log.Println("⏰ Starting maintenance scheduler...")
	s.scheduler.Start()
	log.Println("✅ Maintenance scheduler started")
}

// Stop shuts the scheduler down, waiting for running jobs
func (s *Scheduler) Stop() error {
	log.Println("⏹️ Stopping maintenance scheduler...")
	return s.scheduler.Shutdown()
}
