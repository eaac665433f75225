package scheduler

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Job is a maintenance task run at a fixed interval
type Job struct {
	Name     string
	Interval time.Duration

	// Also run once when the scheduler starts
	RunAtStartup bool

	Run func(ctx context.Context) error
}

// Scheduler runs jobs periodically. Jobs never overlap: a tick that comes
// while another job is running waits for it.
type Scheduler struct {
	jobs     []Job
	logger   *logrus.Logger
	stopChan chan struct{}
	wg       sync.WaitGroup
	jobMutex sync.Mutex
	cancel   context.CancelFunc
	once     sync.Once
}

// NewScheduler creates a new scheduler
func NewScheduler(logger *logrus.Logger, jobs ...Job) *Scheduler {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
		logger.SetLevel(logrus.InfoLevel)
	}

	return &Scheduler{
		jobs:     jobs,
		logger:   logger,
		stopChan: make(chan struct{}),
	}
}

// Start begins the scheduled tasks. ctx bounds every job run.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)

	for _, job := range s.jobs {
		if job.Interval <= 0 && !job.RunAtStartup {
			continue
		}
		s.wg.Add(1)
		go s.runJob(ctx, job)
	}
}

func (s *Scheduler) runJob(ctx context.Context, job Job) {
	defer s.wg.Done()

	if job.RunAtStartup {
		s.execute(ctx, job)
	}
	if job.Interval <= 0 {
		return
	}

	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.execute(ctx, job)
		}
	}
}

func (s *Scheduler) execute(ctx context.Context, job Job) {
	s.jobMutex.Lock()
	defer s.jobMutex.Unlock()

	if ctx.Err() != nil {
		return
	}

	start := time.Now()
	log := s.logger.WithField("job", job.Name)
	log.Info("Starting scheduled job")

	if err := job.Run(ctx); err != nil {
		log.WithError(err).Error("Scheduled job failed")
		return
	}
	log.WithField("duration_ms", time.Since(start).Milliseconds()).Info("Scheduled job completed")
}

// Stop gracefully stops the scheduler and waits for running jobs
func (s *Scheduler) Stop() {
	s.once.Do(func() {
		close(s.stopChan)
		if s.cancel != nil {
			s.cancel()
		}
	})
	s.wg.Wait()
}
