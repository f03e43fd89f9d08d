// -----------------------------------------------------------------------
// Scheduler - cron-driven job submission
// -----------------------------------------------------------------------

package scheduler

import (
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/jobs"
	"github.com/ternarybob/colligo/internal/models"
)

// Service submits recurring crawl jobs on the configured cron schedules.
type Service struct {
	cron   *cron.Cron
	queue  *jobs.Queue
	config *common.SchedulerConfig
	logger arbor.ILogger
}

func NewService(queue *jobs.Queue, config *common.SchedulerConfig, logger arbor.ILogger) *Service {
	return &Service{
		cron:   cron.New(),
		queue:  queue,
		config: config,
		logger: logger,
	}
}

// Start registers all configured entries and starts the cron runner. A bad
// schedule expression fails startup rather than being skipped silently.
func (s *Service) Start() error {
	if !s.config.Enabled {
		s.logger.Info().Msg("Scheduler disabled")
		return nil
	}

	for _, entry := range s.config.Entries {
		entry := entry
		_, err := s.cron.AddFunc(entry.Schedule, func() {
			s.submit(entry)
		})
		if err != nil {
			return fmt.Errorf("invalid schedule %q for datasource %s: %w", entry.Schedule, entry.Datasource, err)
		}
		s.logger.Info().
			Str("schedule", entry.Schedule).
			Str("datasource", entry.Datasource).
			Msg("Schedule registered")
	}

	s.cron.Start()
	return nil
}

// Stop halts the cron runner and waits for in-flight submissions.
func (s *Service) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info().Msg("Scheduler stopped")
}

func (s *Service) submit(entry common.ScheduleEntry) {
	req := &models.JobRequest{
		Datasource:   entry.Datasource,
		ConnectionID: entry.ConnectionID,
	}
	job, err := s.queue.CreateAndStartJob(req)
	if err != nil {
		s.logger.Warn().Err(err).
			Str("datasource", entry.Datasource).
			Msg("Scheduled job submission failed")
		return
	}
	s.logger.Info().
		Str("job_id", job.ID).
		Str("datasource", entry.Datasource).
		Msg("Scheduled job submitted")
}
