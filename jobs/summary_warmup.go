package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/tiendafix/tiendafix/internal/jobs"
	"github.com/tiendafix/tiendafix/internal/register"
)

// SummaryWarmupJob pre-populates the daily summary cache so the first
// dashboard request after a quiet period does not pay the aggregation cost.
type SummaryWarmupJob struct {
	Register *register.Service
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
}

// NewSummaryWarmupJob wires dependencies for the warmup handler.
func NewSummaryWarmupJob(registerSvc *register.Service, logger *slog.Logger, metrics *jobmetrics.Metrics) *SummaryWarmupJob {
	return &SummaryWarmupJob{Register: registerSvc, Logger: logger, Metrics: metrics}
}

// Handle processes summary warmup tasks.
func (j *SummaryWarmupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Register == nil {
		return errors.New("summary warmup: handler not configured")
	}
	var payload SummaryWarmupPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	var date time.Time
	if payload.Date != "" {
		parsed, err := time.Parse("2006-01-02", payload.Date)
		if err != nil {
			return asynq.SkipRetry
		}
		date = parsed
	}

	tracker := j.Metrics.Track(TaskSummaryWarmup)
	summary, err := j.Register.DailySummary(ctx, date)
	if err = tracker.End(err); err != nil {
		return err
	}
	if j.Logger != nil {
		j.Logger.Info("summary warmup complete",
			slog.String("business_date", summary.BusinessDate.Format("2006-01-02")),
			slog.String("sales_total", summary.SalesTotal.String()))
	}
	return nil
}
