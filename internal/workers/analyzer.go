package workers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kevinmaint/maint-api/internal/database"
	"github.com/kevinmaint/maint-api/internal/metrics"
	"github.com/kevinmaint/maint-api/internal/models"
	"github.com/kevinmaint/maint-api/internal/queue"
	"github.com/kevinmaint/maint-api/internal/request"
	"github.com/kevinmaint/maint-api/internal/services/ai"
)

// ErrMalformedJob marks a job that can never succeed as enqueued
var ErrMalformedJob = errors.New("malformed job")

// ThreadAnalyzer is the part of the thread service the worker drives
type ThreadAnalyzer interface {
	AnalyzeMessage(ctx context.Context, messageID uuid.UUID) (*models.AIProposal, error)
	RecomputeSummary(ctx context.Context, issueID uuid.UUID) (*models.SmartSummary, error)
}

// ProposalAnalyzer processes proposal_analysis and summary_recompute jobs
type ProposalAnalyzer struct {
	threads  ThreadAnalyzer
	jobQueue queue.Enqueuer // for re-enqueueing jobs with delays
	logger   *zap.Logger
}

// NewProposalAnalyzer creates a new proposal analyzer
func NewProposalAnalyzer(threads ThreadAnalyzer, jobQueue queue.Enqueuer, logger *zap.Logger) *ProposalAnalyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProposalAnalyzer{
		threads:  threads,
		jobQueue: jobQueue,
		logger:   logger,
	}
}

// ProcessProposalJob runs the proposal engine for the job's message
func (a *ProposalAnalyzer) ProcessProposalJob(ctx context.Context, job *queue.Job) error {
	if job.MessageID == nil {
		return fmt.Errorf("%w: message_id is required for proposal analysis", ErrMalformedJob)
	}

	proposal, err := a.threads.AnalyzeMessage(ctx, *job.MessageID)
	if err != nil {
		return err
	}

	if proposal == nil {
		a.logger.Debug("proposal_not_generated",
			zap.String("job_id", job.ID.String()),
			zap.String("message_id", job.MessageID.String()),
		)
		return nil
	}
	a.logger.Info("proposal_job_completed",
		zap.String("job_id", job.ID.String()),
		zap.String("issue_id", job.IssueID.String()),
		zap.String("message_id", job.MessageID.String()),
		zap.Float64("confidence", proposal.Confidence),
	)
	return nil
}

// ProcessJob processes a job based on its type
func (a *ProposalAnalyzer) ProcessJob(ctx context.Context, msg queue.MessageInterface) error {
	job := msg.GetJob()
	start := time.Now()
	// Downstream logs correlate on the job ID the way API logs use X-Request-ID
	ctx = request.WithRequestID(ctx, job.ID.String())

	if !job.ShouldProcess() {
		// Consume already filters these; anything that slips through goes back
		if nackErr := msg.Nack(true); nackErr != nil {
			a.logger.Warn("job_nack_failed", zap.String("job_id", job.ID.String()), zap.Error(nackErr))
		}
		return nil
	}

	var err error
	switch job.Type {
	case queue.JobTypeProposalAnalysis:
		err = a.ProcessProposalJob(ctx, job)
	case queue.JobTypeSummaryRecompute:
		_, err = a.threads.RecomputeSummary(ctx, job.IssueID)
	default:
		if nackErr := msg.Nack(false); nackErr != nil {
			a.logger.Warn("job_nack_failed", zap.String("job_id", job.ID.String()), zap.Error(nackErr))
		}
		metrics.WorkerJobsFailed.WithLabelValues(string(job.Type), "unknown_type").Inc()
		return fmt.Errorf("unknown job type: %s", job.Type)
	}

	metrics.WorkerJobDuration.WithLabelValues(string(job.Type)).Observe(time.Since(start).Seconds())
	if err != nil {
		return a.handleJobError(ctx, msg, job, err)
	}

	metrics.WorkerJobsCompleted.WithLabelValues(string(job.Type)).Inc()
	if ackErr := msg.Ack(); ackErr != nil {
		return fmt.Errorf("failed to ack job: %w", ackErr)
	}
	return nil
}

// handleJobError decides between a delayed retry, an immediate requeue and the DLQ
func (a *ProposalAnalyzer) handleJobError(ctx context.Context, msg queue.MessageInterface, job *queue.Job, err error) error {
	jobType := string(job.Type)
	fields := []zap.Field{
		zap.String("job_id", job.ID.String()),
		zap.String("job_type", jobType),
		zap.Int("retry_count", job.RetryCount),
		zap.Error(err),
	}

	// Missing records and permanent API errors fail the same way on every attempt
	if errors.Is(err, ErrMalformedJob) || errors.Is(err, database.ErrNotFound) || (ai.IsPermanentError(err) && !ai.IsQuotaError(err)) {
		a.logger.Error("job_failed_permanently", fields...)
		metrics.WorkerJobsFailed.WithLabelValues(jobType, "permanent").Inc()
		if nackErr := msg.Nack(false); nackErr != nil {
			a.logger.Warn("job_nack_failed", zap.String("job_id", job.ID.String()), zap.Error(nackErr))
		}
		return fmt.Errorf("job failed permanently: %w", err)
	}

	reason := "error"
	switch {
	case ai.IsQuotaError(err):
		reason = "quota_exceeded"
	case ai.IsRateLimitError(err):
		reason = "rate_limited"
	}
	metrics.WorkerJobsFailed.WithLabelValues(jobType, reason).Inc()

	if job.CanRetry() {
		if a.jobQueue == nil {
			// Without a publisher the redelivery carries the original retry count
			a.logger.Warn("job_failed_will_retry", fields...)
			if nackErr := msg.Nack(true); nackErr != nil {
				a.logger.Warn("job_nack_failed", zap.String("job_id", job.ID.String()), zap.Error(nackErr))
			}
			return fmt.Errorf("job failed (will retry): %w", err)
		}

		delay := ai.GetRetryDelay(err, job.RetryCount)
		if enqueueErr := a.jobQueue.Enqueue(ctx, job.RetryAfter(delay)); enqueueErr != nil {
			a.logger.Error("job_reenqueue_failed", append(fields, zap.NamedError("enqueue_error", enqueueErr))...)
			if nackErr := msg.Nack(true); nackErr != nil {
				a.logger.Warn("job_nack_failed", zap.String("job_id", job.ID.String()), zap.Error(nackErr))
			}
			return fmt.Errorf("%s, failed to re-enqueue: %w", reason, enqueueErr)
		}
		if ackErr := msg.Ack(); ackErr != nil {
			a.logger.Warn("job_ack_failed", zap.String("job_id", job.ID.String()), zap.Error(ackErr))
		}
		a.logger.Warn("job_rescheduled", append(fields, zap.Duration("delay", delay), zap.String("reason", reason))...)
		return nil
	}

	a.logger.Error("job_sent_to_dlq", fields...)
	if nackErr := msg.Nack(false); nackErr != nil {
		a.logger.Warn("job_nack_failed", zap.String("job_id", job.ID.String()), zap.Error(nackErr))
	}
	return fmt.Errorf("job failed (max retries): %w", err)
}
