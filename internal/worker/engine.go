package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"PulseQueue/internal/email"
	"PulseQueue/internal/metrics"
	"PulseQueue/internal/models"
	"PulseQueue/internal/render"
)

// Store is the job/template persistence the engine drives. *db.Store
// satisfies it. Claim must be an atomic conditional update: it reports false,
// without error, when the job is no longer pending.
type Store interface {
	FetchBatch(ctx context.Context, limit int) ([]models.EmailJob, error)
	Claim(ctx context.Context, id uuid.UUID) (bool, error)
	RecordSuccess(ctx context.Context, id uuid.UUID) error
	RecordFailure(ctx context.Context, id uuid.UUID, errMsg string, status models.EmailStatus, scheduledAt time.Time) error
	GetTemplate(ctx context.Context, key string) (*models.EmailTemplate, error)
	ReleaseStale(ctx context.Context, olderThan time.Duration) (int64, error)
}

// Transport sends an assembled message. *email.Transport satisfies it.
type Transport interface {
	Send(msg email.Message) error
}

// Fetcher retrieves attachment bytes. *attachment.Fetcher satisfies it.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Engine runs the claim -> render -> fetch -> deliver -> record pipeline for
// individual jobs and owns the retry/backoff policy.
type Engine struct {
	store       Store
	transport   Transport
	fetcher     Fetcher
	backoffBase time.Duration
	logger      *zap.Logger
}

func NewEngine(store Store, transport Transport, fetcher Fetcher, backoffBase time.Duration, logger *zap.Logger) *Engine {
	return &Engine{
		store:       store,
		transport:   transport,
		fetcher:     fetcher,
		backoffBase: backoffBase,
		logger:      logger,
	}
}

// maxBackoffShift bounds the doubling so the product cannot overflow into a
// negative duration; 2^20 backoff periods is already years out for any
// realistic base.
const maxBackoffShift = 20

// Backoff returns the delay before a job that has now failed `attempts`
// times becomes eligible again: 2^attempts * base, unbounded up to the
// overflow guard.
func (e *Engine) Backoff(attempts int) time.Duration {
	if attempts > maxBackoffShift {
		attempts = maxBackoffShift
	}
	return time.Duration(1<<uint(attempts)) * e.backoffBase
}

// ProcessJob handles one fetched job end to end. A lost claim is a silent
// skip: another worker won the race and owns the attempt.
func (e *Engine) ProcessJob(ctx context.Context, job models.EmailJob) {
	claimed, err := e.store.Claim(ctx, job.ID)
	if err != nil {
		e.logger.Error("claim failed",
			zap.String("job_id", job.ID.String()),
			zap.Error(err),
		)
		return
	}
	if !claimed {
		metrics.ClaimsLost.Inc()
		e.logger.Debug("claim lost to concurrent worker",
			zap.String("job_id", job.ID.String()),
		)
		return
	}

	// The attempt is owned now. Shutdown cancellation is observed at cycle
	// and group boundaries only; it must not abort rendering, the send, or
	// the outcome record of a claimed job, or the job strands in processing.
	ctx = context.WithoutCancel(ctx)

	msg, err := e.BuildMessage(ctx, &job)
	if err == nil {
		err = e.transport.Send(msg)
	}
	if err != nil {
		e.recordFailure(ctx, &job, err)
		return
	}

	if err := e.store.RecordSuccess(ctx, job.ID); err != nil {
		e.logger.Error("failed to record success",
			zap.String("job_id", job.ID.String()),
			zap.Error(err),
		)
		return
	}

	metrics.EmailsSent.Inc()
	e.logger.Info("email sent",
		zap.String("job_id", job.ID.String()),
		zap.String("recipient", job.Recipient),
		zap.Int("attempts", job.Attempts),
	)
}

// SendNow delivers a job immediately, bypassing the queue: nothing is
// persisted and no attempt is recorded. Used by the synchronous API path.
func (e *Engine) SendNow(ctx context.Context, job *models.EmailJob) error {
	msg, err := e.BuildMessage(ctx, job)
	if err != nil {
		return err
	}
	return e.transport.Send(msg)
}

// BuildMessage resolves a job into a sendable message: template rendering
// when a template key is set, then best-effort attachment fetching.
func (e *Engine) BuildMessage(ctx context.Context, job *models.EmailJob) (email.Message, error) {
	subject, htmlBody, textBody := job.Subject, job.HTMLBody, job.TextBody

	if job.TemplateKey != "" {
		tmpl, err := e.store.GetTemplate(ctx, job.TemplateKey)
		if err != nil {
			return email.Message{}, fmt.Errorf("template %q: %w", job.TemplateKey, err)
		}

		subject = render.Render(tmpl.SubjectTemplate, job.TemplateData)
		htmlBody = render.Render(tmpl.BodyHTML, job.TemplateData)
		textBody = ""
		if tmpl.BodyText != "" {
			textBody = render.Render(tmpl.BodyText, job.TemplateData)
		}
	}

	return email.Message{
		To:          job.Recipient,
		Subject:     subject,
		HTMLBody:    htmlBody,
		TextBody:    textBody,
		Attachments: e.fetchAttachments(ctx, job),
	}, nil
}

// fetchAttachments downloads each attachment independently. A failed fetch
// drops that attachment with a warning; the job is still delivered.
func (e *Engine) fetchAttachments(ctx context.Context, job *models.EmailJob) []email.Attachment {
	if len(job.Attachments) == 0 {
		return nil
	}

	fetched := make([]email.Attachment, 0, len(job.Attachments))
	for _, att := range job.Attachments {
		data, err := e.fetcher.Fetch(ctx, att.URL)
		if err != nil {
			metrics.AttachmentsDropped.Inc()
			e.logger.Warn("dropping attachment",
				zap.String("job_id", job.ID.String()),
				zap.String("url", att.URL),
				zap.Error(err),
			)
			continue
		}
		fetched = append(fetched, email.Attachment{Filename: att.Filename, Data: data})
	}
	return fetched
}

// recordFailure applies the failure outcome: one more attempt spent, then
// either a backoff reschedule or the failed terminal state once the attempt
// budget is gone. A terminal failure keeps scheduled_at unchanged.
func (e *Engine) recordFailure(ctx context.Context, job *models.EmailJob, cause error) {
	attempts := job.Attempts + 1

	status := models.StatusPending
	scheduledAt := job.ScheduledAt
	if attempts >= job.MaxAttempts {
		status = models.StatusFailed
	} else {
		scheduledAt = time.Now().Add(e.Backoff(attempts))
	}

	if err := e.store.RecordFailure(ctx, job.ID, cause.Error(), status, scheduledAt); err != nil {
		e.logger.Error("failed to record failure",
			zap.String("job_id", job.ID.String()),
			zap.Error(err),
		)
		return
	}

	if status == models.StatusFailed {
		metrics.EmailsFailed.Inc()
		e.logger.Error("job permanently failed",
			zap.String("job_id", job.ID.String()),
			zap.String("recipient", job.Recipient),
			zap.Int("attempts", attempts),
			zap.Error(cause),
		)
		return
	}

	metrics.RetriesScheduled.Inc()
	e.logger.Warn("job rescheduled",
		zap.String("job_id", job.ID.String()),
		zap.String("recipient", job.Recipient),
		zap.Int("attempts", attempts),
		zap.Time("next_attempt", scheduledAt),
		zap.Error(cause),
	)
}
