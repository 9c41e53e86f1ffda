package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"PulseQueue/internal/models"
)

// ErrTemplateNotFound is returned by GetTemplate for an unknown template key.
var ErrTemplateNotFound = errors.New("email template not found")

type Store struct {
	Pool *pgxpool.Pool
}

func New(ctx context.Context, conn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, conn)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Store{Pool: pool}, nil
}

func (s *Store) Close() {
	s.Pool.Close()
}

const jobColumns = `id, recipient, subject, html_body, text_body,
	 template_key, template_data, attachments,
	 status, priority, scheduled_at, attempts, max_attempts,
	 processing_started_at, sent_at, error_msg, created_at, updated_at`

// FetchBatch returns due pending jobs ordered by (priority, scheduled_at),
// bounded by limit. Selection order is not a completion-order guarantee.
func (s *Store) FetchBatch(ctx context.Context, limit int) ([]models.EmailJob, error) {
	rows, err := s.Pool.Query(ctx,
		`SELECT `+jobColumns+`
		 FROM email_jobs
		 WHERE status=$1 AND scheduled_at <= now()
		 ORDER BY priority ASC, scheduled_at ASC
		 LIMIT $2`,
		models.StatusPending,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("fetch batch: %w", err)
	}
	defer rows.Close()

	var jobs []models.EmailJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, job)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("fetch batch: %w", err)
	}
	return jobs, nil
}

// Claim attempts the conditional pending -> processing transition. It reports
// false without error when another worker already claimed the job; the WHERE
// clause on status is what makes concurrent claims safe.
func (s *Store) Claim(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := s.Pool.Exec(ctx,
		`UPDATE email_jobs
		 SET status=$1,
		     processing_started_at=now(),
		     updated_at=now()
		 WHERE id=$2 AND status=$3`,
		models.StatusProcessing,
		id,
		models.StatusPending,
	)
	if err != nil {
		return false, fmt.Errorf("claim job: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}

// RecordSuccess moves a job to its sent terminal state.
func (s *Store) RecordSuccess(ctx context.Context, id uuid.UUID) error {
	_, err := s.Pool.Exec(ctx,
		`UPDATE email_jobs
		 SET status=$1,
		     sent_at=now(),
		     error_msg=NULL,
		     processing_started_at=NULL,
		     updated_at=now()
		 WHERE id=$2`,
		models.StatusSent,
		id,
	)
	if err != nil {
		return fmt.Errorf("record success: %w", err)
	}
	return nil
}

// RecordFailure increments the attempt counter and applies the outcome the
// engine decided: pending with a new scheduled_at for a retry, or failed with
// scheduled_at left as it was.
func (s *Store) RecordFailure(ctx context.Context, id uuid.UUID, errMsg string, status models.EmailStatus, scheduledAt time.Time) error {
	_, err := s.Pool.Exec(ctx,
		`UPDATE email_jobs
		 SET status=$1,
		     attempts=attempts+1,
		     error_msg=$2,
		     scheduled_at=$3,
		     processing_started_at=NULL,
		     updated_at=now()
		 WHERE id=$4`,
		status,
		errMsg,
		scheduledAt,
		id,
	)
	if err != nil {
		return fmt.Errorf("record failure: %w", err)
	}
	return nil
}

func (s *Store) GetTemplate(ctx context.Context, key string) (*models.EmailTemplate, error) {
	var (
		tmpl     models.EmailTemplate
		bodyText *string
	)

	err := s.Pool.QueryRow(ctx,
		`SELECT template_key, subject_template, body_html, body_text
		 FROM email_templates
		 WHERE template_key=$1`,
		key,
	).Scan(&tmpl.TemplateKey, &tmpl.SubjectTemplate, &tmpl.BodyHTML, &bodyText)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrTemplateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get template: %w", err)
	}

	if bodyText != nil {
		tmpl.BodyText = *bodyText
	}
	return &tmpl, nil
}

// InsertJob persists a new pending job, filling in id, scheduling and attempt
// defaults when the caller left them zero.
func (s *Store) InsertJob(ctx context.Context, job *models.EmailJob) error {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.Status == "" {
		job.Status = models.StatusPending
	}
	if job.MaxAttempts <= 0 {
		job.MaxAttempts = models.DefaultMaxAttempts
	}
	if job.ScheduledAt.IsZero() {
		job.ScheduledAt = time.Now()
	}

	dataJSON, err := json.Marshal(job.TemplateData)
	if err != nil {
		return fmt.Errorf("encode template data: %w", err)
	}

	attJSON, err := json.Marshal(job.Attachments)
	if err != nil {
		return fmt.Errorf("encode attachments: %w", err)
	}

	var templateKey *string
	if job.TemplateKey != "" {
		templateKey = &job.TemplateKey
	}

	_, err = s.Pool.Exec(ctx,
		`INSERT INTO email_jobs
		 (id, recipient, subject, html_body, text_body,
		  template_key, template_data, attachments,
		  status, priority, scheduled_at, attempts, max_attempts,
		  created_at, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,0,$12,now(),now())`,
		job.ID,
		job.Recipient,
		job.Subject,
		job.HTMLBody,
		job.TextBody,
		templateKey,
		dataJSON,
		attJSON,
		job.Status,
		job.Priority,
		job.ScheduledAt,
		job.MaxAttempts,
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// ReleaseStale requeues processing jobs whose claim is older than the cutoff,
// covering workers that crashed mid-attempt. The attempt counter is not
// touched: delivery may or may not have happened, and at-least-once is the
// accepted stance.
func (s *Store) ReleaseStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)

	tag, err := s.Pool.Exec(ctx,
		`UPDATE email_jobs
		 SET status=$1,
		     processing_started_at=NULL,
		     updated_at=now()
		 WHERE status=$2 AND processing_started_at < $3`,
		models.StatusPending,
		models.StatusProcessing,
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("release stale jobs: %w", err)
	}

	return tag.RowsAffected(), nil
}

func scanJob(row pgx.Row) (models.EmailJob, error) {
	var (
		job          models.EmailJob
		templateKey  *string
		templateData []byte
		attachments  []byte
		errorMsg     *string
	)

	err := row.Scan(
		&job.ID, &job.Recipient, &job.Subject, &job.HTMLBody, &job.TextBody,
		&templateKey, &templateData, &attachments,
		&job.Status, &job.Priority, &job.ScheduledAt, &job.Attempts, &job.MaxAttempts,
		&job.ProcessingStartedAt, &job.SentAt, &errorMsg, &job.CreatedAt, &job.UpdatedAt,
	)
	if err != nil {
		return models.EmailJob{}, err
	}

	if templateKey != nil {
		job.TemplateKey = *templateKey
	}
	if errorMsg != nil {
		job.ErrorMsg = *errorMsg
	}
	if len(templateData) > 0 {
		if err := json.Unmarshal(templateData, &job.TemplateData); err != nil {
			return models.EmailJob{}, fmt.Errorf("decode template data: %w", err)
		}
	}
	if len(attachments) > 0 {
		if err := json.Unmarshal(attachments, &job.Attachments); err != nil {
			return models.EmailJob{}, fmt.Errorf("decode attachments: %w", err)
		}
	}

	return job, nil
}
