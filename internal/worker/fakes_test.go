package worker

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"PulseQueue/internal/db"
	"PulseQueue/internal/email"
	"PulseQueue/internal/models"
)

// fakeStore is an in-memory Store with the same compare-and-swap claim
// semantics the SQL gateway enforces. Like pgx, its operations abort
// immediately when the context is already done.
type fakeStore struct {
	mu        sync.Mutex
	jobs      map[uuid.UUID]*models.EmailJob
	templates map[string]*models.EmailTemplate

	fetchErr error

	claimOrder []uuid.UUID
	successes  []uuid.UUID
	failures   []recordedFailure
	released   int
}

type recordedFailure struct {
	id          uuid.UUID
	errMsg      string
	status      models.EmailStatus
	scheduledAt time.Time
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		jobs:      make(map[uuid.UUID]*models.EmailJob),
		templates: make(map[string]*models.EmailTemplate),
	}
}

func (s *fakeStore) addJob(job models.EmailJob) models.EmailJob {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.Status == "" {
		job.Status = models.StatusPending
	}
	if job.MaxAttempts == 0 {
		job.MaxAttempts = models.DefaultMaxAttempts
	}
	if job.ScheduledAt.IsZero() {
		job.ScheduledAt = time.Now().Add(-time.Minute)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	copied := job
	s.jobs[job.ID] = &copied
	return job
}

func (s *fakeStore) job(id uuid.UUID) models.EmailJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.jobs[id]
}

func (s *fakeStore) FetchBatch(ctx context.Context, limit int) ([]models.EmailJob, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.fetchErr != nil {
		return nil, s.fetchErr
	}

	now := time.Now()
	var batch []models.EmailJob
	for _, job := range s.jobs {
		if job.Status == models.StatusPending && !job.ScheduledAt.After(now) {
			batch = append(batch, *job)
		}
	}

	sort.Slice(batch, func(i, j int) bool {
		if batch[i].Priority != batch[j].Priority {
			return batch[i].Priority < batch[j].Priority
		}
		return batch[i].ScheduledAt.Before(batch[j].ScheduledAt)
	})

	if len(batch) > limit {
		batch = batch[:limit]
	}
	return batch, nil
}

func (s *fakeStore) Claim(ctx context.Context, id uuid.UUID) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok || job.Status != models.StatusPending {
		return false, nil
	}

	job.Status = models.StatusProcessing
	now := time.Now()
	job.ProcessingStartedAt = &now
	s.claimOrder = append(s.claimOrder, id)
	return true, nil
}

func (s *fakeStore) RecordSuccess(ctx context.Context, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	job := s.jobs[id]
	job.Status = models.StatusSent
	now := time.Now()
	job.SentAt = &now
	job.ErrorMsg = ""
	job.ProcessingStartedAt = nil
	s.successes = append(s.successes, id)
	return nil
}

func (s *fakeStore) RecordFailure(ctx context.Context, id uuid.UUID, errMsg string, status models.EmailStatus, scheduledAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	job := s.jobs[id]
	job.Attempts++
	job.Status = status
	job.ErrorMsg = errMsg
	job.ScheduledAt = scheduledAt
	job.ProcessingStartedAt = nil
	s.failures = append(s.failures, recordedFailure{
		id:          id,
		errMsg:      errMsg,
		status:      status,
		scheduledAt: scheduledAt,
	})
	return nil
}

func (s *fakeStore) GetTemplate(ctx context.Context, key string) (*models.EmailTemplate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmpl, ok := s.templates[key]
	if !ok {
		return nil, db.ErrTemplateNotFound
	}
	return tmpl, nil
}

func (s *fakeStore) ReleaseStale(_ context.Context, olderThan time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-olderThan)
	var released int64
	for _, job := range s.jobs {
		if job.Status == models.StatusProcessing && job.ProcessingStartedAt != nil && job.ProcessingStartedAt.Before(cutoff) {
			job.Status = models.StatusPending
			job.ProcessingStartedAt = nil
			released++
		}
	}
	s.released += int(released)
	return released, nil
}

type fakeTransport struct {
	mu     sync.Mutex
	sent   []email.Message
	err    error
	onSend func()
}

func (t *fakeTransport) Send(msg email.Message) error {
	if t.onSend != nil {
		t.onSend()
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.err != nil {
		return t.err
	}
	t.sent = append(t.sent, msg)
	return nil
}

func (t *fakeTransport) messages() []email.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]email.Message, len(t.sent))
	copy(out, t.sent)
	return out
}

type fakeFetcher struct {
	data map[string][]byte
	errs map[string]error
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) ([]byte, error) {
	if err, ok := f.errs[url]; ok {
		return nil, err
	}
	if data, ok := f.data[url]; ok {
		return data, nil
	}
	return nil, &fetchMiss{url: url}
}

type fetchMiss struct{ url string }

func (e *fetchMiss) Error() string { return "no fixture for " + e.url }
