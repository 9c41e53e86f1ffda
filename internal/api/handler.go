package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/mail"
	"strconv"

	"go.uber.org/zap"

	"PulseQueue/internal/ingest"
	"PulseQueue/internal/models"
)

// JobStore persists enqueued jobs. *db.Store satisfies it.
type JobStore interface {
	InsertJob(ctx context.Context, job *models.EmailJob) error
}

// Sender delivers a job immediately, bypassing the queue. *worker.Engine
// satisfies it.
type Sender interface {
	SendNow(ctx context.Context, job *models.EmailJob) error
}

type Handler struct {
	Store  JobStore
	Sender Sender
	Log    *zap.Logger
}

// Enqueue inserts a pending job for the polling worker to pick up.
func (h *Handler) Enqueue(w http.ResponseWriter, r *http.Request) {
	var job models.EmailJob
	if err := json.NewDecoder(r.Body).Decode(&job); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if _, err := mail.ParseAddress(job.Recipient); err != nil {
		http.Error(w, "invalid recipient address", http.StatusBadRequest)
		return
	}

	job.Status = models.StatusPending

	if err := h.Store.InsertJob(r.Context(), &job); err != nil {
		h.Log.Error("enqueue failed", zap.String("recipient", job.Recipient), zap.Error(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	h.Log.Info("job enqueued",
		zap.String("job_id", job.ID.String()),
		zap.String("recipient", job.Recipient),
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]any{
		"id": job.ID,
	})
}

// SendNow renders and delivers a single email synchronously, with no queue
// row and no retry on failure.
func (h *Handler) SendNow(w http.ResponseWriter, r *http.Request) {
	var job models.EmailJob
	if err := json.NewDecoder(r.Body).Decode(&job); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if _, err := mail.ParseAddress(job.Recipient); err != nil {
		http.Error(w, "invalid recipient address", http.StatusBadRequest)
		return
	}

	if err := h.Sender.SendNow(r.Context(), &job); err != nil {
		h.Log.Error("synchronous send failed",
			zap.String("recipient", job.Recipient),
			zap.Error(err),
		)
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}

	h.Log.Info("email sent synchronously", zap.String("recipient", job.Recipient))

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status": "sent",
	})
}

// BulkEnqueue imports a CSV of recipients (Email column plus template data
// columns) and enqueues one templated job per row. The template key comes
// from the template_key query parameter.
func (h *Handler) BulkEnqueue(w http.ResponseWriter, r *http.Request) {
	templateKey := r.URL.Query().Get("template_key")

	priority := 0
	if p := r.URL.Query().Get("priority"); p != "" {
		var err error
		if priority, err = strconv.Atoi(p); err != nil {
			http.Error(w, "invalid priority", http.StatusBadRequest)
			return
		}
	}

	jobs, truncated, err := ingest.JobsFromCSV(r.Body, templateKey, priority, ingest.DefaultMaxRows)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if truncated {
		h.Log.Warn("bulk enqueue input truncated",
			zap.String("template_key", templateKey),
			zap.Int("max_rows", ingest.DefaultMaxRows),
		)
	}

	ids := make([]string, 0, len(jobs))
	for i := range jobs {
		if err := h.Store.InsertJob(r.Context(), &jobs[i]); err != nil {
			h.Log.Error("bulk enqueue failed",
				zap.String("recipient", jobs[i].Recipient),
				zap.Int("enqueued", len(ids)),
				zap.Error(err),
			)
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		ids = append(ids, jobs[i].ID.String())
	}

	h.Log.Info("bulk enqueue complete",
		zap.String("template_key", templateKey),
		zap.Int("count", len(ids)),
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]any{
		"count":     len(ids),
		"ids":       ids,
		"truncated": truncated,
	})
}
