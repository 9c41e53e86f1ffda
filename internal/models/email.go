package models

import (
	"time"

	"github.com/google/uuid"
)

type EmailStatus string

const (
	StatusPending    EmailStatus = "pending"
	StatusProcessing EmailStatus = "processing"
	StatusSent       EmailStatus = "sent"
	StatusFailed     EmailStatus = "failed"
)

// DefaultMaxAttempts is applied when a job is enqueued without an explicit limit.
const DefaultMaxAttempts = 3

// Attachment is a remote file fetched at delivery time.
type Attachment struct {
	URL      string `json:"url"`
	Filename string `json:"filename"`
}

// EmailJob is one queued delivery request. Rows are mutated only through the
// store's claim and outcome operations; status moves along
// pending -> processing -> {sent | pending | failed}, with sent and failed
// terminal.
type EmailJob struct {
	ID        uuid.UUID `json:"id"`
	Recipient string    `json:"recipient"`

	// Literal content; superseded by template rendering when TemplateKey is set.
	Subject  string `json:"subject"`
	HTMLBody string `json:"html_body"`
	TextBody string `json:"text_body"`

	TemplateKey  string         `json:"template_key,omitempty"`
	TemplateData map[string]any `json:"template_data,omitempty"`
	Attachments  []Attachment   `json:"attachments,omitempty"`

	Status      EmailStatus `json:"status"`
	Priority    int         `json:"priority"`
	ScheduledAt time.Time   `json:"scheduled_at"`
	Attempts    int         `json:"attempts"`
	MaxAttempts int         `json:"max_attempts"`

	ProcessingStartedAt *time.Time `json:"processing_started_at,omitempty"`
	SentAt              *time.Time `json:"sent_at,omitempty"`
	ErrorMsg            string     `json:"error_msg,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// EmailTemplate is read-only from the worker's perspective.
type EmailTemplate struct {
	TemplateKey     string `json:"template_key"`
	SubjectTemplate string `json:"subject_template"`
	BodyHTML        string `json:"body_html"`
	BodyText        string `json:"body_text,omitempty"`
}
