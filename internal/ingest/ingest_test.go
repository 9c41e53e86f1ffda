package ingest

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PulseQueue/internal/models"
)

func TestParseRecipientRows(t *testing.T) {
	csv := "Email,Name,Plan\nalice@example.com,Alice,pro\nbob@example.com,Bob,free\n"

	rows, truncated, err := ParseRecipientRows(strings.NewReader(csv), 0)
	require.NoError(t, err)
	assert.False(t, truncated)
	require.Len(t, rows, 2)

	assert.Equal(t, "alice@example.com", rows[0].Email)
	assert.Equal(t, map[string]string{"Name": "Alice", "Plan": "pro"}, rows[0].Fields)
	assert.Equal(t, "bob@example.com", rows[1].Email)
}

func TestParseRecipientRowsHeaderCaseInsensitive(t *testing.T) {
	csv := "name,EMAIL\nAlice,alice@example.com\n"

	rows, _, err := ParseRecipientRows(strings.NewReader(csv), 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "alice@example.com", rows[0].Email)
}

func TestParseRecipientRowsMissingEmailColumn(t *testing.T) {
	csv := "Name,Plan\nAlice,pro\n"

	_, _, err := ParseRecipientRows(strings.NewReader(csv), 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Email column")
}

func TestParseRecipientRowsSkipsBlankEmails(t *testing.T) {
	csv := "Email,Name\n,NoAddress\nbob@example.com,Bob\n"

	rows, _, err := ParseRecipientRows(strings.NewReader(csv), 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "bob@example.com", rows[0].Email)
}

func TestParseRecipientRowsHonorsMaxRows(t *testing.T) {
	csv := "Email\na@example.com\nb@example.com\nc@example.com\n"

	rows, truncated, err := ParseRecipientRows(strings.NewReader(csv), 2)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
	assert.True(t, truncated, "rows beyond the limit must be reported")
}

func TestParseRecipientRowsNoDataRows(t *testing.T) {
	_, _, err := ParseRecipientRows(strings.NewReader("Email,Name\n"), 0)
	require.Error(t, err)
}

func TestJobsFromCSV(t *testing.T) {
	csv := "Email,Name\nalice@example.com,Alice\n"

	jobs, truncated, err := JobsFromCSV(strings.NewReader(csv), "welcome", 2, 0)
	require.NoError(t, err)
	assert.False(t, truncated)
	require.Len(t, jobs, 1)

	job := jobs[0]
	assert.Equal(t, "alice@example.com", job.Recipient)
	assert.Equal(t, "welcome", job.TemplateKey)
	assert.Equal(t, models.StatusPending, job.Status)
	assert.Equal(t, 2, job.Priority)
	assert.Equal(t, map[string]any{"Name": "Alice"}, job.TemplateData)
}

func TestJobsFromCSVRequiresTemplateKey(t *testing.T) {
	_, _, err := JobsFromCSV(strings.NewReader("Email\na@example.com\n"), "", 0, 0)
	require.Error(t, err)
}

func TestParseRecipientRowsExactLimitNotTruncated(t *testing.T) {
	csv := "Email\na@example.com\nb@example.com\n"

	rows, truncated, err := ParseRecipientRows(strings.NewReader(csv), 2)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
	assert.False(t, truncated)
}
