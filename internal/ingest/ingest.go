package ingest

import (
	"encoding/csv"
	"errors"
	"io"
	"strings"

	"PulseQueue/internal/models"
)

// DefaultMaxRows bounds how many recipients one CSV import may enqueue.
const DefaultMaxRows = 1000

// RecipientRow is a single recipient extracted from a CSV. Email is taken
// from the "Email" column (case-insensitive); all other columns become
// template data.
type RecipientRow struct {
	Email  string
	Fields map[string]string
}

// ParseRecipientRows parses a CSV with a header row containing an "Email"
// column. Malformed rows and rows with a blank email are skipped. maxRows
// limits data rows; values <= 0 fall back to DefaultMaxRows. The truncated
// result reports that input remained beyond the row limit.
func ParseRecipientRows(r io.Reader, maxRows int) (rows []RecipientRow, truncated bool, err error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	headers, err := reader.Read()
	if err != nil {
		return nil, false, err
	}

	emailIdx := -1
	normalized := make([]string, len(headers))
	for i, h := range headers {
		h = strings.TrimSpace(h)
		normalized[i] = h
		if strings.EqualFold(h, "email") {
			emailIdx = i
		}
	}
	if emailIdx == -1 {
		return nil, false, errors.New("csv must contain an Email column")
	}

	if maxRows <= 0 {
		maxRows = DefaultMaxRows
	}

	rows = make([]RecipientRow, 0)
	for len(rows) < maxRows {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, false, err
		}
		if len(record) != len(headers) {
			continue // skip malformed row
		}

		email := strings.TrimSpace(record[emailIdx])
		if email == "" {
			continue
		}

		fields := make(map[string]string, len(headers)-1)
		for i := range record {
			if i == emailIdx || normalized[i] == "" {
				continue
			}
			fields[normalized[i]] = strings.TrimSpace(record[i])
		}

		rows = append(rows, RecipientRow{Email: email, Fields: fields})
	}

	if len(rows) == 0 {
		return nil, false, errors.New("csv must contain at least one data row")
	}

	if len(rows) == maxRows {
		// Probe for input past the limit so callers can report the cut.
		if _, err := reader.Read(); err != io.EOF {
			truncated = true
		}
	}

	return rows, truncated, nil
}

// JobsFromCSV builds one pending job per recipient row, all sharing the
// given template key and priority. Row fields become the job's template data.
// truncated reports that the CSV held more rows than maxRows allowed.
func JobsFromCSV(r io.Reader, templateKey string, priority, maxRows int) (jobs []models.EmailJob, truncated bool, err error) {
	if templateKey == "" {
		return nil, false, errors.New("template key is required for bulk enqueue")
	}

	rows, truncated, err := ParseRecipientRows(r, maxRows)
	if err != nil {
		return nil, false, err
	}

	jobs = make([]models.EmailJob, 0, len(rows))
	for _, row := range rows {
		data := make(map[string]any, len(row.Fields))
		for k, v := range row.Fields {
			data[k] = v
		}

		jobs = append(jobs, models.EmailJob{
			Recipient:    row.Email,
			TemplateKey:  templateKey,
			TemplateData: data,
			Status:       models.StatusPending,
			Priority:     priority,
		})
	}

	return jobs, truncated, nil
}
