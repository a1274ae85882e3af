package records

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/avast/retry-go/v4"
)

const (
	defaultBaseURL = "https://api.airtable.com/v0"
	pageSize       = 100

	// pendingFormula selects records that have a PDF but no extraction
	// output yet.
	pendingFormula = "AND({PDF}, NOT({Main Outcome Statement}), NOT({Findings/Outcomes}))"
	// withPDFFormula selects every record carrying a PDF attachment.
	withPDFFormula = "NOT({PDF} = '')"
)

// ClientConfig configures the Airtable client.
type ClientConfig struct {
	APIKey string
	BaseID string
	Table  string

	// PendingFormula overrides the filter used by PendingRecords.
	PendingFormula string

	Timeout    time.Duration
	MaxRetries uint
	RetryDelay time.Duration
	BaseURL    string       // Optional (tests)
	HTTPClient *http.Client // Optional (tests)
	Logger     *slog.Logger
}

// Client is a minimal Airtable REST client scoped to one table. Requests
// that fail with 429 or a server error are retried with backoff.
type Client struct {
	apiKey         string
	tableURL       string
	pendingFormula string
	maxRetries     uint
	retryDelay     time.Duration
	httpClient     *http.Client
	logger         *slog.Logger
}

// NewClient creates an Airtable client.
func NewClient(cfg ClientConfig) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.PendingFormula == "" {
		cfg.PendingFormula = pendingFormula
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Client{
		apiKey:         cfg.APIKey,
		tableURL:       fmt.Sprintf("%s/%s/%s", cfg.BaseURL, cfg.BaseID, url.PathEscape(cfg.Table)),
		pendingFormula: cfg.PendingFormula,
		maxRetries:     cfg.MaxRetries,
		retryDelay:     cfg.RetryDelay,
		httpClient:     cfg.HTTPClient,
		logger:         cfg.Logger,
	}
}

type listResponse struct {
	Records []Record `json:"records"`
	Offset  string   `json:"offset,omitempty"`
}

// PendingRecords fetches records that have a PDF and lack extraction
// output, following pagination.
func (c *Client) PendingRecords(ctx context.Context) ([]Record, error) {
	return c.list(ctx, c.pendingFormula, 0)
}

// AllRecords fetches every record of the table, following pagination.
func (c *Client) AllRecords(ctx context.Context) ([]Record, error) {
	return c.list(ctx, "", 0)
}

func (c *Client) list(ctx context.Context, formula string, maxRecords int) ([]Record, error) {
	var records []Record
	offset := ""

	for {
		params := url.Values{}
		params.Set("pageSize", strconv.Itoa(pageSize))
		if formula != "" {
			params.Set("filterByFormula", formula)
		}
		if maxRecords > 0 {
			params.Set("maxRecords", strconv.Itoa(maxRecords))
		}
		if offset != "" {
			params.Set("offset", offset)
		}

		var page listResponse
		if err := c.do(ctx, http.MethodGet, c.tableURL+"?"+params.Encode(), nil, &page); err != nil {
			return nil, err
		}
		records = append(records, page.Records...)

		if page.Offset == "" || maxRecords > 0 {
			return records, nil
		}
		offset = page.Offset
	}
}

// RecordByID fetches one record.
func (c *Client) RecordByID(ctx context.Context, id string) (Record, error) {
	var rec Record
	err := c.do(ctx, http.MethodGet, c.tableURL+"/"+url.PathEscape(id), nil, &rec)
	return rec, err
}

// RecordByField returns the first record whose field equals value, or
// false when no record matches.
func (c *Client) RecordByField(ctx context.Context, field, value string) (Record, bool, error) {
	formula := fmt.Sprintf("{%s} = '%s'", field, value)
	records, err := c.list(ctx, formula, 1)
	if err != nil {
		return Record{}, false, err
	}
	if len(records) == 0 {
		return Record{}, false, nil
	}
	return records[0], true, nil
}

// Update patches fields onto one record.
func (c *Client) Update(ctx context.Context, id string, fields map[string]any) error {
	body := map[string]any{"fields": fields}
	if err := c.do(ctx, http.MethodPatch, c.tableURL+"/"+url.PathEscape(id), body, nil); err != nil {
		return fmt.Errorf("record %s: %w", id, err)
	}

	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	c.logger.Info("record updated", "record_id", id, "fields", names)
	return nil
}

// SetProcessingStatus writes the processing status column; errMsg clears
// the error column when empty.
func (c *Client) SetProcessingStatus(ctx context.Context, id, status, errMsg string) error {
	fields := map[string]any{FieldStatus: status}
	if errMsg != "" {
		fields[FieldError] = errMsg
	} else {
		fields[FieldError] = nil
	}
	return c.Update(ctx, id, fields)
}

// ClearExtractedFields blanks every non-PDF field on every record with a
// PDF so the whole table gets reprocessed.
func (c *Client) ClearExtractedFields(ctx context.Context) (int, error) {
	records, err := c.list(ctx, withPDFFormula, 0)
	if err != nil {
		return 0, err
	}

	cleared := 0
	for _, rec := range records {
		fields := make(map[string]any, len(rec.Fields))
		for name := range rec.Fields {
			if name == FieldPDF {
				continue
			}
			fields[name] = nil
		}
		if len(fields) == 0 {
			continue
		}
		if err := c.Update(ctx, rec.ID, fields); err != nil {
			return cleared, err
		}
		cleared++
	}
	return cleared, nil
}

// do runs one request with retry on 429 and 5xx responses.
func (c *Client) do(ctx context.Context, method, rawURL string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
	}

	return retry.Do(
		func() error {
			var reader io.Reader
			if payload != nil {
				reader = bytes.NewReader(payload)
			}
			req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
			if err != nil {
				return retry.Unrecoverable(err)
			}
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
			if payload != nil {
				req.Header.Set("Content-Type", "application/json")
			}

			resp, err := c.httpClient.Do(req)
			if err != nil {
				if ctx.Err() != nil {
					return retry.Unrecoverable(ctx.Err())
				}
				return err
			}
			defer resp.Body.Close()

			if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
				return fmt.Errorf("airtable status %d", resp.StatusCode)
			}
			if resp.StatusCode >= 400 {
				text, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
				return retry.Unrecoverable(fmt.Errorf("airtable status %d: %s", resp.StatusCode, text))
			}

			if out != nil {
				if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
					return retry.Unrecoverable(fmt.Errorf("failed to decode airtable response: %w", err))
				}
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(c.maxRetries+1),
		retry.Delay(c.retryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	)
}
