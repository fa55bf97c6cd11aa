// SPDX-License-Identifier: MIT

package source

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/datakettle/snapsvc/internal/config"
	"github.com/datakettle/snapsvc/internal/httpx"
	"github.com/datakettle/snapsvc/internal/log"
	"github.com/datakettle/snapsvc/internal/table"
)

const (
	restMaxRetries  = 3
	restMaxPages    = 10000
	restMaxBodySize = 256 << 20 // 256 MiB per page
)

// restSource pulls a dataset from a paginated JSON endpoint.
type restSource struct {
	name         string
	url          string
	recordsField string
	pageParam    string
	tokenEnv     string
	idColumn     string
	idWidth      int
	client       *http.Client
	limiter      *rate.Limiter
}

func newRESTSource(sc config.SourceConfig) (*restSource, error) {
	if _, err := url.Parse(sc.URL); err != nil {
		return nil, fmt.Errorf("invalid url: %w", err)
	}

	var limiter *rate.Limiter
	if sc.RatePerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(sc.RatePerSec), 1)
	}

	return &restSource{
		name:         sc.Name,
		url:          sc.URL,
		recordsField: sc.RecordsField,
		pageParam:    sc.PageParam,
		tokenEnv:     sc.TokenEnv,
		idColumn:     sc.IDColumn,
		idWidth:      sc.IDWidth,
		client:       httpx.NewClient(0),
		limiter:      limiter,
	}, nil
}

func (s *restSource) Name() string { return s.name }

// Fetch pulls every page until an empty one comes back. The bearer
// token is read from the environment on each fetch, not at startup,
// so credentials loaded from a .env file after construction still
// take effect.
func (s *restSource) Fetch(ctx context.Context) (*table.Table, string, error) {
	logger := log.WithComponentFromContext(ctx, "source.rest")

	token := ""
	if s.tokenEnv != "" {
		token = os.Getenv(s.tokenEnv)
		if token == "" {
			return nil, "", fmt.Errorf("token env %s is not set", s.tokenEnv)
		}
	}

	t := table.New()
	pages := 0

	if s.pageParam == "" {
		rows, err := s.fetchPage(ctx, s.url, token)
		if err != nil {
			return nil, "", err
		}
		for _, row := range rows {
			t.AppendRow(row)
		}
		pages = 1
	} else {
		for page := 1; page <= restMaxPages; page++ {
			pageURL, err := s.pageURL(page)
			if err != nil {
				return nil, "", err
			}
			rows, err := s.fetchPage(ctx, pageURL, token)
			if err != nil {
				return nil, "", fmt.Errorf("page %d: %w", page, err)
			}
			if len(rows) == 0 {
				break
			}
			for _, row := range rows {
				t.AppendRow(row)
			}
			pages++
		}
	}

	if s.idColumn != "" {
		dropped := table.CleanIDColumn(t, s.idColumn, s.idWidth)
		if dropped > 0 {
			logger.Warn().
				Str(log.FieldDataset, s.name).
				Str("column", s.idColumn).
				Int("dropped", dropped).
				Msg("dropped rows with empty identifier")
		}
	}

	logger.Info().
		Str(log.FieldDataset, s.name).
		Int("pages", pages).
		Int(log.FieldRows, len(t.Rows)).
		Msg("rest fetch complete")

	return t, fingerprint(s.url), nil
}

func (s *restSource) pageURL(page int) (string, error) {
	u, err := url.Parse(s.url)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set(s.pageParam, strconv.Itoa(page))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// fetchPage issues one request with exponential backoff on transient
// failures. 429 and 5xx responses are retried, 4xx are not.
func (s *restSource) fetchPage(ctx context.Context, pageURL, token string) ([]table.Row, error) {
	var lastErr error
	for attempt := 0; attempt <= restMaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(attempt*attempt) * 500 * time.Millisecond
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		if s.limiter != nil {
			if err := s.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		rows, retryable, err := s.doRequest(ctx, pageURL, token)
		if err == nil {
			return rows, nil
		}
		lastErr = err
		if !retryable {
			return nil, err
		}
	}
	return nil, fmt.Errorf("after %d attempts: %w", restMaxRetries+1, lastErr)
}

func (s *restSource) doRequest(ctx context.Context, pageURL, token string) ([]table.Row, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, true, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		retryable := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		return nil, retryable, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, restMaxBodySize))
	if err != nil {
		return nil, true, fmt.Errorf("read body: %w", err)
	}

	rows, err := s.decodeRecords(body)
	if err != nil {
		return nil, false, err
	}
	return rows, false, nil
}

// decodeRecords accepts either a top-level JSON array or an object
// holding the records under the configured field.
func (s *restSource) decodeRecords(body []byte) ([]table.Row, error) {
	if s.recordsField == "" {
		var rows []table.Row
		if err := json.Unmarshal(body, &rows); err != nil {
			return nil, fmt.Errorf("decode records: %w", err)
		}
		return rows, nil
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	raw, ok := envelope[s.recordsField]
	if !ok {
		return nil, fmt.Errorf("response has no %q field", s.recordsField)
	}
	var rows []table.Row
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("decode %q: %w", s.recordsField, err)
	}
	return rows, nil
}

func fingerprint(query string) string {
	sum := sha256.Sum256([]byte(query))
	return hex.EncodeToString(sum[:])
}
