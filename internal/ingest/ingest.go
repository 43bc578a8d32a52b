package ingest

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/samber/lo"
)

var ErrEmpty = errors.New("CSV is empty")

// Fetcher downloads a CSV document over HTTP and returns its rows keyed by header.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]map[string]string, error)
}

type HTTPFetcher struct {
	Client   *http.Client
	MaxBytes int64
}

func NewHTTPFetcher(timeout time.Duration, maxBytes int64) HTTPFetcher {
	return HTTPFetcher{Client: &http.Client{Timeout: timeout}, MaxBytes: maxBytes}
}

func (f HTTPFetcher) Fetch(ctx context.Context, url string) ([]map[string]string, error) {
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("Failed to download CSV: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("Failed to download CSV: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("Failed to download CSV: status %d", resp.StatusCode)
	}
	var body io.Reader = resp.Body
	if f.MaxBytes > 0 {
		body = io.LimitReader(resp.Body, f.MaxBytes+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("Failed to download CSV: %w", err)
	}
	if f.MaxBytes > 0 && int64(len(data)) > f.MaxBytes {
		return nil, fmt.Errorf("CSV exceeds %d bytes", f.MaxBytes)
	}
	return Parse(strings.NewReader(string(data)))
}

// Parse reads a header row followed by records. Short records leave missing
// columns empty and blank lines are skipped.
func Parse(r io.Reader) ([]map[string]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	header, err := reader.Read()
	if err == io.EOF {
		return nil, ErrEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("parse CSV header: %w", err)
	}
	header = lo.Map(header, func(h string, _ int) string {
		return strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
	})
	var rows []map[string]string
	for {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse CSV: %w", err)
		}
		if lo.EveryBy(rec, func(v string) bool { return strings.TrimSpace(v) == "" }) {
			continue
		}
		row := make(map[string]string, len(header))
		for i, h := range header {
			if h == "" {
				continue
			}
			if i < len(rec) {
				row[h] = strings.TrimSpace(rec[i])
			} else {
				row[h] = ""
			}
		}
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return nil, ErrEmpty
	}
	return rows, nil
}

// ReportRow is the report-shaped view of one CSV row.
type ReportRow struct {
	PublicationDate     string
	Title               string
	Content             string
	Source              string
	MediaCategory       string
	MediaFormat         string
	ThematicArea        string
	ThematicDescription string
	Objectives          []any
	Link                string
	Extra               map[string]any
}

var reportColumns = []string{
	"publication_date", "title", "content", "source", "media_category", "media_format",
	"thematic_area", "thematic_description", "objectives", "link",
}

// ToReport maps a row onto report fields. Rows without a title are not
// reports. Unknown columns land in Extra.
func ToReport(row map[string]string) (ReportRow, bool) {
	get := func(k string) string { return strings.TrimSpace(row[k]) }
	out := ReportRow{
		PublicationDate:     get("publication_date"),
		Title:               get("title"),
		Content:             get("content"),
		Source:              get("source"),
		MediaCategory:       get("media_category"),
		MediaFormat:         get("media_format"),
		ThematicArea:        get("thematic_area"),
		ThematicDescription: get("thematic_description"),
		Objectives:          parseObjectives(get("objectives")),
		Link:                get("link"),
		Extra:               map[string]any{},
	}
	for k, v := range row {
		if !lo.Contains(reportColumns, k) {
			out.Extra[k] = v
		}
	}
	return out, out.Title != ""
}

// Objectives are either a JSON array or a semicolon separated list.
func parseObjectives(v string) []any {
	if v == "" {
		return []any{}
	}
	if strings.HasPrefix(v, "[") {
		var list []any
		if err := json.Unmarshal([]byte(v), &list); err == nil {
			return list
		}
	}
	parts := lo.FilterMap(strings.Split(v, ";"), func(p string, _ int) (any, bool) {
		p = strings.TrimSpace(p)
		return p, p != ""
	})
	return parts
}
