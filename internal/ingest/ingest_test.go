package ingest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = "\ufefftitle,publication_date,link,media_category,objectives,sentiment\n" +
	"Budget speech,2024-03-01T10:00:00Z,https://news.test/a,TV,\"a; b\",positive\n" +
	",,,,,\n" +
	"Short row,2024-03-02T10:00:00Z\n"

func TestParse(t *testing.T) {
	rows, err := Parse(strings.NewReader(sample))
	require.NoError(t, err)
	require.Len(t, rows, 2, "blank line skipped")
	assert.Equal(t, "Budget speech", rows[0]["title"])
	assert.Equal(t, "positive", rows[0]["sentiment"])
	assert.Equal(t, "", rows[1]["link"], "short rows pad missing columns")
}

func TestParseEmpty(t *testing.T) {
	_, err := Parse(strings.NewReader(""))
	assert.ErrorIs(t, err, ErrEmpty)
	_, err = Parse(strings.NewReader("title,link\n"))
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestToReport(t *testing.T) {
	rows, err := Parse(strings.NewReader(sample))
	require.NoError(t, err)

	rep, ok := ToReport(rows[0])
	require.True(t, ok)
	assert.Equal(t, "https://news.test/a", rep.Link)
	assert.Equal(t, "TV", rep.MediaCategory)
	assert.Equal(t, []any{"a", "b"}, rep.Objectives)
	assert.Equal(t, map[string]any{"sentiment": "positive"}, rep.Extra)

	_, ok = ToReport(map[string]string{"link": "x"})
	assert.False(t, ok)

	rep, _ = ToReport(map[string]string{"title": "t", "objectives": `["x", 2]`})
	assert.Equal(t, []any{"x", float64(2)}, rep.Objectives)
}

func TestHTTPFetcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok.csv":
			_, _ = w.Write([]byte(sample))
		case "/big.csv":
			_, _ = w.Write([]byte(strings.Repeat("x", 2048)))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	f := NewHTTPFetcher(time.Second, 1024)
	rows, err := f.Fetch(context.Background(), srv.URL+"/ok.csv")
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	_, err = f.Fetch(context.Background(), srv.URL+"/missing.csv")
	assert.ErrorContains(t, err, "Failed to download CSV")

	_, err = f.Fetch(context.Background(), srv.URL+"/big.csv")
	assert.ErrorContains(t, err, "exceeds")
}
