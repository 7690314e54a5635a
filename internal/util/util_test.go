package util

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"
)

func TestParseLinks(t *testing.T) {
	doc, err := html.Parse(strings.NewReader(`<html><body>
<a href="/">root</a>
<a href="updates.20240101.0000.gz">u</a>
<a href="bview.20240101.0000.GZ">b</a>
<a href="rib.20240101.0000.bz2">r</a>
<p><a href="README.txt">readme</a></p>
<a name="anchor">none</a>
</body></html>`))
	require.NoError(t, err)

	links := ParseLinks(doc, ".gz", ".bz2")
	assert.Equal(t, []string{"updates.20240101.0000.gz", "bview.20240101.0000.GZ", "rib.20240101.0000.bz2"}, links)
}

func TestArchiveFileTime(t *testing.T) {
	got, err := ArchiveFileTime("https://host/rrc00/2024.01/updates.20240131.2355.gz")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 31, 23, 55, 0, 0, time.UTC), got)

	_, err = ArchiveFileTime("latest-update.gz")
	assert.Error(t, err)
	_, err = ArchiveFileTime("updates.20241301.0000.gz")
	assert.Error(t, err)
}

func TestMonthsBetween(t *testing.T) {
	months := MonthsBetween(
		time.Date(2023, 12, 31, 12, 0, 0, 0, time.UTC),
		time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
	)
	require.Len(t, months, 3)
	assert.Equal(t, time.Date(2023, 12, 1, 0, 0, 0, 0, time.UTC), months[0])
	assert.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), months[2])
}

func TestDoRejectsBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, UserAgent, r.Header.Get("User-Agent"))
		if r.URL.Path == "/missing" {
			http.Error(w, "no such archive", http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte("payload"))
	}))
	defer srv.Close()

	req, err := NewGetRequest(context.Background(), srv.URL+"/missing")
	require.NoError(t, err)
	_, err = DownloadFile(srv.Client(), req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
	assert.Contains(t, err.Error(), "no such archive")

	req, err = NewGetRequest(context.Background(), srv.URL+"/ok")
	require.NoError(t, err)
	body, err := DownloadFile(srv.Client(), req)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(body))
}
