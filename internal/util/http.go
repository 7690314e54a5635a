package util

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// UserAgent identifies this tool to archive servers.
const UserAgent = "mrtstat/0.1 (Go-client)"

// NewGetRequest builds a GET for url with the default headers set.
func NewGetRequest(ctx context.Context, url string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request for %s: %w", url, err)
	}
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Accept", "*/*")
	return req, nil
}

// Do executes req and returns the response if its status is 200. On any other
// status the body is closed and up to 512 bytes of it are quoted in the error.
func Do(client *http.Client, req *http.Request) (*http.Response, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http do request for %s: %w", req.URL.String(), err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("bad status '%s' fetching %s: %s", resp.Status, req.URL.String(), string(bodyBytes))
	}
	return resp, nil
}

// DownloadFile executes req and returns the whole body.
func DownloadFile(client *http.Client, req *http.Request) ([]byte, error) {
	resp, err := Do(client, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed reading body from %s: %w", req.URL.String(), err)
	}
	return bodyBytes, nil
}

// DefaultHTTPClient has no overall timeout, since archive streams can take
// longer than any sensible fixed limit. Callers bound requests with contexts.
func DefaultHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConnsPerHost: 16,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		},
	}
}
