package prefetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/brensch/mrtstat/internal/util"
)

// Transport retrieves source bytes. Fetch copies the whole source into dst;
// Open returns a live stream that the caller must close.
type Transport interface {
	Fetch(ctx context.Context, url string, dst io.Writer) (int64, error)
	Open(ctx context.Context, url string) (io.ReadCloser, error)
}

// HTTPTransport fetches http and https URLs.
type HTTPTransport struct {
	Client *http.Client
}

func (t *HTTPTransport) client() *http.Client {
	if t.Client == nil {
		return util.DefaultHTTPClient()
	}
	return t.Client
}

func (t *HTTPTransport) Fetch(ctx context.Context, url string, dst io.Writer) (int64, error) {
	body, err := t.Open(ctx, url)
	if err != nil {
		return 0, err
	}
	defer body.Close()

	n, err := io.Copy(dst, body)
	if err != nil {
		return n, fmt.Errorf("failed reading body from %s after %d bytes: %w", url, n, err)
	}
	return n, nil
}

func (t *HTTPTransport) Open(ctx context.Context, url string) (io.ReadCloser, error) {
	req, err := util.NewGetRequest(ctx, url)
	if err != nil {
		return nil, err
	}
	resp, err := util.Do(t.client(), req)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// FileTransport reads local paths and file:// URLs.
type FileTransport struct{}

func (FileTransport) Fetch(ctx context.Context, url string, dst io.Writer) (int64, error) {
	f, err := FileTransport{}.Open(ctx, url)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return io.Copy(dst, f)
}

func (FileTransport) Open(_ context.Context, url string) (io.ReadCloser, error) {
	return os.Open(strings.TrimPrefix(url, "file://"))
}

// SchemeTransport routes http(s) URLs to HTTP and everything else to File.
type SchemeTransport struct {
	HTTP Transport
	File Transport
}

// DefaultTransport handles http, https, file:// and bare paths.
func DefaultTransport(client *http.Client) *SchemeTransport {
	return &SchemeTransport{HTTP: &HTTPTransport{Client: client}, File: FileTransport{}}
}

func (t *SchemeTransport) pick(raw string) Transport {
	if u, err := url.Parse(raw); err == nil && (u.Scheme == "http" || u.Scheme == "https") {
		return t.HTTP
	}
	return t.File
}

func (t *SchemeTransport) Fetch(ctx context.Context, url string, dst io.Writer) (int64, error) {
	return t.pick(url).Fetch(ctx, url, dst)
}

func (t *SchemeTransport) Open(ctx context.Context, url string) (io.ReadCloser, error) {
	return t.pick(url).Open(ctx, url)
}
