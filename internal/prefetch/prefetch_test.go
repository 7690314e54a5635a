package prefetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brensch/mrtstat/internal/budget"
	"github.com/brensch/mrtstat/internal/catalog"
)

type fakeTransport struct {
	data    map[string][]byte
	fetches atomic.Int32
	opens   atomic.Int32
}

func (f *fakeTransport) lookup(url string) ([]byte, error) {
	d, ok := f.data[url]
	if !ok {
		return nil, fmt.Errorf("404 for %s", url)
	}
	return d, nil
}

func (f *fakeTransport) Fetch(_ context.Context, url string, dst io.Writer) (int64, error) {
	f.fetches.Add(1)
	d, err := f.lookup(url)
	if err != nil {
		return 0, err
	}
	n, err := dst.Write(d)
	return int64(n), err
}

func (f *fakeTransport) Open(_ context.Context, url string) (io.ReadCloser, error) {
	f.opens.Add(1)
	d, err := f.lookup(url)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(d)), nil
}

type recordingObserver struct {
	mu        sync.Mutex
	succeeded []string
	failed    []string
}

func (o *recordingObserver) FetchSucceeded(item catalog.Item, _ int64, _ bool, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.succeeded = append(o.succeeded, item.URL)
}

func (o *recordingObserver) FetchFailed(item catalog.Item, _ error, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failed = append(o.failed, item.URL)
}

func gz(t *testing.T, b []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	_, err := w.Write(b)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func drain(t *testing.T, results <-chan Result) map[string]Result {
	t.Helper()
	got := make(map[string]Result)
	for res := range results {
		got[res.Item.URL] = res
	}
	return got
}

func readAndClose(t *testing.T, rc io.ReadCloser) string {
	t.Helper()
	b, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	return string(b)
}

func TestBufferedAndStreamedPaths(t *testing.T) {
	ft := &fakeTransport{data: map[string][]byte{
		"small.gz": gz(t, []byte("small payload")),
		"unsized":  []byte("unsized payload"),
		"huge":     []byte("huge payload"),
	}}
	b := budget.New(1<<20, 1<<10)
	obs := &recordingObserver{}
	p := New(b, ft, Config{Workers: 2, ChannelCapacity: 4, InitialBufferLimit: 8}, nil, obs)

	items := []catalog.Item{
		{URL: "small.gz", RoughSize: 100},
		{URL: "unsized", RoughSize: -1},
		{URL: "huge", RoughSize: 1 << 11},
		{URL: "missing", RoughSize: 50},
	}
	got := drain(t, p.Start(context.Background(), items))

	require.Len(t, got, 3)
	assert.True(t, got["small.gz"].Buffered)
	assert.Positive(t, got["small.gz"].Size)
	assert.False(t, got["unsized"].Buffered)
	assert.False(t, got["huge"].Buffered, "estimate above the single buffer ceiling streams")
	assert.Zero(t, got["huge"].Size)

	held := got["small.gz"].Size
	assert.Equal(t, int64(1<<20)-held, b.Remaining(), "an unread buffer holds exactly its capacity")

	assert.Equal(t, "small payload", readAndClose(t, got["small.gz"].Stream))
	assert.Equal(t, "unsized payload", readAndClose(t, got["unsized"].Stream))
	assert.Equal(t, "huge payload", readAndClose(t, got["huge"].Stream))

	assert.Equal(t, int64(1<<20), b.Remaining())
	assert.Equal(t, int32(2), ft.fetches.Load())
	assert.Equal(t, int32(2), ft.opens.Load())

	sort.Strings(obs.succeeded)
	assert.Equal(t, []string{"huge", "small.gz", "unsized"}, obs.succeeded)
	assert.Equal(t, []string{"missing"}, obs.failed)
}

func TestFailedBufferedFetchReturnsClaim(t *testing.T) {
	b := budget.New(1000, 1000)
	p := New(b, &fakeTransport{}, Config{Workers: 1}, nil, nil)

	got := drain(t, p.Start(context.Background(), []catalog.Item{{URL: "gone", RoughSize: 100}}))
	assert.Empty(t, got)
	assert.Equal(t, int64(1000), b.Remaining())
}

func TestBudgetExhaustionFallsBackToStreaming(t *testing.T) {
	ft := &fakeTransport{data: map[string][]byte{"a": []byte("aaaa"), "b": []byte("bbbb")}}
	// room for one claim of 2*60
	b := budget.New(150, 100)
	p := New(b, ft, Config{Workers: 1, ChannelCapacity: 3}, nil, nil)

	got := drain(t, p.Start(context.Background(), []catalog.Item{
		{URL: "a", RoughSize: 60},
		{URL: "b", RoughSize: 60},
	}))
	require.Len(t, got, 2)
	// a keeps 60 bytes after reconciling, leaving 90: not enough for b's 120
	assert.True(t, got["a"].Buffered)
	assert.Equal(t, int64(60), got["a"].Size)
	assert.False(t, got["b"].Buffered)
	for _, res := range got {
		readAndClose(t, res.Stream)
	}
	assert.Equal(t, int64(150), b.Remaining())
}

func TestClaimedBufferReleasesOnce(t *testing.T) {
	b := budget.New(100, 100)
	claimed, ok := b.TryClaim(10)
	require.True(t, ok)

	cb := newClaimedBuffer([]byte("abc"), claimed, b)
	data, err := io.ReadAll(cb)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(data))
	assert.Equal(t, int64(100), b.Remaining(), "released at EOF")

	require.NoError(t, cb.Close())
	require.NoError(t, cb.Close())
	assert.Equal(t, int64(100), b.Remaining(), "close after EOF does not release twice")

	n, err := cb.Read(make([]byte, 4))
	assert.Zero(t, n)
	assert.ErrorIs(t, err, io.EOF)
}

func TestClaimedBufferReleasedOnEarlyClose(t *testing.T) {
	b := budget.New(100, 100)
	claimed, _ := b.TryClaim(10)
	cb := newClaimedBuffer([]byte("abcdef"), claimed, b)

	_, err := cb.Read(make([]byte, 2))
	require.NoError(t, err)
	assert.Equal(t, int64(80), b.Remaining())
	require.NoError(t, cb.Close())
	assert.Equal(t, int64(100), b.Remaining())
}

func TestOutputCapacitySaturates(t *testing.T) {
	b := budget.New(0, 0)
	assert.Equal(t, 0, New(b, nil, Config{Workers: 32, ChannelCapacity: 32}, nil, nil).OutputCapacity())
	assert.Equal(t, 0, New(b, nil, Config{Workers: 8, ChannelCapacity: 2}, nil, nil).OutputCapacity())
	assert.Equal(t, 6, New(b, nil, Config{Workers: 2, ChannelCapacity: 8}, nil, nil).OutputCapacity())
	assert.Equal(t, 0, New(b, nil, Config{}, nil, nil).OutputCapacity())
}

func TestBackpressureBoundsInFlightResults(t *testing.T) {
	data := make(map[string][]byte)
	var items []catalog.Item
	for i := 0; i < 10; i++ {
		u := fmt.Sprintf("src-%d", i)
		data[u] = []byte(u)
		items = append(items, catalog.Item{URL: u, RoughSize: -1})
	}
	ft := &fakeTransport{data: data}
	p := New(budget.New(0, 0), ft, Config{Workers: 1, ChannelCapacity: 3}, nil, nil)

	results := p.Start(context.Background(), items)

	// two queued in the channel plus one held by the blocked worker
	require.Eventually(t, func() bool { return ft.opens.Load() == 3 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(3), ft.opens.Load())

	got := drain(t, results)
	assert.Len(t, got, 10)
	assert.Equal(t, int32(10), ft.opens.Load())
}

func TestCancelReleasesUndeliveredResults(t *testing.T) {
	ft := &fakeTransport{data: map[string][]byte{"a": []byte("aaaa"), "b": []byte("bbbb"), "c": []byte("cccc")}}
	b := budget.New(1000, 1000)
	p := New(b, ft, Config{Workers: 1, ChannelCapacity: 1}, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	results := p.Start(ctx, []catalog.Item{{URL: "a", RoughSize: 4}, {URL: "b", RoughSize: 4}, {URL: "c", RoughSize: 4}})
	require.Eventually(t, func() bool { return ft.fetches.Load() >= 1 }, time.Second, time.Millisecond)
	cancel()

	for res := range results {
		res.Stream.Close()
	}
	assert.Equal(t, int64(1000), b.Remaining())
}

func TestHTTPTransport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("archive-bytes"))
	}))
	defer srv.Close()

	tr := DefaultTransport(srv.Client())
	var buf bytes.Buffer
	n, err := tr.Fetch(context.Background(), srv.URL+"/ok", &buf)
	require.NoError(t, err)
	assert.Equal(t, int64(13), n)
	assert.Equal(t, "archive-bytes", buf.String())

	rc, err := tr.Open(context.Background(), srv.URL+"/ok")
	require.NoError(t, err)
	assert.Equal(t, "archive-bytes", readAndClose(t, rc))

	_, err = tr.Open(context.Background(), srv.URL+"/missing")
	assert.Error(t, err)
}

func TestFileTransport(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "updates.bin")
	require.NoError(t, os.WriteFile(path, []byte("local"), 0o644))

	tr := DefaultTransport(nil)
	for _, u := range []string{path, "file://" + path} {
		var buf bytes.Buffer
		_, err := tr.Fetch(context.Background(), u, &buf)
		require.NoError(t, err)
		assert.Equal(t, "local", buf.String())
	}

	_, err := tr.Open(context.Background(), filepath.Join(dir, "nope"))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestStreamOutlivesFetchTimeout(t *testing.T) {
	body := bytes.Repeat([]byte("mrt!"), 1<<20)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	// nothing fits, so the source is opened as a live stream
	b := budget.New(0, 0)
	p := New(b, DefaultTransport(srv.Client()), Config{Workers: 1, FetchTimeout: 200 * time.Millisecond}, nil, nil)

	got := drain(t, p.Start(context.Background(), []catalog.Item{{URL: srv.URL + "/updates.bin", RoughSize: int64(len(body))}}))
	require.Len(t, got, 1)
	res := got[srv.URL+"/updates.bin"]
	require.False(t, res.Buffered)

	// a consumer busy with another source
	time.Sleep(400 * time.Millisecond)

	n, err := io.Copy(io.Discard, res.Stream)
	require.NoError(t, err)
	assert.Equal(t, int64(len(body)), n)
	require.NoError(t, res.Stream.Close())
}

func TestStreamOpenHonoursFetchTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	obs := &recordingObserver{}
	p := New(budget.New(0, 0), DefaultTransport(srv.Client()), Config{Workers: 1, FetchTimeout: 100 * time.Millisecond}, nil, obs)

	start := time.Now()
	got := drain(t, p.Start(context.Background(), []catalog.Item{{URL: srv.URL + "/stalled", RoughSize: -1}}))
	assert.Empty(t, got)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, []string{srv.URL + "/stalled"}, obs.failed)
}
