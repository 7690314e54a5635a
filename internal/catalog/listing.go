package catalog

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"slices"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/brensch/mrtstat/internal/decompress"
	"github.com/brensch/mrtstat/internal/util"
)

// MonthToken in a listing URL is replaced by YYYY.MM for each month in the window.
const MonthToken = "{month}"

// Listing scrapes HTML directory indexes such as those served by RIPE RIS and
// RouteViews. Sizes are not published in the index, so items are unsized.
type Listing struct {
	URLs   []string
	Start  time.Time
	End    time.Time // zero means now
	Client *http.Client
	Logger *slog.Logger
	now    func() time.Time
}

// Query fetches every listing page. Any page failure fails the query.
func (l *Listing) Query(ctx context.Context) ([]Item, error) {
	client := l.Client
	if client == nil {
		client = util.DefaultHTTPClient()
	}
	logger := l.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	end := l.End
	if end.IsZero() {
		if l.now != nil {
			end = l.now()
		} else {
			end = time.Now()
		}
	}

	seen := make(map[string]bool)
	var items []Item
	for _, pageURL := range l.expand(end) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		pl := logger.With(slog.String("listing_url", pageURL))
		found, err := l.page(ctx, client, pageURL, end)
		if err != nil {
			return nil, err
		}
		added := 0
		for _, it := range found {
			if seen[it.URL] {
				continue
			}
			seen[it.URL] = true
			items = append(items, it)
			added++
		}
		pl.Debug("Listing page checked", slog.Int("new_items", added))
	}

	slices.SortStableFunc(items, func(a, b Item) int {
		if c := a.Start.Compare(b.Start); c != 0 {
			return c
		}
		return strings.Compare(a.URL, b.URL)
	})
	logger.Info("Listing query complete", slog.Int("items", len(items)))
	return items, nil
}

func (l *Listing) expand(end time.Time) []string {
	var out []string
	for _, u := range l.URLs {
		if !strings.Contains(u, MonthToken) {
			out = append(out, u)
			continue
		}
		for _, m := range util.MonthsBetween(l.Start, end) {
			out = append(out, strings.ReplaceAll(u, MonthToken, m.Format("2006.01")))
		}
	}
	return out
}

func (l *Listing) page(ctx context.Context, client *http.Client, pageURL string, end time.Time) ([]Item, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("parse listing url %s: %w", pageURL, err)
	}
	req, err := util.NewGetRequest(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	body, err := util.DownloadFile(client, req)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", pageURL, err)
	}

	root, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse listing html %s: %w", pageURL, err)
	}

	var out []Item
	for _, link := range util.ParseLinks(root, decompress.Suffixes()...) {
		abs, err := base.Parse(link)
		if err != nil {
			continue
		}
		name := path.Base(abs.Path)
		kind := kindFromFileName(name)
		if kind == KindUnknown {
			continue
		}
		start, err := util.ArchiveFileTime(name)
		if err != nil {
			continue
		}
		if start.Before(l.Start) || !start.Before(end) {
			continue
		}
		out = append(out, Item{
			URL:       abs.String(),
			RoughSize: -1,
			Kind:      kind,
			Collector: base.Host,
			Start:     start,
		})
	}
	return out, nil
}

func kindFromFileName(name string) Kind {
	switch {
	case strings.HasPrefix(name, "updates."):
		return KindUpdate
	case strings.HasPrefix(name, "bview."), strings.HasPrefix(name, "rib."):
		return KindRIB
	default:
		return KindUnknown
	}
}
