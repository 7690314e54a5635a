package catalog

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/brensch/mrtstat/internal/util"
)

// Broker queries a BGPKIT-compatible broker's /search endpoint.
type Broker struct {
	BaseURL   string
	PageSize  int
	Start     time.Time
	End       time.Time // zero means open ended
	Collector string
	Client    *http.Client
	Logger    *slog.Logger
}

type brokerResponse struct {
	Count    int          `json:"count"`
	Page     int          `json:"page"`
	PageSize int          `json:"page_size"`
	Error    *string      `json:"error"`
	Data     []brokerItem `json:"data"`
}

type brokerItem struct {
	TsStart     string `json:"ts_start"`
	CollectorID string `json:"collector_id"`
	DataType    string `json:"data_type"`
	URL         string `json:"url"`
	RoughSize   int64  `json:"rough_size"`
	ExactSize   int64  `json:"exact_size"`
}

// Query pages through results until the broker returns a short page.
func (b *Broker) Query(ctx context.Context) ([]Item, error) {
	client := b.Client
	if client == nil {
		client = util.DefaultHTTPClient()
	}
	logger := b.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	pageSize := b.PageSize
	if pageSize <= 0 {
		pageSize = 1000
	}

	var items []Item
	for page := 1; ; page++ {
		l := logger.With(slog.Int("page", page))
		resp, err := b.fetchPage(ctx, client, page, pageSize)
		if err != nil {
			return nil, fmt.Errorf("broker page %d: %w", page, err)
		}
		if resp.Error != nil && *resp.Error != "" {
			return nil, fmt.Errorf("broker page %d: %s", page, *resp.Error)
		}
		for _, bi := range resp.Data {
			items = append(items, bi.item(l))
		}
		l.Debug("Broker page fetched", slog.Int("items", len(resp.Data)), slog.Int("total", len(items)))
		if len(resp.Data) < pageSize {
			break
		}
	}
	logger.Info("Broker query complete", slog.Int("items", len(items)))
	return items, nil
}

func (b *Broker) fetchPage(ctx context.Context, client *http.Client, page, pageSize int) (*brokerResponse, error) {
	q := url.Values{}
	q.Set("ts_start", strconv.FormatInt(b.Start.Unix(), 10))
	if !b.End.IsZero() {
		q.Set("ts_end", strconv.FormatInt(b.End.Unix(), 10))
	}
	if b.Collector != "" {
		q.Set("collector_id", b.Collector)
	}
	q.Set("page", strconv.Itoa(page))
	q.Set("page_size", strconv.Itoa(pageSize))
	endpoint := strings.TrimRight(b.BaseURL, "/") + "/search?" + q.Encode()

	req, err := util.NewGetRequest(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := util.Do(client, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out brokerResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode broker response: %w", err)
	}
	return &out, nil
}

var brokerTimeLayouts = []string{time.RFC3339, "2006-01-02T15:04:05"}

func (bi brokerItem) item(logger *slog.Logger) Item {
	size := bi.RoughSize
	if bi.ExactSize > 0 {
		size = bi.ExactSize
	}
	it := Item{
		URL:       bi.URL,
		RoughSize: size,
		Kind:      ParseKind(bi.DataType),
		Collector: bi.CollectorID,
	}
	for _, layout := range brokerTimeLayouts {
		if t, err := time.ParseInLocation(layout, bi.TsStart, time.UTC); err == nil {
			it.Start = t
			break
		}
	}
	if it.Start.IsZero() && bi.TsStart != "" {
		logger.Debug("Unparseable broker timestamp", slog.String("url", bi.URL), slog.String("ts_start", bi.TsStart))
	}
	return it
}
