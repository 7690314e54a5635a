package config

import (
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/brensch/mrtstat/internal/budget"
)

// Default catalog endpoints.
const (
	DefaultBrokerURL = "https://api.bgpkit.com/v3/broker"
	DefaultPageSize  = 1000
	DefaultSince     = 24 * time.Hour
	DefaultOutput    = "output.txt"
)

// DefaultListingURLs are archive directory indexes usable instead of the
// broker. {month} expands to each YYYY.MM touched by the time window.
var DefaultListingURLs = []string{
	"https://data.ris.ripe.net/rrc00/{month}/",
	"https://archive.routeviews.org/bgpdata/{month}/UPDATES/",
	"https://archive.routeviews.org/bgpdata/{month}/RIBS/",
}

const (
	DefaultFetchWorkers    = 32
	DefaultChannelCapacity = 32
	// Initial allocation for a budgeted buffer; it grows if the source is bigger.
	DefaultInitialBuffer = 128 << 20
	DefaultFetchTimeout  = 30 * time.Minute
)

var (
	// Decoding is CPU bound, so one consumer per core.
	DefaultConsumerWorkers = runtime.NumCPU()
)

// Config holds application settings
type Config struct {
	OutputDir  string
	DbPath     string
	OutputFile string
	// ReportDir receives parquet reports when set.
	ReportDir string

	BrokerURL   string
	ListingURLs []string
	PageSize    int
	Collector   string
	Since       time.Duration
	Until       time.Duration
	DataTypes   []string
	// FilterWindow drops records stamped outside [now-Since, now-Until).
	FilterWindow bool

	FetchWorkers    int
	ChannelCapacity int
	ConsumerWorkers int
	FetchTimeout    time.Duration

	BufferSpace   int64
	MaxBuffer     int64
	InitialBuffer int64
}

// Default returns a Config populated with the package defaults.
func Default() Config {
	return Config{
		OutputDir:       "./output",
		DbPath:          "./mrtstat.duckdb",
		OutputFile:      DefaultOutput,
		BrokerURL:       DefaultBrokerURL,
		PageSize:        DefaultPageSize,
		Since:           DefaultSince,
		DataTypes:       []string{"update", "rib"},
		FetchWorkers:    DefaultFetchWorkers,
		ChannelCapacity: DefaultChannelCapacity,
		ConsumerWorkers: DefaultConsumerWorkers,
		FetchTimeout:    DefaultFetchTimeout,
		BufferSpace:     budget.DefaultCapacity,
		MaxBuffer:       budget.DefaultMaxSingle,
		InitialBuffer:   DefaultInitialBuffer,
	}
}

// Window returns the absolute time range selected by Since and Until
// relative to now. A zero end means open ended.
func (c Config) Window(now time.Time) (start, end time.Time) {
	start = now.Add(-c.Since)
	if c.Until > 0 {
		end = now.Add(-c.Until)
	}
	return start, end
}

// Validate reports every problem with the settings at once.
func (c Config) Validate() error {
	var errs error
	if c.FetchWorkers <= 0 {
		errs = errors.Join(errs, fmt.Errorf("fetch workers must be positive, got %d", c.FetchWorkers))
	}
	if c.ConsumerWorkers <= 0 {
		errs = errors.Join(errs, fmt.Errorf("consumer workers must be positive, got %d", c.ConsumerWorkers))
	}
	if c.ChannelCapacity < 0 {
		errs = errors.Join(errs, fmt.Errorf("channel capacity cannot be negative, got %d", c.ChannelCapacity))
	}
	if c.PageSize <= 0 {
		errs = errors.Join(errs, fmt.Errorf("page size must be positive, got %d", c.PageSize))
	}
	if c.BufferSpace < 0 || c.MaxBuffer < 0 || c.InitialBuffer < 0 {
		errs = errors.Join(errs, errors.New("buffer sizes cannot be negative"))
	}
	if c.Since <= 0 {
		errs = errors.Join(errs, fmt.Errorf("since must be positive, got %s", c.Since))
	}
	if c.Until < 0 || (c.Until > 0 && c.Until >= c.Since) {
		errs = errors.Join(errs, fmt.Errorf("until (%s) must be shorter than since (%s)", c.Until, c.Since))
	}
	if len(c.ListingURLs) == 0 && c.BrokerURL == "" {
		errs = errors.Join(errs, errors.New("either a broker url or listing urls are required"))
	}
	for _, t := range c.DataTypes {
		if t != "update" && t != "rib" {
			errs = errors.Join(errs, fmt.Errorf("unknown data type %q", t))
		}
	}
	return errs
}
