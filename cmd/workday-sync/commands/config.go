package commands

import (
	"errors"
	"fmt"
	"os"
	"time"

	"workday-sync/lib/configutil"
	"workday-sync/lib/loop"
	"workday-sync/lib/notify"
	"workday-sync/lib/workday"
	"workday-sync/lib/workday/browser"
	"workday-sync/services/workdaysync"
)

const defaultConfigPath = "workday-sync.json5"

// timeouts are in seconds, 0 keeps the default.
type WorkdayConfig struct {
	BaseUrl           string  `json:"base_url"`
	Tenant            string  `json:"tenant"`
	ConnectTimeout    float64 `json:"connect_timeout"`
	ReadTimeout       float64 `json:"read_timeout"`
	BulkReadTimeout   float64 `json:"bulk_read_timeout"`
	TransferTimeout   float64 `json:"transfer_timeout"`
	RequestsPerSecond float64 `json:"requests_per_second"`
	UserAgent         string  `json:"user_agent"`
	PageSize          int     `json:"page_size"`
}

type LoopConfig struct {
	ConnectTimeout        float64 `json:"connect_timeout"`
	ReadTimeout           float64 `json:"read_timeout"`
	BulkReadTimeout       float64 `json:"bulk_read_timeout"`
	AttachmentReadTimeout float64 `json:"attachment_read_timeout"`
	TransferTimeout       float64 `json:"transfer_timeout"`
}

type BrowserConfig struct {
	ControlUrl         string         `json:"control_url"`
	Bin                string         `json:"bin"`
	Headless           bool           `json:"headless"`
	SearchTask         string         `json:"search_task"`
	SearchTitle        string         `json:"search_title"`
	ResultsSelector    string         `json:"results_selector"`
	Steps              []browser.Step `json:"steps"`
	LoginTimeout       float64        `json:"login_timeout"`
	InteractiveTimeout float64        `json:"interactive_timeout"`
	StepTimeout        float64        `json:"step_timeout"`
	ResultsTimeout     float64        `json:"results_timeout"`
}

type Config struct {
	Workday WorkdayConfig  `json:"workday"`
	Loop    LoopConfig     `json:"loop"`
	Browser BrowserConfig  `json:"browser"`
	Notify  notify.Options `json:"notify"`
	// PerfStatsInterval is how often process gauges are recorded, in seconds.
	PerfStatsInterval float64 `json:"perf_stats_interval"`
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// readConfig tolerates a missing config only at the default path.
func readConfig(path string) (Config, error) {
	cfg, err := configutil.ReadConfig[Config](path)
	if errors.Is(err, os.ErrNotExist) && path == defaultConfigPath {
		return Config{}, nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	return cfg, nil
}

func (c Config) workdayOptions() workday.Options {
	return workday.Options{
		BaseUrl:           c.Workday.BaseUrl,
		Tenant:            c.Workday.Tenant,
		ConnectTimeout:    seconds(c.Workday.ConnectTimeout),
		ReadTimeout:       seconds(c.Workday.ReadTimeout),
		BulkReadTimeout:   seconds(c.Workday.BulkReadTimeout),
		TransferTimeout:   seconds(c.Workday.TransferTimeout),
		RequestsPerSecond: c.Workday.RequestsPerSecond,
		UserAgent:         c.Workday.UserAgent,
	}
}

func (c Config) loopOptions(server, token string) loop.Options {
	return loop.Options{
		Server:                server,
		Token:                 token,
		ConnectTimeout:        seconds(c.Loop.ConnectTimeout),
		ReadTimeout:           seconds(c.Loop.ReadTimeout),
		BulkReadTimeout:       seconds(c.Loop.BulkReadTimeout),
		AttachmentReadTimeout: seconds(c.Loop.AttachmentReadTimeout),
		TransferTimeout:       seconds(c.Loop.TransferTimeout),
	}
}

func (c Config) browserOptions(username, password string) browser.Options {
	return browser.Options{
		BaseUrl:            c.Workday.BaseUrl,
		Tenant:             c.Workday.Tenant,
		Username:           username,
		Password:           password,
		ControlUrl:         c.Browser.ControlUrl,
		Bin:                c.Browser.Bin,
		Headless:           c.Browser.Headless,
		SearchTask:         c.Browser.SearchTask,
		SearchTitle:        c.Browser.SearchTitle,
		Steps:              c.Browser.Steps,
		ResultsSelector:    c.Browser.ResultsSelector,
		LoginTimeout:       seconds(c.Browser.LoginTimeout),
		InteractiveTimeout: seconds(c.Browser.InteractiveTimeout),
		StepTimeout:        seconds(c.Browser.StepTimeout),
		ResultsTimeout:     seconds(c.Browser.ResultsTimeout),
	}
}

func (c Config) driverOptions() workdaysync.DriverOptions {
	return workdaysync.DriverOptions{PageSize: c.Workday.PageSize}
}

func (c Config) perfStatsInterval() time.Duration {
	if c.PerfStatsInterval <= 0 {
		return 15 * time.Second
	}
	return seconds(c.PerfStatsInterval)
}
