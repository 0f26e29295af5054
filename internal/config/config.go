package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Storage      StorageConfig      `yaml:"storage"`
	Sheets       SheetsConfig       `yaml:"sheets"`
	LLM          LLMConfig          `yaml:"llm"`
	LinkedIn     LinkedInConfig     `yaml:"linkedin"`
	LeadFinder   LeadFinderConfig   `yaml:"lead_finder"`
	SalesManager SalesManagerConfig `yaml:"sales_manager"`
	Outreach     OutreachConfig     `yaml:"outreach"`
	Report       ReportConfig       `yaml:"report"`
}

// ServerConfig holds the status HTTP server configuration
type ServerConfig struct {
	Port    int    `yaml:"port"`
	Host    string `yaml:"host"`
	Enabled bool   `yaml:"enabled"`
}

// StorageConfig holds the durable coordination store settings
type StorageConfig struct {
	DatabaseURL string `yaml:"database_url"`
	RedisURL    string `yaml:"redis_url"` // optional; empty falls back to Postgres locks
	PIDFile     string `yaml:"pid_file"`
}

// SheetsConfig holds Google Sheets lead store configuration
type SheetsConfig struct {
	SpreadsheetID   string `yaml:"spreadsheet_id"`
	SheetName       string `yaml:"sheet_name"`
	CredentialsFile string `yaml:"credentials_file"`
	TimeoutSeconds  int    `yaml:"timeout_seconds"`
}

// Timeout returns the configured timeout as a duration
func (c SheetsConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// LLMConfig holds AWS Bedrock configuration for text generation
type LLMConfig struct {
	Enabled        bool   `yaml:"enabled"`
	Region         string `yaml:"region"`
	ModelID        string `yaml:"model_id"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Timeout returns the configured timeout as a duration
func (c LLMConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// LinkedInAccount identifies one sending account at the automation provider
type LinkedInAccount struct {
	Name      string `yaml:"name"`
	BaseURL   string `yaml:"base_url"`
	APIKey    string `yaml:"api_key"`
	AccountID string `yaml:"account_id"`
}

// LinkedInConfig holds LinkedIn automation API configuration
type LinkedInConfig struct {
	Accounts       []LinkedInAccount `yaml:"accounts"`
	TimeoutSeconds int               `yaml:"timeout_seconds"`
}

// Timeout returns the configured timeout as a duration
func (c LinkedInConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// LeadFinderConfig holds classification/scoring poller settings
type LeadFinderConfig struct {
	IntervalMinutes     int     `yaml:"interval_minutes"`
	MaxLeadsPerCycle    int     `yaml:"max_leads_per_cycle"`
	QualityThreshold    float64 `yaml:"quality_threshold"`
	DefaultQualityScore float64 `yaml:"default_quality_score"`
}

// Interval returns the poll interval as a duration
func (c LeadFinderConfig) Interval() time.Duration {
	return time.Duration(c.IntervalMinutes) * time.Minute
}

// SalesManagerConfig holds allocation and reporting settings
type SalesManagerConfig struct {
	CoordinationIntervalMinutes int     `yaml:"coordination_interval_minutes"`
	ReportIntervalMinutes       int     `yaml:"report_interval_minutes"`
	MaxAllocationsPerCycle      int     `yaml:"max_allocations_per_cycle"`
	SpeakerRatio                float64 `yaml:"speaker_ratio"`
	IncludeSelfReview           bool    `yaml:"include_self_review"`
}

// CoordinationInterval returns the allocation poll interval as a duration
func (c SalesManagerConfig) CoordinationInterval() time.Duration {
	return time.Duration(c.CoordinationIntervalMinutes) * time.Minute
}

// ReportInterval returns the reporting interval as a duration
func (c SalesManagerConfig) ReportInterval() time.Duration {
	return time.Duration(c.ReportIntervalMinutes) * time.Minute
}

// OutreachConfig holds sending limits and outreach poller settings
type OutreachConfig struct {
	IntervalMinutes           int    `yaml:"interval_minutes"`
	AcceptanceIntervalMinutes int    `yaml:"acceptance_interval_minutes"`
	ResponseIntervalMinutes   int    `yaml:"response_interval_minutes"`
	RateLimitDaily            int    `yaml:"rate_limit_daily"`
	RateLimitHourly           int    `yaml:"rate_limit_hourly"`
	RateLimitInterval         string `yaml:"rate_limit_interval"` // e.g. "5-15 minutes"
	RateLimitWindow           string `yaml:"rate_limit_window"`   // e.g. "09:00-17:00"
	Timezone                  string `yaml:"timezone"`
	LockTTLSeconds            int    `yaml:"lock_ttl_seconds"`
	MaxAcceptanceChecks       int    `yaml:"max_acceptance_checks"`
	EventName                 string `yaml:"event_name"`
	EventDate                 string `yaml:"event_date"`
}

// Interval returns the send-cycle poll interval as a duration
func (c OutreachConfig) Interval() time.Duration {
	return time.Duration(c.IntervalMinutes) * time.Minute
}

// AcceptanceInterval returns the invitation-acceptance poll interval
func (c OutreachConfig) AcceptanceInterval() time.Duration {
	return time.Duration(c.AcceptanceIntervalMinutes) * time.Minute
}

// ResponseInterval returns the response-check poll interval
func (c OutreachConfig) ResponseInterval() time.Duration {
	return time.Duration(c.ResponseIntervalMinutes) * time.Minute
}

// LockTTL returns the per-lead lock TTL as a duration
func (c OutreachConfig) LockTTL() time.Duration {
	return time.Duration(c.LockTTLSeconds) * time.Second
}

// ParseRateInterval parses an interval range like "5-15 minutes" into
// min/max durations. A single value like "10 minutes" yields min == max.
func (c OutreachConfig) ParseRateInterval() (time.Duration, time.Duration, error) {
	s := strings.TrimSpace(c.RateLimitInterval)
	s = strings.TrimSuffix(s, "minutes")
	s = strings.TrimSuffix(s, "minute")
	s = strings.TrimSpace(s)

	parse := func(v string) (time.Duration, error) {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, fmt.Errorf("invalid rate_limit_interval %q: %w", c.RateLimitInterval, err)
		}
		return time.Duration(n) * time.Minute, nil
	}

	if lo, hi, ok := strings.Cut(s, "-"); ok {
		minIv, err := parse(lo)
		if err != nil {
			return 0, 0, err
		}
		maxIv, err := parse(hi)
		if err != nil {
			return 0, 0, err
		}
		if maxIv < minIv {
			return 0, 0, fmt.Errorf("rate_limit_interval %q: max below min", c.RateLimitInterval)
		}
		return minIv, maxIv, nil
	}
	v, err := parse(s)
	if err != nil {
		return 0, 0, err
	}
	return v, v, nil
}

// ParseRateWindow parses a sending window like "09:00-17:00" into minutes
// from midnight. Inverted (midnight-spanning) windows are rejected.
func (c OutreachConfig) ParseRateWindow() (int, int, error) {
	start, end, ok := strings.Cut(strings.TrimSpace(c.RateLimitWindow), "-")
	if !ok {
		return 0, 0, fmt.Errorf("invalid rate_limit_window %q", c.RateLimitWindow)
	}
	parse := func(v string) (int, error) {
		h, m, ok := strings.Cut(strings.TrimSpace(v), ":")
		if !ok {
			return 0, fmt.Errorf("invalid time %q in rate_limit_window", v)
		}
		hour, err := strconv.Atoi(h)
		if err != nil || hour < 0 || hour > 23 {
			return 0, fmt.Errorf("invalid hour %q in rate_limit_window", h)
		}
		minute, err := strconv.Atoi(m)
		if err != nil || minute < 0 || minute > 59 {
			return 0, fmt.Errorf("invalid minute %q in rate_limit_window", m)
		}
		return hour*60 + minute, nil
	}
	s, err := parse(start)
	if err != nil {
		return 0, 0, err
	}
	e, err := parse(end)
	if err != nil {
		return 0, 0, err
	}
	if e <= s {
		return 0, 0, fmt.Errorf("rate_limit_window %q: end not after start", c.RateLimitWindow)
	}
	return s, e, nil
}

// ReportConfig holds SES report delivery configuration
type ReportConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Region         string   `yaml:"region"`
	AccessKey      string   `yaml:"access_key"`
	SecretKey      string   `yaml:"secret_key"`
	FromAddress    string   `yaml:"from_address"`
	Recipients     []string `yaml:"recipients"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
}

// Timeout returns the configured timeout as a duration
func (c ReportConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	// Set defaults
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Storage.PIDFile == "" {
		cfg.Storage.PIDFile = "data/agents.pid"
	}
	if cfg.Sheets.SheetName == "" {
		cfg.Sheets.SheetName = "Leads"
	}
	if cfg.Sheets.TimeoutSeconds == 0 {
		cfg.Sheets.TimeoutSeconds = 30
	}
	if cfg.LLM.Region == "" {
		cfg.LLM.Region = "us-east-1"
	}
	if cfg.LLM.ModelID == "" {
		cfg.LLM.ModelID = "anthropic.claude-3-sonnet-20240229-v1:0"
	}
	if cfg.LLM.TimeoutSeconds == 0 {
		cfg.LLM.TimeoutSeconds = 30
	}
	if cfg.LinkedIn.TimeoutSeconds == 0 {
		cfg.LinkedIn.TimeoutSeconds = 30
	}
	if cfg.LeadFinder.IntervalMinutes == 0 {
		cfg.LeadFinder.IntervalMinutes = 10
	}
	if cfg.LeadFinder.MaxLeadsPerCycle == 0 {
		cfg.LeadFinder.MaxLeadsPerCycle = 100
	}
	if cfg.LeadFinder.QualityThreshold == 0 {
		cfg.LeadFinder.QualityThreshold = 6.0
	}
	if cfg.LeadFinder.DefaultQualityScore == 0 {
		cfg.LeadFinder.DefaultQualityScore = 5.0
	}
	if cfg.SalesManager.CoordinationIntervalMinutes == 0 {
		cfg.SalesManager.CoordinationIntervalMinutes = 30
	}
	if cfg.SalesManager.ReportIntervalMinutes == 0 {
		cfg.SalesManager.ReportIntervalMinutes = 24 * 60
	}
	if cfg.SalesManager.MaxAllocationsPerCycle == 0 {
		cfg.SalesManager.MaxAllocationsPerCycle = 50
	}
	if cfg.SalesManager.SpeakerRatio == 0 {
		cfg.SalesManager.SpeakerRatio = 0.6
	}
	if cfg.Outreach.IntervalMinutes == 0 {
		cfg.Outreach.IntervalMinutes = 5
	}
	if cfg.Outreach.AcceptanceIntervalMinutes == 0 {
		cfg.Outreach.AcceptanceIntervalMinutes = 12 * 60
	}
	if cfg.Outreach.ResponseIntervalMinutes == 0 {
		cfg.Outreach.ResponseIntervalMinutes = 120
	}
	if cfg.Outreach.RateLimitDaily == 0 {
		cfg.Outreach.RateLimitDaily = 45
	}
	if cfg.Outreach.RateLimitHourly == 0 {
		cfg.Outreach.RateLimitHourly = 10
	}
	if cfg.Outreach.RateLimitInterval == "" {
		cfg.Outreach.RateLimitInterval = "5-15 minutes"
	}
	if cfg.Outreach.RateLimitWindow == "" {
		cfg.Outreach.RateLimitWindow = "09:00-17:00"
	}
	if cfg.Outreach.Timezone == "" {
		cfg.Outreach.Timezone = "Europe/London"
	}
	if cfg.Outreach.LockTTLSeconds == 0 {
		cfg.Outreach.LockTTLSeconds = 300
	}
	if cfg.Outreach.MaxAcceptanceChecks == 0 {
		cfg.Outreach.MaxAcceptanceChecks = 14
	}
	if cfg.Outreach.EventName == "" {
		cfg.Outreach.EventName = "Innovators Guild"
	}
	if cfg.Report.TimeoutSeconds == 0 {
		cfg.Report.TimeoutSeconds = 30
	}
	if cfg.Report.Region == "" {
		cfg.Report.Region = "us-west-2"
	}

	// Fail fast on malformed rate-limit settings; these guard the
	// compliance contract and must not be discovered mid-send.
	if _, _, err := cfg.Outreach.ParseRateInterval(); err != nil {
		return nil, err
	}
	if _, _, err := cfg.Outreach.ParseRateWindow(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env vars,
// so secrets can live in .env locally and in real env vars in production.
func LoadFromEnv(path string) (*Config, error) {
	// Load .env file if it exists (no error if missing)
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Storage.DatabaseURL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Storage.RedisURL = v
	}
	if v := os.Getenv("SHEETS_SPREADSHEET_ID"); v != "" {
		cfg.Sheets.SpreadsheetID = v
	}
	if v := os.Getenv("SHEETS_CREDENTIALS_FILE"); v != "" {
		cfg.Sheets.CredentialsFile = v
	}
	if v := os.Getenv("BEDROCK_MODEL_ID"); v != "" {
		cfg.LLM.ModelID = v
	}
	if v := os.Getenv("AWS_REGION"); v != "" {
		cfg.LLM.Region = v
	}
	if v := os.Getenv("SES_ACCESS_KEY"); v != "" {
		cfg.Report.AccessKey = v
	}
	if v := os.Getenv("SES_SECRET_KEY"); v != "" {
		cfg.Report.SecretKey = v
	}
	if v := os.Getenv("SES_REGION"); v != "" {
		cfg.Report.Region = v
	}
	if v := os.Getenv("EVENT_NAME"); v != "" {
		cfg.Outreach.EventName = v
	}
	if v := os.Getenv("EVENT_DATE"); v != "" {
		cfg.Outreach.EventDate = v
	}

	// LinkedIn accounts: numbered env vars extend or override the YAML
	// list, matching how operators rotate provider credentials without
	// touching the config file.
	loadLinkedInAccountsFromEnv(cfg)

	return cfg, nil
}

func loadLinkedInAccountsFromEnv(cfg *Config) {
	for n := 1; ; n++ {
		suffix := ""
		if n > 1 {
			suffix = fmt.Sprintf("_%d", n)
		}
		baseURL := os.Getenv("LINKEDIN_BASE_URL" + suffix)
		apiKey := os.Getenv("LINKEDIN_API_KEY" + suffix)
		accountID := os.Getenv("LINKEDIN_ACCOUNT_ID" + suffix)
		if baseURL == "" || apiKey == "" || accountID == "" {
			return
		}
		acct := LinkedInAccount{
			Name:      fmt.Sprintf("account_%d", n),
			BaseURL:   baseURL,
			APIKey:    apiKey,
			AccountID: accountID,
		}
		if n-1 < len(cfg.LinkedIn.Accounts) {
			cfg.LinkedIn.Accounts[n-1] = acct
		} else {
			cfg.LinkedIn.Accounts = append(cfg.LinkedIn.Accounts, acct)
		}
	}
}
