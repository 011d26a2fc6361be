package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

const (
	ProviderNone      = "none"
	ProviderAnthropic = "anthropic"
)

type Config struct {
	DBPath     string `yaml:"db_path"`
	ListenAddr string `yaml:"listen_addr"`
	Timezone   string `yaml:"timezone"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"` // json or console

	ReportOutputDir      string `yaml:"report_output_dir"`
	ReportSchedule       string `yaml:"report_schedule"` // cron spec; empty disables the daily job
	ReportName           string `yaml:"report_name"`
	OpenRecordMaxAgeDays int    `yaml:"open_record_max_age_days"`

	SlackBotToken  string `yaml:"slack_bot_token"`
	SlackChannelID string `yaml:"slack_channel_id"`

	NudgeSchedule    string   `yaml:"nudge_schedule"`    // cron spec; empty disables stale record reminders
	NudgeSupervisors []string `yaml:"nudge_supervisors"` // Slack user IDs or names

	LLMProvider          string `yaml:"llm_provider"`
	LLMModel             string `yaml:"llm_model"`
	AnthropicAPIKey      string `yaml:"anthropic_api_key"`
	DowntimeGlossaryPath string `yaml:"downtime_glossary_path"`

	ExternalTimeoutSeconds int `yaml:"external_timeout_seconds"`

	Location *time.Location `yaml:"-"` // computed from Timezone
}

// LoadConfig reads CONFIG_PATH (default config.yaml, optional), applies
// environment overrides and defaults, then validates the result.
func LoadConfig() (Config, error) {
	var cfg Config

	configPath := "config.yaml"
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		configPath = envPath
	}
	data, err := os.ReadFile(configPath)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", configPath, err)
		}
	case !errors.Is(err, os.ErrNotExist):
		return cfg, fmt.Errorf("read %s: %w", configPath, err)
	}

	envOverride(&cfg.DBPath, "DB_PATH")
	envOverride(&cfg.ListenAddr, "LISTEN_ADDR")
	envOverride(&cfg.Timezone, "TIMEZONE")
	envOverride(&cfg.LogLevel, "LOG_LEVEL")
	envOverride(&cfg.LogFormat, "LOG_FORMAT")
	envOverride(&cfg.ReportOutputDir, "REPORT_OUTPUT_DIR")
	envOverrideAllowEmpty(&cfg.ReportSchedule, "REPORT_SCHEDULE")
	envOverride(&cfg.ReportName, "REPORT_NAME")
	envOverride(&cfg.SlackBotToken, "SLACK_BOT_TOKEN")
	envOverride(&cfg.SlackChannelID, "SLACK_CHANNEL_ID")
	envOverrideAllowEmpty(&cfg.NudgeSchedule, "NUDGE_SCHEDULE")
	envOverrideList(&cfg.NudgeSupervisors, "NUDGE_SUPERVISORS")
	envOverride(&cfg.LLMProvider, "LLM_PROVIDER")
	envOverride(&cfg.LLMModel, "LLM_MODEL")
	envOverride(&cfg.AnthropicAPIKey, "ANTHROPIC_API_KEY")
	envOverride(&cfg.DowntimeGlossaryPath, "DOWNTIME_GLOSSARY_PATH")
	if err := envOverrideInt(&cfg.OpenRecordMaxAgeDays, "OPEN_RECORD_MAX_AGE_DAYS"); err != nil {
		return cfg, err
	}
	if err := envOverrideInt(&cfg.ExternalTimeoutSeconds, "EXTERNAL_TIMEOUT_SECONDS"); err != nil {
		return cfg, err
	}

	if cfg.DBPath == "" {
		cfg.DBPath = "./prodtrack.db"
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.Timezone == "" {
		cfg.Timezone = "Local"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = "json"
	}
	if cfg.ReportOutputDir == "" {
		cfg.ReportOutputDir = "./reports"
	}
	if cfg.ReportName == "" {
		cfg.ReportName = "Producao"
	}
	if cfg.OpenRecordMaxAgeDays == 0 {
		cfg.OpenRecordMaxAgeDays = 2
	}
	if cfg.LLMProvider == "" {
		cfg.LLMProvider = ProviderNone
	}
	if cfg.ExternalTimeoutSeconds == 0 {
		cfg.ExternalTimeoutSeconds = 60
	}

	return cfg, cfg.validate()
}

func (c *Config) validate() error {
	if strings.EqualFold(c.Timezone, "Local") {
		c.Location = time.Local
	} else {
		loc, err := time.LoadLocation(c.Timezone)
		if err != nil {
			return fmt.Errorf("invalid timezone '%s': %w", c.Timezone, err)
		}
		c.Location = loc
	}

	if _, err := zap.ParseAtomicLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log_level '%s': %w", c.LogLevel, err)
	}
	switch c.LogFormat {
	case "json", "console":
	default:
		return fmt.Errorf("log_format must be 'json' or 'console', got '%s'", c.LogFormat)
	}

	if c.ReportSchedule != "" {
		if _, err := ScheduleParser.Parse(c.ReportSchedule); err != nil {
			return fmt.Errorf("invalid report_schedule '%s': %w", c.ReportSchedule, err)
		}
	}
	if c.OpenRecordMaxAgeDays < 0 {
		return fmt.Errorf("invalid open_record_max_age_days '%d': must be >= 0", c.OpenRecordMaxAgeDays)
	}
	if c.ExternalTimeoutSeconds < 5 {
		return fmt.Errorf("invalid external_timeout_seconds '%d': must be >= 5", c.ExternalTimeoutSeconds)
	}
	if (c.SlackBotToken == "") != (c.SlackChannelID == "") {
		return errors.New("slack_bot_token and slack_channel_id must be set together")
	}
	if c.NudgeSchedule != "" {
		if _, err := ScheduleParser.Parse(c.NudgeSchedule); err != nil {
			return fmt.Errorf("invalid nudge_schedule '%s': %w", c.NudgeSchedule, err)
		}
		if !c.SlackConfigured() {
			return errors.New("nudge_schedule requires slack_bot_token and slack_channel_id")
		}
	}

	switch c.LLMProvider {
	case ProviderNone:
	case ProviderAnthropic:
		if c.AnthropicAPIKey == "" {
			return errors.New("anthropic_api_key is required when llm_provider=anthropic")
		}
	default:
		return fmt.Errorf("llm_provider must be 'none' or 'anthropic', got '%s'", c.LLMProvider)
	}

	if c.DowntimeGlossaryPath != "" {
		if err := validateGlossaryPath(c.DowntimeGlossaryPath); err != nil {
			return fmt.Errorf("invalid downtime_glossary_path '%s': %w", c.DowntimeGlossaryPath, err)
		}
	}
	return nil
}

// ScheduleParser accepts standard five-field cron specs plus descriptors
// such as @daily.
var ScheduleParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

func (c Config) SlackConfigured() bool {
	return c.SlackBotToken != "" && c.SlackChannelID != ""
}

func (c Config) ExternalTimeout() time.Duration {
	return time.Duration(c.ExternalTimeoutSeconds) * time.Second
}

func envOverride(field *string, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		*field = val
	}
}

func envOverrideAllowEmpty(field *string, envKey string) {
	if val, ok := os.LookupEnv(envKey); ok {
		*field = val
	}
}

func envOverrideList(field *[]string, envKey string) {
	val := os.Getenv(envKey)
	if val == "" {
		return
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	*field = out
}

func envOverrideInt(field *int, envKey string) error {
	if val := os.Getenv(envKey); val != "" {
		parsed, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", envKey, val, err)
		}
		*field = parsed
	}
	return nil
}

func validateGlossaryPath(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read glossary: %w", err)
	}
	var g struct {
		Categories []struct{} `yaml:"categories"`
		Terms      []struct{} `yaml:"terms"`
	}
	if err := yaml.Unmarshal(data, &g); err != nil {
		return fmt.Errorf("parse glossary yaml: %w", err)
	}
	return nil
}
