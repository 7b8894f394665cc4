// File: internal/config/config.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	Browser BrowserConfig `mapstructure:"browser" yaml:"browser"`
	Send    SendConfig    `mapstructure:"send" yaml:"send"`
	Sheets  SheetsConfig  `mapstructure:"sheets" yaml:"sheets"`
	RunLog  RunLogConfig  `mapstructure:"runlog" yaml:"runlog"`
	History HistoryConfig `mapstructure:"history" yaml:"history"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// BrowserConfig holds settings for reaching (or launching) the Chrome
// instance that hosts the WhatsApp Web session.
type BrowserConfig struct {
	DebugPort     int           `mapstructure:"debug_port" yaml:"debug_port"`
	Executable    string        `mapstructure:"executable" yaml:"executable"`
	ProfileDir    string        `mapstructure:"profile_dir" yaml:"profile_dir"`
	LaunchTimeout time.Duration `mapstructure:"launch_timeout" yaml:"launch_timeout"`
}

// SettleConfig groups the fixed settle delays the delivery driver inserts
// after actions that render asynchronously with no completion signal other
// than elapsed time. Tunable, but a known source of flakiness either way.
type SettleConfig struct {
	AfterChatLoad   time.Duration `mapstructure:"after_chat_load" yaml:"after_chat_load"`
	AfterMenuClick  time.Duration `mapstructure:"after_menu_click" yaml:"after_menu_click"`
	AfterFileInject time.Duration `mapstructure:"after_file_inject" yaml:"after_file_inject"`
	BeforeCaption   time.Duration `mapstructure:"before_caption" yaml:"before_caption"`
	AfterSend       time.Duration `mapstructure:"after_send" yaml:"after_send"`
}

// SendConfig tunes the send orchestration loop and delivery driver.
type SendConfig struct {
	DailyLimit int    `mapstructure:"daily_limit" yaml:"daily_limit"`
	Template   string `mapstructure:"template" yaml:"template"`
	ImagePath  string `mapstructure:"image_path" yaml:"image_path"`
	// Delay is the base inter-message wait the jitter is applied to;
	// MinDelay is the hard floor no jittered wait may go below.
	Delay       time.Duration `mapstructure:"delay" yaml:"delay"`
	MinDelay    time.Duration `mapstructure:"min_delay" yaml:"min_delay"`
	StepTimeout time.Duration `mapstructure:"step_timeout" yaml:"step_timeout"`
	Settle      SettleConfig  `mapstructure:"settle" yaml:"settle"`
}

// SheetsConfig addresses the Google Sheets contact source.
type SheetsConfig struct {
	SpreadsheetID   string  `mapstructure:"spreadsheet_id" yaml:"spreadsheet_id"`
	SheetName       string  `mapstructure:"sheet_name" yaml:"sheet_name"`
	CredentialsFile string  `mapstructure:"credentials_file" yaml:"credentials_file"`
	TokenFile       string  `mapstructure:"token_file" yaml:"token_file"`
	RateLimit       float64 `mapstructure:"rate_limit" yaml:"rate_limit"`
}

// RunLogConfig locates the per-run JSON artifact.
type RunLogConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// HistoryConfig locates the SQLite run-history database.
type HistoryConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// SetDefaults initializes default values for all configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "wasend")
	v.SetDefault("logger.log_file", "wasend.log")
	v.SetDefault("logger.max_size", 50)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Browser --
	v.SetDefault("browser.debug_port", 9222)
	v.SetDefault("browser.executable", defaultChromePath())
	v.SetDefault("browser.profile_dir", filepath.Join(".tmp", "chrome-whatsapp"))
	v.SetDefault("browser.launch_timeout", 15*time.Second)

	// -- Send --
	v.SetDefault("send.daily_limit", 45)
	v.SetDefault("send.template", "Hi {first_name}!")
	v.SetDefault("send.image_path", "")
	v.SetDefault("send.delay", 20*time.Second)
	v.SetDefault("send.min_delay", 20*time.Second)
	v.SetDefault("send.step_timeout", 30*time.Second)
	v.SetDefault("send.settle.after_chat_load", 1*time.Second)
	v.SetDefault("send.settle.after_menu_click", 1*time.Second)
	v.SetDefault("send.settle.after_file_inject", 2*time.Second)
	v.SetDefault("send.settle.before_caption", 4*time.Second)
	v.SetDefault("send.settle.after_send", 5*time.Second)

	// -- Sheets --
	v.SetDefault("sheets.spreadsheet_id", "")
	v.SetDefault("sheets.sheet_name", "Good Version")
	v.SetDefault("sheets.credentials_file", "credentials.json")
	v.SetDefault("sheets.token_file", "token.json")
	v.SetDefault("sheets.rate_limit", 1.0)

	// -- Artifacts --
	v.SetDefault("runlog.path", filepath.Join(".tmp", "send_log.json"))
	v.SetDefault("history.path", filepath.Join(".tmp", "wasend.db"))
}

// bindLegacyEnv wires the environment variable names carried over from the
// original deployment, so an existing .env keeps working alongside the
// WASEND_* names viper derives automatically.
func bindLegacyEnv(v *viper.Viper) {
	v.BindEnv("send.daily_limit", "WASEND_SEND_DAILY_LIMIT", "DAILY_MESSAGE_LIMIT")
	v.BindEnv("send.template", "WASEND_SEND_TEMPLATE", "MESSAGE_TEMPLATE")
	v.BindEnv("send.image_path", "WASEND_SEND_IMAGE_PATH", "IMAGE_PATH")
	v.BindEnv("browser.executable", "WASEND_BROWSER_EXECUTABLE", "CHROME_PATH")
	v.BindEnv("browser.debug_port", "WASEND_BROWSER_DEBUG_PORT", "CHROME_DEBUG_PORT")
	v.BindEnv("sheets.spreadsheet_id", "WASEND_SHEETS_SPREADSHEET_ID", "GOOGLE_SHEET_ID")
	v.BindEnv("sheets.sheet_name", "WASEND_SHEETS_SHEET_NAME", "SHEET_NAME")
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	bindLegacyEnv(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.Browser.DebugPort <= 0 || c.Browser.DebugPort > 65535 {
		return fmt.Errorf("browser.debug_port must be a valid TCP port")
	}
	if c.Browser.LaunchTimeout <= 0 {
		return fmt.Errorf("browser.launch_timeout must be a positive duration")
	}
	if c.Send.DailyLimit <= 0 {
		return fmt.Errorf("send.daily_limit must be a positive integer")
	}
	if c.Send.StepTimeout <= 0 {
		return fmt.Errorf("send.step_timeout must be a positive duration")
	}
	if c.Send.Delay < 0 {
		return fmt.Errorf("send.delay must not be negative")
	}
	if c.Send.MinDelay < 0 {
		return fmt.Errorf("send.min_delay must not be negative")
	}
	if c.Sheets.RateLimit <= 0 {
		return fmt.Errorf("sheets.rate_limit must be positive")
	}
	return nil
}

// defaultChromePath picks a conventional install location per platform; the
// connector only uses it when no executable override is configured and the
// debug port is not already reachable.
func defaultChromePath() string {
	candidates := []string{
		`C:\Program Files\Google\Chrome\Application\chrome.exe`,
		"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
		"/usr/bin/google-chrome",
		"/usr/bin/chromium",
	}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return "google-chrome"
}
