package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

type Config struct {
	Environment string           `json:"environment"`
	Database    DatabaseConfig   `json:"database"`
	Server      ServerConfig     `json:"server"`
	Stripe      StripeConfig     `json:"stripe"`
	Supplier    SupplierConfig   `json:"supplier"`
	Documents   DocumentsConfig  `json:"documents"`
	Automation  AutomationConfig `json:"automation"`
}

type DatabaseConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	DBName   string `json:"dbname"`
	SSLMode  string `json:"sslmode"`
}

type ServerConfig struct {
	Port         string        `json:"port"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	IdleTimeout  time.Duration `json:"idle_timeout"`
}

type StripeConfig struct {
	WebhookSecret string `json:"webhook_secret"`
}

type SupplierConfig struct {
	BaseURL        string `json:"base_url"`
	APIKey         string `json:"api_key"`
	CallbackSecret string `json:"callback_secret"`
}

type DocumentsConfig struct {
	BaseURL string `json:"base_url"`
}

type AutomationConfig struct {
	CronSecret   string        `json:"cron_secret"`
	CronSchedule string        `json:"cron_schedule"`
	ScanLimit    int           `json:"scan_limit"`
	ProcessLimit int           `json:"process_limit"`
	ExecTimeout  time.Duration `json:"exec_timeout"`
	StaleLockAge time.Duration `json:"stale_lock_age"`
}

func LoadConfig() (*Config, error) {
	config := &Config{}

	env := os.Getenv("ENVIRONMENT")
	if env == "" {
		env = "development"
	}
	config.Environment = env

	configDir, err := filepath.Abs("config")
	if err != nil {
		return nil, err
	}

	configPath := filepath.Join(configDir, "config.json")

	if _, err := os.Stat(configPath); err == nil {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %v", err)
		}

		if err := json.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %v", err)
		}
	}

	config.loadFromEnv()
	config.setDefaults()

	return config, nil
}

func (c *Config) loadFromEnv() {
	if host := os.Getenv("DB_HOST"); host != "" {
		c.Database.Host = host
	}
	if port := os.Getenv("DB_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Database.Port = p
		}
	}
	if user := os.Getenv("DB_USER"); user != "" {
		c.Database.User = user
	}
	if password := os.Getenv("DB_PASSWORD"); password != "" {
		c.Database.Password = password
	}
	if dbname := os.Getenv("DB_NAME"); dbname != "" {
		c.Database.DBName = dbname
	}
	if sslmode := os.Getenv("DB_SSLMODE"); sslmode != "" {
		c.Database.SSLMode = sslmode
	}

	if serverPort := os.Getenv("SERVER_PORT"); serverPort != "" {
		c.Server.Port = serverPort
	}

	if stripeWebhook := os.Getenv("STRIPE_WEBHOOK_SECRET"); stripeWebhook != "" {
		c.Stripe.WebhookSecret = stripeWebhook
	}

	if supplierURL := os.Getenv("SUPPLIER_BASE_URL"); supplierURL != "" {
		c.Supplier.BaseURL = supplierURL
	}
	if supplierKey := os.Getenv("SUPPLIER_API_KEY"); supplierKey != "" {
		c.Supplier.APIKey = supplierKey
	}
	if callbackSecret := os.Getenv("SUPPLIER_CALLBACK_SECRET"); callbackSecret != "" {
		c.Supplier.CallbackSecret = callbackSecret
	}

	if documentsURL := os.Getenv("DOCUMENTS_BASE_URL"); documentsURL != "" {
		c.Documents.BaseURL = documentsURL
	}

	if cronSecret := os.Getenv("CRON_SECRET"); cronSecret != "" {
		c.Automation.CronSecret = cronSecret
	}
}

func (c *Config) setDefaults() {
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 15 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 15 * time.Second
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = 60 * time.Second
	}
	if c.Automation.CronSchedule == "" {
		c.Automation.CronSchedule = "*/5 * * * *"
	}
	if c.Automation.ScanLimit == 0 {
		c.Automation.ScanLimit = 200
	}
	if c.Automation.ProcessLimit == 0 {
		c.Automation.ProcessLimit = 10
	}
	if c.Automation.ExecTimeout == 0 {
		c.Automation.ExecTimeout = 45 * time.Second
	}
	if c.Automation.StaleLockAge == 0 {
		c.Automation.StaleLockAge = 15 * time.Minute
	}
}

func (c *Config) Validate() error {
	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}
	if c.Database.Port == 0 {
		return fmt.Errorf("database port is required")
	}
	if c.Database.User == "" {
		return fmt.Errorf("database user is required")
	}
	if c.Database.DBName == "" {
		return fmt.Errorf("database name is required")
	}
	if c.Stripe.WebhookSecret == "" {
		return fmt.Errorf("stripe webhook secret is required")
	}
	if c.Supplier.BaseURL == "" {
		return fmt.Errorf("supplier base URL is required")
	}
	if c.Supplier.CallbackSecret == "" {
		return fmt.Errorf("supplier callback secret is required")
	}
	if c.Documents.BaseURL == "" {
		return fmt.Errorf("documents base URL is required")
	}
	if c.Automation.CronSecret == "" {
		return fmt.Errorf("cron secret is required")
	}
	return nil
}

func (c *Config) GetDatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.DBName,
		c.Database.SSLMode,
	)
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
