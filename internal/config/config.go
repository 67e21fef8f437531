package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	App       AppConfig       `yaml:"app"`
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Storage   StorageConfig   `yaml:"storage"`
	ERP       ERPConfig       `yaml:"erp"`
	Gateway   GatewayConfig   `yaml:"gateway"`
	Connector ConnectorConfig `yaml:"connector"`
	Posting   PostingConfig   `yaml:"posting"`
	Sync      SyncConfig      `yaml:"sync"`
	Workers   WorkersConfig   `yaml:"workers"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type AppConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
	Env     string `yaml:"env"`
}

type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Host               string        `yaml:"host"`
	Port               int           `yaml:"port"`
	User               string        `yaml:"user"`
	Password           string        `yaml:"password"`
	Name               string        `yaml:"name"`
	Charset            string        `yaml:"charset"`
	ParseTime          bool          `yaml:"parse_time"`
	Loc                string        `yaml:"loc"`
	MaxConnections     int           `yaml:"max_connections"`
	MaxIdleConnections int           `yaml:"max_idle_connections"`
	ConnectionLifetime time.Duration `yaml:"connection_lifetime"`
}

type RedisConfig struct {
	Host              string `yaml:"host"`
	Port              int    `yaml:"port"`
	Password          string `yaml:"password"`
	DB                int    `yaml:"db"`
	PoolSize          int    `yaml:"pool_size"`
	NotificationQueue string `yaml:"notification_queue"`
	DLQSuffix         string `yaml:"dlq_suffix"`
}

type StorageConfig struct {
	S3 S3Config `yaml:"s3"`
}

type S3Config struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// ERPConfig covers the SAP Service Layer document API and the
// business-partner read endpoint used by the bulk sync.
type ERPConfig struct {
	BaseURL          string        `yaml:"base_url"`
	CompanyDB        string        `yaml:"company_db"`
	Username         string        `yaml:"username"`
	Password         string        `yaml:"password"`
	SessionLifetime  time.Duration `yaml:"session_lifetime"`
	Timeout          time.Duration `yaml:"timeout"`
	PartnersPageSize int           `yaml:"partners_page_size"`
	// Transfer account per (notification source, payment method) pair,
	// keyed as "<source>:<method>", e.g. "sip:qr".
	TransferAccounts       map[string]string `yaml:"transfer_accounts"`
	DefaultTransferAccount string            `yaml:"default_transfer_account"`
}

type GatewayConfig struct {
	BaseURL           string        `yaml:"base_url"`
	AuthEndpoint      string        `yaml:"auth_endpoint"`
	QREndpoint        string        `yaml:"qr_endpoint"`
	AccountID         string        `yaml:"account_id"`
	AccountSecret     string        `yaml:"account_secret"`
	Timeout           time.Duration `yaml:"timeout"`
	DestinationAccBOB string        `yaml:"destination_account_bob"`
	DestinationAccUSD string        `yaml:"destination_account_usd"`
}

type ConnectorConfig struct {
	BaseURL         string        `yaml:"base_url"`
	PaymentEndpoint string        `yaml:"payment_endpoint"`
	APIKey          string        `yaml:"api_key"`
	Timeout         time.Duration `yaml:"timeout"`
}

// PostingConfig selects which backend receives posting requests:
// "direct" for the ERP document client, "connector" for the proxy.
type PostingConfig struct {
	Backend string `yaml:"backend"`
}

type SyncConfig struct {
	BatchSize    int           `yaml:"batch_size"`
	BatchPause   time.Duration `yaml:"batch_pause"`
	JobRetention time.Duration `yaml:"job_retention"`
	CleanupEvery time.Duration `yaml:"cleanup_every"`
}

type WorkersConfig struct {
	Notification NotificationWorkerConfig `yaml:"notification"`
}

type NotificationWorkerConfig struct {
	Count int `yaml:"count"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func Load() (*Config, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	config.applyDefaults()

	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Sync.BatchSize <= 0 {
		c.Sync.BatchSize = 50
	}
	if c.Sync.BatchPause <= 0 {
		c.Sync.BatchPause = 100 * time.Millisecond
	}
	if c.Sync.JobRetention <= 0 {
		c.Sync.JobRetention = time.Hour
	}
	if c.Sync.CleanupEvery <= 0 {
		c.Sync.CleanupEvery = 10 * time.Minute
	}
	if c.ERP.SessionLifetime <= 0 {
		c.ERP.SessionLifetime = 30 * time.Minute
	}
	if c.ERP.Timeout <= 0 {
		c.ERP.Timeout = 30 * time.Second
	}
	if c.ERP.PartnersPageSize <= 0 {
		c.ERP.PartnersPageSize = 100
	}
	if c.Gateway.Timeout <= 0 {
		c.Gateway.Timeout = 30 * time.Second
	}
	if c.Connector.Timeout <= 0 {
		c.Connector.Timeout = 30 * time.Second
	}
	if c.Workers.Notification.Count <= 0 {
		c.Workers.Notification.Count = 4
	}
	if c.Posting.Backend == "" {
		c.Posting.Backend = "direct"
	}
}

// MySQL DSN format: [username[:password]@][protocol[(address)]]/dbname[?param1=value1&...&paramN=valueN]
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=%t&loc=%s",
		c.Database.User, c.Database.Password, c.Database.Host, c.Database.Port,
		c.Database.Name, c.Database.Charset, c.Database.ParseTime, c.Database.Loc)
}

func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

// TransferAccount resolves the ledger account for a notification source and
// payment method pair, falling back to the configured default.
func (c *Config) TransferAccount(source, method string) string {
	if acc, ok := c.ERP.TransferAccounts[source+":"+method]; ok {
		return acc
	}
	return c.ERP.DefaultTransferAccount
}
