package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Database *dbConfig
	Service  *svcConfig
}

type dbConfig struct {
	Type     string `envconfig:"DB_TYPE" default:"pgsql"`
	Hostname string `envconfig:"DB_HOST" default:"localhost"`
	Port     int    `envconfig:"DB_PORT" default:"5432"`
	Name     string `envconfig:"DB_NAME" default:"retrato"`
	User     string `envconfig:"DB_USER" default:"admin"`
	Password string `envconfig:"DB_PASS" default:"adminpass"`
}

type svcConfig struct {
	Address         string `envconfig:"RETRATO_ADDRESS" default:":3443"`
	MetricsAddress  string `envconfig:"RETRATO_METRICS_ADDRESS" default:":8080"`
	BaseUrl         string `envconfig:"RETRATO_BASE_URL" default:"https://localhost:3443"`
	LogLevel        string `envconfig:"RETRATO_LOG_LEVEL" default:"info"`
	LogFormat       string `envconfig:"RETRATO_LOG_FORMAT" default:"console"`
	MigrationFolder string `envconfig:"RETRATO_MIGRATIONS_FOLDER" default:"migrations"`
	RateLimit       rateLimitConfig
	Pipeline        pipelineConfig
	Generation      generationConfig
	Storage         storageConfig
}

type rateLimitConfig struct {
	Window          time.Duration `envconfig:"RETRATO_RATE_LIMIT_WINDOW" default:"1h"`
	MaxRequests     int           `envconfig:"RETRATO_RATE_LIMIT_MAX_REQUESTS" default:"10"`
	SweepInterval   time.Duration `envconfig:"RETRATO_RATE_LIMIT_SWEEP_INTERVAL" default:"5m"`
	TrustedNetworks []string      `envconfig:"RETRATO_RATE_LIMIT_TRUSTED_NETWORKS" default:"127.0.0.0/8,::1/128"`
}

type pipelineConfig struct {
	Deadline         time.Duration `envconfig:"RETRATO_PIPELINE_DEADLINE" default:"90s"`
	MaxRetries       int           `envconfig:"RETRATO_PIPELINE_MAX_RETRIES" default:"3"`
	RetryBackoffBase time.Duration `envconfig:"RETRATO_PIPELINE_RETRY_BACKOFF_BASE" default:"1s"`
	AttemptTimeout   time.Duration `envconfig:"RETRATO_PIPELINE_ATTEMPT_TIMEOUT" default:"30s"`
}

type generationConfig struct {
	URL    string `envconfig:"RETRATO_GENERATION_URL" default:"http://localhost:8100"`
	APIKey string `envconfig:"RETRATO_GENERATION_API_KEY" default:""`
	Model  string `envconfig:"RETRATO_GENERATION_MODEL" default:"photon-v2"`
}

type storageConfig struct {
	Endpoint     string        `envconfig:"RETRATO_STORAGE_ENDPOINT" default:"localhost:9000"`
	Bucket       string        `envconfig:"RETRATO_STORAGE_BUCKET" default:"retrato-media"`
	AccessKey    string        `envconfig:"RETRATO_STORAGE_ACCESS_KEY" default:""`
	SecretKey    string        `envconfig:"RETRATO_STORAGE_SECRET_KEY" default:""`
	UseSSL       bool          `envconfig:"RETRATO_STORAGE_USE_SSL" default:"false"`
	ResultURLTTL time.Duration `envconfig:"RETRATO_STORAGE_RESULT_URL_TTL" default:"15m"`
}

func New() (*Config, error) {
	c := new(Config)
	if err := envconfig.Process("", c); err != nil {
		return nil, err
	}
	return c, nil
}

// NewDefault returns a config built from defaults only, backed by a
// throwaway sqlite database. Meant to be used by tests.
func NewDefault() (*Config, error) {
	c := new(Config)
	if err := envconfig.Process("", c); err != nil {
		return nil, err
	}
	c.Database.Type = "sqlite"
	c.Database.Name = filepath.Join(os.TempDir(), fmt.Sprintf("retrato-%d.db", time.Now().UnixNano()))
	return c, nil
}
