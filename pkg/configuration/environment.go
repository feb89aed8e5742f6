package configuration

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/iota-uz/utils/fs"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/tenantkit/pkg/logging"
)

const Production = "production"

const (
	RLSDisabled = "disabled"
	RLSEnforce  = "enforce"
)

var singleton = sync.OnceValue(func() *Configuration {
	c := &Configuration{}
	if err := c.load([]string{".env", ".env.local"}); err != nil {
		c.Unload()
		panic(err)
	}
	return c
})

// LoadEnv loads the env files found in the working directory or, failing
// that, in the nearest parent holding a go.mod. It returns how many files
// were loaded.
func LoadEnv(envFiles []string) (int, error) {
	existing := existingFiles(envFiles, "")
	if len(existing) == 0 {
		if root := moduleRoot(); root != "" {
			existing = existingFiles(envFiles, root)
		}
	}
	if len(existing) == 0 {
		return 0, nil
	}
	return len(existing), godotenv.Load(existing...)
}

func existingFiles(files []string, dir string) []string {
	out := make([]string, 0, len(files))
	for _, file := range files {
		if dir != "" {
			file = filepath.Join(dir, file)
		}
		if fs.FileExists(file) {
			out = append(out, file)
		}
	}
	return out
}

func moduleRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		if fs.FileExists(filepath.Join(dir, "go.mod")) {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

type DatabaseOptions struct {
	Opts            string        `env:"-"`
	Name            string        `env:"DB_NAME" envDefault:"tenantkit"`
	Host            string        `env:"DB_HOST" envDefault:"localhost"`
	Port            string        `env:"DB_PORT" envDefault:"5432"`
	User            string        `env:"DB_USER" envDefault:"postgres"`
	Password        string        `env:"DB_PASSWORD" envDefault:"postgres"`
	MaxConns        int32         `env:"DB_MAX_CONNS" envDefault:"10"`
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" envDefault:"1h"`
}

func (d *DatabaseOptions) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s dbname=%s password=%s sslmode=disable",
		d.Host, d.Port, d.User, d.Name, d.Password,
	)
}

type LokiOptions struct {
	URL     string `env:"LOKI_URL"`
	AppName string `env:"LOKI_APP_NAME" envDefault:"tenantkit"`
	LogPath string `env:"LOG_PATH" envDefault:"./logs/app.log"`
}

type OpenTelemetryOptions struct {
	Enabled     bool   `env:"OTEL_ENABLED" envDefault:"false"`
	TempoURL    string `env:"OTEL_TEMPO_URL" envDefault:"localhost:4318"`
	ServiceName string `env:"OTEL_SERVICE_NAME" envDefault:"tenantkit"`
}

type PrometheusOptions struct {
	Enabled bool   `env:"PROMETHEUS_METRICS_ENABLED" envDefault:"false"`
	Path    string `env:"PROMETHEUS_METRICS_PATH" envDefault:"/debug/prometheus"`
}

type OutboxOptions struct {
	RelayEnabled         bool          `env:"OUTBOX_RELAY_ENABLED" envDefault:"true"`
	RelayTables          string        `env:"OUTBOX_RELAY_TABLES" envDefault:"projects_outbox"`
	RelayPollInterval    time.Duration `env:"OUTBOX_RELAY_POLL_INTERVAL" envDefault:"1s"`
	RelayBatchSize       int           `env:"OUTBOX_RELAY_BATCH_SIZE" envDefault:"100"`
	RelayLockTTL         time.Duration `env:"OUTBOX_RELAY_LOCK_TTL" envDefault:"60s"`
	RelayMaxAttempts     int           `env:"OUTBOX_RELAY_MAX_ATTEMPTS" envDefault:"25"`
	RelaySingleActive    bool          `env:"OUTBOX_RELAY_SINGLE_ACTIVE" envDefault:"true"`
	RelayDispatchTimeout time.Duration `env:"OUTBOX_RELAY_DISPATCH_TIMEOUT" envDefault:"30s"`
	// RelaySink is where relayed events go: eventbus or kafka.
	RelaySink string `env:"OUTBOX_RELAY_SINK" envDefault:"eventbus"`

	LastErrorMaxBytes int `env:"OUTBOX_LAST_ERROR_MAX_BYTES" envDefault:"2048"`

	CleanerEnabled       bool          `env:"OUTBOX_CLEANER_ENABLED" envDefault:"true"`
	CleanerInterval      time.Duration `env:"OUTBOX_CLEANER_INTERVAL" envDefault:"1m"`
	CleanerRetention     time.Duration `env:"OUTBOX_CLEANER_RETENTION" envDefault:"168h"`
	CleanerDeadRetention time.Duration `env:"OUTBOX_CLEANER_DEAD_RETENTION" envDefault:"0"`
	CleanerDeadAttempts  int           `env:"OUTBOX_CLEANER_DEAD_ATTEMPTS" envDefault:"25"`
}

type KafkaOptions struct {
	Brokers []string `env:"KAFKA_BROKERS" envSeparator:"," envDefault:"localhost:9092"`
	Topic   string   `env:"KAFKA_TOPIC" envDefault:"tenant-events"`
}

type RedisOptions struct {
	URL          string        `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`
	TenantTTL    time.Duration `env:"REDIS_TENANT_TTL" envDefault:"5m"`
	CacheEnabled bool          `env:"REDIS_CACHE_ENABLED" envDefault:"false"`
}

type RateLimitOptions struct {
	Enabled bool `env:"RATE_LIMIT_ENABLED" envDefault:"true"`
	// TenantRPS is the request quota per tenant per second.
	TenantRPS int    `env:"RATE_LIMIT_TENANT_RPS" envDefault:"100"`
	Storage   string `env:"RATE_LIMIT_STORAGE" envDefault:"memory"` // memory or redis
}

// Validate checks the rate limit configuration for errors
func (r *RateLimitOptions) Validate() error {
	if r.TenantRPS < 0 {
		return fmt.Errorf("rate limit TenantRPS must be non-negative, got %d", r.TenantRPS)
	}
	if r.Storage != "memory" && r.Storage != "redis" {
		return fmt.Errorf("rate limit Storage must be 'memory' or 'redis', got '%s'", r.Storage)
	}
	return nil
}

type CORSOptions struct {
	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000"`
}

type RLSOptions struct {
	// Enforce is disabled or enforce.
	Enforce string `env:"RLS_ENFORCE" envDefault:"disabled"`
	Setting string `env:"RLS_SETTING" envDefault:"app.current_tenant"`
}

type Configuration struct {
	Database      DatabaseOptions
	Loki          LokiOptions
	OpenTelemetry OpenTelemetryOptions
	Prometheus    PrometheusOptions
	Outbox        OutboxOptions
	Kafka         KafkaOptions
	Redis         RedisOptions
	RLS           RLSOptions
	RateLimit     RateLimitOptions
	CORS          CORSOptions

	// DurableEvents stages committed events in the outbox instead of
	// dispatching them in-process.
	DurableEvents bool `env:"DURABLE_EVENTS" envDefault:"false"`
	// TenantHostSuffix enables tenant resolution from <slug>.<suffix> hosts.
	TenantHostSuffix string `env:"TENANT_HOST_SUFFIX" envDefault:""`

	ServerPort       int    `env:"PORT" envDefault:"3200"`
	GoAppEnvironment string `env:"GO_APP_ENV" envDefault:"development"`
	SocketAddress    string `env:"-"`
	PageSize         int    `env:"PAGE_SIZE" envDefault:"25"`
	MaxPageSize      int    `env:"MAX_PAGE_SIZE" envDefault:"100"`
	LogLevel         string `env:"LOG_LEVEL" envDefault:"error"`
	// Requests without this header get a generated uuidv4.
	RequestIDHeader string `env:"REQUEST_ID_HEADER" envDefault:"X-Request-ID"`
	RealIPHeader    string `env:"REAL_IP_HEADER" envDefault:"X-Real-IP"`

	logFile *os.File
	logger  *logrus.Logger
}

func (c *Configuration) Logger() *logrus.Logger {
	return c.logger
}

func (c *Configuration) LogrusLogLevel() logrus.Level {
	switch c.LogLevel {
	case "silent":
		return logrus.PanicLevel
	case "error":
		return logrus.ErrorLevel
	case "warn":
		return logrus.WarnLevel
	case "info":
		return logrus.InfoLevel
	case "debug":
		return logrus.DebugLevel
	default:
		return logrus.ErrorLevel
	}
}

func Use() *Configuration {
	return singleton()
}

// Load builds a configuration outside the process-wide singleton, for
// commands and tests.
func Load(envFiles ...string) (*Configuration, error) {
	c := &Configuration{}
	if err := c.load(envFiles); err != nil {
		c.Unload()
		return nil, err
	}
	return c, nil
}

func (c *Configuration) load(envFiles []string) error {
	n, err := LoadEnv(envFiles)
	if err != nil {
		return err
	}
	if n == 0 && len(envFiles) > 0 {
		wd, _ := os.Getwd()
		log.Println("No .env files found. Tried:")
		for _, file := range envFiles {
			log.Println(filepath.Join(wd, file))
		}
	}
	if err := env.Parse(c); err != nil {
		return err
	}
	if err := c.validate(); err != nil {
		return err
	}

	f, logger, err := logging.FileLogger(c.LogrusLogLevel(), c.Loki.LogPath)
	if err != nil {
		return err
	}
	c.logFile = f
	c.logger = logger

	c.Database.Opts = c.Database.ConnectionString()
	if c.GoAppEnvironment == Production {
		c.SocketAddress = fmt.Sprintf(":%d", c.ServerPort)
	} else {
		c.SocketAddress = fmt.Sprintf("localhost:%d", c.ServerPort)
	}
	return nil
}

func (c *Configuration) validate() error {
	if err := c.validateRLS(); err != nil {
		return err
	}
	switch strings.ToLower(strings.TrimSpace(c.Outbox.RelaySink)) {
	case "eventbus", "kafka":
		c.Outbox.RelaySink = strings.ToLower(strings.TrimSpace(c.Outbox.RelaySink))
	default:
		return fmt.Errorf("invalid OUTBOX_RELAY_SINK=%q (expected eventbus|kafka)", c.Outbox.RelaySink)
	}
	if c.Outbox.RelaySink == "kafka" && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("OUTBOX_RELAY_SINK=kafka requires KAFKA_BROKERS")
	}
	if err := c.RateLimit.Validate(); err != nil {
		return err
	}
	if c.PageSize <= 0 || c.PageSize > c.MaxPageSize {
		return fmt.Errorf("PAGE_SIZE must be in 1..%d, got %d", c.MaxPageSize, c.PageSize)
	}
	return nil
}

func (c *Configuration) validateRLS() error {
	mode := strings.ToLower(strings.TrimSpace(c.RLS.Enforce))
	if mode == "" {
		mode = RLSDisabled
	}
	switch mode {
	case RLSDisabled, RLSEnforce:
	default:
		return fmt.Errorf("invalid RLS_ENFORCE=%q (expected disabled|enforce)", c.RLS.Enforce)
	}

	if mode == RLSEnforce && strings.EqualFold(strings.TrimSpace(c.Database.User), "postgres") {
		return fmt.Errorf("RLS_ENFORCE=enforce requires a non-superuser DB_USER (postgres will bypass RLS)")
	}
	if strings.TrimSpace(c.RLS.Setting) == "" || !strings.Contains(c.RLS.Setting, ".") {
		return fmt.Errorf("invalid RLS_SETTING=%q (expected a dotted custom setting name)", c.RLS.Setting)
	}

	c.RLS.Enforce = mode
	return nil
}

func (c *Configuration) RLSEnforced() bool {
	return c.RLS.Enforce == RLSEnforce
}

// Unload closes the log file.
func (c *Configuration) Unload() {
	if c.logFile != nil {
		if err := c.logFile.Close(); err != nil {
			log.Printf("Failed to close log file: %v", err)
		}
	}
}
