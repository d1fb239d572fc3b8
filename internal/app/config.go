package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	log "github.com/sirupsen/logrus"
)

// StorageDriver определяет, где коннектор хранит платежи и журнал публикаций.
type StorageDriver string

const (
	StorageDriverMemory   StorageDriver = "memory"
	StorageDriverPostgres StorageDriver = "postgres"
)

const envPrefix = "CONNECTOR"

// Config описывает настройки запуска коннектора.
// Переменные окружения имеют префикс CONNECTOR_, например CONNECTOR_GRPC_ADDR.
type Config struct {
	GRPCAddr    string `envconfig:"GRPC_ADDR"`
	MetricsAddr string `envconfig:"METRICS_ADDR"`
	LogLevel    string `envconfig:"LOG_LEVEL"`

	StorageDriver       StorageDriver `envconfig:"STORAGE_DRIVER"`
	PostgresDSN         string        `envconfig:"POSTGRES_DSN"`
	PostgresAutoMigrate bool          `envconfig:"POSTGRES_AUTO_MIGRATE"`

	// KafkaBrokers — список брокеров через запятую. Пустое значение включает LoggingPublisher.
	KafkaBrokers  string `envconfig:"KAFKA_BROKERS"`
	KafkaClientID string `envconfig:"KAFKA_CLIENT_ID"`
	EventsTopic   string `envconfig:"EVENTS_TOPIC"`
	DLQTopic      string `envconfig:"DLQ_TOPIC"`

	// RedisAddr включает распределённую блокировку прогонов сверки.
	RedisAddr     string `envconfig:"REDIS_ADDR"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB"`

	LedgerURL        string        `envconfig:"LEDGER_URL"`
	LedgerTimeout    time.Duration `envconfig:"LEDGER_TIMEOUT"`
	LedgerMaxRetries uint64        `envconfig:"LEDGER_MAX_RETRIES"`

	EmitterWorkers     int           `envconfig:"EMITTER_WORKERS"`
	EmitterMaxAttempts int           `envconfig:"EMITTER_MAX_ATTEMPTS"`
	EmitterPollTimeout time.Duration `envconfig:"EMITTER_POLL_TIMEOUT"`
	QueueBacklogWarn   int           `envconfig:"QUEUE_BACKLOG_WARN"`
	QueueBacklogMax    int           `envconfig:"QUEUE_BACKLOG_MAX"`

	SweeperInterval    time.Duration `envconfig:"SWEEPER_INTERVAL"`
	SweeperGracePeriod time.Duration `envconfig:"SWEEPER_GRACE_PERIOD"`
	SweeperBatchSize   int           `envconfig:"SWEEPER_BATCH_SIZE"`
	SweeperRetryDelay  time.Duration `envconfig:"SWEEPER_RETRY_DELAY"`

	// ParityInterval = 0 отключает периодическую сверку; разовый прогон доступен через cmd/parity-check.
	ParityInterval   time.Duration `envconfig:"PARITY_INTERVAL"`
	ParityBatchSize  int           `envconfig:"PARITY_BATCH_SIZE"`
	ParityRetryDelay time.Duration `envconfig:"PARITY_RETRY_DELAY"`
	ParityLockTTL    time.Duration `envconfig:"PARITY_LOCK_TTL"`

	TracingEndpoint string `envconfig:"TRACING_ENDPOINT"`
	TracingInsecure bool   `envconfig:"TRACING_INSECURE"`
	ServiceName     string `envconfig:"SERVICE_NAME"`
}

// DefaultConfig возвращает настройки для локального запуска без внешних зависимостей.
func DefaultConfig() Config {
	return Config{
		GRPCAddr:    ":50051",
		MetricsAddr: ":9090",
		LogLevel:    "info",

		StorageDriver:       StorageDriverMemory,
		PostgresAutoMigrate: true,

		KafkaClientID: "payconnector",
		EventsTopic:   "connector.payment.events",
		DLQTopic:      "connector.events.dlq",

		LedgerURL:        "http://localhost:10700",
		LedgerTimeout:    10 * time.Second,
		LedgerMaxRetries: 3,

		EmitterWorkers:     1,
		EmitterMaxAttempts: 10,
		EmitterPollTimeout: time.Second,
		QueueBacklogWarn:   1000,
		QueueBacklogMax:    10000,

		SweeperInterval:    5 * time.Minute,
		SweeperGracePeriod: 10 * time.Minute,
		SweeperBatchSize:   100,
		SweeperRetryDelay:  30 * time.Minute,

		ParityBatchSize:  100,
		ParityRetryDelay: 30 * time.Minute,
		ParityLockTTL:    30 * time.Minute,

		ServiceName: "payconnector",
	}
}

// LoadConfig читает переменные окружения поверх DefaultConfig и проверяет результат.
func LoadConfig() (Config, error) {
	cfg := DefaultConfig()
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("load config from env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate проверяет согласованность настроек.
func (c Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.GRPCAddr) == "" {
		errs = append(errs, errors.New("grpc address is required"))
	}
	if strings.TrimSpace(c.MetricsAddr) == "" {
		errs = append(errs, errors.New("metrics address is required"))
	}
	if c.LogLevel != "" {
		if _, err := log.ParseLevel(c.LogLevel); err != nil {
			errs = append(errs, fmt.Errorf("log level: %w", err))
		}
	}

	switch c.StorageDriver {
	case StorageDriverMemory:
	case StorageDriverPostgres:
		if strings.TrimSpace(c.PostgresDSN) == "" {
			errs = append(errs, errors.New("postgres dsn is required for postgres storage driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported storage driver %q", c.StorageDriver))
	}

	if strings.TrimSpace(c.LedgerURL) == "" {
		errs = append(errs, errors.New("ledger url is required"))
	}
	if c.EmitterWorkers <= 0 {
		errs = append(errs, errors.New("emitter workers must be > 0"))
	}
	if c.EmitterMaxAttempts <= 0 {
		errs = append(errs, errors.New("emitter max attempts must be > 0"))
	}
	if c.QueueBacklogMax > 0 && c.QueueBacklogWarn > c.QueueBacklogMax {
		errs = append(errs, errors.New("queue backlog warn threshold must not exceed max"))
	}
	if c.SweeperInterval <= 0 {
		errs = append(errs, errors.New("sweeper interval must be > 0"))
	}
	if c.ParityInterval < 0 {
		errs = append(errs, errors.New("parity interval must be >= 0"))
	}

	return errors.Join(errs...)
}

// splitBrokers разбирает список брокеров через запятую, отбрасывая пустые элементы и пробелы.
func splitBrokers(raw string) []string {
	var brokers []string
	for _, broker := range strings.Split(raw, ",") {
		if broker = strings.TrimSpace(broker); broker != "" {
			brokers = append(brokers, broker)
		}
	}
	return brokers
}
