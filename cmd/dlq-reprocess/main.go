package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/payconnector/internal/domain"
	"github.com/vladislavdragonenkov/payconnector/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/payconnector/internal/service/emitter"
	"github.com/vladislavdragonenkov/payconnector/internal/storage/postgres"
)

const (
	defaultReprocessLimit = 100
	defaultIdleTimeout    = 2 * time.Second
)

type config struct {
	brokers     []string
	sourceTopic string
	dsn         string
	limit       int
	execute     bool
	fromNewest  bool
	idleTimeout time.Duration
}

// candidate — запись DLQ, которую можно вернуть в работу.
type candidate struct {
	letter emitter.DeadLetter
	key    domain.EmittedEventKey
}

type offsetClient interface {
	GetOffset(topic string, partition int32, time int64) (int64, error)
	Partitions(topic string) ([]int32, error)
	Close() error
}

type partitionConsumer interface {
	Messages() <-chan *sarama.ConsumerMessage
	Errors() <-chan *sarama.ConsumerError
	Close() error
}

type partitionConsumerSource interface {
	ConsumePartition(topic string, partition int32, offset int64) (partitionConsumer, error)
	Close() error
}

// emittedJournal — журнал публикаций, в котором переход возвращается в работу sweeper.
type emittedJournal interface {
	RecordOffered(ctx context.Context, key domain.EmittedEventKey, doNotRetryBefore *time.Time) error
	Close() error
}

type saramaConsumerAdapter struct {
	consumer sarama.Consumer
}

func (a saramaConsumerAdapter) ConsumePartition(topic string, partition int32, offset int64) (partitionConsumer, error) {
	pc, err := a.consumer.ConsumePartition(topic, partition, offset)
	if err != nil {
		return nil, err
	}
	return pc, nil
}

func (a saramaConsumerAdapter) Close() error {
	if a.consumer == nil {
		return nil
	}
	return a.consumer.Close()
}

// storeJournal закрывает store вместе с репозиторием.
type storeJournal struct {
	domain.EmittedEventRepository
	store *postgres.Store
}

func (j storeJournal) Close() error {
	return j.store.Close()
}

var newReprocessDependencies = func(ctx context.Context, cfg config) (offsetClient, partitionConsumerSource, emittedJournal, error) {
	consumerConfig := sarama.NewConfig()
	consumerConfig.ClientID = "payconnector-dlq-reprocess"
	consumerConfig.Consumer.Return.Errors = true

	client, err := sarama.NewClient(cfg.brokers, consumerConfig)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("create kafka client: %w", err)
	}

	rawConsumer, err := sarama.NewConsumerFromClient(client)
	if err != nil {
		_ = client.Close()
		return nil, nil, nil, fmt.Errorf("create kafka consumer: %w", err)
	}
	consumer := saramaConsumerAdapter{consumer: rawConsumer}

	if !cfg.execute {
		return client, consumer, nil, nil
	}

	store, err := postgres.Open(ctx, cfg.dsn, postgres.DefaultPoolOptions())
	if err != nil {
		_ = consumer.Close()
		_ = client.Close()
		return nil, nil, nil, fmt.Errorf("open postgres store: %w", err)
	}

	return client, consumer, storeJournal{EmittedEventRepository: postgres.NewEmittedEventRepository(store), store: store}, nil
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(log.InfoLevel)

	cfg, err := readConfig()
	if err != nil {
		fail("%v", err)
	}

	if err := run(context.Background(), cfg); err != nil {
		fail("dlq reprocess failed: %v", err)
	}
}

func readConfig() (config, error) {
	var (
		brokersRaw string
		cfg        config
	)

	flag.StringVar(&brokersRaw, "brokers", "", "Kafka brokers as comma-separated list (fallback: CONNECTOR_KAFKA_BROKERS)")
	flag.StringVar(&cfg.sourceTopic, "source-topic", kafka.TopicDeadLetterQueue, "DLQ source topic")
	flag.StringVar(&cfg.dsn, "dsn", "", "PostgreSQL DSN for execute mode (fallback: CONNECTOR_POSTGRES_DSN)")
	flag.IntVar(&cfg.limit, "limit", defaultReprocessLimit, "max number of messages to scan")
	flag.BoolVar(&cfg.execute, "execute", false, "return events to the sweeper; default is dry-run")
	flag.BoolVar(&cfg.fromNewest, "from-newest", false, "scan latest messages first (bounded by limit)")
	flag.DurationVar(&cfg.idleTimeout, "idle-timeout", defaultIdleTimeout, "idle timeout per partition")
	flag.Parse()

	if strings.TrimSpace(brokersRaw) == "" {
		brokersRaw = os.Getenv("CONNECTOR_KAFKA_BROKERS")
	}
	if strings.TrimSpace(cfg.dsn) == "" {
		cfg.dsn = strings.TrimSpace(os.Getenv("CONNECTOR_POSTGRES_DSN"))
	}

	cfg.brokers = parseBrokers(brokersRaw)
	if len(cfg.brokers) == 0 {
		return config{}, fmt.Errorf("kafka brokers are required (-brokers or CONNECTOR_KAFKA_BROKERS)")
	}
	if strings.TrimSpace(cfg.sourceTopic) == "" {
		return config{}, fmt.Errorf("source-topic is required")
	}
	if cfg.execute && cfg.dsn == "" {
		return config{}, fmt.Errorf("postgres dsn is required in execute mode (-dsn or CONNECTOR_POSTGRES_DSN)")
	}
	if cfg.limit <= 0 {
		return config{}, fmt.Errorf("limit must be > 0")
	}
	if cfg.idleTimeout <= 0 {
		return config{}, fmt.Errorf("idle-timeout must be > 0")
	}

	return cfg, nil
}

func parseBrokers(raw string) []string {
	chunks := strings.Split(raw, ",")
	brokers := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		broker := strings.TrimSpace(chunk)
		if broker == "" {
			continue
		}
		brokers = append(brokers, broker)
	}
	return brokers
}

func run(ctx context.Context, cfg config) error {
	log.WithFields(log.Fields{
		"source_topic": cfg.sourceTopic,
		"limit":        cfg.limit,
		"execute":      cfg.execute,
		"from_newest":  cfg.fromNewest,
	}).Info("starting dlq reprocess")

	client, consumer, journal, err := newReprocessDependencies(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if journal != nil {
			_ = journal.Close()
		}
		if consumer != nil {
			_ = consumer.Close()
		}
		if client != nil {
			_ = client.Close()
		}
	}()

	return runReprocess(ctx, cfg, client, consumer, journal)
}

func runReprocess(ctx context.Context, cfg config, client offsetClient, consumer partitionConsumerSource, journal emittedJournal) error {
	if client == nil || consumer == nil {
		return fmt.Errorf("kafka client and consumer are required")
	}
	if cfg.execute && journal == nil {
		return fmt.Errorf("emitted events journal is required in execute mode")
	}

	partitions, err := client.Partitions(cfg.sourceTopic)
	if err != nil {
		return fmt.Errorf("get partitions for topic %s: %w", cfg.sourceTopic, err)
	}
	if len(partitions) == 0 {
		log.WithField("topic", cfg.sourceTopic).Warn("source topic has no partitions")
		return nil
	}
	sort.Slice(partitions, func(i, j int) bool { return partitions[i] < partitions[j] })

	var total partitionStats
	for _, partition := range partitions {
		if total.processed >= cfg.limit {
			break
		}

		stats, err := processPartition(ctx, consumer, client, journal, cfg, partition, cfg.limit-total.processed)
		if err != nil {
			return err
		}

		total.processed += stats.processed
		total.rearmed += stats.rearmed
		total.skipped += stats.skipped
	}

	mode := "dry-run"
	if cfg.execute {
		mode = "execute"
	}

	log.WithFields(log.Fields{
		"mode":      mode,
		"processed": total.processed,
		"rearmed":   total.rearmed,
		"skipped":   total.skipped,
	}).Info("dlq reprocess finished")

	return nil
}

type partitionStats struct {
	processed int
	rearmed   int
	skipped   int
}

func processPartition(
	ctx context.Context,
	consumer partitionConsumerSource,
	client offsetClient,
	journal emittedJournal,
	cfg config,
	partition int32,
	limit int,
) (partitionStats, error) {
	var stats partitionStats
	if limit <= 0 {
		return stats, nil
	}

	oldest, err := client.GetOffset(cfg.sourceTopic, partition, sarama.OffsetOldest)
	if err != nil {
		return stats, fmt.Errorf("get oldest offset for partition %d: %w", partition, err)
	}
	newest, err := client.GetOffset(cfg.sourceTopic, partition, sarama.OffsetNewest)
	if err != nil {
		return stats, fmt.Errorf("get newest offset for partition %d: %w", partition, err)
	}
	if newest <= oldest {
		return stats, nil
	}

	startOffset := oldest
	if cfg.fromNewest {
		startOffset = max(newest-int64(limit), oldest)
	}

	partitionConsumer, err := consumer.ConsumePartition(cfg.sourceTopic, partition, startOffset)
	if err != nil {
		return stats, fmt.Errorf("consume partition %d: %w", partition, err)
	}
	defer func() { _ = partitionConsumer.Close() }()

	idleTimer := time.NewTimer(cfg.idleTimeout)
	defer idleTimer.Stop()

	for stats.processed < limit {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		case err := <-partitionConsumer.Errors():
			if err != nil {
				return stats, fmt.Errorf("partition %d consumer error: %w", partition, err)
			}
		case msg, ok := <-partitionConsumer.Messages():
			if !ok || msg == nil {
				return stats, nil
			}

			if !idleTimer.Stop() {
				select {
				case <-idleTimer.C:
				default:
				}
			}
			idleTimer.Reset(cfg.idleTimeout)

			if msg.Offset >= newest {
				return stats, nil
			}
			stats.processed++

			c, ok, err := extractCandidate(msg)
			if err != nil {
				stats.skipped++
				log.WithError(err).WithFields(log.Fields{
					"partition": msg.Partition,
					"offset":    msg.Offset,
				}).Warn("skip unsupported dlq message")
				continue
			}
			if !ok {
				stats.skipped++
				continue
			}

			fields := log.Fields{
				"partition":            msg.Partition,
				"offset":               msg.Offset,
				"transition_id":        c.letter.TransitionID,
				"event_type":           c.key.EventType,
				"resource_external_id": c.key.ExternalID,
				"attempts":             c.letter.Attempts,
			}
			if cfg.execute {
				// Сброс водяного знака: sweeper заново предложит событие на ближайшем проходе.
				if err := journal.RecordOffered(ctx, c.key, nil); err != nil {
					return stats, fmt.Errorf("rearm %s %s: %w", c.key.EventType, c.key.ExternalID, err)
				}
				log.WithFields(fields).Info("dlq event returned to sweeper")
			} else {
				log.WithFields(fields).Info("dlq reprocess candidate")
			}
			stats.rearmed++

			if msg.Offset+1 >= newest {
				return stats, nil
			}
		case <-idleTimer.C:
			return stats, nil
		}
	}

	return stats, nil
}

// extractCandidate разбирает запись DLQ. Записи без ключа журнала (сбой до построения
// события) пропускаются: их восстановит сверка.
func extractCandidate(msg *sarama.ConsumerMessage) (candidate, bool, error) {
	var letter emitter.DeadLetter
	if err := json.Unmarshal(msg.Value, &letter); err != nil {
		return candidate{}, false, fmt.Errorf("decode dead letter: %w", err)
	}
	if letter.TransitionID == "" {
		return candidate{}, false, fmt.Errorf("dead letter has no transition id")
	}

	key, ok := letter.Key()
	if !ok {
		return candidate{}, false, nil
	}
	return candidate{letter: letter, key: key}, true, nil
}

func fail(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
