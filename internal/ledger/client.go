package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vladislavdragonenkov/payconnector/internal/domain"
	"github.com/vladislavdragonenkov/payconnector/internal/version"
)

const (
	defaultTimeout         = 10 * time.Second
	defaultMaxRetries      = 3
	defaultInitialInterval = 200 * time.Millisecond
	defaultMaxInterval     = 2 * time.Second
	statusVersion          = "2"
)

// ErrUnexpectedStatus возвращается на ответ ledger, который не является ни 200, ни 404.
var ErrUnexpectedStatus = errors.New("unexpected ledger response status")

// Option настраивает Client.
type Option func(*Client)

// WithHTTPClient задаёт http-клиент.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.http = httpClient
		}
	}
}

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithTracer задаёт tracer.
func WithTracer(tracer trace.Tracer) Option {
	return func(c *Client) {
		if tracer != nil {
			c.tracer = tracer
		}
	}
}

// WithRetryPolicy задаёт число повторов и начальный интервал между ними.
func WithRetryPolicy(maxRetries uint64, initialInterval time.Duration) Option {
	return func(c *Client) {
		c.maxRetries = maxRetries
		if initialInterval > 0 {
			c.initialInterval = initialInterval
		}
	}
}

// Client читает транзакции из ledger по HTTP.
type Client struct {
	baseURL         string
	http            *http.Client
	logger          *log.Entry
	tracer          trace.Tracer
	maxRetries      uint64
	initialInterval time.Duration
}

var _ domain.LedgerClient = (*Client)(nil)

// NewClient создаёт клиента ledger с базовым адресом baseURL.
func NewClient(baseURL string, options ...Option) *Client {
	c := &Client{
		baseURL:         strings.TrimRight(baseURL, "/"),
		http:            &http.Client{Timeout: defaultTimeout},
		logger:          log.WithField("component", "ledger-client"),
		tracer:          otel.Tracer("payconnector/ledger"),
		maxRetries:      defaultMaxRetries,
		initialInterval: defaultInitialInterval,
	}
	for _, option := range options {
		option(c)
	}
	return c
}

// GetTransaction запрашивает транзакцию. 404 означает, что ledger её не знает: возвращается false без ошибки.
// 5xx, 429 и сетевые ошибки повторяются с экспоненциальной задержкой, остальные коды не повторяются.
func (c *Client) GetTransaction(ctx context.Context, externalID string, query domain.LedgerQuery) (domain.LedgerTransaction, bool, error) {
	ctx, span := c.tracer.Start(ctx, "ledger.GetTransaction", trace.WithAttributes(
		attribute.String("external_id", externalID),
		attribute.String("transaction_type", string(query.TransactionType)),
	))
	defer span.End()

	endpoint := c.transactionURL(externalID, query)

	var (
		tx       domain.LedgerTransaction
		found    bool
		attempts int
	)
	operation := func() error {
		attempts++
		var err error
		tx, found, err = c.get(ctx, endpoint)
		return err
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.initialInterval
	policy.MaxInterval = defaultMaxInterval
	notify := func(err error, wait time.Duration) {
		c.logger.WithError(err).WithFields(log.Fields{
			"external_id": externalID,
			"retry_in":    wait,
		}).Debug("ledger request failed, retrying")
	}

	err := backoff.RetryNotify(operation, backoff.WithContext(backoff.WithMaxRetries(policy, c.maxRetries), ctx), notify)
	span.SetAttributes(attribute.Int("attempts", attempts), attribute.Bool("found", found))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return domain.LedgerTransaction{}, false, fmt.Errorf("get ledger transaction %s: %w", externalID, err)
	}
	return tx, found, nil
}

func (c *Client) transactionURL(externalID string, query domain.LedgerQuery) string {
	params := url.Values{}
	params.Set("account_id", strconv.FormatInt(query.GatewayAccountID, 10))
	params.Set("transaction_type", strings.ToUpper(string(query.TransactionType)))
	if query.ParentExternalID != "" {
		params.Set("parent_external_id", query.ParentExternalID)
	}
	params.Set("status_version", statusVersion)

	return c.baseURL + "/v1/transaction/" + url.PathEscape(externalID) + "?" + params.Encode()
}

func (c *Client) get(ctx context.Context, endpoint string) (domain.LedgerTransaction, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return domain.LedgerTransaction{}, false, backoff.Permanent(err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := c.http.Do(req)
	if err != nil {
		return domain.LedgerTransaction{}, false, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		var tx domain.LedgerTransaction
		if err := json.NewDecoder(resp.Body).Decode(&tx); err != nil {
			return domain.LedgerTransaction{}, false, backoff.Permanent(fmt.Errorf("decode ledger response: %w", err))
		}
		return tx, true, nil
	case resp.StatusCode == http.StatusNotFound:
		_, _ = io.Copy(io.Discard, resp.Body)
		return domain.LedgerTransaction{}, false, nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError:
		_, _ = io.Copy(io.Discard, resp.Body)
		return domain.LedgerTransaction{}, false, fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	default:
		_, _ = io.Copy(io.Discard, resp.Body)
		return domain.LedgerTransaction{}, false, backoff.Permanent(fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode))
	}
}
