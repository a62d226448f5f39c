package analytics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/sethvargo/go-retry"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	defaultBatchSize   = 1
	defaultMaxRetries  = 3
	defaultBackoffBase = 250 * time.Millisecond
	defaultBackoffCap  = 2 * time.Second
)

type rowInserter interface {
	InsertRows(ctx context.Context, table string, rows []any) error
}

// WriterConfig tunes batching and retries for BigQuery inserts.
type WriterConfig struct {
	Table       string
	BatchSize   int
	MaxRetries  uint64
	BackoffBase time.Duration
	BackoffCap  time.Duration
}

// Writer buffers ledger rows and streams them to BigQuery.
type Writer struct {
	client rowInserter
	cfg    WriterConfig

	mu     sync.Mutex
	buffer []*LedgerEventRow
}

func NewWriter(client rowInserter, cfg WriterConfig) (*Writer, error) {
	if client == nil {
		return nil, errors.New("bigquery client required")
	}
	if cfg.Table == "" {
		return nil, errors.New("ledger events table required")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = defaultBackoffBase
	}
	if cfg.BackoffCap < cfg.BackoffBase {
		cfg.BackoffCap = max(defaultBackoffCap, cfg.BackoffBase)
	}
	return &Writer{client: client, cfg: cfg}, nil
}

// Write queues row and flushes once the batch is full.
func (w *Writer) Write(ctx context.Context, row *LedgerEventRow) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buffer = append(w.buffer, row)
	if len(w.buffer) < w.cfg.BatchSize {
		return nil
	}
	return w.flushLocked(ctx)
}

// Flush writes whatever is buffered.
func (w *Writer) Flush(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flushLocked(ctx)
}

func (w *Writer) flushLocked(ctx context.Context) error {
	if len(w.buffer) == 0 {
		return nil
	}
	rows := make([]any, len(w.buffer))
	for i, row := range w.buffer {
		rows[i] = row
	}

	backoff := retry.NewExponential(w.cfg.BackoffBase)
	backoff = retry.WithCappedDuration(w.cfg.BackoffCap, backoff)
	backoff = retry.WithMaxRetries(w.cfg.MaxRetries, backoff)

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := w.client.InsertRows(ctx, w.cfg.Table, rows)
		if err != nil && isRetryable(err) {
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("insert %d rows into %s: %w", len(rows), w.cfg.Table, err)
	}
	w.buffer = w.buffer[:0]
	return nil
}

// isRetryable reports whether every part of a BigQuery insert error is transient.
func isRetryable(err error) bool {
	var putErr bigquery.PutMultiError
	if errors.As(err, &putErr) {
		if len(putErr) == 0 {
			return false
		}
		for _, rowErr := range putErr {
			if len(rowErr.Errors) == 0 || !allRetryable(rowErr.Errors) {
				return false
			}
		}
		return true
	}

	var multi bigquery.MultiError
	if errors.As(err, &multi) {
		return len(multi) > 0 && allRetryable(multi)
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusTooManyRequests, http.StatusRequestTimeout, http.StatusInternalServerError,
			http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		}
		return false
	}

	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.Aborted, codes.DeadlineExceeded, codes.Internal, codes.ResourceExhausted, codes.Unavailable:
			return true
		}
	}
	return false
}

func allRetryable(errs bigquery.MultiError) bool {
	for _, inner := range errs {
		if !isRetryable(inner) {
			return false
		}
	}
	return true
}
