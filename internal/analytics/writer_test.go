package analytics

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type scriptedInserter struct {
	errs  []error
	calls int
	rows  [][]any
}

func (s *scriptedInserter) InsertRows(_ context.Context, _ string, rows []any) error {
	s.calls++
	s.rows = append(s.rows, rows)
	if len(s.errs) == 0 {
		return nil
	}
	err := s.errs[0]
	s.errs = s.errs[1:]
	return err
}

func newTestWriter(t *testing.T, client rowInserter, batch int) *Writer {
	t.Helper()
	w, err := NewWriter(client, WriterConfig{
		Table:       "ledger_events",
		BatchSize:   batch,
		BackoffBase: time.Millisecond,
		BackoffCap:  2 * time.Millisecond,
	})
	require.NoError(t, err)
	return w
}

func TestWriterRetriesTransientErrors(t *testing.T) {
	client := &scriptedInserter{errs: []error{
		&googleapi.Error{Code: http.StatusServiceUnavailable},
		status.Error(codes.Unavailable, "try later"),
	}}
	w := newTestWriter(t, client, 1)

	require.NoError(t, w.Write(context.Background(), &LedgerEventRow{EventID: "e1"}))
	assert.Equal(t, 3, client.calls)
}

func TestWriterDoesNotRetryPermanentErrors(t *testing.T) {
	client := &scriptedInserter{errs: []error{&googleapi.Error{Code: http.StatusBadRequest}}}
	w := newTestWriter(t, client, 1)

	err := w.Write(context.Background(), &LedgerEventRow{EventID: "e1"})
	require.Error(t, err)
	assert.Equal(t, 1, client.calls)

	// the row stays buffered for the next flush
	require.NoError(t, w.Flush(context.Background()))
	assert.Equal(t, 2, client.calls)
}

func TestWriterBatches(t *testing.T) {
	client := &scriptedInserter{}
	w := newTestWriter(t, client, 2)
	ctx := context.Background()

	require.NoError(t, w.Write(ctx, &LedgerEventRow{EventID: "a"}))
	assert.Zero(t, client.calls)
	require.NoError(t, w.Write(ctx, &LedgerEventRow{EventID: "b"}))
	require.Equal(t, 1, client.calls)
	assert.Len(t, client.rows[0], 2)

	require.NoError(t, w.Flush(ctx))
	assert.Equal(t, 1, client.calls)
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, isRetryable(&googleapi.Error{Code: http.StatusTooManyRequests}))
	assert.False(t, isRetryable(&googleapi.Error{Code: http.StatusForbidden}))
	assert.True(t, isRetryable(status.Error(codes.ResourceExhausted, "quota")))
	assert.False(t, isRetryable(status.Error(codes.InvalidArgument, "bad")))
	assert.False(t, isRetryable(errors.New("plain")))

	assert.True(t, isRetryable(bigquery.PutMultiError{
		{RowIndex: 0, Errors: bigquery.MultiError{&googleapi.Error{Code: http.StatusInternalServerError}}},
	}))
	assert.False(t, isRetryable(bigquery.PutMultiError{
		{RowIndex: 0, Errors: bigquery.MultiError{&googleapi.Error{Code: http.StatusBadRequest}}},
	}))
}

func TestNewWriterValidation(t *testing.T) {
	_, err := NewWriter(nil, WriterConfig{Table: "t"})
	assert.Error(t, err)
	_, err = NewWriter(&scriptedInserter{}, WriterConfig{})
	assert.Error(t, err)

	w, err := NewWriter(&scriptedInserter{}, WriterConfig{Table: "t"})
	require.NoError(t, err)
	assert.Equal(t, defaultBatchSize, w.cfg.BatchSize)
	assert.EqualValues(t, defaultMaxRetries, w.cfg.MaxRetries)
	assert.Equal(t, defaultBackoffCap, w.cfg.BackoffCap)
}
