package writer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	cbigquery "cloud.google.com/go/bigquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/digital-fulfillment/internal/analytics/types"
	pkgbigquery "github.com/angelmondragon/digital-fulfillment/pkg/bigquery"
)

func TestNewWriterValidation(t *testing.T) {
	_, err := New(nil, Config{EventsTable: "fulfillment_events"})
	require.Error(t, err)

	_, err = New(&fakeInserter{}, Config{EventsTable: " "})
	require.Error(t, err)

	var client Inserter = &pkgbigquery.Client{}
	w, err := New(client, Config{EventsTable: " fulfillment_events "})
	require.NoError(t, err)
	assert.Equal(t, "fulfillment_events", w.table)
	assert.Equal(t, 1, w.batchSize)
	assert.Equal(t, defaultRetry, w.retry)
}

func TestRetryPolicyBackoff(t *testing.T) {
	p := RetryPolicy{InitialBackoff: 100 * time.Millisecond, MaximumBackoff: 300 * time.Millisecond}.withDefaults()
	assert.Equal(t, 3, p.MaxAttempts)
	assert.Equal(t, 100*time.Millisecond, p.backoff(1))
	assert.Equal(t, 200*time.Millisecond, p.backoff(2))
	assert.Equal(t, 300*time.Millisecond, p.backoff(3))
	assert.Equal(t, 300*time.Millisecond, p.backoff(10))

	inverted := RetryPolicy{InitialBackoff: time.Second, MaximumBackoff: time.Millisecond}.withDefaults()
	assert.Equal(t, time.Second, inverted.MaximumBackoff)
}

func TestEncodeJSON(t *testing.T) {
	nj, err := EncodeJSON(map[string]any{"foo": "bar"})
	require.NoError(t, err)
	assert.True(t, nj.Valid)

	nj, err = EncodeJSON(nil)
	require.NoError(t, err)
	assert.False(t, nj.Valid)

	raw := json.RawMessage(`{"orderId":"1"}`)
	nj, err = EncodeJSON(raw)
	require.NoError(t, err)
	assert.Equal(t, string(raw), nj.JSONVal)
}

func TestWriterRetriesOnTransientError(t *testing.T) {
	writer, fake := newWriterWithFakeInserter(t)
	fake.responses = []error{
		&googleapi.Error{Code: http.StatusServiceUnavailable},
		nil,
	}

	require.NoError(t, writer.InsertEvent(context.Background(), types.FulfillmentEventRow{EventID: "evt-1"}))
	require.Len(t, fake.calls, 2)
	assert.Equal(t, "fulfillment_events", fake.calls[1].table)
	assert.Empty(t, writer.buffer)
}

func TestWriterGivesUpAfterMaxAttempts(t *testing.T) {
	writer, fake := newWriterWithFakeInserter(t)
	unavailable := &googleapi.Error{Code: http.StatusServiceUnavailable}
	fake.responses = []error{unavailable, unavailable, unavailable, nil}

	err := writer.InsertEvent(context.Background(), types.FulfillmentEventRow{EventID: "evt-1"})
	require.ErrorIs(t, err, unavailable)
	assert.Len(t, fake.calls, 3)
	assert.Len(t, writer.buffer, 1)
}

func TestWriterStopsOnPermanentError(t *testing.T) {
	writer, fake := newWriterWithFakeInserter(t)
	fake.responses = []error{&googleapi.Error{Code: http.StatusBadRequest}}

	err := writer.InsertEvent(context.Background(), types.FulfillmentEventRow{EventID: "evt-1"})
	require.Error(t, err)
	assert.Len(t, fake.calls, 1)
	assert.Len(t, writer.buffer, 1)
}

func TestWriterUsesEventIDAsInsertID(t *testing.T) {
	writer, fake := newWriterWithFakeInserter(t)

	require.NoError(t, writer.InsertEvent(context.Background(), types.FulfillmentEventRow{EventID: "evt-7"}))
	require.Len(t, fake.rows, 1)
	saver, ok := fake.rows[0].(*cbigquery.StructSaver)
	require.True(t, ok)
	assert.Equal(t, "evt-7", saver.InsertID)
}

func TestWriterBatchingAndFlush(t *testing.T) {
	writer, fake := newWriterWithFakeInserter(t)
	writer.batchSize = 2

	require.NoError(t, writer.InsertEvent(context.Background(), types.FulfillmentEventRow{EventID: "1"}))
	assert.Empty(t, fake.calls)

	require.NoError(t, writer.InsertEvent(context.Background(), types.FulfillmentEventRow{EventID: "2"}))
	require.Len(t, fake.calls, 1)
	assert.Equal(t, 2, fake.calls[0].rowCount)

	require.NoError(t, writer.InsertEvent(context.Background(), types.FulfillmentEventRow{EventID: "3"}))
	require.NoError(t, writer.Flush(context.Background()))
	require.Len(t, fake.calls, 2)
	assert.Empty(t, writer.buffer)
}

func TestIsRetryableBigQueryError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "plain", err: errors.New("boom"), want: false},
		{name: "http 503", err: &googleapi.Error{Code: http.StatusServiceUnavailable}, want: true},
		{name: "http 429", err: &googleapi.Error{Code: http.StatusTooManyRequests}, want: true},
		{name: "http 400", err: &googleapi.Error{Code: http.StatusBadRequest}, want: false},
		{name: "grpc unavailable", err: status.Error(codes.Unavailable, "down"), want: true},
		{name: "grpc invalid", err: status.Error(codes.InvalidArgument, "bad"), want: false},
		{name: "wrapped grpc", err: fmt.Errorf("insert: %w", status.Error(codes.ResourceExhausted, "quota")), want: true},
		{name: "empty put multi", err: cbigquery.PutMultiError{}, want: false},
		{name: "put multi all transient", err: cbigquery.PutMultiError{
			{Errors: cbigquery.MultiError{&googleapi.Error{Code: http.StatusServiceUnavailable}}},
		}, want: true},
		{name: "put multi with bad row", err: cbigquery.PutMultiError{
			{Errors: cbigquery.MultiError{&googleapi.Error{Code: http.StatusServiceUnavailable}}},
			{Errors: cbigquery.MultiError{&googleapi.Error{Code: http.StatusBadRequest}}},
		}, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Retryable(tt.err))
		})
	}
}

type insertCall struct {
	table    string
	rowCount int
}

type fakeInserter struct {
	responses []error
	calls     []insertCall
	rows      []any
	index     int
}

func (f *fakeInserter) InsertRows(_ context.Context, table string, rows []any) error {
	f.calls = append(f.calls, insertCall{table: table, rowCount: len(rows)})
	f.rows = rows
	var err error
	if f.index < len(f.responses) {
		err = f.responses[f.index]
	}
	f.index++
	return err
}

func newWriterWithFakeInserter(t *testing.T) (*BigQueryWriter, *fakeInserter) {
	t.Helper()
	fake := &fakeInserter{}
	writer, err := New(fake, Config{EventsTable: "fulfillment_events"})
	require.NoError(t, err)
	writer.sleep = func(context.Context, time.Duration) error { return nil }
	return writer, fake
}
