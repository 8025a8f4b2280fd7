package writer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	cbigquery "cloud.google.com/go/bigquery"

	"github.com/angelmondragon/digital-fulfillment/internal/analytics/types"
)

// Config controls table, batching and retry behaviour. Zero values fall back
// to single-row inserts with three attempts.
type Config struct {
	EventsTable string
	BatchSize   int
	RetryPolicy RetryPolicy
}

// RetryPolicy bounds the exponential backoff between insert attempts.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaximumBackoff time.Duration
}

var defaultRetry = RetryPolicy{MaxAttempts: 3, InitialBackoff: 250 * time.Millisecond, MaximumBackoff: 2 * time.Second}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = defaultRetry.MaxAttempts
	}
	if p.InitialBackoff <= 0 {
		p.InitialBackoff = defaultRetry.InitialBackoff
	}
	if p.MaximumBackoff <= 0 {
		p.MaximumBackoff = defaultRetry.MaximumBackoff
	}
	p.MaximumBackoff = max(p.MaximumBackoff, p.InitialBackoff)
	return p
}

// backoff returns the pause after the given failed attempt (1-based).
func (p RetryPolicy) backoff(attempt int) time.Duration {
	d := p.InitialBackoff
	for i := 1; i < attempt && d < p.MaximumBackoff; i++ {
		d *= 2
	}
	return min(d, p.MaximumBackoff)
}

// Inserter is the streaming insert surface of pkg/bigquery.Client.
type Inserter interface {
	InsertRows(ctx context.Context, table string, rows []any) error
}

// BigQueryWriter buffers fulfillment rows and streams them into one table.
type BigQueryWriter struct {
	client    Inserter
	table     string
	batchSize int
	retry     RetryPolicy
	sleep     func(ctx context.Context, d time.Duration) error

	mu     sync.Mutex
	buffer []types.FulfillmentEventRow
}

func New(client Inserter, cfg Config) (*BigQueryWriter, error) {
	if client == nil {
		return nil, errors.New("bigquery client required")
	}
	table := strings.TrimSpace(cfg.EventsTable)
	if table == "" {
		return nil, errors.New("fulfillment events table is required")
	}
	return &BigQueryWriter{
		client:    client,
		table:     table,
		batchSize: max(cfg.BatchSize, 1),
		retry:     cfg.RetryPolicy.withDefaults(),
		sleep:     sleepContext,
	}, nil
}

// InsertEvent buffers row and flushes once a batch is full. On failure the
// rows stay buffered. The event id is the BigQuery insert id, so a redelivered
// event collapses into the row already streamed.
func (w *BigQueryWriter) InsertEvent(ctx context.Context, row types.FulfillmentEventRow) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buffer = append(w.buffer, row)
	if len(w.buffer) < w.batchSize {
		return nil
	}
	return w.flushLocked(ctx)
}

// Flush writes whatever is buffered.
func (w *BigQueryWriter) Flush(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flushLocked(ctx)
}

func (w *BigQueryWriter) flushLocked(ctx context.Context) error {
	if len(w.buffer) == 0 {
		return nil
	}
	savers := make([]any, 0, len(w.buffer))
	for i := range w.buffer {
		savers = append(savers, &cbigquery.StructSaver{Struct: &w.buffer[i], InsertID: w.buffer[i].EventID})
	}
	if err := w.insert(ctx, savers); err != nil {
		return fmt.Errorf("insert %d rows into %s: %w", len(savers), w.table, err)
	}
	w.buffer = w.buffer[:0]
	return nil
}

func (w *BigQueryWriter) insert(ctx context.Context, rows []any) error {
	for attempt := 1; ; attempt++ {
		err := w.client.InsertRows(ctx, w.table, rows)
		if err == nil || attempt >= w.retry.MaxAttempts || !Retryable(err) {
			return err
		}
		if err := w.sleep(ctx, w.retry.backoff(attempt)); err != nil {
			return err
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// EncodeJSON turns a payload into the value stored in a BigQuery JSON column.
// Raw JSON passes through untouched and empty input becomes NULL.
func EncodeJSON(payload any) (cbigquery.NullJSON, error) {
	var raw []byte
	switch v := payload.(type) {
	case nil:
		return cbigquery.NullJSON{}, nil
	case cbigquery.NullJSON:
		return v, nil
	case json.RawMessage:
		raw = v
	case []byte:
		raw = v
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return cbigquery.NullJSON{}, fmt.Errorf("marshal json: %w", err)
		}
		raw = b
	}
	if len(raw) == 0 {
		return cbigquery.NullJSON{}, nil
	}
	return cbigquery.NullJSON{Valid: true, JSONVal: string(raw)}, nil
}
