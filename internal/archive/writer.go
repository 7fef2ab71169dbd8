// Package archive persists unsolicited WSX messages to PostgreSQL in batches.
package archive

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/rickgao/zato-client/internal/router"
)

// Schema creates the archive table.
const Schema = `
CREATE TABLE IF NOT EXISTS wsx_messages (
	msg_id      TEXT PRIMARY KEY,
	received_at TIMESTAMPTZ NOT NULL,
	client_name TEXT NOT NULL,
	topic_name  TEXT,
	sub_key     TEXT,
	meta        JSONB NOT NULL,
	data        JSONB
)`

const insertSQL = `
	INSERT INTO wsx_messages (msg_id, received_at, client_name, topic_name, sub_key, meta, data)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	ON CONFLICT (msg_id) DO NOTHING
`

// DB is the subset of *pgxpool.Pool the writer uses.
type DB interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Config configures the Writer.
type Config struct {
	ClientName    string        // Stored with every row
	BatchSize     int           // Rows per insert batch
	FlushInterval time.Duration // Max delay before a partial batch is written
	BufferSize    int           // Initial input buffer capacity
}

// DefaultConfig returns default configuration.
func DefaultConfig() Config {
	return Config{
		BatchSize:     500,
		FlushInterval: time.Second,
		BufferSize:    1000,
	}
}

// Metrics contains writer statistics.
type Metrics struct {
	Inserts   int64
	Conflicts int64
	Errors    int64
	Flushes   int64
}

// Writer consumes deliveries and writes them to wsx_messages.
type Writer struct {
	cfg    Config
	logger *slog.Logger
	db     DB

	// Input from the dispatcher
	input *router.GrowableBuffer[router.Delivery]

	// Batching
	batch   []row
	batchMu sync.Mutex

	// Lifecycle
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	consumed chan struct{}

	metrics Metrics
}

// row is one wsx_messages record.
type row struct {
	MsgID      string
	ReceivedAt time.Time
	ClientName string
	TopicName  *string
	SubKey     *string
	Meta       []byte
	Data       []byte
}

// NewWriter creates a Writer.
func NewWriter(cfg Config, db DB, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 1
	}
	return &Writer{
		cfg:      cfg,
		logger:   logger,
		db:       db,
		input:    router.NewGrowableBuffer[router.Delivery](cfg.BufferSize),
		batch:    make([]row, 0, cfg.BatchSize),
		consumed: make(chan struct{}),
	}
}

// EnsureSchema creates the archive table if needed.
func (w *Writer) EnsureSchema(ctx context.Context) error {
	_, err := w.db.Exec(ctx, Schema)
	return err
}

// Handler returns the dispatcher handler feeding this writer.
func (w *Writer) Handler() router.Handler {
	return router.BufferHandler(w.input)
}

// Start begins consuming deliveries and writing to the database.
func (w *Writer) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)

	go w.consumeLoop()

	w.wg.Add(1)
	go w.flushLoop()

	w.logger.Info("archive writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)
	return nil
}

// Stop closes the input, waits for queued deliveries to be batched and
// writes what is left.
func (w *Writer) Stop(ctx context.Context) error {
	w.logger.Info("stopping archive writer")

	w.input.Close()

	select {
	case <-w.consumed:
	case <-ctx.Done():
		w.logger.Warn("archive writer stop timed out", "pending", w.input.Len())
	}

	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()

	// Final flush
	w.flush(ctx)

	w.logger.Info("archive writer stopped", "inserts", w.Stats().Inserts)
	return nil
}

// Stats returns current metrics.
func (w *Writer) Stats() Metrics {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	return w.metrics
}

// consumeLoop moves deliveries from the input buffer into the batch until
// the buffer is closed and drained.
func (w *Writer) consumeLoop() {
	defer close(w.consumed)

	for {
		d, ok := w.input.Receive()
		if !ok {
			return
		}
		w.handle(d)
	}
}

// flushLoop periodically flushes the batch.
func (w *Writer) flushLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.flush(w.ctx)
		}
	}
}

// handle transforms and adds a delivery to the batch.
func (w *Writer) handle(d router.Delivery) {
	r, err := w.transform(d)
	if err != nil {
		w.logger.Warn("skipping unarchivable message", "id", d.Envelope.Meta.ID, "error", err)
		return
	}

	w.batchMu.Lock()
	w.batch = append(w.batch, r)
	shouldFlush := len(w.batch) >= w.cfg.BatchSize
	w.batchMu.Unlock()

	if shouldFlush {
		w.flush(w.ctx)
	}
}

// transform converts a delivery to a row. topic_name and sub_key are lifted
// out of the payload when present.
func (w *Writer) transform(d router.Delivery) (row, error) {
	meta, err := json.Marshal(d.Envelope.Meta)
	if err != nil {
		return row{}, err
	}

	r := row{
		MsgID:      d.Envelope.Meta.ID,
		ReceivedAt: d.ReceivedAt,
		ClientName: w.cfg.ClientName,
		Meta:       meta,
	}
	if len(d.Envelope.Data) > 0 && json.Valid(d.Envelope.Data) {
		r.Data = d.Envelope.Data
	}
	if topic, ok := d.Envelope.StringField("topic_name"); ok {
		r.TopicName = &topic
	}
	if subKey, ok := d.Envelope.StringField("sub_key"); ok {
		r.SubKey = &subKey
	}
	return r, nil
}

// flush writes the current batch to the database.
func (w *Writer) flush(ctx context.Context) {
	w.batchMu.Lock()
	if len(w.batch) == 0 {
		w.batchMu.Unlock()
		return
	}

	// Take ownership of current batch
	batch := w.batch
	w.batch = make([]row, 0, w.cfg.BatchSize)
	w.batchMu.Unlock()

	start := time.Now()

	conflicts, err := w.batchInsert(ctx, batch)
	if err != nil {
		w.logger.Error("batch insert failed", "error", err, "count", len(batch))
		w.batchMu.Lock()
		w.metrics.Errors++
		w.batchMu.Unlock()
		return
	}

	w.batchMu.Lock()
	w.metrics.Inserts += int64(len(batch) - conflicts)
	w.metrics.Conflicts += int64(conflicts)
	w.metrics.Flushes++
	w.batchMu.Unlock()

	w.logger.Debug("flushed messages",
		"count", len(batch),
		"conflicts", conflicts,
		"duration", time.Since(start),
	)
}

// batchInsert inserts rows using pgx.Batch with ON CONFLICT DO NOTHING.
func (w *Writer) batchInsert(ctx context.Context, rows []row) (conflicts int, err error) {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(insertSQL, r.MsgID, r.ReceivedAt, r.ClientName, r.TopicName, r.SubKey, r.Meta, r.Data)
	}

	results := w.db.SendBatch(ctx, batch)
	defer results.Close()

	for range rows {
		ct, err := results.Exec()
		if err != nil {
			return 0, err
		}
		if ct.RowsAffected() == 0 {
			conflicts++
		}
	}

	return conflicts, nil
}
