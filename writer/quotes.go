package writer

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/source"
	"github.com/xitongsys/parquet-go/writer"

	appconfig "fixfeed/config"
	"fixfeed/logger"
	"fixfeed/models"
)

// quoteRecord is the parquet schema of one archived top of book.
type quoteRecord struct {
	Session    string  `parquet:"name=session, type=BYTE_ARRAY, convertedtype=UTF8"`
	Symbol     string  `parquet:"name=symbol, type=BYTE_ARRAY, convertedtype=UTF8"`
	Source     string  `parquet:"name=source, type=BYTE_ARRAY, convertedtype=UTF8"`
	BestBid    string  `parquet:"name=best_bid, type=BYTE_ARRAY, convertedtype=UTF8"`
	BestAsk    string  `parquet:"name=best_ask, type=BYTE_ARRAY, convertedtype=UTF8"`
	BidPrice   float64 `parquet:"name=bid_price, type=DOUBLE"`
	AskPrice   float64 `parquet:"name=ask_price, type=DOUBLE"`
	Levels     int32   `parquet:"name=levels, type=INT32"`
	ReceivedAt int64   `parquet:"name=received_at, type=INT64, convertedtype=TIMESTAMP_MILLIS"`
}

type memFileWriter struct{ buffer *bytes.Buffer }

func newMemFileWriter() *memFileWriter { return &memFileWriter{buffer: &bytes.Buffer{}} }

func (m *memFileWriter) Create(string) (source.ParquetFile, error) { return m, nil }
func (m *memFileWriter) Open(string) (source.ParquetFile, error)   { return m, nil }
func (m *memFileWriter) Seek(int64, int) (int64, error)            { return int64(m.buffer.Len()), nil }
func (m *memFileWriter) Read([]byte) (int, error)                  { return 0, nil }
func (m *memFileWriter) Write(b []byte) (int, error)               { return m.buffer.Write(b) }
func (m *memFileWriter) Close() error                              { return nil }
func (m *memFileWriter) Bytes() []byte                             { return m.buffer.Bytes() }

// objectPutter is the part of the S3 client the writer needs.
type objectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// QuoteWriter archives top of book updates to S3 as parquet. Quotes are
// buffered per symbol and flushed on the interval or when a buffer reaches
// the batch size.
type QuoteWriter struct {
	cfg         *appconfig.Config
	quotes      <-chan models.QuoteUpdate
	s3Client    objectPutter
	buffer      map[string][]models.QuoteUpdate
	mu          sync.Mutex
	flushTicker *time.Ticker
	ctx         context.Context
	wg          *sync.WaitGroup
	running     bool
	log         *logger.Log
}

// NewQuoteWriter builds the S3 client from the storage configuration.
func NewQuoteWriter(cfg *appconfig.Config, quotes <-chan models.QuoteUpdate) (*QuoteWriter, error) {
	s3cfg := cfg.Storage.S3
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(s3cfg.Region)}
	if s3cfg.AccessKeyID != "" && s3cfg.SecretAccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(s3cfg.AccessKeyID, s3cfg.SecretAccessKey, "")))
	}
	awsCfg, err := config.LoadDefaultConfig(context.Background(), loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if s3cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(s3cfg.Endpoint)
		}
		o.UsePathStyle = s3cfg.PathStyle
	})
	return newQuoteWriter(cfg, quotes, client), nil
}

func newQuoteWriter(cfg *appconfig.Config, quotes <-chan models.QuoteUpdate, client objectPutter) *QuoteWriter {
	return &QuoteWriter{
		cfg:      cfg,
		quotes:   quotes,
		s3Client: client,
		buffer:   make(map[string][]models.QuoteUpdate),
		wg:       &sync.WaitGroup{},
		log:      logger.GetLogger(),
	}
}

// Start launches the consumer and the flush ticker.
func (w *QuoteWriter) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("quote writer already running")
	}
	interval := w.cfg.Storage.S3.FlushInterval
	if interval <= 0 {
		interval = time.Minute
	}
	w.running = true
	w.ctx = ctx
	w.flushTicker = time.NewTicker(interval)
	w.mu.Unlock()

	w.wg.Add(1)
	go w.worker()

	w.wg.Add(1)
	go w.flushLoop()

	w.log.WithComponent("quote_writer").WithFields(logger.Fields{
		"bucket": w.cfg.Storage.S3.Bucket,
		"prefix": w.cfg.Storage.S3.Prefix,
	}).Info("quote writer started")
	return nil
}

// Stop waits for the goroutines to exit, then uploads whatever is buffered.
func (w *QuoteWriter) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	if w.flushTicker != nil {
		w.flushTicker.Stop()
	}
	w.wg.Wait()
	w.drain()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	w.flushAll(ctx)
	w.log.WithComponent("quote_writer").Info("quote writer stopped")
}

func (w *QuoteWriter) worker() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case q, ok := <-w.quotes:
			if !ok {
				return
			}
			if w.add(q) {
				w.flushBuffer(w.ctx, q.Symbol)
			}
		}
	}
}

// drain buffers quotes still queued on the channel.
func (w *QuoteWriter) drain() {
	for {
		select {
		case q, ok := <-w.quotes:
			if !ok {
				return
			}
			w.add(q)
		default:
			return
		}
	}
}

// add buffers q and reports whether its symbol reached the batch size.
func (w *QuoteWriter) add(q models.QuoteUpdate) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buffer[q.Symbol] = append(w.buffer[q.Symbol], q)
	size := w.cfg.Storage.S3.BatchSize
	return size > 0 && len(w.buffer[q.Symbol]) >= size
}

func (w *QuoteWriter) flushLoop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case <-w.flushTicker.C:
			w.flushAll(w.ctx)
		}
	}
}

func (w *QuoteWriter) flushAll(ctx context.Context) {
	w.mu.Lock()
	symbols := make([]string, 0, len(w.buffer))
	for s := range w.buffer {
		symbols = append(symbols, s)
	}
	w.mu.Unlock()
	for _, s := range symbols {
		w.flushBuffer(ctx, s)
	}
}

func (w *QuoteWriter) flushBuffer(ctx context.Context, symbol string) {
	w.mu.Lock()
	quotes := w.buffer[symbol]
	if len(quotes) == 0 {
		w.mu.Unlock()
		return
	}
	delete(w.buffer, symbol)
	w.mu.Unlock()

	w.writeBatch(ctx, models.QuoteBatch{
		BatchID:     uuid.New().String(),
		Venue:       w.cfg.Venue.Name,
		Symbol:      symbol,
		Quotes:      quotes,
		RecordCount: len(quotes),
		Timestamp:   time.Now().UTC(),
	})
}

func (w *QuoteWriter) writeBatch(ctx context.Context, batch models.QuoteBatch) {
	log := w.log.WithComponent("quote_writer")
	data, err := createParquet(batch.Quotes)
	if err != nil {
		log.WithError(err).Error("create parquet failed")
		return
	}
	key := w.s3Key(batch)
	start := time.Now()
	_, err = w.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(w.cfg.Storage.S3.Bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		log.WithError(err).WithField("s3_key", key).Error("upload to s3 failed")
		return
	}
	logger.IncrementS3Write(int64(len(data)))
	logger.LogLatency(log, "s3_put", time.Since(start), logger.Fields{"s3_key": key})
	log.WithFields(logger.Fields{"s3_key": key, "records": batch.RecordCount, "bytes": len(data)}).Info("quote batch uploaded")
}

func createParquet(quotes []models.QuoteUpdate) ([]byte, error) {
	mw := newMemFileWriter()
	pw, err := writer.NewParquetWriter(mw, new(quoteRecord), 4)
	if err != nil {
		return nil, err
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY
	for _, q := range quotes {
		rec := quoteRecord{
			Session:    q.Session,
			Symbol:     q.Symbol,
			Source:     q.Source,
			BestBid:    q.BidString(),
			BestAsk:    q.AskString(),
			BidPrice:   q.BestBid.InexactFloat64(),
			AskPrice:   q.BestAsk.InexactFloat64(),
			Levels:     int32(q.Levels),
			ReceivedAt: q.ReceivedAt.UnixMilli(),
		}
		if err := pw.Write(rec); err != nil {
			return nil, err
		}
	}
	if err := pw.WriteStop(); err != nil {
		return nil, err
	}
	return mw.Bytes(), nil
}

func (w *QuoteWriter) s3Key(batch models.QuoteBatch) string {
	ts := batch.Timestamp
	venue := batch.Venue
	if venue == "" {
		venue = "unknown"
	}
	parts := []string{
		w.cfg.Storage.S3.Prefix,
		fmt.Sprintf("venue=%s", venue),
		fmt.Sprintf("symbol=%s", batch.Symbol),
		fmt.Sprintf("year=%04d", ts.Year()),
		fmt.Sprintf("month=%02d", int(ts.Month())),
		fmt.Sprintf("day=%02d", ts.Day()),
		fmt.Sprintf("hour=%02d", ts.Hour()),
	}
	filename := fmt.Sprintf("quotes_%s_%d.parquet", batch.Symbol, ts.UnixNano())
	return filepath.ToSlash(filepath.Join(append(parts, filename)...))
}
