// Package archive buffers normalized depth views and ships them to S3 as
// parquet files.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/source"
	"github.com/xitongsys/parquet-go/writer"

	"tradedash/config"
	"tradedash/internal/coordinator"
	"tradedash/logger"
	"tradedash/models"
)

// DepthRecord is one archived order book row.
type DepthRecord struct {
	Base       string  `parquet:"name=base, type=BYTE_ARRAY, convertedtype=UTF8"`
	Quote      string  `parquet:"name=quote, type=BYTE_ARRAY, convertedtype=UTF8"`
	Timestamp  int64   `parquet:"name=timestamp, type=INT64"`
	Side       string  `parquet:"name=side, type=BYTE_ARRAY, convertedtype=UTF8"`
	Level      int32   `parquet:"name=level, type=INT32"`
	Price      float64 `parquet:"name=price, type=DOUBLE"`
	Amount     float64 `parquet:"name=amount, type=DOUBLE"`
	Notional   float64 `parquet:"name=notional, type=DOUBLE"`
	Cumulative float64 `parquet:"name=cumulative, type=DOUBLE"`
	Mid        float64 `parquet:"name=mid, type=DOUBLE"`
	LastPrice  float64 `parquet:"name=last_price, type=DOUBLE"`
}

// ObjectPutter is the S3 call the writer needs. *s3.Client satisfies it.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// memoryFile is a write-only parquet sink backed by a buffer.
type memoryFile struct {
	buf *bytes.Buffer
}

func (m *memoryFile) Create(string) (source.ParquetFile, error) { return m, nil }
func (m *memoryFile) Open(string) (source.ParquetFile, error) { return m, nil }
func (m *memoryFile) Seek(int64, int) (int64, error) { return int64(m.buf.Len()), nil }
func (m *memoryFile) Read(b []byte) (int, error) { return m.buf.Read(b) }
func (m *memoryFile) Write(b []byte) (int, error) { return m.buf.Write(b) }
func (m *memoryFile) Close() error { return nil }

// Writer implements coordinator.Presenter and archives every order book it
// is shown. Failures are logged and never reach the caller.
type Writer struct {
	coordinator.NopPresenter

	cfg     config.ArchiveConfig
	bucket  string
	version string
	client  ObjectPutter
	log     *logger.Log
	now     func() time.Time

	ctx     context.Context
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
	buffer  map[models.Pair][]DepthRecord
}

// NewWriter builds the S3 client from the storage section.
func NewWriter(cfg *config.Config) (*Writer, error) {
	log := logger.GetLogger()
	ctx := context.Background()

	s3cfg := cfg.Storage.S3
	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(s3cfg.Region),
	}
	if s3cfg.AccessKeyID != "" && s3cfg.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(s3cfg.AccessKeyID, s3cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		log.WithComponent("archive").WithError(err).Warn("failed to load AWS configuration")
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}
	if creds, err := awsCfg.Credentials.Retrieve(ctx); err != nil || !creds.HasKeys() {
		return nil, fmt.Errorf("aws credentials not found")
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if s3cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(s3cfg.Endpoint)
		}
		o.UsePathStyle = s3cfg.PathStyle
	})

	log.WithComponent("archive").WithFields(logger.Fields{
		"bucket":     s3cfg.Bucket,
		"region":     s3cfg.Region,
		"endpoint":   s3cfg.Endpoint,
		"path_style": s3cfg.PathStyle,
	}).Info("archive writer initialized")

	return newWriter(cfg.Archive, s3cfg.Bucket, cfg.App.Version, client), nil
}

func newWriter(cfg config.ArchiveConfig, bucket, version string, client ObjectPutter) *Writer {
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = time.Minute
	}
	return &Writer{
		cfg:     cfg,
		bucket:  bucket,
		version: version,
		client:  client,
		log:     logger.GetLogger(),
		now:     time.Now,
		ctx:     context.Background(),
		buffer:  make(map[models.Pair][]DepthRecord),
	}
}

// OrderBook buffers the rows of view under pair.
func (w *Writer) OrderBook(pair models.Pair, view models.OrderBookView, ticker models.Ticker, _ int) {
	if view.Empty() {
		return
	}
	ts := w.now().UnixMilli()
	mid := 0.0
	if view.Mid != nil {
		mid = *view.Mid
	}

	records := make([]DepthRecord, 0, len(view.Asks)+len(view.Bids))
	// asks are stored farthest first; level 1 is the closest
	for i, row := range view.Asks {
		records = append(records, w.record(pair, ts, "ask", int32(len(view.Asks)-i), row, mid, ticker.Last))
	}
	for i, row := range view.Bids {
		records = append(records, w.record(pair, ts, "bid", int32(i+1), row, mid, ticker.Last))
	}

	w.mu.Lock()
	w.buffer[pair] = append(w.buffer[pair], records...)
	w.mu.Unlock()
}

func (w *Writer) record(pair models.Pair, ts int64, side string, level int32, row models.DepthRow, mid, last float64) DepthRecord {
	return DepthRecord{
		Base:       pair.Base,
		Quote:      pair.Quote,
		Timestamp:  ts,
		Side:       side,
		Level:      level,
		Price:      row.Price,
		Amount:     row.Amount,
		Notional:   row.Notional,
		Cumulative: row.Cumulative,
		Mid:        mid,
		LastPrice:  last,
	}
}

func (w *Writer) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("archive writer already running")
	}
	w.running = true
	w.ctx = ctx
	w.mu.Unlock()

	w.log.WithComponent("archive").WithFields(logger.Fields{
		"flush_interval": w.cfg.FlushInterval,
		"compression":    w.cfg.Compression,
	}).Info("starting archive writer")

	w.wg.Add(1)
	go w.flushWorker()
	return nil
}

func (w *Writer) Stop() {
	w.mu.Lock()
	w.running = false
	w.mu.Unlock()
	w.wg.Wait()
	w.log.WithComponent("archive").Info("archive writer stopped")
}

func (w *Writer) flushWorker() {
	defer w.wg.Done()
	ticker := time.NewTicker(w.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			w.flush("shutdown")
			return
		case <-ticker.C:
			w.flush("interval")
		}
	}
}

// flush uploads one file per buffered pair and returns how many succeeded.
func (w *Writer) flush(reason string) int {
	w.mu.Lock()
	buffers := w.buffer
	w.buffer = make(map[models.Pair][]DepthRecord)
	w.mu.Unlock()

	if len(buffers) == 0 {
		return 0
	}
	w.log.WithComponent("archive").WithFields(logger.Fields{
		"pairs":  len(buffers),
		"reason": reason,
	}).Info("flushing archive buffers")

	uploaded := 0
	for pair, records := range buffers {
		if len(records) == 0 {
			continue
		}
		if w.upload(pair, records) {
			uploaded++
		}
	}
	return uploaded
}

func (w *Writer) upload(pair models.Pair, records []DepthRecord) bool {
	key := w.objectKey(pair, w.now())
	log := w.log.WithComponent("archive").WithPair(pair.Base, pair.Quote).WithFields(logger.Fields{
		"s3_key":  key,
		"records": len(records),
	})

	data, err := w.encode(records)
	if err != nil {
		log.WithError(err).Error("failed to create parquet file")
		return false
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(w.ctx), 30*time.Second)
	defer cancel()
	_, err = w.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(w.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/octet-stream"),
		Metadata: map[string]string{
			"content-type":      "parquet",
			"compression":       w.cfg.Compression,
			"tradedash-version": w.version,
		},
	})
	if err != nil {
		log.WithError(err).WithFields(logger.Fields{"bucket": w.bucket}).Error("failed to upload to S3")
		return false
	}

	logger.LogDataFlowEntry(log, "archive", "s3", len(records), "depth")
	log.WithFields(logger.Fields{"file_size": len(data)}).Info("archive uploaded")
	return true
}

func (w *Writer) objectKey(pair models.Pair, t time.Time) string {
	t = t.UTC()
	name := fmt.Sprintf("%s-%s_%s_%s.parquet", pair.Base, pair.Quote, t.Format("20060102150405"), uuid.NewString()[:8])
	return path.Join(
		w.cfg.Prefix,
		"base="+pair.Base,
		"quote="+pair.Quote,
		fmt.Sprintf("year=%04d/month=%02d/day=%02d/hour=%02d", t.Year(), t.Month(), t.Day(), t.Hour()),
		name,
	)
}

func (w *Writer) encode(records []DepthRecord) ([]byte, error) {
	fw := &memoryFile{buf: &bytes.Buffer{}}
	pw, err := writer.NewParquetWriter(fw, new(DepthRecord), 2)
	if err != nil {
		return nil, fmt.Errorf("failed to create parquet writer: %w", err)
	}

	switch w.cfg.Compression {
	case "snappy":
		pw.CompressionType = parquet.CompressionCodec_SNAPPY
	case "gzip":
		pw.CompressionType = parquet.CompressionCodec_GZIP
	default:
		pw.CompressionType = parquet.CompressionCodec_UNCOMPRESSED
	}

	for _, r := range records {
		if err := pw.Write(r); err != nil {
			_ = pw.WriteStop()
			return nil, fmt.Errorf("failed to write parquet record: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		return nil, fmt.Errorf("failed to finalize parquet writing: %w", err)
	}
	return fw.buf.Bytes(), nil
}
