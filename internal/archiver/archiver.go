// Package archiver batches derived records into parquet files and ships
// them to S3 for offline analysis. The archiver is optional; when the
// storage section is disabled nothing is constructed.
package archiver

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
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

	appconfig "signalflow/config"
	"signalflow/internal/model"
	"signalflow/logger"
)

// ParquetRecord is the archived row shape: the numeric core of a signal
// record, without the display formatting.
type ParquetRecord struct {
	Symbol        string  `parquet:"name=symbol, type=BYTE_ARRAY, convertedtype=UTF8"`
	Timestamp     int64   `parquet:"name=timestamp, type=INT64"`
	Price         float64 `parquet:"name=price, type=DOUBLE"`
	OpenInterest  float64 `parquet:"name=open_interest, type=DOUBLE"`
	AIScore       int32   `parquet:"name=ai_score, type=INT32"`
	Alpha7Score   float64 `parquet:"name=alpha7_score, type=DOUBLE"`
	OIConviction  int32   `parquet:"name=oi_conviction, type=INT32"`
	LSConviction  int32   `parquet:"name=ls_conviction, type=INT32"`
	DivConviction int32   `parquet:"name=div_conviction, type=INT32"`
}

// memoryFileWriter implements the ParquetFile interface for in-memory
// writing.
type memoryFileWriter struct {
	buffer *bytes.Buffer
}

func newMemoryFileWriter() *memoryFileWriter {
	return &memoryFileWriter{buffer: &bytes.Buffer{}}
}

func (mfw *memoryFileWriter) Create(string) (source.ParquetFile, error) { return mfw, nil }
func (mfw *memoryFileWriter) Open(string) (source.ParquetFile, error)   { return mfw, nil }
func (mfw *memoryFileWriter) Seek(int64, int) (int64, error) {
	return int64(mfw.buffer.Len()), nil
}
func (mfw *memoryFileWriter) Read(b []byte) (int, error)  { return mfw.buffer.Read(b) }
func (mfw *memoryFileWriter) Write(b []byte) (int, error) { return mfw.buffer.Write(b) }
func (mfw *memoryFileWriter) Close() error                { return nil }
func (mfw *memoryFileWriter) Bytes() []byte               { return mfw.buffer.Bytes() }

// Archiver buffers records and flushes them in batches.
type Archiver struct {
	config   *appconfig.Config
	s3Client *s3.Client
	records  chan *model.Record
	wg       sync.WaitGroup
	mu       sync.Mutex
	running  bool
	log      *logger.Log
}

// NewArchiver builds an archiver when S3 storage is enabled; otherwise
// it returns nil.
func NewArchiver(cfg *appconfig.Config) (*Archiver, error) {
	if !cfg.Storage.S3.Enabled {
		return nil, nil
	}

	log := logger.GetLogger()

	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Storage.S3.Region)}
	if cfg.Storage.S3.AccessKeyID != "" && cfg.Storage.S3.SecretAccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(
				cfg.Storage.S3.AccessKeyID,
				cfg.Storage.S3.SecretAccessKey,
				"",
			),
		))
	}

	awsConfig, err := config.LoadDefaultConfig(context.Background(), loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	batchSize := cfg.Storage.BatchSize
	if batchSize <= 0 {
		batchSize = 500
	}

	a := &Archiver{
		config:   cfg,
		s3Client: s3.NewFromConfig(awsConfig),
		records:  make(chan *model.Record, batchSize*2),
		log:      log,
	}

	log.WithComponent("archiver").WithFields(logger.Fields{
		"bucket":     cfg.Storage.S3.Bucket,
		"region":     cfg.Storage.S3.Region,
		"batch_size": batchSize,
	}).Info("archiver initialized")

	return a, nil
}

// OnRecord queues a record for archival. The queue never blocks the
// pipeline; when it is full the record is dropped.
func (a *Archiver) OnRecord(record *model.Record) {
	if a == nil {
		return
	}
	select {
	case a.records <- record:
	default:
		a.log.WithComponent("archiver").Warn("archive queue full, dropping record")
	}
}

// Start launches the batching worker.
func (a *Archiver) Start(ctx context.Context) error {
	if a == nil {
		return nil
	}

	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return fmt.Errorf("archiver already running")
	}
	a.running = true
	a.mu.Unlock()

	a.wg.Add(1)
	go a.worker(ctx)
	return nil
}

// Stop waits for the worker to flush and exit.
func (a *Archiver) Stop() {
	if a == nil {
		return
	}
	a.wg.Wait()
}

func (a *Archiver) worker(ctx context.Context) {
	defer a.wg.Done()

	batchSize := a.config.Storage.BatchSize
	if batchSize <= 0 {
		batchSize = 500
	}

	ticker := time.NewTicker(a.config.Storage.FlushInterval())
	defer ticker.Stop()

	batch := make([]*model.Record, 0, batchSize)
	for {
		select {
		case <-ctx.Done():
			a.flush(batch)
			return
		case record := <-a.records:
			batch = append(batch, record)
			if len(batch) >= batchSize {
				a.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			a.flush(batch)
			batch = batch[:0]
		}
	}
}

func (a *Archiver) flush(batch []*model.Record) {
	if len(batch) == 0 {
		return
	}

	log := a.log.WithComponent("archiver").WithFields(logger.Fields{
		"record_count": len(batch),
		"operation":    "flush",
	})

	data, err := a.createParquetFile(batch)
	if err != nil {
		log.WithError(err).Error("failed to create parquet file")
		return
	}

	key := a.generateS3Key(time.Now().UTC())
	if err := a.uploadToS3(key, data, len(batch)); err != nil {
		log.WithError(err).WithFields(logger.Fields{
			"bucket": a.config.Storage.S3.Bucket,
			"s3_key": key,
		}).Error("failed to upload to S3")
		return
	}

	log.WithFields(logger.Fields{
		"s3_key":    key,
		"file_size": len(data),
	}).Info("batch archived")
}

func (a *Archiver) generateS3Key(now time.Time) string {
	prefix := a.config.Storage.S3.Prefix
	if prefix == "" {
		prefix = "signals"
	}
	return fmt.Sprintf("%s/date=%s/hour=%02d/records_%s.parquet",
		prefix, now.Format("2006-01-02"), now.Hour(), uuid.New().String())
}

func (a *Archiver) createParquetFile(batch []*model.Record) ([]byte, error) {
	fw := newMemoryFileWriter()

	pw, err := writer.NewParquetWriter(fw, new(ParquetRecord), 4)
	if err != nil {
		return nil, fmt.Errorf("failed to create parquet writer: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	now := time.Now().UnixMilli()
	for _, record := range batch {
		row := ParquetRecord{
			Symbol:        record.Symbol,
			Timestamp:     now,
			Price:         record.Price,
			OpenInterest:  record.OpenInterest,
			AIScore:       int32(record.AIScore),
			Alpha7Score:   record.Alpha7Score,
			OIConviction:  int32(record.OIConvictionScore),
			LSConviction:  int32(record.LSConvictionScore),
			DivConviction: int32(record.DivVectorConvictionScore),
		}
		if err := pw.Write(row); err != nil {
			pw.WriteStop()
			return nil, fmt.Errorf("failed to write parquet record: %w", err)
		}
	}

	if err := pw.WriteStop(); err != nil {
		return nil, fmt.Errorf("failed to finalize parquet writing: %w", err)
	}
	return fw.Bytes(), nil
}

func (a *Archiver) uploadToS3(key string, data []byte, count int) error {
	input := &s3.PutObjectInput{
		Bucket:      aws.String(a.config.Storage.S3.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/octet-stream"),
		Metadata: map[string]string{
			"content-type": "parquet",
			"record-count": strconv.Itoa(count),
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	_, err := a.s3Client.PutObject(ctx, input)
	return err
}
