package backup

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/dukerupert/gezin/internal/store"
)

var (
	ErrDisabled          = errors.New("backup not configured: bucket missing")
	ErrRunning           = errors.New("a backup is already running")
	ErrPassphraseMissing = errors.New("backup passphrase not configured")
)

const (
	keyPrefix = "backup-"
	keySuffix = ".tar.gz.enc"

	// Fixed-width nanoseconds keep keys unique and in lexical time order.
	keyTime = "2006-01-02T150405.000000000Z"
)

// s3Client is an interface for testability.
type s3Client interface {
	PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, input *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, input *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, input *s3.ListObjectsV2Input, opts ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3Config holds S3-compatible storage configuration.
type S3Config struct {
	Endpoint  string
	Bucket    string
	Region    string
	AccessKey string
	SecretKey string
}

// Config holds backup manager configuration.
type Config struct {
	S3            S3Config
	Prefix        string
	Passphrase    string
	Interval      time.Duration
	RetentionDays int
}

// State represents the backup manager state.
type State string

const (
	StateIdle     State = "idle"
	StateRunning  State = "running"
	StateDisabled State = "disabled"
	StateError    State = "error"
)

// Status holds the current backup manager status.
type Status struct {
	State      State      `json:"state"`
	LastBackup *time.Time `json:"lastBackup,omitempty"`
	LastKey    string     `json:"lastKey,omitempty"`
	Error      string     `json:"error,omitempty"`
	InProgress bool       `json:"inProgress"`
}

// StatusCallback is called whenever the backup state changes.
type StatusCallback func(Status)

// Object describes one stored backup.
type Object struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"lastModified"`
}

// Manager snapshots every collection into encrypted archives on
// S3-compatible storage.
type Manager struct {
	mu       sync.RWMutex
	cfg      Config
	status   Status
	callback StatusCallback
	logger   *slog.Logger

	backend store.Backend
	kinds   []string
	client  s3Client

	// lastRun is the timestamp of the newest key this manager wrote.
	lastRun time.Time

	cancel context.CancelFunc
	done   chan struct{}
}

// NewManager creates a backup manager. Without a bucket the manager is
// disabled and every operation returns ErrDisabled. Static credentials are
// used when an access key is configured, otherwise the default AWS chain.
func NewManager(ctx context.Context, cfg Config, backend store.Backend, kinds []string, logger *slog.Logger, callback StatusCallback) (*Manager, error) {
	if cfg.S3.Bucket == "" {
		return newManager(cfg, backend, kinds, nil, logger, callback), nil
	}
	if cfg.Passphrase == "" {
		return nil, ErrPassphraseMissing
	}
	client, err := newS3Client(ctx, cfg.S3)
	if err != nil {
		return nil, err
	}
	return newManager(cfg, backend, kinds, client, logger, callback), nil
}

func newManager(cfg Config, backend store.Backend, kinds []string, client s3Client, logger *slog.Logger, callback StatusCallback) *Manager {
	m := &Manager{
		cfg:      cfg,
		backend:  backend,
		kinds:    kinds,
		client:   client,
		logger:   logger,
		callback: callback,
		status:   Status{State: StateDisabled},
	}
	if client != nil {
		m.status.State = StateIdle
	}
	return m
}

func newS3Client(ctx context.Context, cfg S3Config) (*s3.Client, error) {
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts := s3.Options{
			Region:       region,
			Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
			UsePathStyle: true,
		}
		if cfg.Endpoint != "" {
			opts.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		return s3.New(opts), nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// Enabled reports whether a bucket is configured.
func (m *Manager) Enabled() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.client != nil
}

// Start begins the scheduled backup loop. It is a no-op when the manager is
// disabled or no interval is configured.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	if m.status.State == StateDisabled || m.cfg.Interval <= 0 || m.cancel != nil {
		m.mu.Unlock()
		return
	}
	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})
	interval := m.cfg.Interval
	m.mu.Unlock()

	m.logger.Info("backup schedule started", "interval", interval, "bucket", m.cfg.S3.Bucket)

	go func() {
		defer close(m.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.scheduled(ctx)
			}
		}
	}()
}

// Stop gracefully stops the backup manager.
func (m *Manager) Stop() {
	m.mu.RLock()
	cancel := m.cancel
	done := m.done
	m.mu.RUnlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// Status returns the current backup status.
func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

func (m *Manager) setStatus(s Status) {
	m.mu.Lock()
	m.status = s
	m.mu.Unlock()
	if m.callback != nil {
		m.callback(s)
	}
}

func (m *Manager) scheduled(ctx context.Context) {
	if _, err := m.RunNow(ctx); err != nil {
		m.logger.Error("scheduled backup failed", "error", err)
		return
	}
	if m.cfg.RetentionDays <= 0 {
		return
	}
	if n, err := m.Cleanup(ctx, m.cfg.RetentionDays); err != nil {
		m.logger.Error("backup cleanup failed", "error", err)
	} else if n > 0 {
		m.logger.Info("old backups removed", "count", n)
	}
}

// RunNow snapshots every collection, encrypts the archive and uploads it.
func (m *Manager) RunNow(ctx context.Context) (Object, error) {
	m.mu.Lock()
	client := m.client
	bucket := m.cfg.S3.Bucket
	prev := m.status
	if client == nil {
		m.mu.Unlock()
		return Object{}, ErrDisabled
	}
	if m.status.InProgress {
		m.mu.Unlock()
		return Object{}, ErrRunning
	}
	m.status.InProgress = true
	now := time.Now().UTC()
	if !now.After(m.lastRun) {
		now = m.lastRun.Add(time.Nanosecond)
	}
	m.lastRun = now
	m.mu.Unlock()

	m.setStatus(Status{State: StateRunning, InProgress: true, LastBackup: prev.LastBackup, LastKey: prev.LastKey})

	obj, err := m.upload(ctx, client, bucket, now)
	if err != nil {
		m.setStatus(Status{State: StateError, Error: err.Error(), LastBackup: prev.LastBackup, LastKey: prev.LastKey})
		return Object{}, err
	}

	m.logger.Info("backup uploaded", "key", obj.Key, "size", obj.Size)
	m.setStatus(Status{State: StateIdle, LastBackup: &now, LastKey: obj.Key})
	return obj, nil
}

func (m *Manager) upload(ctx context.Context, client s3Client, bucket string, now time.Time) (Object, error) {
	docs, err := store.Snapshot(ctx, m.backend, m.kinds)
	if err != nil {
		return Object{}, fmt.Errorf("snapshot: %w", err)
	}

	archive, err := writeArchive(docs, now)
	if err != nil {
		return Object{}, fmt.Errorf("archive: %w", err)
	}

	encrypted, err := Encrypt(archive, m.cfg.Passphrase)
	if err != nil {
		return Object{}, fmt.Errorf("encrypt: %w", err)
	}

	key := m.cfg.Prefix + keyPrefix + now.Format(keyTime) + keySuffix
	_, err = client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(encrypted),
		ContentLength: aws.Int64(int64(len(encrypted))),
		ContentType:   aws.String("application/octet-stream"),
	})
	if err != nil {
		return Object{}, fmt.Errorf("upload to s3: %w", err)
	}

	return Object{Key: key, Size: int64(len(encrypted)), LastModified: now}, nil
}

// List returns the stored backups under the configured prefix, newest first.
func (m *Manager) List(ctx context.Context) ([]Object, error) {
	m.mu.RLock()
	client := m.client
	bucket := m.cfg.S3.Bucket
	m.mu.RUnlock()

	if client == nil {
		return nil, ErrDisabled
	}

	objects := []Object{}
	p := s3.NewListObjectsV2Paginator(client, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(m.cfg.Prefix + keyPrefix),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list backups: %w", err)
		}
		for _, o := range page.Contents {
			key := aws.ToString(o.Key)
			if !strings.HasSuffix(key, keySuffix) {
				continue
			}
			objects = append(objects, Object{
				Key:          key,
				Size:         aws.ToInt64(o.Size),
				LastModified: aws.ToTime(o.LastModified),
			})
		}
	}

	// Keys embed the creation time, so reverse key order is newest first.
	slices.SortFunc(objects, func(a, b Object) int {
		return strings.Compare(b.Key, a.Key)
	})
	return objects, nil
}

// Restore downloads a backup, decrypts it and writes every known collection
// back through the store backend. It returns the kinds that were restored.
func (m *Manager) Restore(ctx context.Context, key string) ([]string, error) {
	m.mu.RLock()
	client := m.client
	bucket := m.cfg.S3.Bucket
	m.mu.RUnlock()

	if client == nil {
		return nil, ErrDisabled
	}

	result, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("download from s3: %w", err)
	}
	defer result.Body.Close()

	encrypted, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, fmt.Errorf("read backup: %w", err)
	}

	archive, err := Decrypt(encrypted, m.cfg.Passphrase)
	if err != nil {
		return nil, fmt.Errorf("decrypt backup: %w", err)
	}

	docs, err := readArchive(archive)
	if err != nil {
		return nil, fmt.Errorf("unpack backup: %w", err)
	}

	var restored []string
	for _, kind := range m.kinds {
		doc, ok := docs[kind]
		if !ok {
			m.logger.Warn("backup has no document for kind", "kind", kind, "key", key)
			continue
		}
		if err := store.Replace(ctx, m.backend, kind, doc); err != nil {
			return restored, fmt.Errorf("restore %s: %w", kind, err)
		}
		restored = append(restored, kind)
	}

	m.logger.Info("backup restored", "key", key, "kinds", restored)
	return restored, nil
}

// Cleanup deletes backups older than the retention period and returns how
// many were removed.
func (m *Manager) Cleanup(ctx context.Context, retentionDays int) (int, error) {
	m.mu.RLock()
	client := m.client
	bucket := m.cfg.S3.Bucket
	m.mu.RUnlock()

	if client == nil {
		return 0, nil
	}

	objects, err := m.List(ctx)
	if err != nil {
		return 0, err
	}

	before := time.Now().UTC().AddDate(0, 0, -retentionDays)
	removed := 0
	for _, o := range objects {
		if !o.LastModified.Before(before) {
			continue
		}
		if _, err := client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(o.Key),
		}); err != nil {
			m.logger.Warn("failed to delete backup object", "key", o.Key, "error", err)
			continue
		}
		removed++
	}
	return removed, nil
}
