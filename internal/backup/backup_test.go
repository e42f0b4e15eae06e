package backup

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/dukerupert/gezin/internal/store"
)

// mockS3Client implements s3Client for testing.
type mockS3Client struct {
	mu       sync.Mutex
	objects  map[string][]byte
	modified map[string]time.Time
	putErr   error
	getErr   error
	delErr   error
}

func newMockS3() *mockS3Client {
	return &mockS3Client{objects: make(map[string][]byte), modified: make(map[string]time.Time)}
}

func (m *mockS3Client) PutObject(_ context.Context, input *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if m.putErr != nil {
		return nil, m.putErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	data, _ := io.ReadAll(input.Body)
	m.objects[*input.Key] = data
	m.modified[*input.Key] = time.Now().UTC()
	return &s3.PutObjectOutput{}, nil
}

func (m *mockS3Client) GetObject(_ context.Context, input *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[*input.Key]
	if !ok {
		return nil, &s3NotFound{}
	}
	return &s3.GetObjectOutput{
		Body: io.NopCloser(bytes.NewReader(data)),
	}, nil
}

func (m *mockS3Client) DeleteObject(_ context.Context, input *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	if m.delErr != nil {
		return nil, m.delErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, *input.Key)
	delete(m.modified, *input.Key)
	return &s3.DeleteObjectOutput{}, nil
}

func (m *mockS3Client) ListObjectsV2(_ context.Context, input *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []string
	for k := range m.objects {
		if strings.HasPrefix(k, aws.ToString(input.Prefix)) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(false)}
	for _, k := range keys {
		out.Contents = append(out.Contents, types.Object{
			Key:          aws.String(k),
			Size:         aws.Int64(int64(len(m.objects[k]))),
			LastModified: aws.Time(m.modified[k]),
		})
	}
	return out, nil
}

// put stores an object directly with a chosen modification time.
func (m *mockS3Client) put(key string, data []byte, modified time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	m.modified[key] = modified
}

type s3NotFound struct{}

func (e *s3NotFound) Error() string { return "NoSuchKey" }

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

var testKinds = []string{"tasks", "meals"}

func newTestBackend(t *testing.T) *store.FileBackend {
	t.Helper()
	b := store.NewFileBackend(t.TempDir(), store.LockMutex)
	for _, kind := range testKinds {
		if err := b.Init(context.Background(), kind); err != nil {
			t.Fatalf("init %s: %v", kind, err)
		}
	}
	return b
}

func testConfig() Config {
	return Config{
		S3:         S3Config{Bucket: "test"},
		Prefix:     "gezin/",
		Passphrase: "correct horse battery staple",
	}
}

func writeDoc(t *testing.T, b store.Backend, kind, doc string) {
	t.Helper()
	if err := store.Replace(context.Background(), b, kind, []byte(doc)); err != nil {
		t.Fatalf("replace %s: %v", kind, err)
	}
}

func TestManagerStateLifecycle(t *testing.T) {
	// Without a bucket -> disabled
	m, err := NewManager(context.Background(), Config{}, nil, nil, quietLogger, nil)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	if m.Status().State != StateDisabled {
		t.Errorf("state = %q, want %q", m.Status().State, StateDisabled)
	}
	if m.Enabled() {
		t.Error("manager without bucket should not be enabled")
	}

	// With static credentials -> idle
	m2, err := NewManager(context.Background(), Config{
		S3:         S3Config{Bucket: "test", AccessKey: "key", SecretKey: "secret"},
		Passphrase: "pw",
	}, nil, nil, quietLogger, nil)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	if m2.Status().State != StateIdle {
		t.Errorf("state = %q, want %q", m2.Status().State, StateIdle)
	}
}

func TestRunNowKeysAreUnique(t *testing.T) {
	ctx := context.Background()
	backend := newTestBackend(t)
	client := newMockS3()
	m := newManager(testConfig(), backend, testKinds, client, quietLogger, nil)

	seen := map[string]bool{}
	for i := 0; i < 5; i++ {
		obj, err := m.RunNow(ctx)
		if err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
		if seen[obj.Key] {
			t.Fatalf("key %q written twice", obj.Key)
		}
		seen[obj.Key] = true
	}
	if len(client.objects) != 5 {
		t.Errorf("stored %d objects, want 5", len(client.objects))
	}

	objects, err := m.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if objects[0].Key != m.Status().LastKey {
		t.Errorf("newest listed %q, last written %q", objects[0].Key, m.Status().LastKey)
	}
}

func TestNewManagerRequiresPassphrase(t *testing.T) {
	_, err := NewManager(context.Background(), Config{S3: S3Config{Bucket: "test"}}, nil, nil, quietLogger, nil)
	if !errors.Is(err, ErrPassphraseMissing) {
		t.Fatalf("err = %v, want ErrPassphraseMissing", err)
	}
}

func TestDisabledOperations(t *testing.T) {
	m := newManager(Config{}, nil, nil, nil, quietLogger, nil)
	ctx := context.Background()

	if _, err := m.RunNow(ctx); !errors.Is(err, ErrDisabled) {
		t.Errorf("RunNow err = %v, want ErrDisabled", err)
	}
	if _, err := m.List(ctx); !errors.Is(err, ErrDisabled) {
		t.Errorf("List err = %v, want ErrDisabled", err)
	}
	if _, err := m.Restore(ctx, "x"); !errors.Is(err, ErrDisabled) {
		t.Errorf("Restore err = %v, want ErrDisabled", err)
	}
	if n, err := m.Cleanup(ctx, 30); err != nil || n != 0 {
		t.Errorf("Cleanup = %d, %v; want 0, nil", n, err)
	}
}

func TestRunNowAndRestore(t *testing.T) {
	ctx := context.Background()
	backend := newTestBackend(t)
	client := newMockS3()
	m := newManager(testConfig(), backend, testKinds, client, quietLogger, nil)

	writeDoc(t, backend, "tasks", `[{"id":"t1","title":"Buy milk"}]`)
	writeDoc(t, backend, "meals", `[{"id":"m1"}]`)

	obj, err := m.RunNow(ctx)
	if err != nil {
		t.Fatalf("run backup: %v", err)
	}
	if !strings.HasPrefix(obj.Key, "gezin/backup-") || !strings.HasSuffix(obj.Key, ".tar.gz.enc") {
		t.Errorf("unexpected key %q", obj.Key)
	}
	if obj.Size == 0 {
		t.Error("expected a non-empty object")
	}
	if bytes.Contains(client.objects[obj.Key], []byte("Buy milk")) {
		t.Error("uploaded object should be encrypted")
	}

	status := m.Status()
	if status.State != StateIdle || status.LastBackup == nil || status.LastKey != obj.Key {
		t.Errorf("unexpected status after backup: %+v", status)
	}

	// Diverge from the snapshot, then restore it.
	writeDoc(t, backend, "tasks", `[]`)
	writeDoc(t, backend, "meals", `[{"id":"m1"},{"id":"m2"}]`)

	restored, err := m.Restore(ctx, obj.Key)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if len(restored) != 2 {
		t.Errorf("restored = %v, want both kinds", restored)
	}

	docs, err := store.Snapshot(ctx, backend, testKinds)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if !strings.Contains(string(docs["tasks"]), `"Buy milk"`) {
		t.Errorf("tasks not restored: %s", docs["tasks"])
	}
	if strings.Contains(string(docs["meals"]), "m2") {
		t.Errorf("meals not restored: %s", docs["meals"])
	}
}

func TestRestoreWrongPassphrase(t *testing.T) {
	ctx := context.Background()
	backend := newTestBackend(t)
	client := newMockS3()

	m := newManager(testConfig(), backend, testKinds, client, quietLogger, nil)
	obj, err := m.RunNow(ctx)
	if err != nil {
		t.Fatalf("run backup: %v", err)
	}

	cfg := testConfig()
	cfg.Passphrase = "wrong"
	other := newManager(cfg, backend, testKinds, client, quietLogger, nil)
	if _, err := other.Restore(ctx, obj.Key); err == nil {
		t.Fatal("expected restore with wrong passphrase to fail")
	}
}

func TestRunNowUploadFailure(t *testing.T) {
	var received []Status
	cb := func(s Status) { received = append(received, s) }

	client := newMockS3()
	client.putErr = errors.New("access denied")
	m := newManager(testConfig(), newTestBackend(t), testKinds, client, quietLogger, cb)

	if _, err := m.RunNow(context.Background()); err == nil {
		t.Fatal("expected upload error")
	}
	if m.Status().State != StateError {
		t.Errorf("state = %q, want %q", m.Status().State, StateError)
	}
	if len(received) != 2 || received[0].State != StateRunning || received[1].State != StateError {
		t.Errorf("unexpected callbacks %+v", received)
	}

	// A failed run does not leave the manager stuck in progress.
	client.putErr = nil
	if _, err := m.RunNow(context.Background()); err != nil {
		t.Fatalf("second run: %v", err)
	}
}

func TestListNewestFirst(t *testing.T) {
	client := newMockS3()
	now := time.Now().UTC()
	client.put("gezin/backup-2024-01-01T000000Z.tar.gz.enc", []byte("a"), now)
	client.put("gezin/backup-2024-03-01T000000Z.tar.gz.enc", []byte("bb"), now)
	client.put("gezin/backup-2024-02-01T000000Z.tar.gz.enc", []byte("c"), now)
	client.put("gezin/notes.txt", []byte("ignored"), now)
	client.put("other/backup-2024-04-01T000000Z.tar.gz.enc", []byte("ignored"), now)

	m := newManager(testConfig(), nil, testKinds, client, quietLogger, nil)
	objects, err := m.List(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(objects) != 3 {
		t.Fatalf("got %d objects, want 3", len(objects))
	}
	if objects[0].Key != "gezin/backup-2024-03-01T000000Z.tar.gz.enc" || objects[0].Size != 2 {
		t.Errorf("first = %+v", objects[0])
	}
	if objects[2].Key != "gezin/backup-2024-01-01T000000Z.tar.gz.enc" {
		t.Errorf("last = %+v", objects[2])
	}
}

func TestCleanup(t *testing.T) {
	client := newMockS3()
	now := time.Now().UTC()
	client.put("gezin/backup-old.tar.gz.enc", []byte("a"), now.AddDate(0, 0, -40))
	client.put("gezin/backup-new.tar.gz.enc", []byte("b"), now.AddDate(0, 0, -1))

	m := newManager(testConfig(), nil, testKinds, client, quietLogger, nil)
	n, err := m.Cleanup(context.Background(), 30)
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if n != 1 {
		t.Errorf("removed %d, want 1", n)
	}
	if _, ok := client.objects["gezin/backup-old.tar.gz.enc"]; ok {
		t.Error("old backup should be deleted")
	}
	if _, ok := client.objects["gezin/backup-new.tar.gz.enc"]; !ok {
		t.Error("recent backup should remain")
	}
}

func TestManagerStatusCallback(t *testing.T) {
	var received []Status
	var mu sync.Mutex
	cb := func(s Status) {
		mu.Lock()
		received = append(received, s)
		mu.Unlock()
	}

	m := newManager(testConfig(), nil, nil, newMockS3(), quietLogger, cb)

	m.setStatus(Status{State: StateRunning, InProgress: true})
	m.setStatus(Status{State: StateIdle})

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 2 {
		t.Fatalf("received %d callbacks, want 2", len(received))
	}
	if received[0].State != StateRunning {
		t.Errorf("first callback state = %q, want %q", received[0].State, StateRunning)
	}
	if received[1].State != StateIdle {
		t.Errorf("second callback state = %q, want %q", received[1].State, StateIdle)
	}
}

func TestScheduledBackupRuns(t *testing.T) {
	client := newMockS3()
	cfg := testConfig()
	cfg.Interval = 20 * time.Millisecond
	m := newManager(cfg, newTestBackend(t), testKinds, client, quietLogger, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for m.Status().LastBackup == nil && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	m.Stop()

	if m.Status().LastBackup == nil {
		t.Fatal("expected a scheduled backup")
	}
}

func TestManagerStopSafety(t *testing.T) {
	cfg := testConfig()
	cfg.Interval = time.Hour
	m := newManager(cfg, nil, nil, newMockS3(), quietLogger, nil)

	ctx, cancel := context.WithCancel(context.Background())
	m.Start(ctx)
	time.Sleep(50 * time.Millisecond)
	cancel()
	m.Stop()

	// Double stop should not panic
	m.Stop()
}

func TestManagerDisabledNoStart(t *testing.T) {
	m := newManager(Config{Interval: time.Minute}, nil, nil, nil, quietLogger, nil)

	ctx := context.Background()
	m.Start(ctx) // should be a no-op for disabled state

	// Stop should not block
	m.Stop()
}
