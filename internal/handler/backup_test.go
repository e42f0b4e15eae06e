package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/dukerupert/gezin/internal/backup"
)

type fakeBackups struct {
	status  backup.Status
	objects []backup.Object
	runErr  error
	listErr error
}

func (f *fakeBackups) Status() backup.Status { return f.status }

func (f *fakeBackups) RunNow(context.Context) (backup.Object, error) {
	if f.runErr != nil {
		return backup.Object{}, f.runErr
	}
	return backup.Object{Key: "backup-x.tar.gz.enc", Size: 10}, nil
}

func (f *fakeBackups) List(context.Context) ([]backup.Object, error) {
	return f.objects, f.listErr
}

func serveBackups(svc BackupService, method, path string) *httptest.ResponseRecorder {
	mux := http.NewServeMux()
	NewBackupHandler(svc, quietLogger).Register(mux, "/api/backups")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestBackupStatus(t *testing.T) {
	rec := serveBackups(&fakeBackups{status: backup.Status{State: backup.StateDisabled}}, "GET", "/api/backups/status")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"state":"disabled","inProgress":false}`, rec.Body.String())
}

func TestBackupList(t *testing.T) {
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	rec := serveBackups(&fakeBackups{objects: []backup.Object{{Key: "k", Size: 3, LastModified: ts}}}, "GET", "/api/backups")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[{"key":"k","size":3,"lastModified":"2024-01-02T03:04:05Z"}]`, rec.Body.String())
}

func TestBackupDisabled(t *testing.T) {
	svc := &fakeBackups{runErr: backup.ErrDisabled, listErr: backup.ErrDisabled}

	assert.Equal(t, http.StatusServiceUnavailable, serveBackups(svc, "GET", "/api/backups").Code)
	assert.Equal(t, http.StatusServiceUnavailable, serveBackups(svc, "POST", "/api/backups").Code)
}

func TestBackupRun(t *testing.T) {
	assert.Equal(t, http.StatusCreated, serveBackups(&fakeBackups{}, "POST", "/api/backups").Code)
	assert.Equal(t, http.StatusConflict, serveBackups(&fakeBackups{runErr: backup.ErrRunning}, "POST", "/api/backups").Code)
}
