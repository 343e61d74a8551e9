package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/cloudstore/internal/cloudstorage"
	"github.com/koustreak/cloudstore/internal/errs"
	"github.com/koustreak/cloudstore/internal/file"
	"github.com/koustreak/cloudstore/internal/filestore"
	"github.com/koustreak/cloudstore/internal/filestore/memstore"
	"github.com/koustreak/cloudstore/internal/logger"
	"github.com/koustreak/cloudstore/internal/records"
)

const testBucket = "uploads"

type fixture struct {
	handler http.Handler
	store   *memstore.Store
	records records.Repository
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWith(t, records.NewMemory(), nil)
}

func newFixtureWith(t *testing.T, repo records.Repository, log *logger.Logger) *fixture {
	t.Helper()

	store := memstore.New("https://storage.example.com")
	a, err := cloudstorage.New(context.Background(), cloudstorage.Config{
		Store:         filestore.Config{Provider: filestore.ProviderMemory, Bucket: testBucket},
		Path:          "tests/",
		UploadOptions: filestore.UploadOptions{Public: true},
	}, cloudstorage.Schema{"size": true, "bucket": true}, cloudstorage.WithOpener(store.Opener()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	srv := New(a, repo, log, Config{MaxUploadBytes: 1 << 20})
	return &fixture{handler: srv.Handler(), store: store, records: repo}
}

func (f *fixture) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) upload(t *testing.T, name string, body []byte, bucket string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if bucket != "" {
		require.NoError(t, mw.WriteField("bucket", bucket))
	}
	fw, err := mw.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = fw.Write(body)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/files", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return f.do(req)
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) (Envelope, map[string]any) {
	t.Helper()
	var env Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	data, _ := env.Data.(map[string]any)
	return env, data
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	rec := f.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	env, data := decode(t, rec)
	assert.True(t, env.Success)
	assert.Equal(t, "ok", data["status"])
}

func TestFileLifecycle(t *testing.T) {
	f := newFixture(t)

	rec := f.upload(t, "hello.txt", []byte("hello world\n"), "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	env, data := decode(t, rec)
	require.True(t, env.Success)
	name, _ := data["filename"].(string)
	require.NotEmpty(t, name)
	assert.Equal(t, "hello.txt", data["originalname"])
	assert.Equal(t, testBucket, data["bucket"])
	assert.EqualValues(t, 12, data["size"])
	assert.Equal(t, "https://storage.example.com/"+testBucket+"/tests/"+name, data["url"])
	assert.NotContains(t, data, "etag")
	assert.True(t, f.store.Public(testBucket, "tests/"+name))

	rec = f.do(httptest.NewRequest(http.MethodGet, "/api/v1/files/"+name, nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	_, data = decode(t, rec)
	assert.Equal(t, "tests/", data["path"])
	assert.NotEmpty(t, data["etag"])

	rec = f.do(httptest.NewRequest(http.MethodHead, "/api/v1/files/"+name, nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(httptest.NewRequest(http.MethodGet, "/api/v1/files/"+name+"/url", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	_, data = decode(t, rec)
	assert.Equal(t, "https://storage.example.com/"+testBucket+"/tests/"+name, data["url"])

	rec = f.do(httptest.NewRequest(http.MethodGet, "/api/v1/files", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	env, _ = decode(t, rec)
	assert.Len(t, env.Data, 1)

	rec = f.do(httptest.NewRequest(http.MethodDelete, "/api/v1/files/"+name, nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 0, f.store.Keys(testBucket))

	_, err := f.records.Get(context.Background(), testBucket, name)
	assert.True(t, errs.IsNotFound(err))

	rec = f.do(httptest.NewRequest(http.MethodHead, "/api/v1/files/"+name, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(httptest.NewRequest(http.MethodGet, "/api/v1/files/"+name+"/url", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	env, _ = decode(t, rec)
	assert.False(t, env.Success)
	assert.Contains(t, env.Error, "media link")

	rec = f.do(httptest.NewRequest(http.MethodDelete, "/api/v1/files/"+name, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpload_BucketOverride(t *testing.T) {
	f := newFixture(t)

	rec := f.upload(t, "photo.png", []byte("not really a png"), "archive")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	_, data := decode(t, rec)
	assert.Equal(t, "archive", data["bucket"])
	assert.Equal(t, 1, f.store.Keys("archive"))
	assert.Equal(t, 0, f.store.Keys(testBucket))

	name := data["filename"].(string)
	rec = f.do(httptest.NewRequest(http.MethodGet, "/api/v1/files/"+name+"?bucket=archive", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(httptest.NewRequest(http.MethodDelete, "/api/v1/files/"+name+"?bucket=archive", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 0, f.store.Keys("archive"))
}

func TestUpload_BadRequests(t *testing.T) {
	f := newFixture(t)

	rec := f.do(httptest.NewRequest(http.MethodPost, "/api/v1/files", bytes.NewBufferString("plain body")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("bucket", testBucket))
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, "/api/v1/files", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec = f.do(req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	env, _ := decode(t, rec)
	assert.Equal(t, "missing file field", env.Error)
}

func TestUpload_StorageFailure(t *testing.T) {
	f := newFixture(t)
	f.store.Fail(memstore.OpUpload, errs.New(errs.ErrKindPermissionDenied, "access denied"))

	rec := f.upload(t, "hello.txt", []byte("hello"), "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	list, err := f.records.List(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestFileExists_Error(t *testing.T) {
	f := newFixture(t)
	f.store.Fail(memstore.OpExists, errs.New(errs.ErrKindConnectionFailed, "unreachable"))

	rec := f.do(httptest.NewRequest(http.MethodHead, "/api/v1/files/x.txt", nil))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestListFiles_Limit(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 3; i++ {
		require.Equal(t, http.StatusCreated, f.upload(t, "a.txt", []byte("a"), "").Code)
	}

	rec := f.do(httptest.NewRequest(http.MethodGet, "/api/v1/files?limit=2", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	env, _ := decode(t, rec)
	assert.Len(t, env.Data, 2)

	rec = f.do(httptest.NewRequest(http.MethodGet, "/api/v1/files?limit=-1", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{errs.New(errs.ErrKindNotFound, ""), http.StatusNotFound},
		{errs.New(errs.ErrKindInvalidInput, ""), http.StatusBadRequest},
		{errs.New(errs.ErrKindPermissionDenied, ""), http.StatusForbidden},
		{errs.New(errs.ErrKindConflict, ""), http.StatusConflict},
		{errs.New(errs.ErrKindTimeout, ""), http.StatusGatewayTimeout},
		{errs.New(errs.ErrKindConnectionFailed, ""), http.StatusBadGateway},
		{errs.New(errs.ErrKindOperationFailed, ""), http.StatusInternalServerError},
		{errors.New("plain"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}

// failingRecords is a Memory repository whose Save always fails.
type failingRecords struct {
	*records.Memory
	err error
}

func (f failingRecords) Save(context.Context, *file.Data) error {
	return f.err
}

func TestUpload_RecordFailureRemovesObject(t *testing.T) {
	repo := failingRecords{Memory: records.NewMemory(), err: errs.New(errs.ErrKindConnectionFailed, "db down")}
	f := newFixtureWith(t, repo, nil)

	rec := f.upload(t, "hello.txt", []byte("hello world\n"), "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, 0, f.store.Keys(testBucket))
}

func TestRequestLogger_HandlersShareRequestID(t *testing.T) {
	logs := &bytes.Buffer{}
	f := newFixtureWith(t, records.NewMemory(), logger.New(&logger.Config{Level: "info", Format: "json", Output: logs}))

	require.Equal(t, http.StatusCreated, f.upload(t, "hello.txt", []byte("hello"), "").Code)

	lines := strings.Split(strings.TrimSpace(logs.String()), "\n")
	require.Len(t, lines, 2)

	var uploaded, request map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &uploaded))
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &request))

	assert.Equal(t, "file uploaded", uploaded["message"])
	assert.Equal(t, testBucket, uploaded["bucket"])
	assert.Equal(t, "request", request["message"])
	assert.EqualValues(t, http.StatusCreated, request["status"])
	assert.NotEmpty(t, request["request_id"])
	assert.Equal(t, request["request_id"], uploaded["request_id"])
}
