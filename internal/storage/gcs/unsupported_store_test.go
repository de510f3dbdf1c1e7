package gcs_test

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"github.com/JakeFAU/linkmapper/internal/storage/gcs"
)

const bucketName = "test-bucket"

// uploadRecorder simulates the GCS JSON API: bucket lookups succeed and
// uploads are captured.
type uploadRecorder struct {
	mu      sync.Mutex
	names   []string
	bodies  []string
	failPut bool
}

func (r *uploadRecorder) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	if req.Method == http.MethodGet {
		fmt.Fprintln(w, `{ "name": "`+bucketName+`" }`)
		return
	}
	if r.failPut {
		w.WriteHeader(http.StatusForbidden)
		return
	}
	body, _ := io.ReadAll(req.Body)
	name := req.URL.Query().Get("name")
	r.mu.Lock()
	r.names = append(r.names, name)
	r.bodies = append(r.bodies, string(body))
	r.mu.Unlock()
	fmt.Fprintln(w, `{ "name": "`+name+`", "bucket": "`+bucketName+`" }`)
}

func (r *uploadRecorder) uploads() ([]string, []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.names...), append([]string(nil), r.bodies...)
}

func testOptions(t *testing.T, handler http.Handler) []option.ClientOption {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return []option.ClientOption{option.WithEndpoint(server.URL), option.WithoutAuthentication()}
}

func newTestClient(t *testing.T, handler http.Handler) *storage.Client {
	t.Helper()
	client, err := storage.NewClient(context.Background(), testOptions(t, handler)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func TestCloseUploadsOneObjectPerRun(t *testing.T) {
	t.Parallel()

	rec := &uploadRecorder{}
	runID := uuid.New()
	store, err := gcs.NewWithClient(newTestClient(t, rec), gcs.Config{Bucket: bucketName, Prefix: "/logs/"}, runID)
	require.NoError(t, err)
	assert.Equal(t, "gs://test-bucket/logs/"+runID.String()+".txt", store.URI())

	ctx := context.Background()
	require.NoError(t, store.Record(ctx, mustURL(t, "https://unknown.test/a"), "Thread"))
	require.NoError(t, store.Record(ctx, mustURL(t, "https://unknown.test/b"), ""))
	assert.Equal(t, 2, store.Len())

	require.NoError(t, store.Close())
	require.NoError(t, store.Close())
	require.ErrorIs(t, store.Record(ctx, mustURL(t, "https://unknown.test/c"), ""), gcs.ErrClosed)

	names, bodies := rec.uploads()
	require.Equal(t, []string{"logs/" + runID.String() + ".txt"}, names)
	assert.Contains(t, bodies[0], "https://unknown.test/a\nhttps://unknown.test/b\n")
}

func TestFlushWithoutEntriesUploadsNothing(t *testing.T) {
	t.Parallel()

	rec := &uploadRecorder{}
	store, err := gcs.NewWithClient(newTestClient(t, rec), gcs.Config{Bucket: bucketName}, uuid.New())
	require.NoError(t, err)

	require.NoError(t, store.Flush(context.Background()))
	require.NoError(t, store.Close())
	names, _ := rec.uploads()
	assert.Empty(t, names)
}

func TestFlushReportsUploadError(t *testing.T) {
	t.Parallel()

	rec := &uploadRecorder{failPut: true}
	store, err := gcs.NewWithClient(newTestClient(t, rec), gcs.Config{Bucket: bucketName}, uuid.New())
	require.NoError(t, err)
	require.NoError(t, store.Record(context.Background(), mustURL(t, "https://unknown.test/a"), ""))

	err = store.Close()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gs://test-bucket/unsupported/")
}

func TestNewChecksBucket(t *testing.T) {
	t.Parallel()

	missing := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprintln(w, `{"error": {"code": 404, "message": "bucket not found"}}`)
	})
	_, err := gcs.New(context.Background(), gcs.Config{Bucket: bucketName}, uuid.New(), testOptions(t, missing)...)
	require.Error(t, err)
	assert.Contains(t, err.Error(), bucketName)

	rec := &uploadRecorder{}
	store, err := gcs.New(context.Background(), gcs.Config{Bucket: bucketName}, uuid.New(), testOptions(t, rec)...)
	require.NoError(t, err)
	require.NoError(t, store.Record(context.Background(), mustURL(t, "https://unknown.test/a"), ""))
	require.NoError(t, store.Close())
	names, _ := rec.uploads()
	assert.Len(t, names, 1)
}

func TestConfigValidation(t *testing.T) {
	t.Parallel()

	_, err := gcs.NewWithClient(nil, gcs.Config{Bucket: bucketName}, uuid.New())
	require.Error(t, err)

	_, err = gcs.NewWithClient(newTestClient(t, &uploadRecorder{}), gcs.Config{}, uuid.New())
	require.Error(t, err)

	_, err = gcs.New(context.Background(), gcs.Config{Bucket: " "}, uuid.New())
	require.Error(t, err)
}
