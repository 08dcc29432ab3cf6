package files

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"google.golang.org/api/option"

	"github.com/soyeahso/paxxium/internal/config"
	"github.com/soyeahso/paxxium/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func silentLog() *logging.Logger {
	return logging.New(nil, "silent")
}

func TestObjectName(t *testing.T) {
	name := ObjectName("alice", "photos/../cat.png")
	assert.True(t, strings.HasPrefix(name, "users/alice/uploads/"), name)
	assert.True(t, strings.HasSuffix(name, "-cat.png"), name)

	assert.True(t, strings.HasSuffix(ObjectName("alice", `C:\tmp\dog.jpg`), "-dog.jpg"))
	assert.True(t, strings.HasSuffix(ObjectName("alice", ""), "-upload"))
	assert.NotEqual(t, ObjectName("a", "x"), ObjectName("a", "x"))
}

func TestLocalStorePut(t *testing.T) {
	dir := t.TempDir()
	s := NewLocalStore(dir, "https://chat.example.com/", silentLog())

	url, err := s.Put(context.Background(), "users/alice/uploads/1-cat.png", "image/png", strings.NewReader("png-bytes"))
	require.NoError(t, err)
	assert.Equal(t, "https://chat.example.com/files/users/alice/uploads/1-cat.png", url)

	data, err := os.ReadFile(filepath.Join(dir, "users", "alice", "uploads", "1-cat.png"))
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(data))
}

func TestLocalStoreRejectsEscape(t *testing.T) {
	s := NewLocalStore(t.TempDir(), "", silentLog())

	_, err := s.Put(context.Background(), "../outside.txt", "text/plain", strings.NewReader("x"))
	assert.Error(t, err)
	_, err = s.Put(context.Background(), "/etc/passwd", "text/plain", strings.NewReader("x"))
	assert.Error(t, err)
}

func TestLocalStoreNoOverwrite(t *testing.T) {
	s := NewLocalStore(t.TempDir(), "", silentLog())
	ctx := context.Background()

	url, err := s.Put(ctx, "a.txt", "text/plain", strings.NewReader("first"))
	require.NoError(t, err)
	assert.Equal(t, "/files/a.txt", url)

	_, err = s.Put(ctx, "a.txt", "text/plain", strings.NewReader("second"))
	assert.Error(t, err)
}

func TestNewSelectsBackend(t *testing.T) {
	dir := t.TempDir()
	st, err := New(context.Background(), config.StorageConfig{}, dir, silentLog())
	require.NoError(t, err)
	local, ok := st.(*LocalStore)
	require.True(t, ok)
	assert.Equal(t, dir, local.Dir())

	_, err = New(context.Background(), config.StorageConfig{Backend: "s3"}, dir, silentLog())
	assert.Error(t, err)

	_, err = New(context.Background(), config.StorageConfig{Backend: "gcs"}, dir, silentLog())
	assert.Error(t, err, "gcs without bucket")
}

func TestGCSStorePut(t *testing.T) {
	var (
		mu       sync.Mutex
		gotPath  string
		gotQuery string
		gotBody  string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		gotPath, gotQuery, gotBody = r.URL.Path, r.URL.RawQuery, string(body)
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"bucket": "pax-uploads",
			"name":   "users/alice/uploads/1-cat.png",
			"size":   "9",
		})
	}))
	defer srv.Close()

	s, err := newGCSStore(context.Background(), "pax-uploads", silentLog(),
		option.WithEndpoint(srv.URL+"/storage/v1/"),
		option.WithHTTPClient(srv.Client()),
	)
	require.NoError(t, err)

	url, err := s.Put(context.Background(), "users/alice/uploads/1-cat.png", "image/png", strings.NewReader("png-bytes"))
	require.NoError(t, err)
	assert.Equal(t, "https://storage.googleapis.com/pax-uploads/users/alice/uploads/1-cat.png", url)

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, gotPath, "/b/pax-uploads/o")
	assert.Contains(t, gotQuery, "uploadType=multipart")
	assert.Contains(t, gotBody, "png-bytes")
	assert.Contains(t, gotBody, `"name":"users/alice/uploads/1-cat.png"`)
}

func TestPublicURLEscapes(t *testing.T) {
	assert.Equal(t, "https://storage.googleapis.com/b/users/u/uploads/my%20file.png", publicURL("b", "users/u/uploads/my file.png"))
}
