package uploader_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/stretchr/testify/require"

	"github.com/bionicotaku/mergebot/internal/infrastructure/uploader"
)

func TestGofileProvider_UsesConfiguredAPIBase(t *testing.T) {
	t.Parallel()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		require.Equal(t, "/getServer", r.URL.Path)
		_, _ = w.Write([]byte(`{"status":"error"}`))
	}))
	defer srv.Close()

	output := filepath.Join(t.TempDir(), "merged.mkv")
	require.NoError(t, os.WriteFile(output, []byte("data"), 0o644))

	p := uploader.NewGofileProvider(srv.URL, "", log.NewStdLogger(io.Discard))
	_, err := p.Upload(context.Background(), output)
	require.Error(t, err, "no available server must fail the upload")
	require.EqualValues(t, 1, hits.Load(), "server pick must hit the configured api base")
}

func TestGofileProvider_TrailingSlashAPIBase(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/getServer", r.URL.Path)
		_, _ = w.Write([]byte(`{"status":"error"}`))
	}))
	defer srv.Close()

	p := uploader.NewGofileProvider(srv.URL+"/", "", log.NewStdLogger(io.Discard))
	_, err := p.Upload(context.Background(), filepath.Join(t.TempDir(), "missing.mkv"))
	require.Error(t, err)
}
