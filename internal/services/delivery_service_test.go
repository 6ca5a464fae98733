package services_test

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/stretchr/testify/require"

	"github.com/bionicotaku/mergebot/internal/services"
)

type spySender struct {
	mu    sync.Mutex
	calls int
	path  string
	thumb string
	err   error
}

func (s *spySender) SendVideo(ctx context.Context, chatID int64, path, caption, thumbnail string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.path = path
	s.thumb = thumbnail
	return s.err
}

type spyProvider struct {
	name     string
	link     string
	failures int // 前 N 次调用失败
	calls    int
}

func (p *spyProvider) Name() string { return p.name }

func (p *spyProvider) Upload(ctx context.Context, path string) (string, error) {
	p.calls++
	if p.calls <= p.failures {
		return "", errors.New("transient upload error")
	}
	return p.link, nil
}

func writeOutput(t *testing.T, size int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "merged.mkv")
	require.NoError(t, os.WriteFile(path, make([]byte, size), 0o644))
	return path
}

func newDelivery(t *testing.T, limit int64, sender services.InlineSender, providers ...services.UploadProvider) *services.DeliveryService {
	t.Helper()
	d, err := services.NewDeliveryService(
		services.DeliveryConfig{InlineLimit: limit, MaxRetries: 2, RetryInterval: time.Millisecond},
		sender, providers, log.NewStdLogger(io.Discard))
	require.NoError(t, err)
	return d
}

func TestDeliver_InlineWhenUnderLimit(t *testing.T) {
	t.Parallel()
	sender := &spySender{}
	d := newDelivery(t, 1024, sender)
	output := writeOutput(t, 100)

	res, err := d.Deliver(context.Background(), 7, output, "thumb.jpg")
	require.NoError(t, err)
	require.True(t, res.Inline)
	require.Equal(t, "telegram", res.Provider)
	require.Equal(t, int64(100), res.Size)
	require.Equal(t, 1, sender.calls)
	require.Equal(t, output, sender.path)
	require.Equal(t, "thumb.jpg", sender.thumb)
}

func TestDeliver_CloudUploadWhenOverLimit(t *testing.T) {
	t.Parallel()
	sender := &spySender{}
	p := &spyProvider{name: "gofile", link: "https://gofile.io/d/abc"}
	d := newDelivery(t, 10, sender, p)
	output := writeOutput(t, 100)

	res, err := d.Deliver(context.Background(), 7, output, "")
	require.NoError(t, err)
	require.False(t, res.Inline)
	require.Equal(t, "gofile", res.Provider)
	require.Equal(t, "https://gofile.io/d/abc", res.Link)
	require.Zero(t, sender.calls)
}

func TestDeliver_RetriesWithinProvider(t *testing.T) {
	t.Parallel()
	p := &spyProvider{name: "gofile", link: "https://gofile.io/d/abc", failures: 2}
	d := newDelivery(t, 10, &spySender{}, p)

	res, err := d.Deliver(context.Background(), 7, writeOutput(t, 100), "")
	require.NoError(t, err)
	require.Equal(t, "https://gofile.io/d/abc", res.Link)
	require.Equal(t, 3, p.calls, "two transient failures then success")
}

func TestDeliver_FallsBackAcrossProviders(t *testing.T) {
	t.Parallel()
	first := &spyProvider{name: "gofile", failures: 10}
	second := &spyProvider{name: "gcs", link: "https://storage.googleapis.com/b/o"}
	d := newDelivery(t, 10, &spySender{}, first, second)

	res, err := d.Deliver(context.Background(), 7, writeOutput(t, 100), "")
	require.NoError(t, err)
	require.Equal(t, "gcs", res.Provider)
	require.Equal(t, 3, first.calls, "first provider exhausts its own retry budget")
}

func TestDeliver_AllProvidersExhausted(t *testing.T) {
	t.Parallel()
	first := &spyProvider{name: "gofile", failures: 10}
	second := &spyProvider{name: "gcs", failures: 10}
	d := newDelivery(t, 10, &spySender{}, first, second)

	_, err := d.Deliver(context.Background(), 7, writeOutput(t, 100), "")
	require.ErrorIs(t, err, services.ErrDeliveryFailed)
}

func TestDeliver_NoProvidersConfigured(t *testing.T) {
	t.Parallel()
	d := newDelivery(t, 10, &spySender{})

	_, err := d.Deliver(context.Background(), 7, writeOutput(t, 100), "")
	require.ErrorIs(t, err, services.ErrDeliveryFailed)
}
