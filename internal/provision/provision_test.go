// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package provision

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

const fakeRg = "#!/bin/sh\necho ripgrep 15.0.0\n"

// =============================================================================
// TEST HELPERS
// =============================================================================

type countingDownloader struct {
	calls   atomic.Int32
	delay   time.Duration
	payload []byte
	err     error

	mu   sync.Mutex
	urls []string
}

func (d *countingDownloader) Download(ctx context.Context, url string, w io.Writer) (int64, error) {
	d.calls.Add(1)
	d.mu.Lock()
	d.urls = append(d.urls, url)
	d.mu.Unlock()

	if d.delay > 0 {
		select {
		case <-time.After(d.delay):
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	if d.err != nil {
		return 0, d.err
	}
	n, err := w.Write(d.payload)
	return int64(n), err
}

type outcomeRecorder struct {
	mu       sync.Mutex
	outcomes []string
}

func (o *outcomeRecorder) ObserveProvision(binary, outcome string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.outcomes = append(o.outcomes, binary+":"+outcome)
}

func notOnPath(string) (string, error) {
	return "", exec.ErrNotFound
}

func tarGz(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gzw := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gzw)
	require.NoError(t, tw.WriteHeader(&tar.Header{Name: "ripgrep-15.0.0/", Typeflag: tar.TypeDir, Mode: 0755}))
	for name, body := range files {
		require.NoError(t, tw.WriteHeader(&tar.Header{Name: name, Typeflag: tar.TypeReg, Mode: 0644, Size: int64(len(body))}))
		_, err := tw.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gzw.Close())
	return buf.Bytes()
}

func zipArchive(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func newTestProvisioner(t *testing.T, d Downloader, opts ...Option) (*Provisioner, string) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "bin")
	base := []Option{
		WithDownloader(d),
		WithLookPath(notOnPath),
		WithPlatform("linux", "amd64"),
	}
	return New(dir, append(base, opts...)...), dir
}

// =============================================================================
// ENSURE TESTS
// =============================================================================

func TestEnsure_ConcurrentColdCacheDownloadsOnce(t *testing.T) {
	d := &countingDownloader{
		delay:   100 * time.Millisecond,
		payload: tarGz(t, map[string]string{"ripgrep-15.0.0-x86_64-unknown-linux-musl/rg": fakeRg}),
	}
	p, dir := newTestProvisioner(t, d)

	const callers = 8
	paths := make([]string, callers)
	var g errgroup.Group
	for i := 0; i < callers; i++ {
		i := i
		g.Go(func() error {
			path, err := p.Ensure(context.Background(), "rg")
			paths[i] = path
			return err
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, int32(1), d.calls.Load(), "exactly one download")
	want := filepath.Join(dir, "rg")
	for _, path := range paths {
		assert.Equal(t, want, path)
	}

	content, err := os.ReadFile(want)
	require.NoError(t, err)
	assert.Equal(t, fakeRg, string(content))

	if runtime.GOOS != "windows" {
		info, err := os.Stat(want)
		require.NoError(t, err)
		assert.NotZero(t, info.Mode().Perm()&0111, "installed binary must be executable")
	}

	assert.Equal(t, []string{
		"http://cdn.kimi.com/binaries/kimi-cli/rg/ripgrep-15.0.0-x86_64-unknown-linux-musl.tar.gz",
	}, d.urls)

	// A later call takes the fast path.
	_, err = p.Ensure(context.Background(), "rg")
	require.NoError(t, err)
	assert.Equal(t, int32(1), d.calls.Load())
}

func TestEnsure_DifferentInstallDirsDoNotShareResults(t *testing.T) {
	payload := tarGz(t, map[string]string{"rg": fakeRg})
	d1 := &countingDownloader{payload: payload, delay: 50 * time.Millisecond}
	d2 := &countingDownloader{payload: payload, delay: 50 * time.Millisecond}
	p1, dir1 := newTestProvisioner(t, d1)
	p2, dir2 := newTestProvisioner(t, d2)

	var g errgroup.Group
	var path1, path2 string
	g.Go(func() (err error) { path1, err = p1.Ensure(context.Background(), "rg"); return })
	g.Go(func() (err error) { path2, err = p2.Ensure(context.Background(), "rg"); return })
	require.NoError(t, g.Wait())

	assert.Equal(t, filepath.Join(dir1, "rg"), path1)
	assert.Equal(t, filepath.Join(dir2, "rg"), path2)
}

func TestEnsure_ExistingInstallSkipsNetwork(t *testing.T) {
	d := &countingDownloader{}
	obs := &outcomeRecorder{}
	p, dir := newTestProvisioner(t, d, WithObserver(obs))
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "rg"), []byte(fakeRg), 0755))

	path, err := p.Ensure(context.Background(), "rg")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "rg"), path)
	assert.Zero(t, d.calls.Load())
	assert.Equal(t, []string{"rg:local"}, obs.outcomes)
}

func TestEnsure_FoundOnPath(t *testing.T) {
	d := &countingDownloader{}
	p, _ := newTestProvisioner(t, d, WithLookPath(func(name string) (string, error) {
		return "/usr/local/bin/" + name, nil
	}))

	path, err := p.Ensure(context.Background(), "rg")
	require.NoError(t, err)
	assert.Equal(t, "/usr/local/bin/rg", path)
	assert.Zero(t, d.calls.Load())
}

func TestEnsure_UnsupportedPlatform(t *testing.T) {
	d := &countingDownloader{}
	p, dir := newTestProvisioner(t, d, WithPlatform("plan9", "amd64"))

	_, err := p.Ensure(context.Background(), "rg")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnsupportedPlatform)
	assert.Zero(t, d.calls.Load(), "no network for unsupported platforms")

	var pe *Error
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "rg", pe.Binary)

	_, statErr := os.Stat(dir)
	assert.True(t, os.IsNotExist(statErr))
}

func TestEnsure_DownloadFailureLeavesNothing(t *testing.T) {
	d := &countingDownloader{err: errors.New("HTTP 503")}
	p, dir := newTestProvisioner(t, d)

	_, err := p.Ensure(context.Background(), "rg")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDownloadFailed)
	assert.Contains(t, err.Error(), "HTTP 503")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestEnsure_MissingMember(t *testing.T) {
	d := &countingDownloader{payload: tarGz(t, map[string]string{"ripgrep-15.0.0/README.md": "docs"})}
	p, dir := newTestProvisioner(t, d)

	_, err := p.Ensure(context.Background(), "rg")
	require.ErrorIs(t, err, ErrDownloadFailed)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "no partial file at the final path")
}

func TestEnsure_CorruptArchive(t *testing.T) {
	d := &countingDownloader{payload: []byte("this is not gzip")}
	p, _ := newTestProvisioner(t, d)

	_, err := p.Ensure(context.Background(), "rg")
	assert.ErrorIs(t, err, ErrDownloadFailed)
}

func TestEnsure_WindowsZip(t *testing.T) {
	d := &countingDownloader{payload: zipArchive(t, map[string]string{
		"ripgrep-15.0.0-aarch64-pc-windows-msvc/rg.exe": "MZ fake",
		"ripgrep-15.0.0-aarch64-pc-windows-msvc/rg.1":   "man page",
	})}
	p, dir := newTestProvisioner(t, d, WithPlatform("windows", "arm64"))

	path, err := p.Ensure(context.Background(), "rg")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "rg.exe"), path)
	assert.Equal(t, []string{
		"http://cdn.kimi.com/binaries/kimi-cli/rg/ripgrep-15.0.0-aarch64-pc-windows-msvc.zip",
	}, d.urls)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "MZ fake", string(content))
}

func TestEnsure_UnknownBinary(t *testing.T) {
	p, _ := newTestProvisioner(t, &countingDownloader{})

	_, err := p.Ensure(context.Background(), "fd")
	assert.ErrorIs(t, err, ErrUnknownBinary)
}

func TestEnsure_ContextCancelled(t *testing.T) {
	d := &countingDownloader{
		delay:   300 * time.Millisecond,
		payload: tarGz(t, map[string]string{"rg": fakeRg}),
	}
	p, dir := newTestProvisioner(t, d)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := p.Ensure(ctx, "rg")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDownloadFailed)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// The abandoned install still completes for the next caller.
	path, err := p.Ensure(context.Background(), "rg")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "rg"), path)
	assert.Equal(t, int32(1), d.calls.Load())
}

func TestEnsure_CancelledCallerDoesNotFailOthers(t *testing.T) {
	d := &countingDownloader{
		delay:   300 * time.Millisecond,
		payload: tarGz(t, map[string]string{"ripgrep-15.0.0-x86_64-unknown-linux-musl/rg": fakeRg}),
	}
	p, dir := newTestProvisioner(t, d)

	first, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := p.Ensure(first, "rg")
		firstErr <- err
	}()

	// Join the same install, then walk away from it.
	require.Eventually(t, func() bool { return d.calls.Load() == 1 }, 2*time.Second, 5*time.Millisecond)
	secondPath := make(chan string, 1)
	secondErr := make(chan error, 1)
	go func() {
		path, err := p.Ensure(context.Background(), "rg")
		secondPath <- path
		secondErr <- err
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	err := <-firstErr
	assert.ErrorIs(t, err, ErrDownloadFailed)
	assert.ErrorIs(t, err, context.Canceled)

	require.NoError(t, <-secondErr)
	assert.Equal(t, filepath.Join(dir, "rg"), <-secondPath)
	assert.Equal(t, int32(1), d.calls.Load(), "exactly one download")

	content, err := os.ReadFile(filepath.Join(dir, "rg"))
	require.NoError(t, err)
	assert.Equal(t, fakeRg, string(content))
}

func TestEnsure_HTTPEndToEnd(t *testing.T) {
	payload := tarGz(t, map[string]string{"ripgrep-14.1.1-aarch64-apple-darwin/rg": fakeRg})
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Path != "/rg/ripgrep-14.1.1-aarch64-apple-darwin.tar.gz" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(payload)
	}))
	defer srv.Close()

	dir := filepath.Join(t.TempDir(), "bin")
	p := New(dir,
		WithBinary(Ripgrep("14.1.1", srv.URL+"/rg/")),
		WithLookPath(notOnPath),
		WithPlatform("darwin", "arm64"),
	)

	path, err := p.Ensure(context.Background(), "rg")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "rg"), path)
	assert.Equal(t, int32(1), hits.Load())
}

// =============================================================================
// DOWNLOADER AND PLATFORM TESTS
// =============================================================================

func TestHTTPDownloader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "agenttools-test", r.Header.Get("User-Agent"))
		if r.URL.Path == "/missing" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte("payload"))
	}))
	defer srv.Close()

	d := NewHTTPDownloader("agenttools-test")

	var buf bytes.Buffer
	n, err := d.Download(context.Background(), srv.URL+"/ok", &buf)
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
	assert.Equal(t, "payload", buf.String())

	_, err = d.Download(context.Background(), srv.URL+"/missing", io.Discard)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestTarget(t *testing.T) {
	tests := []struct {
		goos, goarch string
		want         string
	}{
		{"darwin", "amd64", "x86_64-apple-darwin"},
		{"darwin", "arm64", "aarch64-apple-darwin"},
		{"linux", "amd64", "x86_64-unknown-linux-musl"},
		{"linux", "arm64", "aarch64-unknown-linux-gnu"},
		{"windows", "amd64", "x86_64-pc-windows-msvc"},
		{"windows", "arm64", "aarch64-pc-windows-msvc"},
	}
	for _, tt := range tests {
		t.Run(tt.goos+"/"+tt.goarch, func(t *testing.T) {
			got, err := Target(tt.goos, tt.goarch)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	for _, bad := range [][2]string{{"linux", "386"}, {"freebsd", "amd64"}, {"linux", "riscv64"}} {
		_, err := Target(bad[0], bad[1])
		assert.ErrorIs(t, err, ErrUnsupportedPlatform, bad)
	}
}

func TestRipgrepDefaults(t *testing.T) {
	b := Ripgrep("", "")
	assert.Equal(t, "rg", b.Name)
	assert.Equal(t, DefaultRipgrepVersion, b.Version)
	assert.Equal(t, "ripgrep-15.0.0-x86_64-unknown-linux-musl.tar.gz", b.ArchiveName("linux", "x86_64-unknown-linux-musl"))
	assert.Equal(t, "ripgrep-15.0.0-x86_64-pc-windows-msvc.zip", b.ArchiveName("windows", "x86_64-pc-windows-msvc"))
}

func TestDefaultInstallDir(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/data")
	dir, err := DefaultInstallDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/data", "agenttools", "bin"), dir)
}
