// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package provision

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/zeebo/blake3"
	"golang.org/x/sync/singleflight"

	"github.com/jeranaias/agenttools/internal/util"
)

const (
	// DefaultRipgrepVersion is the ripgrep release installed by default.
	DefaultRipgrepVersion = "15.0.0"

	// DefaultRipgrepBaseURL hosts ripgrep release archives named
	// ripgrep-<version>-<target>.<ext>.
	DefaultRipgrepBaseURL = "http://cdn.kimi.com/binaries/kimi-cli/rg"
)

// Binary describes where to get one executable.
type Binary struct {
	// Name is the executable name without any extension, e.g. "rg".
	Name string
	// Archive is the archive name prefix, e.g. "ripgrep".
	Archive string
	Version string
	BaseURL string
}

// Ripgrep describes ripgrep. Empty arguments select the defaults.
func Ripgrep(version, baseURL string) Binary {
	if version == "" {
		version = DefaultRipgrepVersion
	}
	if baseURL == "" {
		baseURL = DefaultRipgrepBaseURL
	}
	return Binary{Name: "rg", Archive: "ripgrep", Version: version, BaseURL: baseURL}
}

// ArchiveName is the release archive file name for goos and target.
func (b Binary) ArchiveName(goos, target string) string {
	return fmt.Sprintf("%s-%s-%s.%s", b.Archive, b.Version, target, ArchiveExt(goos))
}

// URL is the download location of the release archive.
func (b Binary) URL(goos, target string) string {
	return strings.TrimRight(b.BaseURL, "/") + "/" + b.ArchiveName(goos, target)
}

// Observer is told how each Ensure was satisfied: "installed", "local",
// "path" or "failed".
type Observer interface {
	ObserveProvision(binary, outcome string)
}

// installSlots is the process-wide install lock table. Keys are
// "<install dir>\x00<binary name>" so unrelated binaries never contend.
var installSlots singleflight.Group

// =============================================================================
// PROVISIONER
// =============================================================================

// Provisioner locates or installs binaries into one install directory.
type Provisioner struct {
	installDir string
	binaries   map[string]Binary
	downloader Downloader
	lookPath   func(string) (string, error)
	goos       string
	goarch     string
	logger     *slog.Logger
	observer   Observer
}

// Option configures a Provisioner.
type Option func(*Provisioner)

// WithBinary registers b, replacing any binary of the same name.
func WithBinary(b Binary) Option {
	return func(p *Provisioner) { p.binaries[b.Name] = b }
}

// WithDownloader replaces the HTTP downloader.
func WithDownloader(d Downloader) Option {
	return func(p *Provisioner) { p.downloader = d }
}

// WithLookPath replaces exec.LookPath for the PATH probe.
func WithLookPath(fn func(string) (string, error)) Option {
	return func(p *Provisioner) { p.lookPath = fn }
}

// WithPlatform overrides runtime.GOOS and runtime.GOARCH.
func WithPlatform(goos, goarch string) Option {
	return func(p *Provisioner) {
		p.goos = goos
		p.goarch = goarch
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Provisioner) { p.logger = logger }
}

// WithObserver reports outcomes to o.
func WithObserver(o Observer) Option {
	return func(p *Provisioner) { p.observer = o }
}

// New returns a provisioner installing into installDir with ripgrep
// registered at its default version.
func New(installDir string, opts ...Option) *Provisioner {
	p := &Provisioner{
		installDir: installDir,
		binaries:   map[string]Binary{"rg": Ripgrep("", "")},
		downloader: NewHTTPDownloader("agenttools"),
		lookPath:   exec.LookPath,
		goos:       runtime.GOOS,
		goarch:     runtime.GOARCH,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// DefaultInstallDir is $XDG_DATA_HOME/agenttools/bin, falling back to
// ~/.local/share/agenttools/bin.
func DefaultInstallDir() (string, error) {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, "agenttools", "bin"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", "agenttools", "bin"), nil
}

// InstallDir returns the directory binaries are installed into.
func (p *Provisioner) InstallDir() string {
	return p.installDir
}

// Ensure returns the path of an executable named name, installing it if it
// is neither in the install directory nor on PATH.
func (p *Provisioner) Ensure(ctx context.Context, name string) (string, error) {
	// Fast path, no lock
	if path, source, ok := p.find(name); ok {
		p.logger.Debug("binary found", "binary", name, "path", path, "source", source)
		p.observe(name, source)
		return path, nil
	}

	b, ok := p.binaries[name]
	if !ok {
		p.observe(name, "failed")
		return "", &Error{Binary: name, Kind: ErrUnknownBinary}
	}

	// The install is shared by every waiter, so one caller's cancellation
	// must not abort it for the others.
	installCtx := context.WithoutCancel(ctx)
	ch := installSlots.DoChan(p.installDir+"\x00"+name, func() (interface{}, error) {
		return p.install(installCtx, b)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			p.observe(name, "failed")
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		p.observe(name, "failed")
		return "", &Error{Binary: name, Kind: ErrDownloadFailed, Cause: ctx.Err()}
	}
}

// find probes the install directory, then PATH.
func (p *Provisioner) find(name string) (path, source string, ok bool) {
	local := filepath.Join(p.installDir, ExecutableName(name, p.goos))
	if info, err := os.Stat(local); err == nil && info.Mode().IsRegular() {
		return local, "local", true
	}
	if found, err := p.lookPath(name); err == nil {
		return found, "path", true
	}
	return "", "", false
}

// install runs inside the install slot for b.
func (p *Provisioner) install(ctx context.Context, b Binary) (string, error) {
	// Another caller may have finished while this one waited for the slot
	if path, source, ok := p.find(b.Name); ok {
		p.logger.Debug("binary appeared while waiting", "binary", b.Name, "path", path)
		p.observe(b.Name, source)
		return path, nil
	}

	target, err := Target(p.goos, p.goarch)
	if err != nil {
		return "", &Error{Binary: b.Name, Kind: ErrUnsupportedPlatform, Cause: err}
	}
	fail := func(err error) (string, error) {
		return "", &Error{Binary: b.Name, Kind: ErrDownloadFailed, Cause: err}
	}

	if err := os.MkdirAll(p.installDir, 0755); err != nil {
		return fail(fmt.Errorf("create install directory: %w", err))
	}

	scratch, err := os.MkdirTemp("", "agenttools-"+b.Name+"-")
	if err != nil {
		return fail(fmt.Errorf("create scratch directory: %w", err))
	}
	defer os.RemoveAll(scratch)

	url := b.URL(p.goos, target)
	archivePath := filepath.Join(scratch, b.ArchiveName(p.goos, target))
	p.logger.Info("downloading binary", "binary", b.Name, "version", b.Version, "url", url)

	n, err := p.fetch(ctx, url, archivePath)
	if err != nil {
		return fail(err)
	}

	exe := ExecutableName(b.Name, p.goos)
	dest := filepath.Join(p.installDir, exe)
	digest := blake3.New()
	err = util.AtomicWrite(dest, 0755, func(w io.Writer) error {
		return extractMember(archivePath, exe, io.MultiWriter(w, digest))
	})
	if err != nil {
		return fail(fmt.Errorf("install %s from %s: %w", exe, filepath.Base(archivePath), err))
	}

	p.logger.Info("binary installed",
		"binary", b.Name,
		"path", dest,
		"archive_bytes", n,
		"blake3", hex.EncodeToString(digest.Sum(nil)))
	p.observe(b.Name, "installed")
	return dest, nil
}

func (p *Provisioner) fetch(ctx context.Context, url, archivePath string) (int64, error) {
	f, err := os.Create(archivePath)
	if err != nil {
		return 0, err
	}
	n, err := p.downloader.Download(ctx, url, f)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	return n, err
}

func (p *Provisioner) observe(name, outcome string) {
	if p.observer != nil {
		p.observer.ObserveProvision(name, outcome)
	}
}
