// Package fileops copies evidence into the case folder, hashing every byte as
// it streams and re-reading the destination to prove the copy is identical.
package fileops

import (
	"context"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/conneroisu/casefiler/internal/errors"
	"github.com/conneroisu/casefiler/internal/hashing"
	"github.com/conneroisu/casefiler/internal/logging"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultBufferSize = 1024 * 1024
	DefaultWorkers    = 4
)

// FileResult describes one copied file.
type FileResult struct {
	SourcePath string        `json:"source_path"`
	DestPath   string        `json:"dest_path"`
	SourceHash string        `json:"source_hash,omitempty"`
	DestHash   string        `json:"dest_hash,omitempty"`
	Verified   bool          `json:"verified"`
	Size       int64         `json:"size"`
	Duration   time.Duration `json:"duration"`
	SpeedMBps  float64       `json:"speed_mbps"`
	Err        error         `json:"-"`
}

// ProgressFunc is called after each file finishes.
type ProgressFunc func(done, total int, current string)

// Copier streams files with an optional integrity check.
type Copier struct {
	bufferSize int
	workers    int
	verify     bool
	logger     logging.Logger
	progress   ProgressFunc
}

type Option func(*Copier)

func WithBufferSize(n int) Option {
	return func(c *Copier) {
		if n > 0 {
			c.bufferSize = n
		}
	}
}

func WithWorkers(n int) Option {
	return func(c *Copier) {
		if n > 0 {
			c.workers = n
		}
	}
}

// WithVerification toggles hashing. Without it files are copied but no
// digests are produced.
func WithVerification(on bool) Option {
	return func(c *Copier) { c.verify = on }
}

func WithLogger(l logging.Logger) Option {
	return func(c *Copier) { c.logger = l.WithComponent("fileops") }
}

func WithProgress(fn ProgressFunc) Option {
	return func(c *Copier) { c.progress = fn }
}

// NewCopier returns a Copier that verifies by default.
func NewCopier(opts ...Option) *Copier {
	c := &Copier{
		bufferSize: DefaultBufferSize,
		workers:    DefaultWorkers,
		verify:     true,
		logger:     logging.NopLogger{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CopyFile copies src to dst, creating parent directories. With verification
// on, the source is hashed while streaming and the synced destination is
// re-read; differing digests yield a hash verification error and the
// destination is left in place for inspection.
func (c *Copier) CopyFile(ctx context.Context, src, dst string) (*FileResult, error) {
	start := time.Now()
	res := &FileResult{SourcePath: src, DestPath: dst}

	in, err := os.Open(src)
	if err != nil {
		return res, errors.WrapFile(err, "open source", src)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return res, errors.WrapFile(err, "stat source", src)
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return res, errors.WrapFile(err, "create directory", filepath.Dir(dst))
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return res, errors.WrapFile(err, "create destination", dst)
	}

	h := hashing.New()
	var w io.Writer = out
	if c.verify {
		w = io.MultiWriter(out, h)
	}

	n, err := io.CopyBuffer(w, hashing.NewContextReader(ctx, in), make([]byte, c.bufferSize))
	if err == nil {
		err = out.Sync()
	}
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(dst)
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		return res, errors.NewFileOperationError(errors.ErrCodeCopyFailed, "copy failed", dst, err).
			WithContext("source", src)
	}
	res.Size = n

	if err := os.Chtimes(dst, time.Now(), info.ModTime()); err != nil {
		c.logger.Warn(ctx, err, "could not preserve modification time", "path", dst)
	}

	if c.verify {
		res.SourceHash = hex.EncodeToString(h.Sum(nil))
		res.DestHash, _, err = hashing.HashFile(ctx, dst, c.bufferSize)
		if err != nil {
			return res, err
		}
		if res.SourceHash != res.DestHash {
			return res, errors.NewHashVerificationError(dst, res.SourceHash, res.DestHash)
		}
		res.Verified = true
	}

	res.Duration = time.Since(start)
	if secs := res.Duration.Seconds(); secs > 0 {
		res.SpeedMBps = float64(res.Size) / (1024 * 1024) / secs
	}
	return res, nil
}

// CopyResult is the outcome of CopyItems.
type CopyResult struct {
	// Files is keyed by the path relative to the destination.
	Files   map[string]*FileResult
	Summary Summary
	Errors  []error
}

// Sorted returns the file results ordered by relative path.
func (r *CopyResult) Sorted() []*FileResult {
	keys := make([]string, 0, len(r.Files))
	for k := range r.Files {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]*FileResult, 0, len(keys))
	for _, k := range keys {
		out = append(out, r.Files[k])
	}
	return out
}

// Records converts verified results into hash report rows.
func (r *CopyResult) Records() []hashing.CopyRecord {
	var out []hashing.CopyRecord
	for _, f := range r.Sorted() {
		if f.SourceHash == "" {
			continue
		}
		out = append(out, hashing.CopyRecord{
			SourcePath: f.SourcePath,
			DestPath:   f.DestPath,
			SourceHash: f.SourceHash,
			DestHash:   f.DestHash,
			Verified:   f.Verified,
		})
	}
	return out
}

// CopyItems copies files and folders into dest. A file lands at dest/name; a
// folder keeps its own name and inner structure. Per-file failures are
// collected and returned together once every file has been attempted.
func (c *Copier) CopyItems(ctx context.Context, items []string, dest string) (*CopyResult, error) {
	perf := logging.StartOperation(c.logger, "copy_items")
	start := time.Now()

	files, err := hashing.Discover(items)
	if err != nil {
		return nil, err
	}
	if err := hashing.CheckDistinct(files); err != nil {
		return nil, err
	}

	result := &CopyResult{Files: make(map[string]*FileResult, len(files))}
	collector := errors.NewErrorCollector()

	var (
		mu   sync.Mutex
		done int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)

	for _, f := range files {
		f := f
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			dst := filepath.Join(dest, f.RelativePath)
			fr, err := c.CopyFile(gctx, f.Path, dst)
			if gctx.Err() != nil {
				return gctx.Err()
			}
			fr.Err = err
			if err != nil {
				collector.AddError(err)
				c.logger.Error(gctx, err, "copy failed", "source", f.Path)
			} else {
				c.logger.Debug(gctx, "copied", "source", f.Path, "verified", fr.Verified)
			}

			mu.Lock()
			result.Files[f.RelativePath] = fr
			done++
			n := done
			mu.Unlock()

			if c.progress != nil {
				c.progress(n, len(files), f.RelativePath)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		perf.EndWithError(ctx, err)
		return result, err
	}

	result.Errors = collector.GetAllErrors()
	result.Summary = Summarize(result.Sorted(), time.Since(start))

	if collector.HasErrors() {
		err := errors.CombineErrors(result.Errors...)
		perf.EndWithError(ctx, err, "failed", result.Summary.Failed)
		return result, err
	}
	perf.End(ctx, "files", result.Summary.TotalFiles, "bytes", result.Summary.TotalBytes)
	return result, nil
}
