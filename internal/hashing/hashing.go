// Package hashing computes SHA-256 digests of evidence files, verifies a set
// of copies against their sources, and writes the CSV reports that accompany
// each recovery.
package hashing

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/conneroisu/casefiler/internal/errors"
	"golang.org/x/sync/errgroup"
)

// Algorithm is the only supported digest.
const Algorithm = "sha256"

// DefaultBufferSize is used when a caller passes a non-positive buffer size.
const DefaultBufferSize = 1 << 20

// New returns a fresh digest.
func New() hash.Hash { return sha256.New() }

// File is a discovered file with the path it should be reported under.
type File struct {
	Path         string
	RelativePath string
	Size         int64
}

// Result is the digest of one file.
type Result struct {
	Path         string        `json:"path"`
	RelativePath string        `json:"relative_path"`
	Size         int64         `json:"size"`
	Hash         string        `json:"hash,omitempty"`
	Duration     time.Duration `json:"duration"`
	Err          error         `json:"-"`
}

// OK reports whether the file was hashed.
func (r Result) OK() bool { return r.Err == nil && r.Hash != "" }

// contextReader stops a copy when ctx is done.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

// NewContextReader wraps r so reads fail once ctx is cancelled.
func NewContextReader(ctx context.Context, r io.Reader) io.Reader {
	return contextReader{ctx: ctx, r: r}
}

// HashReader digests r through a buffer of bufSize bytes.
func HashReader(ctx context.Context, r io.Reader, bufSize int) (string, int64, error) {
	if bufSize <= 0 {
		bufSize = DefaultBufferSize
	}
	h := New()
	n, err := io.CopyBuffer(h, NewContextReader(ctx, r), make([]byte, bufSize))
	if err != nil {
		return "", n, err
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

// HashFile digests the file at path.
func HashFile(ctx context.Context, path string, bufSize int) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, errors.WrapFile(err, "hash", path)
	}
	defer f.Close()

	sum, n, err := HashReader(ctx, f, bufSize)
	if err != nil {
		if ctx.Err() != nil {
			return "", n, ctx.Err()
		}
		return "", n, errors.NewFileOperationError(errors.ErrCodeHashFailed, "hash failed", path, err)
	}
	return sum, n, nil
}

// HashFiles digests files with at most workers in flight. Per-file failures
// are recorded on the Result; the returned error is only set when ctx ends.
func HashFiles(ctx context.Context, files []File, workers, bufSize int) ([]Result, error) {
	if workers < 1 {
		workers = 1
	}
	results := make([]Result, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, f := range files {
		i, f := i, f
		g.Go(func() error {
			start := time.Now()
			sum, n, err := HashFile(gctx, f.Path, bufSize)
			if gctx.Err() != nil {
				return gctx.Err()
			}
			size := f.Size
			if err == nil {
				size = n
			}
			results[i] = Result{
				Path:         f.Path,
				RelativePath: f.RelativePath,
				Size:         size,
				Hash:         sum,
				Duration:     time.Since(start),
				Err:          err,
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

// Discover expands paths into regular files. A file argument is reported by
// its base name; files inside a folder argument keep the folder name as the
// first component of their relative path.
func Discover(paths []string) ([]File, error) {
	var out []File
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, errors.WrapFile(err, "stat", p)
		}
		if !info.IsDir() {
			out = append(out, File{Path: p, RelativePath: filepath.Base(p), Size: info.Size()})
			continue
		}

		parent := filepath.Dir(filepath.Clean(p))
		err = filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.Type().IsRegular() {
				return nil
			}
			fi, err := d.Info()
			if err != nil {
				return err
			}
			rel, err := filepath.Rel(parent, path)
			if err != nil {
				return err
			}
			out = append(out, File{Path: path, RelativePath: rel, Size: fi.Size()})
			return nil
		})
		if err != nil {
			return nil, errors.WrapFile(err, "walk", p)
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].RelativePath < out[j].RelativePath })
	return out, nil
}

// CheckDistinct fails when two discovered files share a relative path, as
// with cam1/clip.mp4 and cam2/clip.mp4 passed as file arguments. Copying
// both would race on one destination.
func CheckDistinct(files []File) error {
	seen := make(map[string]string, len(files))
	for _, f := range files {
		if prev, ok := seen[f.RelativePath]; ok {
			return errors.NewFileOperationError(errors.ErrCodeDuplicateTarget,
				fmt.Sprintf("%s and %s would both be copied to %s", prev, f.Path, f.RelativePath),
				f.Path, nil)
		}
		seen[f.RelativePath] = f.Path
	}
	return nil
}

// TotalSize sums the sizes of files.
func TotalSize(files []File) int64 {
	var total int64
	for _, f := range files {
		total += f.Size
	}
	return total
}
