// Package archive packs organized case folders into ZIP files and can push
// the result to a cloud bucket.
package archive

import (
	"archive/zip"
	"compress/flate"
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/conneroisu/casefiler/internal/errors"
	"github.com/conneroisu/casefiler/internal/hashing"
)

const partialSuffix = ".partial"

// Info describes a finished archive.
type Info struct {
	Path  string `json:"path"`
	Files int    `json:"files"`
	Bytes int64  `json:"bytes"`
	Level string `json:"level,omitempty"`
}

// CreateArchive zips srcDir into zipPath. Entry names start with the base
// name of srcDir. Level 0 stores entries uncompressed; 1 to 9 are deflate
// levels. The archive is written to zipPath+".partial" and renamed once
// complete, so a crash never leaves a truncated file under the final name.
func CreateArchive(ctx context.Context, srcDir, zipPath string, level int) (info *Info, err error) {
	if level < flate.NoCompression || level > flate.BestCompression {
		return nil, errors.NewArchiveError("compression level must be between 0 and 9", zipPath, nil).
			WithContext("level", level)
	}

	st, err := os.Stat(srcDir)
	if err != nil {
		return nil, errors.WrapFile(err, "stat archive source", srcDir)
	}
	if !st.IsDir() {
		return nil, errors.NewArchiveError("archive source is not a directory", zipPath, nil).
			WithContext("source", srcDir)
	}

	if err := os.MkdirAll(filepath.Dir(zipPath), 0o755); err != nil {
		return nil, errors.WrapFile(err, "create archive directory", filepath.Dir(zipPath))
	}

	partial := zipPath + partialSuffix
	f, err := os.Create(partial)
	if err != nil {
		return nil, errors.WrapFile(err, "create archive", partial)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(partial)
		}
	}()

	info = &Info{Path: zipPath}
	zw := zip.NewWriter(f)
	method := zip.Store
	if level > flate.NoCompression {
		method = zip.Deflate
		zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
			return flate.NewWriter(out, level)
		})
	}

	absZip, _ := filepath.Abs(zipPath)
	absPartial, _ := filepath.Abs(partial)
	parent := filepath.Dir(filepath.Clean(srcDir))

	walkErr := filepath.WalkDir(srcDir, func(path string, d fs.DirEntry, werr error) error {
		if werr != nil {
			return werr
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if abs, _ := filepath.Abs(path); abs == absZip || abs == absPartial {
			return nil
		}

		rel, err := filepath.Rel(parent, path)
		if err != nil {
			return err
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}

		hdr, err := zip.FileInfoHeader(fi)
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)
		if d.IsDir() {
			hdr.Name += "/"
			hdr.Method = zip.Store
			_, err = zw.CreateHeader(hdr)
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		hdr.Method = method

		w, err := zw.CreateHeader(hdr)
		if err != nil {
			return err
		}
		src, err := os.Open(path)
		if err != nil {
			return err
		}
		n, err := io.Copy(w, hashing.NewContextReader(ctx, src))
		src.Close()
		if err != nil {
			return err
		}
		info.Files++
		info.Bytes += n
		return nil
	})

	closeErr := zw.Close()
	if ferr := f.Close(); closeErr == nil {
		closeErr = ferr
	}
	if walkErr != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errors.NewArchiveError("failed to add files to archive", zipPath, walkErr)
	}
	if closeErr != nil {
		return nil, errors.NewArchiveError("failed to finalize archive", zipPath, closeErr)
	}

	if err = os.Rename(partial, zipPath); err != nil {
		return nil, errors.NewArchiveError("failed to move archive into place", zipPath, err)
	}
	return info, nil
}

// ensureZip appends .zip unless name already ends with it.
func ensureZip(name string) string {
	if strings.HasSuffix(strings.ToLower(name), ".zip") {
		return name
	}
	return name + ".zip"
}
