package archive

import (
	"context"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/conneroisu/casefiler/internal/errors"
	"github.com/conneroisu/casefiler/internal/logging"
	"google.golang.org/api/googleapi"
)

// ErrObjectExists is returned by a writer's Close when the object was
// already present and the write was refused.
var ErrObjectExists = errors.New("object already exists")

// ObjectWriterFactory opens a create-only writer for an object name.
// Cancelling ctx before Close must abandon the write.
type ObjectWriterFactory interface {
	NewWriter(ctx context.Context, object string) (io.WriteCloser, error)
}

// UploadResult describes one uploaded archive.
type UploadResult struct {
	Object        string `json:"object"`
	Bytes         int64  `json:"bytes"`
	AlreadyExists bool   `json:"already_exists"`
}

// Uploader streams local files to prefix/basename through a factory.
type Uploader struct {
	factory ObjectWriterFactory
	prefix  string
	logger  logging.Logger
	close   func() error
}

// NewUploader wraps factory.
func NewUploader(factory ObjectWriterFactory, prefix string, logger logging.Logger) *Uploader {
	if logger == nil {
		logger = logging.NopLogger{}
	}
	return &Uploader{
		factory: factory,
		prefix:  strings.Trim(prefix, "/"),
		logger:  logger.WithComponent("upload"),
	}
}

// ObjectName returns the object an upload of localPath targets.
func (u *Uploader) ObjectName(localPath string) string {
	base := filepath.Base(localPath)
	if u.prefix == "" {
		return base
	}
	return path.Join(u.prefix, base)
}

// Upload streams localPath. An object that already exists is not
// overwritten and is reported with AlreadyExists set.
func (u *Uploader) Upload(ctx context.Context, localPath string) (*UploadResult, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return nil, errors.WrapFile(err, "open upload", localPath)
	}
	defer f.Close()

	object := u.ObjectName(localPath)
	res := &UploadResult{Object: object}

	wctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w, err := u.factory.NewWriter(wctx, object)
	if err != nil {
		return nil, errors.NewArchiveError("failed to open upload", localPath, err).WithContext("object", object)
	}

	n, err := io.Copy(w, f)
	if err != nil {
		cancel()
		_ = w.Close()
		if errors.Is(err, ErrObjectExists) {
			res.AlreadyExists = true
			return res, nil
		}
		return nil, errors.NewArchiveError("upload failed", localPath, err).WithContext("object", object)
	}

	if err := w.Close(); err != nil {
		if errors.Is(err, ErrObjectExists) {
			u.logger.Info(ctx, "object already exists, skipping", "object", object)
			res.AlreadyExists = true
			return res, nil
		}
		return nil, errors.NewArchiveError("failed to finalize upload", localPath, err).WithContext("object", object)
	}

	res.Bytes = n
	u.logger.Info(ctx, "uploaded archive", "object", object, "bytes", n)
	return res, nil
}

// Close releases the client behind a GCS uploader.
func (u *Uploader) Close() error {
	if u.close != nil {
		return u.close()
	}
	return nil
}

// GCSWriterFactory writes objects to a Cloud Storage bucket with a
// DoesNotExist precondition.
type GCSWriterFactory struct {
	Bucket *storage.BucketHandle
}

func (g GCSWriterFactory) NewWriter(ctx context.Context, object string) (io.WriteCloser, error) {
	w := g.Bucket.Object(object).If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	w.ContentType = "application/zip"
	return gcsWriter{w}, nil
}

type gcsWriter struct {
	*storage.Writer
}

func (w gcsWriter) Write(p []byte) (int, error) {
	n, err := w.Writer.Write(p)
	return n, translateGCSError(err)
}

func (w gcsWriter) Close() error {
	return translateGCSError(w.Writer.Close())
}

func translateGCSError(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code == http.StatusPreconditionFailed {
		return ErrObjectExists
	}
	return err
}

// NewGCSUploader connects to Cloud Storage with application default
// credentials.
func NewGCSUploader(ctx context.Context, bucket, prefix string, logger logging.Logger) (*Uploader, error) {
	if bucket == "" {
		return nil, errors.NewConfigError(errors.ErrCodeConfigInvalid, "archive.upload.bucket is empty")
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, errors.NewArchiveError("failed to create storage client", "gs://"+bucket, err)
	}

	u := NewUploader(GCSWriterFactory{Bucket: client.Bucket(bucket)}, prefix, logger)
	u.close = client.Close
	return u, nil
}
