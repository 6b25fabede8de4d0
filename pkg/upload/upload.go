package upload

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a temp file doesn't exist.
var ErrNotFound = errors.New("upload: file not found")

// ErrExpired is returned when a temp file has expired.
var ErrExpired = errors.New("upload: file expired")

// ErrTooLarge is returned when a file exceeds the size limit.
var ErrTooLarge = errors.New("upload: file too large")

// ErrTypeNotAllowed is returned when a file's type or extension is rejected.
var ErrTypeNotAllowed = errors.New("upload: file type not allowed")

// Store is the interface for upload storage backends.
type Store interface {
	// Save stores the uploaded file and returns a temp ID.
	// The file is stored temporarily until Claim is called.
	Save(ctx context.Context, filename, contentType string, size int64, r io.Reader) (tempID string, err error)

	// Claim retrieves a temp file. The temp file is removed when the
	// returned File is closed.
	Claim(ctx context.Context, tempID string) (*File, error)

	// Cleanup removes temp files older than maxAge.
	Cleanup(ctx context.Context, maxAge time.Duration) error
}

// File represents an uploaded file.
type File struct {
	// ID is the unique identifier for this upload.
	ID string

	// Filename is the original filename from the client.
	Filename string

	// ContentType is the MIME type of the file.
	ContentType string

	// Size is the file size in bytes.
	Size int64

	// Path is the local filesystem path (for DiskStore).
	Path string

	// URL is the remote URL (for S3Store with a presigner).
	URL string

	// Reader provides access to the file contents.
	Reader io.ReadCloser
}

// Close closes the file reader if open.
func (f *File) Close() error {
	if f.Reader != nil {
		return f.Reader.Close()
	}
	return nil
}

// Claim retrieves a temp file by ID.
//
//	file, err := upload.Claim(ctx, store, tempID)
//	if err != nil {
//	    return err
//	}
//	defer file.Close()
func Claim(ctx context.Context, store Store, tempID string) (*File, error) {
	return store.Claim(ctx, tempID)
}

// NewTempID returns a fresh temp ID.
func NewTempID() string {
	return uuid.NewString()
}

// validTempID reports whether id could have come from NewTempID.
// Stores use it to refuse path-like ids.
func validTempID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// Config holds configuration for the upload handlers.
type Config struct {
	// MaxFileSize is the maximum allowed file size in bytes.
	// Default: 10MB.
	MaxFileSize int64

	// AllowedTypes is a list of allowed MIME types, matched against the
	// type detected from the content. If empty, all types are allowed.
	AllowedTypes []string

	// AllowedExtensions is a list of allowed filename extensions
	// (".png"). If empty, all extensions are allowed.
	AllowedExtensions []string

	// RequireExtensionMatch rejects files whose extension does not map to
	// the detected type.
	RequireExtensionMatch bool

	// TempExpiry is how long temp files live before cleanup.
	// Default: 1 hour.
	TempExpiry time.Duration

	// Logger receives handler logs. Default: slog.Default().
	Logger *slog.Logger
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		MaxFileSize: 10 * 1024 * 1024, // 10MB
		TempExpiry:  time.Hour,
	}
}

func (c *Config) maxSize() int64 {
	if c.MaxFileSize <= 0 {
		return 10 * 1024 * 1024
	}
	return c.MaxFileSize
}

func (c *Config) logger() *slog.Logger {
	l := c.Logger
	if l == nil {
		l = slog.Default()
	}
	return l.With("component", "upload")
}

// RunCleanup calls store.Cleanup every interval until ctx is done.
func RunCleanup(ctx context.Context, store Store, interval, maxAge time.Duration, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "upload")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := store.Cleanup(ctx, maxAge); err != nil {
				logger.Warn("upload cleanup failed", "error", err)
			}
		}
	}
}
