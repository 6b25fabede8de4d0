package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3API is the subset of the S3 client S3Store uses. *s3.Client
// implements it.
type S3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// Presigner signs GET URLs for claimed files.
type Presigner interface {
	PresignGetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

const metaFilename = "original-filename"

// S3Store stores uploads in AWS S3 or an S3-compatible service.
//
//	store, err := upload.NewS3StoreFromConfig(ctx, upload.S3Options{
//	    Bucket: "my-bucket",
//	    Prefix: "uploads/",
//	})
//	r.Post("/upload", upload.DataURLHandler(store, nil))
type S3Store struct {
	client    S3API
	presigner Presigner
	bucket    string
	prefix    string
	maxSize   int64
	urlExpiry time.Duration
}

// NewS3Store creates a new S3 upload store.
//
// Parameters:
//   - client: S3 client; an *s3.Client also enables presigned URLs
//   - bucket: S3 bucket name
//   - prefix: Key prefix for uploads (e.g., "uploads/temp/")
//   - maxSize: Maximum file size in bytes (0 = no limit)
func NewS3Store(client S3API, bucket, prefix string, maxSize int64) *S3Store {
	s := &S3Store{
		client:    client,
		bucket:    bucket,
		prefix:    prefix,
		maxSize:   maxSize,
		urlExpiry: 24 * time.Hour,
	}
	if c, ok := client.(*s3.Client); ok {
		s.presigner = s3.NewPresignClient(c)
	}
	return s
}

// S3Options configures NewS3StoreFromConfig.
type S3Options struct {
	Bucket string
	Prefix string

	// Region is the AWS region. Empty uses the default chain.
	Region string

	// Endpoint is a custom endpoint for S3-compatible providers
	// (MinIO, R2). Empty uses AWS.
	Endpoint string

	// UsePathStyle puts the bucket in the path instead of the host.
	UsePathStyle bool

	MaxSize   int64
	URLExpiry time.Duration
}

// NewS3StoreFromConfig builds an S3 client from the default AWS credential
// chain (env vars, shared config, IAM role) and wraps it in an S3Store.
func NewS3StoreFromConfig(ctx context.Context, opts S3Options) (*S3Store, error) {
	if opts.Bucket == "" {
		return nil, errors.New("upload: S3 bucket is required")
	}

	var loadOpts []func(*awsconfig.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("upload: load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if opts.Endpoint != "" {
		endpoint := opts.Endpoint
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = &endpoint
		})
	}
	if opts.UsePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	s := NewS3Store(s3.NewFromConfig(awsCfg, s3Opts...), opts.Bucket, opts.Prefix, opts.MaxSize)
	if opts.URLExpiry > 0 {
		s.WithURLExpiry(opts.URLExpiry)
	}
	return s, nil
}

// WithURLExpiry sets how long presigned URLs are valid.
func (s *S3Store) WithURLExpiry(d time.Duration) *S3Store {
	s.urlExpiry = d
	return s
}

// WithPresigner sets the presigner used for File.URL.
func (s *S3Store) WithPresigner(p Presigner) *S3Store {
	s.presigner = p
	return s
}

// Save uploads a file to S3 and returns a temp ID.
func (s *S3Store) Save(ctx context.Context, filename, contentType string, size int64, r io.Reader) (string, error) {
	if s.maxSize > 0 && size > s.maxSize {
		return "", ErrTooLarge
	}

	tempID := NewTempID()
	key := s.prefix + tempID

	// Buffered so the size limit holds before anything reaches S3.
	var buf bytes.Buffer
	if s.maxSize > 0 {
		limited := io.LimitReader(r, s.maxSize+1)
		n, err := io.Copy(&buf, limited)
		if err != nil {
			return "", err
		}
		if n > s.maxSize {
			return "", ErrTooLarge
		}
	} else {
		if _, err := io.Copy(&buf, r); err != nil {
			return "", err
		}
	}

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String(contentType),
		Metadata: map[string]string{
			metaFilename:  filename,
			"upload-time": time.Now().UTC().Format(time.RFC3339),
		},
	})
	if err != nil {
		return "", fmt.Errorf("upload: s3 put: %w", err)
	}

	return tempID, nil
}

// Claim retrieves a temp file from S3. The object is deleted when the
// returned File is closed.
func (s *S3Store) Claim(ctx context.Context, tempID string) (*File, error) {
	if !validTempID(tempID) {
		return nil, ErrNotFound
	}
	key := s.prefix + tempID

	head, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, ErrNotFound
	}

	obj, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, ErrNotFound
	}

	filename := tempID
	if fn, ok := head.Metadata[metaFilename]; ok && fn != "" {
		filename = fn
	}

	contentType := "application/octet-stream"
	if head.ContentType != nil {
		contentType = *head.ContentType
	}

	var size int64
	if head.ContentLength != nil {
		size = *head.ContentLength
	}

	var url string
	if s.presigner != nil {
		signed, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		}, s3.WithPresignExpires(s.urlExpiry))
		if err == nil {
			url = signed.URL
		}
	}

	return &File{
		ID:          tempID,
		Filename:    filename,
		ContentType: contentType,
		Size:        size,
		URL:         url,
		Reader:      &deleteOnCloseObject{ReadCloser: obj.Body, store: s, key: key},
	}, nil
}

// Cleanup removes objects under the prefix older than maxAge.
func (s *S3Store) Cleanup(ctx context.Context, maxAge time.Duration) error {
	cutoff := time.Now().Add(-maxAge)

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.prefix),
	})

	var toDelete []string
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return err
		}

		for _, obj := range page.Contents {
			if obj.Key != nil && obj.LastModified != nil && obj.LastModified.Before(cutoff) {
				toDelete = append(toDelete, *obj.Key)
			}
		}
	}

	var errs []error
	for _, key := range toDelete {
		if err := s.delete(ctx, key); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *S3Store) delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	return err
}

// deleteOnCloseObject deletes the S3 object once its body is closed.
type deleteOnCloseObject struct {
	io.ReadCloser
	store *S3Store
	key   string
}

func (o *deleteOnCloseObject) Close() error {
	err := o.ReadCloser.Close()
	if derr := o.store.delete(context.Background(), o.key); err == nil {
		err = derr
	}
	return err
}
