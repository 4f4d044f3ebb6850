package services

import (
	"context"
	"fmt"
	"io"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"pairspace-backend/internal/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

const presignExpiry = 5 * time.Minute

// MediaKind is the kind of uploaded file
type MediaKind string

const (
	MediaImage MediaKind = "image"
	MediaSong  MediaKind = "song"
)

// ParseMediaKind maps a path segment to a MediaKind
func ParseMediaKind(s string) (MediaKind, bool) {
	switch MediaKind(s) {
	case MediaImage, MediaSong:
		return MediaKind(s), true
	}
	return "", false
}

func (k MediaKind) folder() string {
	if k == MediaImage {
		return "images"
	}
	return "songs"
}

func (k MediaKind) accepts(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	switch k {
	case MediaImage:
		return strings.HasPrefix(mediaType, "image/")
	case MediaSong:
		return strings.HasPrefix(mediaType, "audio/") || mediaType == "application/octet-stream"
	}
	return false
}

// MediaStore stores uploaded blobs and returns the URL they are served at
type MediaStore interface {
	Save(ctx context.Context, key, contentType string, body io.Reader, size int64) (string, error)
}

// Presigner issues URLs that let a client upload directly to the store
type Presigner interface {
	PresignPut(ctx context.Context, key, contentType string, expires time.Duration) (uploadURL, fileURL string, err error)
}

// MediaService validates uploads and hands them to the configured store
type MediaService struct {
	store    MediaStore
	maxBytes int64
	newID    func() string
}

// NewMediaService creates a new media service
func NewMediaService(store MediaStore, maxBytes int64) *MediaService {
	return &MediaService{
		store:    store,
		maxBytes: maxBytes,
		newID:    func() string { return uuid.New().String() },
	}
}

// MaxBytes returns the upload size limit
func (s *MediaService) MaxBytes() int64 {
	return s.maxBytes
}

// UploadResult is returned after a successful upload
type UploadResult struct {
	FilePath string `json:"filePath"`
}

// Upload stores a file for a couple under {images|songs}/{coupleId}/{uuid}{ext}
func (s *MediaService) Upload(ctx context.Context, coupleID string, kind MediaKind, filename, contentType string, body io.Reader, size int64) (*UploadResult, error) {
	if err := s.check(kind, contentType, size); err != nil {
		return nil, err
	}

	key := s.objectKey(coupleID, kind, filename)
	url, err := s.store.Save(ctx, key, contentType, io.LimitReader(body, s.maxBytes), size)
	if err != nil {
		return nil, fmt.Errorf("failed to store upload: %w", err)
	}
	return &UploadResult{FilePath: url}, nil
}

// PresignResponse represents the response with a pre-signed URL
type PresignResponse struct {
	UploadURL string `json:"uploadUrl"`
	FileURL   string `json:"fileUrl"`
	ExpiresIn int    `json:"expiresIn"`
}

// Presign generates a pre-signed PUT URL when the store supports it
func (s *MediaService) Presign(ctx context.Context, coupleID string, kind MediaKind, filename, contentType string) (*PresignResponse, error) {
	presigner, ok := s.store.(Presigner)
	if !ok {
		return nil, models.NewValidationError("direct uploads are not supported by this storage backend")
	}
	if err := s.check(kind, contentType, 0); err != nil {
		return nil, err
	}

	key := s.objectKey(coupleID, kind, filename)
	uploadURL, fileURL, err := presigner.PresignPut(ctx, key, contentType, presignExpiry)
	if err != nil {
		return nil, fmt.Errorf("failed to generate pre-signed URL: %w", err)
	}
	return &PresignResponse{
		UploadURL: uploadURL,
		FileURL:   fileURL,
		ExpiresIn: int(presignExpiry.Seconds()),
	}, nil
}

func (s *MediaService) check(kind MediaKind, contentType string, size int64) error {
	if !kind.accepts(contentType) {
		return models.NewValidationError("unsupported file type %q for %s", contentType, kind)
	}
	if size > s.maxBytes {
		return models.NewValidationError("file exceeds the %d byte limit", s.maxBytes)
	}
	return nil
}

func (s *MediaService) objectKey(coupleID string, kind MediaKind, filename string) string {
	ext := strings.ToLower(filepath.Ext(filepath.Base(filename)))
	if len(ext) > 10 {
		ext = ""
	}
	return path.Join(kind.folder(), safeSegment(coupleID), s.newID()+ext)
}

func safeSegment(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, s)
}

// DiskStore keeps uploads on the local filesystem
type DiskStore struct {
	root      string
	urlPrefix string
}

// NewDiskStore creates a store rooted at root, serving files under urlPrefix
func NewDiskStore(root, urlPrefix string) *DiskStore {
	return &DiskStore{root: root, urlPrefix: strings.TrimSuffix(urlPrefix, "/")}
}

// Save implements MediaStore
func (d *DiskStore) Save(ctx context.Context, key, _ string, body io.Reader, _ int64) (string, error) {
	dst := filepath.Join(d.root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", fmt.Errorf("failed to create upload directory: %w", err)
	}

	f, err := os.Create(dst)
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}
	if _, err := io.Copy(f, body); err != nil {
		f.Close()
		os.Remove(dst)
		return "", fmt.Errorf("failed to write file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to close file: %w", err)
	}
	return d.urlPrefix + "/" + key, nil
}

// S3Options configures an S3-compatible bucket
type S3Options struct {
	Region        string
	Bucket        string
	AccessKey     string
	SecretKey     string
	Endpoint      string
	PublicBaseURL string
	UsePathStyle  bool
}

// S3Store keeps uploads in an S3-compatible bucket
type S3Store struct {
	client  *s3.Client
	bucket  string
	baseURL string
}

// NewS3Store creates an S3 client. Static credentials are used when given,
// otherwise the default AWS credential chain applies.
func NewS3Store(ctx context.Context, opts S3Options) (*S3Store, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(opts.Region)}
	if opts.AccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		o.UsePathStyle = opts.UsePathStyle
	})

	baseURL := strings.TrimSuffix(opts.PublicBaseURL, "/")
	if baseURL == "" {
		baseURL = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", opts.Bucket, opts.Region)
	}

	return &S3Store{client: client, bucket: opts.Bucket, baseURL: baseURL}, nil
}

// Save implements MediaStore
func (s *S3Store) Save(ctx context.Context, key, contentType string, body io.Reader, size int64) (string, error) {
	input := &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
	}
	if size > 0 {
		input.ContentLength = aws.Int64(size)
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return "", fmt.Errorf("failed to put object: %w", err)
	}
	return s.baseURL + "/" + key, nil
}

// PresignPut implements Presigner
func (s *S3Store) PresignPut(ctx context.Context, key, contentType string, expires time.Duration) (string, string, error) {
	presignClient := s3.NewPresignClient(s.client)
	request, err := presignClient.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	}, func(opts *s3.PresignOptions) {
		opts.Expires = expires
	})
	if err != nil {
		return "", "", err
	}
	return request.URL, s.baseURL + "/" + key, nil
}
