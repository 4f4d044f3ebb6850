package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"pairspace-backend/internal/models"
)

type fakePresignStore struct {
	DiskStore
	keys []string
}

func (f *fakePresignStore) PresignPut(_ context.Context, key, _ string, _ time.Duration) (string, string, error) {
	f.keys = append(f.keys, key)
	return "https://bucket.example/" + key + "?sig=1", "https://cdn.example/" + key, nil
}

func TestMediaService_UploadToDisk(t *testing.T) {
	root := t.TempDir()
	svc := NewMediaService(NewDiskStore(root, "/uploads/"), 1024)
	svc.newID = func() string { return "fixed" }

	res, err := svc.Upload(context.Background(), "alice-bob", MediaImage, "Beach.JPG", "image/jpeg", strings.NewReader("jpeg-bytes"), 10)
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if res.FilePath != "/uploads/images/alice-bob/fixed.jpg" {
		t.Errorf("FilePath = %q", res.FilePath)
	}

	data, err := os.ReadFile(filepath.Join(root, "images", "alice-bob", "fixed.jpg"))
	if err != nil {
		t.Fatalf("uploaded file missing: %v", err)
	}
	if string(data) != "jpeg-bytes" {
		t.Errorf("file content = %q", data)
	}
}

func TestMediaService_UploadRejects(t *testing.T) {
	svc := NewMediaService(NewDiskStore(t.TempDir(), "/uploads"), 1024)
	ctx := context.Background()

	tests := []struct {
		name        string
		kind        MediaKind
		contentType string
		size        int64
	}{
		{"text as image", MediaImage, "text/plain", 10},
		{"audio as image", MediaImage, "audio/mpeg", 10},
		{"image as song", MediaSong, "image/png", 10},
		{"malformed content type", MediaImage, "image/", 10},
		{"too large", MediaImage, "image/png", 1025},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Upload(ctx, "alice-bob", tt.kind, "f.bin", tt.contentType, strings.NewReader("x"), tt.size)
			var ve *models.ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("Upload() error = %v, want ValidationError", err)
			}
		})
	}

	if _, err := svc.Upload(ctx, "alice-bob", MediaSong, "track.mp3", "audio/mpeg", strings.NewReader("mp3"), 3); err != nil {
		t.Errorf("song upload error = %v", err)
	}
}

func TestMediaService_ObjectKeyIsContained(t *testing.T) {
	svc := NewMediaService(NewDiskStore(t.TempDir(), "/uploads"), 1024)
	svc.newID = func() string { return "id" }

	key := svc.objectKey("../../etc", MediaSong, "x.MP3")
	if key != "songs/______etc/id.mp3" {
		t.Errorf("objectKey() = %q", key)
	}
	if key := svc.objectKey("c1", MediaImage, "noext"); key != "images/c1/id" {
		t.Errorf("objectKey() = %q", key)
	}
}

func TestMediaService_Presign(t *testing.T) {
	ctx := context.Background()

	disk := NewMediaService(NewDiskStore(t.TempDir(), "/uploads"), 1024)
	var ve *models.ValidationError
	if _, err := disk.Presign(ctx, "alice-bob", MediaImage, "a.png", "image/png"); !errors.As(err, &ve) {
		t.Errorf("disk presign error = %v, want ValidationError", err)
	}

	store := &fakePresignStore{}
	svc := NewMediaService(store, 1024)
	svc.newID = func() string { return "id" }

	res, err := svc.Presign(ctx, "alice-bob", MediaImage, "a.png", "image/png")
	if err != nil {
		t.Fatalf("Presign() error = %v", err)
	}
	if res.ExpiresIn != 300 || res.FileURL != "https://cdn.example/images/alice-bob/id.png" {
		t.Errorf("Presign() = %+v", res)
	}
	if _, err := svc.Presign(ctx, "alice-bob", MediaImage, "a.txt", "text/plain"); !errors.As(err, &ve) {
		t.Errorf("wrong type presign error = %v, want ValidationError", err)
	}
	if len(store.keys) != 1 {
		t.Errorf("presigner called %d times, want 1", len(store.keys))
	}
}

func TestParseMediaKind(t *testing.T) {
	if k, ok := ParseMediaKind("image"); !ok || k != MediaImage {
		t.Errorf("ParseMediaKind(image) = %v, %v", k, ok)
	}
	if _, ok := ParseMediaKind("video"); ok {
		t.Error("video should not parse")
	}
}
