package storage

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type fakePutter struct {
	mu   sync.Mutex
	keys []string
	fail string
}

func (f *fakePutter) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	body, _ := io.ReadAll(in.Body)
	if f.fail != "" && string(body) == f.fail {
		return nil, errors.New("access denied")
	}
	f.mu.Lock()
	f.keys = append(f.keys, *in.Key)
	f.mu.Unlock()
	return &s3.PutObjectOutput{}, nil
}

func newTestUploader(p putter) *Uploader {
	return &Uploader{
		cfg:    Config{Bucket: "b", PublicBaseURL: "https://cdn.test/", Prefix: "/shots/"},
		client: p,
		now:    func() time.Time { return time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC) },
	}
}

func TestNewUploaderValidates(t *testing.T) {
	if _, err := NewUploader(Config{}); err == nil {
		t.Fatal("expected error without bucket")
	}
	u, err := NewUploader(Config{Bucket: "b", Region: "r", AccessKey: "a", SecretKey: "s", PublicBaseURL: "https://cdn"})
	if err != nil {
		t.Fatalf("NewUploader: %v", err)
	}
	if u.cfg.Prefix != "productshot" {
		t.Fatalf("prefix = %q", u.cfg.Prefix)
	}
}

func TestUpload(t *testing.T) {
	p := &fakePutter{}
	u := newTestUploader(p)

	url, err := u.Upload(context.Background(), []byte("png"), "image/png")
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if !strings.HasPrefix(url, "https://cdn.test/shots/2026/03/05/") || !strings.HasSuffix(url, ".png") {
		t.Fatalf("url = %s", url)
	}
	if _, err := u.Upload(context.Background(), nil, "image/png"); err == nil {
		t.Fatal("expected error for empty data")
	}
}

func TestUploadAllKeepsOrderAndNames(t *testing.T) {
	p := &fakePutter{}
	u := newTestUploader(p)

	objs := []Object{
		{Name: "C1_Hero_1.png", Data: []byte("a"), ContentType: "image/png"},
		{Name: "C2_Lifestyle_1.png", Data: []byte("b"), ContentType: "image/png"},
		{Name: "bundle.zip", Data: []byte("c"), ContentType: "application/zip"},
	}
	urls, err := u.UploadAll(context.Background(), objs)
	if err != nil {
		t.Fatalf("UploadAll: %v", err)
	}
	for i, obj := range objs {
		if !strings.HasSuffix(urls[i], "/"+obj.Name) {
			t.Errorf("urls[%d] = %s", i, urls[i])
		}
	}
	if len(p.keys) != 3 {
		t.Fatalf("puts = %d", len(p.keys))
	}
}

func TestUploadAllFails(t *testing.T) {
	u := newTestUploader(&fakePutter{fail: "b"})
	_, err := u.UploadAll(context.Background(), []Object{
		{Name: "a.png", Data: []byte("a")},
		{Name: "b.png", Data: []byte("b")},
	})
	if err == nil || !strings.Contains(err.Error(), "b.png") {
		t.Fatalf("err = %v", err)
	}
}
