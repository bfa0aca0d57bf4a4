package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// fakeS3 is an in-memory bucket. Each call first consumes one entry of
// failures, if any remain.
type fakeS3 struct {
	mu          sync.Mutex
	objects     map[string][]byte
	contentType map[string]string
	failures    []error
	gets        int
	pageSize    int
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string][]byte), contentType: make(map[string]string)}
}

func (f *fakeS3) fail() error {
	if len(f.failures) == 0 {
		return nil
	}
	err := f.failures[0]
	f.failures = f.failures[1:]
	return err
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	if err := f.fail(); err != nil {
		return nil, err
	}
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail(); err != nil {
		return nil, err
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	key := aws.ToString(in.Key)
	f.objects[key] = data
	f.contentType[key] = aws.ToString(in.ContentType)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) HeadObject(ctx context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail(); err != nil {
		return nil, err
	}
	if _, ok := f.objects[aws.ToString(in.Key)]; !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{}, nil
}

func (f *fakeS3) DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail(); err != nil {
		return nil, err
	}
	delete(f.objects, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

// ListObjectsV2 pages through keys in descending order, pageSize at a time,
// encoding the page offset as the continuation token.
func (f *fakeS3) ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail(); err != nil {
		return nil, err
	}
	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, aws.ToString(in.Prefix)) {
			keys = append(keys, k)
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(keys)))
	start := 0
	if in.ContinuationToken != nil {
		start = len(aws.ToString(in.ContinuationToken))
	}
	end := len(keys)
	if f.pageSize > 0 && start+f.pageSize < end {
		end = start + f.pageSize
	}
	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(end < len(keys))}
	for _, k := range keys[start:end] {
		out.Contents = append(out.Contents, types.Object{Key: aws.String(k)})
	}
	if end < len(keys) {
		out.NextContinuationToken = aws.String(strings.Repeat("x", end))
	}
	return out, nil
}

func newTestS3(client *fakeS3) *S3Storage {
	return newS3Storage(client, "events", S3Config{MaxRetries: 2, RetryBackoff: time.Millisecond})
}

func TestS3Storage_DownloadMissingObject(t *testing.T) {
	client := newFakeS3()
	storage := newTestS3(client)

	dest := filepath.Join(t.TempDir(), "cache", "20240101.sqlite")
	err := storage.Download(context.Background(), "events/20240101.sqlite", dest)
	if !errors.Is(err, ErrObjectNotFound) {
		t.Fatalf("expected ErrObjectNotFound, got %v", err)
	}
	if client.gets != 1 {
		t.Errorf("missing object was fetched %d times, want 1", client.gets)
	}
	if _, err := os.Stat(dest); !os.IsNotExist(err) {
		t.Errorf("no file should be left at %s", dest)
	}
	if _, err := os.Stat(dest + ".part"); !os.IsNotExist(err) {
		t.Errorf("temporary file was left behind")
	}
}

func TestS3Storage_UploadDownload(t *testing.T) {
	client := newFakeS3()
	storage := newTestS3(client)
	ctx := context.Background()

	content := []byte("partition bytes")
	src := writeTemp(t, "20240101.sqlite", content)
	if err := storage.Upload(ctx, src, "events/20240101.sqlite"); err != nil {
		t.Fatalf("Upload failed: %v", err)
	}
	if got := client.contentType["events/20240101.sqlite"]; got != partitionContentType {
		t.Errorf("content type = %q, want %q", got, partitionContentType)
	}

	dest := filepath.Join(t.TempDir(), "cache", "20240101.sqlite")
	if err := storage.Download(ctx, "events/20240101.sqlite", dest); err != nil {
		t.Fatalf("Download failed: %v", err)
	}
	got, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("failed to read downloaded file: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Errorf("downloaded %q, want %q", got, content)
	}
}

func TestS3Storage_RetriesTransientFailures(t *testing.T) {
	client := newFakeS3()
	client.objects["events/20240102.sqlite"] = []byte("day two")
	client.failures = []error{errors.New("connection reset"), errors.New("slow down")}
	storage := newTestS3(client)

	dest := filepath.Join(t.TempDir(), "20240102.sqlite")
	if err := storage.Download(context.Background(), "events/20240102.sqlite", dest); err != nil {
		t.Fatalf("Download failed: %v", err)
	}
	if client.gets != 3 {
		t.Errorf("gets = %d, want 3", client.gets)
	}

	client.failures = []error{errors.New("a"), errors.New("b"), errors.New("c")}
	err := storage.Download(context.Background(), "events/20240102.sqlite", dest)
	if !errors.Is(err, ErrDownloadFailed) {
		t.Fatalf("expected ErrDownloadFailed after exhausting retries, got %v", err)
	}
}

func TestS3Storage_ExistsAndDelete(t *testing.T) {
	client := newFakeS3()
	client.objects["events/20240101.sqlite"] = []byte("x")
	storage := newTestS3(client)
	ctx := context.Background()

	exists, err := storage.Exists(ctx, "events/20240101.sqlite")
	if err != nil || !exists {
		t.Fatalf("Exists = %v, %v; want true", exists, err)
	}
	exists, err = storage.Exists(ctx, "events/20240109.sqlite")
	if err != nil || exists {
		t.Fatalf("Exists = %v, %v; want false", exists, err)
	}

	if err := storage.Delete(ctx, "events/20240101.sqlite"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := storage.Delete(ctx, "events/20240101.sqlite"); err != nil {
		t.Fatalf("deleting a missing object failed: %v", err)
	}
	if _, ok := client.objects["events/20240101.sqlite"]; ok {
		t.Errorf("object still present after Delete")
	}
}

func TestS3Storage_ListObjectsSortedAcrossPages(t *testing.T) {
	client := newFakeS3()
	client.pageSize = 2
	for _, k := range []string{"events/20240103.sqlite", "events/20240101.sqlite", "events/20240102.sqlite", "other/x"} {
		client.objects[k] = []byte(k)
	}
	storage := newTestS3(client)

	keys, err := storage.ListObjects(context.Background(), "events/")
	if err != nil {
		t.Fatalf("ListObjects failed: %v", err)
	}
	want := []string{"events/20240101.sqlite", "events/20240102.sqlite", "events/20240103.sqlite"}
	if !reflect.DeepEqual(keys, want) {
		t.Errorf("ListObjects = %v, want %v", keys, want)
	}
}

func TestS3Storage_CancelledContext(t *testing.T) {
	storage := newTestS3(newFakeS3())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := storage.Exists(ctx, "events/20240101.sqlite"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
