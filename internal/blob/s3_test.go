package blob

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// fakeS3 is an in-memory S3API keyed by bucket/key.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	ctype   map[string]string
	putErr  error
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string][]byte), ctype: make(map[string]string)}
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(string(data)))}, nil
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	k := aws.ToString(in.Bucket) + "/" + aws.ToString(in.Key)
	f.objects[k] = data
	f.ctype[k] = aws.ToString(in.ContentType)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) HeadObject(ctx context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{ContentLength: aws.Int64(int64(len(data)))}, nil
}

func TestS3Store_Key(t *testing.T) {
	s := NewS3StoreWithClient(newFakeS3(), "cars", "/webroot/")
	tests := []struct{ rel, want string }{
		{"/upfile/1041/8430/x.jpg", "webroot/upfile/1041/8430/x.jpg"},
		{BackupPath("/upfile/1041/8430/x.jpg"), "webroot/upfile/1041/8430/.backup/x.jpg"},
		{"upfile/a.png", "webroot/upfile/a.png"},
	}
	for _, tt := range tests {
		if got := s.Key(tt.rel); got != tt.want {
			t.Errorf("Key(%q) = %q, want %q", tt.rel, got, tt.want)
		}
	}
}

func TestS3Store_RoundTrip(t *testing.T) {
	ctx := context.Background()
	fake := newFakeS3()
	s := NewS3StoreWithClient(fake, "cars", "webroot")

	ok, err := s.Exists(ctx, "/upfile/1041/8430/x.jpg")
	if err != nil || ok {
		t.Fatalf("Exists before write = %v, %v", ok, err)
	}
	if err := s.Write(ctx, "/upfile/1041/8430/x.jpg", []byte("abc")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if ct := fake.ctype["cars/webroot/upfile/1041/8430/x.jpg"]; ct != "image/jpeg" {
		t.Errorf("content type = %q, want image/jpeg", ct)
	}
	data, err := s.Read(ctx, "/upfile/1041/8430/x.jpg")
	if err != nil || string(data) != "abc" {
		t.Fatalf("Read = %q, %v", data, err)
	}
	size, err := s.Size(ctx, "/upfile/1041/8430/x.jpg")
	if err != nil || size != 3 {
		t.Errorf("Size = %d, %v; want 3", size, err)
	}
	ok, err = s.Exists(ctx, "/upfile/1041/8430/x.jpg")
	if err != nil || !ok {
		t.Errorf("Exists after write = %v, %v", ok, err)
	}
}

func TestS3Store_NotFound(t *testing.T) {
	s := NewS3StoreWithClient(newFakeS3(), "cars", "webroot")
	if _, err := s.Read(context.Background(), "/nope.jpg"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Read error = %v, want ErrNotFound", err)
	}
	if _, err := s.Size(context.Background(), "/nope.jpg"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Size error = %v, want ErrNotFound", err)
	}
}

func TestS3Store_WriteError(t *testing.T) {
	fake := newFakeS3()
	fake.putErr = errors.New("access denied")
	s := NewS3StoreWithClient(fake, "cars", "webroot")
	err := s.Write(context.Background(), "/x.jpg", []byte("a"))
	if err == nil || !strings.Contains(err.Error(), "access denied") {
		t.Errorf("Write error = %v, want access denied", err)
	}
}
