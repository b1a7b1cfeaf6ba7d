package remote

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
)

// mockS3 serves objects from memory, honouring byte ranges the way the
// download manager requests them.
type mockS3 struct {
	s3iface.S3API

	mu      sync.Mutex
	objects map[string][]byte
	gets    int
	types   []string
}

func (m *mockS3) GetObjectWithContext(_ aws.Context, in *s3.GetObjectInput, _ ...request.Option) (*s3.GetObjectOutput, error) {
	m.mu.Lock()
	m.gets++
	m.mu.Unlock()

	data, ok := m.objects[aws.StringValue(in.Bucket)+"/"+aws.StringValue(in.Key)]
	if !ok {
		return nil, awserr.New(s3.ErrCodeNoSuchKey, "The specified key does not exist.", nil)
	}
	lo, hi := int64(0), int64(len(data)-1)
	if in.Range != nil {
		if _, err := fmt.Sscanf(aws.StringValue(in.Range), "bytes=%d-%d", &lo, &hi); err != nil {
			return nil, err
		}
	}
	hi = min(hi, int64(len(data)-1))
	body := data[lo : hi+1]
	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: aws.Int64(int64(len(body))),
		ContentRange:  aws.String(fmt.Sprintf("bytes %d-%d/%d", lo, hi, len(data))),
	}, nil
}

func (m *mockS3) PutObjectWithContext(_ aws.Context, in *s3.PutObjectInput, _ ...request.Option) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[aws.StringValue(in.Bucket)+"/"+aws.StringValue(in.Key)] = data
	m.types = append(m.types, aws.StringValue(in.ContentType))
	return &s3.PutObjectOutput{}, nil
}

func (m *mockS3) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gets
}

func TestParseURL(t *testing.T) {
	tests := []struct {
		ref         string
		bucket, key string
		ok          bool
	}{
		{"s3://its-live/velocity/vx.tif", "its-live", "velocity/vx.tif", true},
		{"s3://b/k", "b", "k", true},
		{"s3://bucket", "", "", false},
		{"s3://bucket/", "", "", false},
		{"s3://bucket/dir/", "", "", false},
		{"s3:///key", "", "", false},
		{"s3://bucket/../etc/passwd", "", "", false},
		{"/local/file.tif", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			b, k, err := ParseURL(tt.ref)
			if (err == nil) != tt.ok {
				t.Fatalf("err = %v, want ok=%v", err, tt.ok)
			}
			if b != tt.bucket || k != tt.key {
				t.Errorf("got %q %q, want %q %q", b, k, tt.bucket, tt.key)
			}
		})
	}
}

func TestFetch(t *testing.T) {
	payload := bytes.Repeat([]byte("geotiff!"), 1000)
	api := &mockS3{objects: map[string][]byte{"bucket/dem/cop30.tif": payload}}
	dir := t.TempDir()
	f := NewStore(api, dir, nil)
	ctx := context.Background()

	if p, err := f.Fetch(ctx, "/data/local.tif"); err != nil || p != "/data/local.tif" {
		t.Errorf("local reference: %q, %v", p, err)
	}
	if api.count() != 0 {
		t.Fatal("local reference reached the object store")
	}

	p, err := f.Fetch(ctx, "s3://bucket/dem/cop30.tif")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if want := filepath.Join(dir, "bucket", "dem", "cop30.tif"); p != want {
		t.Errorf("path = %q, want %q", p, want)
	}
	got, err := os.ReadFile(p)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("downloaded %d bytes, want %d", len(got), len(payload))
	}

	gets := api.count()
	if _, err := f.Fetch(ctx, "s3://bucket/dem/cop30.tif"); err != nil {
		t.Fatal(err)
	}
	if api.count() != gets {
		t.Error("cached object downloaded again")
	}
}

func TestFetch_MissingObject(t *testing.T) {
	api := &mockS3{objects: map[string][]byte{}}
	dir := t.TempDir()
	f := NewStore(api, dir, nil)

	if _, err := f.Fetch(context.Background(), "s3://bucket/missing.tif"); err == nil {
		t.Fatal("expected error")
	}
	entries, err := os.ReadDir(filepath.Join(dir, "bucket"))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("cache holds %d entries after a failed download", len(entries))
	}
}

func TestFetchAll(t *testing.T) {
	api := &mockS3{objects: map[string][]byte{
		"b/vx.tif": []byte("vx"),
		"b/vy.tif": []byte("vy"),
	}}
	dir := t.TempDir()
	f := NewStore(api, dir, nil)

	vx, vy, dem := "s3://b/vx.tif", "s3://b/vy.tif", "dem.tif"
	refs := []*string{&vx, &vy, &dem}
	if !AnyRemote(refs) {
		t.Fatal("AnyRemote = false")
	}
	if err := f.FetchAll(context.Background(), refs); err != nil {
		t.Fatal(err)
	}
	if vx != filepath.Join(dir, "b", "vx.tif") || vy != filepath.Join(dir, "b", "vy.tif") || dem != "dem.tif" {
		t.Errorf("refs = %q %q %q", vx, vy, dem)
	}
	if AnyRemote(refs) {
		t.Error("references still remote after FetchAll")
	}

	bad := "s3://b/none.tif"
	if err := f.FetchAll(context.Background(), []*string{&bad}); err == nil {
		t.Error("expected error for a missing object")
	}
	if bad != "s3://b/none.tif" {
		t.Errorf("failed reference rewritten to %q", bad)
	}
}

func TestStageAndUpload(t *testing.T) {
	api := &mockS3{objects: map[string][]byte{}}
	dir := t.TempDir()
	st := NewStore(api, dir, nil)

	if p, err := st.StagePath("out/local.tif"); err != nil || p != "out/local.tif" {
		t.Errorf("local StagePath = %q, %v", p, err)
	}

	ref := "s3://results/run1/window_location.tif"
	p, err := st.StagePath(ref)
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(dir, ".staging", "results", "run1", "window_location.tif"); p != want {
		t.Errorf("StagePath = %q, want %q", p, want)
	}
	if err := os.WriteFile(p, []byte("tiff"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := st.Upload(context.Background(), p, ref); err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if got := string(api.objects["results/run1/window_location.tif"]); got != "tiff" {
		t.Errorf("uploaded %q", got)
	}
	if len(api.types) != 1 || api.types[0] != "image/tiff" {
		t.Errorf("content types %v", api.types)
	}
	if _, err := os.Stat(p); !os.IsNotExist(err) {
		t.Error("staged file kept after upload")
	}

	if err := st.Upload(context.Background(), p, ref); err == nil {
		t.Error("expected error uploading a missing file")
	}
}
