package store

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeS3 keeps objects in a map and implements just the calls the S3 store
// makes.
type fakeS3 struct {
	s3iface.S3API
	m       sync.Mutex
	objects map[string][]byte
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string][]byte)}
}

func notFound() error {
	return awserr.NewRequestFailure(awserr.New("NotFound", "not found", nil), http.StatusNotFound, "")
}

func (f *fakeS3) HeadObject(in *s3.HeadObjectInput) (*s3.HeadObjectOutput, error) {
	f.m.Lock()
	defer f.m.Unlock()
	b, ok := f.objects[*in.Key]
	if !ok {
		return nil, notFound()
	}
	return &s3.HeadObjectOutput{ContentLength: aws.Int64(int64(len(b)))}, nil
}

func (f *fakeS3) GetObject(in *s3.GetObjectInput) (*s3.GetObjectOutput, error) {
	f.m.Lock()
	defer f.m.Unlock()
	b, ok := f.objects[*in.Key]
	if !ok {
		return nil, notFound()
	}
	var start, end int
	if in.Range != nil {
		fmt.Sscanf(*in.Range, "bytes=%d-%d", &start, &end)
		if start >= len(b) {
			return nil, awserr.NewRequestFailure(awserr.New("InvalidRange", "", nil), http.StatusRequestedRangeNotSatisfiable, "")
		}
		if end >= len(b) {
			end = len(b) - 1
		}
		b = b[start : end+1]
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(b))}, nil
}

func (f *fakeS3) PutObject(in *s3.PutObjectInput) (*s3.PutObjectOutput, error) {
	b, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.m.Lock()
	f.objects[*in.Key] = b
	f.m.Unlock()
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) DeleteObject(in *s3.DeleteObjectInput) (*s3.DeleteObjectOutput, error) {
	f.m.Lock()
	delete(f.objects, *in.Key)
	f.m.Unlock()
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) ListObjectsV2Pages(in *s3.ListObjectsV2Input, fn func(*s3.ListObjectsV2Output, bool) bool) error {
	f.m.Lock()
	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, *in.Prefix) {
			keys = append(keys, k)
		}
	}
	f.m.Unlock()
	sort.Strings(keys)
	page := &s3.ListObjectsV2Output{}
	for _, k := range keys {
		page.Contents = append(page.Contents, &s3.Object{Key: aws.String(k)})
	}
	fn(page, true)
	return nil
}

func TestS3(t *testing.T) {
	fake := newFakeS3()
	s := NewS3WithClient("bucket", "index/", fake)
	checkStore(t, s)

	// keys carry the prefix in the bucket
	_, ok := fake.objects["index/bag-b.json"]
	assert.True(t, ok)
}

func TestS3ReadAt(t *testing.T) {
	fake := newFakeS3()
	fake.objects["x/data"] = []byte("0123456789")
	s := NewS3WithClient("bucket", "x/", fake)

	rac, size, err := s.Open("data")
	require.NoError(t, err)
	assert.EqualValues(t, 10, size)

	p := make([]byte, 4)
	n, err := rac.ReadAt(p, 3)
	assert.NoError(t, err)
	assert.Equal(t, "3456", string(p[:n]))

	n, err = rac.ReadAt(p, 8)
	assert.Equal(t, io.EOF, err)
	assert.Equal(t, "89", string(p[:n]))

	_, err = rac.ReadAt(p, 10)
	assert.Equal(t, io.EOF, err)
}
