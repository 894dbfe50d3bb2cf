package store

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	raven "github.com/getsentry/raven-go"
	log "github.com/sirupsen/logrus"
)

// A S3 store keeps its items as objects in an S3 bucket. Index documents are
// small, so each one is sent with a single PUT when its writer is closed.
// Do not change Bucket or Prefix concurrently with calls using the structure.
type S3 struct {
	svc    s3iface.S3API
	Bucket string
	Prefix string
}

var _ Store = &S3{}

// NewS3 creates a new S3 store. It will use the given bucket and will prepend
// prefix to all keys. For example if prefix were "bags/" then an
// Open("hello.json") would look for the key "bags/hello.json" in the bucket.
func NewS3(bucket, prefix string, awsSession *session.Session) *S3 {
	return NewS3WithClient(bucket, prefix, s3.New(awsSession))
}

// NewS3WithClient is like NewS3 but uses the given client.
func NewS3WithClient(bucket, prefix string, svc s3iface.S3API) *S3 {
	return &S3{
		Bucket: bucket,
		Prefix: prefix,
		svc:    svc,
	}
}

func (s *S3) capture(op string, err error, extra map[string]string) {
	tags := map[string]string{"Bucket": s.Bucket, "Prefix": s.Prefix}
	for k, v := range extra {
		tags[k] = v
	}
	log.WithFields(log.Fields{"bucket": s.Bucket, "prefix": s.Prefix}).WithError(err).Warn("S3 " + op)
	raven.CaptureError(err, tags)
}

// ListPrefix returns the keys in this store that have the given prefix.
// The argument prefix is added to the store's Prefix.
func (s *S3) ListPrefix(prefix string) ([]string, error) {
	var result []string
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(s.Bucket),
		Prefix: aws.String(s.Prefix + prefix),
	}
	err := s.svc.ListObjectsV2Pages(input,
		func(page *s3.ListObjectsV2Output, lastpage bool) bool {
			for _, item := range page.Contents {
				result = append(result, strings.TrimPrefix(*item.Key, s.Prefix))
			}
			return !lastpage
		})
	if err != nil {
		s.capture("ListPrefix", err, map[string]string{"Pattern": prefix})
	}
	return result, err
}

// Open returns a ReadAtCloser for the given key. Each ReadAt turns into a
// ranged GET.
func (s *S3) Open(key string) (ReadAtCloser, int64, error) {
	info, err := s.svc.HeadObject(&s3.HeadObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(s.Prefix + key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, 0, ErrNotExist
		}
		return nil, 0, err
	}
	size := aws.Int64Value(info.ContentLength)
	return &s3ReadAtCloser{s: s, key: s.Prefix + key, size: size}, size, nil
}

func isNotFound(err error) bool {
	e, ok := err.(awserr.RequestFailure)
	return ok && e.StatusCode() == http.StatusNotFound
}

// Create returns a WriteCloser to upload content to the given key. Nothing
// is sent until Close.
func (s *S3) Create(key string) (io.WriteCloser, error) {
	_, err := s.svc.HeadObject(&s3.HeadObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(s.Prefix + key),
	})
	if err == nil {
		return nil, ErrKeyExists
	} else if !isNotFound(err) {
		return nil, err
	}
	return &s3WriteCloser{s: s, key: s.Prefix + key}, nil
}

// Delete will remove the given key from the store. The store's Prefix is
// prepended first. It is not an error to delete something that doesn't exist.
func (s *S3) Delete(key string) error {
	_, err := s.svc.DeleteObject(&s3.DeleteObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(s.Prefix + key),
	})
	if err != nil {
		s.capture("Delete", err, map[string]string{"Key": key})
	}
	return err
}

type s3ReadAtCloser struct {
	s    *S3
	key  string
	size int64
}

func (rac *s3ReadAtCloser) ReadAt(p []byte, offset int64) (int, error) {
	if offset >= rac.size {
		return 0, io.EOF
	}
	if len(p) == 0 {
		return 0, nil
	}
	end := offset + int64(len(p)) - 1
	if end >= rac.size {
		end = rac.size - 1
	}
	output, err := rac.s.svc.GetObject(&s3.GetObjectInput{
		Bucket: aws.String(rac.s.Bucket),
		Key:    aws.String(rac.key),
		Range:  aws.String(fmt.Sprintf("bytes=%d-%d", offset, end)),
	})
	if err != nil {
		e, ok := err.(awserr.RequestFailure)
		if ok && e.StatusCode() == http.StatusRequestedRangeNotSatisfiable {
			return 0, io.EOF
		}
		return 0, err
	}
	defer output.Body.Close()
	n, err := io.ReadFull(output.Body, p[:end-offset+1])
	if err == io.ErrUnexpectedEOF {
		err = io.EOF
	}
	if err == nil && n < len(p) {
		err = io.EOF
	}
	return n, err
}

func (rac *s3ReadAtCloser) Close() error { return nil }

type s3WriteCloser struct {
	s   *S3
	key string
	buf bytes.Buffer
}

func (wc *s3WriteCloser) Write(p []byte) (int, error) {
	return wc.buf.Write(p)
}

func (wc *s3WriteCloser) Close() error {
	body := bytes.NewReader(wc.buf.Bytes())
	_, err := wc.s.svc.PutObject(&s3.PutObjectInput{
		Body:          body,
		Bucket:        aws.String(wc.s.Bucket),
		Key:           aws.String(wc.key),
		ContentLength: aws.Int64(int64(body.Len())),
	})
	if err != nil {
		wc.s.capture("Put", err, map[string]string{"Key": wc.key})
	}
	return err
}
