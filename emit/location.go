package emit

import (
	"fmt"
	"net/url"
	"os"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"

	"github.com/mjordan/bagit-indexer/store"
)

// splitBucketPrefix will take a path and separate the bucket name from a prefix, if any.
// The prefix returned is either empty or ends with a slash "/".
//
// examples:
//
//	"" -> ("", "")
//	"bucket" -> ("bucket", "")
//	"bucket/and/a/prefix" -> ("bucket", "and/a/prefix/")
func splitBucketPrefix(location string) (bucket, prefix string) {
	location = strings.TrimPrefix(location, "/")
	if location == "" {
		return
	}
	v := strings.SplitN(location, "/", 2)
	bucket = v[0]
	if len(v) > 1 {
		prefix = path.Clean(v[1])
		if prefix == "." {
			prefix = ""
		}
	}
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix = prefix + "/"
	}
	return
}

// ParseLocation makes the store named by location. A plain path or a
// "file:" URL is a local directory, created if needed. "s3://bucket/prefix"
// is an S3 bucket; an "endpoint" query parameter points it at another S3
// compatible service, such as "s3://bags/docs?endpoint=localhost:9000".
func ParseLocation(location string) (store.Store, error) {
	if location == "" {
		return nil, fmt.Errorf("empty location")
	}
	u, err := url.Parse(location)
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "", "file":
		dir := u.Path
		if dir == "" {
			dir = u.Opaque
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
		return store.NewFileSystem(dir), nil
	case "s3":
		bucket, prefix := splitBucketPrefix(u.Host + u.Path)
		if bucket == "" {
			return nil, fmt.Errorf("no bucket name in %s", location)
		}
		conf := &aws.Config{}
		if endpoint := u.Query().Get("endpoint"); endpoint != "" {
			conf.Endpoint = aws.String(endpoint)
			conf.Region = aws.String("us-east-1")
			conf.S3ForcePathStyle = aws.Bool(true)
			// disable SSL for local development
			if strings.Contains(endpoint, "localhost") {
				conf.DisableSSL = aws.Bool(true)
			}
		}
		sess, err := session.NewSession(conf)
		if err != nil {
			return nil, err
		}
		return store.NewS3(bucket, prefix, sess), nil
	}
	return nil, fmt.Errorf("unknown location scheme %q", u.Scheme)
}
