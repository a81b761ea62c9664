package store

import (
	"bytes"
	"io"
	"io/ioutil"
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

// A S3 store represents a store that is kept on AWS S3 storage, or any
// service with the same API.
// Do not change Bucket or Prefix concurrently with calls using the structure.
type S3 struct {
	svc    s3iface.S3API
	Bucket string
	Prefix string
}

var (
	// make sure it implements the Store interface
	_ Store = &S3{}
)

// NewS3 creates a new S3 store. It will use the given bucket and will prepend
// prefix to all keys. This is to allow for a bucket to be used for more than
// one store. For example if prefix were "sip/" then an Open("alice/x") would
// look for the key "sip/alice/x" in the bucket. The authorization method and
// credentials in the session are used for all accesses.
func NewS3(bucket, prefix string, awsSession *session.Session) *S3 {
	return NewS3Client(bucket, prefix, s3.New(awsSession))
}

// NewS3Client is like NewS3 but uses the given client. It allows tests to
// substitute a fake service.
func NewS3Client(bucket, prefix string, svc s3iface.S3API) *S3 {
	return &S3{
		Bucket: bucket,
		Prefix: prefix,
		svc:    svc,
	}
}

// List returns a list of all the keys in this store. It will only return ones
// that satisfy the store's Prefix, so it is safe to use this on a bucket
// containing other items.
func (s *S3) List() <-chan string {
	out := make(chan string)
	go func() {
		defer close(out)
		keys, _ := s.ListPrefix("")
		for _, k := range keys {
			out <- k
		}
	}()
	return out
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
		log.WithFields(log.Fields{"bucket": s.Bucket, "prefix": s.Prefix, "pattern": prefix}).Println("S3 ListPrefix:", err)
		raven.CaptureError(err, map[string]string{"Bucket": s.Bucket, "Prefix": s.Prefix, "Pattern": prefix})
	}
	return result, err
}

// Open downloads the content for the given key. Packages are assembled in
// memory anyway, so the object is read whole.
func (s *S3) Open(key string) (ReadAtCloser, int64, error) {
	if err := ValidKey(key); err != nil {
		return nil, 0, err
	}
	output, err := s.svc.GetObject(&s3.GetObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(s.Prefix + key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, 0, ErrNotFound
		}
		log.WithFields(log.Fields{"bucket": s.Bucket, "key": s.Prefix + key}).Println("S3 Open:", err)
		return nil, 0, err
	}
	defer output.Body.Close()
	data, err := ioutil.ReadAll(output.Body)
	if err != nil {
		return nil, 0, err
	}
	return memReader(data), int64(len(data)), nil
}

func isNotFound(err error) bool {
	if e, ok := err.(awserr.RequestFailure); ok && e.StatusCode() == http.StatusNotFound {
		return true
	}
	if e, ok := err.(awserr.Error); ok && e.Code() == s3.ErrCodeNoSuchKey {
		return true
	}
	return false
}

// Create will return a WriteCloser to upload content to the given key. The
// content is buffered and sent with a single PUT when the writer is closed.
func (s *S3) Create(key string) (io.WriteCloser, error) {
	if err := ValidKey(key); err != nil {
		return nil, err
	}
	return &s3WriteCloser{s: s, key: s.Prefix + key}, nil
}

// Delete will remove the given key from the store. The store's Prefix is
// prepended first. It is not an error to delete something that doesn't exist.
func (s *S3) Delete(key string) error {
	if err := ValidKey(key); err != nil {
		return err
	}
	_, err := s.svc.DeleteObject(&s3.DeleteObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(s.Prefix + key),
	})
	if err != nil {
		log.WithFields(log.Fields{"bucket": s.Bucket, "key": s.Prefix + key}).Println("S3 Delete:", err)
		raven.CaptureError(err, map[string]string{"Bucket": s.Bucket, "Prefix": s.Prefix, "Key": key})
	}
	return err
}

type s3WriteCloser struct {
	s     *S3
	key   string
	buf   bytes.Buffer
	abort bool
}

func (wc *s3WriteCloser) Write(p []byte) (int, error) {
	return wc.buf.Write(p)
}

func (wc *s3WriteCloser) Abort() { wc.abort = true }

func (wc *s3WriteCloser) Close() error {
	if wc.abort {
		return nil
	}
	_, err := wc.s.svc.PutObject(&s3.PutObjectInput{
		Bucket:        aws.String(wc.s.Bucket),
		Key:           aws.String(wc.key),
		Body:          bytes.NewReader(wc.buf.Bytes()),
		ContentLength: aws.Int64(int64(wc.buf.Len())),
	})
	if err != nil {
		log.WithFields(log.Fields{"bucket": wc.s.Bucket, "key": wc.key}).Println("S3 Put:", err)
		raven.CaptureError(err, map[string]string{"Bucket": wc.s.Bucket, "Key": wc.key})
	}
	return err
}
