package store

import (
	"bytes"
	"io/ioutil"
	"net/http"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
)

// fakeS3 keeps objects in a map. Methods not overridden panic through the
// nil embedded interface.
type fakeS3 struct {
	s3iface.S3API
	m       sync.Mutex
	objects map[string][]byte
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string][]byte)}
}

func (f *fakeS3) GetObject(in *s3.GetObjectInput) (*s3.GetObjectOutput, error) {
	f.m.Lock()
	defer f.m.Unlock()
	b, ok := f.objects[*in.Key]
	if !ok {
		return nil, awserr.NewRequestFailure(awserr.New(s3.ErrCodeNoSuchKey, "no such key", nil), http.StatusNotFound, "req")
	}
	return &s3.GetObjectOutput{
		Body:          ioutil.NopCloser(bytes.NewReader(b)),
		ContentLength: aws.Int64(int64(len(b))),
	}, nil
}

func (f *fakeS3) PutObject(in *s3.PutObjectInput) (*s3.PutObjectOutput, error) {
	b, err := ioutil.ReadAll(in.Body)
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

func TestS3Prefix(t *testing.T) {
	fake := newFakeS3()
	s := NewS3Client("zoo", "sip/", fake)
	add(t, s, "alice/run.gpx", "hello")
	if _, ok := fake.objects["sip/alice/run.gpx"]; !ok {
		t.Errorf("Received keys %v, expected sip/alice/run.gpx", fake.objects)
	}
	b, err := ReadAll(s, "alice/run.gpx")
	if err != nil || string(b) != "hello" {
		t.Errorf("Received %q, %v, expected %q", b, err, "hello")
	}
	keys, _ := s.ListPrefix("")
	if !equal(keys, []string{"alice/run.gpx"}) {
		t.Errorf("Received %v", keys)
	}
	if _, _, err := s.Open("alice/none"); err != ErrNotFound {
		t.Errorf("Received %v, expected %v", err, ErrNotFound)
	}
	s.Delete("alice/run.gpx")
	if len(fake.objects) != 0 {
		t.Errorf("Received %v, expected empty bucket", fake.objects)
	}
}

func TestS3AbortSkipsUpload(t *testing.T) {
	fake := newFakeS3()
	s := NewS3Client("zoo", "", fake)
	w, _ := s.Create("alice/x")
	w.Write([]byte("partial"))
	w.(aborter).Abort()
	w.Close()
	if len(fake.objects) != 0 {
		t.Errorf("Received %v, expected nothing uploaded", fake.objects)
	}
}
