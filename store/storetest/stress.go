// Package storetest provides functions for facilitating the testing of
// anything implementing the Store interface.
package storetest

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"io"
	"math"
	"math/rand"
	"sort"
	"sync"
	"testing"

	"github.com/ndlib/archivum/store"
)

type blob struct {
	key  string
	hash []byte
	size int64
}

// Conformance runs the behaviors every Store must share: whole-value reads,
// last write wins, missing keys report store.ErrNotFound, namespaced
// listing and idempotent deletes. The store should start empty.
func Conformance(t *testing.T, s store.Store) {
	put := func(key, value string) {
		if err := store.WriteAll(s, key, []byte(value)); err != nil {
			t.Fatalf("Received error %v writing %s", err, key)
		}
	}
	get := func(key string) string {
		b, err := store.ReadAll(s, key)
		if err != nil {
			t.Fatalf("Received error %v reading %s", err, key)
		}
		return string(b)
	}

	put("alice/run.gpx", "first")
	put("alice/photo.jpg", "photo")
	put("bob/run.gpx", "bob's run")
	if v := get("alice/run.gpx"); v != "first" {
		t.Errorf("Received %q, expected %q", v, "first")
	}
	put("alice/run.gpx", "second")
	if v := get("alice/run.gpx"); v != "second" {
		t.Errorf("Received %q, expected %q", v, "second")
	}
	if v := get("bob/run.gpx"); v != "bob's run" {
		t.Errorf("Received %q, expected %q", v, "bob's run")
	}

	keys, err := s.ListPrefix("alice/")
	if err != nil {
		t.Errorf("Received error %v", err)
	}
	sort.Strings(keys)
	expected := []string{"alice/photo.jpg", "alice/run.gpx"}
	if fmt.Sprint(keys) != fmt.Sprint(expected) {
		t.Errorf("Received %v, expected %v", keys, expected)
	}
	var all []string
	for k := range s.List() {
		all = append(all, k)
	}
	if len(all) != 3 {
		t.Errorf("Received %v, expected 3 keys", all)
	}

	if _, _, err := s.Open("carol/none"); err != store.ErrNotFound {
		t.Errorf("Received %v, expected %v", err, store.ErrNotFound)
	}
	for _, key := range []string{"", "/abs", "a//b", "a/../b", "a/.hidden"} {
		if _, err := s.Create(key); err == nil {
			t.Errorf("Create(%q) received nil error", key)
		}
	}

	if err := s.Delete("alice/run.gpx"); err != nil {
		t.Errorf("Received error %v", err)
	}
	if err := s.Delete("alice/run.gpx"); err != nil {
		t.Errorf("Received error %v deleting twice", err)
	}
	if _, _, err := s.Open("alice/run.gpx"); err != store.ErrNotFound {
		t.Errorf("Received %v, expected %v", err, store.ErrNotFound)
	}
}

// Stress will spawn a number of goroutines to simultaneously try reading and
// writing to the given store. It is a good test to run with the -race flag.
//
// Generate a list of sizes, until their sum is >= totalsize. For each size,
// upload a random blob of that size to its own key, and then download it and
// compare digests. Each blob is then randomly deleted or downloaded again.
func Stress(t *testing.T, s store.Store, totalsize int64) {
	if totalsize == 0 {
		totalsize = 10 * 1000 * 1000 // 10MB
	}
	sizes := make(chan int64)
	dwnld := make(chan blob, 1000)
	done := make(chan struct{})
	var uppool, downpool sync.WaitGroup

	for i := 0; i < 5; i++ {
		uppool.Add(1)
		go func(worker int) {
			uploader(t, s, worker, sizes, dwnld)
			uppool.Done()
		}(i)
	}

	for i := 0; i < 10; i++ {
		downpool.Add(1)
		go func() {
			downloader(t, s, dwnld, done)
			downpool.Done()
		}()
	}

	generatesizes(sizes, totalsize)
	close(sizes)
	uppool.Wait()
	close(done)
	downpool.Wait()
}

// randomReader is provides an interface to n bytes of random data.
// The length may be much longer than len(data).
type randomReader struct {
	n    int64
	data []byte
}

func (r *randomReader) Read(p []byte) (int, error) {
	if r.n <= 0 {
		return 0, io.EOF
	}
	total := 0
	data := r.data
	for len(p) > 0 && r.n > 0 {
		if r.n < int64(len(data)) {
			data = data[:int(r.n)]
		}
		n := copy(p, data)
		p = p[n:]
		r.n -= int64(n)
		total += n
	}
	return total, nil
}

func uploader(t *testing.T, s store.Store, worker int, in <-chan int64, out chan<- blob) {
	h := sha256.New()
	buffer := make([]byte, 64*1024)
	var count int

	for size := range in {
		h.Reset()
		rand.Read(buffer)
		count++
		key := fmt.Sprintf("stress%d/blob-%04d", worker, count)
		w, err := s.Create(key)
		if err != nil {
			t.Error(err)
			continue
		}
		mw := io.MultiWriter(h, w)
		n, err := io.Copy(mw, &randomReader{data: buffer, n: size})
		if n != size {
			t.Error("expected", size, "only read", n)
		}
		if err != nil {
			t.Error(err)
		}
		err = w.Close()
		if err != nil {
			t.Error(key, size, err)
			continue
		}
		out <- blob{key: key, hash: h.Sum(nil), size: size}
	}
}

func downloader(t *testing.T, s store.Store, in chan blob, done chan struct{}) {
	h := sha256.New()
	for {
		var blob blob
		select {
		case <-done:
			return
		case blob = <-in:
		}
		rac, size, err := s.Open(blob.key)
		if err != nil {
			t.Error(err)
			continue
		}
		if size != blob.size {
			t.Error("Expected", blob.size, "Open() returned", size)
		}
		h.Reset()
		n, err := io.Copy(h, store.NewReader(rac))
		if err != nil {
			t.Error(err)
		}
		if n != size {
			t.Error("Expected", size, "but read", n)
		}
		rac.Close()
		if !bytes.Equal(blob.hash, h.Sum(nil)) {
			t.Errorf("hashes unequal. %#v. Received %x", blob, h.Sum(nil))
			continue
		}

		if rand.Float32() < 0.5 {
			if err := s.Delete(blob.key); err != nil {
				t.Error(err)
			}
			continue
		}
		// reinsert, unless the queue is full
		select {
		case in <- blob:
		default:
		}
	}
}

func generatesizes(out chan<- int64, totalsize int64) {
	// We want a wide range of sizes, so generate the exponent of the size
	// uniformly at random.
	for totalsize > 0 {
		x := 14 * rand.Float64()
		size := int64(math.Trunc(math.Exp(x)))
		out <- size
		totalsize -= size
	}
}
