package pipeline

import (
	"context"
	"path"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/ndlib/archivum/bundle"
	"github.com/ndlib/archivum/fixity"
	"github.com/ndlib/archivum/manifest"
	"github.com/ndlib/archivum/records"
	"github.com/ndlib/archivum/store"
	"github.com/ndlib/archivum/util"
)

// Ingester accepts submission packages.
type Ingester struct {
	Store   *PackageStore
	Indexer *Indexer
	Limits  bundle.Limits
	Workers int // at most this many files are verified or stored at once
}

// NewIngester returns an Ingester with default limits writing into blobs
// and db.
func NewIngester(blobs store.Store, db records.DB) *Ingester {
	return &Ingester{
		Store:   &PackageStore{Blobs: blobs, DB: db},
		Indexer: &Indexer{DB: db},
		Limits:  bundle.DefaultLimits,
		Workers: DefaultWorkers,
	}
}

// Receipt describes a successful ingestion.
type Receipt struct {
	Record   *records.MetadataRecord
	Files    []*records.FileDescriptor // in manifest order
	Received []fixity.Entry
}

// Ingest verifies and stores the package in data. Failures are one of
// bundle.ErrCorrupt, manifest.ErrInvalid, *VerificationError or
// ErrStorageWrite. When Ingest fails nothing is left behind.
func (ing *Ingester) Ingest(ctx context.Context, data []byte) (*Receipt, error) {
	return ing.IngestChecked(ctx, data, nil)
}

// IngestChecked is Ingest with an extra test. Once the manifest has been
// parsed it is passed to check, and if check returns an error the package
// is rejected with that error before anything is stored.
func (ing *Ingester) IngestChecked(ctx context.Context, data []byte, check func(*manifest.Manifest) error) (*Receipt, error) {
	r, err := bundle.OpenBytes(data, ing.Limits)
	if err != nil {
		return nil, err
	}
	m, err := manifest.Read(r)
	if err != nil {
		return nil, err
	}
	if err = checkNames(m); err != nil {
		return nil, err
	}
	if check != nil {
		if err = check(m); err != nil {
			return nil, err
		}
	}
	logger := log.WithFields(log.Fields{"submitter": m.Submitter, "title": m.Title})

	result := fixity.Verify(ctx, r, m, workers(ing.Workers))
	if !result.OK() {
		logger.Println("ingest: verification failed:", len(result.Problems), "problems")
		return nil, &VerificationError{Problems: result.Problems}
	}

	files, err := ing.storeAll(ctx, r, m.Submitter, result.Valid)
	if err != nil {
		logger.Println("ingest:", err)
		return nil, err
	}
	rec, err := ing.Indexer.Index(ctx, m, files)
	if err != nil {
		logger.Println("ingest:", err)
		ing.rollback(files)
		return nil, err
	}
	logger.WithField("record", rec.ID).Println("ingest: stored", len(files), "files")
	return &Receipt{
		Record:   rec,
		Files:    files,
		Received: result.Valid,
	}, nil
}

// checkNames makes sure the submitter and every payload file name can be
// used as a storage key segment. Files are stored by base name, so two
// entries with the same base name would overwrite each other.
func checkNames(m *manifest.Manifest) error {
	if err := store.ValidSegment(m.Submitter); err != nil {
		return errors.Wrapf(manifest.ErrInvalid, "submitter %q: %s", m.Submitter, err)
	}
	seen := make(map[string]string, len(m.Files))
	for _, f := range m.Files {
		name := path.Base(f.FilePath)
		if err := store.ValidSegment(name); err != nil {
			return errors.Wrapf(manifest.ErrInvalid, "filePath %q: %s", f.FilePath, err)
		}
		if prev, ok := seen[name]; ok {
			return errors.Wrapf(manifest.ErrInvalid, "filePath %q and %q have the same file name", prev, f.FilePath)
		}
		seen[name] = f.FilePath
	}
	return nil
}

// storeAll writes every verified entry. If any write fails the ones which
// succeeded are removed again.
func (ing *Ingester) storeAll(ctx context.Context, r *bundle.Reader, namespace string, entries []fixity.Entry) ([]*records.FileDescriptor, error) {
	results, err := util.ForEach(ctx, workers(ing.Workers), util.FailFast, entries,
		func(ctx context.Context, e fixity.Entry) (*records.FileDescriptor, error) {
			data, err := r.Read(e.Name)
			if err != nil {
				return nil, errors.Wrapf(ErrStorageWrite, "%s: %s", e.File, err)
			}
			return ing.Store.Store(ctx, namespace, path.Base(e.Declared.FilePath), data, mimeFor(r, e))
		})
	if err != nil {
		var stored []*records.FileDescriptor
		for _, res := range results {
			if res.Err == nil && res.Value != nil {
				stored = append(stored, res.Value)
			}
		}
		ing.rollback(stored)
		if !errors.Is(err, ErrStorageWrite) {
			err = errors.Wrap(ErrStorageWrite, err.Error())
		}
		return nil, err
	}
	return util.Values(results), nil
}

// mimeFor gives the declared MIME type of an entry, falling back to the
// one in its sidecar. An empty result means it should be detected.
func mimeFor(r *bundle.Reader, e fixity.Entry) string {
	if e.Declared.MimeType != "" {
		return e.Declared.MimeType
	}
	if e.MetadataName == "" {
		return ""
	}
	b, err := r.Read(e.MetadataName)
	if err != nil {
		return ""
	}
	sc, err := manifest.ParseSidecar(b)
	if err != nil {
		return ""
	}
	return sc.MimeType
}

// rollback removes stored files. It does not use the request context,
// which may be the reason for the rollback.
func (ing *Ingester) rollback(files []*records.FileDescriptor) {
	ctx := context.Background()
	for _, fd := range files {
		if err := ing.Store.Remove(ctx, fd); err != nil {
			log.WithField("key", fd.Path).Errorln("ingest: rollback:", err)
		}
	}
}
