package pipeline

import (
	"bytes"
	"context"

	"github.com/facebookgo/clock"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/ndlib/archivum/bundle"
	"github.com/ndlib/archivum/manifest"
	"github.com/ndlib/archivum/records"
	"github.com/ndlib/archivum/store"
	"github.com/ndlib/archivum/util"
)

// Reconstructor builds dissemination packages from records.
type Reconstructor struct {
	Blobs   store.ROStore
	DB      records.DB
	Clock   clock.Clock // nil uses the system time
	Workers int
}

// payload is one file of a record, read back from storage.
type payload struct {
	fd   *records.FileDescriptor
	data []byte
}

// Reconstruct returns a package for rec containing its manifest, each
// payload file under data/ and a new sidecar for each under metadata/. All
// digests are computed from the bytes being written. Files which cannot be
// read are logged and left out.
func (rc *Reconstructor) Reconstruct(ctx context.Context, rec *records.MetadataRecord) ([]byte, error) {
	results, err := util.ForEach(ctx, workers(rc.Workers), util.SkipFailed, rec.Files,
		func(ctx context.Context, id string) (payload, error) {
			return rc.load(ctx, rec.ID, id)
		})
	if err != nil {
		return nil, errors.Wrapf(ErrReconstruction, "%s: %s", rec.ID, err)
	}
	files := util.Values(results)

	type member struct {
		name string
		data []byte
	}
	var members []member
	m := &manifest.Manifest{
		ID:             rec.ID,
		Submitter:      rec.Owner,
		Created:        rec.CreationDate,
		LastModified:   rec.LastModified,
		OccurrenceDate: rec.OccurrenceDate,
		Title:          rec.Title,
		Description:    rec.Description,
		Visibility:     rec.Visibility,
		ResourceType:   rec.ResourceType,
		Details:        rec.Details,
		Comments:       rec.Comments,
		Files:          []manifest.FileEntry{},
	}
	for _, p := range files {
		sidecar, err := manifest.EncodeSidecar(manifest.Sidecar{
			CreationDate:     rec.CreationDate,
			SubmissionDate:   p.fd.Created,
			Submitter:        rec.Owner,
			OriginalFilename: p.fd.Filename,
			MimeType:         p.fd.MimeType,
			Size:             int64(len(p.data)),
		})
		if err != nil {
			return nil, errors.Wrapf(ErrReconstruction, "%s: sidecar: %s", rec.ID, err)
		}
		entry := manifest.FileEntry{
			FilePath:     "data/" + p.fd.Filename,
			Checksum:     manifest.Checksum{Algorithm: manifest.SHA256, Value: util.SHA256Hex(p.data)},
			MimeType:     p.fd.MimeType,
			Size:         int64(len(p.data)),
			MetadataPath: manifest.SidecarPath(p.fd.Filename),
			MetadataChecksum: &manifest.Checksum{
				Algorithm: manifest.SHA256,
				Value:     util.SHA256Hex(sidecar),
			},
		}
		m.Files = append(m.Files, entry)
		members = append(members,
			member{entry.FilePath, p.data},
			member{entry.MetadataPath, sidecar})
	}
	mbytes, err := manifest.Encode(m)
	if err != nil {
		return nil, errors.Wrapf(ErrReconstruction, "%s: manifest: %s", rec.ID, err)
	}

	var buf bytes.Buffer
	w := bundle.NewWriter(&buf, now(rc.Clock))
	if _, err = w.Add(manifest.Name, mbytes); err != nil {
		return nil, errors.Wrapf(ErrReconstruction, "%s: %s", rec.ID, err)
	}
	for _, mb := range members {
		if _, err = w.Add(mb.name, mb.data); err != nil {
			return nil, errors.Wrapf(ErrReconstruction, "%s: %s", rec.ID, err)
		}
	}
	if err = w.Close(); err != nil {
		return nil, errors.Wrapf(ErrReconstruction, "%s: %s", rec.ID, err)
	}
	if len(files) < len(rec.Files) {
		log.WithField("record", rec.ID).Println("reconstruct: included", len(files), "of", len(rec.Files), "files")
	}
	return buf.Bytes(), nil
}

func (rc *Reconstructor) load(ctx context.Context, recID, id string) (payload, error) {
	fd, err := rc.DB.GetFile(ctx, id)
	if err != nil {
		log.WithFields(log.Fields{"record": recID, "file": id}).Errorln("reconstruct: descriptor:", err)
		return payload{}, err
	}
	data, err := store.ReadAll(rc.Blobs, fd.Path)
	if err != nil {
		log.WithFields(log.Fields{"record": recID, "file": id, "key": fd.Path}).Errorln("reconstruct: reading:", err)
		return payload{}, err
	}
	return payload{fd: fd, data: data}, nil
}

// ReconstructID looks up the record id and reconstructs it.
func (rc *Reconstructor) ReconstructID(ctx context.Context, id string) ([]byte, error) {
	rec, err := rc.DB.GetRecord(ctx, id)
	if err != nil {
		return nil, err
	}
	return rc.Reconstruct(ctx, rec)
}
