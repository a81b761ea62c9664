package pipeline

import (
	"context"

	"github.com/facebookgo/clock"
	"github.com/pkg/errors"

	"github.com/ndlib/archivum/manifest"
	"github.com/ndlib/archivum/records"
)

// Indexer turns a verified manifest and its stored files into a record.
type Indexer struct {
	DB    records.DB
	Clock clock.Clock   // nil uses the system time
	NewID func() string // nil uses random UUIDs
}

// Build makes the record for m without saving it. files must be in the same
// order as m.Files. Only the details belonging to m.ResourceType are kept.
func (ix *Indexer) Build(m *manifest.Manifest, files []*records.FileDescriptor) *records.MetadataRecord {
	t := now(ix.Clock)
	rec := &records.MetadataRecord{
		ID:             newID(ix.NewID),
		Owner:          m.Submitter,
		CreationDate:   m.Created,
		LastModified:   t,
		OccurrenceDate: m.OccurrenceDate,
		Title:          m.Title,
		Description:    m.Description,
		Visibility:     m.Visibility,
		ResourceType:   m.ResourceType,
		Details:        m.Details,
	}
	if rec.CreationDate.IsZero() {
		rec.CreationDate = t
	}
	if rec.Visibility == "" {
		rec.Visibility = manifest.Private
	}
	if rec.Details == nil || rec.Details.Type() != rec.ResourceType {
		// an empty variant of the right type
		rec.Details, _ = manifest.DecodeDetails(rec.ResourceType, nil)
	}
	for _, fd := range files {
		rec.Files = append(rec.Files, fd.ID)
	}
	if len(m.Comments) > 0 {
		rec.Comments = append([]manifest.Comment(nil), m.Comments...)
	}
	return rec
}

// Index builds the record for m and saves it in a single transaction.
func (ix *Indexer) Index(ctx context.Context, m *manifest.Manifest, files []*records.FileDescriptor) (*records.MetadataRecord, error) {
	rec := ix.Build(m, files)
	err := ix.DB.SaveRecord(ctx, rec)
	if err != nil {
		return nil, errors.Wrapf(ErrStorageWrite, "saving record: %s", err)
	}
	return rec, nil
}
