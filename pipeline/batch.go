package pipeline

import (
	"bytes"
	"context"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/ndlib/archivum/bundle"
	"github.com/ndlib/archivum/records"
	"github.com/ndlib/archivum/util"
)

// BatchName is the entry name used for the package of rec inside a batch.
func BatchName(rec *records.MetadataRecord) string {
	return rec.ID + ".zip"
}

// AssembleBatch reconstructs each record and stores the results, in the
// order given, inside one container. Records which cannot be reconstructed
// are logged and left out, so the result may be an empty container.
func (rc *Reconstructor) AssembleBatch(ctx context.Context, recs []*records.MetadataRecord) ([]byte, error) {
	type dip struct {
		name string
		data []byte
	}
	results, err := util.ForEach(ctx, workers(rc.Workers), util.SkipFailed, recs,
		func(ctx context.Context, rec *records.MetadataRecord) (dip, error) {
			data, err := rc.Reconstruct(ctx, rec)
			if err != nil {
				log.WithField("record", rec.ID).Errorln("batch:", err)
				return dip{}, err
			}
			return dip{name: BatchName(rec), data: data}, nil
		})
	if err != nil {
		return nil, errors.Wrapf(ErrReconstruction, "batch: %s", err)
	}

	var buf bytes.Buffer
	w := bundle.NewWriter(&buf, now(rc.Clock))
	for _, d := range util.Values(results) {
		if _, err = w.AddStored(d.name, d.data); err != nil {
			return nil, errors.Wrapf(ErrReconstruction, "batch: %s", err)
		}
	}
	if err = w.Close(); err != nil {
		return nil, errors.Wrapf(ErrReconstruction, "batch: %s", err)
	}
	return buf.Bytes(), nil
}
