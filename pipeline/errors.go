package pipeline

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/ndlib/archivum/fixity"
)

var (
	// ErrStorageWrite means a payload file or its descriptor could not
	// be saved. The ingestion is abandoned and nothing it wrote is kept.
	ErrStorageWrite = errors.New("storage write failed")

	// ErrReconstruction means a dissemination package could not be built.
	ErrReconstruction = errors.New("reconstruction failed")
)

// VerificationError is returned by Ingest when any file entry of a package
// fails verification. Problems has one item per failing entry, in manifest
// order.
type VerificationError struct {
	Problems []fixity.Problem
}

func (ve *VerificationError) Error() string {
	if len(ve.Problems) == 1 {
		return "verification failed: " + ve.Problems[0].String()
	}
	return fmt.Sprintf("verification failed for %d files", len(ve.Problems))
}
