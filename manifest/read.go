package manifest

import (
	"github.com/pkg/errors"

	"github.com/ndlib/archivum/bundle"
)

// Read locates the manifest inside a package and parses it. A package
// without a manifest is an invalid manifest, not a corrupt archive.
func Read(r *bundle.Reader) (*Manifest, error) {
	_, data, err := r.ReadResolved(Name)
	if errors.Is(err, bundle.ErrEntryNotFound) {
		return nil, errors.Wrap(ErrInvalid, "manifest file not found in package")
	} else if err != nil {
		return nil, err
	}
	return Parse(data)
}
