package manifest

import (
	"encoding/json"
	"time"

	"github.com/antonholmquist/jason"
	"github.com/pkg/errors"
)

// Sidecar is the metadata file stored next to each payload file.
type Sidecar struct {
	CreationDate     time.Time `json:"creationDate"`
	SubmissionDate   time.Time `json:"submissionDate"`
	Submitter        string    `json:"submitter"`
	OriginalFilename string    `json:"originalFilename"`
	MimeType         string    `json:"mimeType"`
	Size             int64     `json:"size"`
	Producer         string    `json:"producer,omitempty"`
}

// SidecarPath gives the path of the sidecar for a payload file name.
func SidecarPath(filename string) string {
	return "metadata/" + filename + ".json"
}

// EncodeSidecar writes s as JSON.
func EncodeSidecar(s Sidecar) ([]byte, error) {
	return json.MarshalIndent(s, "", "  ")
}

// ParseSidecar reads a sidecar leniently. Missing fields are left empty.
func ParseSidecar(b []byte) (Sidecar, error) {
	var s Sidecar
	obj, err := jason.NewObjectFromBytes(b)
	if err != nil {
		return s, errors.Wrap(ErrInvalid, err.Error())
	}
	s.Submitter = getString(obj, "submitter")
	s.OriginalFilename = getString(obj, "originalFilename")
	s.MimeType = getString(obj, "mimeType")
	s.Producer = getString(obj, "producer")
	s.Size = int64(getFloat(obj, "size"))
	s.CreationDate, _ = getTime(obj, "creationDate")
	s.SubmissionDate, _ = getTime(obj, "submissionDate")
	return s, nil
}
