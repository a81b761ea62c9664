// Package manifest models the manifest carried inside submission and
// dissemination packages, along with the per-file metadata sidecars.
//
// A manifest names its submitter, descriptive fields, a resource type and an
// ordered list of files with their declared checksums. Fields specific to a
// resource type are kept in a Details value whose concrete type is chosen by
// the resource type, so a sport record can never carry an academic field.
package manifest

import (
	"strings"
	"time"
)

// Name is the file name of the manifest inside a package.
const Name = "manifesto-SIP.json"

// SHA256 is the only supported checksum algorithm.
const SHA256 = "SHA-256"

// Visibility controls who may retrieve a record.
type Visibility string

const (
	Private Visibility = "private"
	Public  Visibility = "public"
)

// IsPublic reports whether v is Public.
func (v Visibility) IsPublic() bool { return v == Public }

// ParseVisibility accepts "public" and "private" in any case. Anything else
// is reported as not ok.
func ParseVisibility(s string) (Visibility, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "public":
		return Public, true
	case "private":
		return Private, true
	}
	return Private, false
}

// ResourceType classifies a record. Each type owns its own set of details.
type ResourceType string

const (
	Sport         ResourceType = "sport"
	Academic      ResourceType = "academic"
	Family        ResourceType = "family"
	Travel        ResourceType = "travel"
	Work          ResourceType = "work"
	Personal      ResourceType = "personal"
	Entertainment ResourceType = "entertainment"
	Other         ResourceType = "other"
)

// ResourceTypes lists every resource type.
var ResourceTypes = []ResourceType{
	Sport, Academic, Family, Travel, Work, Personal, Entertainment, Other,
}

// older packages use the Portuguese names
var resourceAliases = map[string]ResourceType{
	"desporto":       Sport,
	"académico":      Academic,
	"academico":      Academic,
	"familiar":       Family,
	"viagem":         Travel,
	"trabalho":       Work,
	"pessoal":        Personal,
	"entretenimento": Entertainment,
	"outro":          Other,
}

// ParseResourceType maps a name, or one of its Portuguese aliases, to a
// ResourceType. Case is ignored.
func ParseResourceType(s string) (ResourceType, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, rt := range ResourceTypes {
		if s == string(rt) {
			return rt, true
		}
	}
	rt, ok := resourceAliases[s]
	return rt, ok
}

// Checksum is a declared digest.
type Checksum struct {
	Algorithm string `json:"algorithm"`
	Value     string `json:"value"`
}

// IsSHA256 reports whether the algorithm is SHA-256. An empty algorithm is
// taken to mean SHA-256.
func (c Checksum) IsSHA256() bool {
	switch strings.ToUpper(strings.TrimSpace(c.Algorithm)) {
	case "", "SHA-256", "SHA256", "SHA_256":
		return true
	}
	return false
}

// FileEntry describes one payload file of a package.
type FileEntry struct {
	FilePath         string    `json:"filePath"`
	Checksum         Checksum  `json:"checksum"`
	MimeType         string    `json:"mimeType,omitempty"`
	Size             int64     `json:"size"`
	MetadataPath     string    `json:"metadataPath,omitempty"`
	MetadataChecksum *Checksum `json:"metadataChecksum,omitempty"`
}

// Comment is a remark left on a record by a user.
type Comment struct {
	Username string    `json:"username"`
	Text     string    `json:"comment"`
	Date     time.Time `json:"date"`
}

// Manifest is the parsed form of a package manifest. ID, LastModified and
// Comments are only present on dissemination manifests.
type Manifest struct {
	ID             string
	Submitter      string
	Created        time.Time
	LastModified   time.Time
	OccurrenceDate time.Time
	Title          string
	Description    string
	Visibility     Visibility
	ResourceType   ResourceType
	Details        Details
	Comments       []Comment
	Files          []FileEntry
}
