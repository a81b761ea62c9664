package manifest

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/antonholmquist/jason"
	"github.com/pkg/errors"
)

// ErrInvalid is wrapped by every structural problem found by Parse.
var ErrInvalid = errors.New("invalid manifest")

// accepted timestamp layouts, tried in order. Numbers are epoch milliseconds.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Parse decodes a manifest. It checks structure only: the JSON must be an
// object with a submitter, a title, a known resourceType and a list of files,
// each having a filePath. Checksums are not examined.
func Parse(b []byte) (*Manifest, error) {
	obj, err := jason.NewObjectFromBytes(b)
	if err != nil {
		return nil, errors.Wrap(ErrInvalid, err.Error())
	}
	m := &Manifest{}
	m.ID = getString(obj, "id")
	m.Submitter = strings.TrimSpace(getString(obj, "submitter"))
	if m.Submitter == "" {
		return nil, errors.Wrap(ErrInvalid, "submitter information missing")
	}
	m.Title = strings.TrimSpace(getString(obj, "title"))
	if m.Title == "" {
		return nil, errors.Wrap(ErrInvalid, "title missing")
	}
	rtname := getString(obj, "resourceType")
	if rtname == "" {
		return nil, errors.Wrap(ErrInvalid, "resourceType missing")
	}
	var ok bool
	m.ResourceType, ok = ParseResourceType(rtname)
	if !ok {
		return nil, errors.Wrapf(ErrInvalid, "unknown resourceType %q", rtname)
	}
	m.Description = getString(obj, "description")
	m.Visibility = parseVisibility(obj)
	m.Details = decodeDetails(m.ResourceType, obj)

	if m.Created, err = getTime(obj, "created", "creationDate"); err != nil {
		return nil, err
	}
	if m.LastModified, err = getTime(obj, "lastModified"); err != nil {
		return nil, err
	}
	// "occurenceDate" is a misspelling found in older packages
	if m.OccurrenceDate, err = getTime(obj, "occurrenceDate", "occurenceDate"); err != nil {
		return nil, err
	}

	if comments, err := obj.GetObjectArray("comments"); err == nil {
		for _, c := range comments {
			var comment Comment
			comment.Username, _ = c.GetString("username")
			comment.Text, _ = c.GetString("comment")
			comment.Date, _ = getTime(c, "date")
			m.Comments = append(m.Comments, comment)
		}
	}

	files, err := obj.GetValueArray("files")
	if err != nil {
		return nil, errors.Wrap(ErrInvalid, "files list missing")
	}
	for i, v := range files {
		fobj, err := v.Object()
		if err != nil {
			return nil, errors.Wrapf(ErrInvalid, "files[%d] is not an object", i)
		}
		entry, err := parseFileEntry(fobj)
		if err != nil {
			return nil, errors.Wrapf(err, "files[%d]", i)
		}
		m.Files = append(m.Files, entry)
	}
	return m, nil
}

func parseFileEntry(obj *jason.Object) (FileEntry, error) {
	var entry FileEntry
	entry.FilePath = strings.TrimSpace(getString(obj, "filePath"))
	if entry.FilePath == "" {
		return entry, errors.Wrap(ErrInvalid, "filePath missing")
	}
	entry.Checksum, _ = getChecksum(obj, "checksum")
	entry.MimeType = getString(obj, "mimeType")
	entry.Size = int64(getFloat(obj, "size"))
	entry.MetadataPath = strings.TrimSpace(getString(obj, "metadataPath"))
	if c, ok := getChecksum(obj, "metadataChecksum"); ok {
		entry.MetadataChecksum = &c
	}
	return entry, nil
}

// getChecksum reads {algorithm, value} or a bare digest string, which is
// taken to be SHA-256.
func getChecksum(obj *jason.Object, key string) (Checksum, bool) {
	if s, err := obj.GetString(key); err == nil {
		return Checksum{Algorithm: SHA256, Value: s}, s != ""
	}
	c, err := obj.GetObject(key)
	if err != nil {
		return Checksum{}, false
	}
	var result Checksum
	result.Algorithm, _ = c.GetString("algorithm")
	result.Value, _ = c.GetString("value")
	return result, result.Value != "" || result.Algorithm != ""
}

// parseVisibility accepts a "visibility" string or boolean, or an "isPublic"
// boolean. Anything unrecognized is private.
func parseVisibility(obj *jason.Object) Visibility {
	if s, err := obj.GetString("visibility"); err == nil {
		v, _ := ParseVisibility(s)
		return v
	}
	if b, err := obj.GetBoolean("visibility"); err == nil && b {
		return Public
	}
	if b, err := obj.GetBoolean("isPublic"); err == nil && b {
		return Public
	}
	return Private
}

// getTime reads the first of keys which is present. A present but
// unreadable value is an error.
func getTime(obj *jason.Object, keys ...string) (time.Time, error) {
	for _, key := range keys {
		v, err := obj.GetValue(key)
		if err != nil || v.Null() == nil {
			continue
		}
		if n, err := v.Number(); err == nil {
			ms, err := n.Int64()
			if err != nil {
				f, _ := n.Float64()
				ms = int64(f)
			}
			return time.Unix(0, ms*int64(time.Millisecond)).UTC(), nil
		}
		s, err := v.String()
		if err != nil {
			return time.Time{}, errors.Wrapf(ErrInvalid, "%s is not a date", key)
		}
		if s == "" {
			continue
		}
		t, err := parseTime(s)
		if err != nil {
			return time.Time{}, errors.Wrapf(ErrInvalid, "%s: %s", key, err.Error())
		}
		return t, nil
	}
	return time.Time{}, nil
}

func parseTime(s string) (time.Time, error) {
	var err error
	for _, layout := range timeLayouts {
		var t time.Time
		t, err = time.Parse(layout, s)
		if err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, err
}

// Encode writes m as JSON. Resource type details are written as top level
// fields, as in submitted manifests. Empty optional fields are left out.
func Encode(m *Manifest) ([]byte, error) {
	out := DetailFields(m.Details)
	if m.ID != "" {
		out["id"] = m.ID
	}
	out["submitter"] = m.Submitter
	out["title"] = m.Title
	if m.Description != "" {
		out["description"] = m.Description
	}
	out["visibility"] = m.Visibility
	out["resourceType"] = m.ResourceType
	putTime(out, "created", m.Created)
	putTime(out, "lastModified", m.LastModified)
	putTime(out, "occurrenceDate", m.OccurrenceDate)
	if len(m.Comments) > 0 {
		out["comments"] = m.Comments
	}
	files := m.Files
	if files == nil {
		files = []FileEntry{}
	}
	out["files"] = files
	return json.MarshalIndent(out, "", "  ")
}

func putTime(out map[string]interface{}, key string, t time.Time) {
	if !t.IsZero() {
		out[key] = t.UTC().Format(time.RFC3339Nano)
	}
}
