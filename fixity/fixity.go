// Package fixity checks the contents of a submission package against the
// checksums declared in its manifest.
//
// Verification is exhaustive: every file entry is checked and every failure
// is reported, in manifest order, so a submitter can fix everything in one
// round trip.
package fixity

import (
	"context"
	"fmt"

	"github.com/ndlib/archivum/bundle"
	"github.com/ndlib/archivum/manifest"
	"github.com/ndlib/archivum/util"
)

// Status is the outcome of checking one file entry.
type Status string

const (
	Valid           Status = "valid"
	Missing         Status = "missing"
	Invalid         Status = "invalid"
	MetadataMissing Status = "metadata_missing"
	MetadataInvalid Status = "metadata_invalid"
	Error           Status = "error"
)

// Problem describes why one file entry failed. File is the path as declared
// in the manifest.
type Problem struct {
	File     string `json:"file"`
	Status   Status `json:"status"`
	Reason   string `json:"error"`
	Expected string `json:"expected,omitempty"`
	Computed string `json:"computed,omitempty"`
}

func (p Problem) String() string {
	return fmt.Sprintf("%s: %s: %s", p.File, p.Status, p.Reason)
}

// Entry is a file entry which passed verification. It records where the
// entry was found so later steps need not resolve it again.
type Entry struct {
	File         string             `json:"file"`
	Status       Status             `json:"status"`
	Size         int64              `json:"size"`
	Name         string             `json:"-"` // resolved archive entry
	MetadataName string             `json:"-"` // resolved sidecar entry, if any
	Digest       string             `json:"-"`
	Index        int                `json:"-"` // position in the manifest
	Declared     manifest.FileEntry `json:"-"`
}

// Result is the outcome of Verify.
type Result struct {
	Valid    []Entry
	Problems []Problem
}

// OK is true when there are no problems.
func (r Result) OK() bool {
	return len(r.Problems) == 0
}

// outcome is the per entry result of check. Exactly one of the fields is set.
type outcome struct {
	entry   *Entry
	problem *Problem
}

// Verify checks every file entry of m against the contents of r using at
// most workers goroutines. Each entry yields either a valid Entry or one
// Problem. A canceled context marks the unchecked entries as errors.
func Verify(ctx context.Context, r *bundle.Reader, m *manifest.Manifest, workers int) Result {
	type task struct {
		index int
		entry manifest.FileEntry
	}
	tasks := make([]task, len(m.Files))
	for i, f := range m.Files {
		tasks[i] = task{index: i, entry: f}
	}
	results, _ := util.ForEach(ctx, workers, util.CollectAll, tasks,
		func(ctx context.Context, t task) (outcome, error) {
			return check(r, t.index, t.entry), nil
		})

	outcomes := make([]*outcome, len(tasks))
	for i := range results {
		outcomes[results[i].Index] = &results[i].Value
	}
	var result Result
	for i, o := range outcomes {
		switch {
		case o == nil:
			reason := "verification canceled"
			if ctx.Err() != nil {
				reason = ctx.Err().Error()
			}
			result.Problems = append(result.Problems, Problem{
				File:   tasks[i].entry.FilePath,
				Status: Error,
				Reason: reason,
			})
		case o.entry != nil:
			result.Valid = append(result.Valid, *o.entry)
		default:
			result.Problems = append(result.Problems, *o.problem)
		}
	}
	return result
}

// check verifies one entry. The sidecar is only examined once the content
// itself is good.
func check(r *bundle.Reader, index int, f manifest.FileEntry) outcome {
	fail := func(status Status, reason, expected, computed string) outcome {
		return outcome{problem: &Problem{
			File:     f.FilePath,
			Status:   status,
			Reason:   reason,
			Expected: expected,
			Computed: computed,
		}}
	}

	name, ok := r.Resolve(f.FilePath)
	if !ok {
		return fail(Missing, "File not found in package", "", "")
	}
	if !f.Checksum.IsSHA256() {
		return fail(Invalid, fmt.Sprintf("Unsupported checksum algorithm %q", f.Checksum.Algorithm), "", "")
	}
	if f.Checksum.Value == "" {
		return fail(Invalid, "No checksum declared", "", "")
	}
	data, err := r.Read(name)
	if err != nil {
		return fail(Error, err.Error(), "", "")
	}
	digest := util.SHA256Hex(data)
	if !util.EqualHex(f.Checksum.Value, digest) {
		return fail(Invalid,
			fmt.Sprintf("Checksum mismatch. Expected: %s, Got: %s", f.Checksum.Value, digest),
			f.Checksum.Value, digest)
	}

	result := &Entry{
		File:     f.FilePath,
		Status:   Valid,
		Size:     int64(len(data)),
		Name:     name,
		Digest:   digest,
		Index:    index,
		Declared: f,
	}
	if f.MetadataPath == "" {
		return outcome{entry: result}
	}
	mname, ok := r.Resolve(f.MetadataPath)
	if !ok {
		return fail(MetadataMissing, "Metadata file not found", "", "")
	}
	result.MetadataName = mname
	if f.MetadataChecksum == nil {
		return outcome{entry: result}
	}
	if !f.MetadataChecksum.IsSHA256() {
		return fail(MetadataInvalid, fmt.Sprintf("Unsupported checksum algorithm %q", f.MetadataChecksum.Algorithm), "", "")
	}
	mdata, err := r.Read(mname)
	if err != nil {
		return fail(Error, err.Error(), "", "")
	}
	mdigest := util.SHA256Hex(mdata)
	if !util.EqualHex(f.MetadataChecksum.Value, mdigest) {
		return fail(MetadataInvalid,
			fmt.Sprintf("Metadata checksum mismatch. Expected: %s, Got: %s", f.MetadataChecksum.Value, mdigest),
			f.MetadataChecksum.Value, mdigest)
	}
	return outcome{entry: result}
}
