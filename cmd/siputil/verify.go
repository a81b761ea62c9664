package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/edsrzf/mmap-go"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/ndlib/archivum/bundle"
	"github.com/ndlib/archivum/fixity"
	"github.com/ndlib/archivum/manifest"
)

// mapFile maps the file fname into memory. Call the returned function to
// release it.
func mapFile(fname string) ([]byte, func(), error) {
	f, err := os.Open(fname)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return nil, nil, err
	}
	if info.Size() == 0 {
		return nil, nil, errors.Wrap(bundle.ErrCorrupt, fname+" is empty")
	}
	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return nil, nil, err
	}
	return m, func() { m.Unmap() }, nil
}

func newVerifyCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "verify <sip.zip>",
		Short: "Check a submission package without storing it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, release, err := mapFile(args[0])
			if err != nil {
				return err
			}
			defer release()
			return verifyPackage(cmd, cmd.OutOrStdout(), data, opts.workers)
		},
	}
}

// verifyPackage writes a line for every file entry in the package and
// returns an error if any of them failed.
func verifyPackage(cmd *cobra.Command, out io.Writer, data []byte, workers int) error {
	r, err := bundle.Open(bytes.NewReader(data), int64(len(data)), bundle.DefaultLimits)
	if err != nil {
		return err
	}
	m, err := manifest.Read(r)
	if err != nil {
		return err
	}
	result := fixity.Verify(cmd.Context(), r, m, workers)

	fmt.Fprintf(out, "%s by %s (%s), %d files\n", m.Title, m.Submitter, m.ResourceType, len(m.Files))
	tw := tabwriter.NewWriter(out, 2, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "File\tStatus\tSize\tNote\n")
	for _, e := range result.Valid {
		fmt.Fprintf(tw, "%s\t%s\t%s\t\n", e.File, e.Status, humanize.Bytes(uint64(e.Size)))
	}
	for _, p := range result.Problems {
		fmt.Fprintf(tw, "%s\t%s\t\t%s\n", p.File, p.Status, p.Reason)
	}
	tw.Flush()
	if !result.OK() {
		return fmt.Errorf("%d of %d files failed verification", len(result.Problems), len(m.Files))
	}
	return nil
}
