package main

import (
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/ndlib/archivum/pipeline"
	"github.com/ndlib/archivum/records"
	"github.com/ndlib/archivum/store"
)

// archive is an open storage location and metadata database.
type archive struct {
	blobs store.Store
	db    records.DB
}

func openArchive(opts *options) (*archive, error) {
	blobs, err := openStorage(opts.storage)
	if err != nil {
		return nil, err
	}
	var db records.DB
	if opts.mysql != "" {
		db, err = records.NewMysqlDB(opts.mysql)
	} else {
		db, err = records.NewQlDB(opts.qlPath)
	}
	if err != nil {
		return nil, err
	}
	return &archive{blobs: blobs, db: db}, nil
}

func (a *archive) Close() error {
	return a.db.Close()
}

// openStorage understands the same locations as sipd except memory, which
// would be pointless here.
func openStorage(location string) (store.Store, error) {
	if strings.HasPrefix(location, "s3:") {
		return nil, fmt.Errorf("siputil only supports file storage locations, not %s", location)
	}
	location = strings.TrimPrefix(location, "file:")
	if err := os.MkdirAll(location, 0755); err != nil {
		return nil, err
	}
	return store.NewFileSystem(location), nil
}

func newIngestCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "ingest <sip.zip>...",
		Short: "Verify and store submission packages",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openArchive(opts)
			if err != nil {
				return err
			}
			defer a.Close()
			ing := pipeline.NewIngester(a.blobs, a.db)
			ing.Workers = opts.workers
			for _, fname := range args {
				data, release, err := mapFile(fname)
				if err != nil {
					return err
				}
				receipt, err := ing.Ingest(cmd.Context(), data)
				release()
				if err != nil {
					return fmt.Errorf("%s: %w", fname, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%d files\n", fname, receipt.Record.ID, len(receipt.Files))
			}
			return nil
		},
	}
}

func newExportCmd(opts *options) *cobra.Command {
	var outdir string
	cmd := &cobra.Command{
		Use:   "export <record id>...",
		Short: "Write the dissemination package of records as <id>.zip",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openArchive(opts)
			if err != nil {
				return err
			}
			defer a.Close()
			rc := &pipeline.Reconstructor{Blobs: a.blobs, DB: a.db, Workers: opts.workers}
			for _, id := range args {
				data, err := rc.ReconstructID(cmd.Context(), id)
				if err != nil {
					return fmt.Errorf("%s: %w", id, err)
				}
				fname := filepath.Join(outdir, id+".zip")
				if err = ioutil.WriteFile(fname, data, 0644); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", fname, humanize.Bytes(uint64(len(data))))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&outdir, "output", "o", ".", "directory to write the packages to")
	return cmd
}

func newListCmd(opts *options) *cobra.Command {
	var public bool
	cmd := &cobra.Command{
		Use:   "list [owner]",
		Short: "List records, newest first",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openArchive(opts)
			if err != nil {
				return err
			}
			defer a.Close()
			q := records.Query{PublicOnly: public}
			if len(args) > 0 {
				q.Owner = args[0]
			}
			recs, err := a.db.ListRecords(cmd.Context(), q)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 2, 0, 2, ' ', 0)
			fmt.Fprintf(tw, "ID\tOwner\tTitle\tType\tVisibility\tFiles\tCreated\n")
			for _, rec := range recs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
					rec.ID,
					rec.Owner,
					rec.Title,
					rec.ResourceType,
					rec.Visibility,
					len(rec.Files),
					humanize.Time(rec.CreationDate))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&public, "public", false, "only list public records")
	return cmd
}
