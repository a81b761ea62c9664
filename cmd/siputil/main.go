// Command siputil is an operator tool for submission packages and the
// archive. It can check a package locally, and ingest, export and list
// packages using the same storage and database settings as sipd.
package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/ndlib/archivum/pipeline"
)

// options shared by every subcommand
type options struct {
	storage string
	qlPath  string
	mysql   string
	workers int
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "siputil",
		Short:         "Work with submission packages and the archive",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.storage, "storage", ".", "location of the payload storage: a path, file:path, or s3://host/bucket/prefix")
	root.PersistentFlags().StringVar(&opts.qlPath, "ql", "archivum.ql", "file of the internal metadata database")
	root.PersistentFlags().StringVar(&opts.mysql, "mysql", "", "MySQL dial string, used instead of the internal database")
	root.PersistentFlags().IntVar(&opts.workers, "workers", pipeline.DefaultWorkers, "files handled at once")

	root.AddCommand(newVerifyCmd(opts))
	root.AddCommand(newIngestCmd(opts))
	root.AddCommand(newExportCmd(opts))
	root.AddCommand(newListCmd(opts))
	return root
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
