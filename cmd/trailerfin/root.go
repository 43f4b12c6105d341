package main

import (
	"github.com/spf13/cobra"
)

type runOptions struct {
	dirs     []string
	schedule bool
	monitor  bool
	workers  int
	useNFO   bool
	limit    int
	download bool
	language string
	force    bool
}

func newRootCommand() *cobra.Command {
	var opts runOptions

	rootCmd := &cobra.Command{
		Use:           "trailerfin",
		Short:         "Scan media libraries and keep trailer references fresh",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts)
		},
	}

	rootCmd.Flags().StringArrayVar(&opts.dirs, "dir", nil, "Directory to scan (can be specified multiple times; defaults to SCAN_PATH)")
	rootCmd.Flags().BoolVar(&opts.schedule, "schedule", false, "Run as a scheduled job every SCHEDULE_DAYS days")
	rootCmd.Flags().BoolVar(&opts.monitor, "monitor", false, "Run in continuous monitoring mode")
	rootCmd.Flags().IntVar(&opts.workers, "workers", 0, "Number of concurrent workers (defaults to WORKERS)")
	rootCmd.Flags().BoolVar(&opts.useNFO, "use-nfo", false, "Parse .nfo files to find the IMDb ID instead of using directory names")
	rootCmd.Flags().IntVar(&opts.limit, "limit", 0, "Limit the number of items to process (useful for testing)")
	rootCmd.Flags().BoolVar(&opts.download, "download", false, "Download trailer as trailer.mp4 instead of creating a .strm file")
	rootCmd.Flags().StringVar(&opts.language, "language", "", "Preferred trailer language (ISO 639-1 code: en, fr, es, ...; defaults to LANGUAGE)")
	rootCmd.Flags().BoolVar(&opts.force, "force", false, "Force refresh even if a valid trailer already exists")
	rootCmd.MarkFlagsMutuallyExclusive("schedule", "monitor")

	rootCmd.AddCommand(newStateCommand())

	return rootCmd
}
