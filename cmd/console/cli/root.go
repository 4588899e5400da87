// Package cli holds the operational commands of the console.
package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/odyssey-erp/govconsole/internal/console"
	"github.com/odyssey-erp/govconsole/jobs"
)

// Options carries the settings shared by every command.
type Options struct {
	RedisAddr  string
	JSONOutput bool
	// Registry loads the screen definitions; nil uses the embedded screens.
	Registry func() (*console.Registry, error)
}

// NewRootCommand builds the consolectl command tree.
func NewRootCommand(opts *Options) *cobra.Command {
	if opts.Registry == nil {
		opts.Registry = console.LoadRegistry
	}
	root := &cobra.Command{
		Use:           "consolectl <command>",
		Short:         "Operate the governance console",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.RedisAddr, "redis", defaultRedisAddr(), "redis address used by the job queue")
	root.PersistentFlags().BoolVar(&opts.JSONOutput, "json", false, "output as JSON")

	root.AddGroup(
		&cobra.Group{ID: "screens", Title: "Screens:"},
		&cobra.Group{ID: "jobs", Title: "Jobs:"},
	)
	root.AddCommand(newScreensCommand(opts), newJobsCommand(opts))
	return root
}

func defaultRedisAddr() string {
	if s := os.Getenv("REDIS_ADDR"); s != "" {
		return s
	}
	return "127.0.0.1:6379"
}

func newScreensCommand(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "screens",
		Short:   "Inspect the list screen definitions",
		GroupID: "screens",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List the configured screens and their lookup sources",
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := opts.Registry()
			if err != nil {
				return err
			}
			type row struct {
				Key     string   `json:"key"`
				Title   string   `json:"title"`
				Lookups []string `json:"lookups"`
			}
			rows := make([]row, 0)
			for _, def := range reg.List() {
				rows = append(rows, row{Key: def.Key, Title: def.Title, Lookups: def.LookupSources()})
			}
			out := cmd.OutOrStdout()
			if opts.JSONOutput {
				return writeJSON(out, rows)
			}
			for _, r := range rows {
				fmt.Fprintf(out, "%-12s %s\n", r.Key, r.Title)
			}
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "lint",
		Short: "Validate every screen definition",
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := opts.Registry()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d screens ok\n", len(reg.List()))
			return nil
		},
	})
	return cmd
}

func newJobsCommand(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "jobs",
		Short:   "Manage background jobs",
		GroupID: "jobs",
	}
	withJobs := func(fn func(cmd *cobra.Command, c *JobsCLI, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			c, err := NewJobsCLI(opts.RedisAddr)
			if err != nil {
				return err
			}
			defer c.Close()
			return fn(cmd, c, args)
		}
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "warmup [source...]",
		Short: "Enqueue a lookup warmup",
		RunE: withJobs(func(cmd *cobra.Command, c *JobsCLI, args []string) error {
			info, err := c.TriggerWarmup(cmd.Context(), args)
			if errors.Is(err, jobs.ErrWarmupQueued) {
				fmt.Fprintln(cmd.OutOrStdout(), "warmup already queued")
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "enqueued %s (%s)\n", info.ID, info.Queue)
			return nil
		}),
	})
	var queue string
	cmd.PersistentFlags().StringVar(&queue, "queue", jobs.QueueLookups, "queue to inspect")
	cmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Show queue statistics",
		RunE: withJobs(func(cmd *cobra.Command, c *JobsCLI, args []string) error {
			stats, err := c.InspectQueue(cmd.Context(), queue)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if opts.JSONOutput {
				return writeJSON(out, stats)
			}
			fmt.Fprintf(out, "queue %s: pending=%d active=%d scheduled=%d retry=%d\n",
				stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry)
			return nil
		}),
	})
	var size int
	scheduled := &cobra.Command{
		Use:   "scheduled",
		Short: "List scheduled tasks",
		RunE: withJobs(func(cmd *cobra.Command, c *JobsCLI, args []string) error {
			tasks, err := c.ListScheduled(cmd.Context(), queue, size)
			if err != nil {
				return err
			}
			for _, t := range tasks {
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s\n", t.ID, t.Type, t.NextProcessAt.Format("2006-01-02 15:04:05"))
			}
			return nil
		}),
	}
	scheduled.Flags().IntVar(&size, "size", 10, "number of tasks to list")
	cmd.AddCommand(scheduled)
	return cmd
}

func writeJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
