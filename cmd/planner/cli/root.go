package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

// NewRootCmd builds the planner operations CLI. open is called lazily so that
// --help works without a redis connection.
func NewRootCmd(open func() (*JobsCLI, error)) *cobra.Command {
	root := &cobra.Command{
		Use:           "planner",
		Short:         "Resource planning operations",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newNotifyCmd(open), newQueueCmd(open))
	return root
}

func newNotifyCmd(open func() (*JobsCLI, error)) *cobra.Command {
	var opts NotifyOptions
	cmd := &cobra.Command{
		Use:       "notify <daily|run|deliver>",
		Short:     "Enqueue a notification task",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"daily", "run", "deliver"},
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := open()
			if err != nil {
				return err
			}
			defer c.Close()
			opts.Task = args[0]
			info, err := c.Notify(cmd.Context(), opts)
			if err != nil {
				return fmt.Errorf("notify: %w", err)
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "enqueued %s id=%s queue=%s\n", info.Type, info.ID, info.Queue)
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.TenantID, "tenant", "", "Tenant ID (run, deliver)")
	cmd.Flags().StringVar(&opts.Phase, "phase", "", "Phase: PM_RO, Finance, Employee or RO_Director (run)")
	cmd.Flags().StringVar(&opts.Period, "period", "", "Month as YYYY-MM (run)")
	cmd.Flags().StringVar(&opts.RunID, "run-id", "", "Notification run ID (deliver)")
	return cmd
}

func newQueueCmd(open func() (*JobsCLI, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect the job queue",
	}
	var size int
	scheduled := &cobra.Command{
		Use:   "scheduled",
		Short: "List scheduled tasks",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := open()
			if err != nil {
				return err
			}
			defer c.Close()
			tasks, err := c.ListScheduled(size)
			if err != nil {
				return err
			}
			for _, t := range tasks {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", t.ID, t.Type, t.NextProcessAt.Format("2006-01-02T15:04:05Z07:00"))
			}
			return nil
		},
	}
	scheduled.Flags().IntVar(&size, "size", 10, "Page size")
	stats := &cobra.Command{
		Use:   "stats",
		Short: "Print default queue statistics as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := open()
			if err != nil {
				return err
			}
			defer c.Close()
			s, err := c.InspectQueue()
			if err != nil {
				return err
			}
			return json.NewEncoder(cmd.OutOrStdout()).Encode(s)
		},
	}
	cmd.AddCommand(stats, scheduled)
	return cmd
}
