package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/zulandar/kpiyard/internal/notify"
)

func newNotificationsCmd() *cobra.Command {
	var (
		configPath string
		ack        uint
	)

	cmd := &cobra.Command{
		Use:   "notifications <employee-id>",
		Short: "List or acknowledge an employee's unread notifications",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, gormDB, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			recipient := args[0]

			if ack > 0 {
				if err := notify.Acknowledge(gormDB, recipient, ack); err != nil {
					return err
				}
				fmt.Fprintf(out, "Acknowledged notification %d\n", ack)
				return nil
			}

			rows, err := notify.Inbox(gormDB, recipient)
			if err != nil {
				return err
			}
			if len(rows) == 0 {
				fmt.Fprintln(out, "No unread notifications.")
				return nil
			}
			for _, n := range rows {
				fmt.Fprintf(out, "%5d  %s  %-24s  from %s  %s\n",
					n.ID, n.CreatedAt.Format("2006-01-02 15:04"), n.Type, n.ActorID, notify.Title(n.Type))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfig, "path to kpiyard config file")
	cmd.Flags().UintVar(&ack, "ack", 0, "acknowledge the notification with this id")
	return cmd
}
