package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/hilops/titleflow/internal/notify"
	"github.com/hilops/titleflow/internal/types"
)

var notificationsCmd = &cobra.Command{
	Use:     "notifications",
	Aliases: []string{"notif"},
	Short:   "Inspect and manage operator notifications",
}

var notificationsListCmd = &cobra.Command{
	Use:   "list <user-id>",
	Short: "List a user's recent notifications",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		filter := types.NotificationFilter{UserID: args[0]}
		if unread, _ := cmd.Flags().GetBool("unread"); unread {
			filter.UnreadOnly = true
		}
		if cfg.NotificationWindow > 0 {
			after := time.Now().UTC().Add(-cfg.NotificationWindow)
			filter.CreatedAfter = &after
		}

		rows, err := store.ListNotifications(ctx, filter)
		if err != nil {
			return err
		}
		if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
			return json.NewEncoder(os.Stdout).Encode(rows)
		}
		for _, n := range rows {
			marker := " "
			if !n.Read {
				marker = "*"
			}
			fmt.Printf("%s %s  %-15s  %-7s  %s\n", marker, n.ID, n.Type, n.Priority, n.Title)
		}
		return nil
	},
}

var notificationsReadCmd = &cobra.Command{
	Use:   "read <notification-id>",
	Short: "Mark a notification read",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()
		return store.MarkNotificationRead(ctx, args[0], true)
	},
}

var notificationsUnreadCmd = &cobra.Command{
	Use:   "unread <notification-id>",
	Short: "Mark a notification unread again",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()
		return store.MarkNotificationRead(ctx, args[0], false)
	},
}

var notificationsAudienceCmd = &cobra.Command{
	Use:   "audience <role> [user...]",
	Short: "Show or set a role's notification audience",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		role := args[0]
		if len(args) == 1 {
			users, err := notify.NewStoreDirectory(store).ListUsersByRole(ctx, role)
			if err != nil {
				return err
			}
			for _, u := range users {
				fmt.Println(u)
			}
			return nil
		}

		if err := store.SetConfig(ctx, notify.AudienceKey(role), strings.Join(args[1:], ",")); err != nil {
			return err
		}
		fmt.Printf("Audience for %s: %s\n", role, strings.Join(args[1:], ", "))
		return nil
	},
}

func init() {
	notificationsListCmd.Flags().Bool("unread", false, "Only unread notifications")
	notificationsListCmd.Flags().Bool("json", false, "Output JSON")

	notificationsCmd.AddCommand(notificationsListCmd, notificationsReadCmd,
		notificationsUnreadCmd, notificationsAudienceCmd)
	rootCmd.AddCommand(notificationsCmd)
}
