package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/chanbot/internal/client"
)

var listCmd = &cobra.Command{
	Use:     "list",
	Short:   "List managed channels",
	GroupID: "channels",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		search, _ := cmd.Flags().GetString("search")
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")

		resp, err := adminClient.ListChannels(cmd.Context(), &client.ListChannelsRequest{
			Search: search,
			Limit:  limit,
			Offset: offset,
		})
		if err != nil {
			return fmt.Errorf("listing channels: %w", err)
		}
		if jsonOutput {
			printJSON(resp)
			return nil
		}
		printChannelTable(os.Stdout, resp.Channels, resp.Total, time.Now())
		return nil
	},
}

var showCmd = &cobra.Command{
	Use:     "show <channel-id>",
	Short:   "Show a managed channel",
	GroupID: "channels",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := adminClient.GetChannel(cmd.Context(), args[0])
		if err != nil {
			if client.IsNotFound(err) {
				return fmt.Errorf("channel %s is not managed", args[0])
			}
			return err
		}
		if jsonOutput {
			printJSON(c)
			return nil
		}
		printChannel(os.Stdout, c, time.Now())
		return nil
	},
}

var extendCmd = &cobra.Command{
	Use:     "extend <channel-id> <days>",
	Short:   "Push a channel's expiry back by a number of days",
	GroupID: "channels",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		days, err := strconv.Atoi(args[1])
		if err != nil || days <= 0 {
			return fmt.Errorf("days must be a positive integer, got %q", args[1])
		}
		c, err := adminClient.ExtendChannel(cmd.Context(), args[0], days)
		if err != nil {
			return fmt.Errorf("extending %s: %w", args[0], err)
		}
		if jsonOutput {
			printJSON(c)
			return nil
		}
		fmt.Printf("%s now expires %s\n", c.Name, c.ExpiryTime().Format(timeLayout))
		return nil
	},
}

var setExpiryCmd = &cobra.Command{
	Use:     "set-expiry <channel-id> <YYYY-MM-DD|unix-seconds>",
	Short:   "Set a channel's expiry to an absolute date",
	GroupID: "channels",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := &client.SetExpiryRequest{}
		if ts, err := strconv.ParseInt(args[1], 10, 64); err == nil {
			req.ExpiresAt = ts
		} else {
			req.Date = args[1]
		}
		c, err := adminClient.SetExpiry(cmd.Context(), args[0], req)
		if err != nil {
			return fmt.Errorf("setting expiry of %s: %w", args[0], err)
		}
		if jsonOutput {
			printJSON(c)
			return nil
		}
		fmt.Printf("%s now expires %s\n", c.Name, c.ExpiryTime().Format(timeLayout))
		return nil
	},
}

var removeCmd = &cobra.Command{
	Use:     "remove <channel-id>",
	Aliases: []string{"rm"},
	Short:   "Stop managing a channel, optionally archiving it",
	GroupID: "channels",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		archive, _ := cmd.Flags().GetBool("archive")
		if err := adminClient.DeleteChannel(cmd.Context(), args[0], archive); err != nil {
			return fmt.Errorf("removing %s: %w", args[0], err)
		}
		if jsonOutput {
			printJSON(map[string]any{"id": args[0], "archived": archive})
			return nil
		}
		if archive {
			fmt.Printf("Archived %s\n", args[0])
		} else {
			fmt.Printf("Removed %s\n", args[0])
		}
		return nil
	},
}

func init() {
	listCmd.Flags().StringP("search", "s", "", "regular expression matched against name and organization")
	listCmd.Flags().Int("limit", 0, "maximum number of channels to return")
	listCmd.Flags().Int("offset", 0, "number of channels to skip")

	removeCmd.Flags().Bool("archive", false, "archive the channel on the platform as well")
}
