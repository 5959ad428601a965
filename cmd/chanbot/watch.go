package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"slices"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/chanbot/internal/client"
	"github.com/alfredjeanlab/chanbot/internal/events"
	"github.com/alfredjeanlab/chanbot/internal/model"
	"github.com/alfredjeanlab/chanbot/internal/ui"
)

var watchCmd = &cobra.Command{
	Use:     "watch",
	Short:   "Watch managed channels for changes",
	GroupID: "channels",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		interval, _ := cmd.Flags().GetDuration("interval")
		once, _ := cmd.Flags().GetBool("once")
		search, _ := cmd.Flags().GetString("search")
		natsURL, _ := cmd.Flags().GetString("nats-url")
		verbose, _ := cmd.Flags().GetBool("events")

		req := &client.ListChannelsRequest{Search: search}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		seen := make(map[string]channelState)

		if err := queryAndPrint(ctx, req, seen); err != nil {
			return err
		}
		if once {
			return nil
		}

		if natsURL != "" {
			return watchNATS(ctx, natsURL, verbose, req, seen)
		}
		return watchPoll(ctx, interval, req, seen)
	},
}

// channelState is the part of a record whose change is worth reporting.
type channelState struct {
	Name      string
	ExpiresAt int64
	Reminded  bool
}

func stateOf(c *model.Channel) channelState {
	return channelState{Name: c.Name, ExpiresAt: c.ExpiresAt, Reminded: c.Reminded}
}

// watchNATS re-queries on every bot event, debounced, and immediately after
// a reconnect.
func watchNATS(ctx context.Context, natsURL string, verbose bool, req *client.ListChannelsRequest, seen map[string]channelState) error {
	reconnectCh := make(chan struct{}, 1)

	sub, err := events.NewNATSSubscriber(natsURL,
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Printf("nats: disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Printf("nats: reconnected")
			select {
			case reconnectCh <- struct{}{}:
			default:
			}
		}),
	)
	if err != nil {
		return fmt.Errorf("connecting to NATS: %w", err)
	}
	defer sub.Close()

	stream, err := sub.Subscribe(events.TopicAll)
	if err != nil {
		return fmt.Errorf("subscribing to events: %w", err)
	}
	defer stream.Stop()

	debounce := time.NewTimer(0)
	debounce.Stop()
	select {
	case <-debounce.C:
	default:
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case env, ok := <-stream.C:
			if !ok {
				return nil
			}
			if verbose && !jsonOutput {
				fmt.Println(ui.RenderMuted(fmt.Sprintf("%s %s %s",
					time.Unix(env.At, 0).Format(time.TimeOnly), env.Topic, env.ChannelID())))
			}
			debounce.Reset(200 * time.Millisecond)
		case <-reconnectCh:
			debounce.Reset(0)
		case <-debounce.C:
			if err := queryAndPrint(ctx, req, seen); err != nil {
				return err
			}
		}
	}
}

func watchPoll(ctx context.Context, interval time.Duration, req *client.ListChannelsRequest, seen map[string]channelState) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(interval):
		}
		if err := queryAndPrint(ctx, req, seen); err != nil {
			return err
		}
	}
}

func queryAndPrint(ctx context.Context, req *client.ListChannelsRequest, seen map[string]channelState) error {
	resp, err := adminClient.ListChannels(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("listing channels: %w", err)
	}

	changed, removed := diffChannels(resp.Channels, seen)
	if jsonOutput {
		if len(changed) > 0 || len(removed) > 0 {
			printJSON(map[string]any{"changed": changed, "removed": removed})
		}
		return nil
	}
	if len(changed) > 0 {
		printChannelTable(os.Stdout, changed, resp.Total, time.Now())
	}
	for _, id := range removed {
		fmt.Printf("- %s gone\n", id)
	}
	return nil
}

// diffChannels returns channels that are new or changed since the last call,
// and the ids of previously seen channels that have gone. It updates seen in
// place.
func diffChannels(chs []*model.Channel, seen map[string]channelState) ([]*model.Channel, []string) {
	var changed []*model.Channel
	present := make(map[string]bool, len(chs))
	for _, c := range chs {
		present[c.ID] = true
		st := stateOf(c)
		if prev, ok := seen[c.ID]; !ok || prev != st {
			changed = append(changed, c)
		}
		seen[c.ID] = st
	}

	var removed []string
	for id := range seen {
		if !present[id] {
			removed = append(removed, id)
			delete(seen, id)
		}
	}
	slices.Sort(removed)
	return changed, removed
}

func init() {
	watchCmd.Flags().Duration("interval", 5*time.Second, "polling interval when NATS is not configured")
	watchCmd.Flags().Bool("once", false, "exit after the first query")
	watchCmd.Flags().StringP("search", "s", "", "regular expression matched against name and organization")
	watchCmd.Flags().Bool("events", false, "print each bot event as it arrives (NATS only)")
	watchCmd.Flags().String("nats-url", os.Getenv("CHANBOT_NATS_URL"), "NATS server for event-driven refresh")
}
