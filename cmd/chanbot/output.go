package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/alfredjeanlab/chanbot/internal/model"
	"github.com/alfredjeanlab/chanbot/internal/ui"
)

const timeLayout = "2006-01-02 15:04:05"

func printJSON(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error marshaling JSON: %v\n", err)
		return
	}
	fmt.Println(string(data))
}

// expiryLabel renders the time left until expiresAt, colored by urgency.
func expiryLabel(expiresAt int64, now time.Time) string {
	left := time.Unix(expiresAt, 0).Sub(now)
	switch {
	case left <= 0:
		return ui.RenderDanger("expired")
	case left < time.Duration(model.ReminderWindow)*time.Second:
		return ui.RenderWarn(humanDuration(left))
	default:
		return humanDuration(left)
	}
}

func humanDuration(d time.Duration) string {
	days := int(d / (24 * time.Hour))
	switch {
	case days >= 1:
		return fmt.Sprintf("%dd", days)
	case d >= time.Hour:
		return fmt.Sprintf("%dh", int(d/time.Hour))
	default:
		return fmt.Sprintf("%dm", int(d/time.Minute))
	}
}

func printChannel(w io.Writer, c *model.Channel, now time.Time) {
	fmt.Fprintf(w, "ID:           %s\n", c.ID)
	fmt.Fprintf(w, "Name:         %s\n", c.Name)
	fmt.Fprintf(w, "Owner:        %s\n", c.OwnerUserID)
	if c.Organization != "" {
		fmt.Fprintf(w, "Organization: %s\n", c.Organization)
	}
	if c.Topic != "" {
		fmt.Fprintf(w, "Topic:        %s\n", c.Topic)
	}
	if c.Purpose != "" {
		fmt.Fprintf(w, "Purpose:      %s\n", c.Purpose)
	}
	fmt.Fprintf(w, "Created At:   %s\n", time.Unix(c.CreatedAt, 0).UTC().Format(timeLayout))
	fmt.Fprintf(w, "Expires At:   %s (%s)\n", c.ExpiryTime().Format(timeLayout), expiryLabel(c.ExpiresAt, now))
	fmt.Fprintf(w, "Reminded:     %t\n", c.Reminded)
}

func printChannelTable(w io.Writer, chs []*model.Channel, total int, now time.Time) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tOWNER\tEXPIRES\tLEFT\tTOPIC")
	for _, c := range chs {
		topic := c.Topic
		if len(topic) > 40 {
			topic = topic[:37] + "..."
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			c.ID,
			c.Name,
			c.OwnerUserID,
			c.ExpiryTime().Format("2006-01-02"),
			expiryLabel(c.ExpiresAt, now),
			topic,
		)
	}
	tw.Flush()
	fmt.Fprintf(w, "\n%d channels (%d total)\n", len(chs), total)
}
