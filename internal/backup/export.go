package backup

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/alfredjeanlab/chanbot/internal/model"
	"github.com/alfredjeanlab/chanbot/internal/store"
)

// header is the first JSONL record written by ExportJSONL.
type header struct {
	Version      string    `json:"version"`
	Type         string    `json:"type"`
	Timestamp    time.Time `json:"timestamp"`
	ChannelCount int       `json:"channel_count"`
}

// record wraps a single JSONL line with a type discriminator.
type record struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// ExportJSONL writes every channel record from the store as JSONL to w,
// sorted by id and preceded by a header line.
func ExportJSONL(ctx context.Context, s store.Store, w io.Writer) error {
	channels, _, err := s.ListChannels(ctx, model.ChannelFilter{})
	if err != nil {
		return fmt.Errorf("list channels: %w", err)
	}
	sort.Slice(channels, func(i, j int) bool {
		return channels[i].ID < channels[j].ID
	})

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	if err := enc.Encode(header{
		Version:      "1",
		Type:         "header",
		Timestamp:    time.Now().UTC(),
		ChannelCount: len(channels),
	}); err != nil {
		return fmt.Errorf("encode header: %w", err)
	}

	for _, c := range channels {
		data, err := json.Marshal(c)
		if err != nil {
			return fmt.Errorf("encode channel %s: %w", c.ID, err)
		}
		if err := enc.Encode(record{Type: "channel", Data: data}); err != nil {
			return fmt.Errorf("encode channel %s: %w", c.ID, err)
		}
	}
	return nil
}

// ReadJSONL parses an export produced by ExportJSONL and returns its channel
// records. Lines of other types are skipped.
func ReadJSONL(r io.Reader) ([]*model.Channel, error) {
	var channels []*model.Channel
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		if len(sc.Bytes()) == 0 {
			continue
		}
		var rec record
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if rec.Type != "channel" {
			continue
		}
		var c model.Channel
		if err := json.Unmarshal(rec.Data, &c); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		channels = append(channels, &c)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read export: %w", err)
	}
	return channels, nil
}

// Restore inserts the exported channels into s. Records whose id already
// exists are skipped and counted separately.
func Restore(ctx context.Context, s store.Store, r io.Reader) (inserted, skipped int, err error) {
	channels, err := ReadJSONL(r)
	if err != nil {
		return 0, 0, err
	}
	for _, c := range channels {
		_, err := s.InsertChannel(ctx, c)
		switch {
		case errors.Is(err, store.ErrDuplicateKey):
			skipped++
		case err != nil:
			return inserted, skipped, fmt.Errorf("restore %s: %w", c.ID, err)
		default:
			inserted++
		}
	}
	return inserted, skipped, nil
}
