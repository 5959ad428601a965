package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/alfredjeanlab/chanbot/internal/model"
	"github.com/alfredjeanlab/chanbot/internal/store"
)

// channelColumns is the column list used for SELECT statements on the channels table.
const channelColumns = `id, name, created_at, owner_user_id, organization,
	topic, purpose, expires_at, reminded`

// executor is the interface satisfied by both *sql.DB and *sql.Tx.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func queryInsertChannel(ctx context.Context, db executor, c *model.Channel) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO channels (
			id, name, created_at, owner_user_id, organization,
			topic, purpose, expires_at, reminded
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		c.ID,
		c.Name,
		c.CreatedAt,
		c.OwnerUserID,
		c.Organization,
		c.Topic,
		c.Purpose,
		c.ExpiresAt,
		c.Reminded,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("insert channel %s: %w", c.ID, store.ErrDuplicateKey)
	}
	if err != nil {
		return store.Unavailable("insert channel", err)
	}
	return nil
}

func queryGetChannel(ctx context.Context, db executor, id string) (*model.Channel, error) {
	row := db.QueryRowContext(ctx, `SELECT `+channelColumns+` FROM channels WHERE id = $1`, id)
	c, err := scanChannel(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, store.Unavailable("get channel", err)
	}
	return c, nil
}

// buildUpdate renders patch as a single UPDATE ... RETURNING statement so the
// overwrite and the increment happen in one atomic write.
func buildUpdate(id string, patch model.ChannelPatch) (string, []any) {
	var (
		sets []string
		args []any
	)
	nextArg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if patch.Name != nil {
		sets = append(sets, "name = "+nextArg(*patch.Name))
	}
	if patch.Organization != nil {
		sets = append(sets, "organization = "+nextArg(*patch.Organization))
	}
	if patch.Topic != nil {
		sets = append(sets, "topic = "+nextArg(*patch.Topic))
	}
	if patch.Purpose != nil {
		sets = append(sets, "purpose = "+nextArg(*patch.Purpose))
	}
	if patch.ExpiresAt != nil || patch.ExtendBy != 0 {
		expr := "expires_at"
		if patch.ExpiresAt != nil {
			expr = nextArg(*patch.ExpiresAt)
		}
		if patch.ExtendBy != 0 {
			expr += " + " + nextArg(patch.ExtendBy)
		}
		sets = append(sets, "expires_at = "+expr)
	}
	if patch.Reminded != nil {
		sets = append(sets, "reminded = "+nextArg(*patch.Reminded))
	}

	query := "UPDATE channels SET " + strings.Join(sets, ", ") +
		" WHERE id = " + nextArg(id) + " RETURNING " + channelColumns
	return query, args
}

func queryUpdateChannel(ctx context.Context, db executor, id string, patch model.ChannelPatch) (*model.Channel, error) {
	if patch.IsEmpty() {
		c, err := queryGetChannel(ctx, db, id)
		if err != nil {
			return nil, err
		}
		if c == nil {
			return nil, fmt.Errorf("update channel %s: %w", id, store.ErrNotFound)
		}
		return c, nil
	}

	query, args := buildUpdate(id, patch)
	c, err := scanChannel(db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("update channel %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, store.Unavailable("update channel", err)
	}
	return c, nil
}

func queryDeleteChannel(ctx context.Context, db executor, id string) error {
	if _, err := db.ExecContext(ctx, `DELETE FROM channels WHERE id = $1`, id); err != nil {
		return store.Unavailable("delete channel", err)
	}
	return nil
}

// buildWhere renders the search expression as a case-insensitive POSIX
// regular expression match over name and organization.
func buildWhere(filter model.ChannelFilter) (string, []any) {
	p := filter.Pattern()
	if p == "" {
		return "", nil
	}
	return " WHERE (name ~* $1 OR organization ~* $1)", []any{p}
}

func queryListChannels(ctx context.Context, db executor, filter model.ChannelFilter) ([]*model.Channel, int, error) {
	whereSQL, whereArgs := buildWhere(filter)
	args := append([]any(nil), whereArgs...)
	nextArg := func() string {
		return fmt.Sprintf("$%d", len(args)+1)
	}

	// Single query with COUNT(*) OVER() to get total and rows atomically.
	dataQuery := "SELECT COUNT(*) OVER() AS total_count, " + channelColumns +
		" FROM channels" + whereSQL + " ORDER BY name ASC, id ASC"

	if filter.Limit > 0 {
		dataQuery += " LIMIT " + nextArg()
		args = append(args, filter.Limit)
	}
	if filter.Offset > 0 {
		dataQuery += " OFFSET " + nextArg()
		args = append(args, filter.Offset)
	}

	rows, err := db.QueryContext(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, store.Unavailable("list channels", err)
	}
	defer rows.Close()

	var (
		channels []*model.Channel
		total    int
	)
	for rows.Next() {
		c, t, err := scanChannelWithTotal(rows)
		if err != nil {
			return nil, 0, store.Unavailable("scan channels", err)
		}
		total = t
		channels = append(channels, c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, store.Unavailable("scan channels", err)
	}

	// An offset past the end yields no rows and therefore no window total.
	if len(channels) == 0 && filter.Offset > 0 {
		if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM channels"+whereSQL, whereArgs...).Scan(&total); err != nil {
			return nil, 0, store.Unavailable("count channels", err)
		}
	}

	return channels, total, nil
}
