package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"

	"slnsync/internal/errors"
	"slnsync/internal/notify"
)

// The encoder and decoder are safe for concurrent use and reused across calls.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("storage: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("storage: zstd decoder initialization failed: " + err.Error())
	}
}

// Entry is a journaled event without its contents.
type Entry struct {
	Seq     int64
	ID      string
	Kind    notify.Kind
	NodeID  string
	Path    string
	OldPath string
	Project string
	Time    time.Time
	// Size is the uncompressed size of the FileAdded contents.
	Size int
}

// Query selects journal entries. Zero fields match everything.
type Query struct {
	Kinds []notify.Kind
	// PathPrefix matches the path itself and everything below it.
	PathPrefix string
	Since      time.Time
	// Limit keeps the most recent entries.
	Limit int
}

// Journal records every notification it receives.
type Journal struct {
	db     *DB
	logger *slog.Logger
}

// NewJournal creates a journal on db.
func NewJournal(db *DB, logger *slog.Logger) *Journal {
	return &Journal{db: db, logger: logger}
}

// Handle implements notify.Handler.
func (j *Journal) Handle(ctx context.Context, ev notify.Event) error {
	_, err := j.Record(ctx, ev)
	return err
}

// Record stores ev. A redelivered event is not stored twice; inserted is
// false for it.
func (j *Journal) Record(ctx context.Context, ev notify.Event) (inserted bool, err error) {
	var contents []byte
	if len(ev.Contents) > 0 {
		contents = zstdEncoder.EncodeAll(ev.Contents, nil)
	}
	res, err := j.db.conn.ExecContext(ctx, `
		INSERT OR IGNORE INTO events
			(id, kind, node_id, path, old_path, project, occurred_at, contents, contents_size)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID,
		ev.Kind.String(),
		ev.NodeID,
		ev.Path,
		nullString(ev.OldPath),
		nullString(ev.Project),
		ev.Time.UnixNano(),
		contents,
		len(ev.Contents),
	)
	if err != nil {
		return false, fmt.Errorf("failed to record event %s: %w", ev.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		j.logger.Debug("Duplicate event ignored", "id", ev.ID, "kind", ev.Kind.String())
	}
	return n > 0, nil
}

// List returns entries matching q, oldest first.
func (j *Journal) List(ctx context.Context, q Query) ([]Entry, error) {
	var (
		where []string
		args  []interface{}
	)
	if len(q.Kinds) > 0 {
		marks := make([]string, len(q.Kinds))
		for i, k := range q.Kinds {
			marks[i] = "?"
			args = append(args, k.String())
		}
		where = append(where, "kind IN ("+strings.Join(marks, ", ")+")")
	}
	if q.PathPrefix != "" {
		prefix := filepath.Clean(q.PathPrefix)
		below := prefix + string(filepath.Separator)
		where = append(where, "(path = ? OR substr(path, 1, ?) = ?)")
		args = append(args, prefix, len(below), below)
	}
	if !q.Since.IsZero() {
		where = append(where, "occurred_at >= ?")
		args = append(args, q.Since.UnixNano())
	}

	query := "SELECT seq, id, kind, node_id, path, old_path, project, occurred_at, contents_size FROM events"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY seq DESC"
	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	}

	rows, err := j.db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e        Entry
			kind     string
			oldPath  sql.NullString
			project  sql.NullString
			occurred int64
		)
		if err := rows.Scan(&e.Seq, &e.ID, &kind, &e.NodeID, &e.Path, &oldPath, &project, &occurred, &e.Size); err != nil {
			return nil, err
		}
		k, ok := notify.ParseKind(kind)
		if !ok {
			j.logger.Warn("Skipping journal entry of unknown kind", "seq", e.Seq, "kind", kind)
			continue
		}
		e.Kind = k
		e.OldPath = oldPath.String
		e.Project = project.String
		e.Time = time.Unix(0, occurred)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	slices.Reverse(entries)
	return entries, nil
}

// Contents returns the decompressed contents carried by the event id.
func (j *Journal) Contents(ctx context.Context, id string) ([]byte, error) {
	var (
		compressed []byte
		size       int
	)
	err := j.db.conn.QueryRowContext(ctx,
		"SELECT contents, contents_size FROM events WHERE id = ?", id,
	).Scan(&compressed, &size)
	if err == sql.ErrNoRows {
		return nil, errors.New(errors.NodeNotFound, "no such event", nil).WithDetails(id)
	}
	if err != nil {
		return nil, err
	}
	if size == 0 {
		return nil, nil
	}

	data, err := zstdDecoder.DecodeAll(compressed, make([]byte, 0, size))
	if err != nil {
		return nil, fmt.Errorf("zstd decompress: %w", err)
	}
	if len(data) != size {
		return nil, fmt.Errorf("zstd decompress: got %d bytes, expected %d", len(data), size)
	}
	return data, nil
}

// Count returns the number of stored events.
func (j *Journal) Count(ctx context.Context) (int64, error) {
	var n int64
	err := j.db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM events").Scan(&n)
	return n, err
}

// Prune deletes events older than before and returns how many were removed.
// The database is compacted when anything was removed.
func (j *Journal) Prune(ctx context.Context, before time.Time) (int64, error) {
	var removed int64
	err := j.db.WithTx(func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, "DELETE FROM events WHERE occurred_at < ?", before.UnixNano())
		if err != nil {
			return err
		}
		removed, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to prune events: %w", err)
	}
	if removed == 0 {
		return 0, nil
	}
	j.logger.Info("Journal pruned", "removed", removed, "before", before)
	if err := j.db.Compact(ctx); err != nil {
		return removed, err
	}
	return removed, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
