package memory

import (
	"context"
	"database/sql"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"github.com/flowmatik/backend/core"
)

// turnLog is the durable append-only turn store backed by SQLite. It carries
// no ordering logic of its own; EternalMemory serializes appends per session
// before they reach the log. IDs for different sessions are generated
// concurrently, so the entropy source must be safe for concurrent use.
type turnLog struct {
	db      *sql.DB
	path    string
	entropy *ulid.LockedMonotonicReader
}

func newTurnLog(dbPath string) (*turnLog, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// SQLite has a single writer; funneling all statements through one
	// connection queues concurrent appends instead of surfacing SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	l := &turnLog{
		db:   db,
		path: dbPath,
		entropy: &ulid.LockedMonotonicReader{
			MonotonicReader: ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
		},
	}
	if err := l.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return l, nil
}

func (l *turnLog) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS turns (
		id                 TEXT PRIMARY KEY,
		session_id         TEXT NOT NULL,
		user_message       TEXT NOT NULL,
		assistant_response TEXT NOT NULL,
		agent_id           TEXT NOT NULL,
		ts                 INTEGER NOT NULL,
		cost               REAL,
		model              TEXT,
		deep_thinking      INTEGER NOT NULL DEFAULT 0,
		streaming          INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_turns_session_ts ON turns(session_id, ts);
	CREATE INDEX IF NOT EXISTS idx_turns_ts ON turns(ts);
	`
	_, err := l.db.Exec(schema)
	return err
}

func (l *turnLog) newID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), l.entropy).String()
}

// append inserts one turn. The turn's ID and Timestamp must already be set.
func (l *turnLog) append(ctx context.Context, t core.Turn) error {
	var cost sql.NullFloat64
	if t.Metadata.Cost != nil {
		cost = sql.NullFloat64{Float64: *t.Metadata.Cost, Valid: true}
	}
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO turns (id, session_id, user_message, assistant_response, agent_id, ts, cost, model, deep_thinking, streaming)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.SessionID, t.UserMessage, t.AssistantResponse, t.AgentID,
		t.Timestamp.UnixNano(), cost, t.Metadata.Model,
		boolInt(t.Metadata.DeepThinking), boolInt(t.Metadata.Streaming))
	if err != nil {
		return fmt.Errorf("insert turn: %w", err)
	}
	return nil
}

// recent returns the latest limit turns of a session in chronological order.
// An unknown session yields an empty slice, not an error.
func (l *turnLog) recent(ctx context.Context, sessionID string, limit int) ([]core.Turn, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, session_id, user_message, assistant_response, agent_id, ts, cost, model, deep_thinking, streaming
		 FROM turns WHERE session_id = ? ORDER BY ts DESC LIMIT ?`, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	turns, err := scanTurns(rows)
	if err != nil {
		return nil, err
	}
	// Newest-first from the query; callers want chronological order.
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}

// lastTimestamp returns the newest turn timestamp of a session in unix
// nanoseconds, or 0 when the session has no turns.
func (l *turnLog) lastTimestamp(ctx context.Context, sessionID string) (int64, error) {
	var ts sql.NullInt64
	err := l.db.QueryRowContext(ctx,
		`SELECT MAX(ts) FROM turns WHERE session_id = ?`, sessionID).Scan(&ts)
	if err != nil {
		return 0, err
	}
	return ts.Int64, nil
}

// byIDs loads turns by id. Missing ids are skipped silently.
func (l *turnLog) byIDs(ctx context.Context, ids []string) (map[string]core.Turn, error) {
	if len(ids) == 0 {
		return map[string]core.Turn{}, nil
	}
	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := l.db.QueryContext(ctx,
		`SELECT id, session_id, user_message, assistant_response, agent_id, ts, cost, model, deep_thinking, streaming
		 FROM turns WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	turns, err := scanTurns(rows)
	if err != nil {
		return nil, err
	}
	out := make(map[string]core.Turn, len(turns))
	for _, t := range turns {
		out[t.ID] = t
	}
	return out, nil
}

// all streams every turn ordered by session then time. Used by backup and
// reindexing; a single SELECT gives a consistent snapshot without blocking
// concurrent writers (WAL mode).
func (l *turnLog) all(ctx context.Context) ([]core.Turn, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, session_id, user_message, assistant_response, agent_id, ts, cost, model, deep_thinking, streaming
		 FROM turns ORDER BY session_id, ts`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTurns(rows)
}

type logCounts struct {
	sessions int64
	turns    int64
	oldest   int64
	newest   int64
	sizeB    int64
}

func (l *turnLog) counts(ctx context.Context) (logCounts, error) {
	var c logCounts
	if err := l.db.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT session_id), COUNT(*), COALESCE(MIN(ts),0), COALESCE(MAX(ts),0) FROM turns`).
		Scan(&c.sessions, &c.turns, &c.oldest, &c.newest); err != nil {
		return c, err
	}
	if info, err := os.Stat(l.path); err == nil {
		c.sizeB = info.Size()
	}
	return c, nil
}

func (l *turnLog) close() error { return l.db.Close() }

func scanTurns(rows *sql.Rows) ([]core.Turn, error) {
	var turns []core.Turn
	for rows.Next() {
		var t core.Turn
		var ts int64
		var cost sql.NullFloat64
		var model sql.NullString
		var deep, streaming int
		if err := rows.Scan(&t.ID, &t.SessionID, &t.UserMessage, &t.AssistantResponse,
			&t.AgentID, &ts, &cost, &model, &deep, &streaming); err != nil {
			return nil, err
		}
		t.Timestamp = time.Unix(0, ts).UTC()
		if cost.Valid {
			v := cost.Float64
			t.Metadata.Cost = &v
		}
		t.Metadata.Model = model.String
		t.Metadata.DeepThinking = deep != 0
		t.Metadata.Streaming = streaming != 0
		turns = append(turns, t)
	}
	return turns, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
