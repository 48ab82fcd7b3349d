package explain

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"chunker/internal/logging"

	_ "github.com/mattn/go-sqlite3"
)

const archiveSchema = `
CREATE TABLE IF NOT EXISTS chunks (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	agent TEXT NOT NULL,
	name TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	conditions TEXT NOT NULL, -- JSON array
	actions TEXT NOT NULL,    -- JSON array
	UNIQUE(agent, name)
);
CREATE TABLE IF NOT EXISTS chunk_grounds (
	chunk_id INTEGER NOT NULL REFERENCES chunks(id) ON DELETE CASCADE,
	idx INTEGER NOT NULL,
	cond TEXT NOT NULL,
	PRIMARY KEY (chunk_id, idx)
);
CREATE TABLE IF NOT EXISTS backtraces (
	chunk_id INTEGER NOT NULL REFERENCES chunks(id) ON DELETE CASCADE,
	step INTEGER NOT NULL, -- 1 = first firing traced
	rule TEXT NOT NULL,
	trace_cond TEXT NOT NULL,
	grounds TEXT NOT NULL,
	potentials TEXT NOT NULL,
	locals TEXT NOT NULL,
	negated TEXT NOT NULL,
	PRIMARY KEY (chunk_id, step)
);
CREATE INDEX IF NOT EXISTS idx_chunks_agent ON chunks(agent, created_at);
`

// Entry identifies one archived explanation.
type Entry struct {
	Agent   string
	Name    string
	Created time.Time
}

// Archive stores explanations in SQLite.
type Archive struct {
	db   *sql.DB
	mu   sync.Mutex
	path string
}

// OpenArchive opens or creates the archive at path.
func OpenArchive(path string) (*Archive, error) {
	timer := logging.StartTimer(logging.CategoryStore, "OpenArchive")
	defer timer.Stop()

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		logging.StoreError("failed to open archive at %s: %v", path, err)
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	// Pragmas are per connection; agents running in parallel share this one.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			logging.StoreDebug("%s failed: %v", pragma, err)
		}
	}
	if _, err := db.Exec(archiveSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize archive schema: %w", err)
	}

	logging.Store("explanation archive ready at %s", path)
	return &Archive{db: db, path: path}, nil
}

// Close closes the database.
func (a *Archive) Close() error {
	return a.db.Close()
}

// Save stores c, replacing an earlier explanation with the same agent and name.
func (a *Archive) Save(ctx context.Context, c *Chunk) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	conds, err := json.Marshal(c.Conditions)
	if err != nil {
		return err
	}
	actions, err := json.Marshal(c.Actions)
	if err != nil {
		return err
	}

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE agent = ? AND name = ?`, c.Agent, c.Name); err != nil {
		return fmt.Errorf("replace %s: %w", c.Name, err)
	}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO chunks (agent, name, created_at, conditions, actions) VALUES (?, ?, ?, ?, ?)`,
		c.Agent, c.Name, c.Created.UnixNano(), string(conds), string(actions))
	if err != nil {
		return fmt.Errorf("insert %s: %w", c.Name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}

	for i, g := range c.Grounds {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO chunk_grounds (chunk_id, idx, cond) VALUES (?, ?, ?)`, id, i+1, g); err != nil {
			return fmt.Errorf("insert ground %d of %s: %w", i+1, c.Name, err)
		}
	}

	n := len(c.Backtraces)
	for i, rec := range c.Backtraces {
		lists := make([]string, 4)
		for j, l := range [][]string{rec.Grounds, rec.Potentials, rec.Locals, rec.Negated} {
			data, err := json.Marshal(l)
			if err != nil {
				return err
			}
			lists[j] = string(data)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO backtraces (chunk_id, step, rule, trace_cond, grounds, potentials, locals, negated)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			id, n-i, rec.Rule, rec.TraceCond, lists[0], lists[1], lists[2], lists[3]); err != nil {
			return fmt.Errorf("insert backtrace of %s: %w", c.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit %s: %w", c.Name, err)
	}
	logging.StoreDebug("archived %s/%s (%d backtraces)", c.Agent, c.Name, n)
	return nil
}

// List returns the archived explanations of agent, oldest first. An empty
// agent lists every agent.
func (a *Archive) List(ctx context.Context, agent string) ([]Entry, error) {
	rows, err := a.db.QueryContext(ctx,
		`SELECT agent, name, created_at FROM chunks WHERE ? = '' OR agent = ? ORDER BY created_at, id`,
		agent, agent)
	if err != nil {
		return nil, fmt.Errorf("list: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var created int64
		if err := rows.Scan(&e.Agent, &e.Name, &created); err != nil {
			return nil, err
		}
		e.Created = time.Unix(0, created)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Load returns one archived explanation.
func (a *Archive) Load(ctx context.Context, agent, name string) (*Chunk, error) {
	var (
		id            int64
		created       int64
		conds, action string
	)
	err := a.db.QueryRowContext(ctx,
		`SELECT id, created_at, conditions, actions FROM chunks WHERE agent = ? AND name = ?`,
		agent, name).Scan(&id, &created, &conds, &action)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s/%s", ErrChunkNotFound, agent, name)
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", name, err)
	}

	c := &Chunk{Agent: agent, Name: name, Created: time.Unix(0, created)}
	if err := json.Unmarshal([]byte(conds), &c.Conditions); err != nil {
		return nil, fmt.Errorf("decode conditions of %s: %w", name, err)
	}
	if err := json.Unmarshal([]byte(action), &c.Actions); err != nil {
		return nil, fmt.Errorf("decode actions of %s: %w", name, err)
	}
	if c.Grounds, err = a.loadGrounds(ctx, id); err != nil {
		return nil, err
	}
	if c.Backtraces, err = a.loadBacktraces(ctx, id); err != nil {
		return nil, err
	}
	return c, nil
}

// LoadAll returns every archived explanation of agent, oldest first.
func (a *Archive) LoadAll(ctx context.Context, agent string) ([]*Chunk, error) {
	entries, err := a.List(ctx, agent)
	if err != nil {
		return nil, err
	}
	out := make([]*Chunk, 0, len(entries))
	for _, e := range entries {
		c, err := a.Load(ctx, e.Agent, e.Name)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func (a *Archive) loadGrounds(ctx context.Context, id int64) ([]string, error) {
	rows, err := a.db.QueryContext(ctx, `SELECT cond FROM chunk_grounds WHERE chunk_id = ? ORDER BY idx`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (a *Archive) loadBacktraces(ctx context.Context, id int64) ([]*BacktraceRecord, error) {
	rows, err := a.db.QueryContext(ctx,
		`SELECT rule, trace_cond, grounds, potentials, locals, negated
		 FROM backtraces WHERE chunk_id = ? ORDER BY step DESC`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*BacktraceRecord
	for rows.Next() {
		rec := &BacktraceRecord{}
		var lists [4]string
		if err := rows.Scan(&rec.Rule, &rec.TraceCond, &lists[0], &lists[1], &lists[2], &lists[3]); err != nil {
			return nil, err
		}
		for i, dst := range []*[]string{&rec.Grounds, &rec.Potentials, &rec.Locals, &rec.Negated} {
			if err := json.Unmarshal([]byte(lists[i]), dst); err != nil {
				return nil, fmt.Errorf("decode backtrace of chunk %d: %w", id, err)
			}
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
