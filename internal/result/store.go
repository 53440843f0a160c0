package result

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/lithammer/shortuuid/v4"
	_ "github.com/mattn/go-sqlite3"
	log "github.com/sirupsen/logrus"
)

// Store keeps the evaluation history of a run in SQLite. It is safe for
// concurrent use.
type Store struct {
	db   *sql.DB
	mu   sync.Mutex
	path string
}

// Filter narrows List. Empty fields match everything.
type Filter struct {
	Sweep    string
	Scenario string
	Instance string
}

func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening evaluation store: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db, path: path}
	if err := s.initTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing evaluation store: %w", err)
	}
	log.Debugf("Evaluation store opened at %s", path)
	return s, nil
}

func (s *Store) initTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS evaluations (
		id TEXT PRIMARY KEY,
		sweep TEXT NOT NULL,
		scenario TEXT NOT NULL,
		instance TEXT NOT NULL,
		config_key TEXT NOT NULL,
		configuration TEXT NOT NULL, -- JSON object
		fidelity TEXT NOT NULL,      -- JSON object
		function_value REAL NOT NULL,
		cost REAL NOT NULL,
		info TEXT,                   -- JSON object
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_evaluations_target ON evaluations(scenario, instance);
	CREATE INDEX IF NOT EXISTS idx_evaluations_sweep ON evaluations(sweep);
	CREATE INDEX IF NOT EXISTS idx_evaluations_config ON evaluations(config_key);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Record stores e, filling ID, ConfigKey and CreatedAt when unset.
func (s *Store) Record(e *Evaluation) error {
	if e.ID == "" {
		e.ID = "eval-" + shortuuid.New()
	}
	if e.ConfigKey == "" {
		e.ConfigKey = ConfigKey(e.Configuration)
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	cfg, err := json.Marshal(e.Configuration)
	if err != nil {
		return fmt.Errorf("marshaling configuration: %w", err)
	}
	fid, err := json.Marshal(e.Fidelity)
	if err != nil {
		return fmt.Errorf("marshaling fidelity: %w", err)
	}
	info, err := json.Marshal(e.Info)
	if err != nil {
		return fmt.Errorf("marshaling info: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.Exec(`
		INSERT INTO evaluations (id, sweep, scenario, instance, config_key, configuration, fidelity, function_value, cost, info, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Sweep, e.Scenario, e.Instance, e.ConfigKey, string(cfg), string(fid),
		e.FunctionValue, e.Cost, string(info), e.CreatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("recording evaluation %s: %w", e.ID, err)
	}
	return nil
}

// List returns matching evaluations in recording order.
func (s *Store) List(f Filter) ([]*Evaluation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.Query(`
		SELECT id, sweep, scenario, instance, config_key, configuration, fidelity, function_value, cost, info, created_at
		FROM evaluations
		WHERE (? = '' OR sweep = ?) AND (? = '' OR scenario = ?) AND (? = '' OR instance = ?)
		ORDER BY created_at, rowid`,
		f.Sweep, f.Sweep, f.Scenario, f.Scenario, f.Instance, f.Instance)
	if err != nil {
		return nil, fmt.Errorf("listing evaluations: %w", err)
	}
	defer rows.Close()

	var out []*Evaluation
	for rows.Next() {
		var (
			e             Evaluation
			cfg, fid      string
			info          sql.NullString
			createdAtNano int64
		)
		if err := rows.Scan(&e.ID, &e.Sweep, &e.Scenario, &e.Instance, &e.ConfigKey, &cfg, &fid,
			&e.FunctionValue, &e.Cost, &info, &createdAtNano); err != nil {
			return nil, fmt.Errorf("scanning evaluation: %w", err)
		}
		if err := json.Unmarshal([]byte(cfg), &e.Configuration); err != nil {
			return nil, fmt.Errorf("decoding configuration of %s: %w", e.ID, err)
		}
		if err := json.Unmarshal([]byte(fid), &e.Fidelity); err != nil {
			return nil, fmt.Errorf("decoding fidelity of %s: %w", e.ID, err)
		}
		if info.Valid && info.String != "" && info.String != "null" {
			if err := json.Unmarshal([]byte(info.String), &e.Info); err != nil {
				return nil, fmt.Errorf("decoding info of %s: %w", e.ID, err)
			}
		}
		e.CreatedAt = time.Unix(0, createdAtNano).UTC()
		out = append(out, &e)
	}
	return out, rows.Err()
}

// Best returns the evaluation with the lowest function value, or nil.
func (s *Store) Best(f Filter) (*Evaluation, error) {
	evals, err := s.List(f)
	if err != nil {
		return nil, err
	}
	var best *Evaluation
	for _, e := range evals {
		if best == nil || e.FunctionValue < best.FunctionValue {
			best = e
		}
	}
	return best, nil
}

func (s *Store) Path() string { return s.path }

func (s *Store) Close() error {
	return s.db.Close()
}
