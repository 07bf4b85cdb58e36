// metrics.go
// Run history in SQLite: one row per run, named scalars keyed by step,
// and the feature index persisted so -similar and -export can reuse
// what -index computed. Scalars are observational: a failed write warns
// and training marches on.

package main

import (
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
	_ "modernc.org/sqlite"
)

type MetricsDB struct {
	db    *sql.DB
	runID string
}

// OpenMetrics opens (creating if needed) the metrics database.
func OpenMetrics(path string) (*MetricsDB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS runs(
			id TEXT PRIMARY KEY,
			started_at TEXT NOT NULL,
			config TEXT NOT NULL
		)`)
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "create runs table")
	}
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS scalars(
			run_id TEXT NOT NULL,
			step INTEGER NOT NULL,
			name TEXT NOT NULL,
			value REAL NOT NULL
		)`)
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "create scalars table")
	}
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS features(
			run_id TEXT NOT NULL,
			idx INTEGER NOT NULL,
			path TEXT NOT NULL,
			vec BLOB NOT NULL
		)`)
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "create features table")
	}
	return &MetricsDB{db: db}, nil
}

// BeginRun registers a new run and makes it the target for scalar and
// feature writes.
func (m *MetricsDB) BeginRun(cfg Config) error {
	cfgJSON, err := json.Marshal(cfg)
	if err != nil {
		return errors.Wrap(err, "marshal config")
	}
	id := uuid.NewString()
	_, err = m.db.Exec("INSERT INTO runs(id, started_at, config) VALUES(?,?,?)",
		id, time.Now().UTC().Format(time.RFC3339), string(cfgJSON))
	if err != nil {
		return errors.Wrap(err, "insert run")
	}
	m.runID = id
	fmt.Printf("[db] run %s\n", id)
	return nil
}

func (m *MetricsDB) RunID() string { return m.runID }

// LogScalar records one named value at a step. Fire and forget.
func (m *MetricsDB) LogScalar(step int, name string, value float64) {
	_, err := m.db.Exec("INSERT INTO scalars(run_id, step, name, value) VALUES(?,?,?,?)",
		m.runID, step, name, value)
	if err != nil {
		fmt.Printf("[db] WARNING: scalar %s@%d not recorded: %v\n", name, step, err)
	}
}

// SaveFeatures replaces the current run's feature index with one row
// per image, vectors as little-endian float32 blobs.
func (m *MetricsDB) SaveFeatures(paths []string, feats *tensor.Dense) error {
	shape := feats.Shape()
	n, f := shape[0], shape[1]
	if n != len(paths) {
		return errors.Errorf("%d feature rows vs %d paths", n, len(paths))
	}
	data := feats.Data().([]float32)

	tx, err := m.db.Begin()
	if err != nil {
		return errors.Wrap(err, "begin features tx")
	}
	if _, err := tx.Exec("DELETE FROM features WHERE run_id = ?", m.runID); err != nil {
		tx.Rollback()
		return errors.Wrap(err, "clear features")
	}
	for i := 0; i < n; i++ {
		blob := make([]byte, 4*f)
		for j, v := range data[i*f : (i+1)*f] {
			binary.LittleEndian.PutUint32(blob[4*j:], math.Float32bits(v))
		}
		if _, err := tx.Exec("INSERT INTO features(run_id, idx, path, vec) VALUES(?,?,?,?)",
			m.runID, i, paths[i], blob); err != nil {
			tx.Rollback()
			return errors.Wrapf(err, "insert feature %d", i)
		}
	}
	return errors.Wrap(tx.Commit(), "commit features")
}

// LoadFeatures returns the most recently stored feature index: paths
// and the (N,F) matrix, rows in index order.
func (m *MetricsDB) LoadFeatures() ([]string, *tensor.Dense, error) {
	var runID string
	err := m.db.QueryRow(`
		SELECT f.run_id FROM features f
		JOIN runs r ON r.id = f.run_id
		ORDER BY r.started_at DESC LIMIT 1`).Scan(&runID)
	if err == sql.ErrNoRows {
		return nil, nil, errors.New("no feature index stored; run -index first")
	}
	if err != nil {
		return nil, nil, errors.Wrap(err, "find feature run")
	}

	rows, err := m.db.Query(
		"SELECT idx, path, vec FROM features WHERE run_id = ? ORDER BY idx", runID)
	if err != nil {
		return nil, nil, errors.Wrap(err, "query features")
	}
	defer rows.Close()

	var paths []string
	var flat []float32
	width := -1
	for rows.Next() {
		var idx int
		var path string
		var blob []byte
		if err := rows.Scan(&idx, &path, &blob); err != nil {
			return nil, nil, errors.Wrap(err, "scan feature row")
		}
		if width < 0 {
			width = len(blob) / 4
		} else if len(blob)/4 != width {
			return nil, nil, errors.Errorf("feature %d: width %d != %d", idx, len(blob)/4, width)
		}
		for j := 0; j < width; j++ {
			flat = append(flat, math.Float32frombits(binary.LittleEndian.Uint32(blob[4*j:])))
		}
		paths = append(paths, path)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, errors.Wrap(err, "iterate features")
	}
	if len(paths) == 0 {
		return nil, nil, errors.Errorf("feature index for run %s is empty", runID)
	}
	feats := tensor.New(tensor.WithShape(len(paths), width), tensor.WithBacking(flat))
	return paths, feats, nil
}

func (m *MetricsDB) Close() error { return m.db.Close() }
