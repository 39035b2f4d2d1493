// Package sqlite provides a SQLite-backed trace store.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/sugawarayuuta/sonnet"
	_ "modernc.org/sqlite"

	"github.com/inference-sim/particle-sim/sim/message"
	"github.com/inference-sim/particle-sim/sim/trace"
)

//go:embed schema.sql
var schema string

// batchSize is the number of records written per transaction.
const batchSize = 4096

// Store persists trace records in SQLite. It implements trace.Writer;
// records are buffered and written in batches.
type Store struct {
	sqlDB   *sql.DB
	pending []trace.Record
	seq     int64
}

// Open opens (creating if needed) a SQLite trace store.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := path
	if path != ":memory:" {
		dsn = filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)"
	}
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One connection keeps :memory: databases alive across calls.
	sqlDB.SetMaxOpenConns(1)
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	s := &Store{sqlDB: sqlDB}
	if err := sqlDB.QueryRow(`SELECT COALESCE(MAX(seq), 0) FROM trace_records`).Scan(&s.seq); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("read sequence: %w", err)
	}
	return s, nil
}

// Write implements trace.Writer.
func (s *Store) Write(rec trace.Record) error {
	s.pending = append(s.pending, rec)
	if len(s.pending) >= batchSize {
		return s.Flush(context.Background())
	}
	return nil
}

// Flush writes buffered records in one transaction.
func (s *Store) Flush(ctx context.Context) error {
	if len(s.pending) == 0 {
		return nil
	}
	if s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin trace batch: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO trace_records (
	   seq, time, kind, detector_id, particle_ids, data, position, positions, purpose
	 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prepare trace insert: %w", err)
	}
	defer stmt.Close()

	seq := s.seq
	for _, rec := range s.pending {
		ids, data, pos, positions, err := encodeColumns(rec)
		if err != nil {
			_ = tx.Rollback()
			return err
		}
		seq++
		if _, err := stmt.ExecContext(ctx, seq, rec.Time, string(rec.Kind), rec.DetectorID, ids, data, pos, positions, string(rec.Purpose)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert trace record %d: %w", seq, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit trace batch: %w", err)
	}
	s.seq = seq
	s.pending = s.pending[:0]
	return nil
}

// Close flushes pending records and closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	flushErr := s.Flush(context.Background())
	closeErr := s.sqlDB.Close()
	s.sqlDB = nil
	if flushErr != nil {
		return flushErr
	}
	return closeErr
}

// Count returns the number of stored records of the given kind, or of every
// kind when kind is empty.
func (s *Store) Count(ctx context.Context, kind trace.Kind) (int, error) {
	if err := s.Flush(ctx); err != nil {
		return 0, err
	}
	var n int
	var err error
	if kind == "" {
		err = s.sqlDB.QueryRowContext(ctx, `SELECT COUNT(*) FROM trace_records`).Scan(&n)
	} else {
		err = s.sqlDB.QueryRowContext(ctx, `SELECT COUNT(*) FROM trace_records WHERE kind = ?`, string(kind)).Scan(&n)
	}
	if err != nil {
		return 0, fmt.Errorf("count trace records: %w", err)
	}
	return n, nil
}

// Records returns stored records in emission order, optionally restricted to one kind.
func (s *Store) Records(ctx context.Context, kind trace.Kind) ([]trace.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.Flush(ctx); err != nil {
		return nil, err
	}
	query := `SELECT time, kind, detector_id, particle_ids, data, position, positions, purpose
	 FROM trace_records`
	var args []any
	if kind != "" {
		query += ` WHERE kind = ?`
		args = append(args, string(kind))
	}
	query += ` ORDER BY seq`

	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query trace records: %w", err)
	}
	defer rows.Close()

	var out []trace.Record
	for rows.Next() {
		var (
			rec                            trace.Record
			k, purpose                     string
			ids, data, pos, positionsField string
		)
		if err := rows.Scan(&rec.Time, &k, &rec.DetectorID, &ids, &data, &pos, &positionsField, &purpose); err != nil {
			return nil, fmt.Errorf("scan trace record: %w", err)
		}
		rec.Kind = trace.Kind(k)
		rec.Purpose = message.Purpose(purpose)
		if err := decodeColumns(&rec, ids, data, pos, positionsField); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trace records: %w", err)
	}
	return out, nil
}

func encodeColumns(rec trace.Record) (ids, data, pos, positions string, err error) {
	enc := func(v any, field string) string {
		if err != nil {
			return ""
		}
		b, e := sonnet.Marshal(v)
		if e != nil {
			err = fmt.Errorf("encode %s: %w", field, e)
			return ""
		}
		return string(b)
	}
	ids = enc(nonNilInts(rec.ParticleIDs), "particle ids")
	data = enc(nonNilFloats(rec.Data), "data")
	pos = enc(nonNilFloats(rec.Position), "position")
	if rec.Positions == nil {
		positions = "{}"
	} else {
		positions = enc(rec.Positions, "positions")
	}
	return ids, data, pos, positions, err
}

func decodeColumns(rec *trace.Record, ids, data, pos, positions string) error {
	if err := sonnet.Unmarshal([]byte(ids), &rec.ParticleIDs); err != nil {
		return fmt.Errorf("decode particle ids: %w", err)
	}
	if err := sonnet.Unmarshal([]byte(data), &rec.Data); err != nil {
		return fmt.Errorf("decode data: %w", err)
	}
	if err := sonnet.Unmarshal([]byte(pos), &rec.Position); err != nil {
		return fmt.Errorf("decode position: %w", err)
	}
	if positions != "{}" {
		if err := sonnet.Unmarshal([]byte(positions), &rec.Positions); err != nil {
			return fmt.Errorf("decode positions: %w", err)
		}
	}
	if len(rec.Data) == 0 {
		rec.Data = nil
	}
	if len(rec.Position) == 0 {
		rec.Position = nil
	}
	return nil
}

func nonNilInts(v []int) []int {
	if v == nil {
		return []int{}
	}
	return v
}

func nonNilFloats(v []float64) []float64 {
	if v == nil {
		return []float64{}
	}
	return v
}
