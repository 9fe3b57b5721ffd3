package netstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/sqlc-dev/pqtype"

	"github.com/vrui-vr/networkviewer/internal/circuitbreaker"
)

// PGStore keeps network documents in a Postgres table. Every query
// runs through a circuit breaker so a dead database degrades to fast
// errors instead of piling up connection timeouts.
type PGStore struct {
	db      *sql.DB
	breaker *circuitbreaker.CircuitBreaker
}

// NewPGStore connects, verifies the connection and creates the
// networks table if it does not exist yet.
func NewPGStore(connStr string) (*PGStore, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &PGStore{
		db: db,
		breaker: circuitbreaker.New(circuitbreaker.Config{
			Name:             "netstore",
			FailureThreshold: 5,
			SuccessThreshold: 2,
			Timeout:          30 * time.Second,
		}),
	}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *PGStore) ensureSchema() error {
	const stmt = `
		CREATE TABLE IF NOT EXISTS networks (
			name       text PRIMARY KEY,
			doc        jsonb NOT NULL,
			node_count integer NOT NULL DEFAULT 0,
			link_count integer NOT NULL DEFAULT 0,
			created_at timestamptz NOT NULL DEFAULT now(),
			updated_at timestamptz NOT NULL DEFAULT now()
		);
	`
	if _, err := s.db.Exec(stmt); err != nil {
		return fmt.Errorf("create networks table: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (s *PGStore) Close() error { return s.db.Close() }

func (s *PGStore) List(ctx context.Context) ([]Info, error) {
	var infos []Info
	err := s.breaker.Call(func() error {
		const stmt = `
			SELECT name, octet_length(doc::text), node_count, link_count, updated_at
			FROM networks ORDER BY name;
		`
		rows, err := s.db.QueryContext(ctx, stmt)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var info Info
			if err := rows.Scan(&info.Name, &info.Size, &info.Nodes, &info.Links, &info.UpdatedAt); err != nil {
				return err
			}
			infos = append(infos, info)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list networks: %w", err)
	}
	if infos == nil {
		infos = []Info{}
	}
	return infos, nil
}

func (s *PGStore) Get(ctx context.Context, name string) ([]byte, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	var doc pqtype.NullRawMessage
	found := false
	err := s.breaker.Call(func() error {
		const stmt = `SELECT doc FROM networks WHERE name = $1`
		err := s.db.QueryRowContext(ctx, stmt, name).Scan(&doc)
		// A missing row is an answer, not a database failure.
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("get network %q: %w", name, err)
	}
	if !found || !doc.Valid {
		return nil, fmt.Errorf("network %q: %w", name, ErrNotFound)
	}
	return doc.RawMessage, nil
}

func (s *PGStore) Put(ctx context.Context, name string, document []byte) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	nodes, links, err := describe(document)
	if err != nil {
		return err
	}
	err = s.breaker.Call(func() error {
		const stmt = `
			INSERT INTO networks (name, doc, node_count, link_count)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (name) DO UPDATE SET
			  doc = EXCLUDED.doc,
			  node_count = EXCLUDED.node_count,
			  link_count = EXCLUDED.link_count,
			  updated_at = now();
		`
		raw := pqtype.NullRawMessage{RawMessage: document, Valid: true}
		_, err := s.db.ExecContext(ctx, stmt, name, raw, nodes, links)
		return err
	})
	if err != nil {
		return fmt.Errorf("put network %q: %w", name, err)
	}
	return nil
}

func (s *PGStore) Delete(ctx context.Context, name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	deleted := false
	err := s.breaker.Call(func() error {
		const stmt = `DELETE FROM networks WHERE name = $1`
		res, err := s.db.ExecContext(ctx, stmt, name)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		deleted = n > 0
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete network %q: %w", name, err)
	}
	if !deleted {
		return fmt.Errorf("network %q: %w", name, ErrNotFound)
	}
	return nil
}
