package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

// PostgresConfig configures the bun-backed document store.
type PostgresConfig struct {
	DSN     string        `envconfig:"DSN" split_words:"true"`
	Table   string        `envconfig:"TABLE" split_words:"true" default:"engine_documents"`
	Timeout time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"10s"`
}

func (c PostgresConfig) Configured() bool {
	return strings.TrimSpace(c.DSN) != ""
}

type documentRow struct {
	bun.BaseModel `bun:"table:engine_documents,alias:d"`

	Path      string          `bun:"path,pk"`
	Doc       json.RawMessage `bun:"doc,type:jsonb"`
	UpdatedAt time.Time       `bun:"updated_at"`
}

// PostgresStore persists documents as jsonb rows. The field increment runs as
// a single UPSERT with jsonb_set + RETURNING, so concurrent increments on the
// same document never lose an update.
type PostgresStore struct {
	db    *bun.DB
	table string
}

var tableNameRe = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

func NewPostgresStore(cfg PostgresConfig) (*PostgresStore, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("postgres dsn is required")
	}
	table := strings.TrimSpace(cfg.Table)
	if table == "" {
		table = "engine_documents"
	}
	if !tableNameRe.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	sqldb := sql.OpenDB(pgdriver.NewConnector(
		pgdriver.WithDSN(dsn),
		pgdriver.WithTimeout(timeout),
	))
	db := bun.NewDB(sqldb, pgdialect.New())
	return &PostgresStore{db: db, table: table}, nil
}

// EnsureSchema creates the document table when it does not exist. Intended
// for process start, not request paths.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.NewCreateTable().
		Model((*documentRow)(nil)).
		ModelTableExpr("?", bun.Ident(s.table)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("create document table: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, path string) (Document, error) {
	p, err := SanitizePath(path)
	if err != nil {
		return nil, err
	}

	row := new(documentRow)
	err = s.db.NewSelect().Model(row).ModelTableExpr("? AS d", bun.Ident(s.table)).Where("path = ?", p).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDocNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select document: %w", err)
	}

	var doc Document
	if err := json.Unmarshal(row.Doc, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal document %s: %w", p, err)
	}
	if doc == nil {
		doc = Document{}
	}
	return doc, nil
}

func (s *PostgresStore) Set(ctx context.Context, path string, doc Document, merge bool) error {
	p, err := SanitizePath(path)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}

	row := &documentRow{Path: p, Doc: raw, UpdatedAt: time.Now().UTC()}
	q := s.db.NewInsert().Model(row).ModelTableExpr("? AS d", bun.Ident(s.table))
	if merge {
		q = q.On("CONFLICT (path) DO UPDATE").
			Set("doc = d.doc || EXCLUDED.doc").
			Set("updated_at = EXCLUDED.updated_at")
	} else {
		q = q.On("CONFLICT (path) DO UPDATE").
			Set("doc = EXCLUDED.doc").
			Set("updated_at = EXCLUDED.updated_at")
	}
	if _, err := q.Exec(ctx); err != nil {
		return fmt.Errorf("upsert document: %w", err)
	}
	return nil
}

func (s *PostgresStore) Increment(ctx context.Context, path, field string, delta int64) (int64, error) {
	p, err := SanitizePath(path)
	if err != nil {
		return 0, err
	}

	var newValue int64
	err = s.db.NewRaw(
		`INSERT INTO ? (path, doc, updated_at)
		 VALUES (?, jsonb_build_object(?::text, ?::bigint), now())
		 ON CONFLICT (path) DO UPDATE SET
		   doc = jsonb_set(
		     ?.doc,
		     ARRAY[?::text],
		     to_jsonb(COALESCE((?.doc ->> ?)::bigint, 0) + ?)
		   ),
		   updated_at = now()
		 RETURNING (doc ->> ?)::bigint`,
		bun.Ident(s.table), p, field, delta,
		bun.Ident(s.table), bun.Ident(s.table), field, delta, field,
	).Scan(ctx, &newValue)
	if err != nil {
		return 0, fmt.Errorf("increment document field: %w", err)
	}
	return newValue, nil
}

func (s *PostgresStore) Delete(ctx context.Context, path string) error {
	p, err := SanitizePath(path)
	if err != nil {
		return err
	}
	_, err = s.db.NewDelete().Model((*documentRow)(nil)).ModelTableExpr("? AS d", bun.Ident(s.table)).Where("path = ?", p).Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	return nil
}
