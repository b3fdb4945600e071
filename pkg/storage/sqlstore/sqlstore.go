// Package sqlstore implements storage.Driver on an ent SQL driver. The sqlite
// and postgres drivers share it and differ only in the dialect the driver was
// opened with.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/papercomputeco/substream/pkg/storage"
)

const (
	table          = "watches"
	completedIndex = "watches_completed_at"
)

var columns = []string{
	"id",
	"url",
	"transaction_hex",
	"result",
	"status",
	"reason",
	"observed",
	"payload",
	"started_at",
	"completed_at",
}

// Store implements storage.Driver on an *entsql.Driver.
type Store struct {
	drv *entsql.Driver
}

// New wraps drv and creates the schema if it does not exist. The Store owns
// drv and closes it on Close.
func New(ctx context.Context, drv *entsql.Driver) (*Store, error) {
	s := &Store{drv: drv}

	for _, stmt := range s.schema() {
		query, args := stmt.Query()
		if err := drv.Exec(ctx, query, args, nil); err != nil {
			return nil, fmt.Errorf("failed to create schema: %w", err)
		}
	}

	return s, nil
}

// DB returns the underlying database handle.
func (s *Store) DB() *sql.DB {
	return s.drv.DB()
}

func (s *Store) builder() *entsql.DialectBuilder {
	return entsql.Dialect(s.drv.Dialect())
}

func (s *Store) schema() []entsql.Querier {
	b := s.builder()
	return []entsql.Querier{
		b.CreateTable(table).
			IfNotExists().
			Columns(
				b.Column("id").Type("TEXT"),
				b.Column("url").Type("TEXT").Attr("NOT NULL"),
				b.Column("transaction_hex").Type("TEXT").Attr("NOT NULL"),
				b.Column("result").Type("TEXT").Attr("NOT NULL"),
				b.Column("status").Type("TEXT").Attr("NOT NULL DEFAULT ''"),
				b.Column("reason").Type("TEXT").Attr("NOT NULL DEFAULT ''"),
				b.Column("observed").Type("TEXT").Attr("NOT NULL DEFAULT '[]'"),
				b.Column("payload").Type("TEXT"),
				b.Column("started_at").Type("BIGINT").Attr("NOT NULL"),
				b.Column("completed_at").Type("BIGINT").Attr("NOT NULL"),
			).
			PrimaryKey("id"),
		b.CreateIndex(completedIndex).
			IfNotExists().
			Table(table).
			Columns("completed_at"),
	}
}

// Put inserts record unless its ID already exists.
func (s *Store) Put(ctx context.Context, record *storage.Record) (bool, error) {
	if record == nil {
		return false, storage.ErrNilRecord
	}

	query, args, err := s.insert(record)
	if err != nil {
		return false, err
	}

	var res sql.Result
	if err := s.drv.Exec(ctx, query, args, &res); err != nil {
		return false, fmt.Errorf("inserting record: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("inserting record: %w", err)
	}

	return n > 0, nil
}

func (s *Store) insert(record *storage.Record) (string, []any, error) {
	observed, err := json.Marshal(nonNil(record.Observed))
	if err != nil {
		return "", nil, fmt.Errorf("encoding observed statuses: %w", err)
	}

	var payload sql.NullString
	if len(record.Payload) > 0 {
		payload = sql.NullString{String: string(record.Payload), Valid: true}
	}

	query, args := s.builder().
		Insert(table).
		Columns(columns...).
		Values(
			record.ID.String(),
			record.URL,
			record.Transaction,
			record.Result,
			record.Status,
			record.Reason,
			string(observed),
			payload,
			record.StartedAt.UnixNano(),
			record.CompletedAt.UnixNano(),
		).
		OnConflict(entsql.ConflictColumns("id"), entsql.DoNothing()).
		Query()

	return query, args, nil
}

// Get retrieves a record by its ID.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*storage.Record, error) {
	b := s.builder()
	query, args := b.Select(columns...).
		From(b.Table(table)).
		Where(entsql.EQ("id", id.String())).
		Query()

	records, err := s.query(ctx, query, args)
	if err != nil {
		return nil, fmt.Errorf("getting record: %w", err)
	}
	if len(records) == 0 {
		return nil, storage.NotFoundError{ID: id.String()}
	}

	return records[0], nil
}

// List returns all records, most recently completed first.
func (s *Store) List(ctx context.Context) ([]*storage.Record, error) {
	b := s.builder()
	query, args := b.Select(columns...).
		From(b.Table(table)).
		OrderBy(entsql.Desc("completed_at"), entsql.Asc("id")).
		Query()

	records, err := s.query(ctx, query, args)
	if err != nil {
		return nil, fmt.Errorf("listing records: %w", err)
	}

	return records, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.drv.Close()
}

func (s *Store) query(ctx context.Context, query string, args []any) ([]*storage.Record, error) {
	var rows entsql.Rows
	if err := s.drv.Query(ctx, query, args, &rows); err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*storage.Record
	for rows.Next() {
		record, err := scan(&rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return records, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(row scanner) (*storage.Record, error) {
	var (
		id, observed       string
		payload            sql.NullString
		started, completed int64
		record             storage.Record
	)

	err := row.Scan(
		&id,
		&record.URL,
		&record.Transaction,
		&record.Result,
		&record.Status,
		&record.Reason,
		&observed,
		&payload,
		&started,
		&completed,
	)
	if err != nil {
		return nil, err
	}

	record.ID, err = uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("decoding record id %q: %w", id, err)
	}

	if err := json.Unmarshal([]byte(observed), &record.Observed); err != nil {
		return nil, fmt.Errorf("decoding observed statuses: %w", err)
	}
	if len(record.Observed) == 0 {
		record.Observed = nil
	}

	if payload.Valid {
		record.Payload = json.RawMessage(payload.String)
	}

	record.StartedAt = time.Unix(0, started).UTC()
	record.CompletedAt = time.Unix(0, completed).UTC()

	return &record, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
