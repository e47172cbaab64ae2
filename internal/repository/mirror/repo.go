package mirror

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/kailas-cloud/swarmkb/internal/db"
	"github.com/kailas-cloud/swarmkb/internal/domain"
	dommeta "github.com/kailas-cloud/swarmkb/internal/domain/metadata"
)

// Table names.
const (
	MetadataTable = "metadata_catalog"
	TemplateTable = "tosca_metadata"
)

// querier is the consumer interface for *sql.DB (ISP).
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Repo is the relational mirror of the metadata store.
type Repo struct {
	db        querier
	upsertSQL string
	selectSQL string
}

// New creates a mirror repository.
func New(q querier) *Repo {
	names := dommeta.FieldNames()
	return &Repo{
		db:        q,
		upsertSQL: buildUpsert(names),
		selectSQL: "SELECT " + strings.Join(names, ", ") + " FROM " + MetadataTable,
	}
}

// Upsert writes the record keyed by id. Repeating it is harmless.
func (r *Repo) Upsert(ctx context.Context, rec dommeta.Record) error {
	if _, err := r.db.ExecContext(ctx, r.upsertSQL, toArgs(rec)...); err != nil {
		return &db.Error{Op: db.OpUpsert, Err: fmt.Errorf("%s %s: %w", MetadataTable, rec.ID, err)}
	}
	return nil
}

// Get returns the mirrored record by id.
func (r *Repo) Get(ctx context.Context, id string) (dommeta.Record, error) {
	recs, err := r.query(ctx, r.selectSQL+" WHERE id = $1", id)
	if err != nil {
		return dommeta.Record{}, err
	}
	if len(recs) == 0 {
		return dommeta.Record{}, fmt.Errorf("mirror record %s: %w", id, domain.ErrNotFound)
	}
	return recs[0], nil
}

// FindByAssociatedID returns the mirrored record of a source document.
func (r *Repo) FindByAssociatedID(ctx context.Context, associatedID string) (dommeta.Record, error) {
	recs, err := r.query(ctx, r.selectSQL+" WHERE associated_id = $1 ORDER BY updated_at DESC NULLS LAST LIMIT 1", associatedID)
	if err != nil {
		return dommeta.Record{}, err
	}
	if len(recs) == 0 {
		return dommeta.Record{}, fmt.Errorf("mirror record for %s: %w", associatedID, domain.ErrNotFound)
	}
	return recs[0], nil
}

// List returns every mirrored record.
func (r *Repo) List(ctx context.Context) ([]dommeta.Record, error) {
	return r.query(ctx, r.selectSQL+" ORDER BY id")
}

// Columns returns the column names of a table in ordinal order.
func (r *Repo) Columns(ctx context.Context, table string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT column_name FROM information_schema.columns WHERE table_name = $1 ORDER BY ordinal_position", table)
	if err != nil {
		return nil, &db.Error{Op: db.OpSelect, Err: err}
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, &db.Error{Op: db.OpSelect, Err: err}
		}
		cols = append(cols, c)
	}
	if err := rows.Err(); err != nil {
		return nil, &db.Error{Op: db.OpSelect, Err: err}
	}
	return cols, nil
}

func (r *Repo) query(ctx context.Context, q string, args ...any) ([]dommeta.Record, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, &db.Error{Op: db.OpSelect, Err: err}
	}
	defer rows.Close()

	var out []dommeta.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, &db.Error{Op: db.OpSelect, Err: err}
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, &db.Error{Op: db.OpSelect, Err: err}
	}
	return out, nil
}

func buildUpsert(names []string) string {
	placeholders := make([]string, len(names))
	updates := make([]string, 0, len(names)-1)
	for i, n := range names {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		if n != "id" {
			updates = append(updates, n+" = EXCLUDED."+n)
		}
	}
	return "INSERT INTO " + MetadataTable + " (" + strings.Join(names, ", ") + ") VALUES (" +
		strings.Join(placeholders, ", ") + ") ON CONFLICT (id) DO UPDATE SET " + strings.Join(updates, ", ")
}

// toArgs converts record values to driver values. Empty strings and zero
// times become NULL; string slices become TEXT[].
func toArgs(rec dommeta.Record) []any {
	vals := rec.Values()
	args := make([]any, len(vals))
	for i, v := range vals {
		switch x := v.(type) {
		case string:
			if x == "" {
				args[i] = nil
				continue
			}
			args[i] = x
		case []string:
			args[i] = pq.Array(x)
		case time.Time:
			if x.IsZero() {
				args[i] = nil
				continue
			}
			args[i] = x.UTC()
		default:
			args[i] = x
		}
	}
	return args
}

func scanRecord(rows *sql.Rows) (dommeta.Record, error) {
	fields := dommeta.Fields()
	dest := make([]any, len(fields))
	for i, f := range fields {
		switch f.Kind {
		case dommeta.KindStrings:
			dest[i] = new(pq.StringArray)
		case dommeta.KindInt:
			dest[i] = new(sql.NullInt64)
		case dommeta.KindFloat:
			dest[i] = new(sql.NullFloat64)
		case dommeta.KindTime:
			dest[i] = new(sql.NullTime)
		default:
			dest[i] = new(sql.NullString)
		}
	}
	if err := rows.Scan(dest...); err != nil {
		return dommeta.Record{}, err
	}

	raw := make(map[string]any, len(fields))
	for i, f := range fields {
		switch d := dest[i].(type) {
		case *pq.StringArray:
			if len(*d) > 0 {
				raw[f.Name] = []string(*d)
			}
		case *sql.NullInt64:
			if d.Valid {
				raw[f.Name] = d.Int64
			}
		case *sql.NullFloat64:
			if d.Valid {
				raw[f.Name] = d.Float64
			}
		case *sql.NullTime:
			if d.Valid {
				raw[f.Name] = d.Time.UTC()
			}
		case *sql.NullString:
			if d.Valid {
				raw[f.Name] = d.String
			}
		}
	}
	if _, ok := raw["id"]; !ok {
		return dommeta.Record{}, errors.New("row without id")
	}
	return dommeta.Set(dommeta.Record{}, raw)
}
