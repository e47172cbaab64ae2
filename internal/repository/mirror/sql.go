package mirror

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kailas-cloud/swarmkb/internal/db"
	"github.com/kailas-cloud/swarmkb/internal/domain"
	"github.com/kailas-cloud/swarmkb/internal/domain/upload"
)

// allowedVerbs are the statement kinds RunSQL passes through.
var allowedVerbs = []string{"SELECT", "WITH", "INSERT", "UPDATE", "DELETE"}

// RunSQL executes a single DML/DQL statement and returns its rows as column maps.
// Statements without a result set return an empty slice.
func (r *Repo) RunSQL(ctx context.Context, stmt string) ([]map[string]any, error) {
	stmt = strings.TrimSpace(stmt)
	stmt = strings.TrimSuffix(stmt, ";")
	if stmt == "" {
		return nil, fmt.Errorf("%w: empty statement", domain.ErrInvalidStatement)
	}
	if strings.Contains(stmt, ";") {
		return nil, fmt.Errorf("%w: only one statement is allowed", domain.ErrInvalidStatement)
	}
	verb := strings.ToUpper(strings.Fields(stmt)[0])
	allowed := false
	for _, v := range allowedVerbs {
		if verb == v {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, fmt.Errorf("%w: %s statements are not allowed", domain.ErrInvalidStatement, verb)
	}

	rows, err := r.db.QueryContext(ctx, stmt)
	if err != nil {
		return nil, &db.Error{Op: db.OpQuery, Err: err}
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, &db.Error{Op: db.OpQuery, Err: err}
	}
	out := []map[string]any{}
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, &db.Error{Op: db.OpQuery, Err: err}
		}
		row := make(map[string]any, len(cols))
		for i, c := range cols {
			switch v := vals[i].(type) {
			case []byte:
				row[c] = string(v)
			case time.Time:
				row[c] = v.UTC().Format(time.RFC3339Nano)
			default:
				row[c] = v
			}
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, &db.Error{Op: db.OpQuery, Err: err}
	}
	return out, nil
}

// UpsertTemplate writes the template index row.
func (r *Repo) UpsertTemplate(ctx context.Context, t upload.Template) error {
	const q = `INSERT INTO ` + TemplateTable + ` (template_id, filename, node_count, uploader, file_size, sha256_hash, storage_location, storage_type)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (template_id) DO UPDATE SET filename = EXCLUDED.filename, node_count = EXCLUDED.node_count,
uploader = EXCLUDED.uploader, file_size = EXCLUDED.file_size, sha256_hash = EXCLUDED.sha256_hash,
storage_location = EXCLUDED.storage_location, storage_type = EXCLUDED.storage_type, uploaded_at = now()`
	_, err := r.db.ExecContext(ctx, q,
		t.TemplateID, t.Filename, t.NodeCount, t.Uploader, t.FileSize, t.SHA256, t.StorageLocation, t.StorageType)
	if err != nil {
		return &db.Error{Op: db.OpUpsert, Err: fmt.Errorf("%s %s: %w", TemplateTable, t.TemplateID, err)}
	}
	return nil
}
