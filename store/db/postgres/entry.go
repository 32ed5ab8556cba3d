package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pgvector/pgvector-go"
	"github.com/pkg/errors"

	apperrors "github.com/hrygo/saga/internal/errors"
	"github.com/hrygo/saga/store"
)

const entryColumns = "id, title, content, date, summary, embedding, eligible, created_ts, updated_ts"

func (d *DB) CreateEntry(ctx context.Context, create *store.Entry) (*store.Entry, error) {
	now := time.Now().Unix()
	if create.CreatedTs == 0 {
		create.CreatedTs = now
	}
	if create.UpdatedTs == 0 {
		create.UpdatedTs = create.CreatedTs
	}

	args := []any{
		create.ID,
		create.Title,
		create.Content,
		create.Date,
		create.Summary,
		nullableBlob(create.Embedding),
		nullableVector(create.Embedding, create.EmbeddingVector),
		create.Eligible,
		create.CreatedTs,
		create.UpdatedTs,
	}
	stmt := "INSERT INTO entry (id, title, content, date, summary, embedding, summary_vector, eligible, created_ts, updated_ts) VALUES (" + placeholders(len(args)) + ")"
	if _, err := d.db.ExecContext(ctx, stmt, args...); err != nil {
		return nil, errors.Wrap(err, "failed to create entry")
	}
	return create, nil
}

func (d *DB) ListEntries(ctx context.Context, find *store.FindEntry) ([]*store.Entry, error) {
	where, args := []string{"1 = 1"}, []any{}

	if v := find.ID; v != nil {
		where, args = append(where, "id = "+placeholder(len(args)+1)), append(args, *v)
	}
	if len(find.IDList) > 0 {
		holders := []string{}
		for _, id := range find.IDList {
			holders, args = append(holders, placeholder(len(args)+1)), append(args, id)
		}
		where = append(where, "id IN ("+strings.Join(holders, ", ")+")")
	}
	if v := find.Eligible; v != nil {
		where, args = append(where, "eligible = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := find.HasEmbedding; v != nil {
		if *v {
			where = append(where, "embedding IS NOT NULL")
		} else {
			where = append(where, "embedding IS NULL")
		}
	}
	if find.NeedsBackfill {
		where, args = append(where, "(summary = '' OR summary = "+placeholder(len(args)+1)+" OR embedding IS NULL)"), append(args, store.SummaryFailedMarker)
	}

	order := "DESC"
	if find.OrderByDateAsc {
		order = "ASC"
	}
	query := "SELECT " + entryColumns + " FROM entry WHERE " + strings.Join(where, " AND ") +
		fmt.Sprintf(" ORDER BY date %s, created_ts %s, id ASC", order, order)
	if find.Limit != nil {
		query = fmt.Sprintf("%s LIMIT %d", query, *find.Limit)
		if find.Offset != nil {
			query = fmt.Sprintf("%s OFFSET %d", query, *find.Offset)
		}
	} else if find.Offset != nil {
		query = fmt.Sprintf("%s OFFSET %d", query, *find.Offset)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list entries")
	}
	defer rows.Close()

	list := []*store.Entry{}
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return list, nil
}

func (d *DB) UpdateEntry(ctx context.Context, update *store.UpdateEntry) error {
	set, args := []string{}, []any{}
	if v := update.Title; v != nil {
		set, args = append(set, "title = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := update.Content; v != nil {
		set, args = append(set, "content = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := update.Date; v != nil {
		set, args = append(set, "date = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := update.Summary; v != nil {
		set, args = append(set, "summary = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := update.Eligible; v != nil {
		set, args = append(set, "eligible = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := update.Embedding; v != nil {
		set, args = append(set, "embedding = "+placeholder(len(args)+1)), append(args, nullableBlob(*v))
		set, args = append(set, "summary_vector = "+placeholder(len(args)+1)), append(args, nullableVector(*v, update.EmbeddingVector))
	}
	updatedTs := time.Now().Unix()
	if update.UpdatedTs != nil {
		updatedTs = *update.UpdatedTs
	}
	set, args = append(set, "updated_ts = "+placeholder(len(args)+1)), append(args, updatedTs)
	args = append(args, update.ID)

	stmt := "UPDATE entry SET " + strings.Join(set, ", ") + " WHERE id = " + placeholder(len(args))
	result, err := d.db.ExecContext(ctx, stmt, args...)
	if err != nil {
		return errors.Wrap(err, "failed to update entry")
	}
	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		return apperrors.NotFound(update.ID)
	}
	return nil
}

func (d *DB) DeleteEntry(ctx context.Context, delete *store.DeleteEntry) error {
	result, err := d.db.ExecContext(ctx, "DELETE FROM entry WHERE id = "+placeholder(1), delete.ID)
	if err != nil {
		return errors.Wrap(err, "failed to delete entry")
	}
	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		return apperrors.NotFound(delete.ID)
	}
	return nil
}

// SearchEntriesByVector narrows eligible entries by pgvector cosine distance.
// The <=> operator computes cosine distance, so ascending order is most similar first.
func (d *DB) SearchEntriesByVector(ctx context.Context, opts *store.VectorSearchOptions) ([]*store.Entry, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT ` + entryColumns + `
		FROM entry
		WHERE eligible = TRUE
			AND embedding IS NOT NULL
			AND summary_vector IS NOT NULL
		ORDER BY summary_vector <=> ` + placeholder(1) + `
		LIMIT ` + placeholder(2)

	rows, err := d.db.QueryContext(ctx, query, pgvector.NewVector(opts.Vector), limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to vector search")
	}
	defer rows.Close()

	list := []*store.Entry{}
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return list, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(rows rowScanner) (*store.Entry, error) {
	var entry store.Entry
	if err := rows.Scan(
		&entry.ID,
		&entry.Title,
		&entry.Content,
		&entry.Date,
		&entry.Summary,
		&entry.Embedding,
		&entry.Eligible,
		&entry.CreatedTs,
		&entry.UpdatedTs,
	); err != nil {
		return nil, errors.Wrap(err, "failed to scan entry")
	}
	return &entry, nil
}

func nullableBlob(blob []byte) any {
	if len(blob) == 0 {
		return nil
	}
	return blob
}

// nullableVector keeps summary_vector NULL whenever the blob is absent.
func nullableVector(blob []byte, vector []float32) any {
	if len(blob) == 0 || len(vector) == 0 {
		return nil
	}
	return pgvector.NewVector(vector)
}
