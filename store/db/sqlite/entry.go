package sqlite

import (
	"context"
	"fmt"
	"strings"
	"time"

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
		create.Eligible,
		create.CreatedTs,
		create.UpdatedTs,
	}
	stmt := "INSERT INTO entry (" + entryColumns + ") VALUES (" + placeholders(len(args)) + ")"
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
		query = fmt.Sprintf("%s LIMIT -1 OFFSET %d", query, *find.Offset)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list entries")
	}
	defer rows.Close()

	list := []*store.Entry{}
	for rows.Next() {
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
		list = append(list, &entry)
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

// SearchEntriesByVector is NOT supported for SQLite.
func (*DB) SearchEntriesByVector(context.Context, *store.VectorSearchOptions) ([]*store.Entry, error) {
	return nil, store.ErrVectorSearchUnsupported
}

// nullableBlob stores empty blobs as NULL so "absent" has one representation.
func nullableBlob(blob []byte) any {
	if len(blob) == 0 {
		return nil
	}
	return blob
}
