// Package db provides the local SQLite store for todo lists and items.
//
// The database runs embedded (ncruces/go-sqlite3, no cgo) with WAL so the
// reconciler, the queue workers and request handlers can read while one of
// them writes.
//
// Architecture:
//   - Database file: configured by database.path (default todosync.db)
//   - Tables: lists, items (items.list_id REFERENCES lists ON DELETE CASCADE)
//   - external_id is NULL until a record is linked to the external system,
//     and unique per table when set
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/mschirtzinger/todosync/internal/schema"
)

// DB implements Store on top of an embedded SQLite database.
type DB struct {
	conn *sql.DB
	path string
}

var _ Store = (*DB)(nil)

// Open creates a new database connection at the specified path.
//
// Pragmas are passed in the connection string so that every pooled
// connection has foreign keys (and therefore cascades) enabled.
//
// The caller MUST call Close() when done.
//
// Example:
//
//	store, err := db.Open("todosync.db")
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	connStr := fmt.Sprintf("file:%s?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", path)
	conn, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	return &DB{conn: conn, path: path}, nil
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// Close closes the database connection.
// Performs a WAL checkpoint to ensure all changes are persisted.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}

	if _, err := db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}

	if err := db.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	db.conn = nil
	return nil
}

// InitSchema creates the lists and items tables if they don't exist.
// This is idempotent - safe to call multiple times.
func (db *DB) InitSchema(ctx context.Context) error {
	schemaSQL := `
	CREATE TABLE IF NOT EXISTS lists (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		external_id TEXT
	);

	CREATE TABLE IF NOT EXISTS items (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		list_id INTEGER NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		done INTEGER NOT NULL DEFAULT 0,
		external_id TEXT,
		FOREIGN KEY (list_id) REFERENCES lists(id) ON DELETE CASCADE
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_lists_external
	    ON lists(external_id) WHERE external_id IS NOT NULL;
	CREATE UNIQUE INDEX IF NOT EXISTS idx_items_external
	    ON items(external_id) WHERE external_id IS NOT NULL;
	CREATE INDEX IF NOT EXISTS idx_items_list ON items(list_id);
	`

	if _, err := db.conn.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// ListLists implements Store.ListLists.
func (db *DB) ListLists(ctx context.Context) ([]schema.List, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT id, name, external_id FROM lists ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query lists: %w", err)
	}
	defer rows.Close()

	var lists []schema.List
	for rows.Next() {
		list, err := scanList(rows)
		if err != nil {
			return nil, err
		}
		lists = append(lists, list)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating lists: %w", err)
	}
	return lists, nil
}

// GetList implements Store.GetList.
func (db *DB) GetList(ctx context.Context, id int64) (schema.List, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT id, name, external_id FROM lists WHERE id = ?`, id)
	list, err := scanList(row)
	if err != nil {
		return schema.List{}, fmt.Errorf("list %d: %w", id, err)
	}
	return list, nil
}

// GetListByExternalID implements Store.GetListByExternalID.
func (db *DB) GetListByExternalID(ctx context.Context, externalID string) (schema.List, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT id, name, external_id FROM lists WHERE external_id = ?`, externalID)
	list, err := scanList(row)
	if err != nil {
		return schema.List{}, fmt.Errorf("list with external id %s: %w", externalID, err)
	}
	return list, nil
}

// CreateList implements Store.CreateList.
func (db *DB) CreateList(ctx context.Context, list *schema.List) error {
	if err := list.Validate(); err != nil {
		return fmt.Errorf("invalid list: %w", err)
	}

	res, err := db.conn.ExecContext(ctx,
		`INSERT INTO lists (name, external_id) VALUES (?, ?)`,
		list.Name, nullString(list.ExternalID))
	if err != nil {
		return fmt.Errorf("failed to insert list: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read list id: %w", err)
	}
	list.ID = id
	return nil
}

// UpdateList implements Store.UpdateList.
func (db *DB) UpdateList(ctx context.Context, list *schema.List) error {
	if err := list.Validate(); err != nil {
		return fmt.Errorf("invalid list: %w", err)
	}

	res, err := db.conn.ExecContext(ctx,
		`UPDATE lists SET name = ? WHERE id = ?`,
		list.Name, list.ID)
	if err != nil {
		return fmt.Errorf("failed to update list %d: %w", list.ID, err)
	}
	return requireAffected(res, "list", list.ID)
}

// SetListExternalID implements Store.SetListExternalID.
func (db *DB) SetListExternalID(ctx context.Context, id int64, externalID string) error {
	if externalID == "" {
		return fmt.Errorf("external id is required")
	}
	res, err := db.conn.ExecContext(ctx,
		`UPDATE lists SET external_id = ? WHERE id = ?`, externalID, id)
	if err != nil {
		return fmt.Errorf("failed to link list %d: %w", id, err)
	}
	return requireAffected(res, "list", id)
}

// DeleteList implements Store.DeleteList.
func (db *DB) DeleteList(ctx context.Context, id int64) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM lists WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete list %d: %w", id, err)
	}
	return requireAffected(res, "list", id)
}

// ListItems implements Store.ListItems.
func (db *DB) ListItems(ctx context.Context, listID int64) ([]schema.Item, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, list_id, description, done, external_id FROM items WHERE list_id = ? ORDER BY id ASC`,
		listID)
	if err != nil {
		return nil, fmt.Errorf("failed to query items of list %d: %w", listID, err)
	}
	defer rows.Close()

	var items []schema.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating items: %w", err)
	}
	return items, nil
}

// GetItem implements Store.GetItem.
func (db *DB) GetItem(ctx context.Context, id int64) (schema.Item, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT id, list_id, description, done, external_id FROM items WHERE id = ?`, id)
	item, err := scanItem(row)
	if err != nil {
		return schema.Item{}, fmt.Errorf("item %d: %w", id, err)
	}
	return item, nil
}

// CreateItem implements Store.CreateItem.
func (db *DB) CreateItem(ctx context.Context, item *schema.Item) error {
	if err := item.Validate(); err != nil {
		return fmt.Errorf("invalid item: %w", err)
	}

	res, err := db.conn.ExecContext(ctx,
		`INSERT INTO items (list_id, description, done, external_id) VALUES (?, ?, ?, ?)`,
		item.ListID, item.Description, item.Done, nullString(item.ExternalID))
	if err != nil {
		return fmt.Errorf("failed to insert item: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read item id: %w", err)
	}
	item.ID = id
	return nil
}

// UpdateItem implements Store.UpdateItem.
func (db *DB) UpdateItem(ctx context.Context, item *schema.Item) error {
	if err := item.Validate(); err != nil {
		return fmt.Errorf("invalid item: %w", err)
	}

	res, err := db.conn.ExecContext(ctx,
		`UPDATE items SET description = ?, done = ? WHERE id = ?`,
		item.Description, item.Done, item.ID)
	if err != nil {
		return fmt.Errorf("failed to update item %d: %w", item.ID, err)
	}
	return requireAffected(res, "item", item.ID)
}

// PatchItem implements Store.PatchItem.
func (db *DB) PatchItem(ctx context.Context, id int64, patch schema.ItemPatch) (schema.Item, error) {
	var (
		description sql.NullString
		done        sql.NullBool
	)
	if patch.Description != nil {
		description = sql.NullString{String: *patch.Description, Valid: true}
	}
	if patch.Done != nil {
		done = sql.NullBool{Bool: *patch.Done, Valid: true}
	}

	row := db.conn.QueryRowContext(ctx,
		`UPDATE items
		 SET description = COALESCE(?, description), done = COALESCE(?, done)
		 WHERE id = ?
		 RETURNING id, list_id, description, done, external_id`,
		description, done, id)
	item, err := scanItem(row)
	if err != nil {
		return schema.Item{}, fmt.Errorf("failed to patch item %d: %w", id, err)
	}
	return item, nil
}

// SetItemExternalID implements Store.SetItemExternalID.
func (db *DB) SetItemExternalID(ctx context.Context, id int64, externalID string) error {
	if externalID == "" {
		return fmt.Errorf("external id is required")
	}
	res, err := db.conn.ExecContext(ctx,
		`UPDATE items SET external_id = ? WHERE id = ?`, externalID, id)
	if err != nil {
		return fmt.Errorf("failed to link item %d: %w", id, err)
	}
	return requireAffected(res, "item", id)
}

// DeleteItem implements Store.DeleteItem.
func (db *DB) DeleteItem(ctx context.Context, id int64) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM items WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete item %d: %w", id, err)
	}
	return requireAffected(res, "item", id)
}

// Stats returns record counts for status reporting.
func (db *DB) Stats(ctx context.Context) (Stats, error) {
	var s Stats
	err := db.conn.QueryRowContext(ctx, `
	SELECT
		(SELECT COUNT(*) FROM lists),
		(SELECT COUNT(*) FROM lists WHERE external_id IS NOT NULL),
		(SELECT COUNT(*) FROM items),
		(SELECT COUNT(*) FROM items WHERE external_id IS NOT NULL),
		(SELECT COUNT(*) FROM items WHERE done = 1)
	`).Scan(&s.Lists, &s.LinkedLists, &s.Items, &s.LinkedItems, &s.DoneItems)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to get stats: %w", err)
	}
	return s, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanList(row rowScanner) (schema.List, error) {
	var list schema.List
	var externalID sql.NullString
	if err := row.Scan(&list.ID, &list.Name, &externalID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return schema.List{}, ErrNotFound
		}
		return schema.List{}, fmt.Errorf("failed to scan list: %w", err)
	}
	list.ExternalID = externalID.String
	return list, nil
}

func scanItem(row rowScanner) (schema.Item, error) {
	var item schema.Item
	var externalID sql.NullString
	if err := row.Scan(&item.ID, &item.ListID, &item.Description, &item.Done, &externalID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return schema.Item{}, ErrNotFound
		}
		return schema.Item{}, fmt.Errorf("failed to scan item: %w", err)
	}
	item.ExternalID = externalID.String
	return item, nil
}

// nullString maps an absent external ID to SQL NULL.
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func requireAffected(res sql.Result, kind string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s %d: %w", kind, id, ErrNotFound)
	}
	return nil
}
