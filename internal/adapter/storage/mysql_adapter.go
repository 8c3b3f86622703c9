package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/rl1809/item-catalog/internal/core/domain"
	"github.com/rl1809/item-catalog/internal/port"
)

const mysqlDuplicateEntry = 1062

const itemColumns = `id, name, description, quantity, price, owner_id, version, created_at, updated_at`

const createItemsTable = `
CREATE TABLE IF NOT EXISTS items (
	id          BIGINT       NOT NULL AUTO_INCREMENT,
	name        VARCHAR(80)  NOT NULL,
	description VARCHAR(240) NOT NULL,
	quantity    INT          NOT NULL,
	price       DOUBLE       NOT NULL,
	owner_id    VARCHAR(64)  NOT NULL,
	version     INT          NOT NULL DEFAULT 1,
	created_at  DATETIME(6)  NOT NULL,
	updated_at  DATETIME(6)  NOT NULL,
	PRIMARY KEY (id),
	UNIQUE KEY uq_items_name (name),
	KEY idx_items_owner_id (owner_id)
)`

// MySQLAdapter is the item store. Every write is a single statement, so a
// cancelled request either commits it whole or not at all.
type MySQLAdapter struct {
	db  *sql.DB
	now func() time.Time
}

// OpenMySQL connects to dsn and pings it. Timestamps are always scanned
// into time.Time, whatever the DSN says about parseTime.
func OpenMySQL(ctx context.Context, dsn string) (*sql.DB, error) {
	cfg, err := mysqlConfig(dsn)
	if err != nil {
		return nil, err
	}

	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("mysql connector: %w", err)
	}
	db := sql.OpenDB(connector)
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping mysql: %w", err)
	}
	return db, nil
}

func mysqlConfig(dsn string) (*mysql.Config, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse mysql dsn: %w", err)
	}
	cfg.ParseTime = true
	return cfg, nil
}

func NewMySQLAdapter(db *sql.DB) *MySQLAdapter {
	return &MySQLAdapter{db: db, now: time.Now}
}

// EnsureSchema creates the items table if it does not exist yet.
func (m *MySQLAdapter) EnsureSchema(ctx context.Context) error {
	if _, err := m.db.ExecContext(ctx, createItemsTable); err != nil {
		return fmt.Errorf("create items table: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) CreateItem(ctx context.Context, item domain.Item) port.WriteResult {
	result, err := m.db.ExecContext(ctx, `
		INSERT INTO items (name, description, quantity, price, owner_id, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		item.Name, item.Description, item.Quantity, item.Price, item.OwnerID,
		item.Version, item.CreatedAt, item.UpdatedAt,
	)
	if err != nil {
		return classifyWriteError("insert item", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return port.WriteRejected(port.WriteFailed, fmt.Errorf("last insert id: %w", err))
	}

	item.ID = id
	return port.WriteSucceeded(item)
}

func (m *MySQLAdapter) GetItem(ctx context.Context, id int64) (*domain.Item, error) {
	row := m.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM items WHERE id = ?`, id)

	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query item: %w", err)
	}
	return &item, nil
}

func (m *MySQLAdapter) ListItemsByOwner(ctx context.Context, ownerID string) ([]domain.Item, error) {
	return m.queryItems(ctx, `SELECT `+itemColumns+` FROM items WHERE owner_id = ? ORDER BY id`, ownerID)
}

func (m *MySQLAdapter) ListItemsByIDs(ctx context.Context, ids []int64) ([]domain.Item, error) {
	if len(ids) == 0 {
		return []domain.Item{}, nil
	}

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")

	return m.queryItems(ctx, `SELECT `+itemColumns+` FROM items WHERE id IN (`+placeholders+`) ORDER BY id`, args...)
}

func (m *MySQLAdapter) UpdateItem(ctx context.Context, item domain.Item) port.WriteResult {
	now := m.now()
	result, err := m.db.ExecContext(ctx, `
		UPDATE items
		SET name = ?, description = ?, quantity = ?, price = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`,
		item.Name, item.Description, item.Quantity, item.Price, now,
		item.ID, item.Version,
	)
	if err != nil {
		return classifyWriteError("update item", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return port.WriteRejected(port.WriteFailed, fmt.Errorf("rows affected: %w", err))
	}
	if rows == 0 {
		return port.WriteRejected(port.WriteVersionConflict, domain.ErrVersionConflict)
	}

	item.Version++
	item.UpdatedAt = now
	return port.WriteSucceeded(item)
}

func (m *MySQLAdapter) queryItems(ctx context.Context, query string, args ...any) ([]domain.Item, error) {
	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	defer rows.Close()

	items := []domain.Item{}
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate items: %w", err)
	}
	return items, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(s rowScanner) (domain.Item, error) {
	var item domain.Item
	err := s.Scan(
		&item.ID, &item.Name, &item.Description, &item.Quantity, &item.Price,
		&item.OwnerID, &item.Version, &item.CreatedAt, &item.UpdatedAt,
	)
	return item, err
}

func classifyWriteError(op string, err error) port.WriteResult {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && myErr.Number == mysqlDuplicateEntry {
		return port.WriteRejected(port.WriteDuplicate, fmt.Errorf("%w: %s", domain.ErrDuplicateName, myErr.Message))
	}
	return port.WriteRejected(port.WriteFailed, fmt.Errorf("%s: %w", op, err))
}
