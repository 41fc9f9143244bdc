package inventory

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/paperflow/paperflow/internal/platform/db"
)

// Repository persists inventory items in PostgreSQL.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	List(ctx context.Context, userID uuid.UUID, filter ListFilter) ([]Item, int, error)
	Get(ctx context.Context, userID uuid.UUID, sku string) (Item, error)
	GetBySKUs(ctx context.Context, userID uuid.UUID, skus []string) (map[string]Item, error)
	Create(ctx context.Context, item Item) (Item, error)
	Update(ctx context.Context, item Item) error
	Delete(ctx context.Context, userID uuid.UUID, sku string) error
	SaveShortage(ctx context.Context, userID uuid.UUID, sku string, shortage Shortage) error
	ListShortages(ctx context.Context, userID uuid.UUID) ([]Item, error)
}

// TxRepository exposes the operations that must share one transaction.
type TxRepository interface {
	// DecrementStock subtracts qty from the item if and only if enough
	// stock remains. Returns false when the guard rejected the update.
	DecrementStock(ctx context.Context, userID uuid.UUID, sku string, qty int64) (bool, error)
	IncrementStock(ctx context.Context, userID uuid.UUID, sku string, qty int64) error
}

// ListFilter narrows the item listing.
type ListFilter struct {
	Search string
	Limit  int
	Offset int
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

type txRepository struct {
	tx pgx.Tx
}

const itemColumns = `id, user_id, sku, name, quantity, unit_price, supplier_email,
	shortage_expected, shortage_actual, shortage_gap, shortage_impact, shortage_recorded_at,
	created_at, updated_at`

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

func (r *repository) List(ctx context.Context, userID uuid.UUID, filter ListFilter) ([]Item, int, error) {
	query := `SELECT ` + itemColumns + ` FROM inventory_items WHERE user_id = $1`
	args := []interface{}{userID}
	argCount := 1

	if filter.Search != "" {
		argCount++
		query += ` AND (sku ILIKE $` + strconv.Itoa(argCount) + ` OR name ILIKE $` + strconv.Itoa(argCount) + `)`
		args = append(args, "%"+filter.Search+"%")
	}

	countQuery := `SELECT COUNT(*) FROM inventory_items WHERE user_id = $1`
	countArgs := []interface{}{userID}
	if filter.Search != "" {
		countQuery += ` AND (sku ILIKE $2 OR name ILIKE $2)`
		countArgs = append(countArgs, "%"+filter.Search+"%")
	}

	var total int
	if err := r.pool.QueryRow(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query += ` ORDER BY sku ASC`
	if filter.Limit > 0 {
		argCount++
		query += ` LIMIT $` + strconv.Itoa(argCount)
		args = append(args, filter.Limit)
		argCount++
		query += ` OFFSET $` + strconv.Itoa(argCount)
		args = append(args, filter.Offset)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, item)
	}
	return items, total, rows.Err()
}

func (r *repository) Get(ctx context.Context, userID uuid.UUID, sku string) (Item, error) {
	query := `SELECT ` + itemColumns + ` FROM inventory_items WHERE user_id = $1 AND sku = $2`
	item, err := scanItem(r.pool.QueryRow(ctx, query, userID, sku))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Item{}, ErrItemNotFound
		}
		return Item{}, err
	}
	return item, nil
}

func (r *repository) GetBySKUs(ctx context.Context, userID uuid.UUID, skus []string) (map[string]Item, error) {
	if len(skus) == 0 {
		return map[string]Item{}, nil
	}
	query := `SELECT ` + itemColumns + ` FROM inventory_items WHERE user_id = $1 AND sku = ANY($2)`
	rows, err := r.pool.Query(ctx, query, userID, skus)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	found := make(map[string]Item, len(skus))
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		found[item.SKU] = item
	}
	return found, rows.Err()
}

func (r *repository) Create(ctx context.Context, item Item) (Item, error) {
	query := `INSERT INTO inventory_items (user_id, sku, name, quantity, unit_price, supplier_email, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7) RETURNING id`
	now := time.Now().UTC()
	err := r.pool.QueryRow(ctx, query,
		item.UserID, item.SKU, item.Name, item.Quantity, item.UnitPrice, item.SupplierEmail, now,
	).Scan(&item.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return Item{}, ErrDuplicateSKU
		}
		return Item{}, err
	}
	item.CreatedAt = now
	item.UpdatedAt = now
	return item, nil
}

func (r *repository) Update(ctx context.Context, item Item) error {
	query := `UPDATE inventory_items SET name = $1, quantity = $2, unit_price = $3, supplier_email = $4, updated_at = $5
		WHERE user_id = $6 AND sku = $7`
	tag, err := r.pool.Exec(ctx, query,
		item.Name, item.Quantity, item.UnitPrice, item.SupplierEmail, time.Now().UTC(), item.UserID, item.SKU)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrItemNotFound
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, userID uuid.UUID, sku string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM inventory_items WHERE user_id = $1 AND sku = $2`, userID, sku)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrItemNotFound
	}
	return nil
}

func (r *repository) SaveShortage(ctx context.Context, userID uuid.UUID, sku string, shortage Shortage) error {
	query := `UPDATE inventory_items
		SET shortage_expected = $1, shortage_actual = $2, shortage_gap = $3,
		    shortage_impact = $4, shortage_recorded_at = $5, updated_at = $5
		WHERE user_id = $6 AND sku = $7`
	tag, err := r.pool.Exec(ctx, query,
		shortage.Expected, shortage.Actual, shortage.Gap, string(shortage.Impact), shortage.RecordedAt, userID, sku)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrItemNotFound
	}
	return nil
}

func (r *repository) ListShortages(ctx context.Context, userID uuid.UUID) ([]Item, error) {
	query := `SELECT ` + itemColumns + ` FROM inventory_items
		WHERE user_id = $1 AND shortage_recorded_at IS NOT NULL
		ORDER BY shortage_recorded_at DESC`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (t *txRepository) DecrementStock(ctx context.Context, userID uuid.UUID, sku string, qty int64) (bool, error) {
	// The quantity guard makes the decrement atomic; concurrent approvals
	// sharing a sku cannot drive stock negative.
	query := `UPDATE inventory_items SET quantity = quantity - $1, updated_at = $2
		WHERE user_id = $3 AND sku = $4 AND quantity >= $1`
	tag, err := t.tx.Exec(ctx, query, qty, time.Now().UTC(), userID, sku)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (t *txRepository) IncrementStock(ctx context.Context, userID uuid.UUID, sku string, qty int64) error {
	query := `UPDATE inventory_items SET quantity = quantity + $1, updated_at = $2
		WHERE user_id = $3 AND sku = $4`
	tag, err := t.tx.Exec(ctx, query, qty, time.Now().UTC(), userID, sku)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrItemNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (Item, error) {
	var (
		item       Item
		expected   *int64
		actual     *int64
		gap        *int64
		impact     *string
		recordedAt *time.Time
	)
	err := row.Scan(
		&item.ID, &item.UserID, &item.SKU, &item.Name, &item.Quantity, &item.UnitPrice, &item.SupplierEmail,
		&expected, &actual, &gap, &impact, &recordedAt,
		&item.CreatedAt, &item.UpdatedAt,
	)
	if err != nil {
		return Item{}, err
	}
	if recordedAt != nil {
		shortage := Shortage{RecordedAt: recordedAt.UTC()}
		if expected != nil {
			shortage.Expected = *expected
		}
		if actual != nil {
			shortage.Actual = *actual
		}
		if gap != nil {
			shortage.Gap = *gap
		}
		if impact != nil {
			shortage.Impact = ShortageImpact(*impact)
		}
		item.Shortage = &shortage
	}
	return item, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
