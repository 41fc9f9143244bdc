package invoices

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/paperflow/paperflow/internal/platform/db"
)

// Repository persists invoices in PostgreSQL.
type Repository interface {
	Create(ctx context.Context, inv Invoice) (Invoice, error)
	Get(ctx context.Context, userID, id uuid.UUID) (Invoice, error)
	GetByNumber(ctx context.Context, number string) (Invoice, error)
	ExistsNumber(ctx context.Context, number string) (bool, error)
	List(ctx context.Context, userID uuid.UUID, filter ListFilter) ([]Invoice, int, error)
	UpdateStatus(ctx context.Context, userID, id uuid.UUID, from, to Status) error
}

// ListFilter narrows the invoice listing.
type ListFilter struct {
	Status *Status
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

const invoiceColumns = `id, user_id, invoice_number, invoice_date,
	customer_name, customer_email, customer_phone, customer_shipping_address,
	amount, tax, total, number_of_units, confidence, confidence_score,
	payment_method, payment_status, invoice_status, notes, created_at, updated_at`

func (r *repository) Create(ctx context.Context, inv Invoice) (Invoice, error) {
	now := time.Now().UTC()
	if inv.ID == uuid.Nil {
		inv.ID = uuid.New()
	}
	inv.CreatedAt = now
	inv.UpdatedAt = now

	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		const insertInvoice = `INSERT INTO invoices (
			id, user_id, invoice_number, invoice_date,
			customer_name, customer_email, customer_phone, customer_shipping_address,
			amount, tax, total, number_of_units, confidence, confidence_score,
			payment_method, payment_status, invoice_status, notes, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$19)`
		_, err := tx.Exec(ctx, insertInvoice,
			inv.ID, inv.UserID, inv.Number, inv.Date,
			inv.Customer.Name, inv.Customer.Email, inv.Customer.Phone, inv.Customer.ShippingAddress,
			inv.Amount, inv.Tax, inv.Total, inv.NumberOfUnits, string(inv.Confidence), inv.ConfidenceScore,
			inv.PaymentMethod, inv.PaymentStatus, string(inv.Status), inv.Notes, now,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return ErrDuplicateInvoice
			}
			return err
		}

		const insertLine = `INSERT INTO invoice_line_items (
			invoice_id, line_order, sku, name, quantity, unit_price, total
		) VALUES ($1,$2,$3,$4,$5,$6,$7)`
		for i, li := range inv.LineItems {
			if _, err := tx.Exec(ctx, insertLine, inv.ID, i+1, li.SKU, li.Name, li.Quantity, li.UnitPrice, li.Total); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Invoice{}, err
	}
	return inv, nil
}

func (r *repository) Get(ctx context.Context, userID, id uuid.UUID) (Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE user_id = $1 AND id = $2`
	inv, err := scanInvoice(r.pool.QueryRow(ctx, query, userID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Invoice{}, ErrInvoiceNotFound
		}
		return Invoice{}, err
	}
	if err := r.loadLines(ctx, &inv); err != nil {
		return Invoice{}, err
	}
	return inv, nil
}

func (r *repository) GetByNumber(ctx context.Context, number string) (Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE invoice_number = $1`
	inv, err := scanInvoice(r.pool.QueryRow(ctx, query, number))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Invoice{}, ErrInvoiceNotFound
		}
		return Invoice{}, err
	}
	if err := r.loadLines(ctx, &inv); err != nil {
		return Invoice{}, err
	}
	return inv, nil
}

func (r *repository) ExistsNumber(ctx context.Context, number string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM invoices WHERE invoice_number = $1)`, number).Scan(&exists)
	return exists, err
}

func (r *repository) List(ctx context.Context, userID uuid.UUID, filter ListFilter) ([]Invoice, int, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE user_id = $1`
	countQuery := `SELECT COUNT(*) FROM invoices WHERE user_id = $1`
	args := []interface{}{userID}
	countArgs := []interface{}{userID}

	if filter.Status != nil {
		query += ` AND invoice_status = $2`
		countQuery += ` AND invoice_status = $2`
		args = append(args, string(*filter.Status))
		countArgs = append(countArgs, string(*filter.Status))
	}

	var total int
	if err := r.pool.QueryRow(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query += ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		query += fmt.Sprintf(` LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
		args = append(args, filter.Limit, filter.Offset)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var invoices []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, 0, err
		}
		invoices = append(invoices, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	for i := range invoices {
		if err := r.loadLines(ctx, &invoices[i]); err != nil {
			return nil, 0, err
		}
	}
	return invoices, total, nil
}

// UpdateStatus transitions the invoice only when it still has the status
// the caller read. Zero rows affected on an existing invoice means a
// concurrent request won the transition.
func (r *repository) UpdateStatus(ctx context.Context, userID, id uuid.UUID, from, to Status) error {
	query := `UPDATE invoices SET invoice_status = $1, updated_at = $2
		WHERE user_id = $3 AND id = $4 AND invoice_status = $5`
	tag, err := r.pool.Exec(ctx, query, string(to), time.Now().UTC(), userID, id, string(from))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		query := `SELECT EXISTS(SELECT 1 FROM invoices WHERE user_id = $1 AND id = $2)`
		if err := r.pool.QueryRow(ctx, query, userID, id).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return ErrInvoiceNotFound
		}
		return ErrStatusConflict
	}
	return nil
}

func (r *repository) loadLines(ctx context.Context, inv *Invoice) error {
	query := `SELECT sku, name, quantity, unit_price, total FROM invoice_line_items
		WHERE invoice_id = $1 ORDER BY line_order ASC`
	rows, err := r.pool.Query(ctx, query, inv.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var li LineItem
		if err := rows.Scan(&li.SKU, &li.Name, &li.Quantity, &li.UnitPrice, &li.Total); err != nil {
			return err
		}
		inv.LineItems = append(inv.LineItems, li)
	}
	return rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInvoice(row rowScanner) (Invoice, error) {
	var (
		inv        Invoice
		confidence string
		status     string
	)
	err := row.Scan(
		&inv.ID, &inv.UserID, &inv.Number, &inv.Date,
		&inv.Customer.Name, &inv.Customer.Email, &inv.Customer.Phone, &inv.Customer.ShippingAddress,
		&inv.Amount, &inv.Tax, &inv.Total, &inv.NumberOfUnits, &confidence, &inv.ConfidenceScore,
		&inv.PaymentMethod, &inv.PaymentStatus, &status, &inv.Notes, &inv.CreatedAt, &inv.UpdatedAt,
	)
	if err != nil {
		return Invoice{}, err
	}
	inv.Confidence = ConfidenceLabel(confidence)
	inv.Status = Status(status)
	return inv, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
