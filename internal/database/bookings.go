package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"servicenest/internal/models"
)

const bookingColumns = `id, customer_name, customer_email, customer_phone, worker,
	service_type, service_date, service_time, service_address, status, price,
	created_at, updated_at, version`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBooking(row rowScanner) (*models.Booking, error) {
	var (
		b      models.Booking
		worker sql.NullString
		date   string
		slot   string
		status string
	)
	err := row.Scan(
		&b.ID, &b.Customer.Name, &b.Customer.Email, &b.Customer.Phone, &worker,
		&b.ServiceType, &date, &slot, &b.ServiceAddress, &status, &b.Price,
		&b.CreatedAt, &b.UpdatedAt, &b.Version,
	)
	if err != nil {
		return nil, err
	}
	b.Worker = worker.String
	b.ServiceDate = models.Date(date)
	b.ServiceTime = models.TimeSlot(slot)
	if b.Status, err = models.ParseStatus(status); err != nil {
		return nil, fmt.Errorf("booking %d: %w", b.ID, err)
	}
	return &b, nil
}

// CreateBooking сохраняет новую заявку и заполняет ID и версию
func (db *DB) CreateBooking(ctx context.Context, booking *models.Booking) error {
	now := time.Now().UTC()
	if booking.CreatedAt.IsZero() {
		booking.CreatedAt = now
	}
	booking.CreatedAt = booking.CreatedAt.UTC()
	booking.UpdatedAt = booking.UpdatedAt.UTC()
	if booking.UpdatedAt.Before(booking.CreatedAt) {
		booking.UpdatedAt = booking.CreatedAt
	}
	if booking.Status == "" {
		booking.Status = models.StatusPending
	}
	booking.Version = 1

	query := `INSERT INTO bookings (customer_name, customer_email, customer_phone, worker,
	                                service_type, service_date, service_time, service_address,
	                                status, price, created_at, updated_at, version)
	          VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	result, err := db.ExecContext(ctx, query,
		booking.Customer.Name,
		booking.Customer.Email,
		booking.Customer.Phone,
		nullString(booking.Worker),
		booking.ServiceType,
		string(booking.ServiceDate),
		string(booking.ServiceTime),
		booking.ServiceAddress,
		string(booking.Status),
		booking.Price,
		booking.CreatedAt,
		booking.UpdatedAt,
		booking.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to create booking: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	booking.ID = id
	return nil
}

func (db *DB) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	row := db.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = ?`, id)
	b, err := scanBooking(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("booking %d: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return b, nil
}

// GetCustomerBookings возвращает заявки клиента, новые первыми
func (db *DB) GetCustomerBookings(ctx context.Context, email string) ([]models.Booking, error) {
	return db.listBookings(ctx, `WHERE customer_email = ?`, email)
}

// GetWorkerBookings возвращает заявки, назначенные исполнителю
func (db *DB) GetWorkerBookings(ctx context.Context, worker string) ([]models.Booking, error) {
	return db.listBookings(ctx, `WHERE worker = ?`, worker)
}

// GetPendingBookings возвращает свободные заявки без исполнителя
func (db *DB) GetPendingBookings(ctx context.Context) ([]models.Booking, error) {
	return db.listBookings(ctx, `WHERE status = ? AND worker IS NULL`, string(models.StatusPending))
}

func (db *DB) listBookings(ctx context.Context, where string, args ...any) ([]models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings ` + where + ` ORDER BY created_at DESC, id DESC`
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	defer rows.Close()

	bookings := make([]models.Booking, 0)
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		bookings = append(bookings, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate bookings: %w", err)
	}
	return bookings, nil
}

// AssignWorker атомарно закрепляет свободную заявку за исполнителем.
// Из нескольких одновременных вызовов успешен ровно один, остальные
// получают ErrConflict.
func (db *DB) AssignWorker(ctx context.Context, id int64, worker string, at time.Time) error {
	query := `UPDATE bookings
	          SET worker = ?, status = ?, version = version + 1, updated_at = ?
	          WHERE id = ? AND status = ? AND worker IS NULL`
	result, err := db.ExecContext(ctx, query,
		worker, string(models.StatusAccepted), at.UTC(), id, string(models.StatusPending))
	if err != nil {
		return fmt.Errorf("failed to assign worker: %w", err)
	}
	return db.checkAffected(ctx, result, id)
}

// UpdateStatusWithVersion меняет статус, только если заявка не менялась
// с момента чтения (тот же статус и версия).
func (db *DB) UpdateStatusWithVersion(ctx context.Context, id int64, from models.Status, fromVersion int64, to models.Status, at time.Time) error {
	query := `UPDATE bookings
	          SET status = ?, version = version + 1, updated_at = ?
	          WHERE id = ? AND status = ? AND version = ?`
	result, err := db.ExecContext(ctx, query, string(to), at.UTC(), id, string(from), fromVersion)
	if err != nil {
		return fmt.Errorf("failed to update booking status: %w", err)
	}
	return db.checkAffected(ctx, result, id)
}

func (db *DB) checkAffected(ctx context.Context, result sql.Result, id int64) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows > 0 {
		return nil
	}

	var exists int
	err = db.QueryRowContext(ctx, `SELECT 1 FROM bookings WHERE id = ?`, id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("booking %d: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to check booking: %w", err)
	}
	return ErrConflict
}

// CountByStatus returns the number of bookings per status.
func (db *DB) CountByStatus(ctx context.Context) (map[models.Status]int, error) {
	rows, err := db.QueryContext(ctx, `SELECT status, COUNT(*) FROM bookings GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count bookings: %w", err)
	}
	defer rows.Close()

	out := make(map[models.Status]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		out[models.Status(status)] = n
	}
	return out, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
