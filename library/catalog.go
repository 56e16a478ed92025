package library

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const bookColumns = `id, COALESCE(isbn,''), title, author, category, description,
    total_copies, available_copies, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBook(row rowScanner) (*Book, error) {
	var b Book
	err := row.Scan(&b.ID, &b.ISBN, &b.Title, &b.Author, &b.Category, &b.Description,
		&b.TotalCopies, &b.AvailableCopies, &b.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// CreateBook inserts a new catalog entry. All copies start available.
func (d *Database) CreateBook(ctx context.Context, spec BookSpec) (*Book, error) {
	if spec.TotalCopies < 1 {
		return nil, fmt.Errorf("total_copies must be at least 1: %w", ErrInvalidInput)
	}
	res, err := d.createBookStmt.ExecContext(ctx, spec.ISBN, spec.Title, spec.Author,
		spec.Category, spec.Description, spec.TotalCopies, spec.TotalCopies)
	if err != nil {
		return nil, fmt.Errorf("create book: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return d.GetBook(ctx, id)
}

// GetBook fetches a single book.
func (d *Database) GetBook(ctx context.Context, id int64) (*Book, error) {
	b, err := scanBook(d.db.QueryRowContext(ctx,
		`SELECT `+bookColumns+` FROM books WHERE id=?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("book %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

// ListBooks returns books matching the filter, ordered by title. All set
// predicates compose conjunctively.
func (d *Database) ListBooks(ctx context.Context, f BookFilter) ([]*Book, error) {
	query := `SELECT ` + bookColumns + ` FROM books WHERE 1=1`
	var args []any

	if f.Search != "" {
		// SQLite LIKE is case-insensitive by default.
		query += ` AND (title LIKE ? OR author LIKE ? OR isbn LIKE ?)`
		pattern := "%" + f.Search + "%"
		args = append(args, pattern, pattern, pattern)
	}
	if f.Category != "" {
		query += ` AND category = ?`
		args = append(args, f.Category)
	}
	if f.AvailableOnly {
		query += ` AND available_copies > 0`
	}
	query += ` ORDER BY title`

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var books []*Book
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, err
		}
		books = append(books, b)
	}
	return books, rows.Err()
}

// ---------------------------------------------------------------------------
// Transaction-scoped mutations, called only from the circulation engine's
// locked transitions.
// ---------------------------------------------------------------------------

func getBookTx(ctx context.Context, tx *sql.Tx, id int64) (*Book, error) {
	b, err := scanBook(tx.QueryRowContext(ctx,
		`SELECT `+bookColumns+` FROM books WHERE id=?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("book %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

// adjustAvailability moves available_copies by delta, enforcing the
// [0, total_copies] bounds in the statement itself so a violating update
// never lands.
func adjustAvailability(ctx context.Context, tx *sql.Tx, bookID int64, delta int) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE books SET available_copies = available_copies + ?
         WHERE id = ? AND available_copies + ? BETWEEN 0 AND total_copies`,
		delta, bookID, delta)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		var exists bool
		if err := tx.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM books WHERE id=?)`, bookID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("book %d: %w", bookID, ErrNotFound)
		}
		return fmt.Errorf("book %d: adjust by %+d: %w", bookID, delta, ErrInvariant)
	}
	return nil
}

// updateBookTx applies a descriptive patch and re-derives available_copies
// from total_copies minus the active loan count. An admin can therefore
// never set availability directly or push it out of bounds.
func updateBookTx(ctx context.Context, tx *sql.Tx, id int64, patch BookPatch) (*Book, error) {
	b, err := getBookTx(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	active, err := countActiveLoansForBookTx(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	if patch.ISBN != nil {
		b.ISBN = *patch.ISBN
	}
	if patch.Title != nil {
		b.Title = *patch.Title
	}
	if patch.Author != nil {
		b.Author = *patch.Author
	}
	if patch.Category != nil {
		b.Category = *patch.Category
	}
	if patch.Description != nil {
		b.Description = *patch.Description
	}
	if patch.TotalCopies != nil {
		if *patch.TotalCopies < 1 {
			return nil, fmt.Errorf("total_copies must be at least 1: %w", ErrInvalidInput)
		}
		if *patch.TotalCopies < active {
			return nil, fmt.Errorf("total_copies %d below %d active loans: %w",
				*patch.TotalCopies, active, ErrConflict)
		}
		b.TotalCopies = *patch.TotalCopies
	}
	b.AvailableCopies = b.TotalCopies - active

	_, err = tx.ExecContext(ctx,
		`UPDATE books SET isbn=?, title=?, author=?, category=?, description=?,
            total_copies=?, available_copies=? WHERE id=?`,
		b.ISBN, b.Title, b.Author, b.Category, b.Description,
		b.TotalCopies, b.AvailableCopies, b.ID)
	if err != nil {
		return nil, fmt.Errorf("update book %d: %w", id, err)
	}
	return b, nil
}

// deleteBookTx removes a book unless active loans still reference it.
func deleteBookTx(ctx context.Context, tx *sql.Tx, id int64) error {
	active, err := countActiveLoansForBookTx(ctx, tx, id)
	if err != nil {
		return err
	}
	if active > 0 {
		return fmt.Errorf("book %d has %d active loans: %w", id, active, ErrConflict)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM books WHERE id=?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("book %d: %w", id, ErrNotFound)
	}
	return nil
}
