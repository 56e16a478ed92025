package library

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

func scanLoanRow(row rowScanner, now time.Time, dest *Loan, extra ...any) error {
	var returned sql.NullTime
	fields := []any{&dest.ID, &dest.UserID, &dest.BookID, &dest.Status,
		&dest.BorrowDate, &dest.DueDate, &returned}
	fields = append(fields, extra...)
	if err := row.Scan(fields...); err != nil {
		return err
	}
	if returned.Valid {
		t := returned.Time
		dest.ReturnDate = &t
	}
	// Overdueness is derived on every read, never persisted.
	dest.Overdue = dest.Status == LoanActive && dest.DueDate.Before(now)
	return nil
}

const loanJoinQuery = `
    SELECT l.id, l.user_id, l.book_id, l.status, l.borrow_date, l.due_date, l.return_date,
           COALESCE(b.title,''), COALESCE(b.author,'')
    FROM loans l LEFT JOIN books b ON b.id = l.book_id`

// GetLoan fetches a single loan with its book's title and author joined in.
func (d *Database) GetLoan(ctx context.Context, id int64) (*Loan, error) {
	var l Loan
	err := scanLoanRow(d.db.QueryRowContext(ctx, loanJoinQuery+` WHERE l.id=?`, id),
		time.Now(), &l, &l.BookTitle, &l.BookAuthor)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("loan %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// ListLoansByUser returns one user's loans, most recent borrow first.
func (d *Database) ListLoansByUser(ctx context.Context, userID int64) ([]*Loan, error) {
	rows, err := d.db.QueryContext(ctx,
		loanJoinQuery+` WHERE l.user_id=? ORDER BY l.borrow_date DESC, l.id DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	now := time.Now()
	var loans []*Loan
	for rows.Next() {
		var l Loan
		if err := scanLoanRow(rows, now, &l, &l.BookTitle, &l.BookAuthor); err != nil {
			return nil, err
		}
		loans = append(loans, &l)
	}
	return loans, rows.Err()
}

// ListAllLoans returns every loan with borrower details, most recent borrow
// first. The ordering is part of the contract, not an implementation detail.
func (d *Database) ListAllLoans(ctx context.Context) ([]*Loan, error) {
	rows, err := d.db.QueryContext(ctx, `
        SELECT l.id, l.user_id, l.book_id, l.status, l.borrow_date, l.due_date, l.return_date,
               COALESCE(b.title,''), COALESCE(b.author,''),
               COALESCE(u.email,''), COALESCE(u.full_name,'')
        FROM loans l
        LEFT JOIN books b ON b.id = l.book_id
        LEFT JOIN users u ON u.id = l.user_id
        ORDER BY l.borrow_date DESC, l.id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	now := time.Now()
	var loans []*Loan
	for rows.Next() {
		var l Loan
		if err := scanLoanRow(rows, now, &l,
			&l.BookTitle, &l.BookAuthor, &l.UserEmail, &l.UserFullName); err != nil {
			return nil, err
		}
		loans = append(loans, &l)
	}
	return loans, rows.Err()
}

// ---------------------------------------------------------------------------
// Transaction-scoped helpers for the circulation engine
// ---------------------------------------------------------------------------

func createLoanTx(ctx context.Context, tx *sql.Tx, userID, bookID int64, borrow, due time.Time) (int64, error) {
	res, err := tx.ExecContext(ctx,
		`INSERT INTO loans(user_id, book_id, status, borrow_date, due_date)
         VALUES(?,?,?,?,?)`,
		userID, bookID, string(LoanActive), borrow, due)
	if err != nil {
		return 0, fmt.Errorf("create loan: %w", err)
	}
	return res.LastInsertId()
}

// markReturnedTx closes an active loan. The status predicate in the UPDATE
// makes the active→returned transition happen at most once even if the
// loan was re-read stale.
func markReturnedTx(ctx context.Context, tx *sql.Tx, loanID int64, returnDate time.Time) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE loans SET status=?, return_date=? WHERE id=? AND status=?`,
		string(LoanReturned), returnDate, loanID, string(LoanActive))
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
			`SELECT EXISTS(SELECT 1 FROM loans WHERE id=?)`, loanID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("loan %d: %w", loanID, ErrNotFound)
		}
		return fmt.Errorf("loan %d already returned: %w", loanID, ErrInvalidState)
	}
	return nil
}

func countActiveLoansForBookTx(ctx context.Context, tx *sql.Tx, bookID int64) (int, error) {
	var n int
	err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM loans WHERE book_id=? AND status=?`,
		bookID, string(LoanActive)).Scan(&n)
	return n, err
}

func activeLoanExistsTx(ctx context.Context, tx *sql.Tx, userID, bookID int64) (bool, error) {
	var exists bool
	err := tx.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM loans WHERE user_id=? AND book_id=? AND status=?)`,
		userID, bookID, string(LoanActive)).Scan(&exists)
	return exists, err
}
