package library

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"
)

const (
	// LoanPeriod is how long a borrowed copy is kept before it counts as
	// overdue.
	LoanPeriod = 14 * 24 * time.Hour

	// lockTimeout bounds how long a transition waits for a book's lock
	// before failing with ErrLockTimeout.
	lockTimeout = 3 * time.Second
)

// Engine is the sole writer of cross-entity circulation state. Every borrow
// or return runs under the book's exclusive lock and inside one SQLite
// transaction, so the availability counter and the loan set always move
// together or not at all. The engine performs no role checks; ownership of
// a loan on return is the one identity rule it owns.
type Engine struct {
	db    *Database
	locks *lockTable
	now   func() time.Time
}

// NewEngine wires an engine onto the database.
func NewEngine(db *Database) *Engine {
	return &Engine{db: db, locks: newLockTable(), now: time.Now}
}

// Borrow lends one copy of the book to the user. Exactly one of two
// simultaneous borrowers gets the last copy; the other fails with
// ErrUnavailable.
func (e *Engine) Borrow(ctx context.Context, userID, bookID int64) (*Loan, error) {
	release, err := e.locks.acquire(ctx, bookID, lockTimeout)
	if err != nil {
		observeTransition("borrow", err)
		return nil, err
	}
	defer release()

	loan, err := e.borrowLocked(ctx, userID, bookID)
	e.report("borrow", err)
	return loan, err
}

func (e *Engine) borrowLocked(ctx context.Context, userID, bookID int64) (*Loan, error) {
	tx, err := e.db.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	book, err := getBookTx(ctx, tx, bookID)
	if err != nil {
		return nil, err
	}
	if book.AvailableCopies <= 0 {
		return nil, fmt.Errorf("book %d: %w", bookID, ErrUnavailable)
	}
	already, err := activeLoanExistsTx(ctx, tx, userID, bookID)
	if err != nil {
		return nil, err
	}
	if already {
		return nil, fmt.Errorf("user %d already borrowed book %d: %w", userID, bookID, ErrConflict)
	}

	if err := adjustAvailability(ctx, tx, bookID, -1); err != nil {
		return nil, err
	}

	borrowedAt := e.now()
	dueAt := borrowedAt.Add(LoanPeriod)
	loanID, err := createLoanTx(ctx, tx, userID, bookID, borrowedAt, dueAt)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return &Loan{
		ID:         loanID,
		UserID:     userID,
		BookID:     bookID,
		Status:     LoanActive,
		BorrowDate: borrowedAt,
		DueDate:    dueAt,
		BookTitle:  book.Title,
		BookAuthor: book.Author,
	}, nil
}

// Return closes the loan and puts the copy back. Only the borrower (or an
// admin acting on their behalf) may return it, and only once: a second
// return fails with ErrInvalidState and changes nothing.
func (e *Engine) Return(ctx context.Context, caller Identity, loanID int64) (*Loan, error) {
	loan, err := e.db.GetLoan(ctx, loanID)
	if err != nil {
		e.report("return", err)
		return nil, err
	}
	if loan.UserID != caller.UserID && !caller.IsAdmin() {
		err = fmt.Errorf("loan %d belongs to another user: %w", loanID, ErrForbidden)
		e.report("return", err)
		return nil, err
	}
	if loan.Status == LoanReturned {
		err = fmt.Errorf("loan %d already returned: %w", loanID, ErrInvalidState)
		e.report("return", err)
		return nil, err
	}

	release, err := e.locks.acquire(ctx, loan.BookID, lockTimeout)
	if err != nil {
		observeTransition("return", err)
		return nil, err
	}
	defer release()

	returnedAt, err := e.returnLocked(ctx, loan, loanID)
	e.report("return", err)
	if err != nil {
		return nil, err
	}

	loan.Status = LoanReturned
	loan.ReturnDate = &returnedAt
	loan.Overdue = false
	return loan, nil
}

func (e *Engine) returnLocked(ctx context.Context, loan *Loan, loanID int64) (time.Time, error) {
	tx, err := e.db.db.BeginTx(ctx, nil)
	if err != nil {
		return time.Time{}, err
	}
	defer tx.Rollback()

	returnedAt := e.now()
	// The status predicate inside markReturnedTx re-verifies the loan is
	// still active, closing the gap between the unlocked read above and
	// acquiring the lock.
	if err := markReturnedTx(ctx, tx, loanID, returnedAt); err != nil {
		return time.Time{}, err
	}
	if err := adjustAvailability(ctx, tx, loan.BookID, +1); err != nil {
		return time.Time{}, err
	}
	return returnedAt, tx.Commit()
}

// UpdateBook applies an admin patch under the book's lock so the re-derived
// availability cannot race a concurrent borrow or return.
func (e *Engine) UpdateBook(ctx context.Context, bookID int64, patch BookPatch) (*Book, error) {
	release, err := e.locks.acquire(ctx, bookID, lockTimeout)
	if err != nil {
		return nil, err
	}
	defer release()

	tx, err := e.db.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	book, err := updateBookTx(ctx, tx, bookID, patch)
	if err != nil {
		return nil, err
	}
	return book, tx.Commit()
}

// DeleteBook removes a catalog entry; it fails with ErrConflict while
// active loans still reference the book.
func (e *Engine) DeleteBook(ctx context.Context, bookID int64) error {
	release, err := e.locks.acquire(ctx, bookID, lockTimeout)
	if err != nil {
		return err
	}
	defer release()

	tx, err := e.db.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := deleteBookTx(ctx, tx, bookID); err != nil {
		return err
	}
	return tx.Commit()
}

// Stats returns informational snapshot counts. The reads take no lock and
// may trail in-flight transitions slightly.
func (e *Engine) Stats(ctx context.Context) (*Stats, error) {
	var s Stats
	row := e.db.db.QueryRowContext(ctx, `
        SELECT
            (SELECT COUNT(*) FROM books),
            (SELECT COUNT(*) FROM books WHERE available_copies > 0),
            (SELECT COUNT(*) FROM users),
            (SELECT COUNT(*) FROM loans WHERE status=?)`,
		string(LoanActive))
	if err := row.Scan(&s.TotalBooks, &s.AvailableBooks, &s.TotalUsers, &s.ActiveLoans); err != nil {
		return nil, err
	}
	return &s, nil
}

// report records the transition outcome and gives invariant violations the
// operator-attention logging they require. The transition itself has
// already been rolled back by the time we get here.
func (e *Engine) report(op string, err error) {
	observeTransition(op, err)
	if err != nil && errors.Is(err, ErrInvariant) {
		log.Printf("circulation: %s aborted: %v", op, err)
	}
}
