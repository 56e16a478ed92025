package library

import (
	"context"
	"fmt"
)

// Service is the entry point the request layer talks to. It owns the
// role-based capability checks: any call the caller's role does not permit
// fails with ErrForbidden before touching the engine or the stores.
type Service struct {
	db     *Database
	engine *Engine
}

// NewService opens the database at dbPath and wires the circulation engine.
func NewService(dbPath string) (*Service, error) {
	db, err := NewDatabase(dbPath)
	if err != nil {
		return nil, err
	}
	return &Service{db: db, engine: NewEngine(db)}, nil
}

// Close closes the underlying database.
func (s *Service) Close() error { return s.db.Close() }

// DB exposes the store for administrative tooling (CLI bootstrap, seeding).
func (s *Service) DB() *Database { return s.db }

func requireAdmin(caller Identity) error {
	if !caller.IsAdmin() {
		return fmt.Errorf("admin role required: %w", ErrForbidden)
	}
	return nil
}

// ------------------ Catalog ------------------

func (s *Service) GetBook(ctx context.Context, id int64) (*Book, error) {
	return s.db.GetBook(ctx, id)
}

func (s *Service) ListBooks(ctx context.Context, f BookFilter) ([]*Book, error) {
	return s.db.ListBooks(ctx, f)
}

func (s *Service) CreateBook(ctx context.Context, caller Identity, spec BookSpec) (*Book, error) {
	if err := requireAdmin(caller); err != nil {
		return nil, err
	}
	return s.db.CreateBook(ctx, spec)
}

func (s *Service) UpdateBook(ctx context.Context, caller Identity, id int64, patch BookPatch) (*Book, error) {
	if err := requireAdmin(caller); err != nil {
		return nil, err
	}
	return s.engine.UpdateBook(ctx, id, patch)
}

func (s *Service) DeleteBook(ctx context.Context, caller Identity, id int64) error {
	if err := requireAdmin(caller); err != nil {
		return err
	}
	return s.engine.DeleteBook(ctx, id)
}

// ------------------ Circulation ------------------

func (s *Service) Borrow(ctx context.Context, caller Identity, bookID int64) (*Loan, error) {
	return s.engine.Borrow(ctx, caller.UserID, bookID)
}

func (s *Service) Return(ctx context.Context, caller Identity, loanID int64) (*Loan, error) {
	return s.engine.Return(ctx, caller, loanID)
}

// ListLoans returns the caller's own loans; admins see every loan with
// borrower details.
func (s *Service) ListLoans(ctx context.Context, caller Identity) ([]*Loan, error) {
	if caller.IsAdmin() {
		return s.db.ListAllLoans(ctx)
	}
	return s.db.ListLoansByUser(ctx, caller.UserID)
}

// ------------------ Accounts ------------------

// Register creates a student account. Admin accounts are only created
// through the bootstrap CLI or by promoting an existing user.
func (s *Service) Register(ctx context.Context, email, password, fullName string) (*User, error) {
	return s.db.CreateUser(ctx, email, password, fullName, RoleStudent)
}

func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	return s.db.Authenticate(ctx, email, password)
}

func (s *Service) GetUser(ctx context.Context, id int64) (*User, error) {
	return s.db.GetUser(ctx, id)
}

func (s *Service) ListUsers(ctx context.Context, caller Identity) ([]*User, error) {
	if err := requireAdmin(caller); err != nil {
		return nil, err
	}
	return s.db.ListUsers(ctx)
}

func (s *Service) ChangeRole(ctx context.Context, caller Identity, userID int64, role Role) (*User, error) {
	if err := requireAdmin(caller); err != nil {
		return nil, err
	}
	return s.db.UpdateUserRole(ctx, userID, role)
}

// ------------------ Stats ------------------

func (s *Service) Stats(ctx context.Context, caller Identity) (*Stats, error) {
	if err := requireAdmin(caller); err != nil {
		return nil, err
	}
	return s.engine.Stats(ctx)
}
