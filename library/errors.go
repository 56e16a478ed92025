package library

import "errors"

// Sentinel errors for every failure mode a caller is expected to dispatch
// on. Store and engine methods wrap these with context via fmt.Errorf and
// %w, so callers must test with errors.Is.
var (
	// ErrNotFound: the referenced book, user or loan does not exist.
	ErrNotFound = errors.New("not found")

	// ErrForbidden: the caller's role or identity does not permit the
	// operation.
	ErrForbidden = errors.New("forbidden")

	// ErrUnavailable: borrow attempted with no copies left.
	ErrUnavailable = errors.New("no copies available")

	// ErrInvalidState: a loan transition that the lifecycle does not
	// allow, e.g. returning an already-returned loan.
	ErrInvalidState = errors.New("invalid loan state")

	// ErrConflict: the operation clashes with existing records, e.g.
	// deleting a book with active loans or registering a duplicate email.
	ErrConflict = errors.New("conflict")

	// ErrInvariant guards the availability bounds. It signals an internal
	// bug, never caller input: the transition is rolled back and logged,
	// and the process keeps serving.
	ErrInvariant = errors.New("availability invariant violated")

	// ErrLockTimeout: the per-book mutation lock could not be acquired
	// within its bound. Nothing was committed; the caller may retry.
	ErrLockTimeout = errors.New("lock acquisition timed out")

	// ErrCredentials: login with an unknown email or wrong password.
	ErrCredentials = errors.New("invalid credentials")

	// ErrInvalidInput: a structurally valid request with a value the
	// domain rejects, e.g. total_copies below one.
	ErrInvalidInput = errors.New("invalid input")
)
