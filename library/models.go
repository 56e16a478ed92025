package library

import "time"

// Role is a user's permission level. Students can only circulate books they
// borrowed themselves; admins manage the catalog and accounts.
type Role string

const (
	RoleStudent Role = "student"
	RoleAdmin   Role = "admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool { return r == RoleStudent || r == RoleAdmin }

// LoanStatus tracks the loan lifecycle. A loan is created active and moves
// to returned exactly once; there are no other states.
type LoanStatus string

const (
	LoanActive   LoanStatus = "active"
	LoanReturned LoanStatus = "returned"
)

// Book is a catalog entry. AvailableCopies is maintained by the circulation
// engine and always stays within [0, TotalCopies].
type Book struct {
	ID              int64     `json:"id"`
	ISBN            string    `json:"isbn"`
	Title           string    `json:"title"`
	Author          string    `json:"author"`
	Category        string    `json:"category"`
	Description     string    `json:"description"`
	TotalCopies     int       `json:"total_copies"`
	AvailableCopies int       `json:"available_copies"`
	CreatedAt       time.Time `json:"created_at"`
}

// User is a registered account.
type User struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	FullName     string    `json:"full_name"`
	Role         Role      `json:"role"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Loan records one borrowed copy. Overdue is derived from DueDate on every
// read and never stored. The book/user columns are joined in for listings;
// they are empty on rows loaded without the join.
type Loan struct {
	ID         int64      `json:"id"`
	UserID     int64      `json:"user_id"`
	BookID     int64      `json:"book_id"`
	Status     LoanStatus `json:"status"`
	BorrowDate time.Time  `json:"borrow_date"`
	DueDate    time.Time  `json:"due_date"`
	ReturnDate *time.Time `json:"return_date"`
	Overdue    bool       `json:"overdue"`

	BookTitle    string `json:"title,omitempty"`
	BookAuthor   string `json:"author,omitempty"`
	UserEmail    string `json:"email,omitempty"`
	UserFullName string `json:"full_name,omitempty"`
}

// Identity is the resolved (user, role) pair for one request. The HTTP layer
// owns token verification; everything below it only sees this.
type Identity struct {
	UserID int64
	Role   Role
}

// IsAdmin reports whether the identity carries the admin role.
func (id Identity) IsAdmin() bool { return id.Role == RoleAdmin }

// BookSpec is the payload for creating a book. AvailableCopies starts equal
// to TotalCopies.
type BookSpec struct {
	ISBN        string `json:"isbn"`
	Title       string `json:"title"`
	Author      string `json:"author"`
	Category    string `json:"category"`
	Description string `json:"description"`
	TotalCopies int    `json:"total_copies"`
}

// BookPatch updates descriptive fields of a book; nil fields are left
// untouched. AvailableCopies is deliberately absent: it is re-derived from
// TotalCopies minus the active loan count, never set directly.
type BookPatch struct {
	ISBN        *string `json:"isbn"`
	Title       *string `json:"title"`
	Author      *string `json:"author"`
	Category    *string `json:"category"`
	Description *string `json:"description"`
	TotalCopies *int    `json:"total_copies"`
}

// BookFilter narrows a catalog listing; all set predicates must match.
type BookFilter struct {
	Search        string // case-insensitive substring over title/author/isbn
	Category      string // exact match
	AvailableOnly bool   // available_copies > 0
}

// Stats is an informational snapshot; the counts are read without the
// per-book lock and may trail in-flight transitions.
type Stats struct {
	TotalBooks     int `json:"total_books"`
	AvailableBooks int `json:"available_books"`
	TotalUsers     int `json:"total_users"`
	ActiveLoans    int `json:"active_loans"`
}
