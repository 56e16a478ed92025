package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"library-server/library"
)

func newTestServer(t *testing.T) (*Server, *library.Service) {
	t.Helper()
	svc, err := library.NewService(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { svc.Close() })
	return New(svc, []byte("test-secret")), svc
}

func doJSON(t *testing.T, srv *Server, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

type authResponse struct {
	AccessToken string       `json:"access_token"`
	User        library.User `json:"user"`
}

func registerUser(t *testing.T, srv *Server, email string) authResponse {
	t.Helper()
	rec := doJSON(t, srv, http.MethodPost, "/api/auth/register", "", map[string]string{
		"email": email, "password": "pw", "full_name": "Test User",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp authResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

// registerAdmin registers a user, promotes it directly in the store, and
// logs in again so the fresh token carries the admin role.
func registerAdmin(t *testing.T, srv *Server, svc *library.Service, email string) authResponse {
	t.Helper()
	first := registerUser(t, srv, email)
	_, err := svc.DB().UpdateUserRole(context.Background(), first.User.ID, library.RoleAdmin)
	require.NoError(t, err)

	rec := doJSON(t, srv, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": email, "password": "pw",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp authResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doJSON(t, srv, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")
}

func TestAuthRequired(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodGet, "/api/books", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(t, srv, http.MethodGet, "/api/books", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRegisterAndLogin(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := registerUser(t, srv, "alice@example.com")
	assert.NotEmpty(t, resp.AccessToken)
	assert.Equal(t, library.RoleStudent, resp.User.Role)

	// Duplicate email is a conflict.
	rec := doJSON(t, srv, http.MethodPost, "/api/auth/register", "", map[string]string{
		"email": "alice@example.com", "password": "pw", "full_name": "Other",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doJSON(t, srv, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "alice@example.com", "password": "wrong",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(t, srv, http.MethodGet, "/api/auth/me", resp.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var me library.User
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &me))
	assert.Equal(t, "alice@example.com", me.Email)
}

func TestBookManagement(t *testing.T) {
	srv, svc := newTestServer(t)
	admin := registerAdmin(t, srv, svc, "admin@example.com")
	student := registerUser(t, srv, "student@example.com")

	spec := map[string]any{"title": "Dune", "author": "Herbert", "category": "Fiction", "total_copies": 2}

	// Students cannot touch the catalog.
	rec := doJSON(t, srv, http.MethodPost, "/api/books", student.AccessToken, spec)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = doJSON(t, srv, http.MethodPost, "/api/books", admin.AccessToken, spec)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var book library.Book
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &book))
	assert.Equal(t, 2, book.AvailableCopies)

	rec = doJSON(t, srv, http.MethodGet, "/api/books?search=dune&available_only=true", student.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var books []library.Book
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &books))
	require.Len(t, books, 1)
	assert.Equal(t, "Dune", books[0].Title)

	rec = doJSON(t, srv, http.MethodGet, "/api/books/9999", student.AccessToken, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, srv, http.MethodPut, fmt.Sprintf("/api/books/%d", book.ID), admin.AccessToken,
		map[string]any{"description": "Spice opera"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, srv, http.MethodDelete, fmt.Sprintf("/api/books/%d", book.ID), student.AccessToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = doJSON(t, srv, http.MethodDelete, fmt.Sprintf("/api/books/%d", book.ID), admin.AccessToken, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCreateBookCopyCount(t *testing.T) {
	srv, svc := newTestServer(t)
	admin := registerAdmin(t, srv, svc, "admin@example.com")

	// Omitting total_copies means a single copy.
	rec := doJSON(t, srv, http.MethodPost, "/api/books", admin.AccessToken,
		map[string]any{"title": "Singleton", "author": "Solo"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var book library.Book
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &book))
	assert.Equal(t, 1, book.TotalCopies)
	assert.Equal(t, 1, book.AvailableCopies)

	rec = doJSON(t, srv, http.MethodPost, "/api/books", admin.AccessToken,
		map[string]any{"title": "Negative", "author": "Space", "total_copies": -2})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestErrorStatusMapping(t *testing.T) {
	e := echo.New()
	cases := []struct {
		err  error
		want int
	}{
		{library.ErrNotFound, http.StatusNotFound},
		{library.ErrForbidden, http.StatusForbidden},
		{library.ErrUnavailable, http.StatusConflict},
		{library.ErrConflict, http.StatusConflict},
		{library.ErrInvalidState, http.StatusUnprocessableEntity},
		{library.ErrInvalidInput, http.StatusBadRequest},
		{library.ErrCredentials, http.StatusUnauthorized},
		{library.ErrLockTimeout, http.StatusServiceUnavailable},
		// A request deadline hit while waiting on a book lock is just as
		// retryable as the bounded lock timeout.
		{fmt.Errorf("waiting for book 1 lock: %w", context.DeadlineExceeded), http.StatusServiceUnavailable},
		{context.Canceled, http.StatusServiceUnavailable},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		require.NoError(t, respondErr(c, tc.err))
		assert.Equal(t, tc.want, rec.Code, "error: %v", tc.err)
	}
}

func TestBorrowAndReturnFlow(t *testing.T) {
	srv, svc := newTestServer(t)
	admin := registerAdmin(t, srv, svc, "admin@example.com")
	alice := registerUser(t, srv, "alice@example.com")
	bob := registerUser(t, srv, "bob@example.com")

	rec := doJSON(t, srv, http.MethodPost, "/api/books", admin.AccessToken,
		map[string]any{"title": "Solo Copy", "author": "One", "total_copies": 1})
	require.Equal(t, http.StatusCreated, rec.Code)
	var book library.Book
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &book))

	// Alice gets the only copy.
	rec = doJSON(t, srv, http.MethodPost, "/api/loans", alice.AccessToken, map[string]any{"book_id": book.ID})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var loan library.Loan
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &loan))
	assert.Equal(t, library.LoanActive, loan.Status)
	assert.Equal(t, "Solo Copy", loan.BookTitle)

	// Alice can't borrow the same title twice; Bob finds it unavailable.
	rec = doJSON(t, srv, http.MethodPost, "/api/loans", alice.AccessToken, map[string]any{"book_id": book.ID})
	assert.Equal(t, http.StatusConflict, rec.Code)
	rec = doJSON(t, srv, http.MethodPost, "/api/loans", bob.AccessToken, map[string]any{"book_id": book.ID})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doJSON(t, srv, http.MethodPost, "/api/loans", alice.AccessToken, map[string]any{"book_id": 9999})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	returnPath := fmt.Sprintf("/api/loans/%d/return", loan.ID)

	// Bob cannot return Alice's loan.
	rec = doJSON(t, srv, http.MethodPost, returnPath, bob.AccessToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = doJSON(t, srv, http.MethodPost, returnPath, alice.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var returned library.Loan
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &returned))
	assert.Equal(t, library.LoanReturned, returned.Status)
	require.NotNil(t, returned.ReturnDate)

	// A second return is an invalid transition, not a no-op.
	rec = doJSON(t, srv, http.MethodPost, returnPath, alice.AccessToken, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	// Alice sees her closed loan; the admin listing carries her email.
	rec = doJSON(t, srv, http.MethodGet, "/api/loans", alice.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var loans []library.Loan
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &loans))
	require.Len(t, loans, 1)

	rec = doJSON(t, srv, http.MethodGet, "/api/loans", admin.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &loans))
	require.Len(t, loans, 1)
	assert.Equal(t, "alice@example.com", loans[0].UserEmail)
}

func TestUsersAndStats(t *testing.T) {
	srv, svc := newTestServer(t)
	admin := registerAdmin(t, srv, svc, "admin@example.com")
	student := registerUser(t, srv, "student@example.com")

	rec := doJSON(t, srv, http.MethodGet, "/api/users", student.AccessToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = doJSON(t, srv, http.MethodGet, "/api/stats", student.AccessToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = doJSON(t, srv, http.MethodGet, "/api/users", admin.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var users []library.User
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &users))
	assert.Len(t, users, 2)

	userPath := fmt.Sprintf("/api/users/%d", student.User.ID)
	rec = doJSON(t, srv, http.MethodPut, userPath, admin.AccessToken, map[string]string{"role": "admin"})
	require.Equal(t, http.StatusOK, rec.Code)
	var promoted library.User
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &promoted))
	assert.Equal(t, library.RoleAdmin, promoted.Role)

	rec = doJSON(t, srv, http.MethodPut, userPath, admin.AccessToken, map[string]string{"role": "librarian"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, srv, http.MethodGet, "/api/stats", admin.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var stats library.Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 2, stats.TotalUsers)
	assert.Equal(t, 0, stats.ActiveLoans)
}
