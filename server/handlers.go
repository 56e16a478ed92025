package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"library-server/library"
)

// respondErr maps the domain error taxonomy onto HTTP statuses. Messages
// are surfaced verbatim except for internal failures.
func respondErr(c echo.Context, err error) error {
	var status int
	switch {
	case errors.Is(err, library.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, library.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, library.ErrUnavailable), errors.Is(err, library.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, library.ErrInvalidState):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, library.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, library.ErrCredentials):
		status = http.StatusUnauthorized
	case errors.Is(err, library.ErrLockTimeout),
		errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		// Nothing was committed; the client may safely retry.
		status = http.StatusServiceUnavailable
	default:
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
	return c.JSON(status, echo.Map{"error": err.Error()})
}

func pathID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

// ------------------ Books ------------------

func (s *Server) listBooks(c echo.Context) error {
	filter := library.BookFilter{
		Search:        c.QueryParam("search"),
		Category:      c.QueryParam("category"),
		AvailableOnly: c.QueryParam("available_only") == "true",
	}
	books, err := s.svc.ListBooks(c.Request().Context(), filter)
	if err != nil {
		return respondErr(c, err)
	}
	if books == nil {
		books = []*library.Book{}
	}
	return c.JSON(http.StatusOK, books)
}

func (s *Server) getBook(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	book, err := s.svc.GetBook(c.Request().Context(), id)
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(http.StatusOK, book)
}

func (s *Server) createBook(c echo.Context) error {
	var spec library.BookSpec
	if err := c.Bind(&spec); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if spec.Title == "" || spec.Author == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "missing required fields")
	}
	// A request that omits total_copies means a single copy; negative
	// counts are rejected downstream.
	if spec.TotalCopies == 0 {
		spec.TotalCopies = 1
	}
	book, err := s.svc.CreateBook(c.Request().Context(), caller(c), spec)
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(http.StatusCreated, book)
}

func (s *Server) updateBook(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var patch library.BookPatch
	if err := c.Bind(&patch); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	book, err := s.svc.UpdateBook(c.Request().Context(), caller(c), id, patch)
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(http.StatusOK, book)
}

func (s *Server) deleteBook(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	if err := s.svc.DeleteBook(c.Request().Context(), caller(c), id); err != nil {
		return respondErr(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "book deleted"})
}

// ------------------ Loans ------------------

func (s *Server) listLoans(c echo.Context) error {
	loans, err := s.svc.ListLoans(c.Request().Context(), caller(c))
	if err != nil {
		return respondErr(c, err)
	}
	if loans == nil {
		loans = []*library.Loan{}
	}
	return c.JSON(http.StatusOK, loans)
}

type borrowRequest struct {
	BookID int64 `json:"book_id"`
}

func (s *Server) borrow(c echo.Context) error {
	var req borrowRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.BookID == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "missing book_id")
	}
	loan, err := s.svc.Borrow(c.Request().Context(), caller(c), req.BookID)
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(http.StatusCreated, loan)
}

func (s *Server) returnLoan(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	loan, err := s.svc.Return(c.Request().Context(), caller(c), id)
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(http.StatusOK, loan)
}

// ------------------ Users ------------------

func (s *Server) listUsers(c echo.Context) error {
	users, err := s.svc.ListUsers(c.Request().Context(), caller(c))
	if err != nil {
		return respondErr(c, err)
	}
	if users == nil {
		users = []*library.User{}
	}
	return c.JSON(http.StatusOK, users)
}

type updateUserRequest struct {
	Role string `json:"role"`
}

func (s *Server) updateUser(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req updateUserRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Role == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "missing role field")
	}
	user, err := s.svc.ChangeRole(c.Request().Context(), caller(c), id, library.Role(req.Role))
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(http.StatusOK, user)
}

// ------------------ Stats ------------------

func (s *Server) stats(c echo.Context) error {
	stats, err := s.svc.Stats(c.Request().Context(), caller(c))
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(http.StatusOK, stats)
}
