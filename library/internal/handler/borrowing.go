package handler

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Astemirdum/silent-library/library/internal/model"
)

type BorrowResponse struct {
	Message   string          `json:"message"`
	Borrowing model.Borrowing `json:"borrowing"`
}

type ReturnResponse struct {
	Message string `json:"message"`
	Warning string `json:"warning,omitempty"`
	model.ReturnResult
}

// BorrowBook
// @Summary Borrow a copy
// @Tags borrowings
// @Produce json
// @Security Bearer
// @Param id path int true "book id"
// @Success 201 {object} BorrowResponse
// @Failure 409 {object} Message
// @Router /books/{id}/borrow [post]
func (h *Handler) BorrowBook(c echo.Context) error {
	p, err := profile(c)
	if err != nil {
		return err
	}
	bookID, err := paramID(c)
	if err != nil {
		return err
	}
	br, err := h.librarySvc.BorrowBook(c.Request().Context(), p.UserID, bookID)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusCreated, BorrowResponse{
		Message:   fmt.Sprintf("You have successfully borrowed '%s'!", br.BookTitle),
		Borrowing: br,
	})
}

// ReturnBook
// @Summary Return a borrowed copy
// @Tags borrowings
// @Produce json
// @Security Bearer
// @Param id path int true "borrowing id"
// @Success 200 {object} ReturnResponse
// @Failure 409 {object} Message
// @Router /borrowings/{id}/return [post]
func (h *Handler) ReturnBook(c echo.Context) error {
	p, err := profile(c)
	if err != nil {
		return err
	}
	borrowingID, err := paramID(c)
	if err != nil {
		return err
	}
	res, err := h.librarySvc.ReturnBook(c.Request().Context(), p.UserID, borrowingID)
	if err != nil {
		return h.fail(c, err)
	}
	resp := ReturnResponse{
		Message:      fmt.Sprintf("You have returned '%s' successfully!", res.Borrowing.BookTitle),
		ReturnResult: res,
	}
	if res.Late {
		resp.Warning = fmt.Sprintf("Book returned late. Late fee: $%s", res.LateFee.StringFixed(2))
	}
	return c.JSON(http.StatusOK, resp)
}

// MyBorrowings
// @Summary Caller's borrowings
// @Tags borrowings
// @Produce json
// @Security Bearer
// @Success 200 {object} model.MyBorrowings
// @Router /my-borrowings [get]
func (h *Handler) MyBorrowings(c echo.Context) error {
	p, err := profile(c)
	if err != nil {
		return err
	}
	res, err := h.librarySvc.MyBorrowings(c.Request().Context(), p.UserID)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

// ManageBorrowings
// @Summary All borrowings
// @Tags admin
// @Produce json
// @Security Bearer
// @Param status query string false "BORROWED, RETURNED, OVERDUE or RESERVED"
// @Param search query string false "book title, username or email"
// @Success 200 {object} model.ManagedBorrowings
// @Router /admin/borrowings [get]
func (h *Handler) ManageBorrowings(c echo.Context) error {
	res, err := h.librarySvc.ManageBorrowings(c.Request().Context(), model.BorrowingFilter{
		Status: model.Status(c.QueryParam("status")),
		Search: c.QueryParam("search"),
	})
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

type StatusRequest struct {
	Status model.Status `json:"status" form:"status"`
}

// UpdateBorrowingStatus
// @Summary Override a borrowing status
// @Tags admin
// @Accept json
// @Produce json
// @Security Bearer
// @Param id path int true "borrowing id"
// @Param request body StatusRequest true "new status"
// @Success 200 {object} BorrowResponse
// @Failure 400 {object} errs.ValidationError
// @Router /admin/borrowings/{id}/status [post]
func (h *Handler) UpdateBorrowingStatus(c echo.Context) error {
	id, err := paramID(c)
	if err != nil {
		return err
	}
	var req StatusRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	br, err := h.librarySvc.UpdateBorrowingStatus(c.Request().Context(), id, req.Status)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, BorrowResponse{
		Message:   fmt.Sprintf("Borrowing status updated to %s", br.Status),
		Borrowing: br,
	})
}
