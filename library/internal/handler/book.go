package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/Astemirdum/silent-library/library/internal/errs"
	"github.com/Astemirdum/silent-library/library/internal/model"
)

// ListBooks
// @Summary List the catalog
// @Tags books
// @Produce json
// @Param search query string false "title, author or genre"
// @Success 200 {array} model.Book
// @Router /books [get]
func (h *Handler) ListBooks(c echo.Context) error {
	books, err := h.librarySvc.ListBooks(c.Request().Context(), c.QueryParam("search"))
	if err != nil {
		return h.fail(c, err)
	}
	if books == nil {
		books = make([]model.Book, 0)
	}
	return c.JSON(http.StatusOK, books)
}

// GetBook
// @Summary Book detail
// @Tags books
// @Produce json
// @Param id path int true "book id"
// @Success 200 {object} model.Book
// @Failure 404 {object} Message
// @Router /books/{id} [get]
func (h *Handler) GetBook(c echo.Context) error {
	id, err := paramID(c)
	if err != nil {
		return err
	}
	book, err := h.librarySvc.GetBook(c.Request().Context(), id)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, book)
}

// CreateBook
// @Summary Add a book
// @Tags books
// @Accept json,mpfd
// @Produce json
// @Security Bearer
// @Success 201 {object} model.Book
// @Failure 400 {object} errs.ValidationError
// @Router /books/new [post]
func (h *Handler) CreateBook(c echo.Context) error {
	var form model.BookForm
	if err := bind(c, &form); err != nil {
		return err
	}
	book, err := h.librarySvc.CreateBook(c.Request().Context(), form, upload(c, "cover_pic"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusCreated, book)
}

// UpdateBook
// @Summary Edit a book
// @Tags books
// @Accept json,mpfd
// @Produce json
// @Security Bearer
// @Param id path int true "book id"
// @Success 200 {object} model.Book
// @Failure 400 {object} errs.ValidationError
// @Router /books/{id}/edit [post]
func (h *Handler) UpdateBook(c echo.Context) error {
	id, err := paramID(c)
	if err != nil {
		return err
	}
	var form model.BookForm
	if err := bind(c, &form); err != nil {
		return err
	}
	book, err := h.librarySvc.UpdateBook(c.Request().Context(), id, form, upload(c, "cover_pic"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, book)
}

// BookDeletion
// @Summary Delete confirmation
// @Tags books
// @Produce json
// @Security Bearer
// @Param id path int true "book id"
// @Success 200 {object} model.BookDeletion
// @Router /books/{id}/delete [get]
func (h *Handler) BookDeletion(c echo.Context) error {
	id, err := paramID(c)
	if err != nil {
		return err
	}
	deletion, err := h.librarySvc.BookDeletion(c.Request().Context(), id)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, deletion)
}

// DeleteBook
// @Summary Delete a book
// @Tags books
// @Produce json
// @Security Bearer
// @Param id path int true "book id"
// @Param confirm formData bool true "must be true"
// @Success 200 {object} Message
// @Failure 400 {object} model.BookDeletion
// @Router /books/{id}/delete [post]
func (h *Handler) DeleteBook(c echo.Context) error {
	id, err := paramID(c)
	if err != nil {
		return err
	}
	confirm, _ := strconv.ParseBool(c.FormValue("confirm"))
	if !confirm {
		confirm, _ = strconv.ParseBool(c.QueryParam("confirm"))
	}
	deletion, err := h.librarySvc.DeleteBook(c.Request().Context(), id, confirm)
	if err != nil {
		if errors.Is(err, errs.ErrNotConfirmed) {
			return c.JSON(http.StatusBadRequest, deletion)
		}
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, Message{Message: "'" + deletion.Book.Title + "' deleted successfully!"})
}
