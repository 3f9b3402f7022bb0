package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Astemirdum/silent-library/library/internal/model"
)

type ReviewResponse struct {
	Message string       `json:"message"`
	Review  model.Review `json:"review"`
}

// ReviewDraft
// @Summary Review form with the caller's existing review
// @Tags reviews
// @Produce json
// @Security Bearer
// @Param id path int true "book id"
// @Success 200 {object} model.ReviewDraft
// @Failure 409 {object} Message
// @Router /books/{id}/review [get]
func (h *Handler) ReviewDraft(c echo.Context) error {
	p, err := profile(c)
	if err != nil {
		return err
	}
	bookID, err := paramID(c)
	if err != nil {
		return err
	}
	draft, err := h.librarySvc.ReviewDraft(c.Request().Context(), p.UserID, bookID)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, draft)
}

// SubmitReview
// @Summary Rate and review a returned book
// @Tags reviews
// @Accept json
// @Produce json
// @Security Bearer
// @Param id path int true "book id"
// @Param request body model.ReviewForm true "rating 1-5, comment up to 500 characters"
// @Success 200 {object} ReviewResponse
// @Failure 400 {object} errs.ValidationError
// @Router /books/{id}/review [post]
func (h *Handler) SubmitReview(c echo.Context) error {
	p, err := profile(c)
	if err != nil {
		return err
	}
	bookID, err := paramID(c)
	if err != nil {
		return err
	}
	var form model.ReviewForm
	if err := bind(c, &form); err != nil {
		return err
	}
	review, err := h.librarySvc.SubmitReview(c.Request().Context(), p.UserID, bookID, form)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, ReviewResponse{Message: "Thank you for your review!", Review: review})
}

// BookReviews
// @Summary Reviews of a book
// @Tags reviews
// @Produce json
// @Param id path int true "book id"
// @Success 200 {object} model.BookReviews
// @Router /books/{id}/reviews [get]
func (h *Handler) BookReviews(c echo.Context) error {
	bookID, err := paramID(c)
	if err != nil {
		return err
	}
	var viewerID int64
	if p, err := profile(c); err == nil {
		viewerID = p.UserID
	}
	res, err := h.librarySvc.BookReviews(c.Request().Context(), bookID, viewerID)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, res)
}
