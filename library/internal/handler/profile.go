package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Astemirdum/silent-library/library/internal/model"
)

type ProfileResponse struct {
	Message string `json:"message"`
	model.ProfilePage
}

// Profile
// @Summary Caller's profile with reading stats
// @Tags profile
// @Produce json
// @Security Bearer
// @Success 200 {object} model.ProfilePage
// @Router /profile [get]
func (h *Handler) Profile(c echo.Context) error {
	p, err := profile(c)
	if err != nil {
		return err
	}
	page, err := h.librarySvc.Profile(c.Request().Context(), p.UserID)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, page)
}

// UpdateProfile
// @Summary Edit bio, names and picture
// @Tags profile
// @Accept json,mpfd
// @Produce json
// @Security Bearer
// @Success 200 {object} ProfileResponse
// @Router /profile [post]
func (h *Handler) UpdateProfile(c echo.Context) error {
	p, err := profile(c)
	if err != nil {
		return err
	}
	var form model.ProfileForm
	if err := bind(c, &form); err != nil {
		return err
	}
	page, err := h.librarySvc.UpdateProfile(c.Request().Context(), p.UserID, form, upload(c, "profile_pic"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, ProfileResponse{
		Message:     "Your profile has been updated successfully.",
		ProfilePage: page,
	})
}
