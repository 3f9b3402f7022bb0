package handler

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Astemirdum/silent-library/library/internal/model"
)

type UserResponse struct {
	Message string     `json:"message"`
	User    model.User `json:"user"`
}

// UserDashboard
// @Summary Users with totals
// @Tags admin
// @Produce json
// @Security Bearer
// @Success 200 {object} model.UserDashboard
// @Router /admin/users [get]
func (h *Handler) UserDashboard(c echo.Context) error {
	d, err := h.librarySvc.UserDashboard(c.Request().Context())
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, d)
}

// CreateUser
// @Summary Add a user
// @Tags admin
// @Accept json
// @Produce json
// @Security Bearer
// @Param request body model.UserCreateForm true "new user"
// @Success 201 {object} UserResponse
// @Failure 400 {object} errs.ValidationError
// @Router /admin/users [post]
func (h *Handler) CreateUser(c echo.Context) error {
	var form model.UserCreateForm
	if err := bind(c, &form); err != nil {
		return err
	}
	user, err := h.librarySvc.CreateUser(c.Request().Context(), form)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusCreated, UserResponse{Message: "New user created successfully!", User: user})
}

// GetUser
// @Summary User detail
// @Tags admin
// @Produce json
// @Security Bearer
// @Param id path int true "user id"
// @Success 200 {object} model.User
// @Router /admin/users/{id} [get]
func (h *Handler) GetUser(c echo.Context) error {
	id, err := paramID(c)
	if err != nil {
		return err
	}
	user, err := h.librarySvc.GetUser(c.Request().Context(), id)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, user)
}

// UpdateUser
// @Summary Edit a user
// @Tags admin
// @Accept json
// @Produce json
// @Security Bearer
// @Param id path int true "user id"
// @Param request body model.UserEditForm true "fields"
// @Success 200 {object} UserResponse
// @Router /admin/users/{id} [post]
func (h *Handler) UpdateUser(c echo.Context) error {
	id, err := paramID(c)
	if err != nil {
		return err
	}
	var form model.UserEditForm
	if err := bind(c, &form); err != nil {
		return err
	}
	user, err := h.librarySvc.UpdateUser(c.Request().Context(), id, form)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, UserResponse{Message: fmt.Sprintf("User %s updated!", user.Username), User: user})
}

// DeleteUser
// @Summary Delete a user with everything they own
// @Tags admin
// @Produce json
// @Security Bearer
// @Param id path int true "user id"
// @Success 200 {object} Message
// @Failure 409 {object} Message
// @Router /admin/users/{id}/delete [post]
func (h *Handler) DeleteUser(c echo.Context) error {
	p, err := profile(c)
	if err != nil {
		return err
	}
	id, err := paramID(c)
	if err != nil {
		return err
	}
	if err := h.librarySvc.DeleteUser(c.Request().Context(), p.UserID, id); err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, Message{Message: "User deleted successfully."})
}
