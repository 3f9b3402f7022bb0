package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Astemirdum/silent-library/library/internal/model"
	"github.com/Astemirdum/silent-library/pkg/auth"
)

type RegisterResponse struct {
	Message string     `json:"message"`
	User    model.User `json:"user"`
}

// Register
// @Summary Create a member account
// @Tags auth
// @Accept json,mpfd
// @Produce json
// @Param request body model.RegisterForm true "registration"
// @Success 201 {object} RegisterResponse
// @Failure 400 {object} errs.ValidationError
// @Router /register [post]
func (h *Handler) Register(c echo.Context) error {
	var form model.RegisterForm
	if err := bind(c, &form); err != nil {
		return err
	}
	user, err := h.librarySvc.Register(c.Request().Context(), form, upload(c, "profile_pic"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusCreated, RegisterResponse{
		Message: "Registration successful! A confirmation email has been sent.",
		User:    user,
	})
}

// Login
// @Summary Issue an access token
// @Tags auth
// @Accept json
// @Produce json
// @Param request body model.LoginForm true "credentials"
// @Success 200 {object} model.LoginResult
// @Failure 401 {object} Message
// @Router /login [post]
func (h *Handler) Login(c echo.Context) error {
	var form model.LoginForm
	if err := bind(c, &form); err != nil {
		return err
	}
	res, err := h.librarySvc.Login(c.Request().Context(), form)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

// Logout
// @Summary Revoke the current token
// @Tags auth
// @Produce json
// @Security Bearer
// @Success 200 {object} Message
// @Router /logout [post]
func (h *Handler) Logout(c echo.Context) error {
	claims, err := auth.GetClaims(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	}
	if err := h.librarySvc.Logout(c.Request().Context(), claims); err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, Message{Message: "You have been logged out."})
}
