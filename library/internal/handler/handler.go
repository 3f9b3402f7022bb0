package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	echoSwagger "github.com/swaggo/echo-swagger"
	"go.uber.org/zap"

	"github.com/Astemirdum/silent-library/library/internal/errs"
	"github.com/Astemirdum/silent-library/pkg/auth"
	"github.com/Astemirdum/silent-library/pkg/filestore"
	md "github.com/Astemirdum/silent-library/pkg/middleware"
	"github.com/Astemirdum/silent-library/pkg/validate"
	_ "github.com/Astemirdum/silent-library/swagger"
)

const bodyLimit = "16M"

type Handler struct {
	librarySvc LibraryService
	tokens     md.TokenParser
	revoked    md.RevocationChecker
	profiles   md.ProfileLoader
	mediaRoot  string
	log        *zap.Logger
}

func New(
	librarySvc LibraryService,
	tokens md.TokenParser,
	revoked md.RevocationChecker,
	profiles md.ProfileLoader,
	mediaRoot string,
	log *zap.Logger,
) *Handler {
	return &Handler{
		librarySvc: librarySvc,
		tokens:     tokens,
		revoked:    revoked,
		profiles:   profiles,
		mediaRoot:  mediaRoot,
		log:        log.Named("handler"),
	}
}

func (h *Handler) NewRouter() *echo.Echo {
	e := echo.New()
	const (
		baseRPS = 10
		apiRPS  = 100
	)
	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		StackSize: 4 << 10, // 4 KB
	}))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{http.MethodGet, http.MethodOptions, http.MethodHead, http.MethodPut, http.MethodPatch, http.MethodPost, http.MethodDelete},
		AllowCredentials: true,
	}))
	// Above the 5MB picture cap so oversized uploads reach the form validation.
	e.Use(middleware.BodyLimit(bodyLimit))

	base := e.Group("", md.NewRateLimiter(baseRPS))
	base.GET("/manage/health", h.Health)
	base.GET("/swagger/*", echoSwagger.WrapHandler)
	if h.mediaRoot != "" {
		base.Static("/media", h.mediaRoot)
	}

	e.Validator = validate.NewCustomValidator()

	api := e.Group("/api/v1",
		middleware.RequestLoggerWithConfig(md.RequestLoggerConfig(h.log)),
		middleware.RequestID(),
		md.NewRateLimiter(apiRPS),
	)

	public := api.Group("", md.OptionalAuthentication(h.tokens, h.revoked, h.log))
	public.GET("/books", h.ListBooks)
	public.GET("/books/:id", h.GetBook)
	public.GET("/books/:id/reviews", h.BookReviews)
	public.POST("/register", h.Register)
	public.POST("/login", h.Login)

	member := api.Group("",
		md.JwtAuthentication(h.tokens, h.revoked, h.log),
		md.RefreshProfile(h.profiles, h.log),
	)
	member.POST("/logout", h.Logout)
	member.POST("/books/:id/borrow", h.BorrowBook)
	member.POST("/borrowings/:id/return", h.ReturnBook)
	member.GET("/my-borrowings", h.MyBorrowings)
	member.GET("/books/:id/review", h.ReviewDraft)
	member.POST("/books/:id/review", h.SubmitReview)
	member.GET("/profile", h.Profile)
	member.POST("/profile", h.UpdateProfile)

	staff := member.Group("", md.RequireRole(auth.RoleStaff, auth.RoleAdmin))
	staff.POST("/books/new", h.CreateBook)
	staff.POST("/books/:id/edit", h.UpdateBook)
	staff.GET("/books/:id/delete", h.BookDeletion)
	staff.POST("/books/:id/delete", h.DeleteBook)
	staff.GET("/admin/borrowings", h.ManageBorrowings)
	staff.POST("/admin/borrowings/:id/status", h.UpdateBorrowingStatus)

	admin := member.Group("/admin/users", md.RequireRole(auth.RoleAdmin))
	admin.GET("", h.UserDashboard)
	admin.POST("", h.CreateUser)
	admin.GET("/:id", h.GetUser)
	admin.POST("/:id", h.UpdateUser)
	admin.POST("/:id/delete", h.DeleteUser)

	return e
}

func (h *Handler) Health(c echo.Context) error {
	return c.String(http.StatusOK, "OK")
}

// Message is the body of plain success and failure responses.
type Message struct {
	Message string `json:"message"`
}

// fail maps service errors onto responses.
func (h *Handler) fail(c echo.Context, err error) error {
	if ve, ok := errs.AsValidation(err); ok {
		return c.JSON(http.StatusBadRequest, ve)
	}
	switch {
	case errors.Is(err, errs.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, errs.ErrNotFound.Error())
	case errors.Is(err, errs.ErrInvalidCredentials):
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	case errors.Is(err, errs.ErrPictureTooLarge),
		errors.Is(err, errs.ErrNotConfirmed):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, errs.ErrUnavailable),
		errors.Is(err, errs.ErrAlreadyBorrowed),
		errors.Is(err, errs.ErrBorrowLimit),
		errors.Is(err, errs.ErrAlreadyReturned),
		errors.Is(err, errs.ErrReviewNotAllowed),
		errors.Is(err, errs.ErrSelfDelete):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	h.log.Error("request failed", zap.String("path", c.Path()), zap.Error(err))
	return echo.NewHTTPError(http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
}

func paramID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func profile(c echo.Context) (auth.Profile, error) {
	p, err := auth.GetProfile(c.Request().Context())
	if err != nil {
		return auth.Profile{}, echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	}
	return p, nil
}

// upload returns nil when the request carries no file under field.
func upload(c echo.Context, field string) *filestore.Upload {
	fh, err := c.FormFile(field)
	if err != nil {
		return nil
	}
	return filestore.FromFileHeader(fh)
}

func bind(c echo.Context, v any) error {
	if err := c.Bind(v); err != nil {
		var he *echo.HTTPError
		if errors.As(err, &he) {
			return he
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}
