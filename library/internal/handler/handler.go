package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	echoSwagger "github.com/swaggo/echo-swagger"
	"go.uber.org/zap"

	_ "github.com/Astemirdum/library-admin/docs"
	"github.com/Astemirdum/library-admin/library/internal/client"
	"github.com/Astemirdum/library-admin/library/internal/errs"
	"github.com/Astemirdum/library-admin/library/internal/model"
	"github.com/Astemirdum/library-admin/library/internal/service"
	"github.com/Astemirdum/library-admin/library/internal/session"
	md "github.com/Astemirdum/library-admin/pkg/middleware"
	"github.com/Astemirdum/library-admin/pkg/validate"
)

type Handler struct {
	librarySvc LibraryService
	statsSvc   StatsService
	authSvc    AuthService
	log        *zap.Logger
}

func New(librarySvc LibraryService, statsSvc StatsService, authSvc AuthService, log *zap.Logger) *Handler {
	return &Handler{
		librarySvc: librarySvc,
		statsSvc:   statsSvc,
		authSvc:    authSvc,
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

	base := e.Group("", md.NewRateLimiter(baseRPS))
	base.GET("/manage/health", h.Health)
	base.GET("/swagger/*", echoSwagger.WrapHandler)

	e.Validator = validate.NewCustomValidator()
	api := e.Group("/api/v1",
		middleware.RequestLoggerWithConfig(md.RequestLoggerConfig(h.log)),
		middleware.RequestID(),
		md.NewRateLimiter(apiRPS),
	)
	api.POST("/auth/sign-in", h.SignIn)
	api.GET("/auth/session", h.GetSession)

	api = api.Group("", md.Session(h.authorize))
	api.POST("/auth/sign-out", h.SignOut)

	api.GET("/libraries", h.GetLibraries)
	api.POST("/libraries", h.CreateLibrary)
	api.GET("/libraries/:libraryId", h.GetLibrary)
	api.PUT("/libraries/:libraryId", h.UpdateLibrary)
	api.DELETE("/libraries/:libraryId", h.DeleteLibrary)

	lib := api.Group("/libraries/:libraryId")
	lib.GET("/books", h.GetBooks)
	lib.POST("/books", h.AddBook)
	lib.GET("/books/:id", h.GetBook)
	lib.PUT("/books/:id", h.UpdateBook)
	lib.DELETE("/books/:id", h.DeleteBook)

	lib.GET("/members", h.GetMembers)
	lib.POST("/members", h.AddMember)
	lib.GET("/members/next-code", h.NextMemberCode)
	lib.GET("/members/:id", h.GetMember)
	lib.PUT("/members/:id", h.UpdateMember)
	lib.DELETE("/members/:id", h.DeleteMember)

	lib.GET("/issues", h.GetIssues)
	lib.POST("/issues", h.IssueBook)
	lib.POST("/issues/:id/return", h.ReturnBook)

	lib.GET("/stats", h.GetStats)

	return e
}

// authorize binds the user behind token to the request context.
func (h *Handler) authorize(ctx context.Context, token string) (context.Context, error) {
	u, err := h.authSvc.Authorize(ctx, token)
	if err != nil {
		return ctx, err
	}
	if u.ID == "" {
		return ctx, errs.ErrNotSignedIn
	}
	return session.NewContext(ctx, model.Session{AccessToken: token, User: u}), nil
}

// httpError maps service errors to status codes.
func httpError(err error) error {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, errs.ErrNotSignedIn),
		errors.Is(err, session.ErrInvalidToken):
		code = http.StatusUnauthorized
	case errors.Is(err, errs.ErrNotFound),
		errors.Is(err, errs.ErrBookNotFound),
		errors.Is(err, errs.ErrMemberNotFound):
		code = http.StatusNotFound
	case errors.Is(err, errs.ErrDuplicateName),
		errors.Is(err, errs.ErrDuplicateCode),
		errors.Is(err, errs.ErrDuplicateEmail),
		errors.Is(err, errs.ErrBookIssued),
		errors.Is(err, errs.ErrMemberHasIssues),
		errors.Is(err, errs.ErrAlreadyIssued),
		errors.Is(err, errs.ErrAlreadyReturned):
		code = http.StatusConflict
	case errors.Is(err, errs.ErrInvalidLibrary),
		errors.Is(err, errs.ErrInvalidPhone),
		errors.Is(err, errs.ErrInvalidPrice):
		code = http.StatusBadRequest
	}
	return echo.NewHTTPError(code, err.Error())
}

func intParam(c echo.Context, name string) (int, error) {
	v, err := strconv.Atoi(c.Param(name))
	if err != nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, name+" is invalid")
	}
	return v, nil
}

func (h *Handler) Health(c echo.Context) error {
	return c.String(http.StatusOK, "OK")
}

// Auth

func (h *Handler) SignIn(c echo.Context) error {
	var req client.Credentials
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(req); err != nil {
		return err
	}
	_, s, err := h.authSvc.SignIn(c.Request().Context(), req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, s)
}

func (h *Handler) SignOut(c echo.Context) error {
	ctx := c.Request().Context()
	if err := h.authSvc.SignOut(ctx); err != nil {
		return httpError(err)
	}
	if _, err := h.statsSvc.Switch(ctx, ""); err != nil {
		h.log.Warn("stop stats", zap.Error(err))
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) GetSession(c echo.Context) error {
	s, err := h.authSvc.GetSession(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	if s == nil {
		return c.NoContent(http.StatusNoContent)
	}
	return c.JSON(http.StatusOK, s)
}

// Libraries

func (h *Handler) GetLibraries(c echo.Context) error {
	libs, err := h.librarySvc.ListLibraries(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, libs)
}

func (h *Handler) GetLibrary(c echo.Context) error {
	lib, err := h.librarySvc.GetLibrary(c.Request().Context(), c.Param("libraryId"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, lib)
}

func (h *Handler) CreateLibrary(c echo.Context) error {
	var req service.LibraryInput
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(req); err != nil {
		return err
	}
	lib, err := h.librarySvc.CreateLibrary(c.Request().Context(), req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, lib)
}

func (h *Handler) UpdateLibrary(c echo.Context) error {
	var req service.LibraryInput
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(req); err != nil {
		return err
	}
	lib, err := h.librarySvc.UpdateLibrary(c.Request().Context(), c.Param("libraryId"), req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, lib)
}

func (h *Handler) DeleteLibrary(c echo.Context) error {
	ctx := c.Request().Context()
	libraryID := c.Param("libraryId")
	if err := h.librarySvc.DeleteLibrary(ctx, libraryID); err != nil {
		return httpError(err)
	}
	if h.statsSvc.LibraryID(ctx) == libraryID {
		if _, err := h.statsSvc.Switch(ctx, ""); err != nil {
			h.log.Warn("stop stats", zap.Error(err))
		}
	}
	return c.NoContent(http.StatusNoContent)
}

// Books

func (h *Handler) GetBooks(c echo.Context) error {
	books, err := h.librarySvc.ListBooks(c.Request().Context(), c.Param("libraryId"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, books)
}

func (h *Handler) GetBook(c echo.Context) error {
	id, err := intParam(c, "id")
	if err != nil {
		return err
	}
	book, err := h.librarySvc.GetBook(c.Request().Context(), c.Param("libraryId"), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, book)
}

func (h *Handler) AddBook(c echo.Context) error {
	var req service.BookInput
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(req); err != nil {
		return err
	}
	book, err := h.librarySvc.AddBook(c.Request().Context(), c.Param("libraryId"), req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, book)
}

func (h *Handler) UpdateBook(c echo.Context) error {
	id, err := intParam(c, "id")
	if err != nil {
		return err
	}
	var req service.BookInput
	if err = c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err = c.Validate(req); err != nil {
		return err
	}
	book, err := h.librarySvc.UpdateBook(c.Request().Context(), c.Param("libraryId"), id, req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, book)
}

func (h *Handler) DeleteBook(c echo.Context) error {
	id, err := intParam(c, "id")
	if err != nil {
		return err
	}
	if err = h.librarySvc.DeleteBook(c.Request().Context(), c.Param("libraryId"), id); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Members

type memberResponse struct {
	model.Member
	FormattedPhone string `json:"formattedPhone"`
}

func (h *Handler) GetMembers(c echo.Context) error {
	members, err := h.librarySvc.ListMembers(c.Request().Context(), c.Param("libraryId"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, members)
}

func (h *Handler) GetMember(c echo.Context) error {
	id, err := intParam(c, "id")
	if err != nil {
		return err
	}
	m, err := h.librarySvc.GetMember(c.Request().Context(), c.Param("libraryId"), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, memberResponse{Member: m, FormattedPhone: service.FormatPhone(m.Phone)})
}

func (h *Handler) NextMemberCode(c echo.Context) error {
	code, err := h.librarySvc.NextMemberCode(c.Request().Context(), c.Param("libraryId"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]int{"m_code": code})
}

func (h *Handler) AddMember(c echo.Context) error {
	var req service.MemberInput
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(req); err != nil {
		return err
	}
	m, err := h.librarySvc.AddMember(c.Request().Context(), c.Param("libraryId"), req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, m)
}

func (h *Handler) UpdateMember(c echo.Context) error {
	id, err := intParam(c, "id")
	if err != nil {
		return err
	}
	var req service.MemberInput
	if err = c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err = c.Validate(req); err != nil {
		return err
	}
	m, err := h.librarySvc.UpdateMember(c.Request().Context(), c.Param("libraryId"), id, req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, m)
}

func (h *Handler) DeleteMember(c echo.Context) error {
	id, err := intParam(c, "id")
	if err != nil {
		return err
	}
	if err = h.librarySvc.DeleteMember(c.Request().Context(), c.Param("libraryId"), id); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Issues

func (h *Handler) GetIssues(c echo.Context) error {
	issues, err := h.librarySvc.ListIssues(c.Request().Context(), c.Param("libraryId"), service.ParseTab(c.QueryParam("tab")))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, issues)
}

func (h *Handler) IssueBook(c echo.Context) error {
	var req service.IssueInput
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(req); err != nil {
		return err
	}
	issue, err := h.librarySvc.IssueBook(c.Request().Context(), c.Param("libraryId"), req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, issue)
}

func (h *Handler) ReturnBook(c echo.Context) error {
	id, err := intParam(c, "id")
	if err != nil {
		return err
	}
	issue, err := h.librarySvc.ReturnBook(c.Request().Context(), c.Param("libraryId"), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, issue)
}

// Stats

// GetStats switches the watcher to the library on first use and serves
// the kept summary afterwards.
func (h *Handler) GetStats(c echo.Context) error {
	ctx := c.Request().Context()
	libraryID := c.Param("libraryId")
	if _, err := h.librarySvc.GetLibrary(ctx, libraryID); err != nil {
		return httpError(err)
	}
	var (
		summary model.Summary
		err     error
	)
	if h.statsSvc.LibraryID(ctx) == libraryID {
		summary, err = h.statsSvc.Current(ctx)
	} else {
		summary, err = h.statsSvc.Switch(ctx, libraryID)
	}
	if err != nil {
		// partial: the failed parts are zero
		h.log.Warn("stats", zap.String("library", libraryID), zap.Error(err))
	}
	return c.JSON(http.StatusOK, summary)
}
