package handler_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Astemirdum/library-admin/library/internal/errs"
	"github.com/Astemirdum/library-admin/library/internal/handler"
	"github.com/Astemirdum/library-admin/library/internal/model"
	"github.com/Astemirdum/library-admin/library/internal/service"
	"github.com/Astemirdum/library-admin/library/internal/session"
	"github.com/Astemirdum/library-admin/pkg/validate"

	service_mocks "github.com/Astemirdum/library-admin/library/internal/handler/mocks"
)

const libraryID = "83575e12-7ce0-48ee-9931-51919ff3c9ee"

type mocks struct {
	library *service_mocks.MockLibraryService
	stats   *service_mocks.MockStatsService
	auth    *service_mocks.MockAuthService
}

func newHandler(t *testing.T) (*handler.Handler, mocks) {
	t.Helper()
	c := gomock.NewController(t)
	m := mocks{
		library: service_mocks.NewMockLibraryService(c),
		stats:   service_mocks.NewMockStatsService(c),
		auth:    service_mocks.NewMockAuthService(c),
	}
	return handler.New(m.library, m.stats, m.auth, zap.NewExample().Named("test")), m
}

func newEcho() *echo.Echo {
	e := echo.New()
	e.Validator = validate.NewCustomValidator()
	return e
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return string(b)
}

func TestHandler_CreateLibrary(t *testing.T) {
	t.Parallel()
	type response struct {
		expectedCode int
		expectedBody string
	}
	type mockBehavior func(m mocks, in service.LibraryInput)

	created := model.Library{ID: libraryID, Name: "Branch A", UserID: "u1"}
	var tests = []struct {
		name         string
		body         string
		input        service.LibraryInput
		mockBehavior mockBehavior
		response     response
	}{
		{
			name:  "ok",
			body:  `{"name":"Branch A"}`,
			input: service.LibraryInput{Name: "Branch A"},
			mockBehavior: func(m mocks, in service.LibraryInput) {
				m.library.EXPECT().CreateLibrary(context.Background(), in).Return(created, nil)
			},
			response: response{expectedCode: http.StatusCreated, expectedBody: `{"id":"83575e12-7ce0-48ee-9931-51919ff3c9ee","name":"Branch A","description":null,"user_id":"u1","created_at":"0001-01-01T00:00:00Z","updated_at":"0001-01-01T00:00:00Z"}`},
		},
		{
			name:  "err. duplicate name",
			body:  `{"name":"branch a"}`,
			input: service.LibraryInput{Name: "branch a"},
			mockBehavior: func(m mocks, in service.LibraryInput) {
				m.library.EXPECT().CreateLibrary(context.Background(), in).Return(model.Library{}, errs.ErrDuplicateName)
			},
			response: response{expectedCode: http.StatusConflict, expectedBody: `{"message":"a library with this name already exists"}`},
		},
		{
			name:  "err. short name",
			body:  `{"name":"ab"}`,
			input: service.LibraryInput{Name: "ab"},
			mockBehavior: func(m mocks, in service.LibraryInput) {
				m.library.EXPECT().CreateLibrary(context.Background(), in).
					Return(model.Library{}, errors.Wrap(errs.ErrInvalidLibrary, "name must be 3 to 100 characters"))
			},
			response: response{expectedCode: http.StatusBadRequest, expectedBody: `{"message":"name must be 3 to 100 characters: invalid library"}`},
		},
		{
			name:         "err. name required",
			body:         `{"description":"x"}`,
			mockBehavior: func(m mocks, in service.LibraryInput) {},
			response:     response{expectedCode: http.StatusBadRequest},
		},
		{
			name:         "err. bad json",
			body:         `{"name":`,
			mockBehavior: func(m mocks, in service.LibraryInput) {},
			response:     response{expectedCode: http.StatusBadRequest},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h, m := newHandler(t)
			e := newEcho()
			e.POST("/libraries", h.CreateLibrary)

			r := httptest.NewRequest(http.MethodPost, "/libraries", strings.NewReader(tt.body))
			r.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
			w := httptest.NewRecorder()

			tt.mockBehavior(m, tt.input)
			e.ServeHTTP(w, r)

			require.Equal(t, tt.response.expectedCode, w.Code)
			if tt.response.expectedBody != "" {
				require.Equal(t, tt.response.expectedBody, strings.Trim(w.Body.String(), "\n"))
			}
		})
	}
}

func TestHandler_DeleteBook(t *testing.T) {
	t.Parallel()
	var tests = []struct {
		name         string
		id           string
		mockBehavior func(m mocks)
		expectedCode int
		expectedBody string
	}{
		{
			name: "ok",
			id:   "7",
			mockBehavior: func(m mocks) {
				m.library.EXPECT().DeleteBook(context.Background(), libraryID, 7).Return(nil)
			},
			expectedCode: http.StatusNoContent,
		},
		{
			name: "err. book issued",
			id:   "7",
			mockBehavior: func(m mocks) {
				m.library.EXPECT().DeleteBook(context.Background(), libraryID, 7).Return(errs.ErrBookIssued)
			},
			expectedCode: http.StatusConflict,
			expectedBody: `{"message":"book is currently issued to a member"}`,
		},
		{
			name: "err. not found",
			id:   "8",
			mockBehavior: func(m mocks) {
				m.library.EXPECT().DeleteBook(context.Background(), libraryID, 8).Return(errors.Wrap(errs.ErrNotFound, "book_management: no rows found"))
			},
			expectedCode: http.StatusNotFound,
			expectedBody: `{"message":"book_management: no rows found: not found"}`,
		},
		{
			name:         "err. bad id",
			id:           "abc",
			mockBehavior: func(m mocks) {},
			expectedCode: http.StatusBadRequest,
			expectedBody: `{"message":"id is invalid"}`,
		},
		{
			name: "err. internal",
			id:   "7",
			mockBehavior: func(m mocks) {
				m.library.EXPECT().DeleteBook(context.Background(), libraryID, 7).Return(errors.New("db internal"))
			},
			expectedCode: http.StatusInternalServerError,
			expectedBody: `{"message":"db internal"}`,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h, m := newHandler(t)
			e := newEcho()
			e.DELETE("/libraries/:libraryId/books/:id", h.DeleteBook)

			r := httptest.NewRequest(http.MethodDelete, fmt.Sprintf("/libraries/%s/books/%s", libraryID, tt.id), http.NoBody)
			w := httptest.NewRecorder()

			tt.mockBehavior(m)
			e.ServeHTTP(w, r)

			require.Equal(t, tt.expectedCode, w.Code)
			require.Equal(t, tt.expectedBody, strings.Trim(w.Body.String(), "\n"))
		})
	}
}

func TestHandler_IssueBook(t *testing.T) {
	t.Parallel()
	issued := model.Issue{ID: 1, BookCode: 101, MemberCode: 1001, IssueDate: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), LibraryID: libraryID}
	var tests = []struct {
		name         string
		body         string
		mockBehavior func(m mocks)
		expectedCode int
		expectedBody string
	}{
		{
			name: "ok",
			body: `{"ib_code":101,"im_code":1001}`,
			mockBehavior: func(m mocks) {
				m.library.EXPECT().
					IssueBook(context.Background(), libraryID, service.IssueInput{BookCode: 101, MemberCode: 1001}).
					Return(issued, nil)
			},
			expectedCode: http.StatusCreated,
		},
		{
			name: "err. already issued",
			body: `{"ib_code":101,"im_code":1001}`,
			mockBehavior: func(m mocks) {
				m.library.EXPECT().
					IssueBook(context.Background(), libraryID, gomock.Any()).
					Return(model.Issue{}, errs.ErrAlreadyIssued)
			},
			expectedCode: http.StatusConflict,
			expectedBody: `{"message":"book is already issued to a member"}`,
		},
		{
			name: "err. unknown member",
			body: `{"ib_code":101,"im_code":9}`,
			mockBehavior: func(m mocks) {
				m.library.EXPECT().
					IssueBook(context.Background(), libraryID, gomock.Any()).
					Return(model.Issue{}, errs.ErrMemberNotFound)
			},
			expectedCode: http.StatusNotFound,
			expectedBody: `{"message":"member with this code does not exist"}`,
		},
		{
			name:         "err. missing member",
			body:         `{"ib_code":101}`,
			mockBehavior: func(m mocks) {},
			expectedCode: http.StatusBadRequest,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h, m := newHandler(t)
			e := newEcho()
			e.POST("/libraries/:libraryId/issues", h.IssueBook)

			r := httptest.NewRequest(http.MethodPost, "/libraries/"+libraryID+"/issues", strings.NewReader(tt.body))
			r.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
			w := httptest.NewRecorder()

			tt.mockBehavior(m)
			e.ServeHTTP(w, r)

			require.Equal(t, tt.expectedCode, w.Code)
			switch {
			case tt.expectedBody != "":
				require.Equal(t, tt.expectedBody, strings.Trim(w.Body.String(), "\n"))
			case w.Code == http.StatusCreated:
				require.Equal(t, mustJSON(t, issued), strings.Trim(w.Body.String(), "\n"))
			}
		})
	}
}

func TestHandler_GetIssuesTab(t *testing.T) {
	t.Parallel()
	h, m := newHandler(t)
	e := newEcho()
	e.GET("/libraries/:libraryId/issues", h.GetIssues)

	m.library.EXPECT().ListIssues(context.Background(), libraryID, service.TabReturned).Return([]service.IssueView{}, nil)
	m.library.EXPECT().ListIssues(context.Background(), libraryID, service.TabActive).Return(nil, errs.ErrNotSignedIn)

	w := httptest.NewRecorder()
	e.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/libraries/"+libraryID+"/issues?tab=returned", http.NoBody))
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "[]", strings.Trim(w.Body.String(), "\n"))

	w = httptest.NewRecorder()
	e.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/libraries/"+libraryID+"/issues", http.NoBody))
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestHandler_GetStats(t *testing.T) {
	t.Parallel()
	summary := model.Summary{LibraryID: libraryID, Stats: model.LibraryStats{TotalBooks: 5, ActiveIssues: 1, AvailableBooks: 4}}
	var tests = []struct {
		name         string
		mockBehavior func(m mocks)
		expectedCode int
	}{
		{
			name: "switches to the library",
			mockBehavior: func(m mocks) {
				m.library.EXPECT().GetLibrary(context.Background(), libraryID).Return(model.Library{ID: libraryID}, nil)
				m.stats.EXPECT().LibraryID(context.Background()).Return("")
				m.stats.EXPECT().Switch(context.Background(), libraryID).Return(summary, nil)
			},
			expectedCode: http.StatusOK,
		},
		{
			name: "serves the kept summary",
			mockBehavior: func(m mocks) {
				m.library.EXPECT().GetLibrary(context.Background(), libraryID).Return(model.Library{ID: libraryID}, nil)
				m.stats.EXPECT().LibraryID(context.Background()).Return(libraryID)
				m.stats.EXPECT().Current(context.Background()).Return(summary, nil)
			},
			expectedCode: http.StatusOK,
		},
		{
			name: "partial summary",
			mockBehavior: func(m mocks) {
				m.library.EXPECT().GetLibrary(context.Background(), libraryID).Return(model.Library{ID: libraryID}, nil)
				m.stats.EXPECT().LibraryID(context.Background()).Return(libraryID)
				m.stats.EXPECT().Current(context.Background()).Return(summary, errors.New("count members: timeout"))
			},
			expectedCode: http.StatusOK,
		},
		{
			name: "err. foreign library",
			mockBehavior: func(m mocks) {
				m.library.EXPECT().GetLibrary(context.Background(), libraryID).Return(model.Library{}, errs.ErrNotFound)
			},
			expectedCode: http.StatusNotFound,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h, m := newHandler(t)
			e := newEcho()
			e.GET("/libraries/:libraryId/stats", h.GetStats)

			w := httptest.NewRecorder()
			tt.mockBehavior(m)
			e.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/libraries/"+libraryID+"/stats", http.NoBody))

			require.Equal(t, tt.expectedCode, w.Code)
			if w.Code == http.StatusOK {
				require.Equal(t, mustJSON(t, summary), strings.Trim(w.Body.String(), "\n"))
			}
		})
	}
}

func TestHandler_Members(t *testing.T) {
	t.Parallel()
	h, m := newHandler(t)
	e := newEcho()
	e.GET("/libraries/:libraryId/members/next-code", h.NextMemberCode)
	e.GET("/libraries/:libraryId/members/:id", h.GetMember)
	e.POST("/libraries/:libraryId/members", h.AddMember)

	m.library.EXPECT().NextMemberCode(context.Background(), libraryID).Return(1004, nil)
	m.library.EXPECT().GetMember(context.Background(), libraryID, 3).
		Return(model.Member{ID: 3, Code: 1003, Name: "Ann", Phone: "5555550101", LibraryID: libraryID}, nil)
	m.library.EXPECT().AddMember(context.Background(), libraryID, service.MemberInput{Code: 1004, Name: "Bob", Phone: "555-0102"}).
		Return(model.Member{}, errs.ErrInvalidPhone)

	w := httptest.NewRecorder()
	e.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/libraries/"+libraryID+"/members/next-code", http.NoBody))
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, `{"m_code":1004}`, strings.Trim(w.Body.String(), "\n"))

	w = httptest.NewRecorder()
	e.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/libraries/"+libraryID+"/members/3", http.NoBody))
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"formattedPhone":"(555) 555-0101"`)
	require.Contains(t, w.Body.String(), `"m_code":1003`)

	r := httptest.NewRequest(http.MethodPost, "/libraries/"+libraryID+"/members", strings.NewReader(`{"m_code":1004,"m_name":"Bob","m_phone":"555-0102"}`))
	r.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	w = httptest.NewRecorder()
	e.ServeHTTP(w, r)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, `{"message":"phone number must have exactly 10 digits"}`, strings.Trim(w.Body.String(), "\n"))
}

func TestRouter_Session(t *testing.T) {
	t.Parallel()
	h, m := newHandler(t)
	e := h.NewRouter()

	sess := model.Session{AccessToken: "mock-access-token-1", User: model.User{ID: "u1", Email: "ann@example.com", FullName: "Ann"}}
	m.auth.EXPECT().SignIn(gomock.Any(), gomock.Any()).Return(model.Profile{ID: "u1"}, sess, nil)
	m.auth.EXPECT().Authorize(gomock.Any(), "wrong").Return(model.User{}, errs.ErrNotSignedIn)
	m.auth.EXPECT().Authorize(gomock.Any(), sess.AccessToken).Return(sess.User, nil).Times(2)
	// handlers act for the user the token belongs to
	m.library.EXPECT().ListLibraries(gomock.Any()).DoAndReturn(func(ctx context.Context) ([]model.Library, error) {
		require.Equal(t, "u1", session.UserID(ctx))
		return []model.Library{}, nil
	})
	m.auth.EXPECT().SignOut(gomock.Any()).DoAndReturn(func(ctx context.Context) error {
		require.Equal(t, "u1", session.UserID(ctx))
		return nil
	})
	m.stats.EXPECT().Switch(gomock.Any(), "").Return(model.Summary{}, nil)

	w := httptest.NewRecorder()
	e.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/manage/health", http.NoBody))
	require.Equal(t, http.StatusOK, w.Code)

	r := httptest.NewRequest(http.MethodPost, "/api/v1/auth/sign-in", strings.NewReader(`{"email":"ann@example.com"}`))
	r.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	w = httptest.NewRecorder()
	e.ServeHTTP(w, r)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, mustJSON(t, sess), strings.Trim(w.Body.String(), "\n"))

	r = httptest.NewRequest(http.MethodPost, "/api/v1/auth/sign-in", strings.NewReader(`{"email":"not-an-email"}`))
	r.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	w = httptest.NewRecorder()
	e.ServeHTTP(w, r)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	e.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/libraries", http.NoBody))
	require.Equal(t, http.StatusUnauthorized, w.Code)

	r = httptest.NewRequest(http.MethodGet, "/api/v1/libraries", http.NoBody)
	r.Header.Set("Authorization", "Bearer wrong")
	w = httptest.NewRecorder()
	e.ServeHTTP(w, r)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	r = httptest.NewRequest(http.MethodGet, "/api/v1/libraries", http.NoBody)
	r.Header.Set("Authorization", "Bearer "+sess.AccessToken)
	w = httptest.NewRecorder()
	e.ServeHTTP(w, r)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "[]", strings.Trim(w.Body.String(), "\n"))

	r = httptest.NewRequest(http.MethodPost, "/api/v1/auth/sign-out", http.NoBody)
	r.Header.Set("Authorization", "Bearer "+sess.AccessToken)
	w = httptest.NewRecorder()
	e.ServeHTTP(w, r)
	require.Equal(t, http.StatusNoContent, w.Code)
}
