package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"docregistry/internal/http/middleware"
	"docregistry/internal/model"
	"docregistry/internal/service"
	serviceMocks "docregistry/internal/service/mocks"
)

const (
	alice = model.Principal("alice")
	admin = model.Principal("admin")
)

// tokens maps bearer tokens to principals.
type tokens map[string]model.Principal

func (t tokens) Verify(token string) (model.Principal, error) {
	p, ok := t[token]
	if !ok {
		return "", errors.New("unknown token")
	}
	return p, nil
}

func newTestApp(svc service.RegistryService) *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler()})
	app.Use(middleware.RequestID())
	RegisterRoutes(app, nil, svc, tokens{"alice-token": alice, "admin-token": admin})
	return app
}

func doRequest(t *testing.T, app *fiber.App, method, path, token string, body any) *http.Response {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp
}

func decodeError(t *testing.T, resp *http.Response) errorPayload {
	t.Helper()
	var body errorPayload
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func TestHealthCheck(t *testing.T) {
	db, dbMock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	app := fiber.New()
	app.Get("/health", HealthCheck(db))

	t.Run("healthy", func(t *testing.T) {
		dbMock.ExpectPing().WillReturnError(nil)

		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var body map[string]string
		json.NewDecoder(resp.Body).Decode(&body)
		assert.Equal(t, "healthy", body["status"])
	})

	t.Run("unhealthy", func(t *testing.T) {
		dbMock.ExpectPing().WillReturnError(errors.New("db error"))

		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

		var body errorPayload
		json.NewDecoder(resp.Body).Decode(&body)
		assert.Equal(t, "SERVICE_UNAVAILABLE", body.Error.Code)
	})

	t.Run("no database", func(t *testing.T) {
		app := fiber.New()
		app.Get("/health", HealthCheck(nil))

		resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})
}

func TestLivenessProbe(t *testing.T) {
	app := fiber.New()
	app.Get("/healthz", LivenessProbe())

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	resp, _ := app.Test(req)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAuthentication(t *testing.T) {
	app := newTestApp(new(serviceMocks.MockRegistryService))

	t.Run("missing token", func(t *testing.T) {
		resp := doRequest(t, app, http.MethodGet, "/documents/1", "", nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		body := decodeError(t, resp)
		assert.Equal(t, "UNAUTHENTICATED", body.Error.Code)
		assert.NotEmpty(t, body.RequestID)
	})

	t.Run("unknown token", func(t *testing.T) {
		resp := doRequest(t, app, http.MethodGet, "/admin/statistics", "forged", nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, "UNAUTHENTICATED", decodeError(t, resp).Error.Code)
	})
}

func TestRegisterDocument(t *testing.T) {
	mockSvc := new(serviceMocks.MockRegistryService)
	app := newTestApp(mockSvc)

	in := model.DocumentInput{Title: "Deed", FileSize: 1024, Description: "land deed", Tags: []string{"land"}}

	t.Run("success", func(t *testing.T) {
		mockSvc.On("Register", mock.Anything, alice, in).Return(uint64(1), nil).Once()

		resp := doRequest(t, app, http.MethodPost, "/documents", "alice-token", in)
		assert.Equal(t, http.StatusCreated, resp.StatusCode)

		var body map[string]uint64
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, uint64(1), body["id"])
		mockSvc.AssertExpectations(t)
	})

	t.Run("invalid body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/documents", bytes.NewBufferString("{not json"))
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
		req.Header.Set(fiber.HeaderAuthorization, "Bearer alice-token")
		resp, err := app.Test(req)
		require.NoError(t, err)

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "INVALID_BODY", decodeError(t, resp).Error.Code)
	})

	t.Run("validation failure", func(t *testing.T) {
		bad := model.DocumentInput{Title: "", FileSize: 1}
		mockSvc.On("Register", mock.Anything, alice, bad).
			Return(uint64(0), fmt.Errorf("%w: length 0", service.ErrInvalidTitle)).Once()

		resp := doRequest(t, app, http.MethodPost, "/documents", "alice-token", bad)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, service.CodeInvalidTitle, decodeError(t, resp).Error.Code)
		mockSvc.AssertExpectations(t)
	})

	t.Run("internal failure is not leaked", func(t *testing.T) {
		mockSvc.On("Register", mock.Anything, alice, in).Return(uint64(0), errors.New("pq: connection reset")).Once()

		resp := doRequest(t, app, http.MethodPost, "/documents", "alice-token", in)
		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
		body := decodeError(t, resp)
		assert.Equal(t, service.CodeInternal, body.Error.Code)
		assert.NotContains(t, body.Error.Message, "pq")
		mockSvc.AssertExpectations(t)
	})
}

func TestGetDocument(t *testing.T) {
	mockSvc := new(serviceMocks.MockRegistryService)
	app := newTestApp(mockSvc)

	t.Run("success", func(t *testing.T) {
		doc := &model.Document{ID: 7, Title: "Deed", Owner: alice, Tags: []string{"land"}}
		mockSvc.On("Get", mock.Anything, alice, uint64(7)).Return(doc, nil).Once()

		resp := doRequest(t, app, http.MethodGet, "/documents/7", "alice-token", nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var result model.Document
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
		assert.Equal(t, uint64(7), result.ID)
		assert.Equal(t, alice, result.Owner)
		mockSvc.AssertExpectations(t)
	})

	t.Run("not found", func(t *testing.T) {
		mockSvc.On("Get", mock.Anything, alice, uint64(8)).Return(nil, service.ErrNotFound).Once()

		resp := doRequest(t, app, http.MethodGet, "/documents/8", "alice-token", nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		assert.Equal(t, service.CodeNotFound, decodeError(t, resp).Error.Code)
		mockSvc.AssertExpectations(t)
	})

	t.Run("unauthorized viewer", func(t *testing.T) {
		mockSvc.On("Get", mock.Anything, alice, uint64(9)).Return(nil, service.ErrUnauthorized).Once()

		resp := doRequest(t, app, http.MethodGet, "/documents/9", "alice-token", nil)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
		assert.Equal(t, service.CodeUnauthorized, decodeError(t, resp).Error.Code)
	})

	for _, id := range []string{"abc", "0", "-1"} {
		t.Run("invalid id "+id, func(t *testing.T) {
			resp := doRequest(t, app, http.MethodGet, "/documents/"+id, "alice-token", nil)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Equal(t, "INVALID_ID", decodeError(t, resp).Error.Code)
		})
	}
}

func TestUpdateDocument(t *testing.T) {
	mockSvc := new(serviceMocks.MockRegistryService)
	app := newTestApp(mockSvc)
	in := model.DocumentInput{Title: "Deed v2", FileSize: 2048}

	t.Run("success", func(t *testing.T) {
		mockSvc.On("Update", mock.Anything, alice, uint64(1), in).Return(nil).Once()

		resp := doRequest(t, app, http.MethodPut, "/documents/1", "alice-token", in)
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var body map[string]bool
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.True(t, body["ok"])
		mockSvc.AssertExpectations(t)
	})

	t.Run("not owner", func(t *testing.T) {
		mockSvc.On("Update", mock.Anything, alice, uint64(2), in).Return(service.ErrOwnershipRequired).Once()

		resp := doRequest(t, app, http.MethodPut, "/documents/2", "alice-token", in)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
		assert.Equal(t, service.CodeOwnershipRequired, decodeError(t, resp).Error.Code)
	})

	t.Run("bad volume", func(t *testing.T) {
		big := model.DocumentInput{Title: "Deed", FileSize: 1_000_000_000}
		mockSvc.On("Update", mock.Anything, alice, uint64(1), big).Return(service.ErrInvalidVolume).Once()

		resp := doRequest(t, app, http.MethodPut, "/documents/1", "alice-token", big)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, service.CodeInvalidVolume, decodeError(t, resp).Error.Code)
	})
}

func TestDeregisterDocument(t *testing.T) {
	mockSvc := new(serviceMocks.MockRegistryService)
	app := newTestApp(mockSvc)

	mockSvc.On("Deregister", mock.Anything, alice, uint64(3)).Return(nil).Once()
	resp := doRequest(t, app, http.MethodDelete, "/documents/3", "alice-token", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	mockSvc.On("Deregister", mock.Anything, alice, uint64(3)).Return(service.ErrNotFound).Once()
	resp = doRequest(t, app, http.MethodDelete, "/documents/3", "alice-token", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	mockSvc.AssertExpectations(t)
}

func TestReassignOwnership(t *testing.T) {
	mockSvc := new(serviceMocks.MockRegistryService)
	app := newTestApp(mockSvc)

	t.Run("success", func(t *testing.T) {
		mockSvc.On("ReassignOwnership", mock.Anything, alice, uint64(1), model.Principal("bob")).Return(nil).Once()

		resp := doRequest(t, app, http.MethodPut, "/documents/1/owner", "alice-token", map[string]string{"new_owner": "bob"})
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		mockSvc.AssertExpectations(t)
	})

	t.Run("missing new owner", func(t *testing.T) {
		resp := doRequest(t, app, http.MethodPut, "/documents/1/owner", "alice-token", map[string]string{})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "INVALID_BODY", decodeError(t, resp).Error.Code)
	})
}

func TestGrantAndRevokeAccess(t *testing.T) {
	mockSvc := new(serviceMocks.MockRegistryService)
	app := newTestApp(mockSvc)
	bob := model.Principal("bob")

	t.Run("grant", func(t *testing.T) {
		mockSvc.On("GrantAccess", mock.Anything, alice, uint64(1), bob).Return(nil).Once()

		resp := doRequest(t, app, http.MethodPost, "/documents/1/permissions", "alice-token", map[string]string{"viewer": "bob"})
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		mockSvc.AssertExpectations(t)
	})

	t.Run("grant missing viewer", func(t *testing.T) {
		resp := doRequest(t, app, http.MethodPost, "/documents/1/permissions", "alice-token", map[string]string{"viewer": ""})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("revoke", func(t *testing.T) {
		mockSvc.On("RevokeAccess", mock.Anything, alice, uint64(1), bob).Return(nil).Once()

		resp := doRequest(t, app, http.MethodDelete, "/documents/1/permissions/bob", "alice-token", nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		mockSvc.AssertExpectations(t)
	})

	t.Run("revoke escaped viewer", func(t *testing.T) {
		viewer := model.Principal("auth0|bob smith")
		mockSvc.On("RevokeAccess", mock.Anything, alice, uint64(1), viewer).Return(nil).Once()

		resp := doRequest(t, app, http.MethodDelete, "/documents/1/permissions/auth0%7Cbob%20smith", "alice-token", nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		mockSvc.AssertExpectations(t)
	})

	t.Run("revoke self", func(t *testing.T) {
		mockSvc.On("RevokeAccess", mock.Anything, alice, uint64(1), alice).Return(service.ErrAdminOnly).Once()

		resp := doRequest(t, app, http.MethodDelete, "/documents/1/permissions/alice", "alice-token", nil)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
		assert.Equal(t, service.CodeAdminOnly, decodeError(t, resp).Error.Code)
	})
}

func TestExtendTags(t *testing.T) {
	mockSvc := new(serviceMocks.MockRegistryService)
	app := newTestApp(mockSvc)

	t.Run("success", func(t *testing.T) {
		mockSvc.On("ExtendTags", mock.Anything, alice, uint64(1), []string{"b"}).Return([]string{"a", "b"}, nil).Once()

		resp := doRequest(t, app, http.MethodPost, "/documents/1/tags", "alice-token", map[string][]string{"tags": {"b"}})
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var body tagsPayload
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, []string{"a", "b"}, body.Tags)
		mockSvc.AssertExpectations(t)
	})

	t.Run("too many tags", func(t *testing.T) {
		mockSvc.On("ExtendTags", mock.Anything, alice, uint64(1), []string{"x"}).Return(nil, service.ErrTagValidationFailed).Once()

		resp := doRequest(t, app, http.MethodPost, "/documents/1/tags", "alice-token", map[string][]string{"tags": {"x"}})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, service.CodeTagValidationFailed, decodeError(t, resp).Error.Code)
	})
}

func TestFreezeDocument(t *testing.T) {
	mockSvc := new(serviceMocks.MockRegistryService)
	app := newTestApp(mockSvc)

	mockSvc.On("Freeze", mock.Anything, admin, uint64(4)).Return(nil).Once()
	resp := doRequest(t, app, http.MethodPost, "/documents/4/freeze", "admin-token", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	mockSvc.On("Freeze", mock.Anything, alice, uint64(4)).Return(service.ErrAdminOnly).Once()
	resp = doRequest(t, app, http.MethodPost, "/documents/4/freeze", "alice-token", nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	mockSvc.AssertExpectations(t)
}

func TestAuthenticateDocument(t *testing.T) {
	mockSvc := new(serviceMocks.MockRegistryService)
	app := newTestApp(mockSvc)

	t.Run("success", func(t *testing.T) {
		res := &model.Authentication{Match: true, Height: 120, Age: 20, Verified: true}
		mockSvc.On("Authenticate", mock.Anything, alice, uint64(1), alice).Return(res, nil).Once()

		resp := doRequest(t, app, http.MethodGet, "/documents/1/authenticate?presumed_owner=alice", "alice-token", nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var got model.Authentication
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
		assert.Equal(t, *res, got)
		mockSvc.AssertExpectations(t)
	})

	t.Run("missing presumed owner", func(t *testing.T) {
		resp := doRequest(t, app, http.MethodGet, "/documents/1/authenticate", "alice-token", nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "INVALID_PARAMETER", decodeError(t, resp).Error.Code)
	})
}

func TestGetStatistics(t *testing.T) {
	mockSvc := new(serviceMocks.MockRegistryService)
	app := newTestApp(mockSvc)

	t.Run("administrator", func(t *testing.T) {
		st := &model.Statistics{Total: 3, Height: 99, Status: model.StatusActive}
		mockSvc.On("Statistics", mock.Anything, admin).Return(st, nil).Once()

		resp := doRequest(t, app, http.MethodGet, "/admin/statistics", "admin-token", nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var got model.Statistics
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
		assert.Equal(t, *st, got)
	})

	t.Run("other caller", func(t *testing.T) {
		mockSvc.On("Statistics", mock.Anything, alice).Return(nil, service.ErrAdminOnly).Once()

		resp := doRequest(t, app, http.MethodGet, "/admin/statistics", "alice-token", nil)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
		assert.Equal(t, service.CodeAdminOnly, decodeError(t, resp).Error.Code)
	})

	mockSvc.AssertExpectations(t)
}

func TestErrorHandler(t *testing.T) {
	app := newTestApp(new(serviceMocks.MockRegistryService))

	resp := doRequest(t, app, http.MethodGet, "/nowhere", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "NOT_FOUND", decodeError(t, resp).Error.Code)
}
