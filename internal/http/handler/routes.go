package handler

import (
	"context"
	"net/url"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"docregistry/internal/http/middleware"
	"docregistry/internal/model"
	"docregistry/internal/service"
)

// Pinger reports whether the backing database is reachable. *sql.DB satisfies it.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// RegisterRoutes attaches HTTP routes to the provided Fiber app.
// db may be nil when the registry runs on the in-memory store.
func RegisterRoutes(app *fiber.App, db Pinger, svc service.RegistryService, verifier middleware.TokenVerifier) {
	app.Get("/health", HealthCheck(db))
	app.Get("/healthz", LivenessProbe())

	docs := app.Group("/documents", middleware.Authenticate(verifier))
	docs.Post("/", RegisterDocument(svc))
	docs.Get("/:id", GetDocument(svc))
	docs.Put("/:id", UpdateDocument(svc))
	docs.Delete("/:id", DeregisterDocument(svc))
	docs.Put("/:id/owner", ReassignOwnership(svc))
	docs.Post("/:id/permissions", GrantAccess(svc))
	docs.Delete("/:id/permissions/:viewer", RevokeAccess(svc))
	docs.Post("/:id/tags", ExtendTags(svc))
	docs.Post("/:id/freeze", FreezeDocument(svc))
	docs.Get("/:id/authenticate", AuthenticateDocument(svc))

	admin := app.Group("/admin", middleware.Authenticate(verifier))
	admin.Get("/statistics", GetStatistics(svc))
}

// HealthCheck pings the database. Without a database the service is always healthy.
func HealthCheck(db Pinger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if db != nil {
			ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
			defer cancel()
			if err := db.PingContext(ctx); err != nil {
				return writeError(c, fiber.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "dependency unavailable")
			}
		}
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "healthy"})
	}
}

// LivenessProbe always answers 200.
func LivenessProbe() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	}
}

type okResponse struct {
	OK bool `json:"ok"`
}

type registerResponse struct {
	ID uint64 `json:"id"`
}

type ownerRequest struct {
	NewOwner string `json:"new_owner"`
}

type viewerRequest struct {
	Viewer string `json:"viewer"`
}

type tagsPayload struct {
	Tags []string `json:"tags"`
}

// callerAndID extracts the authenticated caller and the :id parameter.
// It writes the error response itself and reports ok=false when either is missing.
func callerAndID(c *fiber.Ctx) (model.Principal, uint64, bool, error) {
	caller, ok := middleware.CallerFromCtx(c)
	if !ok {
		return "", 0, false, writeError(c, fiber.StatusUnauthorized, "UNAUTHENTICATED", "authentication required")
	}
	id, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil || id == 0 {
		return "", 0, false, writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
	}
	return caller, id, true, nil
}

// RegisterDocument handles POST /documents.
func RegisterDocument(svc service.RegistryService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		caller, ok := middleware.CallerFromCtx(c)
		if !ok {
			return writeError(c, fiber.StatusUnauthorized, "UNAUTHENTICATED", "authentication required")
		}
		var in model.DocumentInput
		if err := c.BodyParser(&in); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_BODY", "invalid request body")
		}
		id, err := svc.Register(c.UserContext(), caller, in)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(registerResponse{ID: id})
	}
}

// GetDocument handles GET /documents/:id.
func GetDocument(svc service.RegistryService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		caller, id, ok, werr := callerAndID(c)
		if !ok {
			return werr
		}
		doc, err := svc.Get(c.UserContext(), caller, id)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(doc)
	}
}

// UpdateDocument handles PUT /documents/:id.
func UpdateDocument(svc service.RegistryService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		caller, id, ok, werr := callerAndID(c)
		if !ok {
			return werr
		}
		var in model.DocumentInput
		if err := c.BodyParser(&in); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_BODY", "invalid request body")
		}
		if err := svc.Update(c.UserContext(), caller, id, in); err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(okResponse{OK: true})
	}
}

// DeregisterDocument handles DELETE /documents/:id.
func DeregisterDocument(svc service.RegistryService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		caller, id, ok, werr := callerAndID(c)
		if !ok {
			return werr
		}
		if err := svc.Deregister(c.UserContext(), caller, id); err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(okResponse{OK: true})
	}
}

// ReassignOwnership handles PUT /documents/:id/owner.
func ReassignOwnership(svc service.RegistryService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		caller, id, ok, werr := callerAndID(c)
		if !ok {
			return werr
		}
		var req ownerRequest
		if err := c.BodyParser(&req); err != nil || req.NewOwner == "" {
			return writeError(c, fiber.StatusBadRequest, "INVALID_BODY", "new_owner is required")
		}
		if err := svc.ReassignOwnership(c.UserContext(), caller, id, model.Principal(req.NewOwner)); err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(okResponse{OK: true})
	}
}

// GrantAccess handles POST /documents/:id/permissions.
func GrantAccess(svc service.RegistryService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		caller, id, ok, werr := callerAndID(c)
		if !ok {
			return werr
		}
		var req viewerRequest
		if err := c.BodyParser(&req); err != nil || req.Viewer == "" {
			return writeError(c, fiber.StatusBadRequest, "INVALID_BODY", "viewer is required")
		}
		if err := svc.GrantAccess(c.UserContext(), caller, id, model.Principal(req.Viewer)); err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(okResponse{OK: true})
	}
}

// RevokeAccess handles DELETE /documents/:id/permissions/:viewer.
func RevokeAccess(svc service.RegistryService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		caller, id, ok, werr := callerAndID(c)
		if !ok {
			return werr
		}
		// Route params arrive still percent-encoded.
		viewer, err := url.PathUnescape(c.Params("viewer"))
		if err != nil || viewer == "" {
			return writeError(c, fiber.StatusBadRequest, "INVALID_PARAMETER", "viewer is required")
		}
		if err := svc.RevokeAccess(c.UserContext(), caller, id, model.Principal(viewer)); err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(okResponse{OK: true})
	}
}

// ExtendTags handles POST /documents/:id/tags.
func ExtendTags(svc service.RegistryService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		caller, id, ok, werr := callerAndID(c)
		if !ok {
			return werr
		}
		var req tagsPayload
		if err := c.BodyParser(&req); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_BODY", "invalid request body")
		}
		tags, err := svc.ExtendTags(c.UserContext(), caller, id, req.Tags)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(tagsPayload{Tags: tags})
	}
}

// FreezeDocument handles POST /documents/:id/freeze.
func FreezeDocument(svc service.RegistryService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		caller, id, ok, werr := callerAndID(c)
		if !ok {
			return werr
		}
		if err := svc.Freeze(c.UserContext(), caller, id); err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(okResponse{OK: true})
	}
}

// AuthenticateDocument handles GET /documents/:id/authenticate?presumed_owner=.
func AuthenticateDocument(svc service.RegistryService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		caller, id, ok, werr := callerAndID(c)
		if !ok {
			return werr
		}
		presumed := c.Query("presumed_owner")
		if presumed == "" {
			return writeError(c, fiber.StatusBadRequest, "INVALID_PARAMETER", "presumed_owner is required")
		}
		res, err := svc.Authenticate(c.UserContext(), caller, id, model.Principal(presumed))
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(res)
	}
}

// GetStatistics handles GET /admin/statistics.
func GetStatistics(svc service.RegistryService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		caller, ok := middleware.CallerFromCtx(c)
		if !ok {
			return writeError(c, fiber.StatusUnauthorized, "UNAUTHENTICATED", "authentication required")
		}
		st, err := svc.Statistics(c.UserContext(), caller)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(st)
	}
}
