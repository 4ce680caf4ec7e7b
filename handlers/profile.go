package handlers

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/andesco/subpage/pkg/metadata"
	"github.com/andesco/subpage/pkg/profile"
)

// AuthUserHeader carries the caller's user id, set by the auth gateway in
// front of the origin.
const AuthUserHeader = "X-Auth-User"

const localUID = "uid"

// ProfileStore is the part of profile.Store the API needs.
type ProfileStore interface {
	Claim(ctx context.Context, uid, subdomain string) (string, error)
	SubdomainOf(ctx context.Context, uid string) (string, error)
	Release(ctx context.Context, uid string) error
	Update(ctx context.Context, uid string, u profile.Update) (bool, error)
	Get(ctx context.Context, subdomain string) (*profile.Profile, error)
}

// MetadataResolver produces og metadata for a subdomain and never fails.
type MetadataResolver interface {
	Resolve(ctx context.Context, subdomain string) metadata.Metadata
}

type errorBody struct {
	Error string `json:"error"`
}

// OGMeta answers GET /og-meta. It always returns 200 with either the
// profile's metadata or the site defaults, and forbids caching.
func OGMeta(r MetadataResolver, site metadata.Site) fiber.Handler {
	return func(c *fiber.Ctx) error {
		sub := c.Query("subdomain")
		if sub == "" {
			if host := c.Query("host"); host != "" {
				sub, _ = site.SubdomainFromHost(host)
			}
		}
		c.Set(fiber.HeaderCacheControl, "no-store")
		return c.JSON(r.Resolve(c.UserContext(), sub))
	}
}

// RequireUser rejects requests without an authenticated user id.
func RequireUser(c *fiber.Ctx) error {
	uid := strings.TrimSpace(c.Get(AuthUserHeader))
	if uid == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(errorBody{Error: "unauthenticated"})
	}
	c.Locals(localUID, uid)
	return c.Next()
}

// ProfileAPI serves the profile endpoints of the origin.
type ProfileAPI struct {
	store  ProfileStore
	logger *zap.Logger
}

// NewProfileAPI serves store. logger receives internal errors.
func NewProfileAPI(store ProfileStore, logger *zap.Logger) *ProfileAPI {
	return &ProfileAPI{store: store, logger: logger}
}

// Register mounts the API under /api.
func (a *ProfileAPI) Register(app *fiber.App) {
	api := app.Group("/api")
	api.Get("/profile/:subdomain", a.getProfile)

	api.Get("/me", RequireUser, a.me)
	api.Post("/claim", RequireUser, a.claim)
	api.Delete("/subdomain", RequireUser, a.release)
	api.Patch("/profile", RequireUser, a.update)
}

func (a *ProfileAPI) getProfile(c *fiber.Ctx) error {
	sub := strings.ToLower(c.Params("subdomain"))
	if err := profile.ValidateSubdomain(sub); err != nil {
		return a.fail(c, profile.ErrProfileMissing)
	}
	p, err := a.store.Get(c.UserContext(), sub)
	if err != nil {
		return a.fail(c, err)
	}
	return c.JSON(p)
}

func (a *ProfileAPI) me(c *fiber.Ctx) error {
	uid := c.Locals(localUID).(string)
	sub, err := a.store.SubdomainOf(c.UserContext(), uid)
	if err != nil {
		return a.fail(c, err)
	}
	return c.JSON(fiber.Map{"uid": uid, "subdomain": sub})
}

func (a *ProfileAPI) claim(c *fiber.Ctx) error {
	var body struct {
		Subdomain string `json:"subdomain"`
	}
	if err := c.BodyParser(&body); err != nil {
		return a.fail(c, profile.ErrInvalidArgument)
	}
	sub, err := a.store.Claim(c.UserContext(), c.Locals(localUID).(string), body.Subdomain)
	if err != nil {
		return a.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"subdomain": sub})
}

func (a *ProfileAPI) release(c *fiber.Ctx) error {
	if err := a.store.Release(c.UserContext(), c.Locals(localUID).(string)); err != nil {
		return a.fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (a *ProfileAPI) update(c *fiber.Ctx) error {
	var u profile.Update
	if err := c.BodyParser(&u); err != nil {
		return a.fail(c, profile.ErrInvalidArgument)
	}
	changed, err := a.store.Update(c.UserContext(), c.Locals(localUID).(string), u)
	if err != nil {
		return a.fail(c, err)
	}
	return c.JSON(fiber.Map{"updated": changed})
}

// fail maps store errors onto HTTP statuses. Unknown errors are logged and
// reported as a bare 500.
func (a *ProfileAPI) fail(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	switch {
	case errors.Is(err, profile.ErrInvalidSubdomain),
		errors.Is(err, profile.ErrReserved),
		errors.Is(err, profile.ErrInvalidArgument):
		status = fiber.StatusBadRequest
	case errors.Is(err, profile.ErrTaken),
		errors.Is(err, profile.ErrAlreadyClaimed):
		status = fiber.StatusConflict
	case errors.Is(err, profile.ErrNoSubdomain),
		errors.Is(err, profile.ErrProfileMissing):
		status = fiber.StatusNotFound
	case errors.Is(err, profile.ErrNotOwner):
		status = fiber.StatusForbidden
	}

	if status == fiber.StatusInternalServerError {
		Logger(c.UserContext(), a.logger).Error("profile api", zap.Error(err))
		return c.Status(status).JSON(errorBody{Error: "internal"})
	}
	return c.Status(status).JSON(errorBody{Error: err.Error()})
}
