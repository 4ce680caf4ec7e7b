package metadata

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/andesco/subpage/pkg/profile"
)

// ProfileGetter loads a stored profile by subdomain.
type ProfileGetter interface {
	Get(ctx context.Context, subdomain string) (*profile.Profile, error)
}

// URLResolver turns a stored object path into a public URL.
type URLResolver interface {
	URL(ctx context.Context, path string) (string, error)
}

// Resolver builds metadata from the profile store. It backs the origin's
// og-meta endpoint.
type Resolver struct {
	profiles ProfileGetter
	files    URLResolver
	site     Site
	logger   *zap.Logger
}

func NewResolver(profiles ProfileGetter, files URLResolver, site Site, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{profiles: profiles, files: files, site: site, logger: logger}
}

// Resolve never fails. Unknown or invalid subdomains and lookup errors yield
// the site defaults.
func (r *Resolver) Resolve(ctx context.Context, subdomain string) Metadata {
	subdomain = strings.ToLower(strings.TrimSpace(subdomain))
	if profile.ValidateSubdomain(subdomain) != nil {
		return r.site.Defaults()
	}

	p, err := r.profiles.Get(ctx, subdomain)
	if err != nil {
		if !errors.Is(err, profile.ErrProfileMissing) {
			r.logger.Warn("profile lookup failed", zap.String("subdomain", subdomain), zap.Error(err))
		}
		return r.site.Defaults()
	}

	handle := firstNonEmpty(p.Handle, p.Subdomain)
	m := Metadata{
		Title:       firstNonEmpty(p.OGTitle, "@"+handle+" — "+r.site.Apex),
		Description: firstNonEmpty(p.OGDescription, firstLine(p.Bio), "Profile on "+r.site.Apex),
		Image:       firstNonEmpty(r.fileURL(ctx, p.OGImagePath), r.fileURL(ctx, p.AvatarPath)),
		Favicon:     r.fileURL(ctx, p.FaviconPath),
		Handle:      handle,
		Subdomain:   p.Subdomain,
		URL:         r.site.ProfileURL(p.Subdomain),
	}
	return r.site.Normalize(m)
}

func (r *Resolver) fileURL(ctx context.Context, path string) string {
	if path == "" || r.files == nil {
		return ""
	}
	u, err := r.files.URL(ctx, path)
	if err != nil {
		r.logger.Warn("resolving file url", zap.String("path", path), zap.Error(err))
		return ""
	}
	return u
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
