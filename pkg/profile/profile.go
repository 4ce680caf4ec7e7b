// Package profile stores the per-subdomain profile documents and enforces the
// ownership rules around them: a user owns at most one subdomain, only the owner
// may change or release it, and every stored field is size-limited and cleaned.
package profile

import (
	"errors"
	"net/url"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

var (
	ErrInvalidSubdomain = errors.New("invalid-subdomain")
	ErrReserved         = errors.New("reserved")
	ErrTaken            = errors.New("taken")
	ErrAlreadyClaimed   = errors.New("already-has-subdomain")
	ErrNoSubdomain      = errors.New("no-subdomain")
	ErrProfileMissing   = errors.New("profile-missing")
	ErrNotOwner         = errors.New("not-owner")
	ErrInvalidArgument  = errors.New("invalid-argument")
)

// Field limits, in characters.
const (
	MaxBio           = 500
	MaxLinks         = 20
	MaxLinkTitle     = 80
	MaxLinkDesc      = 160
	MaxPath          = 256
	MaxOGTitle       = 80
	MaxOGDescription = 200
	MaxCustomCSS     = 5000
	MaxCustomHTML    = 5000
)

var subdomainRe = regexp.MustCompile(`^[a-z0-9](?:[a-z0-9-]{0,61}[a-z0-9])?$`)

var reserved = map[string]struct{}{
	"www":    {},
	"api":    {},
	"admin":  {},
	"mail":   {},
	"blog":   {},
	"help":   {},
	"status": {},
}

// Link is one entry of a profile's link list.
type Link struct {
	Title string `json:"title"`
	URL   string `json:"url"`
	Desc  string `json:"desc,omitempty"`
}

// Profile is the stored document for one subdomain.
type Profile struct {
	Subdomain     string    `json:"subdomain"`
	Owner         string    `json:"-"`
	Handle        string    `json:"handle"`
	Bio           string    `json:"bio"`
	Links         []Link    `json:"links"`
	AvatarPath    string    `json:"avatarPath,omitempty"`
	FaviconPath   string    `json:"faviconPath,omitempty"`
	OGImagePath   string    `json:"ogImagePath,omitempty"`
	OGTitle       string    `json:"ogTitle,omitempty"`
	OGDescription string    `json:"ogDescription,omitempty"`
	CustomCSS     string    `json:"customCSS,omitempty"`
	CustomHTML    string    `json:"customHTML,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Update carries the fields a profile owner wants to change. Nil fields are
// left untouched.
type Update struct {
	Bio           *string `json:"bio,omitempty"`
	Links         *[]Link `json:"links,omitempty"`
	AvatarPath    *string `json:"avatarPath,omitempty"`
	FaviconPath   *string `json:"faviconPath,omitempty"`
	OGImagePath   *string `json:"ogImagePath,omitempty"`
	OGTitle       *string `json:"ogTitle,omitempty"`
	OGDescription *string `json:"ogDescription,omitempty"`
	CustomCSS     *string `json:"customCSS,omitempty"`
	CustomHTML    *string `json:"customHTML,omitempty"`
}

// ValidateSubdomain checks a lower-cased subdomain label.
func ValidateSubdomain(sub string) error {
	if !subdomainRe.MatchString(sub) {
		return ErrInvalidSubdomain
	}
	if _, ok := reserved[sub]; ok {
		return ErrReserved
	}
	return nil
}

var scriptBlockRe = regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`)

// cleanLinks keeps at most MaxLinks entries with both a title and a URL.
// URLs without a scheme get https://, URLs that still don't parse are dropped.
func cleanLinks(in []Link) []Link {
	if len(in) > MaxLinks {
		in = in[:MaxLinks]
	}
	out := make([]Link, 0, len(in))
	for _, l := range in {
		title := clamp(strings.TrimSpace(l.Title), MaxLinkTitle)
		raw := strings.TrimSpace(l.URL)
		if title == "" || raw == "" {
			continue
		}
		lower := strings.ToLower(raw)
		if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
			raw = "https://" + raw
		}
		u, err := url.Parse(raw)
		if err != nil || u.Host == "" {
			continue
		}
		out = append(out, Link{
			Title: title,
			URL:   raw,
			Desc:  clamp(strings.TrimSpace(l.Desc), MaxLinkDesc),
		})
	}
	return out
}

// cleanPath accepts an uploaded object path only inside the owner's folder
// for that kind of file, e.g. "avatars/<uid>/".
func cleanPath(p, folder, uid string) (string, error) {
	p = strings.TrimSpace(p)
	if p == "" {
		return "", nil
	}
	if !strings.HasPrefix(p, folder+"/"+uid+"/") || strings.Contains(p, "..") {
		return "", ErrInvalidArgument
	}
	return clamp(p, MaxPath), nil
}

func cleanCSS(css string) string {
	return scriptBlockRe.ReplaceAllString(clamp(css, MaxCustomCSS), "")
}

// clamp keeps the first max characters of s.
func clamp(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}
