// Package metadata produces the social-preview fields (title, description,
// image, favicon) for a profile subdomain.
//
// The edge consumes it through HTTPFetcher, which calls the origin's og-meta
// endpoint. The origin answers that endpoint with a Resolver backed by the
// profile store. Both sides agree on the Metadata JSON shape.
package metadata

import (
	"context"
	"net"
	"net/url"
	"strings"

	"github.com/andesco/subpage/pkg/safeurl"
)

// Metadata is the payload of GET /og-meta.
type Metadata struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Image       string `json:"image"`
	Favicon     string `json:"favicon"`
	Handle      string `json:"handle"`
	Subdomain   string `json:"subdomain"`
	URL         string `json:"url"`
}

// Fetcher returns metadata for a subdomain. An error means "no metadata
// available" and callers fall back to serving content unmodified.
type Fetcher interface {
	Fetch(ctx context.Context, subdomain string) (Metadata, error)
}

// Site carries the apex domain and the fallbacks used when a profile has no
// value of its own.
type Site struct {
	Apex           string
	DefaultImage   string
	DefaultFavicon string
}

// Defaults is the metadata served for the root site and for any subdomain that
// has no profile.
func (s Site) Defaults() Metadata {
	return Metadata{
		Title:       s.Apex,
		Description: "Claim your username as a subdomain on " + s.Apex + ".",
		Image:       s.DefaultImage,
		Favicon:     s.DefaultFavicon,
		URL:         "https://" + s.Apex + "/",
	}
}

// SubdomainFromHost extracts the profile subdomain from a request host.
// The port is ignored and matching is case-insensitive. The apex itself,
// www.<apex>, and hosts outside the apex have no subdomain.
func (s Site) SubdomainFromHost(host string) (string, bool) {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	apex := strings.ToLower(s.Apex)
	if apex == "" || host == apex || host == "www."+apex {
		return "", false
	}
	sub, ok := strings.CutSuffix(host, "."+apex)
	if !ok || sub == "" {
		return "", false
	}
	return sub, true
}

// ProfileURL is the public address of a subdomain.
func (s Site) ProfileURL(subdomain string) string {
	return "https://" + subdomain + "." + s.Apex + "/"
}

// Normalize fills every empty field from the defaults and drops image and
// favicon values that are not absolute, safe http(s) URLs.
func (s Site) Normalize(m Metadata) Metadata {
	d := s.Defaults()
	m.Title = firstNonEmpty(strings.TrimSpace(m.Title), d.Title)
	m.Description = firstNonEmpty(strings.TrimSpace(m.Description), d.Description)
	m.Image = firstNonEmpty(absoluteURL(m.Image), d.Image)
	m.Favicon = firstNonEmpty(absoluteURL(m.Favicon), d.Favicon)
	m.Handle = strings.TrimSpace(m.Handle)
	m.Subdomain = strings.TrimSpace(m.Subdomain)
	if m.URL == "" {
		if m.Subdomain != "" {
			m.URL = s.ProfileURL(m.Subdomain)
		} else {
			m.URL = d.URL
		}
	}
	return m
}

func absoluteURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || !safeurl.IsSafe(raw, "") {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ""
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	return raw
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
