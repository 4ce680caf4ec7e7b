package edge

import "net/http"

// HeaderPolicy is the set of hardening headers attached to every response.
type HeaderPolicy struct {
	ContentTypeOptions  string
	ReferrerPolicy      string
	PermissionsPolicy   string
	FrameOptions        string
	CrossOriginOpener   string
	CrossOriginResource string
}

// DefaultHeaderPolicy returns the fixed policy served by the edge.
func DefaultHeaderPolicy() HeaderPolicy {
	return HeaderPolicy{
		ContentTypeOptions:  "nosniff",
		ReferrerPolicy:      "strict-origin-when-cross-origin",
		PermissionsPolicy:   "camera=(), microphone=(), geolocation=()",
		FrameOptions:        "DENY",
		CrossOriginOpener:   "same-origin",
		CrossOriginResource: "same-site",
	}
}

// Apply sets the policy on h, overriding any value already present.
func (p HeaderPolicy) Apply(h http.Header) {
	set := func(key, val string) {
		if val != "" {
			h.Set(key, val)
		}
	}
	set("X-Content-Type-Options", p.ContentTypeOptions)
	set("Referrer-Policy", p.ReferrerPolicy)
	set("Permissions-Policy", p.PermissionsPolicy)
	set("X-Frame-Options", p.FrameOptions)
	set("Cross-Origin-Opener-Policy", p.CrossOriginOpener)
	set("Cross-Origin-Resource-Policy", p.CrossOriginResource)
}
