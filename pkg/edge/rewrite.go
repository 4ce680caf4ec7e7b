package edge

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/andesco/subpage/pkg/metadata"
)

var (
	headCloseRe   = regexp.MustCompile(`(?i)</head\s*>`)
	titleRe       = regexp.MustCompile(`(?is)<title\b[^>]*>.*?</title\s*>`)
	ogMetaRe      = regexp.MustCompile(`(?i)<meta\b[^>]*\bproperty\s*=\s*["']og:[^>]*>`)
	twitterMetaRe = regexp.MustCompile(`(?i)<meta\b[^>]*\bname\s*=\s*["']twitter:[^>]*>`)
	iconLinkRe    = regexp.MustCompile(`(?i)<link\b[^>]*\brel\s*=\s*["'](?:shortcut\s+)?icon["'][^>]*>`)

	attrEscaper = strings.NewReplacer(`&`, "&amp;", `<`, "&lt;", `>`, "&gt;", `"`, "&quot;")
)

// HasHeadClose reports whether html has a closing head tag to inject before.
func HasHeadClose(html string) bool {
	return headCloseRe.MatchString(html)
}

// Rewriter splices per-subdomain social-preview tags into HTML documents.
type Rewriter struct {
	fetcher metadata.Fetcher
}

// NewRewriter looks up metadata through fetcher.
func NewRewriter(fetcher metadata.Fetcher) *Rewriter {
	return &Rewriter{fetcher: fetcher}
}

// Rewrite fetches metadata for subdomain and applies it to html. On error the
// caller serves html untouched.
func (rw *Rewriter) Rewrite(ctx context.Context, subdomain, html string) (string, error) {
	m, err := rw.fetcher.Fetch(ctx, subdomain)
	if err != nil {
		return "", fmt.Errorf("metadata for %q: %w", subdomain, err)
	}
	return Inject(html, m), nil
}

// Inject removes every existing og:* and twitter:* meta tag from html, replaces
// the first <title> (or adds one) and inserts fresh tags before </head>. When
// the metadata carries a favicon, existing icon links are replaced as well.
// All values are entity-escaped before insertion.
func Inject(html string, m metadata.Metadata) string {
	title := attrEscaper.Replace(m.Title)
	desc := attrEscaper.Replace(m.Description)
	img := attrEscaper.Replace(m.Image)
	fav := attrEscaper.Replace(m.Favicon)

	card := "summary"
	if img != "" {
		card = "summary_large_image"
	}

	pieces := []string{"<title>" + title + "</title>"}
	pieces = append(pieces,
		`<meta property="og:title" content="`+title+`">`,
		`<meta property="og:description" content="`+desc+`">`,
	)
	if img != "" {
		pieces = append(pieces, `<meta property="og:image" content="`+img+`">`)
	}
	pieces = append(pieces,
		`<meta name="twitter:card" content="`+card+`">`,
		`<meta name="twitter:title" content="`+title+`">`,
		`<meta name="twitter:description" content="`+desc+`">`,
	)
	if img != "" {
		pieces = append(pieces, `<meta name="twitter:image" content="`+img+`">`)
	}
	if fav != "" {
		html = iconLinkRe.ReplaceAllString(html, "")
		pieces = append(pieces, `<link rel="icon" type="`+faviconType(m.Favicon)+`" href="`+fav+`">`)
	}

	html = ogMetaRe.ReplaceAllString(html, "")
	html = twitterMetaRe.ReplaceAllString(html, "")

	if loc := titleRe.FindStringIndex(html); loc != nil {
		html = html[:loc[0]] + pieces[0] + html[loc[1]:]
		pieces = pieces[1:]
	}

	loc := headCloseRe.FindStringIndex(html)
	if loc == nil {
		return html
	}
	return html[:loc[0]] + strings.Join(pieces, "\n") + "\n" + html[loc[0]:]
}

func faviconType(raw string) string {
	p := raw
	if u, err := url.Parse(raw); err == nil {
		p = u.Path
	}
	if strings.EqualFold(path.Ext(p), ".ico") {
		return "image/x-icon"
	}
	return "image/png"
}
