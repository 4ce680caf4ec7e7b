// Package sanitize turns untrusted HTML fragments into markup that is safe to
// insert into another user's page.
//
// The policy is a fixed allow-list: elements outside it are deleted with their
// whole subtree (children are never promoted), event handler attributes are
// always stripped, attributes outside the per-element table are dropped, and
// link/image URLs with javascript: or data: schemes are removed. The result of
// Sanitize is stable: sanitizing it again returns the same string, provided
// escaping has not pushed it past the length cap.
package sanitize

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/andesco/subpage/pkg/safeurl"
)

// DefaultBaseOrigin is used to resolve relative URLs when no base is given.
// Relative URLs always inherit an http(s) scheme so the exact host is irrelevant
// to the outcome.
const DefaultBaseOrigin = "https://localhost"

// Sanitizer applies the allow-list with a specific base origin and input cap.
// The zero value uses DefaultBaseOrigin and DefaultMaxLength.
type Sanitizer struct {
	BaseOrigin string
	MaxLength  int
}

// New returns a Sanitizer resolving relative URLs against baseOrigin.
func New(baseOrigin string) Sanitizer {
	return Sanitizer{BaseOrigin: baseOrigin, MaxLength: DefaultMaxLength}
}

// Sanitize cleans dirty using the default settings.
func Sanitize(dirty string) string {
	return Sanitizer{}.Sanitize(dirty)
}

// SanitizeN cleans dirty after clamping it to maxLength characters.
func SanitizeN(dirty string, maxLength int) string {
	return Sanitizer{MaxLength: maxLength}.Sanitize(dirty)
}

// maxPasses bounds the re-parse loop in Sanitize. Removing a container can
// leave nesting that the parser rebuilds differently (a foster-parented <a>
// inside a dropped <table>, say); each pass flattens one level of that.
const maxPasses = 4

// Sanitize never fails; input that cannot be parsed sanitizes to "".
// The input is clamped once, then cleaned until the serialized markup parses
// back into the tree that was checked, so a browser sees exactly that tree.
func (s Sanitizer) Sanitize(dirty string) string {
	if dirty == "" {
		return ""
	}
	out := s.pass(truncate(dirty, s.maxLength()))
	for i := 1; i < maxPasses; i++ {
		next := s.pass(out)
		if next == out {
			break
		}
		out = next
	}
	return out
}

// pass parses fragment, applies the policy and serializes the result.
func (s Sanitizer) pass(fragment string) string {
	if fragment == "" {
		return ""
	}
	nodes, err := html.ParseFragment(strings.NewReader(fragment), &html.Node{
		Type:     html.ElementNode,
		Data:     "div",
		DataAtom: atom.Div,
	})
	if err != nil {
		return ""
	}
	wrapper := &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div}
	for _, n := range nodes {
		wrapper.AppendChild(n)
	}

	doc := goquery.NewDocumentFromNode(wrapper)

	// Removals are applied after the walk so that detaching a node never
	// makes the traversal skip its siblings.
	var drop []*html.Node
	doc.Find("*").Each(func(_ int, sel *goquery.Selection) {
		n := sel.Get(0)
		tag := strings.ToLower(n.Data)
		if n.Namespace != "" || !allowedTags.has(tag) {
			drop = append(drop, n)
			return
		}
		n.Attr = s.filterAttrs(tag, n.Attr)
	})
	doc.FindNodes(drop...).Remove()

	doc.Find("*").AddSelection(doc.Selection).Contents().FilterFunction(func(_ int, sel *goquery.Selection) bool {
		return sel.Get(0).Type == html.CommentNode
	}).Remove()

	out, err := doc.Html()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(out)
}

func (s Sanitizer) filterAttrs(tag string, attrs []html.Attribute) []html.Attribute {
	kept := attrs[:0]
	var blankTarget, hasRel bool
	for _, a := range attrs {
		name := strings.ToLower(a.Key)
		if a.Namespace != "" || strings.HasPrefix(name, "on") {
			continue
		}
		if !attrAllowed(tag, name) {
			continue
		}
		if urlAttrs[tag] == name && !safeurl.IsSafe(a.Val, s.baseOrigin()) {
			continue
		}
		switch {
		case tag == "a" && name == "target":
			blankTarget = strings.EqualFold(a.Val, "_blank")
		case tag == "a" && name == "rel":
			hasRel = true
		}
		kept = append(kept, html.Attribute{Key: name, Val: a.Val})
	}
	if blankTarget && !hasRel {
		kept = append(kept, html.Attribute{Key: "rel", Val: "noopener"})
	}
	return kept
}

func (s Sanitizer) maxLength() int {
	if s.MaxLength <= 0 {
		return DefaultMaxLength
	}
	return s.MaxLength
}

func (s Sanitizer) baseOrigin() string {
	if s.BaseOrigin == "" {
		return DefaultBaseOrigin
	}
	return s.BaseOrigin
}

// truncate keeps the first max code points of s.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	n := 0
	for i := range s {
		if n == max {
			return s[:i]
		}
		n++
	}
	return s
}
