package sanitize

// DefaultMaxLength caps how much of an input is considered, in characters.
const DefaultMaxLength = 5000

type set map[string]struct{}

func newSet(items ...string) set {
	s := make(set, len(items))
	for _, it := range items {
		s[it] = struct{}{}
	}
	return s
}

func (s set) has(item string) bool {
	_, ok := s[item]
	return ok
}

// allowedTags is the complete list of elements that survive sanitation. Any
// other element is removed together with everything inside it.
var allowedTags = newSet(
	"h1", "h2", "h3", "h4", "h5", "h6",
	"p", "a", "ul", "ol", "li",
	"strong", "em", "b", "i", "u", "s",
	"code", "pre", "blockquote",
	"img", "div", "span", "br", "hr",
)

// globalAttrs are accepted on every allowed element.
var globalAttrs = newSet("title", "aria-label", "role")

// tagAttrs holds the extra attributes per element; "*" applies to all of them.
var tagAttrs = map[string]set{
	"*":   newSet("class", "id"),
	"a":   newSet("href", "target", "rel"),
	"img": newSet("src", "alt", "width", "height"),
}

// urlAttrs names the attribute of each element whose value is a URL and must
// pass safeurl.IsSafe.
var urlAttrs = map[string]string{
	"a":   "href",
	"img": "src",
}

func attrAllowed(tag, name string) bool {
	return globalAttrs.has(name) || tagAttrs["*"].has(name) || tagAttrs[tag].has(name)
}
