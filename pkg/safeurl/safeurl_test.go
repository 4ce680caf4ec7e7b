package safeurl

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

const base = "https://alice.example.com"

func TestIsSafe(t *testing.T) {
	tests := []struct {
		url  string
		want bool
	}{
		{"https://example.com", true},
		{"http://example.com/a?b=c#d", true},
		{"mailto:someone@example.com", true},
		{"/relative/path.png", true},
		{"relative.png", true},
		{"#section", true},
		{"?q=1", true},
		{"//cdn.example.com/x.js", true},
		{"javascript:alert(1)", false},
		{"JavaScript:alert(1)", false},
		{"JAVASCRIPT:alert(1)", false},
		{"data:text/html;base64,PHNjcmlwdD4=", false},
		{"DATA:image/png;base64,AAAA", false},
		{"  javascript:alert(1)", false},
		{"\x01javascript:alert(1)", false},
		{"java\tscript:alert(1)", false},
		{"java\nscript:alert(1)", false},
		{"http://[::1", false},
		{"https://example.com/100%", true},
		{"/files/%zz.png", true},
		{"/a%2Fb%", true},
		{"javascript:alert(1)%zz", false},
		{"data:text/html,%zz<script>", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsSafe(tt.url, base), "IsSafe(%q)", tt.url)
	}
}

func TestIsSafe_BadBase(t *testing.T) {
	assert.True(t, IsSafe("https://example.com", "::not a base"))
	assert.False(t, IsSafe("javascript:alert(1)", "::not a base"))
	assert.True(t, IsSafe("/x", ""))
}

func TestEscapeStrayPercent(t *testing.T) {
	assert.Equal(t, "/100%25", escapeStrayPercent("/100%"))
	assert.Equal(t, "/%25zz%41", escapeStrayPercent("/%zz%41"))
	assert.Equal(t, "/a%2Fb", escapeStrayPercent("/a%2Fb"))
	assert.Equal(t, "/plain", escapeStrayPercent("/plain"))
}
