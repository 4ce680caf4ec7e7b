package profile

import (
	"context"
	"errors"
	"net/url"
	"strings"
)

// FileURLs maps stored object paths ("avatars/<uid>/a.png") to public URLs
// under a bucket base URL. Signing and upload live in the blob store.
type FileURLs struct {
	BaseURL string
}

func (f FileURLs) URL(_ context.Context, path string) (string, error) {
	if f.BaseURL == "" {
		return "", errors.New("file urls: no base url configured")
	}
	path = strings.TrimPrefix(path, "/")
	if path == "" || strings.Contains(path, "..") {
		return "", ErrInvalidArgument
	}
	segs := strings.Split(path, "/")
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	return strings.TrimSuffix(f.BaseURL, "/") + "/" + strings.Join(segs, "/"), nil
}
