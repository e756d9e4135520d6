package blob

import (
	"fmt"
	"net/url"
	"path"
	"regexp"
	"time"
)

// Image keys follow a 14-digit timestamp convention, YYYYMMDDHHMMSS.png.
// The prefix gives both the sort order and the displayed creation time.
const imageKeyTimeLayout = "20060102150405"

var imageKeyPattern = regexp.MustCompile(`^\d{14}\.png$`)

// NewImageKey builds a key for an image created at t.
func NewImageKey(t time.Time) string {
	return t.Format(imageKeyTimeLayout) + ".png"
}

// IsImageKey reports whether key follows the image naming convention.
func IsImageKey(key string) bool {
	return imageKeyPattern.MatchString(key)
}

// KeyFromURL extracts the object key from a public blob URL. Console
// uploads live at the bucket root, so the key is the last path segment.
func KeyFromURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parsing blob url %q: %w", rawURL, err)
	}

	key, err := url.PathUnescape(path.Base(u.Path))
	if err != nil || key == "" || key == "." || key == "/" {
		return "", fmt.Errorf("blob url %q has no object key", rawURL)
	}

	return key, nil
}

// keyCreatedAt derives the creation time encoded in an image key.
func keyCreatedAt(key string) (time.Time, bool) {
	if !IsImageKey(key) {
		return time.Time{}, false
	}
	t, err := time.Parse(imageKeyTimeLayout, key[:14])
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
