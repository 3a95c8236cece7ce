package retriever

import (
	"net/url"
	"path"
	"regexp"
	"strings"
)

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// filenameFromURL derives a local file name from the last path segment of
// rawURL. Query strings are ignored.
func filenameFromURL(rawURL string) string {
	name := ""
	if u, err := url.Parse(rawURL); err == nil {
		name = path.Base(u.Path)
	}
	if name == "" || name == "." || name == "/" {
		name = "download"
	}
	return SafeFilename(name)
}

// SafeFilename replaces characters that are not safe in a file name. The
// result is a single path element.
func SafeFilename(name string) string {
	name = unsafeChars.ReplaceAllString(strings.TrimSpace(name), "_")
	name = strings.Trim(name, "._")
	if name == "" {
		return "download"
	}
	return name
}
