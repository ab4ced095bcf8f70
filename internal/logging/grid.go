// ABOUTME: Grid detection for request logging.
// ABOUTME: Extracts the requested grid name from a tabulator AJAX request.

package logging

import (
	"mime"
	"net/url"
	"strings"
)

// GetGridFromRequest returns the grid name a request targets, or "" when the
// request is not a tabulator call. The name travels in the form body; the
// query string is checked as a fallback.
func GetGridFromRequest(path, rawQuery, contentType, body string) string {
	if !strings.HasPrefix(path, "/rocktabulator") {
		return ""
	}
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil && mediaType == "application/x-www-form-urlencoded" {
		if form, err := url.ParseQuery(body); err == nil {
			if name := form.Get("name"); name != "" {
				return name
			}
		}
	}
	if q, err := url.ParseQuery(rawQuery); err == nil {
		return q.Get("name")
	}
	return ""
}
