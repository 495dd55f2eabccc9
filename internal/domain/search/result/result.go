package result

import "strings"

// Result is a single deduplicated search hit as served to clients.
type Result struct {
	path    string
	caption string
}

// New creates a search result. Backslashes in path become forward slashes.
func New(path, caption string) Result {
	return Result{path: WebPath(path), caption: caption}
}

// Path returns the web-relative image path.
func (r *Result) Path() string { return r.path }

// Caption returns the caption of the closest matching annotation.
func (r *Result) Caption() string { return r.caption }

// WebPath normalizes path separators for web consumption.
func WebPath(p string) string {
	return strings.ReplaceAll(p, `\`, "/")
}
