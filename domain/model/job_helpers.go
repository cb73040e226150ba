package model

import (
	"path/filepath"
	"strings"
)

// ValidJobStatus reports whether s is one of the known job statuses.
func ValidJobStatus(s JobStatus) bool {
	switch s {
	case JobNew, JobFieldsReady, JobSubmitted, JobAccepted, JobRejected, JobFinished:
		return true
	}
	return false
}

// Accepts reports whether name matches the factory accept filter.
// The filter is a comma separated list of extensions (".stl") or MIME-ish wildcards ("*").
func (f *Factory) Accepts(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, pattern := range strings.Split(f.AcceptedTypes(), ",") {
		pattern = strings.ToLower(strings.TrimSpace(pattern))
		switch {
		case pattern == "*" || pattern == "*/*":
			return true
		case strings.HasPrefix(pattern, ".") && pattern == ext:
			return true
		}
	}
	return false
}
