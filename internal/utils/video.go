package utils

import (
	"path/filepath"
	"strings"
)

// videoExtensions are the file extensions counted as media when deciding
// whether a folder is a single-feature folder or an episode folder.
var videoExtensions = map[string]struct{}{
	".mp4":  {},
	".mkv":  {},
	".avi":  {},
	".mov":  {},
	".wmv":  {},
	".m4v":  {},
	".flv":  {},
	".webm": {},
}

// IsVideoFile reports whether name has a recognized video extension
func IsVideoFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	_, ok := videoExtensions[ext]
	return ok
}
