package utils

import (
	"sort"
	"strings"
)

// PlaybackOption is one candidate stream for a video, as exposed by the
// IMDb player data.
type PlaybackOption struct {
	URL        string
	MimeType   string // e.g. "MP4", "M3U8"
	Definition string // e.g. "1080p", "720p", "480p", "AUTO"
}

// BestPlayback ranks playback options by:
// 1. MP4 streams (direct URLs players can open without a manifest)
// 2. Definition (1080 > 720 > 480 > anything else)
// Falls back to the first option of any type when no MP4 exists.
// Returns false when there are no options at all.
func BestPlayback(options []PlaybackOption) (PlaybackOption, bool) {
	var mp4s []PlaybackOption
	for _, opt := range options {
		if strings.Contains(strings.ToUpper(opt.MimeType), "MP4") {
			mp4s = append(mp4s, opt)
		}
	}

	if len(mp4s) > 0 {
		sorted := make([]PlaybackOption, len(mp4s))
		copy(sorted, mp4s)

		// Stable so that among equal definitions the catalog's own order wins
		sort.SliceStable(sorted, func(i, j int) bool {
			return definitionValue(sorted[i].Definition) > definitionValue(sorted[j].Definition)
		})

		return sorted[0], true
	}

	if len(options) > 0 {
		return options[0], true
	}

	return PlaybackOption{}, false
}

// definitionValue assigns a numeric value to each definition for comparison
func definitionValue(definition string) int {
	switch {
	case strings.Contains(definition, "1080"):
		return 3
	case strings.Contains(definition, "720"):
		return 2
	case strings.Contains(definition, "480"):
		return 1
	default:
		return 0
	}
}
