package imdb

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/maxxfly/trailerfin/internal/models"
	"github.com/maxxfly/trailerfin/internal/utils"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/html"
)

// nextData is the slice of IMDb's embedded page state we care about
type nextData struct {
	Props struct {
		PageProps struct {
			VideoPlaybackData struct {
				Video struct {
					PlaybackURLs []playbackURL `json:"playbackURLs"`
				} `json:"video"`
			} `json:"videoPlaybackData"`
		} `json:"pageProps"`
	} `json:"props"`
}

type playbackURL struct {
	URL             string `json:"url"`
	VideoMimeType   string `json:"videoMimeType"`
	VideoDefinition string `json:"videoDefinition"`
}

// ResolvePlayback loads a video page and returns the best direct stream URL
// from the page's embedded player data. Returns models.ErrUnavailable when
// the page carries no usable stream.
func (c *Client) ResolvePlayback(ctx context.Context, videoPageURL string) (string, error) {
	doc, err := c.fetchPage(ctx, videoPageURL)
	if err != nil {
		return "", err
	}

	raw := findNextData(doc)
	if raw == "" {
		c.logger.WithField("url", videoPageURL).Warn("Video page has no embedded player data")
		return "", fmt.Errorf("%w: no player data", models.ErrUnavailable)
	}

	var data nextData
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return "", fmt.Errorf("failed to decode player data: %w", err)
	}

	options := make([]utils.PlaybackOption, 0, len(data.Props.PageProps.VideoPlaybackData.Video.PlaybackURLs))
	for _, p := range data.Props.PageProps.VideoPlaybackData.Video.PlaybackURLs {
		options = append(options, utils.PlaybackOption{
			URL:        p.URL,
			MimeType:   p.VideoMimeType,
			Definition: p.VideoDefinition,
		})
	}

	best, ok := utils.BestPlayback(options)
	if !ok {
		return "", fmt.Errorf("%w: no playback URLs", models.ErrUnavailable)
	}

	c.logger.WithFields(logrus.Fields{
		"url":        videoPageURL,
		"definition": best.Definition,
	}).Debug("Resolved IMDb stream URL")

	return best.URL, nil
}

// findNextData returns the body of the page's __NEXT_DATA__ script tag
func findNextData(doc *html.Node) string {
	var raw string
	walk(doc, func(n *html.Node) {
		if raw != "" || n.Type != html.ElementNode || n.Data != "script" {
			return
		}
		if attr(n, "id") != "__NEXT_DATA__" || attr(n, "type") != "application/json" {
			return
		}
		if n.FirstChild != nil && n.FirstChild.Type == html.TextNode {
			raw = strings.TrimSpace(n.FirstChild.Data)
		}
	})
	return raw
}
