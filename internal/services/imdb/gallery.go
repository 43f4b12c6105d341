package imdb

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/maxxfly/trailerfin/internal/models"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/html"
)

const (
	// overlayClass marks the caption span of each tile in the video gallery
	overlayClass = "ipc-lockup-overlay__text ipc-lockup-overlay__text--clamp-none"

	// minFallbackSeconds is the shortest video considered when no tile is
	// labelled Trailer or Clip. Anything shorter is a teaser or a still.
	minFallbackSeconds = 30
)

var (
	seasonNameRegex = regexp.MustCompile(`(?i)\b(?:season|saison)\s*\d+`)
	durationRegex   = regexp.MustCompile(`(?:(\d+)\s*min)?\s*(?:(\d+)\s*sec)?`)
)

// FindTrailerCandidates scans the title's video gallery and returns candidates
// in preference order. The gallery sorted oldest-first is scanned before
// newest-first so that a series' original trailer wins over later
// season-specific uploads; within a page, tiles labelled Trailer come before
// Clip. Videos longer than thirty seconds from the newest-first page are
// appended as a last resort.
//
// An empty slice with a nil error means the title has no usable videos.
func (c *Client) FindTrailerCandidates(ctx context.Context, imdbID string) ([]models.Candidate, error) {
	var (
		candidates []models.Candidate
		fallback   []models.Candidate
		seen       = make(map[string]struct{})
	)

	for _, sort := range []string{"date,asc", "date,desc"} {
		galleryURL := fmt.Sprintf("%s/title/%s/videogallery/?sort=%s", c.baseURL, imdbID, url.QueryEscape(sort))

		c.logger.WithFields(logrus.Fields{
			"imdb_id": imdbID,
			"sort":    sort,
		}).Debug("Fetching IMDb video gallery")

		doc, err := c.fetchPage(ctx, galleryURL)
		if err != nil {
			if errors.Is(err, errNotFound) {
				return nil, nil
			}
			return nil, err
		}

		for _, cand := range c.extractLabelled(doc) {
			if _, ok := seen[cand.Handle]; ok {
				continue
			}
			seen[cand.Handle] = struct{}{}
			candidates = append(candidates, cand)
		}

		// Oldest-first already produced a winner; skip the second fetch.
		if len(candidates) > 0 {
			break
		}

		if sort == "date,desc" {
			fallback = c.extractByDuration(doc, seen)
		}
	}

	candidates = append(candidates, fallback...)

	c.logger.WithFields(logrus.Fields{
		"imdb_id":    imdbID,
		"candidates": len(candidates),
	}).Debug("IMDb gallery scan complete")

	return candidates, nil
}

// extractLabelled collects gallery tiles whose caption contains Trailer or
// Clip, trailers first. Each candidate's handle is the absolute video page
// URL taken from the tile's enclosing anchor.
func (c *Client) extractLabelled(doc *html.Node) []models.Candidate {
	var trailers, clips []models.Candidate

	walk(doc, func(n *html.Node) {
		if n.Type != html.ElementNode || n.Data != "span" || attr(n, "class") != overlayClass {
			return
		}
		caption := strings.TrimSpace(text(n))

		var kind models.CandidateKind
		switch {
		case strings.Contains(caption, "Trailer"):
			kind = models.KindTrailer
		case strings.Contains(caption, "Clip"):
			kind = models.KindClip
		default:
			return
		}

		anchor := ancestorAnchor(n)
		if anchor == nil {
			return
		}

		cand := models.Candidate{
			Kind:   kind,
			Scope:  models.ScopeSeries,
			Handle: c.baseURL + attr(anchor, "href"),
			Name:   caption,
		}
		if seasonNameRegex.MatchString(caption) {
			cand.Scope = models.ScopeSeason
		}

		if kind == models.KindTrailer {
			trailers = append(trailers, cand)
		} else {
			clips = append(clips, cand)
		}
	})

	return append(trailers, clips...)
}

// extractByDuration collects any gallery video longer than minFallbackSeconds.
// Used only when no tile carried a Trailer or Clip label.
func (c *Client) extractByDuration(doc *html.Node, seen map[string]struct{}) []models.Candidate {
	var found []models.Candidate

	walk(doc, func(n *html.Node) {
		if n.Type != html.ElementNode || n.Data != "a" || !strings.Contains(attr(n, "href"), "/video/vi") {
			return
		}

		item := ancestorWithClass(n, "div", "video-item")
		if item == nil {
			return
		}

		var seconds int
		walk(item, func(d *html.Node) {
			if d.Type == html.ElementNode && d.Data == "span" && strings.Contains(attr(d, "class"), "video-duration") {
				seconds = parseDurationSeconds(text(d))
			}
		})
		if seconds <= minFallbackSeconds {
			return
		}

		handle := c.baseURL + attr(n, "href")
		if _, ok := seen[handle]; ok {
			return
		}
		seen[handle] = struct{}{}

		found = append(found, models.Candidate{
			Kind:   models.KindOther,
			Scope:  models.ScopeSeries,
			Handle: handle,
			Name:   strings.TrimSpace(text(item)),
		})
	})

	return found
}

// parseDurationSeconds reads durations of the form "2 min 15 sec", "45 sec"
// or "3 min". Unparseable text yields zero.
func parseDurationSeconds(s string) int {
	m := durationRegex.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0
	}
	minutes, _ := strconv.Atoi(m[1])
	seconds, _ := strconv.Atoi(m[2])
	return minutes*60 + seconds
}

// walk visits every node of the tree in document order
func walk(n *html.Node, visit func(*html.Node)) {
	visit(n)
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		walk(child, visit)
	}
}

// attr returns the value of the named attribute, or "" when absent
func attr(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}

// text concatenates all text nodes under n
func text(n *html.Node) string {
	var b strings.Builder
	walk(n, func(d *html.Node) {
		if d.Type == html.TextNode {
			b.WriteString(d.Data)
		}
	})
	return b.String()
}

// ancestorAnchor returns the nearest enclosing <a> that links to a video page
func ancestorAnchor(n *html.Node) *html.Node {
	for p := n.Parent; p != nil; p = p.Parent {
		if p.Type == html.ElementNode && p.Data == "a" && strings.Contains(attr(p, "href"), "/video/vi") {
			return p
		}
	}
	return nil
}

// ancestorWithClass returns the nearest enclosing element of the given tag
// whose class attribute contains the given class
func ancestorWithClass(n *html.Node, tag, class string) *html.Node {
	for p := n.Parent; p != nil; p = p.Parent {
		if p.Type == html.ElementNode && p.Data == tag && strings.Contains(attr(p, "class"), class) {
			return p
		}
	}
	return nil
}
