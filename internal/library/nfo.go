package library

import (
	"encoding/xml"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/spf13/afero"
)

var (
	imdbURLRegex  = regexp.MustCompile(`(?i)imdb\.com/title/(tt\d+)`)
	imdbBareRegex = regexp.MustCompile(`\b(tt\d{7,})\b`)
)

// nfoFileNames are checked in order before falling back to any .nfo file.
// tvshow.nfo marks the folder as a series root.
var nfoFileNames = []string{"movie.nfo", "tvshow.nfo"}

// FindIMDbID locates an .nfo file in dir and extracts its IMDb ID. The
// second return reports whether the file identifies a series.
func FindIMDbID(fs afero.Fs, dir string) (string, bool, bool) {
	nfoPath, series := findNFOFile(fs, dir)
	if nfoPath == "" {
		return "", false, false
	}

	content, err := afero.ReadFile(fs, nfoPath)
	if err != nil {
		return "", false, false
	}

	id, ok := ParseNFO(string(content))
	if !ok {
		return "", false, false
	}
	return id, series, true
}

// findNFOFile returns the best .nfo candidate in dir: movie.nfo, then
// tvshow.nfo, then the first other .nfo file.
func findNFOFile(fs afero.Fs, dir string) (string, bool) {
	for _, name := range nfoFileNames {
		path := filepath.Join(dir, name)
		if exists, _ := afero.Exists(fs, path); exists {
			return path, name == "tvshow.nfo"
		}
	}

	entries, err := afero.ReadDir(fs, dir)
	if err != nil {
		return "", false
	}
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(strings.ToLower(entry.Name()), ".nfo") {
			return filepath.Join(dir, entry.Name()), false
		}
	}
	return "", false
}

// ParseNFO extracts an IMDb ID from .nfo content. XML documents
// (Kodi/Jellyfin metadata) are scanned for a uniqueid of type imdb, then for
// imdb, imdbid and id elements. Non-XML content falls back to an imdb.com
// title URL, then to a bare ttNNNNNNN token.
func ParseNFO(content string) (string, bool) {
	if id, ok := parseNFOXML(content); ok {
		return id, true
	}

	if m := imdbURLRegex.FindStringSubmatch(content); m != nil {
		return m[1], true
	}
	if m := imdbBareRegex.FindStringSubmatch(content); m != nil {
		return m[1], true
	}
	return "", false
}

// parseNFOXML walks the document's elements without assuming a root tag.
// Malformed XML yields no result so the caller can fall back to text
// matching.
func parseNFOXML(content string) (string, bool) {
	decoder := xml.NewDecoder(strings.NewReader(content))
	decoder.Strict = false

	var uniqueID, imdbTag, imdbIDTag, idTag string
	var sawElement bool

	for {
		token, err := decoder.Token()
		if err != nil {
			if !sawElement {
				return "", false
			}
			break
		}

		start, ok := token.(xml.StartElement)
		if !ok {
			continue
		}
		sawElement = true

		name := strings.ToLower(start.Name.Local)
		switch name {
		case "uniqueid":
			if uniqueID != "" {
				decoder.Skip()
				continue
			}
			var typ string
			for _, a := range start.Attr {
				if strings.ToLower(a.Name.Local) == "type" {
					typ = a.Value
				}
			}
			text := elementText(decoder)
			if typ == "imdb" {
				uniqueID = text
			}
		case "imdb":
			if imdbTag == "" {
				imdbTag = elementText(decoder)
			}
		case "imdbid":
			if imdbIDTag == "" {
				imdbIDTag = elementText(decoder)
			}
		case "id":
			if idTag == "" {
				idTag = elementText(decoder)
			}
		}
	}

	for _, candidate := range []string{uniqueID, imdbTag, imdbIDTag, idTag} {
		candidate = strings.TrimSpace(candidate)
		if strings.HasPrefix(candidate, "tt") {
			return candidate, true
		}
	}
	return "", false
}

// elementText returns the character data directly inside the element the
// decoder is positioned in
func elementText(decoder *xml.Decoder) string {
	var b strings.Builder
	depth := 1
	for depth > 0 {
		token, err := decoder.Token()
		if err != nil {
			break
		}
		switch t := token.(type) {
		case xml.StartElement:
			depth++
		case xml.EndElement:
			depth--
		case xml.CharData:
			if depth == 1 {
				b.Write(t)
			}
		}
	}
	return b.String()
}
