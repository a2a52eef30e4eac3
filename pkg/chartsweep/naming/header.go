// Package naming proposes folder names of the form "[artist] title" from the
// #ARTIST and #TITLE header lines of the chart files inside a folder, and
// applies them as renames.
package naming

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/japanese"

	"github.com/jamesainslie/chartsweep/pkg/chartsweep/types"
)

const (
	artistPrefix = "#ARTIST "
	titlePrefix  = "#TITLE "

	// MaxArtistLen and MaxTitleLen bound the sanitized parts of a name, in bytes.
	MaxArtistLen = 50
	MaxTitleLen  = 100
)

var difficultySuffix = regexp.MustCompile(`^(.+?)\s*\[.*?\]\s*$`)

// forbidden holds the characters removed from proposed names.
const forbidden = "/\\\"?<>*:|.\x00"

// ParseHeader extracts the first #ARTIST and #TITLE values from a chart file.
// Lines that are not valid UTF-8 are ignored on the first pass; if either
// value is still missing or empty the whole buffer is decoded as Shift-JIS and
// scanned again.
func ParseHeader(data []byte) (types.NameCandidate, bool) {
	artist, title := scanHeader(string(data), true)
	if artist == "" || title == "" {
		if decoded, err := japanese.ShiftJIS.NewDecoder().Bytes(data); err == nil {
			a, t := scanHeader(string(decoded), false)
			if artist == "" {
				artist = a
			}
			if title == "" {
				title = t
			}
		}
	}
	if artist == "" || title == "" {
		return types.NameCandidate{}, false
	}
	return types.NameCandidate{Artist: artist, Title: title}, true
}

func scanHeader(text string, utf8Only bool) (artist, title string) {
	var haveArtist, haveTitle bool
	for _, line := range strings.Split(text, "\n") {
		if haveArtist && haveTitle {
			break
		}
		if utf8Only && !utf8.ValidString(line) {
			continue
		}
		line = strings.TrimRight(line, "\r")
		switch {
		case !haveArtist && strings.HasPrefix(line, artistPrefix):
			artist = strings.TrimSpace(line[len(artistPrefix):])
			haveArtist = true
		case !haveTitle && strings.HasPrefix(line, titlePrefix):
			title = strings.TrimSpace(line[len(titlePrefix):])
			haveTitle = true
		}
	}
	return artist, title
}

// RemoveDifficulty strips a trailing bracketed difficulty from a title:
// "Song Name [ANOTHER]" becomes "Song Name". Titles without one are returned
// unchanged.
func RemoveDifficulty(title string) string {
	if m := difficultySuffix.FindStringSubmatch(title); m != nil {
		return m[1]
	}
	return title
}

// Sanitize removes characters that are unsafe in a path segment and
// truncates the result to at most limit bytes without splitting a character.
func Sanitize(s string, limit int) string {
	s = strings.ToValidUTF8(s, "")
	s = strings.Map(func(r rune) rune {
		if strings.ContainsRune(forbidden, r) {
			return -1
		}
		return r
	}, s)

	if len(s) > limit {
		cut := limit
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		s = s[:cut]
	}
	return strings.TrimSpace(s)
}
