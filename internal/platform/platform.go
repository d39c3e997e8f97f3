// Package platform finds supported links in free text and classifies them.
package platform

import (
	"regexp"
	"strings"

	"github.com/KeremKalyoncu/medyan-bot/internal/errors"
	"github.com/KeremKalyoncu/medyan-bot/internal/types"
)

var linkPattern = regexp.MustCompile(`https?://(?:[\w.-]+\.)?(?:instagram\.com|tiktok\.com)/[^\s]+`)

// trailingCutset is closing punctuation users tend to glue onto a pasted link
const trailingCutset = `.,);]>"'` + "”’»"

// Normalize strips trailing punctuation and drops the query and fragment
func Normalize(raw string) string {
	u := strings.TrimRight(raw, trailingCutset)
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		u = u[:i]
	}
	return u
}

// Classify maps a normalized link to its platform by host substring
func Classify(link string) (types.Platform, error) {
	switch {
	case strings.Contains(link, "tiktok.com"):
		return types.PlatformTikTok, nil
	case strings.Contains(link, "instagram.com"):
		return types.PlatformInstagram, nil
	default:
		return types.PlatformUnsupported, errors.ErrUnsupportedPlatform
	}
}

// Parse locates the first supported link in text, normalizes and classifies it.
// It returns ErrNoMatch when text carries no supported link.
func Parse(text string) (string, types.Platform, error) {
	raw := linkPattern.FindString(text)
	if raw == "" {
		return "", types.PlatformUnsupported, errors.ErrNoMatch
	}

	link := Normalize(raw)
	p, err := Classify(link)
	if err != nil {
		return "", p, err
	}
	return link, p, nil
}
