package resolver

import (
	"html"
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/tidwall/gjson"

	"github.com/KeremKalyoncu/medyan-bot/internal/extractor"
)

var (
	displayResourcesRe = regexp.MustCompile(`"display_resources"\s*:\s*(\[[^\]]*\])`)
	displayURLRe       = regexp.MustCompile(`"display_url"\s*:\s*"([^"]+)"`)
	urlFieldRe         = regexp.MustCompile(`"url"\s*:\s*"([^"]+)"`)
)

var jsonEscapes = strings.NewReplacer(
	`\/`, `/`,
	`\u0026`, `&`,
	`\u003d`, `=`,
	`\u003D`, `=`,
)

// unescapeURL undoes the JSON and HTML escaping found in embedded page data
func unescapeURL(raw string) string {
	return html.UnescapeString(jsonEscapes.Replace(raw))
}

// urlExt returns the lowercased extension of the URL path, ignoring the query
func urlExt(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.ToLower(path.Ext(u.Path))
}

func isImageURL(raw string) bool {
	return strings.HasPrefix(raw, "http") && imageExts[urlExt(raw)]
}

// harvestMetadata collects one direct URL per leaf item of the probe result
func harvestMetadata(info *extractor.Info) []string {
	var urls []string
	extractor.Walk(info, func(item *extractor.Info) bool {
		if u := bestItemURL(item); u != "" {
			urls = append(urls, u)
		}
		return true
	})
	return urls
}

// bestItemURL prefers the item's own URL, then its largest still image
// format, then its largest thumbnail
func bestItemURL(item *extractor.Info) string {
	if item.URL != "" {
		return item.URL
	}

	var best *extractor.Format
	for i := range item.Formats {
		f := &item.Formats[i]
		if f.URL == "" || f.HasVideo() || !imageExts["."+strings.ToLower(f.Ext)] {
			continue
		}
		if best == nil || f.Area() > best.Area() {
			best = f
		}
	}
	if best != nil {
		return best.URL
	}

	var thumb *extractor.Thumbnail
	for i := range item.Thumbnails {
		t := &item.Thumbnails[i]
		if t.URL == "" {
			continue
		}
		if thumb == nil || t.Width*t.Height > thumb.Width*thumb.Height {
			thumb = t
		}
	}
	if thumb != nil {
		return thumb.URL
	}
	return item.Thumbnail
}

// harvestHTML scrapes image URLs from the JSON embedded in a post page.
// The largest display_resources entry comes first, then every display_url,
// then any other image-looking "url" field.
func harvestHTML(page string) []string {
	if page == "" {
		return nil
	}
	text := strings.ReplaceAll(page, `\"`, `"`)

	var urls []string
	if best := largestDisplayResource(text); best != "" {
		urls = append(urls, best)
	}
	for _, m := range displayURLRe.FindAllStringSubmatch(text, -1) {
		urls = append(urls, unescapeURL(m[1]))
	}
	for _, m := range urlFieldRe.FindAllStringSubmatch(text, -1) {
		if u := unescapeURL(m[1]); isImageURL(u) {
			urls = append(urls, u)
		}
	}
	return dedupe(urls)
}

func largestDisplayResource(text string) string {
	var best string
	var bestArea int64 = -1
	for _, m := range displayResourcesRe.FindAllStringSubmatch(text, -1) {
		gjson.Parse(m[1]).ForEach(func(_, v gjson.Result) bool {
			src := unescapeURL(v.Get("src").String())
			if !isImageURL(src) {
				return true
			}
			area := v.Get("config_width").Int() * v.Get("config_height").Int()
			if area > bestArea {
				best, bestArea = src, area
			}
			return true
		})
	}
	return best
}

// mergeCandidates orders page-scraped URLs before metadata URLs, dropping repeats
func mergeCandidates(fromHTML, fromMetadata []string) []string {
	all := make([]string, 0, len(fromHTML)+len(fromMetadata))
	all = append(all, fromHTML...)
	all = append(all, fromMetadata...)
	return dedupe(all)
}

func dedupe(urls []string) []string {
	seen := make(map[string]struct{}, len(urls))
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		if u == "" {
			continue
		}
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}

// ogCandidate is a media URL announced through Open Graph tags
type ogCandidate struct {
	URL   string
	Video bool
}

// openGraphMedia returns og:video URLs followed by og:image URLs
func openGraphMedia(page string) []ogCandidate {
	if page == "" {
		return nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return nil
	}

	var out []ogCandidate
	seen := make(map[string]struct{})
	collect := func(selector string, video bool) {
		doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
			content, ok := s.Attr("content")
			if !ok {
				return
			}
			content = strings.TrimSpace(content)
			if content == "" {
				return
			}
			if _, dup := seen[content]; dup {
				return
			}
			seen[content] = struct{}{}
			out = append(out, ogCandidate{URL: content, Video: video})
		})
	}
	collect(`meta[property="og:video"], meta[property="og:video:secure_url"]`, true)
	collect(`meta[property="og:image"]`, false)
	return out
}
