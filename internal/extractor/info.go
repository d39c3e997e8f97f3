package extractor

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Format is one entry of an item's format list
type Format struct {
	ID     string
	URL    string
	Ext    string
	VCodec string
	Width  int
	Height int
}

// Area returns the pixel area of the format, zero when unknown
func (f Format) Area() int { return f.Width * f.Height }

// HasVideo reports whether the format carries a real video stream
func (f Format) HasVideo() bool {
	return f.VCodec != "" && f.VCodec != "none"
}

// Thumbnail is one entry of an item's thumbnail list
type Thumbnail struct {
	URL    string
	Width  int
	Height int
}

// Info is the metadata tree reported by the extractor. A node is either a
// single item or a collection whose Entries are themselves Info nodes.
type Info struct {
	ID         string
	Type       string // "video", "playlist", ...
	Title      string
	URL        string
	Ext        string
	VCodec     string
	Width      int
	Height     int
	Thumbnail  string
	Thumbnails []Thumbnail
	Formats    []Format
	Entries    []*Info

	// Files holds paths reported for downloaded items
	Files []string
}

// IsCollection reports whether the node groups nested entries
func (i *Info) IsCollection() bool {
	return i != nil && (len(i.Entries) > 0 || i.Type == "playlist" || i.Type == "multi_video")
}

// Walk calls visit for every single item under root, depth first in entry
// order. Collections are descended into and never passed to visit.
// Returning false from visit stops the walk.
func Walk(root *Info, visit func(item *Info) bool) {
	walk(root, visit)
}

func walk(node *Info, visit func(*Info) bool) bool {
	if node == nil {
		return true
	}
	if node.IsCollection() {
		for _, e := range node.Entries {
			if !walk(e, visit) {
				return false
			}
		}
		return true
	}
	return visit(node)
}

// HasVideo reports whether any item under root exposes a video stream
func HasVideo(root *Info) bool {
	found := false
	Walk(root, func(item *Info) bool {
		if item.VCodec != "" && item.VCodec != "none" {
			found = true
			return false
		}
		for _, f := range item.Formats {
			if f.HasVideo() {
				found = true
				return false
			}
		}
		return true
	})
	return found
}

// DownloadedFiles returns every file path reported under root, in walk order
func DownloadedFiles(root *Info) []string {
	var files []string
	if root == nil {
		return nil
	}
	// Collections may report files of their own.
	files = append(files, root.Files...)
	Walk(root, func(item *Info) bool {
		if item != root {
			files = append(files, item.Files...)
		}
		return true
	})
	return files
}

// ParseInfo decodes a yt-dlp JSON document into an Info tree
func ParseInfo(data []byte) (*Info, error) {
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode metadata: %w", err)
	}
	return parseInfo(raw), nil
}

func parseInfo(data map[string]interface{}) *Info {
	info := &Info{}

	info.ID = str(data, "id")
	info.Type = str(data, "_type")
	info.Title = str(data, "title")
	info.URL = str(data, "url")
	info.Ext = str(data, "ext")
	info.VCodec = str(data, "vcodec")
	info.Width = num(data, "width")
	info.Height = num(data, "height")
	info.Thumbnail = str(data, "thumbnail")

	if thumbsRaw, ok := data["thumbnails"].([]interface{}); ok {
		for _, raw := range thumbsRaw {
			if m, ok := raw.(map[string]interface{}); ok {
				info.Thumbnails = append(info.Thumbnails, Thumbnail{
					URL:    str(m, "url"),
					Width:  num(m, "width"),
					Height: num(m, "height"),
				})
			}
		}
	}

	if formatsRaw, ok := data["formats"].([]interface{}); ok {
		for _, raw := range formatsRaw {
			if m, ok := raw.(map[string]interface{}); ok {
				info.Formats = append(info.Formats, Format{
					ID:     str(m, "format_id"),
					URL:    str(m, "url"),
					Ext:    str(m, "ext"),
					VCodec: str(m, "vcodec"),
					Width:  num(m, "width"),
					Height: num(m, "height"),
				})
			}
		}
	}

	if entriesRaw, ok := data["entries"].([]interface{}); ok {
		for _, raw := range entriesRaw {
			if m, ok := raw.(map[string]interface{}); ok {
				info.Entries = append(info.Entries, parseInfo(m))
			}
		}
	}

	if reqRaw, ok := data["requested_downloads"].([]interface{}); ok {
		for _, raw := range reqRaw {
			if m, ok := raw.(map[string]interface{}); ok {
				if p := firstString(m, "filepath", "_filename", "filename"); p != "" {
					info.Files = append(info.Files, p)
				}
			}
		}
	}
	if len(info.Files) == 0 {
		if p := firstString(data, "filepath", "_filename"); p != "" {
			info.Files = append(info.Files, p)
		}
	}

	return info
}

func str(m map[string]interface{}, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func num(m map[string]interface{}, key string) int {
	if v, ok := m[key].(float64); ok {
		return int(v)
	}
	return 0
}

func firstString(m map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(str(m, k)); v != "" {
			return v
		}
	}
	return ""
}
