package types

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Platform identifies the source platform of a link
type Platform string

const (
	PlatformInstagram   Platform = "instagram"
	PlatformTikTok      Platform = "tiktok"
	PlatformUnsupported Platform = "unsupported"
)

// MediaRequest is one inbound link to resolve and deliver
type MediaRequest struct {
	ID        string // uuid, also names the request workspace directory
	URL       string // normalized link
	Platform  Platform
	UserID    int64
	ChatID    int64
	CreatedAt time.Time
}

// MediaKind tells the transport how to present a file
type MediaKind string

const (
	KindVideo   MediaKind = "video"
	KindImage   MediaKind = "image"
	KindUnknown MediaKind = "unknown"
)

var extKinds = map[string]MediaKind{
	".mp4":  KindVideo,
	".mov":  KindVideo,
	".mkv":  KindVideo,
	".webm": KindVideo,
	".m4v":  KindVideo,
	".jpg":  KindImage,
	".jpeg": KindImage,
	".png":  KindImage,
	".webp": KindImage,
	".heic": KindImage,
}

// KindFromExt infers the media kind from a file name extension
func KindFromExt(path string) MediaKind {
	if k, ok := extKinds[strings.ToLower(filepath.Ext(path))]; ok {
		return k
	}
	return KindUnknown
}

// MediaItem is one resolved file on local disk.
// Path always points at an existing, non-empty file.
type MediaItem struct {
	Path string
	Kind MediaKind
	Size int64
}

// NewMediaItem stats path and builds an item for it
func NewMediaItem(path string) (MediaItem, error) {
	info, err := os.Stat(path)
	if err != nil {
		return MediaItem{}, err
	}
	if info.IsDir() {
		return MediaItem{}, fmt.Errorf("%s is a directory", path)
	}
	if info.Size() == 0 {
		return MediaItem{}, fmt.Errorf("%s is empty", path)
	}
	return MediaItem{Path: path, Kind: KindFromExt(path), Size: info.Size()}, nil
}

// ExtractionResult is the ordered output of a resolver
type ExtractionResult struct {
	Items []MediaItem
	Stage string // strategy that produced the items
}

// IsEmpty reports whether nothing was produced
func (r *ExtractionResult) IsEmpty() bool {
	return r == nil || len(r.Items) == 0
}

// IsCarousel reports whether the result holds more than one item
func (r *ExtractionResult) IsCarousel() bool {
	return r != nil && len(r.Items) > 1
}

// Paths returns item paths in order
func (r *ExtractionResult) Paths() []string {
	if r == nil {
		return nil
	}
	paths := make([]string, 0, len(r.Items))
	for _, it := range r.Items {
		paths = append(paths, it.Path)
	}
	return paths
}

// TotalSize returns the sum of item sizes in bytes
func (r *ExtractionResult) TotalSize() int64 {
	if r == nil {
		return 0
	}
	var total int64
	for _, it := range r.Items {
		total += it.Size
	}
	return total
}
