package extractor

import (
	"time"

	"github.com/tidwall/gjson"
	ffmpeg "github.com/u2takey/ffmpeg-go"
	"go.uber.org/zap"

	"github.com/KeremKalyoncu/medyan-bot/internal/types"
)

// KindProber infers the media kind of files whose extension says nothing.
// Scraped URLs sometimes end in ".php" or carry no extension at all.
type KindProber struct {
	timeout time.Duration
	logger  *zap.Logger
	probe   ProbeFunc
}

// ProbeFunc returns ffprobe's JSON description of the file at path
type ProbeFunc func(path string, timeout time.Duration) (string, error)

// NewKindProber creates a prober backed by ffprobe
func NewKindProber(timeout time.Duration, logger *zap.Logger) *KindProber {
	return NewKindProberWith(func(path string, timeout time.Duration) (string, error) {
		return ffmpeg.ProbeWithTimeout(path, timeout, ffmpeg.KwArgs{})
	}, timeout, logger)
}

// NewKindProberWith creates a prober that inspects streams through fn
func NewKindProberWith(fn ProbeFunc, timeout time.Duration, logger *zap.Logger) *KindProber {
	return &KindProber{timeout: timeout, logger: logger, probe: fn}
}

// Kind returns the extension-derived kind, falling back to ffprobe's view of
// the streams when the extension is unknown
func (p *KindProber) Kind(path string) types.MediaKind {
	if k := types.KindFromExt(path); k != types.KindUnknown {
		return k
	}

	out, err := p.probe(path, p.timeout)
	if err != nil {
		p.logger.Debug("ffprobe failed", zap.String("path", path), zap.Error(err))
		return types.KindUnknown
	}

	return kindFromProbe(out)
}

// kindFromProbe classifies ffprobe JSON. Still images show up as a single
// video stream with an image codec or a one-frame duration.
func kindFromProbe(out string) types.MediaKind {
	streams := gjson.Get(out, `streams.#(codec_type=="video")#`)
	if !streams.Exists() || len(streams.Array()) == 0 {
		return types.KindUnknown
	}

	for _, s := range streams.Array() {
		switch s.Get("codec_name").String() {
		case "mjpeg", "png", "webp", "bmp", "gif", "tiff":
			if s.Get("nb_frames").Int() <= 1 {
				return types.KindImage
			}
		}
	}

	if gjson.Get(out, "format.format_name").String() == "image2" {
		return types.KindImage
	}
	return types.KindVideo
}
