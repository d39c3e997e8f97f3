package platform

import (
	stderrors "errors"
	"testing"

	"github.com/KeremKalyoncu/medyan-bot/internal/errors"
	"github.com/KeremKalyoncu/medyan-bot/internal/types"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		want     string
		platform types.Platform
	}{
		{
			name:     "tiktok with query",
			text:     "check this https://www.tiktok.com/@user/video/123456789?lang=en",
			want:     "https://www.tiktok.com/@user/video/123456789",
			platform: types.PlatformTikTok,
		},
		{
			name:     "instagram reel in parentheses",
			text:     "(see https://www.instagram.com/reel/Cxample123/).",
			want:     "https://www.instagram.com/reel/Cxample123/",
			platform: types.PlatformInstagram,
		},
		{
			name:     "instagram fragment and quotes",
			text:     `"https://instagram.com/p/ABC/#comments"`,
			want:     "https://instagram.com/p/ABC/",
			platform: types.PlatformInstagram,
		},
		{
			name:     "tiktok subdomain",
			text:     "vm link: https://vm.tiktok.com/ZMabc123/;",
			want:     "https://vm.tiktok.com/ZMabc123/",
			platform: types.PlatformTikTok,
		},
		{
			name:     "first link wins",
			text:     "https://www.instagram.com/p/ONE/ and https://www.tiktok.com/@a/video/2",
			want:     "https://www.instagram.com/p/ONE/",
			platform: types.PlatformInstagram,
		},
		{
			name:     "typographic quote and angle bracket",
			text:     "“https://www.instagram.com/reel/XYZ/”>",
			want:     "https://www.instagram.com/reel/XYZ/",
			platform: types.PlatformInstagram,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, p, err := Parse(tt.text)
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if got != tt.want {
				t.Errorf("url = %q, want %q", got, tt.want)
			}
			if p != tt.platform {
				t.Errorf("platform = %s, want %s", p, tt.platform)
			}
		})
	}
}

func TestParseNoMatch(t *testing.T) {
	for _, text := range []string{
		"",
		"hello there",
		"https://www.youtube.com/watch?v=abc",
		"https://example.com/instagram.com",
		"instagram.com/reel/abc without scheme",
	} {
		_, p, err := Parse(text)
		if !stderrors.Is(err, errors.ErrNoMatch) {
			t.Errorf("Parse(%q) err = %v, want ErrNoMatch", text, err)
		}
		if p != types.PlatformUnsupported {
			t.Errorf("Parse(%q) platform = %s", text, p)
		}
	}
}

func TestClassifyUnsupported(t *testing.T) {
	p, err := Classify("https://example.com/video")
	if !stderrors.Is(err, errors.ErrUnsupportedPlatform) || p != types.PlatformUnsupported {
		t.Fatalf("Classify = %s, %v", p, err)
	}
}

func TestNormalize(t *testing.T) {
	tests := map[string]string{
		"https://www.tiktok.com/@u/video/1?is_from_webapp=1&sender_device=pc": "https://www.tiktok.com/@u/video/1",
		"https://www.instagram.com/p/X/?igsh=abc.":                            "https://www.instagram.com/p/X/",
		"https://www.instagram.com/reel/X/]":                                  "https://www.instagram.com/reel/X/",
		"https://www.instagram.com/reel/X":                                    "https://www.instagram.com/reel/X",
	}
	for in, want := range tests {
		if got := Normalize(in); got != want {
			t.Errorf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}
}
