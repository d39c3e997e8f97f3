package resolver

import (
	"reflect"
	"testing"

	"github.com/KeremKalyoncu/medyan-bot/internal/extractor"
)

const embeddedPage = `<html><head></head><body><script>
window.__additionalData = JSON.parse("{\"display_resources\":[` +
	`{\"src\":\"https:\/\/cdn.example.com\/p\/small.jpg?stp=s640\u0026_nc=1\",\"config_width\":640,\"config_height\":640},` +
	`{\"src\":\"https:\/\/cdn.example.com\/p\/large.jpg?stp=s1080&_nc=1\",\"config_width\":1080,\"config_height\":1350},` +
	`{\"src\":\"https:\/\/cdn.example.com\/p\/clip.mp4\",\"config_width\":2000,\"config_height\":2000}],` +
	`\"display_url\":\"https:\/\/cdn.example.com\/c\/one.jpg?a=1\u0026b=2\",` +
	`\"edges\":[{\"display_url\":\"https:\/\/cdn.example.com\/c\/two.jpg\"}],` +
	`\"profile\":{\"url\":\"https:\/\/cdn.example.com\/u\/avatar.png\"},` +
	`\"video\":{\"url\":\"https:\/\/cdn.example.com\/v\/clip.mp4\"}}");
</script></body></html>`

func TestHarvestHTML(t *testing.T) {
	got := harvestHTML(embeddedPage)
	want := []string{
		"https://cdn.example.com/p/large.jpg?stp=s1080&_nc=1",
		"https://cdn.example.com/c/one.jpg?a=1&b=2",
		"https://cdn.example.com/c/two.jpg",
		"https://cdn.example.com/u/avatar.png",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("harvestHTML =\n%q\nwant\n%q", got, want)
	}
}

func TestHarvestHTMLEmpty(t *testing.T) {
	if got := harvestHTML(""); len(got) != 0 {
		t.Errorf("expected nothing, got %q", got)
	}
	if got := harvestHTML("<html><body>nothing here</body></html>"); len(got) != 0 {
		t.Errorf("expected nothing, got %q", got)
	}
}

func TestUnescapeURL(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{`https:\/\/a.com\/x.jpg`, "https://a.com/x.jpg"},
		{`https://a.com/x.jpg?a=1\u0026b=2`, "https://a.com/x.jpg?a=1&b=2"},
		{`https://a.com/x.jpg?a=1&amp;b=2`, "https://a.com/x.jpg?a=1&b=2"},
		{`https://a.com/x.jpg?k\u003d1`, "https://a.com/x.jpg?k=1"},
	}
	for _, tt := range tests {
		if got := unescapeURL(tt.in); got != tt.want {
			t.Errorf("unescapeURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestHarvestMetadata(t *testing.T) {
	root := &extractor.Info{
		Type: "playlist",
		Entries: []*extractor.Info{
			{ID: "a", URL: "https://cdn.example.com/a.jpg"},
			{ID: "b", Formats: []extractor.Format{
				{URL: "https://cdn.example.com/b-small.jpg", Ext: "jpg", Width: 320, Height: 320},
				{URL: "https://cdn.example.com/b-video.mp4", Ext: "mp4", VCodec: "avc1", Width: 1080, Height: 1920},
				{URL: "https://cdn.example.com/b-large.jpg", Ext: "jpg", VCodec: "none", Width: 1080, Height: 1080},
			}},
			{ID: "c", Thumbnails: []extractor.Thumbnail{
				{URL: "https://cdn.example.com/c-150.jpg", Width: 150, Height: 150},
				{URL: "https://cdn.example.com/c-640.jpg", Width: 640, Height: 640},
			}},
			{ID: "d", Thumbnail: "https://cdn.example.com/d.jpg"},
			{ID: "e"},
		},
	}

	want := []string{
		"https://cdn.example.com/a.jpg",
		"https://cdn.example.com/b-large.jpg",
		"https://cdn.example.com/c-640.jpg",
		"https://cdn.example.com/d.jpg",
	}
	if got := harvestMetadata(root); !reflect.DeepEqual(got, want) {
		t.Errorf("harvestMetadata =\n%q\nwant\n%q", got, want)
	}
	if got := harvestMetadata(nil); len(got) != 0 {
		t.Errorf("nil metadata produced %q", got)
	}
}

func TestMergeCandidates(t *testing.T) {
	got := mergeCandidates(
		[]string{"h1", "h2", "h1"},
		[]string{"m1", "h2", "", "m2"},
	)
	want := []string{"h1", "h2", "m1", "m2"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("mergeCandidates = %q, want %q", got, want)
	}
}

func TestOpenGraphMedia(t *testing.T) {
	page := `<html><head>
<meta property="og:image" content="https://cdn.example.com/og.jpg?a=1&amp;b=2">
<meta property="og:video" content="https://cdn.example.com/og.mp4">
<meta property="og:title" content="A post">
<meta property="og:image" content="https://cdn.example.com/og.jpg?a=1&amp;b=2">
</head><body></body></html>`

	got := openGraphMedia(page)
	want := []ogCandidate{
		{URL: "https://cdn.example.com/og.mp4", Video: true},
		{URL: "https://cdn.example.com/og.jpg?a=1&b=2", Video: false},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("openGraphMedia = %+v, want %+v", got, want)
	}
}

func TestSafeName(t *testing.T) {
	if got := safeName("../../etc", "ig"); got != "etc" {
		t.Errorf("safeName traversal = %q", got)
	}
	if got := safeName("", "ig"); got != "ig" {
		t.Errorf("safeName empty = %q", got)
	}
	if got := safeName("C0de_x-1", "ig"); got != "C0de_x-1" {
		t.Errorf("safeName kept = %q", got)
	}
}
