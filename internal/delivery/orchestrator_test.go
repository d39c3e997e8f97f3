package delivery

import (
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/KeremKalyoncu/medyan-bot/internal/errors"
	"github.com/KeremKalyoncu/medyan-bot/internal/metrics"
	"github.com/KeremKalyoncu/medyan-bot/internal/pool"
	"github.com/KeremKalyoncu/medyan-bot/internal/ratelimit"
	"github.com/KeremKalyoncu/medyan-bot/internal/resolver"
	"github.com/KeremKalyoncu/medyan-bot/internal/types"
	"github.com/KeremKalyoncu/medyan-bot/pkg/storage"
)

const (
	tiktokLink    = "look https://www.tiktok.com/@someone/video/7301?is_from_webapp=1"
	instagramLink = "https://www.instagram.com/p/C0de/?igsh=abc"
)

type sentMedia struct {
	Name string
	Kind MediaType
}

// fakeConversation records everything the orchestrator says
type fakeConversation struct {
	mu          sync.Mutex
	statuses    []string
	statusShown bool
	clears      int
	media       []sentMedia
	replies     []string
	failOnSend  int // 1-based index of the SendMedia call that fails
}

func (c *fakeConversation) Status(_ context.Context, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.statuses = append(c.statuses, text)
	c.statusShown = true
	return nil
}

func (c *fakeConversation) ClearStatus(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.statusShown {
		c.clears++
	}
	c.statusShown = false
	return nil
}

func (c *fakeConversation) SendMedia(_ context.Context, path string, kind MediaType) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failOnSend > 0 && len(c.media)+1 == c.failOnSend {
		return stderrors.New("Bad Request: file is too big")
	}
	if _, err := os.Stat(path); err != nil {
		return err
	}
	c.media = append(c.media, sentMedia{Name: filepath.Base(path), Kind: kind})
	return nil
}

func (c *fakeConversation) Reply(_ context.Context, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.replies = append(c.replies, text)
	return nil
}

// resolverFunc adapts a function to resolver.Resolver
type resolverFunc func(ctx context.Context, req *types.MediaRequest, dir string) (*types.ExtractionResult, error)

func (f resolverFunc) Resolve(ctx context.Context, req *types.MediaRequest, dir string) (*types.ExtractionResult, error) {
	return f(ctx, req, dir)
}

// writeFiles creates the named files of the given sizes and builds a result
func writeFiles(t *testing.T, dir string, sizes map[string]int) *types.ExtractionResult {
	t.Helper()
	names := make([]string, 0, len(sizes))
	for name := range sizes {
		names = append(names, name)
	}
	sort.Strings(names)

	result := &types.ExtractionResult{Stage: "extractor"}
	for _, name := range names {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, make([]byte, sizes[name]), 0644); err != nil {
			t.Fatal(err)
		}
		item, err := types.NewMediaItem(path)
		if err != nil {
			t.Fatal(err)
		}
		result.Items = append(result.Items, item)
	}
	return result
}

type harness struct {
	orch      *Orchestrator
	workspace *storage.LocalWorkspace
	metrics   *metrics.Metrics
}

func newHarness(t *testing.T, deps Deps, cfg Config) *harness {
	t.Helper()
	logger := zaptest.NewLogger(t)
	ws, err := storage.NewLocalWorkspace(t.TempDir(), logger)
	if err != nil {
		t.Fatal(err)
	}
	deps.Workspace = ws
	if deps.Metrics == nil {
		deps.Metrics = metrics.New()
	}
	if deps.Runner == nil {
		wp := pool.NewWorkerPool(2, 8)
		t.Cleanup(func() { _ = wp.Shutdown(context.Background()) })
		deps.Runner = wp
	}
	return &harness{orch: New(deps, cfg, logger), workspace: ws, metrics: deps.Metrics}
}

func (h *harness) assertWorkspaceEmpty(t *testing.T) {
	t.Helper()
	entries, err := os.ReadDir(h.workspace.Base())
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("workspace not cleaned: %d entries left", len(entries))
	}
}

func TestHandleTikTokDelivers(t *testing.T) {
	var gotURL string
	tiktok := resolverFunc(func(_ context.Context, req *types.MediaRequest, dir string) (*types.ExtractionResult, error) {
		gotURL = req.URL
		return writeFiles(t, dir, map[string]int{"7301.mp4": 64}), nil
	})
	h := newHarness(t, Deps{Resolvers: map[types.Platform]resolver.Resolver{types.PlatformTikTok: tiktok}}, Config{})
	conv := &fakeConversation{}

	if err := h.orch.Handle(context.Background(), Message{Text: tiktokLink, UserID: 1, ChatID: 10}, conv); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	if gotURL != "https://www.tiktok.com/@someone/video/7301" {
		t.Errorf("resolver got %q", gotURL)
	}
	if len(conv.media) != 1 || conv.media[0] != (sentMedia{Name: "7301.mp4", Kind: MediaVideo}) {
		t.Errorf("media = %+v", conv.media)
	}
	if strings.Join(conv.statuses, "|") != "Downloading...|Uploading..." {
		t.Errorf("statuses = %q", conv.statuses)
	}
	if conv.statusShown || conv.clears != 1 {
		t.Errorf("status not cleared: shown=%v clears=%d", conv.statusShown, conv.clears)
	}
	if len(conv.replies) != 0 {
		t.Errorf("unexpected replies %q", conv.replies)
	}
	h.assertWorkspaceEmpty(t)

	if h.metrics.DeliveredRequests.Load() != 1 || h.metrics.StageWins("tiktok:extractor") != 1 {
		t.Errorf("metrics = %+v", h.metrics.GetSnapshot())
	}
}

func TestHandleCarouselTypes(t *testing.T) {
	ig := resolverFunc(func(_ context.Context, _ *types.MediaRequest, dir string) (*types.ExtractionResult, error) {
		return writeFiles(t, dir, map[string]int{"1.jpg": 10, "2.webp": 10, "3.mp4": 10, "4.png": 10}), nil
	})
	h := newHarness(t, Deps{Resolvers: map[types.Platform]resolver.Resolver{types.PlatformInstagram: ig}}, Config{})
	conv := &fakeConversation{}

	if err := h.orch.Handle(context.Background(), Message{Text: instagramLink, UserID: 2}, conv); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	want := []sentMedia{
		{"1.jpg", MediaPhoto},
		{"2.webp", MediaDocument},
		{"3.mp4", MediaVideo},
		{"4.png", MediaPhoto},
	}
	if len(conv.media) != len(want) {
		t.Fatalf("media = %+v", conv.media)
	}
	for i := range want {
		if conv.media[i] != want[i] {
			t.Errorf("media[%d] = %+v, want %+v", i, conv.media[i], want[i])
		}
	}
}

func TestHandleNoLink(t *testing.T) {
	called := false
	r := resolverFunc(func(context.Context, *types.MediaRequest, string) (*types.ExtractionResult, error) {
		called = true
		return nil, nil
	})
	h := newHarness(t, Deps{Resolvers: map[types.Platform]resolver.Resolver{types.PlatformTikTok: r}}, Config{})
	conv := &fakeConversation{}

	err := h.orch.Handle(context.Background(), Message{Text: "hello there", Language: LangRussian}, conv)
	if !stderrors.Is(err, errors.ErrNoMatch) {
		t.Fatalf("err = %v", err)
	}
	if called {
		t.Error("resolver called without a link")
	}
	if len(conv.replies) != 1 || conv.replies[0] != T(LangRussian, MsgNoLink) {
		t.Errorf("replies = %q", conv.replies)
	}
	if len(conv.statuses) != 0 {
		t.Error("status shown for a message without a link")
	}
}

func TestHandleOversizedAbortsBatch(t *testing.T) {
	ig := resolverFunc(func(_ context.Context, _ *types.MediaRequest, dir string) (*types.ExtractionResult, error) {
		return writeFiles(t, dir, map[string]int{"1.jpg": 100, "2.mp4": 4096}), nil
	})
	h := newHarness(t, Deps{Resolvers: map[types.Platform]resolver.Resolver{types.PlatformInstagram: ig}}, Config{MaxFileBytes: 1024})
	conv := &fakeConversation{}

	err := h.orch.Handle(context.Background(), Message{Text: instagramLink, UserID: 3}, conv)
	if !stderrors.Is(err, errors.ErrOversized) {
		t.Fatalf("err = %v", err)
	}
	details, ok := errors.GetDetails(err).(errors.SizeDetails)
	if !ok || details.Size != 4096 || details.Limit != 1024 || filepath.Base(details.Path) != "2.mp4" {
		t.Errorf("details = %+v", errors.GetDetails(err))
	}
	if len(conv.media) != 0 {
		t.Errorf("media sent despite oversized batch: %+v", conv.media)
	}
	if len(conv.replies) != 1 || !strings.Contains(conv.replies[0], "too large") {
		t.Errorf("replies = %q", conv.replies)
	}
	if h.metrics.OversizedRejections.Load() != 1 {
		t.Error("oversize not counted")
	}
	h.assertWorkspaceEmpty(t)
}

func TestHandleFileAtLimitIsSent(t *testing.T) {
	r := resolverFunc(func(_ context.Context, _ *types.MediaRequest, dir string) (*types.ExtractionResult, error) {
		return writeFiles(t, dir, map[string]int{"v.mp4": 1024}), nil
	})
	h := newHarness(t, Deps{Resolvers: map[types.Platform]resolver.Resolver{types.PlatformTikTok: r}}, Config{MaxFileBytes: 1024})
	conv := &fakeConversation{}

	if err := h.orch.Handle(context.Background(), Message{Text: tiktokLink}, conv); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(conv.media) != 1 {
		t.Errorf("media = %+v", conv.media)
	}
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestHandleInstagramCooldown(t *testing.T) {
	var calls atomic.Int32
	ig := resolverFunc(func(_ context.Context, _ *types.MediaRequest, dir string) (*types.ExtractionResult, error) {
		calls.Add(1)
		return writeFiles(t, dir, map[string]int{"1.jpg": 10}), nil
	})
	clock := &testClock{now: time.Unix(1_700_000_000, 0)}
	cooldown := ratelimit.NewMemoryCooldown(30 * time.Second).WithClock(clock.Now)
	h := newHarness(t, Deps{
		Resolvers: map[types.Platform]resolver.Resolver{types.PlatformInstagram: ig},
		Cooldown:  cooldown,
	}, Config{})
	ctx := context.Background()
	msg := Message{Text: instagramLink, UserID: 77}

	if err := h.orch.Handle(ctx, msg, &fakeConversation{}); err != nil {
		t.Fatalf("first request: %v", err)
	}

	clock.Advance(10*time.Second + 500*time.Millisecond)
	conv := &fakeConversation{}
	err := h.orch.Handle(ctx, msg, conv)
	if !stderrors.Is(err, errors.ErrRateLimited) {
		t.Fatalf("second request err = %v", err)
	}
	if d, _ := errors.GetDetails(err).(errors.CooldownDetails); d.RemainingSeconds != 20 {
		t.Errorf("remaining = %d, want 20", d.RemainingSeconds)
	}
	if len(conv.replies) != 1 || conv.replies[0] != "Please wait 20 seconds before your next Instagram request." {
		t.Errorf("replies = %q", conv.replies)
	}
	if calls.Load() != 1 {
		t.Errorf("resolver calls = %d", calls.Load())
	}

	// TikTok is never throttled
	tt := &fakeConversation{}
	h.orch.deps.Resolvers[types.PlatformTikTok] = resolverFunc(func(_ context.Context, _ *types.MediaRequest, dir string) (*types.ExtractionResult, error) {
		return writeFiles(t, dir, map[string]int{"v.mp4": 10}), nil
	})
	if err := h.orch.Handle(ctx, Message{Text: tiktokLink, UserID: 77}, tt); err != nil {
		t.Errorf("TikTok throttled: %v", err)
	}

	clock.Advance(20 * time.Second)
	if err := h.orch.Handle(ctx, msg, &fakeConversation{}); err != nil {
		t.Fatalf("request after window: %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("resolver calls = %d", calls.Load())
	}
	if h.metrics.CooldownRejections.Load() != 1 {
		t.Errorf("cooldown rejections = %d", h.metrics.CooldownRejections.Load())
	}
}

type brokenCooldown struct{}

func (brokenCooldown) Acquire(context.Context, int64) (time.Duration, error) {
	return 0, stderrors.New("dial tcp: connection refused")
}

func TestHandleCooldownBackendFailureAdmits(t *testing.T) {
	ig := resolverFunc(func(_ context.Context, _ *types.MediaRequest, dir string) (*types.ExtractionResult, error) {
		return writeFiles(t, dir, map[string]int{"1.jpg": 10}), nil
	})
	h := newHarness(t, Deps{
		Resolvers: map[types.Platform]resolver.Resolver{types.PlatformInstagram: ig},
		Cooldown:  brokenCooldown{},
	}, Config{})

	if err := h.orch.Handle(context.Background(), Message{Text: instagramLink, UserID: 5}, &fakeConversation{}); err != nil {
		t.Fatalf("Handle: %v", err)
	}
}

func TestHandleInstagramGateSerializes(t *testing.T) {
	var active, peak atomic.Int32
	ig := resolverFunc(func(_ context.Context, _ *types.MediaRequest, dir string) (*types.ExtractionResult, error) {
		n := active.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(30 * time.Millisecond)
		active.Add(-1)
		return writeFiles(t, dir, map[string]int{"1.jpg": 10}), nil
	})
	h := newHarness(t, Deps{
		Resolvers: map[types.Platform]resolver.Resolver{types.PlatformInstagram: ig},
		Gate:      ratelimit.NewGate(1),
	}, Config{})

	var wg sync.WaitGroup
	errs := make(chan error, 3)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func(user int64) {
			defer wg.Done()
			errs <- h.orch.Handle(context.Background(), Message{Text: instagramLink, UserID: user}, &fakeConversation{})
		}(int64(100 + i))
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("Handle: %v", err)
		}
	}
	if peak.Load() != 1 {
		t.Errorf("peak concurrent resolutions = %d, want 1", peak.Load())
	}
}

func TestHandleResolutionFailure(t *testing.T) {
	ig := resolverFunc(func(_ context.Context, _ *types.MediaRequest, dir string) (*types.ExtractionResult, error) {
		_ = os.WriteFile(filepath.Join(dir, "partial.mp4.part"), []byte("x"), 0644)
		return nil, errors.ErrNoMedia
	})
	h := newHarness(t, Deps{Resolvers: map[types.Platform]resolver.Resolver{types.PlatformInstagram: ig}}, Config{})
	conv := &fakeConversation{}

	err := h.orch.Handle(context.Background(), Message{Text: instagramLink}, conv)
	if !stderrors.Is(err, errors.ErrNoMedia) {
		t.Fatalf("err = %v", err)
	}
	if len(conv.replies) != 1 || conv.replies[0] != T(LangEnglish, MsgInstagramFailed) {
		t.Errorf("replies = %q", conv.replies)
	}
	if conv.statusShown {
		t.Error("status left behind")
	}
	if h.metrics.FailedRequests.Load() != 1 {
		t.Error("failure not counted")
	}
	h.assertWorkspaceEmpty(t)
}

func TestHandleWrapsPlainResolverErrors(t *testing.T) {
	r := resolverFunc(func(context.Context, *types.MediaRequest, string) (*types.ExtractionResult, error) {
		return nil, stderrors.New("boom")
	})
	h := newHarness(t, Deps{Resolvers: map[types.Platform]resolver.Resolver{types.PlatformTikTok: r}}, Config{})
	conv := &fakeConversation{}

	err := h.orch.Handle(context.Background(), Message{Text: tiktokLink}, conv)
	if !stderrors.Is(err, errors.ErrResolutionFailed) {
		t.Fatalf("err = %v", err)
	}
	if len(conv.replies) != 1 || conv.replies[0] != T(LangEnglish, MsgTikTokFailed) {
		t.Errorf("replies = %q", conv.replies)
	}
}

func TestHandleEmptyResultIsNoMedia(t *testing.T) {
	r := resolverFunc(func(context.Context, *types.MediaRequest, string) (*types.ExtractionResult, error) {
		return &types.ExtractionResult{Stage: "extractor"}, nil
	})
	h := newHarness(t, Deps{Resolvers: map[types.Platform]resolver.Resolver{types.PlatformTikTok: r}}, Config{})

	err := h.orch.Handle(context.Background(), Message{Text: tiktokLink}, &fakeConversation{})
	if !stderrors.Is(err, errors.ErrNoMedia) {
		t.Fatalf("err = %v", err)
	}
}

func TestHandleSendFailureStillCleansUp(t *testing.T) {
	ig := resolverFunc(func(_ context.Context, _ *types.MediaRequest, dir string) (*types.ExtractionResult, error) {
		return writeFiles(t, dir, map[string]int{"1.jpg": 10, "2.jpg": 10, "3.jpg": 10}), nil
	})
	h := newHarness(t, Deps{Resolvers: map[types.Platform]resolver.Resolver{types.PlatformInstagram: ig}}, Config{})
	conv := &fakeConversation{failOnSend: 2}

	err := h.orch.Handle(context.Background(), Message{Text: instagramLink}, conv)
	if !stderrors.Is(err, errors.ErrDeliveryFailed) {
		t.Fatalf("err = %v", err)
	}
	if len(conv.media) != 1 {
		t.Errorf("media = %+v", conv.media)
	}
	if len(conv.replies) != 1 || conv.replies[0] != T(LangEnglish, MsgDeliveryFailed, "Bad Request: file is too big") {
		t.Errorf("replies = %q", conv.replies)
	}
	h.assertWorkspaceEmpty(t)
}

func TestHandleUnsupportedPlatformResolver(t *testing.T) {
	h := newHarness(t, Deps{Resolvers: map[types.Platform]resolver.Resolver{}}, Config{})

	conv := &fakeConversation{}

	err := h.orch.Handle(context.Background(), Message{Text: tiktokLink}, conv)
	if !stderrors.Is(err, errors.ErrUnsupportedPlatform) {
		t.Fatalf("err = %v", err)
	}
	if len(conv.replies) != 1 || !strings.HasPrefix(conv.replies[0], "Something went wrong: ") {
		t.Errorf("replies = %q", conv.replies)
	}
	h.assertWorkspaceEmpty(t)
}

func TestMediaTypeFor(t *testing.T) {
	tests := map[string]MediaType{
		"a.jpg":  MediaPhoto,
		"a.JPEG": MediaPhoto,
		"a.png":  MediaPhoto,
		"a.webp": MediaDocument,
		"a.mp4":  MediaVideo,
		"a.mkv":  MediaVideo,
		"noext":  MediaVideo,
	}
	for path, want := range tests {
		if got := MediaTypeFor(path); got != want {
			t.Errorf("MediaTypeFor(%q) = %s, want %s", path, got, want)
		}
	}
}

func TestMessages(t *testing.T) {
	if got := T(LangRussian, MsgCooldown, 12); !strings.Contains(got, "12") {
		t.Errorf("russian cooldown = %q", got)
	}
	if got := T(Language("de"), MsgNoLink); got != T(LangEnglish, MsgNoLink) {
		t.Errorf("fallback = %q", got)
	}
	for lang := range catalog {
		for key := range catalog[LangEnglish] {
			if _, ok := catalog[lang][key]; !ok {
				t.Errorf("%s missing %s", lang, key)
			}
		}
	}
	if ParseLanguage("ru-RU") != LangRussian || ParseLanguage("en-GB") != LangEnglish || ParseLanguage("") != LangEnglish {
		t.Error("ParseLanguage mismatch")
	}
}
