package handlers

import (
	"fmt"
	"os"
	"runtime"
	"runtime/pprof"
	"runtime/trace"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
)

var namedProfiles = []string{"goroutine", "threadcreate", "block", "mutex", "allocs"}

// RegisterPprofRoutes registers pprof profiling endpoints under /debug/pprof,
// behind the given middleware
func RegisterPprofRoutes(router fiber.Router, middleware ...fiber.Handler) {
	profiling := router.Group("/debug/pprof", middleware...)

	profiling.Get("/", pprofIndex)
	// curl .../debug/pprof/profile?seconds=30 > cpu.prof
	profiling.Get("/profile", pprofProfile)
	profiling.Get("/heap", pprofHeap)
	for _, name := range namedProfiles {
		name := name
		profiling.Get("/"+name, func(c *fiber.Ctx) error {
			return writeNamedProfile(c, name)
		})
	}
	profiling.Get("/cmdline", pprofCmdline)
	profiling.Get("/trace", pprofTrace)
}

func pprofIndex(c *fiber.Ctx) error {
	var b strings.Builder
	b.WriteString("<html><head><title>pprof</title></head><body><h1>/debug/pprof/</h1><ul>")
	b.WriteString(`<li><a href="profile?seconds=30">30-second CPU profile</a></li>`)
	b.WriteString(`<li><a href="heap">heap</a></li>`)
	for _, name := range namedProfiles {
		fmt.Fprintf(&b, `<li><a href="%s">%s</a></li>`, name, name)
	}
	b.WriteString(`<li><a href="trace?seconds=5">5-second execution trace</a></li>`)
	fmt.Fprintf(&b, "</ul><p>Total profiles: %d</p></body></html>", len(pprof.Profiles()))

	c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
	return c.SendString(b.String())
}

// seconds reads the duration query parameter, falling back to def when it
// is out of (0, limit]
func seconds(c *fiber.Ctx, def, limit int) time.Duration {
	s := c.QueryInt("seconds", def)
	if s <= 0 || s > limit {
		s = def
	}
	return time.Duration(s) * time.Second
}

func attachment(c *fiber.Ctx, filename string) {
	c.Set(fiber.HeaderContentType, fiber.MIMEOctetStream)
	c.Set(fiber.HeaderContentDisposition, "attachment; filename="+filename)
}

func pprofProfile(c *fiber.Ctx) error {
	d := seconds(c, 30, 300)
	attachment(c, "profile")

	if err := pprof.StartCPUProfile(c.Response().BodyWriter()); err != nil {
		return c.Status(fiber.StatusInternalServerError).SendString("Could not start CPU profile: " + err.Error())
	}
	time.Sleep(d)
	pprof.StopCPUProfile()
	return nil
}

func pprofHeap(c *fiber.Ctx) error {
	attachment(c, "heap")
	runtime.GC()
	if err := pprof.WriteHeapProfile(c.Response().BodyWriter()); err != nil {
		return c.Status(fiber.StatusInternalServerError).SendString("Could not write heap profile: " + err.Error())
	}
	return nil
}

func pprofCmdline(c *fiber.Ctx) error {
	c.Set(fiber.HeaderContentType, fiber.MIMETextPlainCharsetUTF8)
	return c.SendString(strings.Join(os.Args, "\x00"))
}

func pprofTrace(c *fiber.Ctx) error {
	d := seconds(c, 5, 60)
	attachment(c, "trace")

	if err := trace.Start(c.Response().BodyWriter()); err != nil {
		return c.Status(fiber.StatusInternalServerError).SendString("Could not start trace: " + err.Error())
	}
	time.Sleep(d)
	trace.Stop()
	return nil
}

func writeNamedProfile(c *fiber.Ctx, name string) error {
	profile := pprof.Lookup(name)
	if profile == nil {
		return c.Status(fiber.StatusNotFound).SendString("Profile not found: " + name)
	}
	attachment(c, name)
	if err := profile.WriteTo(c.Response().BodyWriter(), 0); err != nil {
		return c.Status(fiber.StatusInternalServerError).SendString("Could not write profile: " + err.Error())
	}
	return nil
}
