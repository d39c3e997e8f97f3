// Package session holds the browser-exported cookies shared by all
// Instagram requests.
package session

import (
	"bufio"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/publicsuffix"
)

const httpOnlyPrefix = "#HttpOnly_"

// Store loads a Netscape-format cookie file once and serves it read-only
type Store struct {
	path   string
	logger *zap.Logger

	once    sync.Once
	raw     []byte
	cookies []*http.Cookie
	jar     http.CookieJar
}

// NewStore creates a store for path. An empty path means anonymous access.
func NewStore(path string, logger *zap.Logger) *Store {
	return &Store{path: path, logger: logger}
}

// Path returns the configured cookie file path
func (s *Store) Path() string { return s.path }

func (s *Store) load() {
	s.once.Do(func() {
		jar, _ := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
		s.jar = jar

		if s.path == "" {
			return
		}

		data, err := os.ReadFile(s.path)
		if err != nil {
			s.logger.Warn("Cookie file unavailable, continuing anonymously",
				zap.String("path", s.path),
				zap.Error(err),
			)
			return
		}

		cookies, err := ParseNetscape(string(data))
		if err != nil {
			s.logger.Warn("Cookie file could not be parsed, continuing anonymously",
				zap.String("path", s.path),
				zap.Error(err),
			)
			return
		}

		for _, c := range cookies {
			host := strings.TrimPrefix(c.Domain, ".")
			s.jar.SetCookies(&url.URL{Scheme: "https", Host: host, Path: "/"}, []*http.Cookie{c})
		}
		s.raw = data
		s.cookies = cookies

		s.logger.Info("Loaded session cookies",
			zap.String("path", s.path),
			zap.Int("count", len(cookies)),
		)
	})
}

// Available reports whether usable cookies were loaded
func (s *Store) Available() bool {
	s.load()
	return len(s.cookies) > 0
}

// Jar returns a cookie jar seeded with the loaded cookies. Without cookies
// the jar is empty but still usable.
func (s *Store) Jar() http.CookieJar {
	s.load()
	return s.jar
}

// Snapshot writes a private copy of the cookie file into dir and returns its
// path. The extractor rewrites the file it is given, so the configured file is
// never handed to it directly. It returns "" when no cookies are loaded.
func (s *Store) Snapshot(dir string) (string, error) {
	s.load()
	if len(s.raw) == 0 {
		return "", nil
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, "cookies.txt")
	if err := os.WriteFile(path, s.raw, 0600); err != nil {
		return "", fmt.Errorf("failed to write cookie snapshot: %w", err)
	}
	return path, nil
}

// ParseNetscape parses the tab-separated cookie export format:
// domain, include-subdomains, path, secure, expiry, name, value.
func ParseNetscape(data string) ([]*http.Cookie, error) {
	var cookies []*http.Cookie

	scanner := bufio.NewScanner(strings.NewReader(data))
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r")

		httpOnly := false
		if strings.HasPrefix(line, httpOnlyPrefix) {
			httpOnly = true
			line = strings.TrimPrefix(line, httpOnlyPrefix)
		}
		if strings.TrimSpace(line) == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Split(line, "\t")
		if len(fields) < 7 {
			return nil, fmt.Errorf("line %d: expected 7 tab-separated fields, got %d", lineNo, len(fields))
		}

		c := &http.Cookie{
			Domain:   fields[0],
			Path:     fields[2],
			Secure:   strings.EqualFold(fields[3], "TRUE"),
			Name:     fields[5],
			Value:    fields[6],
			HttpOnly: httpOnly,
		}
		if exp, err := strconv.ParseInt(fields[4], 10, 64); err == nil && exp > 0 {
			c.Expires = time.Unix(exp, 0)
		}
		if c.Name == "" {
			continue
		}
		cookies = append(cookies, c)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	if len(cookies) == 0 {
		return nil, fmt.Errorf("no cookies found")
	}
	return cookies, nil
}
