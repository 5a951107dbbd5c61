package net

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/sync/singleflight"

	"github.com/srbot/notesdk/pkg/logtrace"
)

// DefaultCSRFHeader is the header the server reads the token from.
const DefaultCSRFHeader = "X-CSRFToken"

// TokenProvider returns the current anti-forgery token, or "" when none is
// available.
type TokenProvider interface {
	Token(ctx context.Context) string
}

// TokenFunc adapts a function to TokenProvider.
type TokenFunc func(ctx context.Context) string

func (f TokenFunc) Token(ctx context.Context) string { return f(ctx) }

// StaticToken always returns the same token.
type StaticToken string

func (s StaticToken) Token(context.Context) string { return string(s) }

func isSafeMethod(method string) bool {
	switch strings.ToUpper(method) {
	case "", http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return true
	}
	return false
}

// DefaultTokenTimeout bounds a single fetch of the token page.
const DefaultTokenTimeout = 5 * time.Second

// MetaTagToken reads the token from the csrf-token meta tag of an HTML page.
// The first non-empty token is cached; failures are retried on the next call.
// Concurrent callers share one page fetch and each stops waiting when its own
// ctx is done.
type MetaTagToken struct {
	PageURL string
	Client  *http.Client
	Timeout time.Duration

	mu    sync.Mutex
	token string
	group singleflight.Group
}

func NewMetaTagToken(pageURL string, client *http.Client) *MetaTagToken {
	if client == nil {
		client = http.DefaultClient
	}
	return &MetaTagToken{PageURL: pageURL, Client: client, Timeout: DefaultTokenTimeout}
}

func (m *MetaTagToken) Token(ctx context.Context) string {
	m.mu.Lock()
	token := m.token
	m.mu.Unlock()
	if token != "" {
		return token
	}

	ch := m.group.DoChan("token", func() (interface{}, error) {
		return m.fetch(context.WithoutCancel(ctx)), nil
	})
	select {
	case <-ctx.Done():
		return ""
	case res := <-ch:
		return res.Val.(string)
	}
}

func (m *MetaTagToken) fetch(ctx context.Context) string {
	timeout := m.Timeout
	if timeout <= 0 {
		timeout = DefaultTokenTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.PageURL, nil)
	if err != nil {
		return ""
	}
	resp, err := m.Client.Do(req)
	if err != nil {
		logtrace.Warn(ctx, "failed to fetch csrf page", logtrace.Fields{
			logtrace.FieldModule: "net",
			logtrace.FieldURL:    m.PageURL,
			logtrace.FieldError:  err.Error(),
		})
		return ""
	}
	defer resp.Body.Close()

	token := metaContent(io.LimitReader(resp.Body, 1<<20), "csrf-token")
	if token != "" {
		m.mu.Lock()
		m.token = token
		m.mu.Unlock()
	}
	return token
}

// metaContent returns the content attribute of the first <meta name=...>.
func metaContent(r io.Reader, name string) string {
	z := html.NewTokenizer(r)
	for {
		switch z.Next() {
		case html.ErrorToken:
			return ""
		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			if tok.Data != "meta" {
				continue
			}
			var metaName, content string
			for _, a := range tok.Attr {
				switch strings.ToLower(a.Key) {
				case "name":
					metaName = a.Val
				case "content":
					content = a.Val
				}
			}
			if strings.EqualFold(metaName, name) {
				return strings.TrimSpace(content)
			}
		}
	}
}
