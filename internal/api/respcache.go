package api

import (
	"bytes"
	"net/http"
	"sync"
	"time"
)

// ResponseCache holds successful GET responses for a short TTL, keyed by
// request URI.
type ResponseCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]cachedResponse
	now     func() time.Time
}

type cachedResponse struct {
	contentType string
	body        []byte
	expires     time.Time
}

// NewResponseCache creates a ResponseCache.
func NewResponseCache(ttl time.Duration) *ResponseCache {
	return &ResponseCache{
		ttl:     ttl,
		entries: make(map[string]cachedResponse),
		now:     time.Now,
	}
}

func (c *ResponseCache) get(key string) (cachedResponse, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok || c.now().After(e.expires) {
		return cachedResponse{}, false
	}
	return e, true
}

func (c *ResponseCache) set(key, contentType string, body []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cachedResponse{
		contentType: contentType,
		body:        body,
		expires:     c.now().Add(c.ttl),
	}
}

// Sweep drops expired entries and returns how many were removed.
func (c *ResponseCache) Sweep() int {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, e := range c.entries {
		if now.After(e.expires) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of cached entries.
func (c *ResponseCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Middleware serves cached GET responses and stores fresh 200s.
func (c *ResponseCache) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			next.ServeHTTP(w, r)
			return
		}

		key := r.URL.RequestURI()
		if e, ok := c.get(key); ok {
			w.Header().Set("Content-Type", e.contentType)
			w.Header().Set("X-Cache", "HIT")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write(e.body)
			return
		}

		rec := &bodyRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)
		if rec.status == http.StatusOK {
			c.set(key, w.Header().Get("Content-Type"), rec.buf.Bytes())
		}
	})
}

// bodyRecorder tees the response body into a buffer.
type bodyRecorder struct {
	http.ResponseWriter
	status int
	buf    bytes.Buffer
}

func (r *bodyRecorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *bodyRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	r.buf.Write(b)
	return r.ResponseWriter.Write(b)
}
