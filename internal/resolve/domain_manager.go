package resolve

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
	"golang.org/x/time/rate"
)

// DomainManager keeps fetches polite: one limiter and one robots.txt group
// per host.
type DomainManager struct {
	mu          sync.Mutex
	limiters    map[string]*rate.Limiter
	robotsCache map[string]*robotstxt.Group

	interval  time.Duration
	userAgent string
	client    *http.Client
}

func NewDomainManager(interval time.Duration, userAgent string) *DomainManager {
	return &DomainManager{
		limiters:    make(map[string]*rate.Limiter),
		robotsCache: make(map[string]*robotstxt.Group),
		interval:    interval,
		userAgent:   userAgent,
		client:      &http.Client{Timeout: 10 * time.Second},
	}
}

// Wait blocks until the host of targetURL may be contacted again.
func (d *DomainManager) Wait(ctx context.Context, targetURL string) error {
	u, err := url.Parse(targetURL)
	if err != nil {
		return err
	}
	domain := u.Host

	d.mu.Lock()
	limiter, exists := d.limiters[domain]
	if !exists {
		// one request per interval, first one immediately
		limiter = rate.NewLimiter(rate.Every(d.interval), 1)
		d.limiters[domain] = limiter
	}
	d.mu.Unlock()

	return limiter.Wait(ctx)
}

// IsAllowed reports whether robots.txt of the link's host lets our user agent
// fetch it. A missing or unreadable robots.txt allows everything.
func (d *DomainManager) IsAllowed(ctx context.Context, link string) bool {
	u, err := url.Parse(link)
	if err != nil {
		return false
	}

	d.mu.Lock()
	group, exists := d.robotsCache[u.Host]
	d.mu.Unlock()

	if !exists {
		group = d.fetchRobots(ctx, u)
		d.mu.Lock()
		d.robotsCache[u.Host] = group
		d.mu.Unlock()
	}

	if group == nil {
		return true
	}
	return group.Test(u.EscapedPath())
}

func (d *DomainManager) fetchRobots(ctx context.Context, u *url.URL) *robotstxt.Group {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.Scheme+"://"+u.Host+"/robots.txt", nil)
	if err != nil {
		return nil
	}
	req.Header.Set("User-Agent", d.userAgent)

	resp, err := d.client.Do(req)
	if err != nil {
		return nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil
	}

	data, err := robotstxt.FromResponse(resp)
	if err != nil {
		return nil
	}
	return data.FindGroup(d.userAgent)
}
