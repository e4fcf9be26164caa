// Package resolve finds the canonical product URL for links that do not carry
// the ASIN themselves, such as amzn.asia share links, by following them.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/html"

	"asinshort/internal/canon"
	"asinshort/pkg/models"
)

const (
	ViaOffline       = "offline"
	ViaRedirect      = "redirect"
	ViaCanonicalLink = "canonical-link"

	maxRedirects = 10
	maxBodySize  = 2 << 20
)

var ErrDisallowed = errors.New("disallowed by robots.txt")

type Resolver struct {
	UserAgent string
	// HostSuffix is the registrable domain an identifier must be found on.
	HostSuffix string
	Domains    *DomainManager
	Log        *zap.Logger

	client *http.Client
}

func NewResolver(userAgent, hostSuffix string, domains *DomainManager, log *zap.Logger) *Resolver {
	if log == nil {
		log = zap.NewNop()
	}
	if hostSuffix == "" {
		hostSuffix = canon.Domain
	}
	r := &Resolver{UserAgent: userAgent, HostSuffix: hostSuffix, Domains: domains, Log: log}
	r.client = &http.Client{
		Timeout:       15 * time.Second,
		CheckRedirect: r.checkRedirect,
	}
	return r
}

// Resolve returns the canonical form of link. ok is false when neither the
// link, the URL it ends up at, nor the page's canonical link carry an ASIN.
func (r *Resolver) Resolve(ctx context.Context, link string) (res models.Resolution, ok bool, err error) {
	link = canon.NormalizeInput(link)
	res = models.Resolution{Input: link, Final: link}

	if asin, ok := r.classify(link); ok {
		res.ASIN, res.Canonical, res.Via = asin, canon.CanonicalURL(asin), ViaOffline
		return res, true, nil
	}

	if !r.Domains.IsAllowed(ctx, link) {
		return res, false, fmt.Errorf("%s: %w", link, ErrDisallowed)
	}
	if err = r.Domains.Wait(ctx, link); err != nil {
		return res, false, err
	}

	final, body, err := r.fetch(ctx, link)
	if err != nil {
		return res, false, err
	}
	defer body.Close()
	res.Final = final
	r.Log.Debug("Fetched", zap.String("url", link), zap.String("final", final))

	if asin, ok := r.classify(final); ok {
		res.ASIN, res.Canonical, res.Via = asin, canon.CanonicalURL(asin), ViaRedirect
		return res, true, nil
	}

	href, err := CanonicalLink(io.LimitReader(body, maxBodySize))
	if err != nil {
		return res, false, fmt.Errorf("parse %s: %w", final, err)
	}
	if href == "" {
		return res, false, nil
	}
	if asin, ok := r.classify(absolute(final, href)); ok {
		res.ASIN, res.Canonical, res.Via = asin, canon.CanonicalURL(asin), ViaCanonicalLink
		return res, true, nil
	}
	return res, false, nil
}

// classify finds an identifier in link, provided link is on the storefront.
func (r *Resolver) classify(link string) (string, bool) {
	if !canon.InScope(link, r.HostSuffix) {
		return "", false
	}
	asin, shape := canon.Classify(link)
	return asin, shape != models.None
}

// absolute resolves href against the page it was found on.
func absolute(base, href string) string {
	b, err := url.Parse(base)
	if err != nil {
		return href
	}
	h, err := url.Parse(href)
	if err != nil {
		return href
	}
	return b.ResolveReference(h).String()
}

func (r *Resolver) fetch(ctx context.Context, link string) (string, io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return "", nil, err
	}
	req.Header.Set("User-Agent", r.UserAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		return "", nil, err
	}
	final := resp.Request.URL.String()
	// checkRedirect stopped early on a hop that already has what we need
	if resp.StatusCode >= 300 && resp.StatusCode < 400 {
		if loc, err := resp.Location(); err == nil {
			final = loc.String()
		}
	}
	return final, resp.Body, nil
}

func (r *Resolver) checkRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirects {
		return fmt.Errorf("stopped after %d redirects", maxRedirects)
	}
	next := req.URL.String()
	// the hop itself may already be enough
	if _, ok := r.classify(next); ok {
		return http.ErrUseLastResponse
	}
	if !r.Domains.IsAllowed(req.Context(), next) {
		return fmt.Errorf("%s: %w", next, ErrDisallowed)
	}
	return r.Domains.Wait(req.Context(), next)
}

// CanonicalLink returns the href of the document's <link rel="canonical">,
// falling back to <meta property="og:url">.
func CanonicalLink(rd io.Reader) (string, error) {
	doc, err := html.Parse(rd)
	if err != nil {
		return "", err
	}

	var canonical, ogURL string
	var visit func(*html.Node)
	visit = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "link":
				if canonical == "" && strings.EqualFold(attr(n, "rel"), "canonical") {
					canonical = strings.TrimSpace(attr(n, "href"))
				}
			case "meta":
				if ogURL == "" && attr(n, "property") == "og:url" {
					ogURL = strings.TrimSpace(attr(n, "content"))
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			visit(c)
		}
	}
	visit(doc)

	if canonical != "" {
		return canonical, nil
	}
	return ogURL, nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
