// Package browser watches Chrome tabs over the DevTools protocol and reports
// completed navigations; it also steers tabs to new URLs.
package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"asinshort/pkg/models"
)

var ErrUnknownTab = errors.New("unknown tab")

const queueSize = 256

// Submitter accepts completed navigations, engine.Engine implements it.
type Submitter interface {
	Submit(ctx context.Context, nav models.Navigation) error
}

// session is one tab the watcher listens to.
type session struct {
	// held for reading while the tab is driven, for writing on state changes
	mu sync.RWMutex

	ctx    context.Context
	cancel context.CancelFunc
	id     target.SessionID

	// owned tabs were opened by this program and are closed with it
	owned bool

	attaching bool
	abandoned bool
	released  bool
}

// release lets go of the tab. A tab the watcher did not open stays open: the
// session is detached through browser and chromedp is kept from closing the
// target when the tab context ends. gone skips the detach for tabs that no
// longer exist. A tab still being attached is only marked, attach releases
// it once chromedp is done with it.
func (s *session) release(ctx context.Context, browser cdp.Executor, gone bool) error {
	if s.owned {
		s.cancel()
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return nil
	}
	if s.attaching {
		s.abandoned = true
		return nil
	}
	s.released = true

	var err error
	if !gone && s.id != "" && browser != nil {
		err = target.DetachFromTarget().WithSessionID(s.id).Do(cdp.WithExecutor(ctx, browser))
	}
	if c := chromedp.FromContext(s.ctx); c != nil {
		// chromedp closes the target of a cancelled tab context unless
		// it has none
		c.Target = nil
	}
	s.cancel()
	return err
}

// Watcher attaches to every page target of one browser.
type Watcher struct {
	log *zap.Logger
	out Submitter

	navTimeout time.Duration
	queue      chan models.Navigation

	mu      sync.Mutex
	tabs    map[string]*session
	tracker *tracker
	ctx     context.Context
	browser cdp.Executor
	closed  bool
}

func NewWatcher(out Submitter, log *zap.Logger) *Watcher {
	if log == nil {
		log = zap.NewNop()
	}
	w := &Watcher{
		log:        log,
		out:        out,
		navTimeout: 30 * time.Second,
		queue:      make(chan models.Navigation, queueSize),
		tabs:       make(map[string]*session),
	}
	w.tracker = newTracker(w.emit)
	return w
}

// SetOutput replaces the navigation consumer. It must be called before Run;
// the watcher and the engine refer to each other.
func (w *Watcher) SetOutput(out Submitter) {
	w.out = out
}

// NewBrowserContext prepares a chromedp context: attached to a running Chrome
// when remoteURL is set (ws:// or http:// of its debugging port), otherwise
// a freshly launched one.
func NewBrowserContext(ctx context.Context, remoteURL string, headless bool) (context.Context, context.CancelFunc) {
	var (
		actx        context.Context
		cancelAlloc context.CancelFunc
	)
	if remoteURL != "" {
		actx, cancelAlloc = chromedp.NewRemoteAllocator(ctx, remoteURL)
	} else {
		opts := append(chromedp.DefaultExecAllocatorOptions[:], chromedp.Flag("headless", headless))
		actx, cancelAlloc = chromedp.NewExecAllocator(ctx, opts...)
	}
	bctx, cancelBrowser := chromedp.NewContext(actx)
	return bctx, func() {
		cancelBrowser()
		cancelAlloc()
	}
}

// Run attaches to the browser behind bctx and blocks until bctx is done.
// With a running browser the first Run opens one blank tab of our own, it is
// closed again on exit. All other tabs are only detached.
func (w *Watcher) Run(bctx context.Context) error {
	if err := chromedp.Run(bctx); err != nil {
		return fmt.Errorf("unable to start browser session: %w", err)
	}
	c := chromedp.FromContext(bctx)
	own := string(c.Target.TargetID)

	w.start(bctx, c.Browser)
	defer w.shutdown()

	w.mu.Lock()
	w.tabs[own] = &session{ctx: bctx, cancel: func() {}, id: c.Target.SessionID, owned: true}
	w.mu.Unlock()
	chromedp.ListenTarget(bctx, func(ev interface{}) { w.tracker.observe(own, ev) })

	chromedp.ListenBrowser(bctx, func(ev interface{}) {
		switch ev := ev.(type) {
		case *target.EventTargetCreated:
			if ev.TargetInfo.Type == "page" {
				go w.attach(ev.TargetInfo.TargetID)
			}
		case *target.EventTargetDestroyed:
			go w.detach(string(ev.TargetID), true)
		}
	})

	discover := chromedp.ActionFunc(func(ctx context.Context) error {
		return target.SetDiscoverTargets(true).Do(cdp.WithExecutor(ctx, c.Browser))
	})
	if err := chromedp.Run(bctx, discover); err != nil {
		return fmt.Errorf("unable to enable target discovery: %w", err)
	}

	infos, err := chromedp.Targets(bctx)
	if err != nil {
		return fmt.Errorf("unable to list tabs: %w", err)
	}
	for _, info := range infos {
		if info.Type == "page" {
			go w.attach(info.TargetID)
		}
	}

	w.log.Info("Watching browser tabs", zap.Int("tabs", len(infos)))
	<-bctx.Done()
	return nil
}

// start makes the watcher accept events and begins handing them on, in
// arrival order, to the output.
func (w *Watcher) start(ctx context.Context, browser cdp.Executor) {
	w.mu.Lock()
	w.ctx, w.browser = ctx, browser
	w.mu.Unlock()
	go w.forward(ctx)
}

func (w *Watcher) forward(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case nav := <-w.queue:
			if w.out == nil {
				continue
			}
			if err := w.out.Submit(ctx, nav); err != nil && ctx.Err() == nil {
				w.log.Warn("Dropped navigation", zap.String("tab", nav.TabID), zap.Error(err))
			}
		}
	}
}

// shutdown releases every tab. The browser context is already done by now,
// so detaching gets a context of its own.
func (w *Watcher) shutdown() {
	w.mu.Lock()
	w.closed = true
	tabs := make(map[string]*session, len(w.tabs))
	for key, s := range w.tabs {
		tabs[key] = s
	}
	w.mu.Unlock()

	for key, s := range tabs {
		w.release(key, s, false)
	}
}

func (w *Watcher) attach(id target.ID) {
	key := string(id)

	w.mu.Lock()
	if _, ok := w.tabs[key]; ok || w.ctx == nil || w.closed {
		w.mu.Unlock()
		return
	}
	// not derived from the browser context's cancellation, see session.release
	tctx, cancel := chromedp.NewContext(context.WithoutCancel(w.ctx), chromedp.WithTargetID(id))
	s := &session{ctx: tctx, cancel: cancel, attaching: true}
	w.tabs[key] = s
	w.mu.Unlock()

	chromedp.ListenTarget(tctx, func(ev interface{}) { w.tracker.observe(key, ev) })
	err := chromedp.Run(tctx)

	s.mu.Lock()
	s.attaching = false
	if c := chromedp.FromContext(tctx); c.Target != nil {
		s.id = c.Target.SessionID
	}
	abandoned := s.abandoned
	s.mu.Unlock()

	switch {
	case err != nil:
		w.log.Warn("Unable to attach to tab", zap.String("tab", key), zap.Error(err))
		w.release(key, s, false)
	case abandoned:
		w.release(key, s, false)
	default:
		w.log.Debug("Attached to tab", zap.String("tab", key))
	}
}

// detach forgets the tab registered under key.
func (w *Watcher) detach(key string, gone bool) {
	w.mu.Lock()
	s, ok := w.tabs[key]
	w.mu.Unlock()
	if ok {
		w.release(key, s, gone)
	}
}

func (w *Watcher) release(key string, s *session, gone bool) {
	w.mu.Lock()
	if w.tabs[key] == s {
		delete(w.tabs, key)
	}
	browser := w.browser
	w.mu.Unlock()

	w.tracker.forget(key)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.release(ctx, browser, gone); err != nil {
		w.log.Debug("Unable to detach from tab", zap.String("tab", key), zap.Error(err))
	}
}

// emit runs on chromedp's event goroutine, which must never block.
func (w *Watcher) emit(nav models.Navigation) {
	w.mu.Lock()
	started := w.ctx != nil
	w.mu.Unlock()
	if !started {
		return
	}
	select {
	case w.queue <- nav:
	default:
		w.log.Warn("Navigation queue full, dropped", zap.String("tab", nav.TabID), zap.String("url", nav.URL))
	}
}

// Update navigates tab tabID to url, it implements redirect.TabUpdater.
func (w *Watcher) Update(ctx context.Context, tabID, url string) error {
	w.mu.Lock()
	s, ok := w.tabs[tabID]
	w.mu.Unlock()
	if !ok {
		return fmt.Errorf("%s: %w", tabID, ErrUnknownTab)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.attaching || s.released {
		return fmt.Errorf("%s: %w", tabID, ErrUnknownTab)
	}

	nctx, cancel := context.WithTimeout(s.ctx, w.navTimeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	return chromedp.Run(nctx, chromedp.Navigate(url))
}
