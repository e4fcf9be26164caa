package browser

import (
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/page"

	"asinshort/pkg/models"
)

type mainFrame struct {
	id  cdp.FrameID
	url string
}

// tracker turns raw page-domain events into completed navigations. It keeps
// the main-frame address per tab and reports it once the load event fires,
// which is when webNavigation.onCompleted would fire for it.
type tracker struct {
	mu     sync.Mutex
	frames map[string]mainFrame
	emit   func(models.Navigation)
}

func newTracker(emit func(models.Navigation)) *tracker {
	return &tracker{frames: make(map[string]mainFrame), emit: emit}
}

func (t *tracker) observe(tabID string, ev interface{}) {
	switch ev := ev.(type) {
	case *page.EventFrameNavigated:
		if ev.Frame == nil || ev.Frame.ParentID != "" {
			return
		}
		t.mu.Lock()
		t.frames[tabID] = mainFrame{id: ev.Frame.ID, url: ev.Frame.URL + ev.Frame.URLFragment}
		t.mu.Unlock()

	case *page.EventNavigatedWithinDocument:
		// history API and fragment changes complete nothing on their own, but
		// a later load must report the current address
		t.mu.Lock()
		if f, ok := t.frames[tabID]; ok && f.id == ev.FrameID {
			f.url = ev.URL
			t.frames[tabID] = f
		}
		t.mu.Unlock()

	case *page.EventLoadEventFired:
		t.mu.Lock()
		f, ok := t.frames[tabID]
		t.mu.Unlock()
		if ok && f.url != "" {
			t.emit(models.Navigation{TabID: tabID, URL: f.url, At: time.Now()})
		}
	}
}

func (t *tracker) forget(tabID string) {
	t.mu.Lock()
	delete(t.frames, tabID)
	t.mu.Unlock()
}
