package browser

import (
	"testing"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/page"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"asinshort/pkg/models"
)

func collect() (*tracker, *[]models.Navigation) {
	var got []models.Navigation
	return newTracker(func(n models.Navigation) { got = append(got, n) }), &got
}

func navigated(id, parent, url, fragment string) *page.EventFrameNavigated {
	return &page.EventFrameNavigated{Frame: &cdp.Frame{
		ID:          cdp.FrameID(id),
		ParentID:    cdp.FrameID(parent),
		URL:         url,
		URLFragment: fragment,
	}}
}

func TestTracker_EmitsOnLoad(t *testing.T) {
	tr, got := collect()

	tr.observe("tab1", navigated("F1", "", "https://www.amazon.co.jp/gp/product/B000000000", ""))
	assert.Empty(t, *got, "nothing completes before the load event")

	tr.observe("tab1", &page.EventLoadEventFired{})
	require.Len(t, *got, 1)
	assert.Equal(t, "tab1", (*got)[0].TabID)
	assert.Equal(t, "https://www.amazon.co.jp/gp/product/B000000000", (*got)[0].URL)
	assert.False(t, (*got)[0].At.IsZero())
}

func TestTracker_IgnoresSubframes(t *testing.T) {
	tr, got := collect()

	tr.observe("tab1", navigated("F1", "", "https://www.amazon.co.jp/", "#top"))
	tr.observe("tab1", navigated("F2", "F1", "https://ads.example/frame", ""))
	tr.observe("tab1", &page.EventLoadEventFired{})

	require.Len(t, *got, 1)
	assert.Equal(t, "https://www.amazon.co.jp/#top", (*got)[0].URL)
}

func TestTracker_WithinDocument(t *testing.T) {
	tr, got := collect()

	tr.observe("tab1", navigated("F1", "", "https://www.amazon.co.jp/", ""))
	tr.observe("tab1", &page.EventNavigatedWithinDocument{FrameID: "F1", URL: "https://www.amazon.co.jp/Title/dp/B000000000"})
	tr.observe("tab1", &page.EventNavigatedWithinDocument{FrameID: "F9", URL: "https://elsewhere.example/"})
	assert.Empty(t, *got)

	tr.observe("tab1", &page.EventLoadEventFired{})
	require.Len(t, *got, 1)
	assert.Equal(t, "https://www.amazon.co.jp/Title/dp/B000000000", (*got)[0].URL)
}

func TestTracker_TabsAreIndependent(t *testing.T) {
	tr, got := collect()

	tr.observe("a", navigated("FA", "", "https://a.example/", ""))
	tr.observe("b", &page.EventLoadEventFired{})
	assert.Empty(t, *got, "tab b never navigated")

	tr.forget("a")
	tr.observe("a", &page.EventLoadEventFired{})
	assert.Empty(t, *got)
}
