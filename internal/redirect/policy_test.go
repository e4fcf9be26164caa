package redirect

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"asinshort/pkg/models"
)

type update struct{ tab, url string }

type fakeTabs struct {
	mu      sync.Mutex
	updates []update
	err     error
}

func (f *fakeTabs) Update(_ context.Context, tabID, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.updates = append(f.updates, update{tabID, url})
	return nil
}

func TestPolicy_Redirects(t *testing.T) {
	tabs := &fakeTabs{}
	core, logs := observer.New(zapcore.InfoLevel)
	p := NewPolicy(tabs, "", zap.New(core))

	nav := models.Navigation{TabID: "T1", URL: "https://www.amazon.co.jp/Some-Title/dp/B000000000/ref=sr_1_1?keywords=x"}
	out, err := p.Process(context.Background(), nav)
	require.NoError(t, err)
	require.Len(t, out, 1)

	assert.Equal(t, []update{{"T1", "https://www.amazon.co.jp/dp/B000000000"}}, tabs.updates)
	assert.Equal(t, "B000000000", out[0].ASIN)
	assert.Equal(t, nav.URL, out[0].From)
	assert.Equal(t, "https://www.amazon.co.jp/dp/B000000000", out[0].To)
	assert.Equal(t, models.SegmentDP, out[0].Shape)
	assert.NotEmpty(t, out[0].ID)
	assert.Equal(t, 1, logs.FilterMessage("Redirected").Len())
}

func TestPolicy_NoOps(t *testing.T) {
	tabs := &fakeTabs{}
	p := NewPolicy(tabs, "amazon.co.jp", nil)

	for _, link := range []string{
		"https://www.amazon.co.jp/dp/B000000000",
		"https://www.amazon.co.jp/gp/cart/view.html",
		"https://www.amazon.co.jp/",
		"https://www.amazon.com/gp/product/B000000000",
		"https://example.com/gp/product/B000000000",
		"chrome://newtab/",
		"",
	} {
		out, err := p.Process(context.Background(), models.Navigation{TabID: "T", URL: link})
		require.NoError(t, err, link)
		assert.Empty(t, out, link)
	}
	assert.Empty(t, tabs.updates, "no tab must be touched")
}

func TestPolicy_RecordsExtractedASIN(t *testing.T) {
	tabs := &fakeTabs{}
	p := NewPolicy(tabs, "amazon.co.jp", nil)

	out, err := p.Process(context.Background(), models.Navigation{TabID: "T2", URL: "https://www.amazon.co.jp/gp/product/b00000000x?th=1"})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "b00000000x", out[0].ASIN)
	assert.Equal(t, "https://www.amazon.co.jp/dp/b00000000x", out[0].To)

	// U+017F and U+212A are not identifier characters
	out, err = p.Process(context.Background(), models.Navigation{TabID: "T2", URL: "https://www.amazon.co.jp/gp/product/B00000000\u017f"})
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Len(t, tabs.updates, 1)
}

func TestPolicy_RedirectTargetIsNoOp(t *testing.T) {
	tabs := &fakeTabs{}
	p := NewPolicy(tabs, "", nil)
	ctx := context.Background()

	_, err := p.Process(ctx, models.Navigation{TabID: "T", URL: "https://www.amazon.co.jp/gp/product/B000000000"})
	require.NoError(t, err)
	require.Len(t, tabs.updates, 1)

	// the tab lands on the target and completes again
	out, err := p.Process(ctx, models.Navigation{TabID: "T", URL: tabs.updates[0].url})
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Len(t, tabs.updates, 1)
}

func TestPolicy_UpdateFails(t *testing.T) {
	tabs := &fakeTabs{err: errors.New("tab closed")}
	p := NewPolicy(tabs, "", nil)

	out, err := p.Process(context.Background(), models.Navigation{TabID: "T9", URL: "https://www.amazon.co.jp/o/ASIN/B000000000"})
	require.Error(t, err)
	assert.ErrorIs(t, err, tabs.err)
	assert.Contains(t, err.Error(), "T9")
	assert.Empty(t, out)
}
