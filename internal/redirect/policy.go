// Package redirect holds the per-navigation decision: leave canonical and
// unrecognized pages alone, send everything else to /dp/<ASIN>.
package redirect

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"asinshort/internal/canon"
	"asinshort/pkg/models"
)

// TabUpdater points a browser tab at a new URL.
type TabUpdater interface {
	Update(ctx context.Context, tabID, url string) error
}

// Policy implements engine.Processor for navigation events.
type Policy struct {
	Tabs       TabUpdater
	HostSuffix string
	Log        *zap.Logger
}

func NewPolicy(tabs TabUpdater, hostSuffix string, log *zap.Logger) *Policy {
	if hostSuffix == "" {
		hostSuffix = canon.Domain
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Policy{Tabs: tabs, HostSuffix: hostSuffix, Log: log}
}

// Process handles one completed navigation. A URL without an identifier is
// not an error, it simply yields no records.
func (p *Policy) Process(ctx context.Context, nav models.Navigation) ([]models.Redirect, error) {
	if !canon.InScope(nav.URL, p.HostSuffix) {
		return nil, nil
	}

	target, asin, shape, ok := canon.Rewrite(nav.URL)
	if !ok {
		p.Log.Debug("Leaving page as is", zap.String("tab", nav.TabID), zap.String("url", nav.URL), zap.Stringer("shape", shape))
		return nil, nil
	}

	if err := p.Tabs.Update(ctx, nav.TabID, target); err != nil {
		return nil, fmt.Errorf("redirect tab %s to %s: %w", nav.TabID, target, err)
	}

	p.Log.Info("Redirected", zap.String("tab", nav.TabID), zap.String("from", nav.URL), zap.String("to", target), zap.Stringer("shape", shape))
	return []models.Redirect{models.NewRedirect(nav, target, asin, shape)}, nil
}
