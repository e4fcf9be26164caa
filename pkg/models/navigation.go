package models

import (
	"time"

	"github.com/google/uuid"
)

// Navigation is a completed main-frame navigation in one browser tab.
type Navigation struct {
	TabID string
	URL   string
	At    time.Time
}

// Redirect records a tab that was sent to the canonical product URL.
type Redirect struct {
	ID    uuid.UUID
	TabID string
	From  string
	To    string
	ASIN  string
	Shape Shape
	At    time.Time
}

func NewRedirect(nav Navigation, to, asin string, shape Shape) Redirect {
	return Redirect{
		ID:    uuid.New(),
		TabID: nav.TabID,
		From:  nav.URL,
		To:    to,
		ASIN:  asin,
		Shape: shape,
		At:    time.Now(),
	}
}

// Resolution is the outcome of resolving a URL that may need network lookups.
type Resolution struct {
	Input     string
	Final     string
	ASIN      string
	Canonical string
	Via       string
}
