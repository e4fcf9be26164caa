package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"asinshort/pkg/models"
)

func TestLogSink_Save(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	sink := &LogSink{Log: zap.New(core)}

	nav := models.Navigation{TabID: "T1", URL: "https://www.amazon.co.jp/gp/product/B000000000"}
	batch := []models.Redirect{
		models.NewRedirect(nav, "https://www.amazon.co.jp/dp/B000000000", "B000000000", models.GPProduct),
		models.NewRedirect(nav, "https://www.amazon.co.jp/dp/B000000001", "B000000001", models.GPProduct),
	}
	require.NoError(t, sink.Save(context.Background(), batch))

	entries := logs.FilterMessage("Redirect").All()
	require.Len(t, entries, 2)
	fields := entries[0].ContextMap()
	assert.Equal(t, "T1", fields["tab"])
	assert.Equal(t, "B000000000", fields["asin"])
	assert.Equal(t, "gp-product", fields["shape"])
	assert.NotEqual(t, entries[0].ContextMap()["id"], entries[1].ContextMap()["id"])
}
