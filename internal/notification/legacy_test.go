package notification

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func legacyPayload(t *testing.T, mutate func(w, d map[string]any)) []byte {
	t.Helper()
	w := map[string]any{
		"dk":  true,
		"sc":  false,
		"pos": "c",
		"xp":  90,
		"yp":  85,
	}
	d := map[string]any{
		"html": "<html><body>hello</body></html>",
	}
	if mutate != nil {
		mutate(w, d)
	}
	raw, err := json.Marshal(map[string]any{
		"ti":      "legacy-1",
		"wzrk_id": "1700000000_20260314",
		"w":       w,
		"d":       d,
	})
	require.NoError(t, err)
	return raw
}

func TestLegacy_ValidPayload(t *testing.T) {
	n := fromJSON(legacyPayload(t, nil), false, testNow)

	require.False(t, n.HasError(), "unexpected error: %s", n.Err())
	assert.Equal(t, "legacy-1", n.ID)
	assert.Equal(t, "1700000000_20260314", n.CampaignID)
	assert.Equal(t, InAppTypeInterstitialHTML, n.InAppType)
	assert.Equal(t, PositionCenter, n.Position)
	assert.Equal(t, 90, n.WidthPercentage)
	assert.Equal(t, 85, n.HeightPercentage)
	assert.True(t, n.DarkenScreen)
	assert.False(t, n.ShowClose)
	require.NotNil(t, n.HTML)
	assert.Equal(t, "<html><body>hello</body></html>", *n.HTML)
	assert.Nil(t, n.CustomInAppURL)
	assert.True(t, n.IsHTML())
}

func TestLegacy_TypeSentinelSelectsLegacySchema(t *testing.T) {
	raw := []byte(`{"type":"custom-html","w":{"dk":false,"sc":true,"pos":"t","xp":100,"yp":20},"d":{"html":"<p/>","url":"https://example.com/page"}}`)

	n := fromJSON(raw, false, testNow)

	require.False(t, n.HasError(), n.Err())
	assert.Equal(t, InAppTypeHeaderHTML, n.InAppType)
	require.NotNil(t, n.CustomInAppURL)
	assert.Equal(t, "https://example.com/page", *n.CustomInAppURL)
}

func TestLegacy_MissingRequiredKey(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(w, d map[string]any)
	}{
		{"no darken flag", func(w, d map[string]any) { delete(w, "dk") }},
		{"no show close flag", func(w, d map[string]any) { delete(w, "sc") }},
		{"no html", func(w, d map[string]any) { delete(d, "html") }},
		{"html not a string", func(w, d map[string]any) { d["html"] = 42 }},
		{"no position", func(w, d map[string]any) { delete(w, "pos") }},
		{"unknown position", func(w, d map[string]any) { w["pos"] = "z" }},
		{"empty position", func(w, d map[string]any) { w["pos"] = "" }},
		{"no x axis", func(w, d map[string]any) { delete(w, "xp") }},
		{"no y axis", func(w, d map[string]any) { delete(w, "yp") }},
		{"fractional x", func(w, d map[string]any) { w["xp"] = 90.5 }},
		{"darken as string", func(w, d map[string]any) { w["dk"] = "true" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := fromJSON(legacyPayload(t, tt.mutate), false, testNow)

			assert.Equal(t, ErrInvalidJSON, n.Err())
			assert.Equal(t, InAppTypeNone, n.InAppType)
			assert.Nil(t, n.HTML)
			assert.Empty(t, n.CampaignID)
		})
	}
}

func TestLegacy_AbsoluteAxisAccepted(t *testing.T) {
	n := fromJSON(legacyPayload(t, func(w, d map[string]any) {
		delete(w, "xp")
		delete(w, "yp")
		w["xdp"] = 320
		w["ydp"] = 480
	}), false, testNow)

	require.False(t, n.HasError(), n.Err())
	assert.Equal(t, 320, n.Width)
	assert.Equal(t, 480, n.Height)
	assert.Equal(t, InAppTypeNone, n.InAppType)
}

func TestLegacy_MissingShowCloseNeverDisplayable(t *testing.T) {
	raw := []byte(`{"wzrk_id":"c-1","w":{"dk":true,"pos":"c","xp":90,"yp":85},"d":{"html":"<p/>"}}`)

	n := FromJSON(raw, true)

	assert.True(t, n.HasError())
	assert.Equal(t, "Invalid JSON", n.Err())
}

func TestLegacy_WindowCapOverride(t *testing.T) {
	n := fromJSON(legacyPayload(t, func(w, d map[string]any) { w["mdc"] = 3 }), false, testNow)

	require.False(t, n.HasError(), n.Err())
	assert.Equal(t, 3, n.MaxPerSession)
}

func TestLegacyInAppType(t *testing.T) {
	tests := []struct {
		pos  Position
		xp   int
		yp   int
		want InAppType
	}{
		{PositionTop, 100, 30, InAppTypeHeaderHTML},
		{PositionTop, 100, 10, InAppTypeHeaderHTML},
		{PositionTop, 100, 31, InAppTypeNone},
		{PositionBottom, 100, 25, InAppTypeFooterHTML},
		{PositionBottom, 90, 25, InAppTypeNone},
		{PositionCenter, 90, 85, InAppTypeInterstitialHTML},
		{PositionCenter, 100, 100, InAppTypeCoverHTML},
		{PositionCenter, 90, 50, InAppTypeHalfInterstitialHTML},
		{PositionCenter, 80, 50, InAppTypeNone},
		{PositionLeft, 100, 100, InAppTypeNone},
	}

	for _, tt := range tests {
		got := legacyInAppType(tt.pos, tt.xp, tt.yp)
		assert.Equal(t, tt.want, got, "pos=%s xp=%d yp=%d", tt.pos, tt.xp, tt.yp)
	}
}

func TestFromJSON_MalformedPayload(t *testing.T) {
	for _, raw := range []string{``, `[`, `[]`, `null`, `"text"`} {
		n := fromJSON([]byte(raw), false, testNow)
		assert.Equal(t, ErrInvalidJSON, n.Err(), "payload %q", raw)
	}
}
