package notification

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestParseActionURL(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantURL string
		wantCTA string
	}{
		{
			name:    "deep link split",
			raw:     "https://example.com/p?wzrk_c2a=Buy%20Now__dl__myapp://cart&utm=push",
			wantURL: "myapp://cart",
			wantCTA: "Buy Now",
		},
		{
			name:    "label without deep link",
			raw:     "https://example.com/p?wzrk_c2a=Buy",
			wantURL: "https://example.com/p?wzrk_c2a=Buy",
			wantCTA: "",
		},
		{
			name:    "three parts is a plain url",
			raw:     "https://example.com/p?wzrk_c2a=a__dl__b__dl__c",
			wantURL: "https://example.com/p?wzrk_c2a=a__dl__b__dl__c",
			wantCTA: "",
		},
		{
			name:    "undecodable label kept as is",
			raw:     "https://example.com/p?wzrk_c2a=%zz__dl__myapp://x",
			wantURL: "myapp://x",
			wantCTA: "%zz",
		},
		{
			name:    "no query",
			raw:     "myapp://home",
			wantURL: "myapp://home",
			wantCTA: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseActionURL(tt.raw, zap.NewNop())
			assert.Equal(t, tt.wantURL, got.URL)
			assert.Equal(t, tt.wantCTA, got.CallToAction)
		})
	}
}

func TestParseActionURL_Params(t *testing.T) {
	got := ParseActionURL("https://example.com/p?utm=push%20a&bad=%zz&flag#frag", zap.NewNop())

	assert.Equal(t, "push a", got.Params["utm"])
	assert.Equal(t, "%zz", got.Params["bad"])
	assert.Equal(t, "", got.Params["flag"])
	assert.Len(t, got.Params, 3)
}

func TestParseAction_InfersType(t *testing.T) {
	a, err := parseAction(object{"android": "https://example.com"})
	require.NoError(t, err)
	assert.Equal(t, ActionOpenURL, a.Type)

	a, err = parseAction(object{})
	require.NoError(t, err)
	assert.Equal(t, ActionClose, a.Type)

	_, err = parseAction(object{"type": "warp"})
	assert.ErrorIs(t, err, errUnknownActionType)
}

func TestForAction(t *testing.T) {
	parent := fromJSON([]byte(`{"ti":"parent","wzrk_id":"camp-1","type":"cover","wzrk_ttl":1800000000,
		"wzrkParams":{"wzrk_pivot":"b"}}`), true, testNow)
	require.False(t, parent.HasError(), parent.Err())

	td := &TemplateData{TemplateName: "Confetti", Vars: map[string]any{"colour": "gold"}}
	child := parent.ForAction(td)

	require.False(t, child.HasError(), child.Err())
	assert.Equal(t, InAppTypeCustomCode, child.InAppType)
	assert.Equal(t, "parent", child.ID)
	assert.Equal(t, "camp-1", child.CampaignID)
	assert.Equal(t, int64(1800000000), child.TimeToLive)
	assert.True(t, child.ExcludeFromCaps)
	assert.True(t, child.ExcludeGlobalCaps)
	assert.True(t, child.VideoSupported)
	assert.Equal(t, "b", child.Params["wzrk_pivot"])
	require.NotNil(t, child.CustomTemplateData)
	assert.Equal(t, "Confetti", child.CustomTemplateData.TemplateName)
	assert.True(t, child.CustomTemplateData.IsAction)
	assert.Equal(t, "gold", child.CustomTemplateData.Vars["colour"])

	assert.False(t, td.IsAction, "caller's template data must not be modified")
}
