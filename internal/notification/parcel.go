package notification

import (
	"bytes"
	"encoding/json"
	"fmt"
)

const parcelVersion = 1

// parcel is the persisted form of a Notification. Optional strings stay
// pointers so nil and "" survive a round trip.
type parcel struct {
	Version int `json:"v"`

	ID         string    `json:"id"`
	CampaignID string    `json:"campaign_id"`
	Type       string    `json:"type"`
	InAppType  InAppType `json:"inapp_type"`

	Width            int      `json:"width"`
	Height           int      `json:"height"`
	WidthPercentage  int      `json:"width_pct"`
	HeightPercentage int      `json:"height_pct"`
	Position         Position `json:"position"`
	AspectRatio      float64  `json:"aspect_ratio"`
	DarkenScreen     bool     `json:"darken"`
	ShowClose        bool     `json:"show_close"`
	HideCloseButton  bool     `json:"hide_close"`
	JSEnabled        bool     `json:"js_enabled"`

	HTML           *string        `json:"html"`
	CustomInAppURL *string        `json:"custom_url"`
	CustomExtras   map[string]any `json:"kv"`

	BackgroundColor string   `json:"bg"`
	Title           string   `json:"title"`
	TitleColor      string   `json:"title_color"`
	Message         string   `json:"message"`
	MessageColor    string   `json:"message_color"`
	Buttons         []Button `json:"buttons"`
	ButtonCount     int      `json:"button_count"`
	Media           []Media  `json:"media"`

	IsPortrait  bool `json:"portrait"`
	IsLandscape bool `json:"landscape"`
	IsTablet    bool `json:"tablet"`

	ExcludeFromCaps    bool  `json:"efc"`
	ExcludeGlobalCaps  bool  `json:"egc"`
	TotalLifetimeCount int   `json:"tlc"`
	TotalDailyCount    int   `json:"tdc"`
	MaxPerSession      int   `json:"mdc"`
	TimeToLive         int64 `json:"ttl"`

	IsLocalInApp                   bool `json:"local"`
	FallBackToNotificationSettings bool `json:"fallback_settings"`
	RequestsPushPermission         bool `json:"rfp"`
	VideoSupported                 bool `json:"video_supported"`

	CustomTemplateData *TemplateData  `json:"template_data"`
	Params             map[string]any `json:"params"`
	Raw                []byte         `json:"raw"`

	Error *string `json:"error"`
}

// Encode writes n in its persisted form.
func (n *Notification) Encode() ([]byte, error) {
	p := parcel{
		Version:                        parcelVersion,
		ID:                             n.ID,
		CampaignID:                     n.CampaignID,
		Type:                           n.Type,
		InAppType:                      n.InAppType,
		Width:                          n.Width,
		Height:                         n.Height,
		WidthPercentage:                n.WidthPercentage,
		HeightPercentage:               n.HeightPercentage,
		Position:                       n.Position,
		AspectRatio:                    n.AspectRatio,
		DarkenScreen:                   n.DarkenScreen,
		ShowClose:                      n.ShowClose,
		HideCloseButton:                n.HideCloseButton,
		JSEnabled:                      n.JSEnabled,
		HTML:                           n.HTML,
		CustomInAppURL:                 n.CustomInAppURL,
		CustomExtras:                   n.CustomExtras,
		BackgroundColor:                n.BackgroundColor,
		Title:                          n.Title,
		TitleColor:                     n.TitleColor,
		Message:                        n.Message,
		MessageColor:                   n.MessageColor,
		Buttons:                        n.Buttons,
		ButtonCount:                    n.ButtonCount,
		Media:                          n.Media,
		IsPortrait:                     n.IsPortrait,
		IsLandscape:                    n.IsLandscape,
		IsTablet:                       n.IsTablet,
		ExcludeFromCaps:                n.ExcludeFromCaps,
		ExcludeGlobalCaps:              n.ExcludeGlobalCaps,
		TotalLifetimeCount:             n.TotalLifetimeCount,
		TotalDailyCount:                n.TotalDailyCount,
		MaxPerSession:                  n.MaxPerSession,
		TimeToLive:                     n.TimeToLive,
		IsLocalInApp:                   n.IsLocalInApp,
		FallBackToNotificationSettings: n.FallBackToNotificationSettings,
		RequestsPushPermission:         n.RequestsPushPermission,
		VideoSupported:                 n.VideoSupported,
		CustomTemplateData:             n.CustomTemplateData,
		Params:                         n.Params,
		Raw:                            n.Raw,
		Error:                          n.err,
	}

	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode notification %q: %w", n.ID, err)
	}
	return data, nil
}

// Decode restores a notification written by Encode.
func Decode(data []byte) (*Notification, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var p parcel
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("decode notification: %w", err)
	}
	if p.Version != parcelVersion {
		return nil, fmt.Errorf("decode notification: unsupported parcel version %d", p.Version)
	}

	n := &Notification{
		ID:                             p.ID,
		CampaignID:                     p.CampaignID,
		Type:                           p.Type,
		InAppType:                      p.InAppType,
		Width:                          p.Width,
		Height:                         p.Height,
		WidthPercentage:                p.WidthPercentage,
		HeightPercentage:               p.HeightPercentage,
		Position:                       p.Position,
		AspectRatio:                    p.AspectRatio,
		DarkenScreen:                   p.DarkenScreen,
		ShowClose:                      p.ShowClose,
		HideCloseButton:                p.HideCloseButton,
		JSEnabled:                      p.JSEnabled,
		HTML:                           p.HTML,
		CustomInAppURL:                 p.CustomInAppURL,
		CustomExtras:                   p.CustomExtras,
		BackgroundColor:                p.BackgroundColor,
		Title:                          p.Title,
		TitleColor:                     p.TitleColor,
		Message:                        p.Message,
		MessageColor:                   p.MessageColor,
		Buttons:                        p.Buttons,
		ButtonCount:                    p.ButtonCount,
		Media:                          p.Media,
		IsPortrait:                     p.IsPortrait,
		IsLandscape:                    p.IsLandscape,
		IsTablet:                       p.IsTablet,
		ExcludeFromCaps:                p.ExcludeFromCaps,
		ExcludeGlobalCaps:              p.ExcludeGlobalCaps,
		TotalLifetimeCount:             p.TotalLifetimeCount,
		TotalDailyCount:                p.TotalDailyCount,
		MaxPerSession:                  p.MaxPerSession,
		TimeToLive:                     p.TimeToLive,
		IsLocalInApp:                   p.IsLocalInApp,
		FallBackToNotificationSettings: p.FallBackToNotificationSettings,
		RequestsPushPermission:         p.RequestsPushPermission,
		VideoSupported:                 p.VideoSupported,
		CustomTemplateData:             p.CustomTemplateData,
		Params:                         p.Params,
		err:                            p.Error,
	}
	if p.Raw != nil {
		n.Raw = json.RawMessage(p.Raw)
	}
	return n, nil
}
