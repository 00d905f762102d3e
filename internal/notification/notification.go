package notification

import (
	"encoding/json"
	"time"
)

// DefaultTimeToLive applies when a payload carries no wzrk_ttl.
const DefaultTimeToLive = 48 * time.Hour

// Diagnostics recorded on a Notification.
const (
	ErrInvalidJSON      = "Invalid JSON"
	ErrWrongMediaType   = "Wrong media type for template"
	ErrGIFFetch         = "Error processing GIF"
	ErrImageFetch       = "Error processing image as bitmap was NULL"
	ErrVideoUnsupported = "InApp Video/Audio is not supported"
	ErrTemplateFiles    = "Error processing the custom code in-app template: file download failed."
)

// ParseError is returned by the schema parsers.
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string { return e.Reason }

// Notification is one parsed in-app message. It is read-only after FromJSON
// except for SetError and SetCustomTemplateData. A notification carrying an
// error must never be displayed.
type Notification struct {
	ID         string
	CampaignID string
	Type       string
	InAppType  InAppType

	Width            int
	Height           int
	WidthPercentage  int
	HeightPercentage int
	Position         Position
	AspectRatio      float64
	DarkenScreen     bool
	ShowClose        bool
	HideCloseButton  bool
	JSEnabled        bool

	HTML           *string
	CustomInAppURL *string
	CustomExtras   map[string]any

	BackgroundColor string
	Title           string
	TitleColor      string
	Message         string
	MessageColor    string
	Buttons         []Button
	ButtonCount     int
	Media           []Media

	IsPortrait  bool
	IsLandscape bool
	IsTablet    bool

	ExcludeFromCaps    bool
	ExcludeGlobalCaps  bool
	TotalLifetimeCount int
	TotalDailyCount    int
	MaxPerSession      int
	TimeToLive         int64

	IsLocalInApp                   bool
	FallBackToNotificationSettings bool
	RequestsPushPermission         bool
	VideoSupported                 bool

	CustomTemplateData *TemplateData
	Params             map[string]any
	Raw                json.RawMessage

	err *string
}

func newNotification(now time.Time) *Notification {
	return &Notification{
		AspectRatio:        -1,
		TotalLifetimeCount: -1,
		TotalDailyCount:    -1,
		MaxPerSession:      -1,
		TimeToLive:         now.Add(DefaultTimeToLive).Unix(),
		IsPortrait:         true,
	}
}

// FromJSON parses one raw payload. The result is never nil; check Err
// before using it.
func FromJSON(raw []byte, videoSupported bool) *Notification {
	return fromJSON(raw, videoSupported, time.Now())
}

func fromJSON(raw []byte, videoSupported bool, now time.Time) *Notification {
	var n *Notification

	obj, err := decodeObject(raw)
	if err != nil {
		n = newNotification(now)
		n.SetError(ErrInvalidJSON)
	} else {
		if isLegacy(obj) {
			n, err = parseLegacy(obj, now)
		} else {
			n, err = parseCurrent(obj, now)
		}
		if err != nil {
			n.SetError(err.Error())
		}
	}

	n.Raw = append(json.RawMessage(nil), raw...)
	n.VideoSupported = videoSupported
	return n
}

// isLegacy selects the schema: no type, or the custom-html sentinel.
func isLegacy(o object) bool {
	t, ok := o["type"].(string)
	return !ok || t == string(InAppTypeHTML)
}

// readCaps reads the fields shared by both schemas.
func readCaps(n *Notification, o object) {
	n.ID = o.str("ti", "")
	n.CampaignID = o.str("wzrk_id", "")
	n.ExcludeFromCaps = o.flag("efc")
	n.ExcludeGlobalCaps = o.flag("excludeGlobalCaps")
	n.TotalLifetimeCount = o.integer("tlc", -1)
	n.TotalDailyCount = o.integer("tdc", -1)
	n.MaxPerSession = o.integer("mdc", -1)
	n.TimeToLive = o.int64("wzrk_ttl", n.TimeToLive)
	n.JSEnabled = o.boolean("isJsEnabled", false)
	if p := o.obj("wzrkParams"); p != nil {
		n.Params = map[string]any(p)
	}
}

// Err returns the recorded diagnostic, or "" when there is none.
func (n *Notification) Err() string {
	if n.err == nil {
		return ""
	}
	return *n.err
}

// HasError reports whether a diagnostic was recorded.
func (n *Notification) HasError() bool { return n.err != nil }

// SetError records a diagnostic. The notification becomes terminal.
func (n *Notification) SetError(msg string) { n.err = &msg }

// SetCustomTemplateData replaces the custom template payload.
func (n *Notification) SetCustomTemplateData(td *TemplateData) { n.CustomTemplateData = td }

// IsHTML reports whether the notification renders HTML content. Legacy
// payloads always do, whatever their geometry.
func (n *Notification) IsHTML() bool {
	return n.HTML != nil || n.Type == string(InAppTypeHTML) || n.InAppType.IsHTML()
}

// IsPushPrimer reports whether this is a device-originated push permission
// prompt.
func (n *Notification) IsPushPrimer() bool {
	return n.IsLocalInApp || n.RequestsPushPermission
}

// Expired reports whether the deadline has strictly passed.
func (n *Notification) Expired(now time.Time) bool {
	return now.Unix() > n.TimeToLive
}

// MediaFor returns the media entry for an orientation, if any.
func (n *Notification) MediaFor(o Orientation) *Media {
	for i := range n.Media {
		if n.Media[i].Orientation == o {
			return &n.Media[i]
		}
	}
	return nil
}

// TemplateNames lists every custom template the payload refers to, its own
// first, then the ones behind button actions.
func (n *Notification) TemplateNames() []string {
	var names []string
	if n.CustomTemplateData != nil {
		names = append(names, n.CustomTemplateData.TemplateName)
	}
	for _, b := range n.Buttons {
		if b.Action != nil && b.Action.TemplateData != nil {
			names = append(names, b.Action.TemplateData.TemplateName)
		}
	}
	return names
}

// ForAction derives the notification that presents a custom template invoked
// from one of n's actions. Identity and deadline are copied; the type becomes
// custom-code and caps are bypassed.
func (n *Notification) ForAction(td *TemplateData) *Notification {
	o := map[string]any{
		"type":              string(InAppTypeCustomCode),
		"efc":               1,
		"excludeGlobalCaps": 1,
		"wzrk_ttl":          n.TimeToLive,
	}
	if n.ID != "" {
		o["ti"] = n.ID
	}
	if n.CampaignID != "" {
		o["wzrk_id"] = n.CampaignID
	}
	if n.Params != nil {
		o["wzrkParams"] = n.Params
	}
	if td != nil {
		c := td.Copy()
		c.IsAction = true
		c.writeTo(o)
	}

	raw, err := json.Marshal(o)
	if err != nil {
		child := newNotification(time.Now())
		child.SetError(ErrInvalidJSON)
		return child
	}
	return FromJSON(raw, n.VideoSupported)
}

// Description returns the raw payload for logging.
func (n *Notification) Description() string {
	return string(n.Raw)
}
