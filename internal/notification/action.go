package notification

import (
	"errors"
	"net/url"
	"strings"

	"go.uber.org/zap"
)

// ActionType tags what an Action does.
type ActionType string

const (
	ActionClose             ActionType = "close"
	ActionOpenURL           ActionType = "url"
	ActionKeyValue          ActionType = "kv"
	ActionRequestPermission ActionType = "rfp"
	ActionCustomCode        ActionType = "custom-code"
)

var (
	errUnknownActionType   = errors.New("unknown action type")
	errMissingTemplateName = errors.New("custom code action without template name")
)

// Action describes what happens when a button is clicked.
type Action struct {
	Type               ActionType        `json:"type"`
	URL                string            `json:"url,omitempty"`
	KeyValues          map[string]string `json:"kv"`
	FallbackToSettings bool              `json:"fallback_to_settings,omitempty"`
	TemplateData       *TemplateData     `json:"template_data,omitempty"`
}

func parseAction(o object) (*Action, error) {
	a := &Action{
		Type:               ActionType(o.str("type", "")),
		URL:                o.str("android", ""),
		KeyValues:          o.stringMap("kv"),
		FallbackToSettings: o.boolean("fbSettings", false),
	}

	switch a.Type {
	case "":
		switch {
		case a.URL != "":
			a.Type = ActionOpenURL
		case len(a.KeyValues) > 0:
			a.Type = ActionKeyValue
		default:
			a.Type = ActionClose
		}
	case ActionClose, ActionOpenURL, ActionKeyValue, ActionRequestPermission:
	case ActionCustomCode:
		a.TemplateData = templateDataFrom(o)
		if a.TemplateData == nil {
			return nil, errMissingTemplateName
		}
	default:
		return nil, errUnknownActionType
	}
	return a, nil
}

// TemplateData identifies a registered custom template and its arguments.
type TemplateData struct {
	TemplateName        string         `json:"templateName"`
	TemplateID          string         `json:"templateId,omitempty"`
	TemplateDescription string         `json:"templateDescription,omitempty"`
	Vars                map[string]any `json:"vars"`
	IsAction            bool           `json:"isAction,omitempty"`
}

func templateDataFrom(o object) *TemplateData {
	name := o.str("templateName", "")
	if name == "" {
		return nil
	}
	td := &TemplateData{
		TemplateName:        name,
		TemplateID:          o.str("templateId", ""),
		TemplateDescription: o.str("templateDescription", ""),
		IsAction:            o.boolean("isAction", false),
	}
	if vars := o.obj("vars"); vars != nil {
		td.Vars = map[string]any(vars)
	}
	return td
}

// Copy returns a copy that does not share the top-level vars map.
func (td *TemplateData) Copy() *TemplateData {
	if td == nil {
		return nil
	}
	c := *td
	if td.Vars != nil {
		c.Vars = make(map[string]any, len(td.Vars))
		for k, v := range td.Vars {
			c.Vars[k] = v
		}
	}
	return &c
}

func (td *TemplateData) writeTo(o map[string]any) {
	o["templateName"] = td.TemplateName
	if td.TemplateID != "" {
		o["templateId"] = td.TemplateID
	}
	if td.TemplateDescription != "" {
		o["templateDescription"] = td.TemplateDescription
	}
	if td.Vars != nil {
		o["vars"] = td.Vars
	}
	o["isAction"] = td.IsAction
}

const (
	// CallToActionParam is the query parameter carrying the click label.
	CallToActionParam = "wzrk_c2a"
	deepLinkSeparator = "__dl__"
)

// ActionURL is a clicked URL split into the target to open and its
// call-to-action label.
type ActionURL struct {
	URL          string
	CallToAction string
	Params       map[string]string
}

// ParseActionURL extracts the call-to-action embedded in raw. The
// wzrk_c2a parameter may hold "<label>__dl__<deeplink>"; only an exact
// two-part split is honored, anything else leaves raw as a plain URL.
// Decoding problems are logged and the original text kept.
func ParseActionURL(raw string, logger *zap.Logger) ActionURL {
	res := ActionURL{URL: raw, Params: map[string]string{}}

	q := raw
	if i := strings.IndexByte(q, '?'); i >= 0 {
		q = q[i+1:]
	} else {
		return res
	}
	if i := strings.IndexByte(q, '#'); i >= 0 {
		q = q[:i]
	}

	var c2a string
	var hasC2A bool
	for _, pair := range strings.Split(q, "&") {
		if pair == "" {
			continue
		}
		key, value, _ := strings.Cut(pair, "=")
		if k, err := url.QueryUnescape(key); err == nil {
			key = k
		}
		if key == CallToActionParam {
			// the label is decoded only after the split
			c2a, hasC2A = value, true
			res.Params[key] = value
			continue
		}
		decoded, err := url.QueryUnescape(value)
		if err != nil {
			logger.Debug("keeping undecoded url parameter",
				zap.String("param", key),
				zap.Error(err),
			)
			decoded = value
		}
		res.Params[key] = decoded
	}

	if !hasC2A {
		return res
	}

	parts := strings.Split(c2a, deepLinkSeparator)
	if len(parts) != 2 {
		return res
	}

	label, err := url.QueryUnescape(parts[0])
	if err != nil {
		logger.Debug("error parsing c2a param", zap.String("c2a", parts[0]), zap.Error(err))
		label = parts[0]
	}
	res.CallToAction = label
	res.Params[CallToActionParam] = label
	res.URL = parts[1]
	return res
}
