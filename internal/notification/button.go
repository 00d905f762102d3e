package notification

const (
	defaultButtonTextColor = "#1C84FE"
	colorWhite             = "#FFFFFF"
	colorBlack             = "#000000"
)

// Button is one call-to-action of a native template.
type Button struct {
	Text            string  `json:"text"`
	TextColor       string  `json:"text_color"`
	BackgroundColor string  `json:"background_color"`
	BorderColor     string  `json:"border_color"`
	BorderRadius    string  `json:"border_radius"`
	Action          *Action `json:"action,omitempty"`
	Error           *string `json:"error,omitempty"`
}

func parseButton(o object) Button {
	b := Button{
		Text:            o.str("text", ""),
		TextColor:       o.str("color", defaultButtonTextColor),
		BackgroundColor: o.str("bg", colorWhite),
		BorderColor:     o.str("border", colorWhite),
		BorderRadius:    o.str("radius", ""),
	}
	if actions := o.obj("actions"); actions != nil {
		a, err := parseAction(actions)
		if err != nil {
			msg := "Invalid button action: " + err.Error()
			b.Error = &msg
			return b
		}
		b.Action = a
	}
	return b
}

// KeyValues returns the key/value payload of a kv action, nil otherwise.
func (b Button) KeyValues() map[string]string {
	if b.Action == nil || b.Action.Type != ActionKeyValue {
		return nil
	}
	return b.Action.KeyValues
}
