package notification

import "time"

// parseCurrent reads a typed payload. An unknown type string leaves
// InAppType unset, which callers treat as "cannot display".
func parseCurrent(o object, now time.Time) (*Notification, error) {
	n := newNotification(now)
	readCaps(n, o)

	n.Type = o.str("type", "")
	n.InAppType = LookupInAppType(n.Type)

	n.IsLocalInApp = o.boolean("isLocalInApp", false)
	n.FallBackToNotificationSettings = o.boolean("fallbackToNotificationSettings", false)
	n.RequestsPushPermission = o.boolean("rfp", false)
	n.IsTablet = o.boolean("tablet", false)
	n.IsPortrait = o.boolean("hasPortrait", true)
	n.IsLandscape = o.boolean("hasLandscape", false)
	n.BackgroundColor = o.str("bg", colorWhite)
	n.HideCloseButton = o.boolean("close", false)
	n.AspectRatio = o.float("aspectRatio", -1)
	if kv := o.obj("kv"); kv != nil {
		n.CustomExtras = map[string]any(kv)
	}

	if title := o.obj("title"); title != nil {
		n.Title = title.str("text", "")
		n.TitleColor = title.str("color", colorBlack)
	}
	if msg := o.obj("message"); msg != nil {
		n.Message = msg.str("text", "")
		n.MessageColor = msg.str("color", colorBlack)
	}

	if m := newMedia(o.obj("media"), OrientationPortrait); m != nil {
		n.Media = append(n.Media, *m)
	}
	if m := newMedia(o.obj("mediaLandscape"), OrientationLandscape); m != nil {
		n.Media = append(n.Media, *m)
	}

	for _, item := range o.arr("buttons") {
		bo, ok := item.(map[string]any)
		if !ok {
			continue
		}
		b := parseButton(object(bo))
		if b.Error != nil {
			continue
		}
		n.Buttons = append(n.Buttons, b)
		n.ButtonCount++
	}

	if n.InAppType == InAppTypeCustomCode {
		n.CustomTemplateData = templateDataFrom(o)
	}

	if n.InAppType.ImageOnly() {
		for _, m := range n.Media {
			if !m.IsImage() {
				return n, &ParseError{Reason: ErrWrongMediaType}
			}
		}
	}
	return n, nil
}
