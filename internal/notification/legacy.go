package notification

import "time"

// Window keys of the legacy schema.
const (
	keyWindow        = "w"
	keyData          = "d"
	keyDarken        = "dk"
	keyShowClose     = "sc"
	keyPosition      = "pos"
	keyXDP           = "xdp"
	keyXPercent      = "xp"
	keyYDP           = "ydp"
	keyYPercent      = "yp"
	keyHTML          = "html"
	keyMaxPerSession = "mdc"
)

var errInvalidJSON = &ParseError{Reason: ErrInvalidJSON}

// validateLegacy checks every key the legacy window needs, by exact type,
// before any field is trusted.
func validateLegacy(o object) error {
	w, d := o.obj(keyWindow), o.obj(keyData)
	if w == nil || d == nil {
		return errInvalidJSON
	}
	if !w.isInt(keyXDP) && !w.isInt(keyXPercent) {
		return errInvalidJSON
	}
	if !w.isInt(keyYDP) && !w.isInt(keyYPercent) {
		return errInvalidJSON
	}
	if !w.isBool(keyDarken) || !w.isBool(keyShowClose) {
		return errInvalidJSON
	}
	if !d.isString(keyHTML) {
		return errInvalidJSON
	}
	if !w.isString(keyPosition) {
		return errInvalidJSON
	}
	pos := w.str(keyPosition, "")
	if pos == "" || !Position(pos[0]).Valid() {
		return errInvalidJSON
	}
	return nil
}

// parseLegacy reads an HTML payload of the older schema. A failed
// validation returns a blank notification: nothing partial is kept.
func parseLegacy(o object, now time.Time) (*Notification, error) {
	if err := validateLegacy(o); err != nil {
		return newNotification(now), err
	}

	n := newNotification(now)
	readCaps(n, o)
	n.Type = o.str("type", "")

	d := o.obj(keyData)
	html := d.str(keyHTML, "")
	n.HTML = &html
	if d.isString("url") {
		u := d.str("url", "")
		n.CustomInAppURL = &u
	}
	if kv := d.obj("kv"); kv != nil {
		n.CustomExtras = map[string]any(kv)
	}

	w := o.obj(keyWindow)
	n.DarkenScreen = w.boolean(keyDarken, false)
	n.ShowClose = w.boolean(keyShowClose, false)
	n.Position = Position(w.str(keyPosition, "")[0])
	n.Width = w.integer(keyXDP, 0)
	n.WidthPercentage = w.integer(keyXPercent, 0)
	n.Height = w.integer(keyYDP, 0)
	n.HeightPercentage = w.integer(keyYPercent, 0)
	n.AspectRatio = w.float("aspectRatio", -1)
	if w.has(keyMaxPerSession) {
		n.MaxPerSession = w.integer(keyMaxPerSession, -1)
	}

	n.InAppType = legacyInAppType(n.Position, n.WidthPercentage, n.HeightPercentage)
	return n, nil
}

// legacyInAppType maps window geometry to an HTML family. Geometry matching
// no row stays unset and is never displayed.
func legacyInAppType(pos Position, xp, yp int) InAppType {
	switch {
	case pos == PositionTop && xp == 100 && yp <= 30:
		return InAppTypeHeaderHTML
	case pos == PositionBottom && xp == 100 && yp <= 30:
		return InAppTypeFooterHTML
	case pos == PositionCenter && xp == 90 && yp == 85:
		return InAppTypeInterstitialHTML
	case pos == PositionCenter && xp == 100 && yp == 100:
		return InAppTypeCoverHTML
	case pos == PositionCenter && xp == 90 && yp == 50:
		return InAppTypeHalfInterstitialHTML
	}
	return InAppTypeNone
}
