// Package notification holds the in-app message model and the parsers for
// both payload schemas.
package notification

// InAppType is the presentation family of a notification. The values are the
// wire strings used by the current payload schema.
type InAppType string

const (
	InAppTypeNone                      InAppType = ""
	InAppTypeHTML                      InAppType = "custom-html"
	InAppTypeCoverHTML                 InAppType = "coverHtml"
	InAppTypeInterstitialHTML          InAppType = "interstitialHtml"
	InAppTypeHeaderHTML                InAppType = "headerHtml"
	InAppTypeFooterHTML                InAppType = "footerHtml"
	InAppTypeHalfInterstitialHTML      InAppType = "halfInterstitialHtml"
	InAppTypeCover                     InAppType = "cover"
	InAppTypeInterstitial              InAppType = "interstitial"
	InAppTypeHalfInterstitial          InAppType = "half-interstitial"
	InAppTypeHeader                    InAppType = "header-template"
	InAppTypeFooter                    InAppType = "footer-template"
	InAppTypeAlert                     InAppType = "alert-template"
	InAppTypeCoverImageOnly            InAppType = "cover-image"
	InAppTypeInterstitialImageOnly     InAppType = "interstitial-image"
	InAppTypeHalfInterstitialImageOnly InAppType = "half-interstitial-image"
	InAppTypeCustomCode                InAppType = "custom-code"
)

var inAppTypes = map[string]InAppType{
	string(InAppTypeHTML):                      InAppTypeHTML,
	string(InAppTypeCoverHTML):                 InAppTypeCoverHTML,
	string(InAppTypeInterstitialHTML):          InAppTypeInterstitialHTML,
	string(InAppTypeHeaderHTML):                InAppTypeHeaderHTML,
	string(InAppTypeFooterHTML):                InAppTypeFooterHTML,
	string(InAppTypeHalfInterstitialHTML):      InAppTypeHalfInterstitialHTML,
	string(InAppTypeCover):                     InAppTypeCover,
	string(InAppTypeInterstitial):              InAppTypeInterstitial,
	string(InAppTypeHalfInterstitial):          InAppTypeHalfInterstitial,
	string(InAppTypeHeader):                    InAppTypeHeader,
	string(InAppTypeFooter):                    InAppTypeFooter,
	string(InAppTypeAlert):                     InAppTypeAlert,
	string(InAppTypeCoverImageOnly):            InAppTypeCoverImageOnly,
	string(InAppTypeInterstitialImageOnly):     InAppTypeInterstitialImageOnly,
	string(InAppTypeHalfInterstitialImageOnly): InAppTypeHalfInterstitialImageOnly,
	string(InAppTypeCustomCode):                InAppTypeCustomCode,
}

// LookupInAppType maps a wire type string to its InAppType. Unknown strings
// yield InAppTypeNone.
func LookupInAppType(s string) InAppType {
	return inAppTypes[s]
}

// AllInAppTypes returns every known type, unset excluded.
func AllInAppTypes() []InAppType {
	out := make([]InAppType, 0, len(inAppTypes))
	for _, t := range inAppTypes {
		out = append(out, t)
	}
	return out
}

// IsHTML reports whether the type is rendered from an HTML document.
func (t InAppType) IsHTML() bool {
	switch t {
	case InAppTypeHTML, InAppTypeCoverHTML, InAppTypeInterstitialHTML,
		InAppTypeHeaderHTML, InAppTypeFooterHTML, InAppTypeHalfInterstitialHTML:
		return true
	}
	return false
}

// ImageOnly reports whether the template renders a single static image.
func (t InAppType) ImageOnly() bool {
	switch t {
	case InAppTypeCoverImageOnly, InAppTypeInterstitialImageOnly, InAppTypeHalfInterstitialImageOnly:
		return true
	}
	return false
}

func (t InAppType) String() string {
	if t == InAppTypeNone {
		return "none"
	}
	return string(t)
}

// Position is the single-character window anchor of legacy payloads.
type Position byte

const (
	PositionUnset  Position = 0
	PositionTop    Position = 't'
	PositionBottom Position = 'b'
	PositionLeft   Position = 'l'
	PositionRight  Position = 'r'
	PositionCenter Position = 'c'
)

// Valid reports whether p is one of the five recognized anchors.
func (p Position) Valid() bool {
	switch p {
	case PositionTop, PositionBottom, PositionLeft, PositionRight, PositionCenter:
		return true
	}
	return false
}

func (p Position) String() string {
	if p == PositionUnset {
		return ""
	}
	return string(rune(p))
}

// Orientation tells which screen orientation a media entry is meant for.
type Orientation int

const (
	OrientationPortrait Orientation = iota + 1
	OrientationLandscape
)

func (o Orientation) String() string {
	switch o {
	case OrientationPortrait:
		return "portrait"
	case OrientationLandscape:
		return "landscape"
	default:
		return "unknown"
	}
}
