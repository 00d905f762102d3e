package evaluator

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// Reserved event names.
const (
	EventAppLaunched = "App Launched"
	EventCharged     = "Charged"
)

// Property names a profile change trigger compares against.
const (
	PropNewValue = "newValue"
	PropOldValue = "oldValue"
)

// Location is the device position at trigger time.
type Location struct {
	Lat float64
	Lng float64
}

// ProfileChange is one attribute's value before and after an update.
type ProfileChange struct {
	Old any
	New any
}

// candidate is the part of an in-app payload the matcher reads.
type candidate struct {
	ID           string    `json:"ti"`
	CampaignID   string    `json:"wzrk_id"`
	Priority     float64   `json:"priority"`
	WhenTriggers []trigger `json:"whenTriggers"`
	WhenLimits   []limit   `json:"whenLimits"`

	raw json.RawMessage
}

func (c *candidate) key() string {
	if c.CampaignID != "" {
		return c.CampaignID
	}
	return c.ID
}

type trigger struct {
	EventName       string      `json:"eventName"`
	EventProperties []condition `json:"eventProperties"`
	ItemProperties  []condition `json:"itemProperties"`
	ProfileAttrName string      `json:"profileAttrName"`
	GeoRadius       []geoRadius `json:"geoRadius"`
}

type condition struct {
	PropertyName string `json:"propertyName"`
	Operator     string `json:"operator"`
	Value        any    `json:"value"`
}

type geoRadius struct {
	Lat    float64 `json:"lat"`
	Lng    float64 `json:"lng"`
	Radius float64 `json:"rad"`
}

type limit struct {
	Type  string `json:"type"`
	Limit int    `json:"limit"`
}

// Limit types.
const (
	LimitEver    = "ever"
	LimitSession = "session"
)

func parseCandidate(raw json.RawMessage) (*candidate, error) {
	var c candidate
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("parse in-app triggers: %w", err)
	}
	c.raw = raw
	return &c, nil
}

// event is what happened, in the shape triggers are matched against.
type event struct {
	name        string
	profileAttr string
	props       map[string]any
	items       []map[string]any
	loc         *Location
}

func (t trigger) matches(e event) bool {
	if e.profileAttr != "" {
		if t.ProfileAttrName != e.profileAttr {
			return false
		}
	} else if t.EventName != e.name || t.ProfileAttrName != "" {
		return false
	}

	for _, c := range t.EventProperties {
		if !c.holds(e.props) {
			return false
		}
	}

	if len(t.ItemProperties) > 0 {
		found := false
		for _, item := range e.items {
			if allHold(t.ItemProperties, item) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if len(t.GeoRadius) > 0 {
		if e.loc == nil {
			return false
		}
		inside := false
		for _, g := range t.GeoRadius {
			if distanceKm(g.Lat, g.Lng, e.loc.Lat, e.loc.Lng) <= g.Radius {
				inside = true
				break
			}
		}
		if !inside {
			return false
		}
	}
	return true
}

func allHold(conds []condition, props map[string]any) bool {
	for _, c := range conds {
		if !c.holds(props) {
			return false
		}
	}
	return true
}

// Operators.
const (
	OpEquals      = "=="
	OpNotEquals   = "!="
	OpGreaterThan = ">"
	OpLessThan    = "<"
	OpContains    = "contains"
	OpSet         = "set"
)

func (c condition) holds(props map[string]any) bool {
	actual, present := props[c.PropertyName]
	present = present && actual != nil

	switch c.Operator {
	case OpSet:
		return present
	case OpNotEquals:
		return !present || !equalsAny(actual, c.Value)
	}

	if !present {
		return false
	}
	switch c.Operator {
	case OpEquals:
		return equalsAny(actual, c.Value)
	case OpGreaterThan:
		a, ok1 := toFloat(actual)
		b, ok2 := toFloat(c.Value)
		return ok1 && ok2 && a > b
	case OpLessThan:
		a, ok1 := toFloat(actual)
		b, ok2 := toFloat(c.Value)
		return ok1 && ok2 && a < b
	case OpContains:
		return contains(actual, c.Value)
	default:
		return false
	}
}

// equalsAny compares actual with expected. An array on either side matches
// when any element does.
func equalsAny(actual, expected any) bool {
	if list, ok := expected.([]any); ok {
		for _, e := range list {
			if equalsAny(actual, e) {
				return true
			}
		}
		return false
	}
	if list, ok := actual.([]any); ok {
		for _, a := range list {
			if equal(a, expected) {
				return true
			}
		}
		return false
	}
	return equal(actual, expected)
}

func equal(a, b any) bool {
	fa, ok1 := toFloat(a)
	fb, ok2 := toFloat(b)
	if ok1 && ok2 {
		return fa == fb
	}
	return strings.EqualFold(fmt.Sprint(a), fmt.Sprint(b))
}

func contains(actual, expected any) bool {
	if list, ok := actual.([]any); ok {
		for _, a := range list {
			if equal(a, expected) {
				return true
			}
		}
		return false
	}
	if list, ok := actual.([]string); ok {
		for _, a := range list {
			if equal(a, expected) {
				return true
			}
		}
		return false
	}
	return strings.Contains(strings.ToLower(fmt.Sprint(actual)), strings.ToLower(fmt.Sprint(expected)))
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

const earthRadiusKm = 6371.0

// distanceKm is the great-circle distance between two points.
func distanceKm(lat1, lng1, lat2, lng2 float64) float64 {
	rad := func(d float64) float64 { return d * math.Pi / 180 }
	dLat := rad(lat2 - lat1)
	dLng := rad(lng2 - lng1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rad(lat1))*math.Cos(rad(lat2))*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(a))
}
