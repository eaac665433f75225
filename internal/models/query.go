package models

import "strings"

// PropertyKind is the type of dwelling being valued
type PropertyKind string

const (
	KindHouse     PropertyKind = "house"
	KindApartment PropertyKind = "apartment"
)

// ParsePropertyKind accepts the wire values and the French site labels
func ParsePropertyKind(s string) (PropertyKind, bool) {
	switch foldLabel(s) {
	case "house", "maison":
		return KindHouse, true
	case "apartment", "appartement", "flat":
		return KindApartment, true
	}
	return "", false
}

// Condition is the subjective state of the property, ordered from worst to best.
type Condition int

const (
	ConditionUnknown Condition = iota
	ConditionToRenovate
	ConditionWorkNeeded
	ConditionGood
	ConditionVeryGood
	ConditionLikeNew
	ConditionNew
)

var conditionLabels = map[string]Condition{
	"a renover":         ConditionToRenovate,
	"to_renovate":       ConditionToRenovate,
	"travaux a prevoir": ConditionWorkNeeded,
	"work_needed":       ConditionWorkNeeded,
	"bon etat":          ConditionGood,
	"good":              ConditionGood,
	"tres bon etat":     ConditionVeryGood,
	"very_good":         ConditionVeryGood,
	"refait a neuf":     ConditionLikeNew,
	"like_new":          ConditionLikeNew,
	"neuf":              ConditionNew,
	"new":               ConditionNew,
}

// ParseCondition maps a form label to a Condition. Unrecognized labels
// return ConditionUnknown, which prices as neutral.
func ParseCondition(label string) Condition {
	if c, ok := conditionLabels[foldLabel(label)]; ok {
		return c
	}
	return ConditionUnknown
}

func (c Condition) String() string {
	switch c {
	case ConditionToRenovate:
		return "À rénover"
	case ConditionWorkNeeded:
		return "Travaux à prévoir"
	case ConditionGood:
		return "Bon état"
	case ConditionVeryGood:
		return "Très bon état"
	case ConditionLikeNew:
		return "Refait à neuf"
	case ConditionNew:
		return "Neuf"
	default:
		return "unknown"
	}
}

func foldLabel(s string) string {
	s = strings.ToLower(stripMarks(strings.TrimSpace(s)))
	return strings.Join(strings.Fields(s), " ")
}

// PropertyQuery is the validated input of one estimation request
type PropertyQuery struct {
	Kind             PropertyKind
	Address          string
	LivingAreaSqm    float64
	RoomCount        int
	Condition        Condition
	ConditionLabel   string
	ConstructionYear *int
	Floor            *int
	HasElevator      *bool
	LandAreaSqm      *float64
}
