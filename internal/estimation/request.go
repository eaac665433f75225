package estimation

import (
	"fmt"
	"math"
	"strings"

	"valuation/server/internal/models"
)

// Request is the estimation form payload
type Request struct {
	Type             string   `json:"type"`
	Address          string   `json:"address"`
	LivingArea       float64  `json:"livingArea"`
	Rooms            int      `json:"rooms"`
	Condition        string   `json:"condition"`
	ConstructionYear *int     `json:"constructionYear,omitempty"`
	Floor            *int     `json:"floor,omitempty"`
	HasElevator      *bool    `json:"hasElevator,omitempty"`
	LandArea         *float64 `json:"landArea,omitempty"`
}

// Query validates the payload and converts it into a PropertyQuery.
// Unknown condition labels are accepted and price as neutral.
func (r Request) Query() (models.PropertyQuery, error) {
	if strings.TrimSpace(r.Type) == "" {
		return models.PropertyQuery{}, invalidInput("property type is required")
	}
	kind, ok := models.ParsePropertyKind(r.Type)
	if !ok {
		return models.PropertyQuery{}, invalidInput("property type must be house or apartment")
	}

	q := models.PropertyQuery{
		Kind:             kind,
		Address:          strings.TrimSpace(r.Address),
		LivingAreaSqm:    r.LivingArea,
		RoomCount:        r.Rooms,
		Condition:        models.ParseCondition(r.Condition),
		ConditionLabel:   r.Condition,
		ConstructionYear: r.ConstructionYear,
		Floor:            r.Floor,
		HasElevator:      r.HasElevator,
		LandAreaSqm:      r.LandArea,
	}
	if err := ValidateQuery(q); err != nil {
		return models.PropertyQuery{}, err
	}
	return q, nil
}

// MaxLivingAreaSqm bounds the living area so prices stay within int64
const MaxLivingAreaSqm = 100000

// ValidateQuery checks the fields the engine depends on
func ValidateQuery(q models.PropertyQuery) error {
	switch {
	case strings.TrimSpace(q.Address) == "":
		return invalidInput("address missing")
	case q.Kind != models.KindHouse && q.Kind != models.KindApartment:
		return invalidInput("property type must be house or apartment")
	case q.LivingAreaSqm <= 0:
		return invalidInput("living area must be greater than zero")
	case q.LivingAreaSqm > MaxLivingAreaSqm || math.IsNaN(q.LivingAreaSqm):
		return invalidInput(fmt.Sprintf("living area must not exceed %d m²", MaxLivingAreaSqm))
	case q.RoomCount <= 0:
		return invalidInput("number of rooms must be greater than zero")
	}
	return nil
}
