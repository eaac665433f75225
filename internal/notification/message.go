package notification

import (
	"fmt"
	"math"
	"strings"
	"time"

	"valuation/server/internal/models"

	"github.com/google/uuid"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const subjectPrefix = "Landing Page"

// Kind of team notification
type Kind string

const (
	KindEstimation Kind = "estimation"
	KindContact    Kind = "contact"
)

// Message is a plain-text team notification
type Message struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	Subject   string    `json:"subject"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

var printer = message.NewPrinter(language.French)

func newMessage(kind Kind, subject, text string) Message {
	return Message{
		ID:        uuid.NewString(),
		Kind:      kind,
		Subject:   subject,
		Text:      text,
		CreatedAt: time.Now().UTC(),
	}
}

func formatEuro(amount int64) string {
	return printer.Sprintf("%d €", amount)
}

func yesNo(b bool) string {
	if b {
		return "Oui"
	}
	return "Non"
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

func intOrDash(v *int) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%d", *v)
}

func kindLabel(t string) string {
	if kind, ok := models.ParsePropertyKind(t); ok && kind == models.KindHouse {
		return "Maison"
	}
	return "Appartement"
}

// EstimationMessage describes a completed estimate for the sales team
func EstimationMessage(p models.PropertySubmission, r models.EstimateResult) Message {
	var b strings.Builder
	b.WriteString("Bonjour La Team,\n")
	b.WriteString("Une nouvelle estimation vient d'être faite sur la Landing Page, voici les infos :\n\n")

	b.WriteString("Détails du bien :\n")
	fmt.Fprintf(&b, "- Type : %s\n", kindLabel(p.Type))
	fmt.Fprintf(&b, "- Adresse : %s\n", p.Address)
	fmt.Fprintf(&b, "- Surface : %s m²\n", printer.Sprintf("%v", p.LivingArea))
	fmt.Fprintf(&b, "- Pièces : %d\n", p.Rooms)
	fmt.Fprintf(&b, "- Salles de bains : %d\n", p.Details.Bathrooms)
	fmt.Fprintf(&b, "- Douches : %d\n", p.Details.Showers)

	if kind, _ := models.ParsePropertyKind(p.Type); kind == models.KindApartment {
		floor := intOrDash(p.Details.Floor)
		if p.Details.Floor != nil && *p.Details.Floor == -1 {
			floor = "Rez-de-chaussée"
		}
		fmt.Fprintf(&b, "- Étage : %s\n", floor)
		fmt.Fprintf(&b, "- Nombre total d'étages : %s\n", intOrDash(p.Details.TotalFloors))
		fmt.Fprintf(&b, "- Ascenseur : %s\n", yesNo(p.Features.HasElevator))
		fmt.Fprintf(&b, "- Places de parking : %d\n", p.Features.ParkingSpaces)
	}

	fmt.Fprintf(&b, "- Année de construction : %s\n", intOrDash(p.Features.ConstructionYear))
	fmt.Fprintf(&b, "- DPE : %s\n", orDash(p.Features.EnergyRating))
	fmt.Fprintf(&b, "- État : %s\n", orDash(p.Features.Condition))
	fmt.Fprintf(&b, "- Niveau de qualité : %s\n\n", orDash(p.Features.Quality))

	b.WriteString("Estimation :\n")
	fmt.Fprintf(&b, "- Prix estimé : %s\n", formatEuro(r.EstimatedPrice))
	fmt.Fprintf(&b, "- Fourchette : %s - %s\n", formatEuro(r.PriceRange.Min), formatEuro(r.PriceRange.Max))
	fmt.Fprintf(&b, "- Prix/m² : %s\n", formatEuro(r.AveragePricePerSqm))
	fmt.Fprintf(&b, "- Ventes comparables : %d\n", r.ComparableSaleCount)
	fmt.Fprintf(&b, "- Indice de confiance : %d%%\n\n", int(math.Round(r.ConfidenceScore*100)))

	b.WriteString("Projet :\n")
	fmt.Fprintf(&b, "- Propriétaire : %s\n", yesNo(p.Ownership.IsOwner))
	fmt.Fprintf(&b, "- Échéance : %s\n", orDash(p.Ownership.SellingTimeline))
	fmt.Fprintf(&b, "- Souhaite être contacté : %s\n", yesNo(p.Ownership.WantsContact))

	if p.Ownership.WantsContact {
		b.WriteString("\nCoordonnées :\n")
		fmt.Fprintf(&b, "- Nom : %s\n", p.Ownership.LastName)
		fmt.Fprintf(&b, "- Prénom : %s\n", p.Ownership.FirstName)
		fmt.Fprintf(&b, "- Téléphone : %s\n", p.Ownership.Phone)
	}

	subject := fmt.Sprintf("%s - Nouvelle estimation - %s", subjectPrefix, p.Address)
	return newMessage(KindEstimation, subject, b.String())
}

// EstimateSummary is the short form of an estimate attached to a contact request
type EstimateSummary struct {
	Address string                `json:"address"`
	Result  *models.EstimateResult `json:"result,omitempty"`
}

// ContactMessage asks the team to call a visitor back. estimate may be nil.
func ContactMessage(c models.ContactInfo, estimate *EstimateSummary) Message {
	var b strings.Builder
	b.WriteString("Bonjour La Team,\n\n")
	b.WriteString("Une nouvelle demande de contact a été faite sur la Landing Page :\n\n")

	b.WriteString("Coordonnées du client :\n")
	fmt.Fprintf(&b, "- Prénom : %s\n", c.FirstName)
	fmt.Fprintf(&b, "- Nom : %s\n", c.LastName)
	fmt.Fprintf(&b, "- Téléphone : %s\n", c.Phone)
	if c.Email != "" {
		fmt.Fprintf(&b, "- Email : %s\n", c.Email)
	}

	if estimate != nil {
		b.WriteString("\nEstimation associée :\n")
		if estimate.Address != "" {
			fmt.Fprintf(&b, "- Adresse : %s\n", estimate.Address)
		}
		if r := estimate.Result; r != nil {
			fmt.Fprintf(&b, "- Prix estimé : %s\n", formatEuro(r.EstimatedPrice))
			fmt.Fprintf(&b, "- Fourchette : %s - %s\n", formatEuro(r.PriceRange.Min), formatEuro(r.PriceRange.Max))
		}
	}

	b.WriteString("\nLe client souhaite être recontacté pour une estimation plus précise de son bien.")

	subject := fmt.Sprintf("%s - Nouvelle demande de contact - %s %s", subjectPrefix, c.FirstName, c.LastName)
	return newMessage(KindContact, subject, b.String())
}
