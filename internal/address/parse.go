// Package address splits free-text French postal addresses into the parts
// used for text matching against stored sales.
package address

import (
	"regexp"
	"strings"
)

// Components of a free-text address. Any field may be empty.
type Components struct {
	StreetName string
	PostalCode string
	City       string
}

var (
	postalCodeRe  = regexp.MustCompile(`\b\d{5}\b`)
	houseNumberRe = regexp.MustCompile(`(?i)^\d+\s*(bis|ter|quater|[a-d])?\b[\s,]*`)
	spacesRe      = regexp.MustCompile(`\s+`)
)

// Parse extracts the street name, postal code and city from an address such
// as "12 bis Rue de la Paix, 77400 Lagny-sur-Marne".
func Parse(addr string) Components {
	addr = strings.TrimSpace(spacesRe.ReplaceAllString(addr, " "))
	if addr == "" {
		return Components{}
	}

	var c Components
	head := addr
	if loc := postalCodeRe.FindStringIndex(addr); loc != nil {
		c.PostalCode = addr[loc[0]:loc[1]]
		head = addr[:loc[0]]
		c.City = strings.Trim(addr[loc[1]:], " ,")
	}

	if i := strings.Index(head, ","); i >= 0 {
		if c.PostalCode == "" {
			c.City = strings.Trim(head[i+1:], " ,")
		}
		head = head[:i]
	}

	head = strings.Trim(head, " ,")
	head = houseNumberRe.ReplaceAllString(head, "")
	c.StreetName = strings.Trim(head, " ,")

	// A bare number is not a street name
	if postalCodeRe.MatchString(c.StreetName) || strings.Trim(c.StreetName, "0123456789 ") == "" {
		c.StreetName = ""
	}
	return c
}

// SearchTerms returns the text-match candidates in priority order:
// street name first, then postal code.
func (c Components) SearchTerms() []string {
	var terms []string
	if c.StreetName != "" {
		terms = append(terms, c.StreetName)
	}
	if c.PostalCode != "" {
		terms = append(terms, c.PostalCode)
	}
	return terms
}
