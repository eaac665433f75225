package models

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Sale is a historical property sale used as a comparable.
// The estimation engine only ever reads these rows.
type Sale struct {
	ID                 int64        `json:"id" gorm:"primaryKey;autoIncrement"`
	PropertyKind       PropertyKind `json:"property_kind" gorm:"column:property_kind;size:16;not null;index:idx_sales_kind_area,priority:1"`
	Address            string       `json:"address" gorm:"column:address;not null"`
	AddressSearch      string       `json:"-" gorm:"column:address_search;index:idx_sales_address_search"`
	LivingArea         float64      `json:"living_area" gorm:"column:living_area;not null;index:idx_sales_kind_area,priority:2"`
	Price              float64      `json:"price" gorm:"column:price;not null"`
	SaleDate           time.Time    `json:"sale_date" gorm:"column:sale_date"`
	Latitude           *float64     `json:"latitude" gorm:"column:latitude;index:idx_sales_coordinates,priority:1"`
	Longitude          *float64     `json:"longitude" gorm:"column:longitude;index:idx_sales_coordinates,priority:2"`
	GeocodingAttempted bool         `json:"-" gorm:"column:geocoding_attempted;default:false"`
	CreatedAt          time.Time    `json:"created_at"`
}

func (Sale) TableName() string {
	return "property_sales"
}

// BeforeCreate stores the folded address matched by text searches
func (s *Sale) BeforeCreate(tx *gorm.DB) error {
	s.AddressSearch = FoldAddress(s.Address)
	return nil
}

// HasCoordinates reports whether both latitude and longitude are set
func (s *Sale) HasCoordinates() bool {
	return s.Latitude != nil && s.Longitude != nil
}

// Key identifies a sale for de-duplication. Rows without a store ID fall
// back to address, date and price.
func (s *Sale) Key() string {
	if s.ID != 0 {
		return fmt.Sprintf("id:%d", s.ID)
	}
	return fmt.Sprintf("%s|%s|%.2f", s.Address, s.SaleDate.Format("2006-01-02"), s.Price)
}

// PricePerSqm returns the sale price divided by the living area, or false
// when either value cannot be used.
func (s *Sale) PricePerSqm() (float64, bool) {
	if s.LivingArea <= 0 || s.Price <= 0 {
		return 0, false
	}
	return s.Price / s.LivingArea, true
}
