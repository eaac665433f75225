package models

// PropertyDetails are the optional layout fields of the valuation form
type PropertyDetails struct {
	Bathrooms   int  `json:"bathrooms"`
	Showers     int  `json:"showers"`
	Floor       *int `json:"floor,omitempty"`
	TotalFloors *int `json:"totalFloors,omitempty"`
}

type PropertyFeatures struct {
	HasElevator      bool   `json:"hasElevator"`
	ParkingSpaces    int    `json:"parkingSpaces"`
	ConstructionYear *int   `json:"constructionYear,omitempty"`
	EnergyRating     string `json:"energyRating"`
	Condition        string `json:"condition"`
	Quality          string `json:"quality"`
}

type Ownership struct {
	IsOwner         bool   `json:"isOwner"`
	SellingTimeline string `json:"sellingTimeline"`
	WantsContact    bool   `json:"wantsContact"`
	FirstName       string `json:"firstName"`
	LastName        string `json:"lastName"`
	Phone           string `json:"phone"`
}

// PropertySubmission is the full form a visitor filled before asking for an estimate
type PropertySubmission struct {
	Type       string           `json:"type" binding:"required"`
	Address    string           `json:"address" binding:"required"`
	LivingArea float64          `json:"livingArea" binding:"gt=0"`
	Rooms      int              `json:"rooms" binding:"gt=0"`
	Details    PropertyDetails  `json:"details"`
	Features   PropertyFeatures `json:"features"`
	Ownership  Ownership        `json:"ownership"`
}

// ContactInfo identifies a visitor asking to be called back
type ContactInfo struct {
	FirstName string `json:"firstName" binding:"required,max=100"`
	LastName  string `json:"lastName" binding:"required,max=100"`
	Phone     string `json:"phone" binding:"required,min=6,max=30"`
	Email     string `json:"email,omitempty" binding:"omitempty,email"`
}
