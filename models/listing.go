package models

import "strings"

// Rent type labels as they appear on the portal.
const (
	RentTypeWhole  = "整租"
	RentTypeShared = "合租"
	RentTypeOther  = "其他"
)

// Listing is one scraped rental advertisement. Text fields use "" and
// pointer fields use nil for "not present in the markup".
type Listing struct {
	Title       string   `json:"title"`
	RentType    string   `json:"rent_type,omitempty"`
	District    string   `json:"district,omitempty"`
	SubDistrict string   `json:"sub_district,omitempty"`
	Community   string   `json:"community,omitempty"`
	Area        *float64 `json:"area,omitempty"`
	Orientation string   `json:"orientation,omitempty"`
	Bedrooms    *int     `json:"bedrooms,omitempty"`
	LivingRooms *int     `json:"living_rooms,omitempty"`
	Bathrooms   *int     `json:"bathrooms,omitempty"`
	FloorLevel  string   `json:"floor_level,omitempty"`
	TotalFloors *int     `json:"total_floors,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Platform    string   `json:"platform,omitempty"`
	Price       *int     `json:"price,omitempty"`

	// PriceUnparsed is set when a price element existed but held no number.
	PriceUnparsed bool `json:"-"`
}

// Usable reports whether the listing has the positive price and area the
// analysis needs.
func (l *Listing) Usable() bool {
	return l.Price != nil && *l.Price > 0 && l.Area != nil && *l.Area > 0
}

func (l *Listing) TagString() string {
	return strings.Join(l.Tags, TagSeparator)
}

// TagSeparator joins tags in a single dataset column.
const TagSeparator = "|"

// Field names in their default column order.
const (
	FieldTitle       = "title"
	FieldRentType    = "rent_type"
	FieldDistrict    = "district"
	FieldSubDistrict = "sub_district"
	FieldCommunity   = "community"
	FieldArea        = "area"
	FieldOrientation = "orientation"
	FieldBedrooms    = "bedrooms"
	FieldLivingRooms = "living_rooms"
	FieldBathrooms   = "bathrooms"
	FieldFloorLevel  = "floor_level"
	FieldTotalFloors = "total_floors"
	FieldTags        = "tags"
	FieldPlatform    = "platform"
	FieldPrice       = "price"
)

var DefaultFields = []string{
	FieldTitle, FieldRentType, FieldDistrict, FieldSubDistrict, FieldCommunity,
	FieldArea, FieldOrientation, FieldBedrooms, FieldLivingRooms, FieldBathrooms,
	FieldFloorLevel, FieldTotalFloors, FieldTags, FieldPlatform, FieldPrice,
}

func IsKnownField(name string) bool {
	for _, f := range DefaultFields {
		if f == name {
			return true
		}
	}
	return false
}

func IntPtr(v int) *int { return &v }

func FloatPtr(v float64) *float64 { return &v }
