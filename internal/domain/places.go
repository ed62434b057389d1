package domain

import "strconv"

// PlaceSearchResult one autocomplete suggestion
type PlaceSearchResult struct {
	PlaceID          string `json:"placeId"`
	FormattedAddress string `json:"formattedAddress"`
}

type PlaceDetailsResult struct {
	FormattedAddress  string                    `json:"formattedAddress"`
	Location          PlaceLocation             `json:"location"`
	AddressComponents []DetailsAddressComponent `json:"addressComponents"`
}

type PlaceLocation struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type DetailsAddressComponent struct {
	LongText     string   `json:"longText"`
	ShortText    string   `json:"shortText"`
	Types        []string `json:"types"`
	LanguageCode string   `json:"languageCode"`
}

// Component returns the long text of the first component carrying type t.
func (d PlaceDetailsResult) Component(t string) string {
	for _, c := range d.AddressComponents {
		for _, ct := range c.Types {
			if ct == t {
				return c.LongText
			}
		}
	}
	return ""
}

// PlacePredictionResponse raw autocomplete response
type PlacePredictionResponse struct {
	Suggestions []Suggestion `json:"suggestions"`
}

type Suggestion struct {
	PlacePrediction struct {
		Place   string `json:"place"`
		PlaceID string `json:"placeId"`
		Text    struct {
			Text string `json:"text"`
		} `json:"text"`
		Types []string `json:"types"`
	} `json:"placePrediction"`
}

// ToAddress maps a detail lookup onto a postal address.
func (d PlaceDetailsResult) ToAddress() Address {
	lat, lng := d.Location.Latitude, d.Location.Longitude
	a := Address{
		Street:      d.Component("route"),
		HouseNumber: d.Component("street_number"),
		City:        d.Component("locality"),
		Latitude:    &lat,
		Longitude:   &lng,
	}
	if zip, err := strconv.Atoi(d.Component("postal_code")); err == nil {
		a.Zip = zip
	}
	return a
}
