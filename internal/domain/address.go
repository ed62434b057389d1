package domain

// Address postal address with optional coordinates
type Address struct {
	Street      string   `json:"street"`
	City        string   `json:"city"`
	HouseNumber string   `json:"houseNumber"`
	Zip         int      `json:"zip"`
	Latitude    *float64 `json:"latitude,omitempty"`
	Longitude   *float64 `json:"longitude,omitempty"`
	Note        string   `json:"note"`
}

// AddAddressRequest is the address payload of create requests; Note is optional.
type AddAddressRequest struct {
	Street      string   `json:"street"`
	City        string   `json:"city"`
	HouseNumber string   `json:"houseNumber"`
	Zip         int      `json:"zip"`
	Latitude    *float64 `json:"latitude,omitempty"`
	Longitude   *float64 `json:"longitude,omitempty"`
	Note        *string  `json:"note,omitempty"`
}

// ToAddress converts the request into the stored shape (missing note becomes "").
func (r AddAddressRequest) ToAddress() Address {
	a := Address{
		Street:      r.Street,
		City:        r.City,
		HouseNumber: r.HouseNumber,
		Zip:         r.Zip,
		Latitude:    r.Latitude,
		Longitude:   r.Longitude,
	}
	if r.Note != nil {
		a.Note = *r.Note
	}
	return a
}
