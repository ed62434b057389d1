package domain

type VehicleType string

const (
	VehicleTruck      VehicleType = "Truck"
	VehicleCar        VehicleType = "Car"
	VehicleMotorcycle VehicleType = "Motorcycle"
	VehicleBicycle    VehicleType = "Bicycle"
	VehicleWalking    VehicleType = "Walking"
)

func (t VehicleType) Valid() bool {
	switch t {
	case VehicleTruck, VehicleCar, VehicleMotorcycle, VehicleBicycle, VehicleWalking:
		return true
	}
	return false
}

type Vehicle struct {
	ID                       string             `json:"id"`
	VehicleType              VehicleType        `json:"vehicleType"`
	Alias                    string             `json:"alias,omitempty"`
	LicencePlate             string             `json:"licencePlate"`
	ImageURL                 string             `json:"imageUrl,omitempty"`
	AvailableLoadInKilograms *float64           `json:"availableLoadInKilograms,omitempty"`
	ParkingPosition          *AddAddressRequest `json:"parkingPosition,omitempty"`
}

type AddVehicleRequest struct {
	Alias                    string             `json:"alias,omitempty"`
	LicencePlate             string             `json:"licencePlate"`
	ImageURL                 string             `json:"imageUrl,omitempty"`
	AvailableLoadInKilograms *float64           `json:"availableLoadInKilograms,omitempty"`
	ParkingPosition          *AddAddressRequest `json:"parkingPosition,omitempty"`
	VehicleType              VehicleType        `json:"vehicleType"`
}

func (r AddVehicleRequest) Validate() error {
	if !r.VehicleType.Valid() {
		return &ValidationError{Field: "vehicleType", Reason: "is required"}
	}
	return required("licencePlate", r.LicencePlate)
}

func (r AddVehicleRequest) ToVehicle(id string) Vehicle {
	return Vehicle{
		ID:                       id,
		VehicleType:              r.VehicleType,
		Alias:                    r.Alias,
		LicencePlate:             r.LicencePlate,
		ImageURL:                 r.ImageURL,
		AvailableLoadInKilograms: r.AvailableLoadInKilograms,
		ParkingPosition:          r.ParkingPosition,
	}
}

// VehiclePatch partial update; nil fields are left unchanged.
type VehiclePatch struct {
	VehicleType              *VehicleType       `json:"vehicleType,omitempty"`
	Alias                    *string            `json:"alias,omitempty"`
	LicencePlate             *string            `json:"licencePlate,omitempty"`
	ImageURL                 *string            `json:"imageUrl,omitempty"`
	AvailableLoadInKilograms *float64           `json:"availableLoadInKilograms,omitempty"`
	ParkingPosition          *AddAddressRequest `json:"parkingPosition,omitempty"`
}

func (p VehiclePatch) Apply(v Vehicle) Vehicle {
	if p.VehicleType != nil {
		v.VehicleType = *p.VehicleType
	}
	if p.Alias != nil {
		v.Alias = *p.Alias
	}
	if p.LicencePlate != nil {
		v.LicencePlate = *p.LicencePlate
	}
	if p.ImageURL != nil {
		v.ImageURL = *p.ImageURL
	}
	if p.AvailableLoadInKilograms != nil {
		load := *p.AvailableLoadInKilograms
		v.AvailableLoadInKilograms = &load
	}
	if p.ParkingPosition != nil {
		v.ParkingPosition = p.ParkingPosition
	}
	return v
}

type GetAllVehiclesResult struct {
	Vehicles []Vehicle `json:"vehicles"`
}

type GetVehicleByIDResult struct {
	Vehicle *Vehicle `json:"vehicle"`
}
