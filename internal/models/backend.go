package models

// Availability is a backend's operator-published service state.
type Availability string

const (
	AvailabilityAvailable   Availability = "available"
	AvailabilityMaintenance Availability = "maintenance"
	AvailabilityUnavailable Availability = "unavailable"
)

// ServiceStatus is one backend's availability entry for one role, as
// published in the backend-status parameter.
type ServiceStatus struct {
	Availability Availability `json:"availability"`
	Description  string       `json:"description"`
}

// Available reports whether the backend accepts submissions.
func (s ServiceStatus) Available() bool {
	return s.Availability == AvailabilityAvailable
}
