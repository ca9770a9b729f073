package appointment

import "klinikcal/internal/model"

// FilterServices returns the active catalog entries the given doctor offers
// for the given appointment type, in catalog order.
func FilterServices(catalog []model.Service, doctorName string, t model.AppointmentType) []model.Service {
	var out []model.Service
	for _, s := range catalog {
		if s.Provider == doctorName && s.ServiceType == t && s.Status == model.ServiceStatusActive {
			out = append(out, s)
		}
	}
	return out
}
