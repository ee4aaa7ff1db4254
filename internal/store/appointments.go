package store

import (
	"sync"

	"github.com/shifalink/portal-client/internal/api"
)

// Appointments keeps the appointment list. Push events only patch entries
// already known by id; partial push payloads never fabricate list entries.
// The authoritative shape comes from a REST fetch.
type Appointments struct {
	mu    sync.RWMutex
	items []api.Appointment
}

func NewAppointments() *Appointments {
	return &Appointments{}
}

// Set replaces the collection with the REST baseline.
func (s *Appointments) Set(items []api.Appointment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append([]api.Appointment(nil), items...)
}

// Upsert inserts or replaces an appointment from an authoritative REST shape.
func (s *Appointments) Upsert(appt api.Appointment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.items {
		if s.items[i].ID == appt.ID {
			s.items[i] = appt
			return
		}
	}
	s.items = append(s.items, appt)
}

// PatchStatus updates the status of a known appointment. Unknown ids report
// false so the caller can fall back to a targeted refetch.
func (s *Appointments) PatchStatus(id int64, status api.AppointmentStatus) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.items {
		if s.items[i].ID == id {
			s.items[i].Status = status
			return true
		}
	}
	return false
}

// Get returns an appointment by id.
func (s *Appointments) Get(id int64) (api.Appointment, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.items {
		if a.ID == id {
			return a, true
		}
	}
	return api.Appointment{}, false
}

// List returns a copy of the collection.
func (s *Appointments) List() []api.Appointment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]api.Appointment(nil), s.items...)
}

// Clear empties the store on logout.
func (s *Appointments) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = nil
}
