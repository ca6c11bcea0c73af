package domain

import (
	"strings"
	"time"
)

// Service is a process or application running on a Server.
//
// Services are embedded in their Server: they have no lifecycle of their own
// and are replaced as a whole whenever the Server is updated.
type Service struct {
	// ID is generated by the application when the service is first saved
	// and never changes afterwards.
	ID string `json:"id"`

	// Name is the only required field.
	Name string `json:"name"`

	// Port is free text. It may hold several ports ("80,443") and is never
	// validated as a number.
	Port string `json:"port"`

	Description string `json:"description"`
}

// Server is the canonical in-memory shape of one inventory entry.
//
// The owning user is deliberately absent: ownership is a storage concern
// used to scope queries, not part of what a Server is.
type Server struct {
	// ─────────────────────────────
	// Identity (immutable)
	// ─────────────────────────────

	// ID is assigned by the document store on creation.
	ID string `json:"id"`

	// ─────────────────────────────
	// Description (replaced on update)
	// ─────────────────────────────

	Name     string `json:"name"`
	IP       string `json:"ip"`
	OS       string `json:"os"`
	Provider string `json:"provider"`
	Location string `json:"location"`
	Notes    string `json:"notes"`

	// Services keeps insertion order, which is the display order.
	Services []Service `json:"services"`

	// ─────────────────────────────
	// Store-assigned bookkeeping
	// ─────────────────────────────

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	// Version starts at 1 and is incremented by every update.
	// Clients echo it back to make updates conditional.
	Version int64 `json:"version"`
}

// InsertServer is the client-supplied payload for create and update.
type InsertServer struct {
	Name     string    `json:"name" yaml:"name"`
	IP       string    `json:"ip,omitempty" yaml:"ip,omitempty"`
	OS       string    `json:"os,omitempty" yaml:"os,omitempty"`
	Provider string    `json:"provider,omitempty" yaml:"provider,omitempty"`
	Location string    `json:"location,omitempty" yaml:"location,omitempty"`
	Notes    string    `json:"notes,omitempty" yaml:"notes,omitempty"`
	Services []Service `json:"services,omitempty" yaml:"services,omitempty"`

	// Version, when > 0, makes an update conditional on the stored version.
	// It is ignored by create.
	Version int64 `json:"version,omitempty" yaml:"-"`
}

// ServiceCount returns the number of embedded services.
func (s Server) ServiceCount() int {
	return len(s.Services)
}

// Insert returns the mutable part of s, suitable for an update that keeps
// every field as it is.
func (s Server) Insert() InsertServer {
	services := make([]Service, len(s.Services))
	copy(services, s.Services)
	return InsertServer{
		Name:     s.Name,
		IP:       s.IP,
		OS:       s.OS,
		Provider: s.Provider,
		Location: s.Location,
		Notes:    s.Notes,
		Services: services,
		Version:  s.Version,
	}
}

// Clone returns a deep copy of s so callers can hand it out without sharing
// the services slice.
func (s Server) Clone() Server {
	out := s
	if s.Services != nil {
		out.Services = make([]Service, len(s.Services))
		copy(out.Services, s.Services)
	}
	return out
}

// WithoutBlankServices returns a copy of in where service rows whose trimmed
// name is empty are dropped. Edit forms submit such rows when a user adds a
// line and leaves it empty.
func (in InsertServer) WithoutBlankServices() InsertServer {
	out := in
	out.Services = make([]Service, 0, len(in.Services))
	for _, svc := range in.Services {
		if strings.TrimSpace(svc.Name) == "" {
			continue
		}
		out.Services = append(out.Services, svc)
	}
	return out
}
