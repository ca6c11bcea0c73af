package seed

import (
	"errors"

	"github.com/MrSnakeDoc/vpsinv/internal/domain"
)

// ErrEmpty is returned for a seed file without servers.
var ErrEmpty = errors.New("no servers found in seed file")

// Mapper converts seed entries to server payloads
type Mapper struct{}

// NewMapper creates a new seed mapper
func NewMapper() *Mapper {
	return &Mapper{}
}

// MapServers converts a seed file to insert payloads. Service rows with a
// blank name are dropped. Validation is left to the repository.
func (m *Mapper) MapServers(file File) ([]domain.InsertServer, error) {
	if len(file.Servers) == 0 {
		return nil, ErrEmpty
	}

	out := make([]domain.InsertServer, 0, len(file.Servers))
	for _, entry := range file.Servers {
		services := make([]domain.Service, 0, len(entry.Services))
		for _, svc := range entry.Services {
			services = append(services, domain.Service{
				Name:        svc.Name,
				Port:        string(svc.Port),
				Description: svc.Description,
			})
		}

		in := domain.InsertServer{
			Name:     entry.Name,
			IP:       entry.IP,
			OS:       entry.OS,
			Provider: entry.Provider,
			Location: entry.Location,
			Notes:    entry.Notes,
			Services: services,
		}
		out = append(out, in.WithoutBlankServices())
	}
	return out, nil
}

// FromServers builds a seed file from stored servers. Service ids are not
// exported.
func FromServers(servers []domain.Server) File {
	file := File{Servers: make([]ServerEntry, 0, len(servers))}
	for _, s := range servers {
		entry := ServerEntry{
			Name:     s.Name,
			IP:       s.IP,
			OS:       s.OS,
			Provider: s.Provider,
			Location: s.Location,
			Notes:    s.Notes,
		}
		for _, svc := range s.Services {
			entry.Services = append(entry.Services, ServiceEntry{
				Name:        svc.Name,
				Port:        Port(svc.Port),
				Description: svc.Description,
			})
		}
		file.Servers = append(file.Servers, entry)
	}
	return file
}
