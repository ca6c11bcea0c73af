// Package mapper converts between domain servers and the flat string
// attributes the document store persists.
package mapper

import (
	"encoding/json"

	"github.com/MrSnakeDoc/vpsinv/internal/docstore"
	"github.com/MrSnakeDoc/vpsinv/internal/domain"
)

// Attribute names of a server document.
const (
	AttrName     = "name"
	AttrIP       = "ip"
	AttrOS       = "os"
	AttrProvider = "provider"
	AttrLocation = "location"
	AttrNotes    = "notes"
	AttrServices = "services"
	AttrUserID   = "userId"
)

// ToAttributes flattens in for storage under userID. Every attribute is
// written, empty optional values included.
func ToAttributes(userID string, in domain.InsertServer) (map[string]string, error) {
	services, err := EncodeServices(in.Services)
	if err != nil {
		return nil, err
	}
	return map[string]string{
		AttrName:     in.Name,
		AttrIP:       in.IP,
		AttrOS:       in.OS,
		AttrProvider: in.Provider,
		AttrLocation: in.Location,
		AttrNotes:    in.Notes,
		AttrServices: services,
		AttrUserID:   userID,
	}, nil
}

// FromDocument rebuilds a server from its stored document. A services blob
// that cannot be decoded yields no services rather than an error.
func FromDocument(doc docstore.Document) domain.Server {
	return domain.Server{
		ID:        doc.ID,
		Name:      doc.Attr(AttrName),
		IP:        doc.Attr(AttrIP),
		OS:        doc.Attr(AttrOS),
		Provider:  doc.Attr(AttrProvider),
		Location:  doc.Attr(AttrLocation),
		Notes:     doc.Attr(AttrNotes),
		Services:  DecodeServices(doc.Attr(AttrServices)),
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
		Version:   doc.Version,
	}
}

// OwnerOf returns the user a server document belongs to.
func OwnerOf(doc docstore.Document) string {
	return doc.Attr(AttrUserID)
}

// EncodeServices renders services as a JSON array; nil encodes as "[]".
func EncodeServices(services []domain.Service) (string, error) {
	if services == nil {
		services = []domain.Service{}
	}
	b, err := json.Marshal(services)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// DecodeServices parses a services blob. Empty or malformed input gives an
// empty, non-nil list.
func DecodeServices(blob string) []domain.Service {
	services := []domain.Service{}
	if blob == "" {
		return services
	}
	if err := json.Unmarshal([]byte(blob), &services); err != nil || services == nil {
		return []domain.Service{}
	}
	return services
}
