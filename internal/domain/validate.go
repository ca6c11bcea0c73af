package domain

import (
	"fmt"
	"strings"
)

const (
	MsgNameRequired        = "Name is required"
	MsgServiceNameRequired = "Service name is required"
)

// Validate checks a create/update payload.
//
// It is pure: no I/O, no normalization of the payload. The returned error is
// either nil or a *ValidationError listing every rejected field.
func (in InsertServer) Validate() error {
	verr := &ValidationError{}

	if strings.TrimSpace(in.Name) == "" {
		verr.Add("name", MsgNameRequired)
	}

	for i, svc := range in.Services {
		if strings.TrimSpace(svc.Name) == "" {
			verr.Add(fmt.Sprintf("services[%d].name", i), MsgServiceNameRequired)
		}
	}

	return verr.OrNil()
}
