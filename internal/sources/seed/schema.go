package seed

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// File is the root structure of a seed file:
//
//	servers:
//	  - name: web1
//	    ip: 203.0.113.10
//	    provider: Hetzner
//	    services:
//	      - name: nginx
//	        port: "80,443"
type File struct {
	Servers []ServerEntry `yaml:"servers"`
}

// ServerEntry is one server of a seed file.
type ServerEntry struct {
	Name     string         `yaml:"name"`
	IP       string         `yaml:"ip,omitempty"`
	OS       string         `yaml:"os,omitempty"`
	Provider string         `yaml:"provider,omitempty"`
	Location string         `yaml:"location,omitempty"`
	Notes    string         `yaml:"notes,omitempty"`
	Services []ServiceEntry `yaml:"services,omitempty"`
}

// ServiceEntry is one service of a server entry.
type ServiceEntry struct {
	Name        string `yaml:"name"`
	Port        Port   `yaml:"port,omitempty"`
	Description string `yaml:"description,omitempty"`
}

// Port accepts any YAML scalar, so both `port: 22` and `port: "80,443"` load.
type Port string

func (p *Port) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: port must be a scalar", value.Line)
	}
	*p = Port(value.Value)
	return nil
}
