package seed

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/MrSnakeDoc/vpsinv/internal/domain"
)

// Marshal renders servers in the seed file layout, so an export can be
// imported again.
func Marshal(servers []domain.Server) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(FromServers(servers)); err != nil {
		return nil, fmt.Errorf("failed to encode seed yaml: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode seed yaml: %w", err)
	}
	return buf.Bytes(), nil
}
