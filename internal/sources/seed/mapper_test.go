package seed

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/MrSnakeDoc/vpsinv/internal/domain"
)

func TestMapServers(t *testing.T) {
	file := File{Servers: []ServerEntry{
		{
			Name:     "web1",
			Provider: "Hetzner",
			Services: []ServiceEntry{
				{Name: "nginx", Port: "80"},
				{Name: "   "},
				{Name: "sshd", Port: "22", Description: "admin"},
			},
		},
		{Name: "db1"},
	}}

	got, err := NewMapper().MapServers(file)
	if err != nil {
		t.Fatalf("MapServers() error = %v", err)
	}

	want := []domain.InsertServer{
		{
			Name:     "web1",
			Provider: "Hetzner",
			Services: []domain.Service{
				{Name: "nginx", Port: "80"},
				{Name: "sshd", Port: "22", Description: "admin"},
			},
		},
		{Name: "db1", Services: []domain.Service{}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("MapServers() mismatch (-want +got):\n%s", diff)
	}
}

func TestMapServersEmpty(t *testing.T) {
	_, err := NewMapper().MapServers(File{})
	if !errors.Is(err, ErrEmpty) {
		t.Errorf("MapServers() error = %v, want ErrEmpty", err)
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	servers := []domain.Server{
		{
			ID:        "srv-1",
			Name:      "web1",
			IP:        "203.0.113.10",
			Provider:  "Hetzner",
			Notes:     "line one\nline two",
			CreatedAt: time.Now(),
			Version:   3,
			Services: []domain.Service{
				{ID: "a", Name: "nginx", Port: "80,443"},
				{ID: "b", Name: "sshd", Port: "22"},
			},
		},
		{ID: "srv-2", Name: "db1"},
	}

	data, err := Marshal(servers)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	file, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse() of exported yaml error = %v\n%s", err, data)
	}
	got, err := NewMapper().MapServers(file)
	if err != nil {
		t.Fatalf("MapServers() error = %v", err)
	}

	want := []domain.InsertServer{
		{
			Name:     "web1",
			IP:       "203.0.113.10",
			Provider: "Hetzner",
			Notes:    "line one\nline two",
			Services: []domain.Service{
				{Name: "nginx", Port: "80,443"},
				{Name: "sshd", Port: "22"},
			},
		},
		{Name: "db1", Services: []domain.Service{}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}
