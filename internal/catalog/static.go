// Package catalog answers which services a client can book.
package catalog

import (
	"errors"
	"fmt"
	"strings"
)

// Service is a bookable offering. Title is snapshotted onto each appointment.
type Service struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

const DefaultServices = "1=Depression Therapy;2=Addiction Recovery;3=Anxiety Management;4=Relationship Counseling;5=Trauma Recovery"

// Static is an immutable, ordered catalog.
type Static struct {
	services []Service
	byID     map[string]Service
}

// Parse reads "id=Title;id=Title". An empty string yields the default catalog.
func Parse(raw string) (*Static, error) {
	if strings.TrimSpace(raw) == "" {
		raw = DefaultServices
	}

	s := &Static{byID: make(map[string]Service)}
	for _, entry := range strings.Split(raw, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		id, title, ok := strings.Cut(entry, "=")
		id, title = strings.TrimSpace(id), strings.TrimSpace(title)
		if !ok || id == "" || title == "" {
			return nil, fmt.Errorf("invalid catalog entry %q", entry)
		}
		if _, dup := s.byID[id]; dup {
			return nil, fmt.Errorf("duplicate service id %q", id)
		}
		svc := Service{ID: id, Title: title}
		s.services = append(s.services, svc)
		s.byID[id] = svc
	}

	if len(s.services) == 0 {
		return nil, errors.New("service catalog is empty")
	}
	return s, nil
}

func (s *Static) Lookup(id string) (Service, bool) {
	svc, ok := s.byID[strings.TrimSpace(id)]
	return svc, ok
}

func (s *Static) List() []Service {
	out := make([]Service, len(s.services))
	copy(out, s.services)
	return out
}
