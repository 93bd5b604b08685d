package appointment

import (
	"context"
	"fmt"
	"time"
)

// AvailableSlots lists the catalog slots on date not held by any non-cancelled
// appointment. Occupancy is global across services since one practitioner serves
// them all; serviceID is accepted for callers that scope the question by service.
// Past dates and slots that already started today yield nothing.
func (s *Service) AvailableSlots(ctx context.Context, date time.Time, serviceID string) ([]Slot, error) {
	now := s.now().In(s.loc)
	day := dayStart(date, s.loc)
	if day.Before(dayStart(now, s.loc)) {
		return []Slot{}, nil
	}

	occupied, err := s.repo.ListOccupied(ctx, day, day.AddDate(0, 0, 1))
	if err != nil {
		return nil, fmt.Errorf("list occupied instants: %w", err)
	}

	return FreeSlots(s.catalog.SlotsForDate(day), occupied, day, now, s.loc), nil
}

// FreeSlots removes occupied and already-started slots from the day's catalog,
// keeping catalog order.
func FreeSlots(slots []Slot, occupied []time.Time, day, now time.Time, loc *time.Location) []Slot {
	taken := make(map[int64]struct{}, len(occupied))
	for _, at := range occupied {
		taken[at.UnixNano()] = struct{}{}
	}

	free := make([]Slot, 0, len(slots))
	for _, slot := range slots {
		at := slot.On(day, loc)
		if !at.After(now) {
			continue
		}
		if _, ok := taken[at.UnixNano()]; ok {
			continue
		}
		free = append(free, slot)
	}
	return free
}
