package scheduling

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
)

// AvailabilityEngine computes, for one calendar date, which windows still
// have at least one free doctor. Its view is advisory: by the time a booking
// commits, the slot may be gone, and the coordinator re-validates.
type AvailabilityEngine struct {
	repo Repository
}

func NewAvailabilityEngine(repo Repository) *AvailabilityEngine {
	return &AvailabilityEngine{repo: repo}
}

// AvailableWindows subtracts the day's active appointments from every
// doctor's published windows and groups the survivors by window. Both data
// sets are fetched once up front; the merge is a single pass over
// doctors x windows with O(1) booked-set lookups. Windows with no free
// doctor are omitted.
func (e *AvailabilityEngine) AvailableWindows(ctx context.Context, dateStr string) ([]WindowAvailability, error) {
	date, err := ParseDate(dateStr)
	if err != nil {
		return nil, err
	}

	published, err := e.repo.ListAllAvailability(ctx)
	if err != nil {
		return nil, fmt.Errorf("load published availability: %w", err)
	}

	booked, err := e.repo.ListActiveForDate(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("load appointments for date: %w", err)
	}

	bookedSet := make(map[string]struct{}, len(booked))
	for _, a := range booked {
		bookedSet[bookedKey(a.DoctorID, a.Window)] = struct{}{}
	}

	grouped := make(map[string]*WindowAvailability)
	for _, av := range published {
		if av.Doctor == nil {
			continue
		}
		for _, w := range av.Windows {
			if _, taken := bookedSet[bookedKey(av.DoctorID, w)]; taken {
				continue
			}
			slot, ok := grouped[w.Key()]
			if !ok {
				slot = &WindowAvailability{Window: w}
				grouped[w.Key()] = slot
			}
			slot.Doctors = append(slot.Doctors, *av.Doctor)
		}
	}

	result := make([]WindowAvailability, 0, len(grouped))
	for _, slot := range grouped {
		result = append(result, *slot)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Window.StartTime != result[j].Window.StartTime {
			return result[i].Window.StartTime < result[j].Window.StartTime
		}
		return result[i].Window.EndTime < result[j].Window.EndTime
	})

	return result, nil
}

// FreeDoctorsForWindow is the single-window variant the coordinator uses:
// doctors who published the window minus doctors already holding an active
// appointment in it on the date.
func (e *AvailabilityEngine) FreeDoctorsForWindow(ctx context.Context, date string, window TimeWindow) (published, free []UserRef, err error) {
	day, err := ParseDate(date)
	if err != nil {
		return nil, nil, err
	}

	published, err = e.repo.ListDoctorsWithWindow(ctx, window)
	if err != nil {
		return nil, nil, fmt.Errorf("list doctors with window: %w", err)
	}
	if len(published) == 0 {
		return nil, nil, nil
	}

	bookedIDs, err := e.repo.ListBookedDoctors(ctx, day, window)
	if err != nil {
		return nil, nil, fmt.Errorf("list booked doctors: %w", err)
	}

	bookedSet := make(map[uuid.UUID]struct{}, len(bookedIDs))
	for _, id := range bookedIDs {
		bookedSet[id] = struct{}{}
	}

	for _, d := range published {
		if _, taken := bookedSet[d.ID]; !taken {
			free = append(free, d)
		}
	}
	return published, free, nil
}

func bookedKey(doctorID uuid.UUID, w TimeWindow) string {
	return doctorID.String() + "_" + w.Key()
}
