package scheduling

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// SlotService manages each doctor's published recurring windows. Published
// windows are advisory; conflict prevention happens at booking time against
// appointment rows, so no overlap checking is done here.
type SlotService struct {
	repo Repository
}

func NewSlotService(repo Repository) *SlotService {
	return &SlotService{repo: repo}
}

// Publish replaces the doctor's entire published window set. Repeating the
// same call is a no-op in effect. The window list is a set: repeated
// windows collapse to one, first occurrence wins, so a sloppy payload
// never trips the published_windows primary key.
func (s *SlotService) Publish(ctx context.Context, doctorID uuid.UUID, windows []TimeWindow) (*PublishedAvailability, error) {
	if len(windows) == 0 {
		return nil, fmt.Errorf("%w: at least one slot is required", ErrInvalidWindow)
	}

	seen := make(map[string]struct{}, len(windows))
	unique := make([]TimeWindow, 0, len(windows))
	for _, w := range windows {
		if err := w.Validate(); err != nil {
			return nil, err
		}
		if _, dup := seen[w.Key()]; dup {
			continue
		}
		seen[w.Key()] = struct{}{}
		unique = append(unique, w)
	}

	if _, err := s.repo.GetDoctorByID(ctx, doctorID); err != nil {
		return nil, err
	}

	if err := s.repo.ReplaceWindows(ctx, doctorID, unique); err != nil {
		return nil, fmt.Errorf("replace windows: %w", err)
	}

	return &PublishedAvailability{DoctorID: doctorID, Windows: unique}, nil
}

func (s *SlotService) GetByDoctor(ctx context.Context, doctorID uuid.UUID) (*PublishedAvailability, error) {
	return s.repo.GetWindowsByDoctor(ctx, doctorID)
}

// GridTemplate generates the selectable 30-minute windows between dayStart
// and dayEnd, with a 30-minute break after each. This is the fixed grid all
// published windows come from, which is what makes exact-key window
// matching sound.
func GridTemplate(dayStart, dayEnd string) ([]TimeWindow, error) {
	start := TimeWindow{StartTime: dayStart, EndTime: dayEnd}
	if err := start.Validate(); err != nil {
		return nil, err
	}

	startMin := toMinutes(dayStart)
	endMin := toMinutes(dayEnd)

	var grid []TimeWindow
	for cur := startMin; cur+30 <= endMin; cur += 60 {
		grid = append(grid, TimeWindow{
			StartTime: toClock(cur),
			EndTime:   toClock(cur + 30),
		})
	}
	return grid, nil
}

func toMinutes(hhmm string) int {
	h := int(hhmm[0]-'0')*10 + int(hhmm[1]-'0')
	m := int(hhmm[3]-'0')*10 + int(hhmm[4]-'0')
	return h*60 + m
}

func toClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}
