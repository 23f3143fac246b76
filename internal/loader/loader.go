// Package loader builds the immutable ProblemInstance every later stage
// reads, fetching five data sets in parallel and generating the procedural
// time-slot grid (spec §4.1). Grounded on the source's
// utils/django_client.DjangoAPIClient: same five-way parallel fetch
// (courses/faculty/rooms/students/time slots), same >60-student section
// split with cycled co-faculty, same invalid-faculty drop policy.
package loader

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/logixfirst/timetable-engine/internal/model"
	"github.com/logixfirst/timetable-engine/internal/repository"
	appErrors "github.com/logixfirst/timetable-engine/pkg/errors"
)

// maxSectionSize is the enrolled-student threshold above which an offering
// is split into parallel sections (spec §4.1).
const maxSectionSize = 60

// TimeConfig is the external generation request's time_config payload
// (spec §6), used to procedurally generate the TimeSlot set when the
// primary store has no timetable_configurations row. A stored row, when
// present, replaces the payload; the two are not compared.
type TimeConfig struct {
	WorkingDays         int
	SlotsPerDay         int
	StartTime           string
	EndTime             string
	SlotDurationMinutes int
	LunchBreakEnabled   bool
	LunchBreakStart     string
	LunchBreakEnd       string
}

// Loader fetches and assembles one ProblemInstance.
type Loader struct {
	data *repository.DataRepository
	log  *zap.Logger
}

// New constructs a Loader over the shared data repository.
func New(data *repository.DataRepository, log *zap.Logger) *Loader {
	return &Loader{data: data, log: log}
}

// Load fetches courses, faculty, rooms, students, and time configuration in
// parallel, then assembles the immutable ProblemInstance.
func (l *Loader) Load(ctx context.Context, orgID string, semester int, cfg TimeConfig) (*model.ProblemInstance, error) {
	var courseRows []rawCourse
	var facultyByID map[string]model.Faculty
	var rooms []model.Room
	var students []model.Student

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		rows, err := l.data.FetchCourses(gctx, orgID, semester)
		if err != nil {
			return err
		}
		courseRows = make([]rawCourse, 0, len(rows))
		for _, r := range rows {
			courseRows = append(courseRows, rawCourse{
				CourseID:         r.CourseID,
				OfferingID:       r.OfferingID,
				Code:             r.Code,
				Name:             r.Name,
				DepartmentID:     r.DepartmentID,
				FacultyID:        r.FacultyID.String,
				FacultyValid:     r.FacultyID.Valid,
				CoFacultyIDs:     []string(r.CoFacultyIDs),
				Credits:          r.Credits,
				Duration:         r.Duration,
				RoomTypeRequired: r.RoomTypeRequired,
				RequiredFeatures: []string(r.RequiredFeatures),
				StudentIDs:       []string(r.StudentIDs),
			})
		}
		return nil
	})
	g.Go(func() error {
		rows, err := l.data.FetchFaculty(gctx, orgID)
		if err != nil {
			return err
		}
		facultyByID = make(map[string]model.Faculty, len(rows))
		for _, r := range rows {
			maxHours := 18
			if r.MaxHoursPerWeek.Valid {
				maxHours = int(r.MaxHoursPerWeek.Int64)
			}
			facultyByID[r.ID] = model.Faculty{
				ID:              r.ID,
				Code:            r.Code,
				Name:            r.Name,
				DepartmentID:    r.DepartmentID,
				MaxHoursPerWeek: maxHours,
				Specialization:  r.Specialization.String,
			}
		}
		return nil
	})
	g.Go(func() error {
		rows, err := l.data.FetchRooms(gctx, orgID)
		if err != nil {
			return err
		}
		rooms = make([]model.Room, 0, len(rows))
		for _, r := range rows {
			rooms = append(rooms, model.Room{
				ID:                        r.ID,
				Code:                      r.Code,
				Name:                      r.Name,
				RoomType:                  r.RoomType,
				Capacity:                  r.Capacity,
				Features:                  []string(r.Features),
				DepartmentID:              r.DepartmentID.String,
				AllowCrossDepartmentUsage: r.AllowCrossDepartmentUsage,
			})
		}
		return nil
	})
	g.Go(func() error {
		rows, err := l.data.FetchStudents(gctx, orgID)
		if err != nil {
			return err
		}
		students = make([]model.Student, 0, len(rows))
		for _, r := range rows {
			students = append(students, model.Student{
				ID:               r.ID,
				EnrollmentNumber: r.EnrollmentNumber,
				DepartmentID:     r.DepartmentID,
				Semester:         r.Semester,
			})
		}
		return nil
	})
	g.Go(func() error {
		row, err := l.data.FetchTimeConfig(gctx, orgID, semester)
		if err != nil {
			// Absence of a stored config is not fatal: fall back to the
			// request's own TimeConfig payload.
			if l.log != nil {
				l.log.Debug("no stored time config, using request payload", zap.Error(err))
			}
			return nil
		}
		cfg = TimeConfig{
			WorkingDays:         row.WorkingDays,
			SlotsPerDay:         row.SlotsPerDay,
			StartTime:           row.StartTime,
			EndTime:             row.EndTime,
			SlotDurationMinutes: row.SlotDurationMinutes,
			LunchBreakEnabled:   row.LunchBreakEnabled,
			LunchBreakStart:     row.LunchBreakStart.String,
			LunchBreakEnd:       row.LunchBreakEnd.String,
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrDataLoad.Code, appErrors.ErrDataLoad.Status, appErrors.ErrDataLoad.Message)
	}

	courses, enrolled, dropped := buildCourses(courseRows, facultyByID)
	if l.log != nil {
		l.log.Info("course load complete",
			zap.Int("courses", len(courses)),
			zap.Int("enrolled_total", enrolled),
			zap.Int("dropped_invalid_faculty", dropped))
	}

	timeSlots := GenerateTimeSlots(cfg)

	index := make(map[string]map[string]struct{}, len(courses))
	for _, c := range courses {
		set := make(map[string]struct{}, len(c.StudentIDs))
		for _, sid := range c.StudentIDs {
			set[sid] = struct{}{}
		}
		index[c.ID] = set
	}

	return &model.ProblemInstance{
		OrgID:              orgID,
		Semester:           semester,
		Courses:            courses,
		FacultyByID:        facultyByID,
		Rooms:              rooms,
		TimeSlots:          timeSlots,
		Students:           students,
		StudentCourseIndex: index,
	}, nil
}

// clockLayout is the wall-clock format time_config fields are stored and
// rendered in ("HH:MM", with an optional ":SS" the original also tolerates).
const clockLayout = "15:04"

// GenerateTimeSlots builds the uniform day-major, period-minor slot grid
// shared by every tenant (spec §4.1), identifiers "0".."N-1". Each slot
// carries its real start_time/end_time, walked forward from cfg.StartTime
// in cfg.SlotDurationMinutes steps and reset at the top of every day,
// ported from utils/django_client.py's per-day current_time loop. A slot
// is marked IsLunch when its interval overlaps [lunch_break_start,
// lunch_break_end); unlike the original, it stays in the grid rather than
// being omitted, so every day keeps the same SlotsPerDay length and
// candidate-domain code (internal/cpsat/domain.go) filters it out instead.
func GenerateTimeSlots(cfg TimeConfig) []model.TimeSlot {
	if cfg.WorkingDays <= 0 {
		cfg.WorkingDays = 5
	}
	if cfg.SlotsPerDay <= 0 {
		cfg.SlotsPerDay = 8
	}
	dayStart := parseClockMinutes(cfg.StartTime, 8*60)
	duration := cfg.SlotDurationMinutes
	if duration <= 0 {
		duration = 60
	}
	lunchStart := parseClockMinutes(cfg.LunchBreakStart, 12*60)
	lunchEnd := parseClockMinutes(cfg.LunchBreakEnd, 13*60)

	slots := make([]model.TimeSlot, 0, cfg.WorkingDays*cfg.SlotsPerDay)
	id := 0
	for day := 0; day < cfg.WorkingDays; day++ {
		current := dayStart
		for period := 0; period < cfg.SlotsPerDay; period++ {
			slotEnd := current + duration
			isLunch := cfg.LunchBreakEnabled && current < lunchEnd && slotEnd > lunchStart
			slots = append(slots, model.TimeSlot{
				ID:        fmt.Sprintf("%d", id),
				DayOfWeek: day,
				Period:    period,
				StartTime: formatClockMinutes(current),
				EndTime:   formatClockMinutes(slotEnd),
				IsLunch:   isLunch,
			})
			current = slotEnd
			id++
		}
	}
	return slots
}

// parseClockMinutes parses an "HH:MM" or "HH:MM:SS" wall-clock string into
// minutes since midnight, falling back to fallback when raw is empty or
// unparsable.
func parseClockMinutes(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	if parts := strings.Split(raw, ":"); len(parts) > 2 {
		raw = strings.Join(parts[:2], ":")
	}
	t, err := time.Parse(clockLayout, raw)
	if err != nil {
		return fallback
	}
	return t.Hour()*60 + t.Minute()
}

// formatClockMinutes renders minutes since midnight back to "HH:MM".
func formatClockMinutes(minutes int) string {
	minutes = ((minutes % 1440) + 1440) % 1440
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}
