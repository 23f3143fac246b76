package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// courseRow mirrors one row of the courses/course_offerings/course_enrollments
// join the loader reads (spec §5, §6). StudentIDs is a Postgres text[]
// aggregated by the query; CoFacultyIDs likewise.
type courseRow struct {
	CourseID         string         `db:"course_id"`
	OfferingID       string         `db:"offering_id"`
	Code             string         `db:"course_code"`
	Name             string         `db:"course_name"`
	DepartmentID     string         `db:"department_id"`
	FacultyID        sql.NullString `db:"faculty_id"`
	CoFacultyIDs     pq.StringArray `db:"co_faculty_ids"`
	Credits          int            `db:"credits"`
	Duration         int            `db:"duration"`
	RoomTypeRequired string         `db:"room_type_required"`
	RequiredFeatures pq.StringArray `db:"required_features"`
	StudentIDs       pq.StringArray `db:"student_ids"`
}

// FacultyRow mirrors one faculty row.
type facultyRow struct {
	ID              string         `db:"id"`
	Code            string         `db:"code"`
	Name            string         `db:"name"`
	DepartmentID    string         `db:"department_id"`
	MaxHoursPerWeek sql.NullInt64  `db:"max_hours_per_week"`
	Specialization  sql.NullString `db:"specialization"`
}

// roomRow mirrors one room row.
type roomRow struct {
	ID                        string         `db:"id"`
	Code                      string         `db:"code"`
	Name                      string         `db:"name"`
	RoomType                  string         `db:"room_type"`
	Capacity                  int            `db:"capacity"`
	Features                  pq.StringArray `db:"features"`
	DepartmentID              sql.NullString `db:"department_id"`
	AllowCrossDepartmentUsage bool           `db:"allow_cross_department_usage"`
}

// studentRow mirrors one student row.
type studentRow struct {
	ID               string `db:"id"`
	EnrollmentNumber string `db:"enrollment_number"`
	DepartmentID     string `db:"department_id"`
	Semester         int    `db:"semester"`
}

// timeConfigRow mirrors one timetable_configurations row for an org/semester.
type timeConfigRow struct {
	WorkingDays         int            `db:"working_days"`
	SlotsPerDay         int            `db:"slots_per_day"`
	StartTime           string         `db:"start_time"`
	EndTime             string         `db:"end_time"`
	SlotDurationMinutes int            `db:"slot_duration_minutes"`
	LunchBreakEnabled   bool           `db:"lunch_break_enabled"`
	LunchBreakStart     sql.NullString `db:"lunch_break_start"`
	LunchBreakEnd       sql.NullString `db:"lunch_break_end"`
}

// DataRepository reads the five data sets the loader fans out over in
// parallel (spec §4.1): courses (with per-offering enrolled students),
// faculty, rooms, students, and time-slot configuration.
type DataRepository struct {
	db *sqlx.DB
}

// NewDataRepository constructs a data repository over the shared pool.
func NewDataRepository(db *sqlx.DB) *DataRepository {
	return &DataRepository{db: db}
}

func (r *DataRepository) FetchCourses(ctx context.Context, orgID string, semester int) ([]courseRow, error) {
	const q = `
		SELECT
			c.id AS course_id,
			co.id AS offering_id,
			c.code AS course_code,
			c.name AS course_name,
			c.department_id AS department_id,
			co.faculty_id AS faculty_id,
			COALESCE(co.co_faculty_ids, '{}') AS co_faculty_ids,
			c.credits AS credits,
			c.sessions_per_week AS duration,
			COALESCE(c.room_type_required, '') AS room_type_required,
			COALESCE(c.required_features, '{}') AS required_features,
			COALESCE(array_agg(ce.student_id) FILTER (WHERE ce.student_id IS NOT NULL), '{}') AS student_ids
		FROM courses c
		JOIN course_offerings co ON co.course_id = c.id
		LEFT JOIN course_enrollments ce ON ce.offering_id = co.id
		WHERE c.organization_id = $1 AND co.semester = $2
		GROUP BY c.id, co.id`

	var rows []courseRow
	if err := r.db.SelectContext(ctx, &rows, q, orgID, semester); err != nil {
		return nil, fmt.Errorf("fetch courses: %w", err)
	}
	return rows, nil
}

func (r *DataRepository) FetchFaculty(ctx context.Context, orgID string) ([]facultyRow, error) {
	const q = `
		SELECT id, code, name, department_id, max_hours_per_week, specialization
		FROM faculty WHERE organization_id = $1`

	var rows []facultyRow
	if err := r.db.SelectContext(ctx, &rows, q, orgID); err != nil {
		return nil, fmt.Errorf("fetch faculty: %w", err)
	}
	return rows, nil
}

func (r *DataRepository) FetchRooms(ctx context.Context, orgID string) ([]roomRow, error) {
	const q = `
		SELECT id, code, name, room_type, capacity,
		       COALESCE(features, '{}') AS features,
		       department_id, allow_cross_department_usage
		FROM rooms WHERE organization_id = $1`

	var rows []roomRow
	if err := r.db.SelectContext(ctx, &rows, q, orgID); err != nil {
		return nil, fmt.Errorf("fetch rooms: %w", err)
	}
	return rows, nil
}

func (r *DataRepository) FetchStudents(ctx context.Context, orgID string) ([]studentRow, error) {
	const q = `
		SELECT id, enrollment_number, department_id, semester
		FROM students WHERE organization_id = $1`

	var rows []studentRow
	if err := r.db.SelectContext(ctx, &rows, q, orgID); err != nil {
		return nil, fmt.Errorf("fetch students: %w", err)
	}
	return rows, nil
}

func (r *DataRepository) FetchTimeConfig(ctx context.Context, orgID string, semester int) (*timeConfigRow, error) {
	const q = `
		SELECT working_days, slots_per_day, start_time, end_time,
		       slot_duration_minutes, lunch_break_enabled,
		       lunch_break_start, lunch_break_end
		FROM timetable_configurations
		WHERE organization_id = $1 AND semester = $2`

	var row timeConfigRow
	if err := r.db.GetContext(ctx, &row, q, orgID, semester); err != nil {
		return nil, fmt.Errorf("fetch time config: %w", err)
	}
	return &row, nil
}
