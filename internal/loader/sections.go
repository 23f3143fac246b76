package loader

import (
	"fmt"

	"github.com/logixfirst/timetable-engine/internal/model"
)

// rawCourse is the loader's package-local view of one fetched course row,
// independent of the repository package's unexported row type.
type rawCourse struct {
	CourseID         string
	OfferingID       string
	Code             string
	Name             string
	DepartmentID     string
	FacultyID        string
	FacultyValid     bool
	CoFacultyIDs     []string
	Credits          int
	Duration         int
	RoomTypeRequired string
	RequiredFeatures []string
	StudentIDs       []string
}

// isValidFacultyID reports whether id looks like a populated, non-zero
// identifier (spec §4.1's validation: null, empty, zero-UUID are dropped).
func isValidFacultyID(id string) bool {
	if id == "" {
		return false
	}
	if id == "00000000-0000-0000-0000-000000000000" {
		return false
	}
	return true
}

// buildCourses applies course-section splitting (>60 enrolled students)
// and invalid-faculty dropping (spec §4.1), returning the final course
// list plus total-enrolled and dropped-invalid-faculty counts for logging.
func buildCourses(rows []rawCourse, facultyByID map[string]model.Faculty) (courses []model.Course, totalEnrolled, droppedInvalidFaculty int) {
	for _, row := range rows {
		totalEnrolled += len(row.StudentIDs)

		if !row.FacultyValid || !isValidFacultyID(row.FacultyID) {
			droppedInvalidFaculty++
			continue
		}
		if _, ok := facultyByID[row.FacultyID]; !ok {
			droppedInvalidFaculty++
			continue
		}

		if len(row.StudentIDs) <= maxSectionSize {
			courses = append(courses, model.Course{
				ID:               row.CourseID,
				Code:             row.Code,
				Name:             row.Name,
				DepartmentID:     row.DepartmentID,
				FacultyID:        row.FacultyID,
				Credits:          row.Credits,
				Duration:         maxInt(row.Duration, 1),
				RoomTypeRequired: row.RoomTypeRequired,
				RequiredFeatures: row.RequiredFeatures,
				StudentIDs:       row.StudentIDs,
				EnrolledCount:    len(row.StudentIDs),
			})
			continue
		}

		// Parallel sections: split by student count only, cycling faculty
		// across primary + co-faculty so the same faculty can teach
		// multiple sections when co-faculty is scarce (spec §4.1, §8
		// scenario 3).
		availableFaculty := append([]string{row.FacultyID}, row.CoFacultyIDs...)
		numSections := (len(row.StudentIDs) + maxSectionSize - 1) / maxSectionSize
		studentsPerSection := len(row.StudentIDs) / numSections
		remainder := len(row.StudentIDs) % numSections

		start := 0
		for sec := 0; sec < numSections; sec++ {
			size := studentsPerSection
			if sec < remainder {
				size++
			}
			sectionStudents := row.StudentIDs[start : start+size]
			start += size

			sectionFaculty := availableFaculty[sec%len(availableFaculty)]
			if !isValidFacultyID(sectionFaculty) {
				continue
			}

			courses = append(courses, model.Course{
				ID:               fmt.Sprintf("%s_off_%s_sec%d", row.CourseID, row.OfferingID, sec),
				Code:             row.Code,
				Name:             fmt.Sprintf("%s (Sec %d/%d)", row.Name, sec+1, numSections),
				DepartmentID:     row.DepartmentID,
				FacultyID:        sectionFaculty,
				Credits:          row.Credits,
				Duration:         maxInt(row.Duration, 1),
				RoomTypeRequired: row.RoomTypeRequired,
				RequiredFeatures: row.RequiredFeatures,
				StudentIDs:       sectionStudents,
				EnrolledCount:    len(sectionStudents),
			})
		}
	}
	return courses, totalEnrolled, droppedInvalidFaculty
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
