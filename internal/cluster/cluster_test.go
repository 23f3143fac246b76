package cluster

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/logixfirst/timetable-engine/internal/hardware"
	"github.com/logixfirst/timetable-engine/internal/model"
)

func makeCourse(id, faculty, dept string, students []string) model.Course {
	return model.Course{ID: id, FacultyID: faculty, DepartmentID: dept, StudentIDs: students, Credits: 3, Duration: 1}
}

func TestConstraintWeight_SharedFacultyIsDominant(t *testing.T) {
	a := makeCourse("c1", "f1", "d1", []string{"s1"})
	b := makeCourse("c2", "f1", "d2", nil)
	w := constraintWeight(a, b, setOf(a.StudentIDs), setOf(b.StudentIDs), setOf(nil), setOf(nil))
	assert.Equal(t, 10.0, w)
}

func TestConstraintWeight_AccumulatesNonFacultyFactors(t *testing.T) {
	a := makeCourse("c1", "f1", "dept", []string{"s1", "s2"})
	b := makeCourse("c2", "f2", "dept", []string{"s1", "s2"})
	w := constraintWeight(a, b, setOf(a.StudentIDs), setOf(b.StudentIDs), setOf(nil), setOf(nil))
	assert.InDelta(t, 15.0, w, 1e-9) // 10.0 full overlap + 5.0 same dept
}

func setOf(items []string) map[string]struct{} {
	m := make(map[string]struct{}, len(items))
	for _, s := range items {
		m[s] = struct{}{}
	}
	return m
}

func TestCluster_SmallInputReturnsSingleCluster(t *testing.T) {
	c := New(nil, hardware.Profile{PhysicalCores: 4, AvailableRAMGB: 8})
	courses := make([]model.Course, 3)
	for i := range courses {
		courses[i] = makeCourse("c", "", "", nil)
	}
	result := c.Cluster(courses, nil)
	require.Len(t, result.Clusters, 1)
	assert.Len(t, result.Clusters[0], 3)
}

func TestCluster_LargeInputProducesSizedClusters(t *testing.T) {
	c := New(nil, hardware.Profile{PhysicalCores: 4, AvailableRAMGB: 8})
	var courses []model.Course
	for i := 0; i < 40; i++ {
		dept := "deptA"
		if i%2 == 0 {
			dept = "deptB"
		}
		courses = append(courses, makeCourse(string(rune('a'+i)), "", dept, nil))
	}

	result := c.Cluster(courses, nil)
	require.NotEmpty(t, result.Clusters)

	total := 0
	for _, cl := range result.Clusters {
		total += len(cl)
		assert.LessOrEqual(t, len(cl), maxClusterSize)
	}
	assert.Equal(t, 40, total)
}

func TestOptimizeClusterSizes_SplitsOversizedAndMergesUndersized(t *testing.T) {
	big := make([]model.Course, 25)
	for i := range big {
		big[i] = makeCourse("big", "", "", nil)
	}
	tiny := make([]model.Course, 2)
	for i := range tiny {
		tiny[i] = makeCourse("tiny", "", "", nil)
	}

	result := optimizeClusterSizes([][]model.Course{big, tiny})
	for _, cl := range result {
		assert.LessOrEqual(t, len(cl), maxClusterSize)
	}
}

func TestChunkCourses_CoversAllInputs(t *testing.T) {
	courses := make([]model.Course, 23)
	chunks := chunkCourses(courses, 10)
	require.Len(t, chunks, 3)
	total := 0
	for _, c := range chunks {
		total += len(c)
	}
	assert.Equal(t, 23, total)
}

func TestRunLouvain_DeterministicAcrossRuns(t *testing.T) {
	var courses []model.Course
	for i := 0; i < 20; i++ {
		faculty := "f1"
		if i >= 10 {
			faculty = "f2"
		}
		courses = append(courses, makeCourse("c", faculty, "", nil))
	}
	g := buildConstraintGraph(courses, 0.05)

	p1, mod1 := runLouvain(g)
	p2, mod2 := runLouvain(g)
	assert.Equal(t, p1, p2)
	assert.Equal(t, mod1, mod2)
}
