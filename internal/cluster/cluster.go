package cluster

import (
	"sort"

	"go.uber.org/zap"

	"github.com/logixfirst/timetable-engine/internal/hardware"
	"github.com/logixfirst/timetable-engine/internal/model"
	"github.com/logixfirst/timetable-engine/internal/progress"
)

// targetClusterSize is the preferred cluster size courses are split or
// merged towards during post-processing (spec §4.2).
const targetClusterSize = 10

// minClusterSize and maxClusterSize bound an acceptable cluster before
// post-processing kicks in.
const (
	minClusterSize = 5
	maxClusterSize = 12
)

// Clusterer partitions a semester's courses into independently schedulable
// groups, grounded on the source's engine/stage1_clustering.LouvainClusterer.
type Clusterer struct {
	log     *zap.Logger
	profile hardware.Profile
}

// New builds a Clusterer sized to the detected hardware profile.
func New(log *zap.Logger, profile hardware.Profile) *Clusterer {
	return &Clusterer{log: log, profile: profile}
}

// Result is one clustering run's output.
type Result struct {
	Clusters   [][]model.Course
	Modularity float64
	Fallback   bool
}

// Cluster partitions courses into clusters of roughly targetClusterSize.
// After post-processing no cluster exceeds maxClusterSize, but the last
// chunk of a split cluster, or of the pooled small clusters, can hold fewer
// than minClusterSize courses. On any
// internal failure it falls back to deterministic fixed-size chunking so
// the pipeline always has clusters to hand to the solver.
func (c *Clusterer) Cluster(courses []model.Course, tracker *progress.Tracker) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			if c.log != nil {
				c.log.Error("clustering panicked, using deterministic fallback", zap.Any("recover", r))
			}
			result = Result{Clusters: chunkCourses(courses, targetClusterSize), Fallback: true}
		}
	}()

	if len(courses) == 0 {
		return Result{Clusters: nil}
	}
	if len(courses) <= maxClusterSize {
		return Result{Clusters: [][]model.Course{append([]model.Course(nil), courses...)}}
	}

	threshold := c.profile.ClusterThreshold()
	g := buildConstraintGraph(courses, threshold)
	if tracker != nil {
		tracker.UpdateWork(len(courses) / 2)
	}

	var partition []int
	var modularity float64
	if g.totalWeight() > 0 {
		partition, modularity = runLouvain(g)
	} else {
		if c.log != nil {
			c.log.Warn("constraint graph has no edges above threshold, using department fallback")
		}
		departments := make([]string, len(courses))
		for i, course := range courses {
			departments[i] = course.DepartmentID
		}
		partition = departmentFallback(departments)
	}
	if tracker != nil {
		tracker.UpdateWork(len(courses) * 8 / 10)
	}

	clusters := groupByPartition(courses, partition)
	clusters = optimizeClusterSizes(clusters)

	if c.log != nil {
		sizes := clusterSizes(clusters)
		c.log.Info("clustering complete",
			zap.Int("num_clusters", len(clusters)),
			zap.Float64("modularity", modularity),
			zap.Ints("sizes", sizes))
	}
	if tracker != nil {
		tracker.UpdateWork(len(courses))
	}

	return Result{Clusters: clusters, Modularity: modularity}
}

func groupByPartition(courses []model.Course, partition []int) [][]model.Course {
	byComm := make(map[int][]model.Course)
	var order []int
	seen := make(map[int]struct{})
	for i, course := range courses {
		comm := partition[i]
		byComm[comm] = append(byComm[comm], course)
		if _, ok := seen[comm]; !ok {
			seen[comm] = struct{}{}
			order = append(order, comm)
		}
	}
	sort.Ints(order)

	clusters := make([][]model.Course, 0, len(order))
	for _, comm := range order {
		clusters = append(clusters, byComm[comm])
	}
	return clusters
}

// optimizeClusterSizes applies the source's _optimize_cluster_sizes rules:
// clusters above maxClusterSize are split into chunks of targetClusterSize;
// clusters below minClusterSize are pooled and re-chunked together into
// groups of at most 8 (the last group can be smaller than minClusterSize);
// clusters within range are kept as-is.
func optimizeClusterSizes(clusters [][]model.Course) [][]model.Course {
	var result [][]model.Course
	var small []model.Course

	for _, cl := range clusters {
		switch {
		case len(cl) > maxClusterSize:
			result = append(result, chunkCourses(cl, targetClusterSize)...)
		case len(cl) < minClusterSize:
			small = append(small, cl...)
		default:
			result = append(result, cl)
		}
	}

	if len(small) > 0 {
		result = append(result, chunkCourses(small, 8)...)
	}

	return result
}

// chunkCourses splits courses into consecutive fixed-size groups. Used both
// as the deterministic total-failure fallback and as the post-processing
// split/merge mechanism.
func chunkCourses(courses []model.Course, size int) [][]model.Course {
	if size < 1 {
		size = 1
	}
	var chunks [][]model.Course
	for start := 0; start < len(courses); start += size {
		end := start + size
		if end > len(courses) {
			end = len(courses)
		}
		chunks = append(chunks, append([]model.Course(nil), courses[start:end]...))
	}
	return chunks
}

func clusterSizes(clusters [][]model.Course) []int {
	sizes := make([]int, len(clusters))
	for i, cl := range clusters {
		sizes[i] = len(cl)
	}
	return sizes
}
