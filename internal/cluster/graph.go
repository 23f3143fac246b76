// Package cluster implements Stage 1: graph-based course clustering. It
// builds a weighted constraint graph over courses and partitions it with
// Louvain community detection, falling back to deterministic chunking.
// Grounded on the source's engine/stage1_clustering.LouvainClusterer.
package cluster

import (
	"runtime"
	"sync"

	"github.com/logixfirst/timetable-engine/internal/model"
)

// edge is one weighted undirected connection between two course indices.
type edge struct {
	i, j   int
	weight float64
}

// graph is an adjacency-list weighted undirected graph over course indices.
type graph struct {
	n         int
	neighbors []map[int]float64
}

func newGraph(n int) *graph {
	g := &graph{n: n, neighbors: make([]map[int]float64, n)}
	for i := range g.neighbors {
		g.neighbors[i] = make(map[int]float64)
	}
	return g
}

func (g *graph) addEdge(i, j int, w float64) {
	if i == j {
		return
	}
	g.neighbors[i][j] += w
	g.neighbors[j][i] += w
}

func (g *graph) degree(i int) float64 {
	var sum float64
	for _, w := range g.neighbors[i] {
		sum += w
	}
	return sum
}

func (g *graph) totalWeight() float64 {
	var sum float64
	for i := range g.neighbors {
		sum += g.degree(i)
	}
	return sum / 2
}

// buildConstraintGraph computes the weighted constraint graph over courses
// (spec §4.2): faculty sharing is an early-return +10.0 edge; otherwise
// student overlap, department affinity, and shared required features each
// contribute. Edge computation runs in parallel over chunks of courses,
// and only edges exceeding threshold are added to keep the graph sparse.
func buildConstraintGraph(courses []model.Course, threshold float64) *graph {
	n := len(courses)
	g := newGraph(n)
	if n == 0 {
		return g
	}

	studentSets := make([]map[string]struct{}, n)
	featureSets := make([]map[string]struct{}, n)
	for i, c := range courses {
		ss := make(map[string]struct{}, len(c.StudentIDs))
		for _, sid := range c.StudentIDs {
			ss[sid] = struct{}{}
		}
		studentSets[i] = ss

		fs := make(map[string]struct{}, len(c.RequiredFeatures))
		for _, f := range c.RequiredFeatures {
			fs[f] = struct{}{}
		}
		featureSets[i] = fs
	}

	workers := runtime.NumCPU()
	if workers > 8 {
		workers = 8
	}
	if workers < 1 {
		workers = 1
	}
	chunkSize := n / workers
	if chunkSize < 1 {
		chunkSize = 1
	}

	edgesCh := make(chan []edge, workers)
	var wg sync.WaitGroup

	for start := 0; start < n; start += chunkSize {
		end := start + chunkSize
		if end > n {
			end = n
		}
		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			var local []edge
			for i := start; i < end; i++ {
				for j := i + 1; j < n; j++ {
					w := constraintWeight(courses[i], courses[j], studentSets[i], studentSets[j], featureSets[i], featureSets[j])
					if w > threshold {
						local = append(local, edge{i: i, j: j, weight: w})
					}
				}
			}
			edgesCh <- local
		}(start, end)
	}

	go func() {
		wg.Wait()
		close(edgesCh)
	}()

	for batch := range edgesCh {
		for _, e := range batch {
			g.addEdge(e.i, e.j, e.weight)
		}
	}

	return g
}

// constraintWeight computes one edge weight per spec §4.2.
func constraintWeight(a, b model.Course, studentsA, studentsB, featuresA, featuresB map[string]struct{}) float64 {
	if a.FacultyID != "" && a.FacultyID == b.FacultyID {
		return 10.0
	}

	var weight float64
	if len(studentsA) > 0 && len(studentsB) > 0 {
		overlap := setIntersectionSize(studentsA, studentsB)
		denom := len(studentsA)
		if len(studentsB) > denom {
			denom = len(studentsB)
		}
		if denom > 0 {
			weight += 10.0 * float64(overlap) / float64(denom)
		}
	}

	if a.DepartmentID != "" && a.DepartmentID == b.DepartmentID {
		weight += 5.0
	}

	if len(featuresA) > 0 && len(featuresB) > 0 && setIntersectionSize(featuresA, featuresB) > 0 {
		weight += 3.0
	}

	return weight
}

func setIntersectionSize(a, b map[string]struct{}) int {
	small, big := a, b
	if len(b) < len(a) {
		small, big = b, a
	}
	count := 0
	for k := range small {
		if _, ok := big[k]; ok {
			count++
		}
	}
	return count
}
