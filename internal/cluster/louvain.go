package cluster

import (
	"math/rand/v2"
)

// louvainSeed mirrors the source's community_louvain.best_partition(...,
// random_state=42): fixed so re-runs over the same graph are reproducible.
const louvainSeed = 42

// runLouvain partitions g by local-moving modularity optimization: the
// single-level phase of Louvain community detection (repeated passes over
// nodes, each moved into whichever neighboring community most increases
// modularity, until a pass produces no moves). No graph/community-detection
// library exists anywhere in the reference pack, so this is a from-scratch
// substitute for python-louvain's best_partition — see DESIGN.md.
//
// Returns a partition (node index -> community id) and the resulting
// modularity.
func runLouvain(g *graph) (partition []int, modularity float64) {
	n := g.n
	partition = make([]int, n)
	for i := range partition {
		partition[i] = i
	}
	if n == 0 {
		return partition, 0
	}

	totalWeight := g.totalWeight()
	if totalWeight <= 0 {
		return partition, 0
	}
	m2 := 2 * totalWeight

	commDegree := make([]float64, n)
	for i := 0; i < n; i++ {
		commDegree[i] = g.degree(i)
	}

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	rng := rand.New(rand.NewPCG(louvainSeed, louvainSeed))

	for pass := 0; pass < 100; pass++ {
		rng.Shuffle(len(order), func(a, b int) { order[a], order[b] = order[b], order[a] })

		moved := false
		for _, node := range order {
			currentComm := partition[node]
			degree := g.degree(node)

			neighborWeight := make(map[int]float64)
			for nb, w := range g.neighbors[node] {
				neighborWeight[partition[nb]] += w
			}

			commDegree[currentComm] -= degree
			bestComm := currentComm
			bestGain := neighborWeight[currentComm] - commDegree[currentComm]*degree/m2

			for comm, w := range neighborWeight {
				if comm == currentComm {
					continue
				}
				gain := w - commDegree[comm]*degree/m2
				if gain > bestGain || (gain == bestGain && bestComm != currentComm && comm < bestComm) {
					bestGain = gain
					bestComm = comm
				}
			}

			commDegree[bestComm] += degree
			if bestComm != currentComm {
				partition[node] = bestComm
				moved = true
			}
		}

		if !moved {
			break
		}
	}

	partition = relabel(partition)
	modularity = computeModularity(g, partition, totalWeight)
	return partition, modularity
}

// relabel compacts community ids to a contiguous 0..k-1 range.
func relabel(partition []int) []int {
	ids := make(map[int]int)
	out := make([]int, len(partition))
	next := 0
	for i, c := range partition {
		id, ok := ids[c]
		if !ok {
			id = next
			ids[c] = id
			next++
		}
		out[i] = id
	}
	return out
}

func computeModularity(g *graph, partition []int, totalWeight float64) float64 {
	if totalWeight <= 0 {
		return 0
	}
	m2 := 2 * totalWeight
	var q float64
	for i := 0; i < g.n; i++ {
		for j, w := range g.neighbors[i] {
			if partition[i] == partition[j] {
				q += w
			}
		}
	}
	degSum := make(map[int]float64)
	for i := 0; i < g.n; i++ {
		degSum[partition[i]] += g.degree(i)
	}
	var correction float64
	for _, d := range degSum {
		correction += d * d
	}
	return q/m2 - correction/(m2*m2)
}

// departmentFallback groups course indices by department id when the graph
// has no usable edges (e.g. every weight below threshold), matching the
// source's ImportError fallback path.
func departmentFallback(departmentIDs []string) []int {
	ids := make(map[string]int)
	partition := make([]int, len(departmentIDs))
	next := 0
	for i, dept := range departmentIDs {
		id, ok := ids[dept]
		if !ok {
			id = next
			ids[dept] = id
			next++
		}
		partition[i] = id
	}
	return partition
}
