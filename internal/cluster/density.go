package cluster

// dbscanStrategy clusters candidates by cosine distance over their
// embeddings, emitting the best-scored representative per cluster
// (spec.md §4.10: "density-based clustering over the result embeddings").
// Noise points (no neighbor within eps) are kept as singleton clusters
// rather than dropped, since a single strong-scoring outlier is still a
// useful search hit.
type dbscanStrategy struct {
	eps       float64
	minPoints int
}

func (dbscanStrategy) Name() string { return DBSCAN }

func (d dbscanStrategy) FitPredict(candidates []Candidate) []Candidate {
	labels := dbscanLabels(candidates, d.eps, d.minPoints)
	return representativesByLabel(candidates, labels)
}

// dbscanLabels is a direct O(N^2) DBSCAN over cosine distance, acceptable
// for the N <= 500 bound spec.md §4.10 requires of every strategy.
func dbscanLabels(candidates []Candidate, eps float64, minPoints int) []int {
	n := len(candidates)
	labels := make([]int, n)
	for i := range labels {
		labels[i] = -1 // unclassified
	}
	visited := make([]bool, n)
	cluster := 0

	neighbors := func(i int) []int {
		var out []int
		for j := 0; j < n; j++ {
			if j != i && cosineDistance(candidates[i].Embedding, candidates[j].Embedding) <= eps {
				out = append(out, j)
			}
		}
		return out
	}

	for i := 0; i < n; i++ {
		if visited[i] {
			continue
		}
		visited[i] = true
		neigh := neighbors(i)
		if len(neigh)+1 < minPoints {
			labels[i] = -1 // noise; may still be absorbed by a later cluster
			continue
		}

		labels[i] = cluster
		queue := append([]int(nil), neigh...)
		for len(queue) > 0 {
			j := queue[0]
			queue = queue[1:]
			if !visited[j] {
				visited[j] = true
				jNeigh := neighbors(j)
				if len(jNeigh)+1 >= minPoints {
					queue = append(queue, jNeigh...)
				}
			}
			if labels[j] == -1 {
				labels[j] = cluster
			}
		}
		cluster++
	}

	// Promote every remaining noise point to its own singleton cluster.
	for i, l := range labels {
		if l == -1 {
			labels[i] = cluster
			cluster++
		}
	}
	return labels
}

// hdbscanStrategy approximates hierarchical density clustering by running
// DBSCAN (minPoints = minClusterSize) at eps 0.1, 0.2, 0.35 and 0.5 and
// keeping the labelling with the most clusters, the smaller eps winning a
// tie — a pragmatic stand-in for full HDBSCAN's mutual-reachability tree.
// No cluster-size check is applied to the kept labelling, and each of the
// four passes is O(N^2) in the candidate count.
type hdbscanStrategy struct {
	minClusterSize int
}

func (hdbscanStrategy) Name() string { return HDBSCAN }

func (h hdbscanStrategy) FitPredict(candidates []Candidate) []Candidate {
	if len(candidates) < h.minClusterSize {
		return sortedByScore(candidates)
	}
	thresholds := []float64{0.1, 0.2, 0.35, 0.5}
	var best []int
	bestClusters := -1
	for _, eps := range thresholds {
		labels := dbscanLabels(candidates, eps, h.minClusterSize)
		numClusters := maxLabel(labels) + 1
		if numClusters > bestClusters {
			bestClusters = numClusters
			best = labels
		}
	}
	return representativesByLabel(candidates, best)
}

func maxLabel(labels []int) int {
	max := -1
	for _, l := range labels {
		if l > max {
			max = l
		}
	}
	return max
}

func representativesByLabel(candidates []Candidate, labels []int) []Candidate {
	best := make(map[int]Candidate)
	for i, c := range candidates {
		label := labels[i]
		if existing, ok := best[label]; !ok || c.Score > existing.Score {
			best[label] = c
		}
	}
	out := make([]Candidate, 0, len(best))
	for _, c := range best {
		out = append(out, c)
	}
	return sortedByScore(out)
}

// autoStrategy picks hdbscan when there is enough data to cluster
// meaningfully, and falls back to score-ranking otherwise (spec.md §4.10:
// "auto picks hdbscan if sufficient data exists and falls back otherwise").
type autoStrategy struct{}

func (autoStrategy) Name() string { return Auto }

func (autoStrategy) FitPredict(candidates []Candidate) []Candidate {
	const minForClustering = 6
	hasEmbeddings := true
	for _, c := range candidates {
		if len(c.Embedding) == 0 {
			hasEmbeddings = false
			break
		}
	}
	if len(candidates) < minForClustering || !hasEmbeddings {
		return sortedByScore(candidates)
	}
	return hdbscanStrategy{minClusterSize: 2}.FitPredict(candidates)
}
