package voterstore

import (
	"sync"

	"github.com/coder/hnsw"

	"github.com/securevote/backend/internal/facematch"
)

const (
	// hnswMaxNeighbors (M) is the maximum number of neighbors per node.
	hnswMaxNeighbors = 16
)

// Neighbor is one approximate nearest-neighbor hit from the diagnostic
// index: a registered voter and the cosine distance to the probe.
type Neighbor struct {
	Name     string  `json:"name"`
	Distance float64 `json:"distance"`
}

// NeighborIndex wraps an HNSW graph over the representative registry. It is
// an operator diagnostic only; authentication decisions always run the exact
// linear scan in facematch.
type NeighborIndex struct {
	mu       sync.RWMutex
	graph    *hnsw.Graph[int64]
	idToName map[int64]string
	nextID   int64
}

// NewNeighborIndex creates an empty index.
func NewNeighborIndex() *NeighborIndex {
	return &NeighborIndex{idToName: make(map[int64]string)}
}

func newGraph() *hnsw.Graph[int64] {
	g := hnsw.NewGraph[int64]()
	g.M = hnswMaxNeighbors
	g.Ml = 1.0 / float64(hnswMaxNeighbors) // Standard HNSW formula
	g.Distance = hnsw.CosineDistance
	return g
}

// rebuild replaces the graph contents with the given registry entries.
func (n *NeighborIndex) rebuild(registry []facematch.Entry) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.graph = nil
	n.idToName = make(map[int64]string, len(registry))
	n.nextID = 0

	if len(registry) == 0 {
		return nil
	}

	g := newGraph()
	for _, entry := range registry {
		if len(entry.Template) == 0 {
			continue
		}
		id := n.nextID
		n.nextID++
		g.Add(hnsw.MakeNode(id, entry.Template))
		n.idToName[id] = entry.Name
	}
	n.graph = g
	return nil
}

// add inserts a single voter's representative template.
func (n *NeighborIndex) add(name string, template []float32) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if len(template) == 0 {
		return
	}
	if n.graph == nil {
		n.graph = newGraph()
	}
	id := n.nextID
	n.nextID++
	n.graph.Add(hnsw.MakeNode(id, template))
	n.idToName[id] = name
}

// search returns up to k nearest voters with their cosine distances.
func (n *NeighborIndex) search(probe []float32, k int) []Neighbor {
	n.mu.RLock()
	defer n.mu.RUnlock()

	if n.graph == nil || k <= 0 {
		return nil
	}

	nodes := n.graph.Search(probe, k)
	out := make([]Neighbor, 0, len(nodes))
	for _, node := range nodes {
		name, ok := n.idToName[node.Key]
		if !ok {
			continue
		}
		similarity, err := facematch.CosineSimilarity(probe, node.Value)
		if err != nil {
			continue
		}
		out = append(out, Neighbor{Name: name, Distance: 1 - similarity})
	}
	return out
}
