package graph

import "container/heap"

// edge is a non-delay dependency: producer index must precede consumer index.
type edge struct {
	from, to int
}

// indexHeap is a min-heap over block indices, used to pop the
// lowest-insertion-index ready node first so that topological sort ties
// break by insertion order (spec.md §4.3(3), invariant 1).
type indexHeap []int

func (h indexHeap) Len() int            { return len(h) }
func (h indexHeap) Less(i, j int) bool  { return h[i] < h[j] }
func (h indexHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *indexHeap) Push(x interface{}) { *h = append(*h, x.(int)) }
func (h *indexHeap) Pop() interface{} {
	old := *h
	n := len(old)
	v := old[n-1]
	*h = old[:n-1]
	return v
}

// topologicalSort runs Kahn's algorithm over n nodes and the given non-delay
// edges, returning node indices in a deterministic order: among nodes with
// equal in-degree at any point, the lowest original index (insertion order)
// is scheduled first. Returns ok=false if a cycle remains.
func topologicalSort(n int, edges []edge) (order []int, ok bool) {
	adj := make([][]int, n)
	indegree := make([]int, n)
	for _, e := range edges {
		adj[e.from] = append(adj[e.from], e.to)
		indegree[e.to]++
	}

	ready := &indexHeap{}
	heap.Init(ready)
	for i := 0; i < n; i++ {
		if indegree[i] == 0 {
			heap.Push(ready, i)
		}
	}

	order = make([]int, 0, n)
	for ready.Len() > 0 {
		u := heap.Pop(ready).(int)
		order = append(order, u)
		for _, v := range adj[u] {
			indegree[v]--
			if indegree[v] == 0 {
				heap.Push(ready, v)
			}
		}
	}

	return order, len(order) == n
}
