package aggregation

import "github.com/alem-hub/grade-analytics/internal/domain/score"

// tupleIndex groups records by an ordered tuple of dimension values.
// Each tuple position is one level of nested maps, so a value containing
// any separator character can never collide with another tuple.
type tupleIndex struct {
	depth int
	root  *tupleNode
	list  []*bucket
}

type tupleNode struct {
	children map[string]*tupleNode
	leaf     *bucket
}

type bucket struct {
	key     []string
	records []score.Record
}

func newTupleIndex(depth int) *tupleIndex {
	return &tupleIndex{depth: depth, root: &tupleNode{}}
}

func (t *tupleIndex) add(values []string, r score.Record) {
	node := t.root
	for _, v := range values {
		if node.children == nil {
			node.children = make(map[string]*tupleNode)
		}
		next, ok := node.children[v]
		if !ok {
			next = &tupleNode{}
			node.children[v] = next
		}
		node = next
	}
	if node.leaf == nil {
		node.leaf = &bucket{key: values}
		t.list = append(t.list, node.leaf)
	}
	node.leaf.records = append(node.leaf.records, r)
}

func (t *tupleIndex) buckets() []*bucket {
	return t.list
}

// compareTuples orders tuples lexicographically, position by position.
func compareTuples(a, b []string) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if c := compareString(a[i], b[i]); c != 0 {
			return c
		}
	}
	return len(a) - len(b)
}
