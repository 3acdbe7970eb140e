package gridpartition

import "github.com/TuSKan/zarr-index/index"

// disjointSets is a union-find table over input dimensions [0, inputRank)
// followed by grid dimensions [inputRank, inputRank+gridRank).
type disjointSets []int

func newDisjointSets(n int) disjointSets {
	s := make(disjointSets, n)
	for i := range s {
		s[i] = i
	}
	return s
}

func (s disjointSets) find(x int) int {
	for s[x] != x {
		s[x] = s[s[x]]
		x = s[x]
	}
	return x
}

func (s disjointSets) union(a, b int) {
	ra, rb := s.find(a), s.find(b)
	if ra == rb {
		return
	}
	if ra < rb {
		s[rb] = ra
	} else {
		s[ra] = rb
	}
}

// connectedSet is a maximal group of grid dimensions and the input
// dimensions they depend on.
type connectedSet struct {
	gridDims  []int
	inputDims []int
	hasArray  bool
}

// findConnectedSets links each grid dimension to the input dimensions its
// output map depends on and returns the components that reach at least one
// input dimension, ordered by their first grid dimension. Dimension lists
// are ascending.
func findConnectedSets(transform index.Transform, gridOutputDims []int) []connectedSet {
	inputRank := transform.InputRank()
	sets := newDisjointSets(inputRank + len(gridOutputDims))
	for g, outputDim := range gridOutputDims {
		m := transform.Output(outputDim)
		switch m.Method() {
		case index.OutputSingleInputDimension:
			sets.union(inputRank+g, m.InputDimension())
		case index.OutputArray:
			for d := 0; d < inputRank; d++ {
				if m.Array().DependsOn(d) {
					sets.union(inputRank+g, d)
				}
			}
		}
	}

	var components []connectedSet
	byRoot := make(map[int]int)
	for g, outputDim := range gridOutputDims {
		root := sets.find(inputRank + g)
		i, found := byRoot[root]
		if !found {
			i = len(components)
			byRoot[root] = i
			components = append(components, connectedSet{})
		}
		c := &components[i]
		c.gridDims = append(c.gridDims, g)
		if transform.Output(outputDim).Method() == index.OutputArray {
			c.hasArray = true
		}
	}
	for d := 0; d < inputRank; d++ {
		if i, found := byRoot[sets.find(d)]; found {
			components[i].inputDims = append(components[i].inputDims, d)
		}
	}

	connected := components[:0]
	for _, c := range components {
		if len(c.inputDims) > 0 {
			connected = append(connected, c)
		}
	}
	return connected
}
