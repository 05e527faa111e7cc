package diagnostics

import (
	"fmt"
	"sort"

	"github.com/katalvlaran/gbpgo/gbp"
	"github.com/katalvlaran/gbpgo/linalg"
)

// Adjacency builds a dense variable x factor incidence matrix from a
// graph's exported nodes and edges: row i, column j is 1 if the i-th
// variable (in ascending id order) is adjacent to the j-th factor (in
// ascending id order), 0 otherwise.
func Adjacency(nodes []gbp.GraphNode, edges []gbp.GraphEdge) (*linalg.Dense, []int, []int, error) {
	var variableIDs, factorIDs []int
	for _, n := range nodes {
		if n.Kind == "Variable" {
			variableIDs = append(variableIDs, n.ID)
		} else {
			factorIDs = append(factorIDs, n.ID)
		}
	}
	sort.Ints(variableIDs)
	sort.Ints(factorIDs)

	varRow := make(map[int]int, len(variableIDs))
	for i, id := range variableIDs {
		varRow[id] = i
	}
	facCol := make(map[int]int, len(factorIDs))
	for j, id := range factorIDs {
		facCol[id] = j
	}

	if len(variableIDs) == 0 || len(factorIDs) == 0 {
		return nil, variableIDs, factorIDs, nil
	}

	m, err := linalg.NewDense(len(variableIDs), len(factorIDs))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("Adjacency: %w", err)
	}
	for _, e := range edges {
		row, ok := varRow[e.VariableID]
		if !ok {
			continue
		}
		col, ok := facCol[e.FactorID]
		if !ok {
			continue
		}
		if err := m.Set(row, col, 1); err != nil {
			return nil, nil, nil, fmt.Errorf("Adjacency: %w", err)
		}
	}

	return m, variableIDs, factorIDs, nil
}
