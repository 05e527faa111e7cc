// Package diagnostics renders a solved factor graph for inspection: a
// Graphviz DOT export with a per-node-kind palette, a dense variable/factor
// incidence matrix, and belief uncertainty ellipses.
package diagnostics

import (
	"fmt"
	"strings"

	"github.com/katalvlaran/gbpgo/gbp"
)

// nodeStyle is the color/shape/width Graphviz uses for one node kind.
type nodeStyle struct {
	color string
	shape string
	width float64
}

// styles assigns each node kind its rendering: variables are light
// circles, every factor kind is a small colored square.
var styles = map[string]nodeStyle{
	"Variable":         {color: "#eff1f5", shape: "circle", width: 0.8},
	"InterRobotFactor": {color: "#a6da95", shape: "square", width: 0.2},
	"DynamicFactor":    {color: "#8aadf4", shape: "square", width: 0.2},
	"ObstacleFactor":   {color: "#ee99a0", shape: "square", width: 0.2},
	"PoseFactor":       {color: "#c6a0f6", shape: "square", width: 0.2},
}

var defaultStyle = nodeStyle{color: "#cad3f5", shape: "square", width: 0.2}

// DOT renders a Graphviz "dot" description of a graph's nodes and edges,
// as produced by gbp.FactorGraph.ExportGraph.
func DOT(nodes []gbp.GraphNode, edges []gbp.GraphEdge) (string, error) {
	var b strings.Builder
	b.WriteString("graph gbp {\n")
	for _, n := range nodes {
		style, ok := styles[n.Kind]
		if !ok {
			style = defaultStyle
		}
		label := n.Kind
		if n.Mean != nil {
			label = fmt.Sprintf("%s\\n%v", n.Kind, n.Mean)
		}
		fmt.Fprintf(&b, "  n%d [label=%q, style=filled, fillcolor=%q, shape=%q, width=%v];\n",
			n.ID, label, style.color, style.shape, style.width)
	}
	for _, e := range edges {
		fmt.Fprintf(&b, "  n%d -- n%d;\n", e.FactorID, e.VariableID)
	}
	b.WriteString("}\n")

	return b.String(), nil
}
