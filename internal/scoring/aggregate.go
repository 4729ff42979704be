package scoring

import (
	"github.com/zulandar/kpiyard/internal/models"
	"github.com/zulandar/kpiyard/internal/plan"
)

// NodeScore is one node of an aggregated score tree. Score is on the 0..5
// scale; Contribution is the node's share of its parent in percent points.
type NodeScore struct {
	NodeID        string       `json:"nodeId"`
	DisplayNo     string       `json:"displayNo"`
	NodeType      string       `json:"nodeType"`
	Title         string       `json:"title"`
	WeightPercent float64      `json:"weightPercent"`
	Score         *float64     `json:"score"`
	Contribution  float64      `json:"contribution"`
	Children      []*NodeScore `json:"children,omitempty"`
}

// Summary is the aggregated result of an assignment's current plan.
type Summary struct {
	AssignmentID   string       `json:"assignmentId"`
	PlanID         string       `json:"planId"`
	EvalStatus     string       `json:"evalStatus"`
	NeedsReEval    bool         `json:"needsReEval"`
	OverallPercent float64      `json:"overallPercent"`
	Incomplete     []string     `json:"incomplete"`
	SummaryNote    string       `json:"summaryNote,omitempty"`
	Nodes          []*NodeScore `json:"nodes"`
}

// Aggregate rolls item scores up the tree. An ITEM contributes
// (score/5)*weight; a GROUP scores the weighted mean of its children (0 when
// it has none or their weights sum to 0) and contributes (groupScore/5)*weight.
// The overall percent is the sum of root contributions. Items missing from
// scores count as 0 and are listed in Incomplete, in display order.
func Aggregate(nodes []models.Node, scores map[string]float64) Summary {
	incomplete := []string{}
	var build func(v *plan.NodeView) *NodeScore
	build = func(v *plan.NodeView) *NodeScore {
		ns := &NodeScore{
			NodeID:        v.ID,
			DisplayNo:     v.DisplayNo,
			NodeType:      v.NodeType,
			Title:         v.Title,
			WeightPercent: v.WeightPercent,
		}
		var s float64
		if v.NodeType == models.NodeItem {
			if raw, ok := scores[v.ID]; ok {
				s = clamp(raw)
				ns.Score = &s
			} else {
				incomplete = append(incomplete, v.ID)
			}
		} else {
			var weighted, total float64
			for _, c := range v.Children {
				child := build(c)
				ns.Children = append(ns.Children, child)
				if child.Score != nil {
					weighted += *child.Score * c.WeightPercent
				}
				total += c.WeightPercent
			}
			if total > 0 {
				s = weighted / total
			}
			ns.Score = &s
		}
		ns.Contribution = s / MaxScore * v.WeightPercent
		return ns
	}

	sum := Summary{Nodes: []*NodeScore{}}
	var overall float64
	for _, root := range plan.BuildTree(nodes) {
		ns := build(root)
		sum.Nodes = append(sum.Nodes, ns)
		overall += ns.Contribution
	}
	sum.OverallPercent = round2(overall)
	sum.Incomplete = incomplete
	return sum
}
