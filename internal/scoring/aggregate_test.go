package scoring

import (
	"math"
	"testing"

	"github.com/zulandar/kpiyard/internal/models"
)

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func node(id, parent, nodeType string, weight float64, order int) models.Node {
	n := models.Node{ID: id, NodeType: nodeType, Title: id, WeightPercent: weight, SortOrder: order}
	if parent != "" {
		n.ParentID = &parent
	}
	return n
}

func TestAggregate(t *testing.T) {
	nodes := []models.Node{
		node("g1", "", models.NodeGroup, 60, 0),
		node("i1", "g1", models.NodeItem, 50, 0),
		node("i2", "g1", models.NodeItem, 50, 1),
		node("g2", "", models.NodeGroup, 40, 1),
		node("i3", "g2", models.NodeItem, 100, 0),
	}
	sum := Aggregate(nodes, map[string]float64{"i1": 3, "i2": 4, "i3": 5})

	if sum.OverallPercent != 82 {
		t.Errorf("OverallPercent = %v, want 82", sum.OverallPercent)
	}
	if len(sum.Incomplete) != 0 {
		t.Errorf("Incomplete = %v", sum.Incomplete)
	}
	g1 := sum.Nodes[0]
	if g1.DisplayNo != "1" || !approx(*g1.Score, 3.5) || !approx(g1.Contribution, 42) {
		t.Errorf("g1 = %+v score %v", g1, *g1.Score)
	}
	if i1 := g1.Children[0]; i1.DisplayNo != "1.1" || !approx(i1.Contribution, 30) {
		t.Errorf("i1 = %+v", i1)
	}
	if g2 := sum.Nodes[1]; !approx(g2.Contribution, 40) {
		t.Errorf("g2 contribution = %v, want 40", g2.Contribution)
	}
}

func TestAggregate_MissingAndEmpty(t *testing.T) {
	nodes := []models.Node{
		node("g1", "", models.NodeGroup, 50, 0),
		node("i1", "g1", models.NodeItem, 100, 0),
		node("g2", "", models.NodeGroup, 50, 1),
	}
	sum := Aggregate(nodes, map[string]float64{})
	if sum.OverallPercent != 0 {
		t.Errorf("OverallPercent = %v, want 0", sum.OverallPercent)
	}
	if len(sum.Incomplete) != 1 || sum.Incomplete[0] != "i1" {
		t.Errorf("Incomplete = %v, want [i1]", sum.Incomplete)
	}
	if sum.Nodes[0].Children[0].Score != nil {
		t.Error("unscored item should have nil score")
	}
	if s := sum.Nodes[1].Score; s == nil || *s != 0 {
		t.Errorf("empty group score = %v, want 0", s)
	}
}

func TestAggregate_NestedGroups(t *testing.T) {
	nodes := []models.Node{
		node("root", "", models.NodeGroup, 100, 0),
		node("sub", "root", models.NodeGroup, 25, 0),
		node("a", "sub", models.NodeItem, 100, 0),
		node("b", "root", models.NodeItem, 75, 1),
	}
	sum := Aggregate(nodes, map[string]float64{"a": 1, "b": 5})
	// root = (1*25 + 5*75) / 100 = 4
	if got := *sum.Nodes[0].Score; !approx(got, 4) {
		t.Errorf("root score = %v, want 4", got)
	}
	if sum.OverallPercent != 80 {
		t.Errorf("OverallPercent = %v, want 80", sum.OverallPercent)
	}
}
