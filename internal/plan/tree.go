package plan

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/zulandar/kpiyard/internal/apperr"
	"github.com/zulandar/kpiyard/internal/contenthash"
	"github.com/zulandar/kpiyard/internal/db"
	"github.com/zulandar/kpiyard/internal/models"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterStructValidation(draftNodeRules, contenthash.DraftNode{})
	return v
}

// draftNodeRules enforces the GROUP/ITEM field split.
func draftNodeRules(sl validator.StructLevel) {
	n := sl.Current().Interface().(contenthash.DraftNode)
	switch n.NodeType {
	case models.NodeItem:
		if n.TypeID == nil || strings.TrimSpace(*n.TypeID) == "" {
			sl.ReportError(n.TypeID, "typeId", "TypeID", "required_for_item", "")
		}
		if n.StartDate == nil {
			sl.ReportError(n.StartDate, "startDate", "StartDate", "required_for_item", "")
		}
		if n.EndDate == nil {
			sl.ReportError(n.EndDate, "endDate", "EndDate", "required_for_item", "")
		}
		if n.StartDate != nil && n.EndDate != nil && n.EndDate.Before(*n.StartDate) {
			sl.ReportError(n.EndDate, "endDate", "EndDate", "not_before_start", "")
		}
	case models.NodeGroup:
		if n.TypeID != nil || n.Unit != nil || n.StartDate != nil || n.EndDate != nil {
			sl.ReportError(n.TypeID, "typeId", "TypeID", "excluded_for_group", "")
		}
	}
}

// ValidateTree checks a draft tree before it is hashed or stored. knownType
// reports whether a rubric id exists.
func ValidateTree(nodes []contenthash.DraftNode, knownType func(id string) bool) error {
	if len(nodes) == 0 {
		return apperr.Validation("plan tree is empty")
	}

	var problems []string
	byID := make(map[string]int, len(nodes))
	for i, n := range nodes {
		if err := validate.Struct(n); err != nil {
			var ve validator.ValidationErrors
			if errors.As(err, &ve) {
				for _, fe := range ve {
					problems = append(problems, fmt.Sprintf("node %q: %s failed %s", n.TempID, fe.Field(), fe.Tag()))
				}
			} else {
				problems = append(problems, fmt.Sprintf("node %q: %v", n.TempID, err))
			}
		}
		if _, dup := byID[n.TempID]; dup && n.TempID != "" {
			problems = append(problems, fmt.Sprintf("node %q: duplicate temp id", n.TempID))
		}
		byID[n.TempID] = i
	}

	children := make(map[string][]int)
	var roots []int
	for i, n := range nodes {
		if n.ParentTempID == nil {
			roots = append(roots, i)
			continue
		}
		p, ok := byID[*n.ParentTempID]
		if !ok {
			problems = append(problems, fmt.Sprintf("node %q: parent %q does not exist", n.TempID, *n.ParentTempID))
			continue
		}
		if nodes[p].NodeType == models.NodeItem {
			problems = append(problems, fmt.Sprintf("node %q: ITEM %q cannot have children", n.TempID, nodes[p].TempID))
		}
		children[*n.ParentTempID] = append(children[*n.ParentTempID], i)
	}

	for _, n := range nodes {
		if n.NodeType == models.NodeGroup && len(children[n.TempID]) == 0 {
			problems = append(problems, fmt.Sprintf("node %q: GROUP needs at least one child", n.TempID))
		}
		if n.NodeType == models.NodeItem && n.TypeID != nil && knownType != nil && !knownType(*n.TypeID) {
			problems = append(problems, fmt.Sprintf("node %q: unknown KPI type %q", n.TempID, *n.TypeID))
		}
	}

	if len(roots) == 0 {
		problems = append(problems, "tree has no root node")
	} else {
		problems = append(problems, weightProblems("root", roots, nodes)...)
	}
	parents := make([]string, 0, len(children))
	for p := range children {
		parents = append(parents, p)
	}
	sort.Strings(parents)
	for _, p := range parents {
		problems = append(problems, weightProblems(fmt.Sprintf("children of %q", p), children[p], nodes)...)
	}

	if len(problems) == 0 {
		if _, err := contenthash.Canonicalize(nodes); err != nil {
			problems = append(problems, "tree contains a cycle")
		}
	}
	if len(problems) > 0 {
		return apperr.Validation("invalid plan tree: %s", strings.Join(problems, "; "))
	}
	return nil
}

func weightProblems(label string, group []int, nodes []contenthash.DraftNode) []string {
	var hundredths int64
	for _, i := range group {
		hundredths += int64(math.Round(nodes[i].WeightPercent * 100))
	}
	if hundredths != 10000 {
		return []string{fmt.Sprintf("%s weights sum to %s, want 100.00", label, strconv.FormatFloat(float64(hundredths)/100, 'f', 2, 64))}
	}
	return nil
}

// materialise turns canonical records into storable nodes for planID.
func materialise(planID string, records []contenthash.Record, src []contenthash.DraftNode) []models.Node {
	ids := make(map[int]string, len(records))
	out := make([]models.Node, 0, len(records))
	for _, r := range records {
		n := src[r.Source]
		id := db.NewID()
		ids[r.Key] = id
		node := models.Node{
			ID:            id,
			PlanID:        planID,
			NodeType:      r.NodeType,
			Title:         r.Title,
			Description:   r.Description,
			WeightPercent: math.Round(n.WeightPercent*100) / 100,
			TypeID:        r.TypeID,
			Unit:          r.Unit,
			StartDate:     contenthash.TruncateDate(n.StartDate),
			EndDate:       contenthash.TruncateDate(n.EndDate),
			SortOrder:     r.SortOrder,
		}
		if r.ParentKey != nil {
			parent := ids[*r.ParentKey]
			node.ParentID = &parent
		}
		out = append(out, node)
	}
	return out
}

// drafts converts stored nodes back into a draft tree keyed by node id.
func drafts(nodes []models.Node) []contenthash.DraftNode {
	out := make([]contenthash.DraftNode, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, contenthash.DraftNode{
			TempID:        n.ID,
			ParentTempID:  n.ParentID,
			NodeType:      n.NodeType,
			Title:         n.Title,
			Description:   n.Description,
			WeightPercent: n.WeightPercent,
			TypeID:        n.TypeID,
			Unit:          n.Unit,
			StartDate:     n.StartDate,
			EndDate:       n.EndDate,
			SortOrder:     n.SortOrder,
		})
	}
	return out
}

// DisplayNumbers assigns outline numbers ("1", "1.2", ...) to a stored tree.
func DisplayNumbers(nodes []models.Node) map[string]string {
	children := make(map[string][]models.Node)
	for _, n := range nodes {
		parent := ""
		if n.ParentID != nil {
			parent = *n.ParentID
		}
		children[parent] = append(children[parent], n)
	}
	for _, group := range children {
		sortSiblings(group)
	}

	numbers := make(map[string]string, len(nodes))
	var walk func(parent, prefix string)
	walk = func(parent, prefix string) {
		for i, n := range children[parent] {
			no := strconv.Itoa(i + 1)
			if prefix != "" {
				no = prefix + "." + no
			}
			numbers[n.ID] = no
			walk(n.ID, no)
		}
	}
	walk("", "")
	return numbers
}

func sortSiblings(group []models.Node) {
	sort.SliceStable(group, func(i, j int) bool {
		if group[i].SortOrder != group[j].SortOrder {
			return group[i].SortOrder < group[j].SortOrder
		}
		if group[i].Title != group[j].Title {
			return group[i].Title < group[j].Title
		}
		return group[i].ID < group[j].ID
	})
}
