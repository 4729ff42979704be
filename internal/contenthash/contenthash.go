// Package contenthash canonicalises a draft KPI tree and digests it, so that
// two trees with the same content and relative order hash identically no
// matter which temporary ids the client chose.
package contenthash

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// DraftNode is one node of a tree submitted for saving. TempID and
// ParentTempID only express structure and never reach storage.
type DraftNode struct {
	TempID        string     `json:"tempId" validate:"required"`
	ParentTempID  *string    `json:"parentTempId,omitempty"`
	NodeType      string     `json:"nodeType" validate:"required,oneof=GROUP ITEM"`
	Title         string     `json:"title" validate:"required,max=255"`
	Description   *string    `json:"description,omitempty"`
	WeightPercent float64    `json:"weightPercent" validate:"gte=0,lte=100"`
	TypeID        *string    `json:"typeId,omitempty"`
	Unit          *string    `json:"unit,omitempty" validate:"omitempty,max=32"`
	StartDate     *time.Time `json:"startDate,omitempty"`
	EndDate       *time.Time `json:"endDate,omitempty"`
	SortOrder     int        `json:"sortOrder"`
}

// Record is the canonical form of a node. Source is the index of the node in
// the input slice.
type Record struct {
	Key           int     `json:"key"`
	ParentKey     *int    `json:"parentKey"`
	NodeType      string  `json:"nodeType"`
	Title         string  `json:"title"`
	Description   *string `json:"description"`
	WeightPercent string  `json:"weightPercent"`
	TypeID        *string `json:"typeId"`
	Unit          *string `json:"unit"`
	StartDate     *string `json:"startDate"`
	EndDate       *string `json:"endDate"`
	SortOrder     int     `json:"sortOrder"`

	Source int `json:"-"`
}

// Canonicalize orders the tree pre-order, siblings by SortOrder, then trimmed
// title, then temp id, and assigns keys 1..n in that order. Every node must
// be reachable from a root.
func Canonicalize(nodes []DraftNode) ([]Record, error) {
	children := make(map[string][]int, len(nodes))
	var roots []int
	for i, n := range nodes {
		if n.ParentTempID == nil {
			roots = append(roots, i)
			continue
		}
		children[*n.ParentTempID] = append(children[*n.ParentTempID], i)
	}

	less := func(group []int) func(a, b int) bool {
		return func(a, b int) bool {
			x, y := nodes[group[a]], nodes[group[b]]
			if x.SortOrder != y.SortOrder {
				return x.SortOrder < y.SortOrder
			}
			if tx, ty := strings.TrimSpace(x.Title), strings.TrimSpace(y.Title); tx != ty {
				return tx < ty
			}
			return x.TempID < y.TempID
		}
	}
	sort.SliceStable(roots, less(roots))
	for parent, group := range children {
		sort.SliceStable(group, less(group))
		children[parent] = group
	}

	records := make([]Record, 0, len(nodes))
	visited := make(map[string]bool, len(nodes))
	var walk func(idx int, parentKey *int)
	walk = func(idx int, parentKey *int) {
		n := nodes[idx]
		if visited[n.TempID] {
			return
		}
		visited[n.TempID] = true
		rec := record(n, len(records)+1, parentKey, idx)
		records = append(records, rec)
		key := rec.Key
		for _, child := range children[n.TempID] {
			walk(child, &key)
		}
	}
	for _, r := range roots {
		walk(r, nil)
	}

	if len(records) != len(nodes) {
		return nil, fmt.Errorf("contenthash: %d of %d nodes are not reachable from a root", len(nodes)-len(records), len(nodes))
	}
	return records, nil
}

// Hash returns the hex SHA-256 of the canonical records encoded as a JSON array.
func Hash(nodes []DraftNode) (string, error) {
	records, err := Canonicalize(nodes)
	if err != nil {
		return "", err
	}
	return HashRecords(records)
}

// HashRecords digests records that are already in canonical order.
func HashRecords(records []Record) (string, error) {
	data, err := json.Marshal(records)
	if err != nil {
		return "", fmt.Errorf("contenthash: encode: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

func record(n DraftNode, key int, parentKey *int, source int) Record {
	return Record{
		Key:           key,
		ParentKey:     parentKey,
		NodeType:      n.NodeType,
		Title:         strings.TrimSpace(n.Title),
		Description:   trimmedOrNil(n.Description),
		WeightPercent: FormatWeight(n.WeightPercent),
		TypeID:        n.TypeID,
		Unit:          trimmedOrNil(n.Unit),
		StartDate:     formatDate(n.StartDate),
		EndDate:       formatDate(n.EndDate),
		SortOrder:     n.SortOrder,
		Source:        source,
	}
}

// FormatWeight renders a weight as a fixed two-decimal string.
func FormatWeight(w float64) string {
	return strconv.FormatFloat(math.Round(w*100)/100, 'f', 2, 64)
}

// TruncateDate drops sub-second precision and normalises to UTC.
func TruncateDate(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC().Truncate(time.Second)
	return &v
}

func formatDate(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := TruncateDate(t).Format(time.RFC3339)
	return &s
}

func trimmedOrNil(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
