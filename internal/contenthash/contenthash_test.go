package contenthash

import (
	"testing"
	"time"
)

func sp(s string) *string { return &s }

func tp(t time.Time) *time.Time { return &t }

// sampleTree builds a two-group tree using the given temp-id prefix.
func sampleTree(prefix string) []DraftNode {
	start := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC)
	g1, g2 := prefix+"g1", prefix+"g2"
	return []DraftNode{
		{TempID: prefix + "i3", ParentTempID: sp(g2), NodeType: "ITEM", Title: "Hire", WeightPercent: 100, TypeID: sp("t"), StartDate: tp(start), EndDate: tp(end)},
		{TempID: g1, NodeType: "GROUP", Title: "Delivery", WeightPercent: 60, SortOrder: 0},
		{TempID: g2, NodeType: "GROUP", Title: "People", WeightPercent: 40, SortOrder: 1},
		{TempID: prefix + "i1", ParentTempID: sp(g1), NodeType: "ITEM", Title: "Ship", WeightPercent: 70, TypeID: sp("t"), StartDate: tp(start), EndDate: tp(end), SortOrder: 0},
		{TempID: prefix + "i2", ParentTempID: sp(g1), NodeType: "ITEM", Title: "Fix", WeightPercent: 30, TypeID: sp("t"), StartDate: tp(start), EndDate: tp(end), SortOrder: 1},
	}
}

func mustHash(t *testing.T, nodes []DraftNode) string {
	t.Helper()
	h, err := Hash(nodes)
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	return h
}

func TestHash_IgnoresTempIDs(t *testing.T) {
	a := mustHash(t, sampleTree("a-"))
	b := mustHash(t, sampleTree("zz-"))
	if a != b {
		t.Errorf("hashes differ for renamed temp ids: %s vs %s", a, b)
	}
	if len(a) != 64 {
		t.Errorf("hash length = %d, want 64 hex chars", len(a))
	}
}

func TestHash_IgnoresInputOrder(t *testing.T) {
	tree := sampleTree("x")
	reversed := make([]DraftNode, len(tree))
	for i, n := range tree {
		reversed[len(tree)-1-i] = n
	}
	if mustHash(t, tree) != mustHash(t, reversed) {
		t.Error("hash depends on input slice order")
	}
}

func TestHash_Changes(t *testing.T) {
	base := mustHash(t, sampleTree("x"))
	tests := []struct {
		name   string
		mutate func([]DraftNode)
	}{
		{"weight by 0.01", func(n []DraftNode) { n[3].WeightPercent = 69.99; n[4].WeightPercent = 30.01 }},
		{"title", func(n []DraftNode) { n[0].Title = "Hire two" }},
		{"description", func(n []DraftNode) { n[0].Description = sp("backend") }},
		{"unit", func(n []DraftNode) { n[0].Unit = sp("people") }},
		{"end date", func(n []DraftNode) { d := n[0].EndDate.Add(time.Second); n[0].EndDate = &d }},
		{"type", func(n []DraftNode) { n[0].TypeID = sp("other") }},
		{"sibling order", func(n []DraftNode) { n[3].SortOrder = 2 }},
		{"structure", func(n []DraftNode) { n[4].ParentTempID = sp("xg2") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tree := sampleTree("x")
			tt.mutate(tree)
			if mustHash(t, tree) == base {
				t.Error("hash did not change")
			}
		})
	}
}

func TestHash_Normalises(t *testing.T) {
	base := mustHash(t, sampleTree("x"))

	tree := sampleTree("x")
	tree[0].Title = "  Hire  "
	tree[0].Description = sp("   ")
	d := tree[0].StartDate.Add(400 * time.Millisecond)
	tree[0].StartDate = &d
	if got := mustHash(t, tree); got != base {
		t.Error("whitespace, blank description or sub-second dates changed the hash")
	}

	local := time.FixedZone("UTC+7", 7*3600)
	tree = sampleTree("x")
	e := tree[0].EndDate.In(local)
	tree[0].EndDate = &e
	if got := mustHash(t, tree); got != base {
		t.Error("time zone of an equal instant changed the hash")
	}
}

func TestCanonicalize_PreOrderKeys(t *testing.T) {
	records, err := Canonicalize(sampleTree("x"))
	if err != nil {
		t.Fatalf("Canonicalize: %v", err)
	}
	wantTitles := []string{"Delivery", "Ship", "Fix", "People", "Hire"}
	wantParents := []int{0, 1, 1, 0, 4}
	for i, r := range records {
		if r.Key != i+1 {
			t.Errorf("records[%d].Key = %d, want %d", i, r.Key, i+1)
		}
		if r.Title != wantTitles[i] {
			t.Errorf("records[%d].Title = %q, want %q", i, r.Title, wantTitles[i])
		}
		parent := 0
		if r.ParentKey != nil {
			parent = *r.ParentKey
		}
		if parent != wantParents[i] {
			t.Errorf("records[%d].ParentKey = %d, want %d", i, parent, wantParents[i])
		}
	}
	if records[1].WeightPercent != "70.00" {
		t.Errorf("WeightPercent = %q, want 70.00", records[1].WeightPercent)
	}
	if records[1].Source != 3 {
		t.Errorf("Source = %d, want 3", records[1].Source)
	}
}

func TestCanonicalize_TieBreaks(t *testing.T) {
	nodes := []DraftNode{
		{TempID: "b", NodeType: "ITEM", Title: "Same"},
		{TempID: "a", NodeType: "ITEM", Title: "Same"},
		{TempID: "c", NodeType: "ITEM", Title: " Alpha"},
	}
	records, err := Canonicalize(nodes)
	if err != nil {
		t.Fatalf("Canonicalize: %v", err)
	}
	got := []int{records[0].Source, records[1].Source, records[2].Source}
	want := []int{2, 1, 0}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
}

func TestCanonicalize_Unreachable(t *testing.T) {
	tests := map[string][]DraftNode{
		"orphan": {
			{TempID: "a", NodeType: "GROUP", Title: "A"},
			{TempID: "b", ParentTempID: sp("missing"), NodeType: "ITEM", Title: "B"},
		},
		"cycle": {
			{TempID: "a", ParentTempID: sp("b"), NodeType: "GROUP", Title: "A"},
			{TempID: "b", ParentTempID: sp("a"), NodeType: "GROUP", Title: "B"},
		},
		"duplicate temp id": {
			{TempID: "a", NodeType: "GROUP", Title: "A"},
			{TempID: "a", NodeType: "GROUP", Title: "B"},
		},
	}
	for name, nodes := range tests {
		if _, err := Canonicalize(nodes); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestFormatWeight(t *testing.T) {
	tests := map[float64]string{0: "0.00", 12.5: "12.50", 33.333: "33.33", 100: "100.00", 0.005: "0.01"}
	for in, want := range tests {
		if got := FormatWeight(in); got != want {
			t.Errorf("FormatWeight(%v) = %q, want %q", in, got, want)
		}
	}
}
