package plan

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/zulandar/kpiyard/internal/contenthash"
	"github.com/zulandar/kpiyard/internal/identity"
	"github.com/zulandar/kpiyard/internal/models"
	"github.com/zulandar/kpiyard/internal/notify"
	"github.com/zulandar/kpiyard/internal/testutil"
	"gorm.io/gorm"
)

var (
	evaluatee = identity.Actor{EmployeeID: "emp"}
	evaluator = identity.Actor{EmployeeID: "mgr"}
	admin     = identity.Actor{EmployeeID: "hr", IsAdmin: true}
	stranger  = identity.Actor{EmployeeID: "other"}
)

var fixedNow = time.Date(2026, 7, 15, 9, 30, 0, 0, time.UTC)

type captured struct {
	mu     sync.Mutex
	events []notify.Event
}

func (c *captured) Notify(_ context.Context, ev notify.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	return nil
}

type env struct {
	t          *testing.T
	db         *gorm.DB
	svc        *Service
	sink       *captured
	notes      *notify.Dispatcher
	cycle      *models.Cycle
	assignment *models.Assignment
}

// delivered waits for pending notifications and returns everything the sink saw.
func (e *env) delivered() []notify.Event {
	e.notes.Wait()
	e.sink.mu.Lock()
	defer e.sink.mu.Unlock()
	return append([]notify.Event(nil), e.sink.events...)
}

func (e *env) deliveredTypes() []string {
	var out []string
	for _, ev := range e.delivered() {
		out = append(out, ev.Type)
	}
	return out
}

func newEnv(t *testing.T, opts ...testutil.CycleOption) *env {
	t.Helper()
	gdb := testutil.OpenDB(t)
	testutil.SeedKpiTypes(t, gdb)
	c := testutil.NewCycle(t, gdb, opts...)
	a := testutil.NewAssignment(t, gdb, c.ID, evaluator.EmployeeID, evaluatee.EmployeeID)
	sink := &captured{}
	notes := notify.NewDispatcher(sink, time.Second)
	t.Cleanup(notes.Wait)
	svc := NewService(gdb, notes)
	svc.Now = func() time.Time { return fixedNow }
	return &env{t: t, db: gdb, svc: svc, sink: sink, notes: notes, cycle: c, assignment: a}
}

func (e *env) ensure() *models.Plan {
	e.t.Helper()
	p, _, err := e.svc.EnsurePlan(context.Background(), evaluatee, e.assignment.ID)
	if err != nil {
		e.t.Fatalf("EnsurePlan: %v", err)
	}
	return p
}

func (e *env) save(actor identity.Actor, planID string, nodes []contenthash.DraftNode) SaveResult {
	e.t.Helper()
	res, err := e.svc.SaveDraft(context.Background(), actor, planID, nodes, "")
	if err != nil {
		e.t.Fatalf("SaveDraft: %v", err)
	}
	return res
}

// confirmed drives a fresh plan through save, request and confirm.
func (e *env) confirmed() *models.Plan {
	e.t.Helper()
	ctx := context.Background()
	p := e.ensure()
	e.save(evaluatee, p.ID, tree(60, 40))
	if err := e.svc.RequestConfirm(ctx, evaluatee, p.ID); err != nil {
		e.t.Fatalf("RequestConfirm: %v", err)
	}
	if err := e.svc.Confirm(ctx, evaluator, p.ID); err != nil {
		e.t.Fatalf("Confirm: %v", err)
	}
	return e.plan(p.ID)
}

func (e *env) plan(id string) *models.Plan {
	e.t.Helper()
	var p models.Plan
	testutil.Reload(e.t, e.db, &p, id)
	return &p
}

func (e *env) reloadAssignment() *models.Assignment {
	e.t.Helper()
	var a models.Assignment
	testutil.Reload(e.t, e.db, &a, e.assignment.ID)
	return &a
}

func (e *env) nodes(planID string) []models.Node {
	e.t.Helper()
	var nodes []models.Node
	e.db.Where("plan_id = ?", planID).Order("sort_order, title").Find(&nodes)
	return nodes
}

func sp(s string) *string { return &s }

func tp(t time.Time) *time.Time { return &t }

// tree builds root groups with the given weights, each holding one
// quantitative item weighted 100.
func tree(rootWeights ...float64) []contenthash.DraftNode {
	start := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC)
	var nodes []contenthash.DraftNode
	for i, w := range rootWeights {
		gid := string(rune('a'+i)) + "-group"
		nodes = append(nodes,
			contenthash.DraftNode{TempID: gid, NodeType: models.NodeGroup, Title: "Group " + gid, WeightPercent: w, SortOrder: i},
			contenthash.DraftNode{TempID: gid + "-item", ParentTempID: sp(gid), NodeType: models.NodeItem, Title: "Item " + gid,
				WeightPercent: 100, TypeID: sp(testutil.QuantitativeTypeID), StartDate: tp(start), EndDate: tp(end)},
		)
	}
	return nodes
}
