package session

import (
	"fmt"
	"strings"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewIn(t.TempDir(), "test")
	if err != nil {
		t.Fatalf("NewIn: %v", err)
	}
	return s
}

func TestAppendMessageEvictsOldest(t *testing.T) {
	for _, n := range []int{1, HistoryLimit, HistoryLimit + 1, 3*HistoryLimit + 7} {
		t.Run(fmt.Sprintf("%d turns", n), func(t *testing.T) {
			s := newTestStore(t)
			for i := 0; i < n; i++ {
				s.AppendMessage(RoleUser, fmt.Sprintf("msg %d", i))
			}

			h := s.History()
			want := min(n, HistoryLimit)
			if len(h) != want {
				t.Fatalf("len(History()) = %d, want %d", len(h), want)
			}
			first := n - want
			for i, turn := range h {
				if turn.Content != fmt.Sprintf("msg %d", first+i) {
					t.Fatalf("History()[%d] = %q, want msg %d", i, turn.Content, first+i)
				}
			}
		})
	}
}

func TestHistoryIsACopy(t *testing.T) {
	s := newTestStore(t)
	s.AppendMessage(RoleUser, "original")

	h := s.History()
	h[0].Content = "mutated"

	if got := s.History()[0].Content; got != "original" {
		t.Errorf("internal history was mutated: %q", got)
	}
}

func TestAppendMessageTimestamps(t *testing.T) {
	s := newTestStore(t)
	fixed := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	turn := s.AppendMessage(RoleSystem, "hello")
	if !turn.CreatedAt.Equal(fixed) || turn.Role != RoleSystem {
		t.Errorf("unexpected turn %+v", turn)
	}
}

func TestRenderContextBlock(t *testing.T) {
	s := newTestStore(t)

	empty := s.RenderContextBlock()
	for _, want := range []string{"[PROJECT STATE]", "Active Task: None", "No pending tasks.", "[RECENT HISTORY]"} {
		if !strings.Contains(empty, want) {
			t.Errorf("empty block missing %q:\n%s", want, empty)
		}
	}

	s.SetPlan([]PlanTask{
		{ID: "1", Title: "Scaffold API", Status: StatusCompleted},
		{ID: "2", Title: "Write handlers", Status: StatusActive},
		{ID: "3", Title: "Add tests", Status: StatusPending},
		{ID: "4", Title: "Document", Status: StatusPending},
	})
	for i := 0; i < 7; i++ {
		s.AppendMessage(RoleAssistant, fmt.Sprintf("turn %d", i))
	}

	block := s.RenderContextBlock()
	for _, want := range []string{
		"Active Task: Write handlers",
		"Pending Tasks:\n- Add tests\n- Document\n",
		"ASSISTANT: turn 6",
		"ASSISTANT: turn 2",
	} {
		if !strings.Contains(block, want) {
			t.Errorf("block missing %q:\n%s", want, block)
		}
	}
	if strings.Contains(block, "turn 1") || strings.Contains(block, "Scaffold API") {
		t.Errorf("block contains stale content:\n%s", block)
	}

	s.AppendMessage(RoleUser, "latest")
	if !strings.Contains(s.RenderContextBlock(), "USER: latest") {
		t.Error("context block was not recomputed after append")
	}
}

func TestPlanIsReplacedWholesale(t *testing.T) {
	s := newTestStore(t)
	tasks := []PlanTask{NewTask("a"), NewTask("b")}
	s.SetPlan(tasks)
	tasks[0].Title = "mutated"

	plan := s.Plan()
	if len(plan) != 2 || plan[0].Title != "a" || plan[0].ID == "" || plan[0].Status != StatusPending {
		t.Errorf("unexpected plan %+v", plan)
	}
	s.SetPlan(nil)
	if len(s.Plan()) != 0 {
		t.Error("SetPlan(nil) should clear the plan")
	}
	if !StatusActive.Valid() || TaskStatus("blocked").Valid() {
		t.Error("TaskStatus.Valid mismatch")
	}
}

func TestSaveAndLoad(t *testing.T) {
	dir := t.TempDir()
	s, err := NewIn(dir, "persisted")
	if err != nil {
		t.Fatal(err)
	}
	s.AppendMessage(RoleUser, "Add a README")
	s.AppendMessage(RoleAssistant, `<write_file path="README.md">Hello</write_file>`)
	s.SetPlan([]PlanTask{{ID: "1", Title: "Docs", Status: StatusActive}})
	if err := s.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := LoadFrom(dir, "persisted")
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if loaded.Name != "persisted" || loaded.Len() != 2 || loaded.Plan()[0].Title != "Docs" {
		t.Errorf("unexpected loaded store: name=%q len=%d plan=%+v", loaded.Name, loaded.Len(), loaded.Plan())
	}
	if _, err := LoadFrom(dir, "missing"); err == nil {
		t.Error("expected error loading a missing session")
	}
}
