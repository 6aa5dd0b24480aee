package gantt

import (
	"reflect"
	"testing"
	"time"
)

func TestExtractDependenciesOneEntryPerItem(t *testing.T) {
	items := []ScheduledItem{
		{ID: "a", DependsOn: []string{"b", "ghost"}},
		{ID: "b"},
		{ID: "c", DependsOn: []string{}},
	}

	adj := ExtractDependencies(items)

	if len(adj) != len(items) {
		t.Fatalf("expected %d entries, got %d", len(items), len(adj))
	}
	if !reflect.DeepEqual(adj["a"], []string{"b", "ghost"}) {
		t.Fatalf("dangling ids must be retained, got %v", adj["a"])
	}
	for _, id := range []string{"b", "c"} {
		deps, ok := adj[id]
		if !ok {
			t.Fatalf("missing entry for %s", id)
		}
		if deps == nil || len(deps) != 0 {
			t.Fatalf("entry for %s must be an empty slice, got %#v", id, deps)
		}
	}
}

func TestExtractDependenciesCopiesSlices(t *testing.T) {
	src := []string{"x"}
	items := []ScheduledItem{{ID: "a", DependsOn: src}}

	adj := ExtractDependencies(items)
	src[0] = "mutated"

	if adj["a"][0] != "x" {
		t.Fatal("adjacency map must not alias the input slice")
	}
}

func TestScheduledItemsFromTasksSubstitutesMissingDates(t *testing.T) {
	start := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	tasks := taskFixtures(start)

	items := ScheduledItemsFromTasks(tasks)

	if len(items) != 3 {
		t.Fatalf("expected 3 schedulable items, got %d", len(items))
	}
	for _, it := range items {
		if it.StartDate.IsZero() || it.EndDate.IsZero() {
			t.Fatalf("item %s has an unset date: %+v", it.ID, it)
		}
	}
	if !items[1].EndDate.Equal(items[1].StartDate) {
		t.Fatalf("start-only task should render as a one-day bar, got %+v", items[1])
	}
}
