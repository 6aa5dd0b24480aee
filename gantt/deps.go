package gantt

// ExtractDependencies builds the task → dependsOn adjacency map used to draw
// dependency arrows. Every input item gets exactly one entry, an empty slice
// when it depends on nothing. Ids that reference no known item are kept
// as-is: dangling references are rendering hints, not errors, and no cycle
// detection or topological ordering happens here.
func ExtractDependencies(items []ScheduledItem) map[string][]string {
	adj := make(map[string][]string, len(items))
	for _, it := range items {
		deps := make([]string, len(it.DependsOn))
		copy(deps, it.DependsOn)
		adj[it.ID] = deps
	}
	return adj
}
