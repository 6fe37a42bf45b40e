// Package quest models a quest (an ordered set of dependent steps), decides
// which steps are ready to run, and persists quest documents on disk.
//
// A step is ready when it is pending and every step it depends on is
// complete. The orchestrator always dispatches the first ready step in quest
// order; there is no priority scheme.
//
// Quests are stored as a single JSON document. [Store] never writes a quest
// partially: each step update reads the whole file, changes one step, and
// writes the whole file back through a temp file and rename while holding an
// flock(2) on a sibling lock file.
//
// Usage:
//
//	store := quest.NewStore()
//	q, err := store.Load("quest.json")
//	if step, ok := q.FirstReady(); ok {
//	    status := quest.StepInProgress
//	    err = store.UpdateStep("quest.json", step.ID, quest.StepUpdate{Status: &status})
//	}
package quest
