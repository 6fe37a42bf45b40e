package quest

// IsReady returns true if step may start now: it must be pending and every
// id in DependsOn must resolve to a complete step in allSteps. A dependency
// id that is missing from allSteps makes the step not ready.
func IsReady(step Step, allSteps []Step) bool {
	if step.Status != StepPending {
		return false
	}
	if len(step.DependsOn) == 0 {
		return true
	}
	byID := make(map[string]StepStatus, len(allSteps))
	for _, s := range allSteps {
		byID[s.ID] = s.Status
	}
	for _, depID := range step.DependsOn {
		status, ok := byID[depID]
		if !ok || status != StepComplete {
			return false
		}
	}
	return true
}

// ReadySteps returns the ready steps in quest order.
func (q *Quest) ReadySteps() []Step {
	var ready []Step
	for _, s := range q.Steps {
		if IsReady(s, q.Steps) {
			ready = append(ready, s)
		}
	}
	return ready
}

// FirstReady returns the first ready step in quest order.
func (q *Quest) FirstReady() (Step, bool) {
	for _, s := range q.Steps {
		if IsReady(s, q.Steps) {
			return s, true
		}
	}
	return Step{}, false
}

// AllComplete reports whether every step is complete. A quest with no steps
// is complete.
func (q *Quest) AllComplete() bool {
	for _, s := range q.Steps {
		if s.Status != StepComplete {
			return false
		}
	}
	return true
}

// IncompleteSteps returns every step whose status is not complete, in quest order.
func (q *Quest) IncompleteSteps() []Step {
	var out []Step
	for _, s := range q.Steps {
		if s.Status != StepComplete {
			out = append(out, s)
		}
	}
	return out
}

// FindStep returns the step with the given id.
func (q *Quest) FindStep(id string) (Step, bool) {
	for _, s := range q.Steps {
		if s.ID == id {
			return s, true
		}
	}
	return Step{}, false
}

// Summarize counts steps by status.
func (q *Quest) Summarize() Summary {
	sum := Summary{Total: len(q.Steps)}
	for _, s := range q.Steps {
		switch s.Status {
		case StepPending:
			sum.Pending++
		case StepInProgress:
			sum.InProgress++
		case StepPartiallyComplete:
			sum.PartiallyComplete++
		case StepComplete:
			sum.Complete++
		case StepBlocked:
			sum.Blocked++
		case StepFailed:
			sum.Failed++
		}
	}
	return sum
}
