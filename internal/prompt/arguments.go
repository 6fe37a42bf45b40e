package prompt

import (
	"strings"

	"github.com/Iron-Ham/questline/internal/agent"
)

// ContinuationHeader introduces continuation context in a rendered prompt.
const ContinuationHeader = "## Continuation"

// FormatArguments renders the role-specific assignment text for a work unit.
// Roles without a dedicated layout get the codeweaver layout.
func FormatArguments(unit agent.WorkUnit) string {
	var b strings.Builder
	step := unit.Step

	switch unit.Role {
	case agent.RolePathseeker:
		line(&b, "Quest ID", unit.QuestID)
		line(&b, "Step ID", step.ID)
		if step.Name != "" {
			line(&b, "Step", step.Name)
		}

	case agent.RoleSiegemaster:
		line(&b, "Quest ID", unit.QuestID)
		line(&b, "Step ID", step.ID)
		line(&b, "Step", step.Name)
		list(&b, "Observables", step.ObservablesSatisfied)

	case agent.RoleLawbringer:
		line(&b, "Step ID", step.ID)
		line(&b, "Step", step.Name)
		list(&b, "Files to Review", append(append([]string{}, step.FilesToCreate...), step.FilesToModify...))
		line(&b, "Quest ID", unit.QuestID)

	case agent.RoleSpiritmender:
		line(&b, "Step ID", step.ID)
		list(&b, "Files", append(append([]string{}, step.FilesToCreate...), step.FilesToModify...))
		if step.Description != "" {
			b.WriteString("Errors:\n")
			b.WriteString(step.Description)
			b.WriteString("\n")
		}
		b.WriteString("Fix these errors, then run the verification commands again.\n")
		line(&b, "Quest ID", unit.QuestID)

	default:
		line(&b, "Step ID", step.ID)
		line(&b, "Step", step.Name)
		line(&b, "Description", step.Description)
		if step.ExportName != "" {
			line(&b, "Export Name", step.ExportName)
		}
		list(&b, "Files to Create", step.FilesToCreate)
		list(&b, "Files to Modify", step.FilesToModify)
		list(&b, "Input Contracts", step.InputContracts)
		list(&b, "Output Contracts", step.OutputContracts)
		list(&b, "Observables", step.ObservablesSatisfied)
		line(&b, "Quest ID", unit.QuestID)
	}

	if unit.FollowupReason != "" {
		line(&b, "Followup Reason", unit.FollowupReason)
	}
	if unit.FollowupContext != "" {
		b.WriteString("Followup Context:\n")
		b.WriteString(unit.FollowupContext)
		b.WriteString("\n")
	}

	return strings.TrimRight(b.String(), "\n")
}

func line(b *strings.Builder, label, value string) {
	b.WriteString(label)
	b.WriteString(": ")
	b.WriteString(value)
	b.WriteString("\n")
}

// list writes a labelled bullet list. Empty lists are omitted.
func list(b *strings.Builder, label string, items []string) {
	if len(items) == 0 {
		return
	}
	b.WriteString(label)
	b.WriteString(":\n")
	for _, item := range items {
		b.WriteString("  - ")
		b.WriteString(item)
		b.WriteString("\n")
	}
}
