package character

import (
	"fmt"
	"strings"
)

const scopeReminder = "Remember: Stay completely within this defined role and expertise. If asked about topics outside your scope, politely redirect the conversation back to your areas of expertise."

// AssembleDefault combines the base persona, its context, the constraints and
// the expertise areas into one prompt. Constraints always precede expertise.
func AssembleDefault() string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(candidateInstructions))
	b.WriteString("\n\nADDITIONAL CONTEXT:\n")
	b.WriteString(strings.TrimSpace(interviewContext))
	b.WriteString("\n\nBEHAVIORAL CONSTRAINTS:\n")
	b.WriteString(bulleted(behavioralConstraints))
	b.WriteString("\n\nYOUR EXPERTISE AREAS:\n")
	b.WriteString(bulleted(expertiseAreas))
	b.WriteString("\n\n")
	b.WriteString(scopeReminder)
	return b.String()
}

// PresetInstructions renders a single preset. Unknown names fall back to
// AssembleDefault.
func PresetInstructions(name string) string {
	p, ok := presets[name]
	if !ok {
		return AssembleDefault()
	}

	return strings.TrimSpace(fmt.Sprintf(`%s

CONTEXT: %s

BEHAVIORAL CONSTRAINTS:
%s

Stay completely within this defined role. Do not deviate from these instructions.`,
		strings.TrimSpace(p.Instructions), strings.TrimSpace(p.Context), bulleted(p.Constraints)))
}

// ResolveInstructions returns the persona text for a preset name. It never
// fails: "custom" and unrecognized names resolve to AssembleDefault.
func ResolveInstructions(name string) string {
	if name == CustomPreset {
		return AssembleDefault()
	}
	return PresetInstructions(name)
}

func bulleted(items []string) string {
	lines := make([]string, 0, len(items))
	for _, item := range items {
		lines = append(lines, "- "+item)
	}
	return strings.Join(lines, "\n")
}
