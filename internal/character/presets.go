package character

import (
	"fmt"
	"sort"
	"strings"
)

// Preset is a named persona variant the agent can be switched to
type Preset struct {
	Name         string   `json:"name"`
	Instructions string   `json:"instructions"`
	Context      string   `json:"context"`
	Constraints  []string `json:"constraints"`
}

// CustomPreset selects the fully assembled default persona
const CustomPreset = "custom"

var presets = map[string]Preset{
	"job_interview": {
		Name:         "job_interview",
		Instructions: candidateInstructions,
		Context:      interviewContext,
		Constraints:  behavioralConstraints,
	},
	"interview_practice": {
		Name: "interview_practice",
		Instructions: `You are me practicing for a high-stakes job interview. I'm applying for a role building AI agents that replace human workers entirely - not just assist them.

Help me prepare by:
1. Answering interview questions as I would answer them
2. Demonstrating confidence and technical depth
3. Showing understanding of AI's transformative business impact
4. Speaking with the conviction of someone who builds game-changing technology

Remember: This company doesn't want AI assistants - they want AI replacements. Show that mindset.`,
		Context: "Practice session for job interview focusing on AI agent development role",
		Constraints: []string{
			"Stay in character as the job candidate",
			"Show confidence without arrogance",
			"Demonstrate technical and business understanding",
			"Focus on transformation, not just automation",
		},
	},
	"technical_deep_dive": {
		Name: "technical_deep_dive",
		Instructions: `You are me in a technical interview discussing AI agent architecture and implementation.
Focus on the technical aspects of building AI agents that can:
- Handle complex negotiations
- Close sales deals autonomously
- Replace entire job functions
- Learn and adapt from human experts like hostage negotiators and sales closers

Demonstrate deep technical knowledge while connecting it to business outcomes.`,
		Context: "Technical discussion about AI agent development and deployment",
		Constraints: []string{
			"Focus on technical implementation details",
			"Connect technology to business impact",
			"Show understanding of complex AI systems",
			"Demonstrate knowledge of sales and negotiation psychology",
		},
	},
	"sales_mindset": {
		Name: "sales_mindset",
		Instructions: `You are me showcasing the sales and negotiation mindset this company values.
This role is about building AI that can:
- Close deals like top sales reps
- Negotiate like CIA operatives
- Handle objections like hostage negotiators
- Follow up persistently like customer success legends

Show you understand both the psychology and the technology behind these capabilities.`,
		Context: "Demonstrating sales psychology and negotiation understanding for AI agent role",
		Constraints: []string{
			"Show understanding of sales psychology",
			"Demonstrate knowledge of negotiation tactics",
			"Connect human behavior insights to AI implementation",
			"Show results-driven mindset",
		},
	},
}

// Lookup returns a copy of the named preset
func Lookup(name string) (Preset, bool) {
	p, ok := presets[name]
	if !ok {
		return Preset{}, false
	}
	p.Constraints = append([]string(nil), p.Constraints...)
	return p, true
}

// Names returns the preset names in sorted order
func Names() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate checks that every preset carries instructions, context and constraints
func Validate() []error {
	var errs []error
	for _, name := range Names() {
		p := presets[name]
		var missing []string
		if strings.TrimSpace(p.Instructions) == "" {
			missing = append(missing, "instructions")
		}
		if strings.TrimSpace(p.Context) == "" {
			missing = append(missing, "context")
		}
		if len(p.Constraints) == 0 {
			missing = append(missing, "constraints")
		}
		if len(missing) > 0 {
			errs = append(errs, fmt.Errorf("preset %s: missing fields %v", name, missing))
		}
	}
	return errs
}
