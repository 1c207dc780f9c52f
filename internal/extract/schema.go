package extract

import (
	"encoding/json"
	"fmt"

	"github.com/rivalscope/research/internal/research"
)

// IntelToolName is the forced tool the model must answer with.
const IntelToolName = "record_competitor_intel"

// intelSchemaProperties is the input schema of the intel tool. The model
// is constrained to this shape; anything it returns outside of it is a
// decode failure, not a partial result.
func intelSchemaProperties() map[string]any {
	requiredString := func(desc string) map[string]any {
		return map[string]any{"type": "string", "description": desc}
	}
	optionalString := func(desc string) map[string]any {
		return map[string]any{"type": "string", "description": desc}
	}
	stringArray := func(desc string) map[string]any {
		return map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "description": desc}
	}
	objectArray := func(desc string, properties map[string]any, required []string) map[string]any {
		return map[string]any{
			"type":        "array",
			"description": desc,
			"items": map[string]any{
				"type":       "object",
				"properties": properties,
				"required":   required,
			},
		}
	}

	return map[string]any{
		"overview": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"organization_name": requiredString("Official name of the organization."),
				"tagline":           optionalString("Short marketing tagline, if one is used."),
				"description":       requiredString("Two or three sentences on what the organization does."),
				"founded_year":      map[string]any{"type": "integer", "description": "Founding year, if stated."},
				"headquarters":      optionalString("Headquarters location, if stated."),
				"employee_count":    optionalString("Company size as stated, e.g. 51-200."),
				"target_market":     requiredString("Who the organization sells to."),
			},
			"required": []string{"organization_name", "description", "target_market"},
		},
		"products": objectArray("Product or service lines described on the site.",
			map[string]any{
				"name":         requiredString("Product name."),
				"description":  requiredString("What the product does."),
				"key_features": stringArray("Notable features called out on the site."),
			},
			[]string{"name", "description"},
		),
		"pricing": map[string]any{
			"type":        "object",
			"description": "Published pricing. Omit entirely when the site exposes none.",
			"properties": map[string]any{
				"model": optionalString("Pricing model, e.g. subscription, usage-based."),
				"tiers": objectArray("Published plans.",
					map[string]any{
						"name":     requiredString("Plan name."),
						"price":    optionalString("Price as published, including period."),
						"features": stringArray("What the plan includes."),
					},
					[]string{"name"},
				),
				"notes": optionalString("Caveats such as contact-sales tiers or discounts."),
			},
		},
		"positioning": map[string]any{
			"type":        "object",
			"description": "How the organization positions itself.",
			"properties": map[string]any{
				"value_proposition":   optionalString("The core value proposition in one sentence."),
				"key_differentiators": stringArray("Claimed differentiators."),
				"target_personas":     stringArray("Buyer personas the messaging targets."),
				"messaging_themes":    stringArray("Recurring marketing themes."),
			},
		},
		"weaknesses": objectArray("Gaps a competing seller can exploit.",
			map[string]any{
				"area":           requiredString("Area of the weakness, e.g. integrations."),
				"description":    requiredString("What the gap is."),
				"how_to_exploit": requiredString("How a competing seller uses it."),
			},
			[]string{"area", "description", "how_to_exploit"},
		),
		"battlecard": map[string]any{
			"type":        "object",
			"description": "Sales-facing talking points. All three core arrays must be present, empty when nothing applies.",
			"properties": map[string]any{
				"why_we_win": objectArray("Reasons a competing product wins.",
					map[string]any{
						"point":      requiredString("The winning point."),
						"talk_track": requiredString("How to deliver it in conversation."),
					},
					[]string{"point", "talk_track"},
				),
				"trap_questions": objectArray("Questions that expose the competitor's gaps.",
					map[string]any{
						"question":          requiredString("The question to ask."),
						"why_it_works":      requiredString("The gap it exposes."),
						"expected_response": optionalString("How the competitor typically answers."),
					},
					[]string{"question", "why_it_works"},
				),
				"objection_handlers": objectArray("Responses to objections favoring the competitor.",
					map[string]any{
						"objection": requiredString("The prospect's objection."),
						"response":  requiredString("The counter."),
					},
					[]string{"objection", "response"},
				),
				"landmines": objectArray("Topics to avoid, with the pivot.",
					map[string]any{
						"topic":   requiredString("The topic to steer away from."),
						"warning": requiredString("Why it is dangerous."),
						"pivot":   requiredString("Where to take the conversation instead."),
					},
					[]string{"topic", "warning", "pivot"},
				),
			},
			"required": []string{"why_we_win", "trap_questions", "objection_handlers"},
		},
	}
}

func intelSchemaRequired() []string {
	return []string{"overview", "battlecard"}
}

// battlecardProbe distinguishes absent arrays from empty ones before the
// zero values blur them away.
type battlecardProbe struct {
	Battlecard struct {
		WhyWeWin          json.RawMessage `json:"why_we_win"`
		TrapQuestions     json.RawMessage `json:"trap_questions"`
		ObjectionHandlers json.RawMessage `json:"objection_handlers"`
	} `json:"battlecard"`
}

// DecodeIntel parses the tool input emitted by the model and validates it
// into a normalized record. Missing mandatory battlecard arrays fail the
// decode even though empty ones are fine.
func DecodeIntel(raw []byte) (research.Intel, error) {
	var probe battlecardProbe
	if err := json.Unmarshal(raw, &probe); err != nil {
		return research.Intel{}, fmt.Errorf("%w: malformed tool input: %v", research.ErrInvalidIntel, err)
	}
	for _, field := range []struct {
		name string
		raw  json.RawMessage
	}{
		{"why_we_win", probe.Battlecard.WhyWeWin},
		{"trap_questions", probe.Battlecard.TrapQuestions},
		{"objection_handlers", probe.Battlecard.ObjectionHandlers},
	} {
		if len(field.raw) == 0 || string(field.raw) == "null" {
			return research.Intel{}, fmt.Errorf("%w: battlecard.%s is missing", research.ErrInvalidIntel, field.name)
		}
	}

	var intel research.Intel
	if err := json.Unmarshal(raw, &intel); err != nil {
		return research.Intel{}, fmt.Errorf("%w: malformed tool input: %v", research.ErrInvalidIntel, err)
	}
	if err := intel.Validate(); err != nil {
		return research.Intel{}, err
	}
	return intel, nil
}
