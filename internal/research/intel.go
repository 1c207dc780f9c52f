package research

import (
	"errors"
	"fmt"
	"strings"
)

// Intel is the normalized competitive-intelligence record produced by the
// structured extractor. It is validated as a whole unit; a record that
// fails validation is never persisted, partially or otherwise.
type Intel struct {
	Overview    Overview     `json:"overview"`
	Products    []Product    `json:"products"`
	Pricing     *Pricing     `json:"pricing,omitempty"`
	Positioning *Positioning `json:"positioning,omitempty"`
	Weaknesses  []Weakness   `json:"weaknesses"`
	Battlecard  Battlecard   `json:"battlecard"`
}

// Overview summarizes the organization.
type Overview struct {
	OrganizationName string `json:"organization_name"`
	Tagline          string `json:"tagline,omitempty"`
	Description      string `json:"description"`
	FoundedYear      int    `json:"founded_year,omitempty"`
	Headquarters     string `json:"headquarters,omitempty"`
	EmployeeCount    string `json:"employee_count,omitempty"`
	TargetMarket     string `json:"target_market"`
}

// Product describes one product or service line.
type Product struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	KeyFeatures []string `json:"key_features"`
}

// Pricing captures published pricing, when the site exposes any.
type Pricing struct {
	Model string        `json:"model,omitempty"`
	Tiers []PricingTier `json:"tiers"`
	Notes string        `json:"notes,omitempty"`
}

// PricingTier is one published plan.
type PricingTier struct {
	Name     string   `json:"name"`
	Price    string   `json:"price"`
	Features []string `json:"features"`
}

// Positioning captures how the competitor presents itself to the market.
type Positioning struct {
	ValueProposition   string   `json:"value_proposition,omitempty"`
	KeyDifferentiators []string `json:"key_differentiators"`
	TargetPersonas     []string `json:"target_personas"`
	MessagingThemes    []string `json:"messaging_themes"`
}

// Weakness is an exploitable gap; all three fields are required.
type Weakness struct {
	Area         string `json:"area"`
	Description  string `json:"description"`
	HowToExploit string `json:"how_to_exploit"`
}

// Battlecard holds the sales-facing talking points. WhyWeWin,
// TrapQuestions and ObjectionHandlers must be present in an extraction
// result, though any of them may be empty.
type Battlecard struct {
	WhyWeWin          []WinPoint         `json:"why_we_win"`
	TrapQuestions     []TrapQuestion     `json:"trap_questions"`
	ObjectionHandlers []ObjectionHandler `json:"objection_handlers"`
	Landmines         []Landmine         `json:"landmines,omitempty"`
}

// WinPoint is one reason-we-win with its talk track.
type WinPoint struct {
	Point     string `json:"point"`
	TalkTrack string `json:"talk_track"`
}

// TrapQuestion is a question that exposes a competitor gap.
type TrapQuestion struct {
	Question         string `json:"question"`
	WhyItWorks       string `json:"why_it_works"`
	ExpectedResponse string `json:"expected_response,omitempty"`
}

// ObjectionHandler pairs a prospect objection with the counter.
type ObjectionHandler struct {
	Objection string `json:"objection"`
	Response  string `json:"response"`
}

// Landmine is a topic to steer away from, with the pivot.
type Landmine struct {
	Topic   string `json:"topic"`
	Warning string `json:"warning"`
	Pivot   string `json:"pivot"`
}

// ErrInvalidIntel tags every validation failure returned by Validate.
var ErrInvalidIntel = errors.New("invalid intel")

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidIntel, fmt.Sprintf(format, args...))
}

func blank(s string) bool {
	return strings.TrimSpace(s) == ""
}

// Validate enforces the mandatory/optional field rules on the record.
// Presence of the mandatory battlecard arrays is checked at decode time,
// where missing and empty are still distinguishable.
func (i Intel) Validate() error {
	if blank(i.Overview.OrganizationName) {
		return invalid("overview.organization_name is required")
	}
	if blank(i.Overview.Description) {
		return invalid("overview.description is required")
	}
	if blank(i.Overview.TargetMarket) {
		return invalid("overview.target_market is required")
	}
	for n, p := range i.Products {
		if blank(p.Name) {
			return invalid("products[%d].name is required", n)
		}
		if blank(p.Description) {
			return invalid("products[%d].description is required", n)
		}
	}
	if i.Pricing != nil {
		for n, tier := range i.Pricing.Tiers {
			if blank(tier.Name) {
				return invalid("pricing.tiers[%d].name is required", n)
			}
		}
	}
	for n, w := range i.Weaknesses {
		switch {
		case blank(w.Area):
			return invalid("weaknesses[%d].area is required", n)
		case blank(w.Description):
			return invalid("weaknesses[%d].description is required", n)
		case blank(w.HowToExploit):
			return invalid("weaknesses[%d].how_to_exploit is required", n)
		}
	}
	return i.Battlecard.validate()
}

func (b Battlecard) validate() error {
	for n, w := range b.WhyWeWin {
		if blank(w.Point) || blank(w.TalkTrack) {
			return invalid("battlecard.why_we_win[%d] requires point and talk_track", n)
		}
	}
	for n, q := range b.TrapQuestions {
		if blank(q.Question) || blank(q.WhyItWorks) {
			return invalid("battlecard.trap_questions[%d] requires question and why_it_works", n)
		}
	}
	for n, o := range b.ObjectionHandlers {
		if blank(o.Objection) || blank(o.Response) {
			return invalid("battlecard.objection_handlers[%d] requires objection and response", n)
		}
	}
	for n, l := range b.Landmines {
		if blank(l.Topic) || blank(l.Warning) || blank(l.Pivot) {
			return invalid("battlecard.landmines[%d] requires topic, warning and pivot", n)
		}
	}
	return nil
}
