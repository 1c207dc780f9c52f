package research

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validIntel() Intel {
	return Intel{
		Overview: Overview{
			OrganizationName: "Acme Analytics",
			Description:      "Product analytics for B2B SaaS.",
			TargetMarket:     "Mid-market SaaS companies",
		},
		Products: []Product{
			{Name: "Acme Core", Description: "Event analytics platform.", KeyFeatures: []string{"funnels"}},
		},
		Pricing: &Pricing{
			Model: "subscription",
			Tiers: []PricingTier{{Name: "Growth", Price: "$99/mo"}},
		},
		Weaknesses: []Weakness{
			{Area: "integrations", Description: "Few native connectors.", HowToExploit: "Lead with our catalog."},
		},
		Battlecard: Battlecard{
			WhyWeWin:          []WinPoint{{Point: "Faster setup", TalkTrack: "Live in a day."}},
			TrapQuestions:     []TrapQuestion{{Question: "How long is onboarding?", WhyItWorks: "Theirs takes weeks."}},
			ObjectionHandlers: []ObjectionHandler{{Objection: "They are cheaper.", Response: "Total cost favors us."}},
		},
	}
}

func TestIntelValidateOK(t *testing.T) {
	require.NoError(t, validIntel().Validate())
}

func TestIntelValidateMinimal(t *testing.T) {
	// Only the overview essentials are mandatory; everything else may be
	// empty or absent.
	intel := Intel{Overview: Overview{
		OrganizationName: "Acme",
		Description:      "Does things.",
		TargetMarket:     "SMB",
	}}
	require.NoError(t, intel.Validate())
}

func TestIntelValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Intel)
	}{
		{"missing organization name", func(i *Intel) { i.Overview.OrganizationName = " " }},
		{"missing description", func(i *Intel) { i.Overview.Description = "" }},
		{"missing target market", func(i *Intel) { i.Overview.TargetMarket = "" }},
		{"product without name", func(i *Intel) { i.Products[0].Name = "" }},
		{"product without description", func(i *Intel) { i.Products[0].Description = "" }},
		{"tier without name", func(i *Intel) { i.Pricing.Tiers[0].Name = "" }},
		{"weakness without exploit", func(i *Intel) { i.Weaknesses[0].HowToExploit = "" }},
		{"win point without talk track", func(i *Intel) { i.Battlecard.WhyWeWin[0].TalkTrack = "" }},
		{"trap question without rationale", func(i *Intel) { i.Battlecard.TrapQuestions[0].WhyItWorks = "" }},
		{"objection without response", func(i *Intel) { i.Battlecard.ObjectionHandlers[0].Response = "" }},
		{"landmine without pivot", func(i *Intel) {
			i.Battlecard.Landmines = []Landmine{{Topic: "uptime", Warning: "sore spot"}}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			intel := validIntel()
			tt.mutate(&intel)
			err := intel.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidIntel)
		})
	}
}
