package research

import (
	"net/url"
	"regexp"
)

// MaxCandidatePages caps how many pages one job may acquire, homepage
// included.
const MaxCandidatePages = 5

// MaxMappedLinks caps how many links a single map call may return.
const MaxMappedLinks = 50

// categoryRule pairs a page category with its path pattern and a cap on
// how many matches the category may contribute. Rules are evaluated in
// order and the first matching category wins.
type categoryRule struct {
	category PageCategory
	pattern  *regexp.Regexp
	cap      int
}

var categoryRules = []categoryRule{
	{CategoryPricing, regexp.MustCompile(`(?i)pricing|plans|packages|cost`), 2},
	{CategoryFeatures, regexp.MustCompile(`(?i)features|product|solutions|platform|capabilities`), 2},
	{CategoryAbout, regexp.MustCompile(`(?i)about|company|team|story`), 1},
}

// SelectCandidates classifies mapped links and returns the ordered
// candidate page list: homepage first, then pricing, features and about
// matches, truncated to MaxCandidatePages. Links on a different host and
// duplicates are dropped. With no usable links the result is just the
// homepage; the candidate list is never empty.
func SelectCandidates(rootURL string, links []string) []CandidatePage {
	candidates := []CandidatePage{{URL: rootURL, Category: CategoryHomepage}}

	if len(links) > MaxMappedLinks {
		links = links[:MaxMappedLinks]
	}

	seen := map[string]bool{rootURL: true}
	matched := make(map[PageCategory][]string, len(categoryRules))
	for _, link := range links {
		if seen[link] || !SameHost(rootURL, link) {
			continue
		}
		// Classification looks only at the path. Matching the whole URL
		// would let a hostname like lowcostlabs.io claim every link as
		// a pricing page.
		parsed, err := url.Parse(link)
		if err != nil {
			continue
		}
		for _, rule := range categoryRules {
			if len(matched[rule.category]) >= rule.cap {
				continue
			}
			if rule.pattern.MatchString(parsed.Path) {
				matched[rule.category] = append(matched[rule.category], link)
				seen[link] = true
				break
			}
		}
	}

	for _, rule := range categoryRules {
		for _, link := range matched[rule.category] {
			candidates = append(candidates, CandidatePage{URL: link, Category: rule.category})
		}
	}

	if len(candidates) > MaxCandidatePages {
		candidates = candidates[:MaxCandidatePages]
	}
	return candidates
}
