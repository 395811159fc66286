// Package topics labels debate sections with a policy area using an ordered
// keyword table. It is only consulted when a speech carries no stance topic.
package topics

import (
	"regexp"
	"strings"
)

// Other is the label for text no rule matches.
const Other = "Other"

// Rule is one topic and the case-insensitive patterns that select it.
type Rule struct {
	Topic    string
	Patterns []string
}

// DefaultRules is the built-in taxonomy. Order matters: the first topic with
// a matching pattern wins.
var DefaultRules = []Rule{
	{"Housing", []string{`housing`, `homeless`, `\brent(s|al|ers)?\b`, `tenan(t|cy)`, `mortgage`, `\bhomes?\b`, `landlord`}},
	{"Healthcare", []string{`health`, `hospital`, `medical`, `cardiac`, `care`, `\bhse\b`, `trolley`, `patient`}},
	{"Economy", []string{`budget`, `econom`, `\btax`, `finance`, `inflation`, `cost of living`, `employment`, `\bjobs?\b`, `enterprise`}},
	{"Education", []string{`educat`, `school`, `universit`, `student`, `teacher`, `leaving cert`}},
	{"Justice", []string{`justice`, `garda`, `crime`, `\bcourts?\b`, `prison`, `policing`, `sentenc`}},
	{"Environment", []string{`climate`, `environment`, `emission`, `energy`, `biodiversity`, `water`, `retrofit`}},
	{"Agriculture", []string{`agricultur`, `farm`, `fisher`, `rural`, `forestry`}},
	{"Transport", []string{`transport`, `\broads?\b`, `\brail`, `\bbus(es)?\b`, `traffic`, `metrolink`}},
	{"Immigration", []string{`immigra`, `asylum`, `refugee`, `international protection`, `migrant`}},
	{"Foreign Affairs", []string{`foreign`, `european union`, `ukraine`, `gaza`, `defence`, `neutrality`, `brexit`}},
	{"Social Protection", []string{`welfare`, `pension`, `social protection`, `disabilit`, `carer`}},
}

type compiledRule struct {
	topic    string
	patterns []*regexp.Regexp
}

// Classifier matches text against an ordered rule list.
type Classifier struct {
	rules []compiledRule
}

// New compiles rules. Invalid patterns are reported as an error.
func New(rules []Rule) (*Classifier, error) {
	c := &Classifier{}
	for _, r := range rules {
		cr := compiledRule{topic: r.Topic}
		for _, p := range r.Patterns {
			re, err := regexp.Compile(`(?i)` + p)
			if err != nil {
				return nil, err
			}
			cr.patterns = append(cr.patterns, re)
		}
		c.rules = append(c.rules, cr)
	}
	return c, nil
}

// Default returns a classifier over DefaultRules.
func Default() *Classifier {
	c, err := New(DefaultRules)
	if err != nil {
		panic("topics: invalid default rule: " + err.Error())
	}
	return c
}

// Classify returns the first topic matching any of parts, or Other.
func (c *Classifier) Classify(parts ...string) string {
	text := strings.Join(parts, " ")
	if strings.TrimSpace(text) == "" {
		return Other
	}
	for _, r := range c.rules {
		for _, re := range r.patterns {
			if re.MatchString(text) {
				return r.topic
			}
		}
	}
	return Other
}

// Topics lists the configured labels in rule order, followed by Other.
func (c *Classifier) Topics() []string {
	out := make([]string, 0, len(c.rules)+1)
	for _, r := range c.rules {
		out = append(out, r.topic)
	}
	return append(out, Other)
}
