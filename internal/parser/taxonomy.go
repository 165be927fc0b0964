package parser

import (
	"os"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// FallbackSection names a section that arrived without a name.
const FallbackSection = "Menu"

// Taxonomy maps free-form section names onto a canonical list.
type Taxonomy struct {
	canonical map[string]string // lower-case → canonical spelling
	rules     []rule
}

type rule struct {
	re   *regexp.Regexp
	name string
}

// RuleConfig is one keyword rule as written in a taxonomy file.
type RuleConfig struct {
	Pattern string `yaml:"pattern"`
	Name    string `yaml:"name"`
}

// TaxonomyConfig is the YAML shape of a taxonomy file.
type TaxonomyConfig struct {
	Canonical []string     `yaml:"canonical"`
	Rules     []RuleConfig `yaml:"rules"`
}

var defaultCanonical = []string{
	"Breakfast", "Brunch", "Lunch", "Dinner", "Appetizers", "Starters", "Raw Bar",
	"Soups", "Salads", "Sandwiches", "Burgers", "Tacos", "Pizza", "Pasta", "Sushi",
	"Nigiri & Sashimi", "Maki", "Special Rolls", "Entrees", "Mains", "Seafood", "Steaks",
	"BBQ", "Ramen", "Bowls", "Sides", "Kids", "Desserts", "Bakery", "Coffee", "Tea",
	"Juices & Smoothies", "Drinks", "Cocktails", "Beer", "Wine", "Spirits", "Happy Hour",
	"Combos", "Catering",
}

// Keyword rules in priority order; the first match wins.
var defaultRules = []RuleConfig{
	{`(?i)\bkids?\b|children`, "Kids"},
	{`(?i)dessert|\bsweets\b`, "Desserts"},
	{`(?i)\bsides?\b`, "Sides"},
	{`(?i)happy hour`, "Happy Hour"},
	{`(?i)\bapps?\b|\bappetizers?\b|\bstarters?\b|\bsmall plates\b`, "Appetizers"},
	{`(?i)\bentr[eé]es?\b|\bmains?\b`, "Entrees"},
	{`(?i)cocktail`, "Cocktails"},
	{`(?i)\bwines?\b`, "Wine"},
	{`(?i)\bbeers?\b|\bdraft\b|\bon tap\b`, "Beer"},
	{`(?i)\bspirits?\b|\bwhiske?y\b|\bbourbon\b|\btequila\b`, "Spirits"},
	{`(?i)\bpizzas?\b`, "Pizza"},
	{`(?i)\bpastas?\b`, "Pasta"},
	{`(?i)\bsalads?\b`, "Salads"},
	{`(?i)\bsoups?\b`, "Soups"},
	{`(?i)breakfast`, "Breakfast"},
	{`(?i)brunch`, "Brunch"},
	{`(?i)\blunch`, "Lunch"},
	{`(?i)dinner|supper`, "Dinner"},
	{`(?i)coffee|espresso`, "Coffee"},
	{`(?i)\bteas?\b`, "Tea"},
	{`(?i)ramen`, "Ramen"},
	{`(?i)\bbowls?\b`, "Bowls"},
	{`(?i)sushi`, "Sushi"},
	{`(?i)\brolls?\b`, "Special Rolls"},
	{`(?i)nigiri|sashimi`, "Nigiri & Sashimi"},
	{`(?i)burger`, "Burgers"},
	{`(?i)sandwich|\bsubs?\b|hoagie`, "Sandwiches"},
	{`(?i)\btacos?\b`, "Tacos"},
	{`(?i)seafood|\bfish\b`, "Seafood"},
	{`(?i)steak`, "Steaks"},
	{`(?i)\bbbq\b|barbe(cue|que)`, "BBQ"},
	{`(?i)combo`, "Combos"},
	{`(?i)cater`, "Catering"},
	{`(?i)drink|beverage`, "Drinks"},
}

// DefaultTaxonomy returns the built-in section taxonomy.
func DefaultTaxonomy() *Taxonomy {
	t, err := NewTaxonomy(TaxonomyConfig{Canonical: defaultCanonical, Rules: defaultRules})
	if err != nil {
		panic(err) // built-in patterns are constants
	}
	return t
}

// NewTaxonomy compiles a taxonomy.
func NewTaxonomy(cfg TaxonomyConfig) (*Taxonomy, error) {
	t := &Taxonomy{canonical: make(map[string]string, len(cfg.Canonical))}
	for _, c := range cfg.Canonical {
		t.canonical[strings.ToLower(strings.TrimSpace(c))] = c
	}
	for _, r := range cfg.Rules {
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, eris.Wrapf(err, "taxonomy: rule %q", r.Pattern)
		}
		t.rules = append(t.rules, rule{re: re, name: r.Name})
	}
	return t, nil
}

// LoadTaxonomy reads a taxonomy from a YAML file. An empty path returns the
// built-in taxonomy; a file without rules keeps the built-in rules.
func LoadTaxonomy(path string) (*Taxonomy, error) {
	if path == "" {
		return DefaultTaxonomy(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "taxonomy: read %s", path)
	}

	var cfg TaxonomyConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, eris.Wrap(err, "taxonomy: parse")
	}
	if len(cfg.Canonical) == 0 {
		cfg.Canonical = defaultCanonical
	}
	if len(cfg.Rules) == 0 {
		cfg.Rules = defaultRules
	}
	return NewTaxonomy(cfg)
}

// Canonicalize maps name onto the taxonomy: an exact case-insensitive match,
// then the first keyword rule, else the trimmed name itself. An empty name
// becomes FallbackSection.
func (t *Taxonomy) Canonicalize(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return FallbackSection
	}
	if c, ok := t.canonical[strings.ToLower(name)]; ok {
		return c
	}
	for _, r := range t.rules {
		if r.re.MatchString(name) {
			return r.name
		}
	}
	return name
}
