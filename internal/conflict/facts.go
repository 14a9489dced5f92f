// Package conflict detects incompatibilities between specifications.
//
// Detection runs in two steps. Analyze extracts structured Facts from a
// specification's text (technologies, numbers, skills, requirement
// polarity). Rule families then compare the facts of the new or changed
// specification against every other current specification of the project.
// A specification whose text cannot be analyzed is flagged and left out
// of comparisons; it never blocks other specifications.
package conflict

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/Nireus79/Socrates2-sub000/internal/model"
	"github.com/Nireus79/Socrates2-sub000/internal/rules"
)

// ErrUnanalyzable marks a specification whose content cannot be turned
// into facts. The store records it as unanalyzed.
var ErrUnanalyzable = errors.New("specification cannot be analyzed")

// maxQuantity bounds every extracted number; anything larger is treated
// as garbage input rather than a real estimate.
const maxQuantity = 10_000_000

// Polarity is a requirement's stance on a contradiction concept.
type Polarity int

const (
	PolarityNone Polarity = iota
	PolarityA
	PolarityB
)

// TechMention is one technology named in a specification.
type TechMention struct {
	Name    string
	Version string
}

// Facts are the structured claims extracted from one specification.
type Facts struct {
	Technologies    []TechMention
	Concurrency     int
	EffortHours     float64
	TeamSize        int
	TimelineWeeks   float64
	AvailableSkills []string
	RequiredSkills  []string
	Polarity        map[string]Polarity
}

// Mentions returns the mention of the named technology, if any.
func (f Facts) Mentions(name string) (TechMention, bool) {
	for _, m := range f.Technologies {
		if m.Name == name {
			return m, true
		}
	}
	return TechMention{}, false
}

// Analyzed pairs a specification with its extracted facts.
type Analyzed struct {
	Spec  model.Specification
	Facts Facts
}

var (
	concurrencyRe    = regexp.MustCompile(`(?i)(\d[\d,]*)\s*\+?\s*(?:concurrent|simultaneous|parallel)\s+(?:users|writers|connections|requests|clients|sessions)`)
	concurrencyAltRe = regexp.MustCompile(`(?i)concurren(?:cy|t users)\s*(?:of|:|=)?\s*(\d[\d,]*)`)

	effortHoursRe   = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(?:(?:person|man|engineering|dev|developer)[- ])?hours?\b`)
	effortUnitRe    = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(?:person|man|developer|dev|engineer)[- ](day|week|month)s?\b`)
	effortContextRe = regexp.MustCompile(`(?i)\b(?:effort|estimate[sd]?|person[- ]|man[- ]|work|build|implement)`)

	teamOfRe    = regexp.MustCompile(`(?i)team\s+(?:of|size\s*(?:of|is|:)?)\s*(\d+|one|two|three|four|five|six|seven|eight|nine|ten)\b`)
	teamCountRe = regexp.MustCompile(`(?i)\b(\d+|one|two|three|four|five|six|seven|eight|nine|ten)\s+(?:full[- ]time\s+)?(?:developers|engineers|devs|programmers|people)\b`)
	soloRe      = regexp.MustCompile(`(?i)\b(?:solo|single|one|a lone)\s+(?:developer|engineer|dev|programmer)\b`)

	durationRe        = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(day|week|month|year)s?\b`)
	deadlineContextRe = regexp.MustCompile(`(?i)\b(?:deadline|launch|ship|deliver|release|due|within|mvp)`)

	availableSkillsRe = regexp.MustCompile(`(?i)(?:knows?|skilled in|experienced (?:with|in)|experience (?:with|in)|expertise in|proficient (?:in|with)|familiar with|skills?\s*:)\s+([^.;\n]+)`)
	requiredSkillsRe  = regexp.MustCompile(`(?i)requires?\s+([a-z0-9#+.\- ]+?)\s+(?:expertise|skills?|experience|knowledge)`)

	listSplitRe = regexp.MustCompile(`\s*(?:,|;|/|\band\b|\bor\b|&)\s*`)
)

var wordNumbers = map[string]int{
	"one": 1, "two": 2, "three": 3, "four": 4, "five": 5,
	"six": 6, "seven": 7, "eight": 8, "nine": 9, "ten": 10,
}

// Categories whose technology mentions describe the chosen stack and
// therefore imply required skills. Platforms are operated, not coded
// against, so they never imply a skill.
var stackCategories = map[model.Category]bool{
	model.CategoryTechnology:  true,
	model.CategoryDeployment:  true,
	model.CategoryConstraints: true,
}

// Analyze extracts facts from spec. It returns ErrUnanalyzable (wrapped
// with the reason) for content that is empty, not valid UTF-8, contains
// control characters, or states impossible quantities.
func Analyze(spec model.Specification, tables *rules.Tables) (Facts, error) {
	content := spec.Content
	if err := checkWellFormed(content); err != nil {
		return Facts{}, err
	}

	var f Facts
	var err error

	f.Technologies = extractTechnologies(content, &tables.Technology)

	if f.Concurrency, err = extractConcurrency(content); err != nil {
		return Facts{}, err
	}

	remaining := content
	if effortContextRe.MatchString(content) {
		if f.EffortHours, remaining, err = extractEffort(content); err != nil {
			return Facts{}, err
		}
	}
	if f.TeamSize, err = extractTeamSize(content); err != nil {
		return Facts{}, err
	}
	if spec.Category == model.CategoryTimeline || deadlineContextRe.MatchString(content) {
		if f.TimelineWeeks, err = extractDuration(remaining); err != nil {
			return Facts{}, err
		}
	}

	f.AvailableSkills = extractAvailableSkills(content, &tables.Technology)
	f.RequiredSkills = extractRequiredSkills(spec.Category, content, f.Technologies, &tables.Technology)

	if tables.Contradictions.AppliesTo(spec.Category) {
		f.Polarity = classifyPolarity(content, tables.Contradictions.Concepts)
	}
	return f, nil
}

func checkWellFormed(content string) error {
	if strings.TrimSpace(content) == "" {
		return fmt.Errorf("%w: empty content", ErrUnanalyzable)
	}
	if !utf8.ValidString(content) {
		return fmt.Errorf("%w: content is not valid UTF-8", ErrUnanalyzable)
	}
	for _, r := range content {
		if unicode.IsControl(r) && r != '\n' && r != '\t' && r != '\r' {
			return fmt.Errorf("%w: content contains control character %U", ErrUnanalyzable, r)
		}
	}
	return nil
}

func extractTechnologies(content string, catalog *rules.Technology) []TechMention {
	var out []TechMention
	for i := range catalog.Technologies {
		tech := &catalog.Technologies[i]
		var mention *TechMention
		for _, re := range tech.Patterns() {
			for _, m := range re.FindAllStringSubmatch(content, -1) {
				if mention == nil {
					mention = &TechMention{Name: tech.Name}
				}
				if mention.Version == "" && m[1] != "" {
					mention.Version = m[1]
				}
			}
		}
		if mention != nil {
			out = append(out, *mention)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func extractConcurrency(content string) (int, error) {
	best := 0
	for _, re := range []*regexp.Regexp{concurrencyRe, concurrencyAltRe} {
		for _, m := range re.FindAllStringSubmatch(content, -1) {
			n, err := parseQuantity(strings.ReplaceAll(m[1], ",", ""), "concurrency")
			if err != nil {
				return 0, err
			}
			best = max(best, int(n))
		}
	}
	return best, nil
}

// extractEffort sums effort estimates and returns the content with the
// matched phrases removed, so "40 person-weeks" is not read again as a
// 40-week timeline.
func extractEffort(content string) (float64, string, error) {
	var total float64
	remaining := content

	for _, m := range effortUnitRe.FindAllStringSubmatch(content, -1) {
		n, err := parseQuantity(m[1], "effort")
		if err != nil {
			return 0, "", err
		}
		switch strings.ToLower(m[2]) {
		case "day":
			total += n * 8
		case "week":
			total += n * 40
		case "month":
			total += n * 160
		}
	}
	remaining = effortUnitRe.ReplaceAllString(remaining, " ")

	for _, m := range effortHoursRe.FindAllStringSubmatch(remaining, -1) {
		n, err := parseQuantity(m[1], "effort")
		if err != nil {
			return 0, "", err
		}
		total += n
	}
	remaining = effortHoursRe.ReplaceAllString(remaining, " ")

	return total, remaining, nil
}

func extractTeamSize(content string) (int, error) {
	for _, re := range []*regexp.Regexp{teamOfRe, teamCountRe} {
		if m := re.FindStringSubmatch(content); m != nil {
			n, err := parseCount(m[1], "team size")
			if err != nil {
				return 0, err
			}
			return n, nil
		}
	}
	if soloRe.MatchString(content) {
		return 1, nil
	}
	return 0, nil
}

func extractDuration(content string) (float64, error) {
	var weeks float64
	for _, m := range durationRe.FindAllStringSubmatch(content, -1) {
		n, err := parseQuantity(m[1], "timeline")
		if err != nil {
			return 0, err
		}
		var w float64
		switch strings.ToLower(m[2]) {
		case "day":
			w = n / 5
		case "week":
			w = n
		case "month":
			w = n * 52 / 12
		case "year":
			w = n * 52
		}
		weeks = max(weeks, w)
	}
	return weeks, nil
}

func extractAvailableSkills(content string, catalog *rules.Technology) []string {
	set := make(map[string]bool)
	for _, m := range availableSkillsRe.FindAllStringSubmatch(content, -1) {
		list := m[1]
		for _, tech := range extractTechnologies(list, catalog) {
			set[catalog.Lookup(tech.Name).Skill] = true
		}
		for _, item := range listSplitRe.Split(list, -1) {
			if tok := normalizeSkill(item); tok != "" {
				set[tok] = true
			}
		}
	}
	return sortedKeys(set)
}

func extractRequiredSkills(cat model.Category, content string, techs []TechMention, catalog *rules.Technology) []string {
	set := make(map[string]bool)
	if stackCategories[cat] {
		for _, t := range techs {
			if entry := catalog.Lookup(t.Name); entry != nil && entry.Kind != "platform" {
				set[entry.Skill] = true
			}
		}
	}
	for _, m := range requiredSkillsRe.FindAllStringSubmatch(content, -1) {
		if tok := normalizeSkill(m[1]); tok != "" {
			set[tok] = true
		}
	}
	return sortedKeys(set)
}

func normalizeSkill(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimPrefix(s, "the ")
	if s == "" || len(s) > 40 {
		return ""
	}
	return s
}

// classifyPolarity assigns each concept the stance the text takes on it.
// A negative ("a") phrase wins over a positive one, since negations
// usually contain the positive phrase ("no login" contains "login").
func classifyPolarity(content string, concepts []rules.Concept) map[string]Polarity {
	lower := strings.ToLower(content)
	out := make(map[string]Polarity)
	for _, c := range concepts {
		switch {
		case containsAny(lower, c.A):
			out[c.Name] = PolarityA
		case containsAny(lower, c.B):
			out[c.Name] = PolarityB
		}
	}
	return out
}

func containsAny(lower string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(lower, strings.ToLower(p)) {
			return true
		}
	}
	return false
}

func parseQuantity(s, what string) (float64, error) {
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s %q is not a number", ErrUnanalyzable, what, s)
	}
	if n <= 0 || n > maxQuantity {
		return 0, fmt.Errorf("%w: %s %q is out of range", ErrUnanalyzable, what, s)
	}
	return n, nil
}

func parseCount(s, what string) (int, error) {
	if n, ok := wordNumbers[strings.ToLower(s)]; ok {
		return n, nil
	}
	n, err := parseQuantity(s, what)
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func sortedKeys(set map[string]bool) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
