package rules

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/Nireus79/Socrates2-sub000/internal/model"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

//go:embed defaults/*.yaml
var defaultFS embed.FS

// validate is the shared schema validator for table structs.
var validate = validator.New(validator.WithRequiredStructEnabled())

// Default returns the embedded rule tables.
func Default() (*Tables, error) {
	return Load("")
}

// Load reads every table file from dir, falling back to the embedded
// default for files the directory does not contain. An empty dir loads
// the defaults only. The returned tables are validated.
func Load(dir string) (*Tables, error) {
	t := &Tables{}
	files := []struct {
		name string
		dst  any
	}{
		{AdequacyFile, &t.Adequacy},
		{TechnologyFile, &t.Technology},
		{ContradictionsFile, &t.Contradictions},
		{BiasFile, &t.Bias},
	}

	for _, f := range files {
		data, err := readTable(dir, f.name)
		if err != nil {
			return nil, err
		}
		if err := decodeStrict(data, f.dst); err != nil {
			return nil, fmt.Errorf("rules: parsing %s: %w", f.name, err)
		}
	}

	if err := t.compile(); err != nil {
		return nil, err
	}
	return t, nil
}

// readTable returns the override from dir if present, else the embedded default.
func readTable(dir, name string) ([]byte, error) {
	if dir != "" {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err == nil {
			return data, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("rules: reading %s: %w", name, err)
		}
	}
	data, err := defaultFS.ReadFile("defaults/" + name)
	if err != nil {
		return nil, fmt.Errorf("rules: reading embedded %s: %w", name, err)
	}
	return data, nil
}

// decodeStrict rejects unknown keys so typos in rule files surface as errors.
func decodeStrict(data []byte, dst any) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	return dec.Decode(dst)
}

// compile validates the schema, checks cross-table references, and
// builds the compiled regexes and lookup maps.
func (t *Tables) compile() error {
	var problems []string

	if err := validate.Struct(t); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				problems = append(problems, fmt.Sprintf("%s: failed %q", fe.Namespace(), fe.Tag()))
			}
		} else {
			problems = append(problems, err.Error())
		}
	}

	problems = append(problems, t.Adequacy.check()...)
	problems = append(problems, t.Technology.check()...)
	problems = append(problems, t.Contradictions.check()...)
	problems = append(problems, t.Bias.check()...)

	if len(problems) > 0 {
		sort.Strings(problems)
		return fmt.Errorf("rules: invalid tables:\n  - %s", strings.Join(problems, "\n  - "))
	}
	return nil
}

func (a *Adequacy) check() []string {
	var problems []string
	for cat := range a.Categories {
		if model.CategoryIndex(cat) < 0 {
			problems = append(problems, fmt.Sprintf("adequacy: unknown category %q", cat))
		}
	}
	for _, cat := range model.Categories {
		if _, ok := a.Categories[cat]; !ok {
			problems = append(problems, fmt.Sprintf("adequacy: missing category %q", cat))
		}
	}
	return problems
}

func (t *Technology) check() []string {
	var problems []string
	t.byName = make(map[string]*Tech, len(t.Technologies))
	for i := range t.Technologies {
		tech := &t.Technologies[i]
		if _, dup := t.byName[tech.Name]; dup {
			problems = append(problems, fmt.Sprintf("technology: duplicate name %q", tech.Name))
			continue
		}
		t.byName[tech.Name] = tech

		tech.patterns = tech.patterns[:0]
		for _, alias := range tech.Aliases {
			re, err := aliasPattern(alias)
			if err != nil {
				problems = append(problems, fmt.Sprintf("technology: %s alias %q: %v", tech.Name, alias, err))
				continue
			}
			tech.patterns = append(tech.patterns, re)
		}
	}

	for _, inc := range t.Incompatibilities {
		for _, name := range []string{inc.A, inc.B} {
			if t.byName[name] == nil {
				problems = append(problems, fmt.Sprintf("technology: incompatibility references unknown technology %q", name))
			}
		}
	}
	for _, req := range t.Compatibility {
		for _, name := range []string{req.Technology, req.Requires} {
			if t.byName[name] == nil {
				problems = append(problems, fmt.Sprintf("technology: compatibility references unknown technology %q", name))
			}
		}
		if _, ok := ParseVersion(req.MinVersion); !ok {
			problems = append(problems, fmt.Sprintf("technology: compatibility %s->%s has unparseable min_version %q", req.Technology, req.Requires, req.MinVersion))
		}
	}
	return problems
}

// aliasPattern matches an alias as a whole word, optionally followed by a
// version ("React 18", "react v18.2", "python@3.12").
func aliasPattern(alias string) (*regexp.Regexp, error) {
	return regexp.Compile(`(?i)(?:^|[^\w.-])` + regexp.QuoteMeta(alias) + `(?:\s*(?:v|@|version\s*)?\s*(\d+(?:\.\d+){0,2}))?(?:$|[^\w-])`)
}

func (c *Contradictions) check() []string {
	var problems []string
	for _, cat := range c.Categories {
		if model.CategoryIndex(cat) < 0 {
			problems = append(problems, fmt.Sprintf("contradictions: unknown category %q", cat))
		}
	}
	seen := make(map[string]bool)
	for _, concept := range c.Concepts {
		if seen[concept.Name] {
			problems = append(problems, fmt.Sprintf("contradictions: duplicate concept %q", concept.Name))
		}
		seen[concept.Name] = true
	}
	return problems
}

func (b *Bias) check() []string {
	var problems []string
	for i := range b.Patterns {
		p := &b.Patterns[i]
		re, err := regexp.Compile("(?i)" + p.Pattern)
		if err != nil {
			problems = append(problems, fmt.Sprintf("bias: pattern %q: %v", p.Pattern, err))
			continue
		}
		p.re = re
	}
	return problems
}
