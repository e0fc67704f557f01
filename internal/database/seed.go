package database

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"gopkg.in/yaml.v3"

	"github.com/ZanzyTHEbar/ideoscope/internal/scoring"
)

//go:embed seed/catalog.yaml
var defaultCatalog []byte

// Translations maps language -> field -> text
type Translations map[string]map[string]string

// SeedCatalog is the YAML document describing all reference data
type SeedCatalog struct {
	Tests         []SeedTest         `yaml:"tests"`
	Categories    []SeedCategory     `yaml:"categories"`
	Insights      []SeedInsight      `yaml:"insights"`
	Ideologies    []SeedIdeology     `yaml:"ideologies"`
	PublicFigures []SeedPublicFigure `yaml:"public_figures"`
}

type SeedTest struct {
	Test         `yaml:",inline"`
	Questions    []SeedQuestion `yaml:"questions"`
	Translations Translations   `yaml:"translations"`
}

type SeedQuestion struct {
	ID           int64          `yaml:"id"`
	Text         string         `yaml:"text"`
	Effect       scoring.Effect `yaml:"effect"`
	Translations Translations   `yaml:"translations"`
}

type SeedCategory struct {
	Category     `yaml:",inline"`
	Translations Translations `yaml:"translations"`
}

type SeedInsight struct {
	scoring.InsightCatalogEntry `yaml:",inline"`
	Translations                Translations `yaml:"translations"`
}

type SeedIdeology struct {
	scoring.IdeologyCatalogEntry `yaml:",inline"`
	Translations                 Translations `yaml:"translations"`
}

type SeedPublicFigure struct {
	scoring.PublicFigureCatalogEntry `yaml:",inline"`
}

// SeedResult counts the rows written by a seed run
type SeedResult struct {
	Tests         int `json:"tests"`
	Questions     int `json:"questions"`
	Categories    int `json:"categories"`
	Insights      int `json:"insights"`
	Ideologies    int `json:"ideologies"`
	PublicFigures int `json:"public_figures"`
	Translations  int `json:"translations"`
}

// ParseSeedCatalog decodes and validates a catalog document
func ParseSeedCatalog(r io.Reader) (*SeedCatalog, error) {
	var cat SeedCatalog
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cat); err != nil {
		return nil, fmt.Errorf("failed to decode catalog: %w", err)
	}
	if err := cat.Validate(); err != nil {
		return nil, err
	}
	return &cat, nil
}

// DefaultSeedCatalog returns the catalog compiled into the binary
func DefaultSeedCatalog() (*SeedCatalog, error) {
	var cat SeedCatalog
	if err := yaml.Unmarshal(defaultCatalog, &cat); err != nil {
		return nil, fmt.Errorf("failed to decode default catalog: %w", err)
	}
	return &cat, cat.Validate()
}

// Validate checks references and score ranges before anything is written
func (c *SeedCatalog) Validate() error {
	axes := map[scoring.Axis]bool{}
	for _, cat := range c.Categories {
		if !cat.Axis.Valid() {
			return fmt.Errorf("category %d: unknown axis %q", cat.ID, cat.Axis)
		}
		axes[cat.Axis] = true
	}
	for _, in := range c.Insights {
		if !axes[in.Category] {
			return fmt.Errorf("insight %d: no category for axis %q", in.ID, in.Category)
		}
		if in.LowerLimit >= in.UpperLimit {
			return fmt.Errorf("insight %d: lower limit %v must be below upper limit %v", in.ID, in.LowerLimit, in.UpperLimit)
		}
	}
	ideologies := map[int64]bool{}
	for _, ideo := range c.Ideologies {
		if err := ideo.ScoreVector.Validate(); err != nil {
			return fmt.Errorf("ideology %d: %w", ideo.ID, err)
		}
		ideologies[ideo.ID] = true
	}
	for _, fig := range c.PublicFigures {
		if !ideologies[fig.IdeologyID] {
			return fmt.Errorf("public figure %d: unknown ideology %d", fig.ID, fig.IdeologyID)
		}
	}
	for _, t := range c.Tests {
		for _, q := range t.Questions {
			for axis := range q.Effect {
				if !axis.Valid() {
					return fmt.Errorf("question %d: unknown axis %q in effect", q.ID, axis)
				}
			}
		}
	}
	return nil
}

// Seed upserts the catalog in a single transaction. Existing rows with the
// same ids are overwritten; user data is never touched.
func (r *Repository) Seed(ctx context.Context, cat *SeedCatalog) (*SeedResult, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin seed transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res := &SeedResult{}
	exec := func(query string, args ...interface{}) error {
		_, err := tx.ExecContext(ctx, query, args...)
		return err
	}
	translate := func(entity string, id int64, tr Translations) error {
		for lang, fields := range tr {
			for field, text := range fields {
				if err := exec(`INSERT INTO translations (entity, entity_id, field, lang, text) VALUES (?, ?, ?, ?, ?)
					ON CONFLICT(entity, entity_id, field, lang) DO UPDATE SET text = excluded.text`,
					entity, id, field, lang, text); err != nil {
					return fmt.Errorf("failed to seed %s %d translation: %w", entity, id, err)
				}
				res.Translations++
			}
		}
		return nil
	}

	for _, c := range cat.Categories {
		if err := exec(`INSERT INTO categories (id, axis, name, left_label, right_label) VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET axis = excluded.axis, name = excluded.name,
			left_label = excluded.left_label, right_label = excluded.right_label`,
			c.ID, c.Axis, c.Name, c.LeftLabel, c.RightLabel); err != nil {
			return nil, fmt.Errorf("failed to seed category %d: %w", c.ID, err)
		}
		if err := translate("category", c.ID, c.Translations); err != nil {
			return nil, err
		}
		res.Categories++
	}

	for _, t := range cat.Tests {
		if err := exec(`INSERT INTO tests (id, name, description, sort_order) VALUES (?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET name = excluded.name, description = excluded.description,
			sort_order = excluded.sort_order`,
			t.ID, t.Name, t.Description, t.SortOrder); err != nil {
			return nil, fmt.Errorf("failed to seed test %d: %w", t.ID, err)
		}
		if err := translate("test", t.ID, t.Translations); err != nil {
			return nil, err
		}
		res.Tests++

		for i, q := range t.Questions {
			effect, err := json.Marshal(q.Effect)
			if err != nil {
				return nil, fmt.Errorf("failed to encode effect of question %d: %w", q.ID, err)
			}
			if err := exec(`INSERT INTO questions (id, test_id, question, effect, sort_order) VALUES (?, ?, ?, ?, ?)
				ON CONFLICT(id) DO UPDATE SET test_id = excluded.test_id, question = excluded.question,
				effect = excluded.effect, sort_order = excluded.sort_order`,
				q.ID, t.ID, q.Text, string(effect), i+1); err != nil {
				return nil, fmt.Errorf("failed to seed question %d: %w", q.ID, err)
			}
			if err := translate("question", q.ID, q.Translations); err != nil {
				return nil, err
			}
			res.Questions++
		}
	}

	for _, in := range cat.Insights {
		if err := exec(`INSERT INTO insights (id, category_id, lower_limit, upper_limit, insight)
			VALUES (?, (SELECT id FROM categories WHERE axis = ?), ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET category_id = excluded.category_id, lower_limit = excluded.lower_limit,
			upper_limit = excluded.upper_limit, insight = excluded.insight`,
			in.ID, in.Category, in.LowerLimit, in.UpperLimit, in.InsightText); err != nil {
			return nil, fmt.Errorf("failed to seed insight %d: %w", in.ID, err)
		}
		if err := translate("insight", in.ID, in.Translations); err != nil {
			return nil, err
		}
		res.Insights++
	}

	for _, ideo := range cat.Ideologies {
		v := ideo.ScoreVector
		if err := exec(`INSERT INTO ideologies (id, name, econ, dipl, govt, scty) VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET name = excluded.name, econ = excluded.econ, dipl = excluded.dipl,
			govt = excluded.govt, scty = excluded.scty`,
			ideo.ID, ideo.Name, v.Econ, v.Dipl, v.Govt, v.Scty); err != nil {
			return nil, fmt.Errorf("failed to seed ideology %d: %w", ideo.ID, err)
		}
		if err := translate("ideology", ideo.ID, ideo.Translations); err != nil {
			return nil, err
		}
		res.Ideologies++
	}

	for _, fig := range cat.PublicFigures {
		if err := exec(`INSERT INTO public_figures (id, name, ideology_id) VALUES (?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET name = excluded.name, ideology_id = excluded.ideology_id`,
			fig.ID, fig.Name, fig.IdeologyID); err != nil {
			return nil, fmt.Errorf("failed to seed public figure %d: %w", fig.ID, err)
		}
		res.PublicFigures++
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit seed: %w", err)
	}

	slog.Info("Catalog seeded",
		"tests", res.Tests,
		"questions", res.Questions,
		"categories", res.Categories,
		"insights", res.Insights,
		"ideologies", res.Ideologies,
		"public_figures", res.PublicFigures,
		"translations", res.Translations)

	return res, nil
}

// SeedIfEmpty loads the built-in catalog into a database without ideologies
func (r *Repository) SeedIfEmpty(ctx context.Context) (bool, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM ideologies`).Scan(&n); err != nil {
		return false, fmt.Errorf("failed to count ideologies: %w", err)
	}
	if n > 0 {
		return false, nil
	}

	cat, err := DefaultSeedCatalog()
	if err != nil {
		return false, err
	}
	if _, err := r.Seed(ctx, cat); err != nil {
		return false, err
	}
	return true, nil
}
