// Package i18n is the only place that knows about languages. Everything else
// works on base-language catalog records and asks the Localizer for text.
package i18n

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"log/slog"
	"strings"
	"text/template"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ZanzyTHEbar/ideoscope/internal/cache"
	"github.com/ZanzyTHEbar/ideoscope/internal/database"
	"github.com/ZanzyTHEbar/ideoscope/internal/scoring"
)

// Supported languages. English is the base language of the catalog tables.
const (
	LangEnglish = "en"
	LangSpanish = "es"
)

// Translatable catalog entities.
const (
	EntityCategory = "category"
	EntityTest     = "test"
	EntityQuestion = "question"
	EntityInsight  = "insight"
	EntityIdeology = "ideology"
)

// Message keys.
const (
	MsgFigureFallbackNote = "figure_fallback_note"
	MsgNarrativeDefault   = "narrative_default"
	MsgMissingFields      = "missing_fields"
	MsgInvalidScore       = "invalid_score"
	MsgNoIdeology         = "no_ideology"
	MsgProRequired        = "pro_required"
)

//go:embed locales/*.yaml
var locales embed.FS

type bundle struct {
	Bands           map[scoring.InsightBand]string `yaml:"bands"`
	Messages        map[string]string              `yaml:"messages"`
	NarrativePrompt string                         `yaml:"narrative_prompt"`

	prompt *template.Template
}

// TranslationSource is the persistence side of localized catalog text.
type TranslationSource interface {
	ListTranslations(ctx context.Context, lang string) ([]database.Translation, error)
}

type translationKey struct {
	entity string
	id     int64
	field  string
}

// Localizer resolves catalog text and fixed messages for a language.
type Localizer struct {
	source      TranslationSource
	defaultLang string
	bundles     map[string]*bundle
	tables      *cache.Cache[map[translationKey]string]
}

// NewLocalizer loads the embedded bundles. defaultLang must be supported.
func NewLocalizer(source TranslationSource, defaultLang string, ttl time.Duration) (*Localizer, error) {
	bundles := make(map[string]*bundle)
	for _, lang := range SupportedLanguages() {
		b, err := loadBundle(lang)
		if err != nil {
			return nil, err
		}
		bundles[lang] = b
	}

	if defaultLang == "" {
		defaultLang = LangEnglish
	}
	if _, ok := bundles[defaultLang]; !ok {
		return nil, fmt.Errorf("unsupported default language %q", defaultLang)
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	return &Localizer{
		source:      source,
		defaultLang: defaultLang,
		bundles:     bundles,
		tables:      cache.NewCache[map[translationKey]string](ttl),
	}, nil
}

func loadBundle(lang string) (*bundle, error) {
	raw, err := locales.ReadFile("locales/" + lang + ".yaml")
	if err != nil {
		return nil, fmt.Errorf("failed to read %s bundle: %w", lang, err)
	}
	var b bundle
	if err := yaml.Unmarshal(raw, &b); err != nil {
		return nil, fmt.Errorf("failed to parse %s bundle: %w", lang, err)
	}
	b.prompt, err = template.New(lang).Option("missingkey=error").Parse(b.NarrativePrompt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s narrative prompt: %w", lang, err)
	}
	return &b, nil
}

// SupportedLanguages lists every language with a bundle.
func SupportedLanguages() []string {
	return []string{LangEnglish, LangSpanish}
}

// IsSupported reports whether lang has a bundle.
func IsSupported(lang string) bool {
	for _, l := range SupportedLanguages() {
		if l == lang {
			return true
		}
	}
	return false
}

// DefaultLanguage returns the configured fallback language.
func (l *Localizer) DefaultLanguage() string {
	return l.defaultLang
}

// NormalizeLang reduces a tag like "es-MX" or "ES" to a supported language,
// falling back to the default.
func (l *Localizer) NormalizeLang(lang string) string {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if i := strings.IndexAny(lang, "-_"); i > 0 {
		lang = lang[:i]
	}
	if IsSupported(lang) {
		return lang
	}
	return l.defaultLang
}

// FromAcceptLanguage picks the first supported language of an
// Accept-Language header, ignoring quality weights.
func (l *Localizer) FromAcceptLanguage(header string) string {
	for _, part := range strings.Split(header, ",") {
		tag := strings.TrimSpace(strings.SplitN(part, ";", 2)[0])
		if i := strings.IndexAny(tag, "-_"); i > 0 {
			tag = tag[:i]
		}
		tag = strings.ToLower(tag)
		if IsSupported(tag) {
			return tag
		}
	}
	return l.defaultLang
}

func (l *Localizer) bundle(lang string) *bundle {
	if b, ok := l.bundles[l.NormalizeLang(lang)]; ok {
		return b
	}
	return l.bundles[LangEnglish]
}

// BandLabel returns the display label of band.
func (l *Localizer) BandLabel(band scoring.InsightBand, lang string) string {
	if label, ok := l.bundle(lang).Bands[band]; ok {
		return label
	}
	if label, ok := l.bundles[LangEnglish].Bands[band]; ok {
		return label
	}
	return string(band)
}

// Message returns a fixed message, formatted with args when given. Missing
// keys fall back to English and finally to the key itself.
func (l *Localizer) Message(key, lang string, args ...any) string {
	msg, ok := l.bundle(lang).Messages[key]
	if !ok {
		msg, ok = l.bundles[LangEnglish].Messages[key]
	}
	if !ok {
		return key
	}
	if len(args) > 0 {
		return fmt.Sprintf(msg, args...)
	}
	return msg
}

// NarrativePrompt renders the narrative prompt for scores in lang.
func (l *Localizer) NarrativePrompt(scores scoring.AxisScoreVector, lang string) (string, error) {
	var buf bytes.Buffer
	if err := l.bundle(lang).prompt.Execute(&buf, scores); err != nil {
		return "", fmt.Errorf("failed to render narrative prompt: %w", err)
	}
	return buf.String(), nil
}

// Localize returns the translated field of a catalog entity, or fallback
// when the language is the base language or no translation exists. Lookup
// failures are logged and degrade to fallback.
func (l *Localizer) Localize(ctx context.Context, entity string, id int64, field, lang, fallback string) string {
	lang = l.NormalizeLang(lang)
	if lang == LangEnglish {
		return fallback
	}

	table, err := l.table(ctx, lang)
	if err != nil {
		slog.Warn("Translation lookup failed", "lang", lang, "entity", entity, "error", err)
		return fallback
	}
	if text, ok := table[translationKey{entity: entity, id: id, field: field}]; ok && text != "" {
		return text
	}
	return fallback
}

func (l *Localizer) table(ctx context.Context, lang string) (map[translationKey]string, error) {
	if t, ok := l.tables.Get(lang); ok {
		return t, nil
	}
	rows, err := l.source.ListTranslations(ctx, lang)
	if err != nil {
		return nil, err
	}
	t := make(map[translationKey]string, len(rows))
	for _, r := range rows {
		t[translationKey{entity: r.Entity, id: r.EntityID, field: r.Field}] = r.Text
	}
	l.tables.Set(lang, t)
	return t, nil
}

// Invalidate drops cached translation tables, e.g. after a reseed.
func (l *Localizer) Invalidate() {
	l.tables.Clear()
}

// Close stops the translation cache janitor.
func (l *Localizer) Close() {
	l.tables.Close()
}
