package i18n

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/ideoscope/internal/database"
	"github.com/ZanzyTHEbar/ideoscope/internal/scoring"
)

type fakeTranslations struct {
	rows  map[string][]database.Translation
	err   error
	calls atomic.Int32
}

func (f *fakeTranslations) ListTranslations(ctx context.Context, lang string) ([]database.Translation, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return f.rows[lang], nil
}

func newTestLocalizer(t *testing.T, src TranslationSource) *Localizer {
	t.Helper()
	l, err := NewLocalizer(src, LangEnglish, time.Minute)
	require.NoError(t, err)
	t.Cleanup(l.Close)
	return l
}

func TestNewLocalizerRejectsUnknownDefault(t *testing.T) {
	_, err := NewLocalizer(&fakeTranslations{}, "fr", time.Minute)
	assert.Error(t, err)
}

func TestNormalizeLang(t *testing.T) {
	l := newTestLocalizer(t, &fakeTranslations{})

	tests := map[string]string{
		"es":    "es",
		"ES":    "es",
		"es-MX": "es",
		"es_AR": "es",
		"en":    "en",
		"fr":    "en",
		"":      "en",
		" es ":  "es",
	}
	for in, expected := range tests {
		t.Run(in, func(t *testing.T) {
			assert.Equal(t, expected, l.NormalizeLang(in))
		})
	}
}

func TestFromAcceptLanguage(t *testing.T) {
	l := newTestLocalizer(t, &fakeTranslations{})

	assert.Equal(t, "es", l.FromAcceptLanguage("es-ES,es;q=0.9,en;q=0.8"))
	assert.Equal(t, "es", l.FromAcceptLanguage("fr-FR, es;q=0.5"))
	assert.Equal(t, "en", l.FromAcceptLanguage("de"))
	assert.Equal(t, "en", l.FromAcceptLanguage(""))
}

func TestBandLabel(t *testing.T) {
	l := newTestLocalizer(t, &fakeTranslations{})

	tests := []struct {
		band     scoring.InsightBand
		lang     string
		expected string
	}{
		{scoring.BandCentrist, "en", "Centrist"},
		{scoring.BandCentrist, "es", "Centrista"},
		{scoring.BandModerate, "es", "Moderado"},
		{scoring.BandBalanced, "es", "Equilibrado"},
		{scoring.BandNeutral, "es", "Neutral"},
		{scoring.BandBalanced, "fr", "Balanced"},
		{scoring.InsightBand("unknown"), "es", "unknown"},
	}
	for _, tt := range tests {
		t.Run(string(tt.band)+"/"+tt.lang, func(t *testing.T) {
			assert.Equal(t, tt.expected, l.BandLabel(tt.band, tt.lang))
		})
	}
}

func TestMessage(t *testing.T) {
	l := newTestLocalizer(t, &fakeTranslations{})

	assert.Equal(t, "No analysis available.", l.Message(MsgNarrativeDefault, "en"))
	assert.Equal(t, "No hay análisis disponible.", l.Message(MsgNarrativeDefault, "es"))
	assert.Equal(t, "Fallback figure used (no ideology match)", l.Message(MsgFigureFallbackNote, "en"))
	assert.Equal(t, "Invalid econ score. Must be a number between 0 and 100", l.Message(MsgInvalidScore, "en", "econ"))
	assert.Equal(t, "Puntuación de dipl inválida. Debe ser un número entre 0 y 100", l.Message(MsgInvalidScore, "es", "dipl"))
	assert.Equal(t, "no_such_key", l.Message("no_such_key", "es"))
}

func TestNarrativePrompt(t *testing.T) {
	l := newTestLocalizer(t, &fakeTranslations{})
	scores := scoring.AxisScoreVector{Econ: 62.5, Dipl: 40, Govt: 55, Scty: 80}

	en, err := l.NarrativePrompt(scores, "en")
	require.NoError(t, err)
	assert.Contains(t, en, "Economic 62.5, Diplomatic 40, Government 55, Social 80")
	assert.Contains(t, en, "1. Your Ideological Breakdown")

	es, err := l.NarrativePrompt(scores, "es")
	require.NoError(t, err)
	assert.Contains(t, es, "Económico 62.5, Diplomático 40, Gobierno 55, Social 80")
	assert.Contains(t, es, "1. Tu Desglose Ideológico")
}

func TestLocalize(t *testing.T) {
	src := &fakeTranslations{rows: map[string][]database.Translation{
		"es": {
			{Entity: EntityIdeology, EntityID: 8, Field: "name", Lang: "es", Text: "Centrismo"},
			{Entity: EntityCategory, EntityID: 1, Field: "name", Lang: "es", Text: "Económico"},
			{Entity: EntityCategory, EntityID: 1, Field: "left_label", Lang: "es", Text: ""},
		},
	}}
	l := newTestLocalizer(t, src)
	ctx := context.Background()

	t.Run("base language never queries", func(t *testing.T) {
		assert.Equal(t, "Centrism", l.Localize(ctx, EntityIdeology, 8, "name", "en", "Centrism"))
		assert.Equal(t, int32(0), src.calls.Load())
	})

	t.Run("translated", func(t *testing.T) {
		assert.Equal(t, "Centrismo", l.Localize(ctx, EntityIdeology, 8, "name", "es-ES", "Centrism"))
		assert.Equal(t, "Económico", l.Localize(ctx, EntityCategory, 1, "name", "es", "Economic"))
	})

	t.Run("missing and empty fall back", func(t *testing.T) {
		assert.Equal(t, "Market", l.Localize(ctx, EntityCategory, 1, "left_label", "es", "Market"))
		assert.Equal(t, "Marxism", l.Localize(ctx, EntityIdeology, 4, "name", "es", "Marxism"))
	})

	t.Run("table is cached", func(t *testing.T) {
		assert.Equal(t, int32(1), src.calls.Load())
		l.Invalidate()
		l.Localize(ctx, EntityIdeology, 8, "name", "es", "Centrism")
		assert.Equal(t, int32(2), src.calls.Load())
	})
}

func TestLocalizeDegradesOnSourceError(t *testing.T) {
	l := newTestLocalizer(t, &fakeTranslations{err: errors.New("database is locked")})
	assert.Equal(t, "Centrism", l.Localize(context.Background(), EntityIdeology, 8, "name", "es", "Centrism"))
}
