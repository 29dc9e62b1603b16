package i18n

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
)

//go:embed messages/*.json
var messagesFS embed.FS

// Locales with a message catalog
const (
	LocaleEnglish = "en"
	LocaleGerman  = "de"
	DefaultLocale = LocaleEnglish
)

var supportedLocales = []string{LocaleEnglish, LocaleGerman}

type localeKey struct{}

var (
	catalog     map[string]map[string]string
	catalogOnce sync.Once
)

// loadCatalog reads the embedded message files once and flattens each into
// "section.key" entries. The files are compiled in, so a broken one is a
// build defect and panics.
func loadCatalog() map[string]map[string]string {
	catalogOnce.Do(func() {
		catalog = make(map[string]map[string]string, len(supportedLocales))
		for _, locale := range supportedLocales {
			data, err := messagesFS.ReadFile("messages/" + locale + ".json")
			if err != nil {
				panic(fmt.Sprintf("i18n: reading %s messages: %v", locale, err))
			}
			var tree map[string]any
			if err := json.Unmarshal(data, &tree); err != nil {
				panic(fmt.Sprintf("i18n: parsing %s messages: %v", locale, err))
			}
			flat := make(map[string]string)
			flatten("", tree, flat)
			catalog[locale] = flat
		}
	})
	return catalog
}

func flatten(prefix string, tree map[string]any, out map[string]string) {
	for k, v := range tree {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch v := v.(type) {
		case string:
			out[key] = v
		case map[string]any:
			flatten(key, v, out)
		}
	}
}

// Keys returns the sorted message keys defined for locale
func Keys(locale string) []string {
	msgs := loadCatalog()[locale]
	keys := make([]string, 0, len(msgs))
	for k := range msgs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Localizer renders catalog messages in one locale
type Localizer struct {
	locale string
}

// NewLocalizer returns a localizer for locale; unsupported locales get the default
func NewLocalizer(locale string) *Localizer {
	if !IsSupported(locale) {
		locale = DefaultLocale
	}
	return &Localizer{locale: locale}
}

// LocalizerFromContext returns a localizer for the locale negotiated for ctx
func LocalizerFromContext(ctx context.Context) *Localizer {
	return NewLocalizer(GetLocaleFromContext(ctx))
}

// T renders key with {name} placeholders filled from params. A key missing
// in the locale falls back to the default locale, then to the key itself.
func (l *Localizer) T(key string, params ...map[string]string) string {
	msgs := loadCatalog()
	msg, ok := msgs[l.locale][key]
	if !ok {
		if msg, ok = msgs[DefaultLocale][key]; !ok {
			return key
		}
	}
	if len(params) == 0 || len(params[0]) == 0 {
		return msg
	}

	pairs := make([]string, 0, 2*len(params[0]))
	for k, v := range params[0] {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(msg)
}

// GetLocale returns the current locale
func (l *Localizer) GetLocale() string {
	return l.locale
}

// WithLocale adds locale to context
func WithLocale(ctx context.Context, locale string) context.Context {
	return context.WithValue(ctx, localeKey{}, locale)
}

// GetLocaleFromContext retrieves locale from context
func GetLocaleFromContext(ctx context.Context) string {
	if locale, ok := ctx.Value(localeKey{}).(string); ok && locale != "" {
		return locale
	}
	return DefaultLocale
}

// ParseAcceptLanguage picks the supported locale with the highest q-value from an
// Accept-Language header. Unsupported or malformed entries are skipped.
func ParseAcceptLanguage(header string) string {
	best, bestQ := DefaultLocale, -1.0
	for _, part := range strings.Split(header, ",") {
		tag, q := parseLanguageRange(part)
		if q <= bestQ {
			continue
		}
		if base, _, _ := strings.Cut(tag, "-"); IsSupported(base) {
			best, bestQ = base, q
		}
	}
	return best
}

func parseLanguageRange(part string) (string, float64) {
	tag, params, _ := strings.Cut(strings.TrimSpace(part), ";")
	q := 1.0
	if v, ok := strings.CutPrefix(strings.TrimSpace(params), "q="); ok {
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return "", 0
		}
		q = parsed
	}
	return strings.ToLower(strings.TrimSpace(tag)), q
}

// Global convenience functions

// T translates using the default locale
func T(key string, params ...map[string]string) string {
	return NewLocalizer(DefaultLocale).T(key, params...)
}

// TWithLocale translates using the specified locale
func TWithLocale(locale, key string, params ...map[string]string) string {
	return NewLocalizer(locale).T(key, params...)
}

// TFromContext translates using locale from context
func TFromContext(ctx context.Context, key string, params ...map[string]string) string {
	return LocalizerFromContext(ctx).T(key, params...)
}
