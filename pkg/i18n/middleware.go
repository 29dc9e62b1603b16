package i18n

import (
	"net/http"
	"slices"
	"strings"
)

// LocaleQueryParam overrides Accept-Language for clients that cannot set
// headers, such as handheld scanners opening a scan link.
const LocaleQueryParam = "lang"

// Middleware negotiates the locale for the request and stores it in the
// context. The chosen locale is echoed in Content-Language.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		locale := NegotiateLocale(r)

		w.Header().Set("Content-Language", locale)
		w.Header().Add("Vary", "Accept-Language")

		next.ServeHTTP(w, r.WithContext(WithLocale(r.Context(), locale)))
	})
}

// NegotiateLocale picks a supported locale for r: a supported ?lang= value
// first, then the best Accept-Language match, then the default.
func NegotiateLocale(r *http.Request) string {
	if lang := strings.ToLower(strings.TrimSpace(r.URL.Query().Get(LocaleQueryParam))); lang != "" {
		base, _, _ := strings.Cut(lang, "-")
		if IsSupported(base) {
			return base
		}
	}
	return ParseAcceptLanguage(r.Header.Get("Accept-Language"))
}

// IsSupported reports whether messages exist for locale
func IsSupported(locale string) bool {
	return slices.Contains(supportedLocales, locale)
}
