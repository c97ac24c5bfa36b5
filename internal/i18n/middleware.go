package i18n

import (
	"net/http"

	"golang.org/x/text/language"
)

var supported = language.NewMatcher([]language.Tag{
	language.English,
	language.Russian,
})

// Middleware injects a localizer into every request context. The language
// comes from Accept-Language when it matches a shipped locale, otherwise lang.
func Middleware(lang string) func(http.Handler) http.Handler {
	fallback := NewLocalizer(lang)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			loc := fallback
			if accept := r.Header.Get("Accept-Language"); accept != "" {
				tags, _, err := language.ParseAcceptLanguage(accept)
				if err == nil && len(tags) > 0 {
					if _, _, conf := supported.Match(tags...); conf != language.No {
						loc = NewLocalizer(accept)
					}
				}
			}
			next.ServeHTTP(w, r.WithContext(WithLocalizer(r.Context(), loc)))
		})
	}
}
