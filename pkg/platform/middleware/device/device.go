// Package device classifies the calling browser so handlers can tailor
// capture defaults to phones and desktops.
package device

import (
	"net/http"
	"strings"

	"github.com/mssola/useragent"

	"deepname/pkg/requestcontext"
)

// Classify parses a User-Agent header. Unknown values classify as a desktop
// with empty browser and OS.
func Classify(userAgent string) requestcontext.Device {
	if strings.TrimSpace(userAgent) == "" {
		return requestcontext.Device{}
	}
	ua := useragent.New(userAgent)
	browser, _ := ua.Browser()
	return requestcontext.Device{
		Mobile:  ua.Mobile(),
		Browser: strings.ToLower(strings.TrimSpace(browser)),
		OS:      strings.ToLower(strings.TrimSpace(ua.OS())),
	}
}

// Middleware stores the classified device in the request context.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithDevice(r.Context(), Classify(r.Header.Get("User-Agent")))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
