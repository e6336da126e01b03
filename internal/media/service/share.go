package service

import (
	"net/url"
	"strings"
)

// ShareLink opens a platform's share dialog for a video page.
type ShareLink struct {
	Platform string `json:"platform"`
	URL      string `json:"url"`
}

// ShareLinks builds share-intent URLs for target, titled title.
func ShareLinks(target, title string) []ShareLink {
	if target == "" {
		return nil
	}
	u := url.QueryEscape(target)
	t := url.QueryEscape(title)
	text := url.QueryEscape(strings.TrimSpace(title + " " + target))

	return []ShareLink{
		{Platform: "x", URL: "https://twitter.com/intent/tweet?text=" + t + "&url=" + u},
		{Platform: "facebook", URL: "https://www.facebook.com/sharer/sharer.php?u=" + u},
		{Platform: "linkedin", URL: "https://www.linkedin.com/sharing/share-offsite/?url=" + u},
		{Platform: "telegram", URL: "https://t.me/share/url?url=" + u + "&text=" + t},
		{Platform: "whatsapp", URL: "https://wa.me/?text=" + text},
	}
}
