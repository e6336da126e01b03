package handler

import (
	"time"

	"deepname/internal/media/service"
)

type artifactResponse struct {
	Format   string `json:"format"`
	FileName string `json:"fileName"`
	Size     int    `json:"size"`
	URL      string `json:"url"`
}

type sessionResponse struct {
	ID        string              `json:"id"`
	State     string              `json:"state"`
	Title     string              `json:"title,omitempty"`
	Message   string              `json:"message,omitempty"`
	Artifacts []artifactResponse  `json:"artifacts"`
	Share     []service.ShareLink `json:"share,omitempty"`
	CreatedAt time.Time           `json:"createdAt"`
	ExpiresAt time.Time           `json:"expiresAt"`
}

type encodeFailure struct {
	Error            string           `json:"error"`
	ErrorDescription string           `json:"error_description,omitempty"`
	Detail           string           `json:"detail,omitempty"`
	Session          *sessionResponse `json:"session,omitempty"`
}

type captureHints struct {
	Mobile         bool     `json:"mobile"`
	Camera         string   `json:"camera"`
	MimeTypes      []string `json:"mimeTypes"`
	MaxUploadBytes int64    `json:"maxUploadBytes,omitempty"`
}
