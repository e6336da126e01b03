package main

import (
	"encoding/base64"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"
)

const (
	defaultPort      = "8083"
	defaultLatencyMs = "500"
	maxUploadBytes   = 200 << 20
)

type EncryptResponse struct {
	MP4         string `json:"mp4,omitempty"`
	MOV         string `json:"mov,omitempty"`
	MP4FileName string `json:"mp4_filename,omitempty"`
	MOVFileName string `json:"mov_filename,omitempty"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

var (
	latencyMs = getEnvInt("LATENCY_MS", defaultLatencyMs)
	// FAIL_MODE=always answers every encode with a 500.
	failMode = getEnv("FAIL_MODE", "")
)

func main() {
	port := getEnv("PORT", defaultPort)

	http.HandleFunc("GET /health", handleHealth)
	http.HandleFunc("POST /encrypt", handleEncrypt)

	log.Printf("🎞️  Mock embedding service starting on port %s", port)
	log.Printf("⏱️  Simulated latency: %dms", latencyMs)

	if err := http.ListenAndServe(":"+port, nil); err != nil {
		log.Fatal(err)
	}
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "stego-service",
	})
}

// handleEncrypt returns the uploaded bytes unchanged as both formats. The
// payload is only checked for presence.
func handleEncrypt(w http.ResponseWriter, r *http.Request) {
	time.Sleep(time.Duration(latencyMs) * time.Millisecond)

	if failMode == "always" {
		sendError(w, http.StatusInternalServerError, "Embedding failed")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		sendError(w, http.StatusBadRequest, "Invalid upload: "+err.Error())
		return
	}
	if r.FormValue("text") == "" {
		sendError(w, http.StatusBadRequest, "No text provided")
		return
	}
	file, header, err := r.FormFile("video")
	if err != nil {
		sendError(w, http.StatusBadRequest, "No video file provided")
		return
	}
	defer file.Close()

	raw, err := io.ReadAll(file)
	if err != nil {
		sendError(w, http.StatusBadRequest, "Failed to read video")
		return
	}
	log.Printf("📥 encoding %s (%d bytes)", header.Filename, len(raw))

	encoded := base64.StdEncoding.EncodeToString(raw)
	writeJSON(w, http.StatusOK, EncryptResponse{
		MP4:         encoded,
		MOV:         encoded,
		MP4FileName: "deeptruth.mp4",
		MOVFileName: "deeptruth.mov",
	})
}

func sendError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
	log.Printf("❌ %d: %s", status, message)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key, defaultValue string) int {
	value := getEnv(key, defaultValue)
	intValue, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("⚠️  Invalid integer value for %s, using default: %s", key, defaultValue)
		intValue, _ = strconv.Atoi(defaultValue)
	}
	return intValue
}
