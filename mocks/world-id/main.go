package main

import (
	"encoding/json"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	defaultPort      = "8081"
	defaultLatencyMs = "150"
)

type VerifyRequest struct {
	NullifierHash     string `json:"nullifier_hash"`
	MerkleRoot        string `json:"merkle_root"`
	Proof             string `json:"proof"`
	VerificationLevel string `json:"verification_level"`
	Action            string `json:"action"`
	SignalHash        string `json:"signal_hash"`
}

type VerifyResponse struct {
	Success           bool   `json:"success"`
	Action            string `json:"action"`
	NullifierHash     string `json:"nullifier_hash"`
	VerificationLevel string `json:"verification_level"`
	CreatedAt         string `json:"created_at"`
}

type ErrorResponse struct {
	Code      string `json:"code"`
	Detail    string `json:"detail"`
	Attribute string `json:"attribute,omitempty"`
}

var (
	latencyMs = getEnvInt("LATENCY_MS", defaultLatencyMs)
	// Each nullifier verifies once per action, like the hosted verifier.
	seenMu sync.Mutex
	seen   = map[string]bool{}
)

func main() {
	port := getEnv("PORT", defaultPort)

	http.HandleFunc("GET /health", handleHealth)
	http.HandleFunc("POST /api/v2/verify/{appID}", handleVerify)

	log.Printf("🌐 Mock World ID verifier starting on port %s", port)
	log.Printf("⏱️  Simulated latency: %dms", latencyMs)

	if err := http.ListenAndServe(":"+port, nil); err != nil {
		log.Fatal(err)
	}
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "world-id",
	})
}

// Magic proofs let local runs drive every verifier outcome:
//
//	proof "invalid"      -> invalid_proof
//	proof "unavailable"  -> 503
//	root  "0x0"          -> invalid_merkle_root
func handleVerify(w http.ResponseWriter, r *http.Request) {
	time.Sleep(time.Duration(latencyMs) * time.Millisecond)
	log.Printf("📥 verify for app %s from %s", r.PathValue("appID"), r.RemoteAddr)

	if !strings.HasPrefix(r.PathValue("appID"), "app_") {
		sendError(w, http.StatusBadRequest, "invalid_app_id", "App ID must start with app_")
		return
	}

	var req VerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, http.StatusBadRequest, "invalid_request", "Invalid request body: "+err.Error())
		return
	}
	for field, v := range map[string]string{
		"nullifier_hash": req.NullifierHash,
		"merkle_root":    req.MerkleRoot,
		"proof":          req.Proof,
		"action":         req.Action,
	} {
		if v == "" {
			sendErrorAttr(w, http.StatusBadRequest, "required", "This attribute is required.", field)
			return
		}
	}

	switch {
	case req.Proof == "unavailable":
		sendError(w, http.StatusServiceUnavailable, "server_error", "Verifier temporarily unavailable")
		return
	case req.Proof == "invalid":
		sendError(w, http.StatusBadRequest, "invalid_proof", "The provided proof is invalid and it cannot be verified.")
		return
	case req.MerkleRoot == "0x0":
		sendError(w, http.StatusBadRequest, "invalid_merkle_root", "The provided Merkle root is invalid.")
		return
	}

	key := req.Action + "|" + strings.ToLower(req.NullifierHash)
	seenMu.Lock()
	dup := seen[key]
	seen[key] = true
	seenMu.Unlock()
	if dup {
		sendError(w, http.StatusBadRequest, "max_verifications_reached", "This person has already verified for this action.")
		return
	}

	level := req.VerificationLevel
	if level == "" {
		level = "orb"
	}
	writeJSON(w, http.StatusOK, VerifyResponse{
		Success:           true,
		Action:            req.Action,
		NullifierHash:     req.NullifierHash,
		VerificationLevel: level,
		CreatedAt:         time.Now().UTC().Format(time.RFC3339),
	})
	log.Printf("✅ verified nullifier %s for %s", req.NullifierHash, req.Action)
}

func sendError(w http.ResponseWriter, status int, code, detail string) {
	sendErrorAttr(w, status, code, detail, "")
}

func sendErrorAttr(w http.ResponseWriter, status int, code, detail, attribute string) {
	writeJSON(w, status, ErrorResponse{Code: code, Detail: detail, Attribute: attribute})
	log.Printf("❌ %d %s: %s", status, code, detail)
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
