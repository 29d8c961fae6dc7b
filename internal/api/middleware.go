package api

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"io"
	"log"
	"net/http"
	"strings"
)

// APIKeyAuth is middleware that validates requests against a backend API key.
// It checks the X-API-Key header first, then falls back to Authorization: Bearer <key>.
func APIKeyAuth(apiKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Try X-API-Key header first (preferred for backend-to-backend calls)
			key := r.Header.Get("X-API-Key")

			// Fall back to Authorization: Bearer <key>
			if key == "" {
				authHeader := r.Header.Get("Authorization")
				if strings.HasPrefix(authHeader, "Bearer ") {
					key = strings.TrimPrefix(authHeader, "Bearer ")
				}
			}

			if key == "" {
				respondJSON(w, http.StatusUnauthorized, map[string]string{
					"error": "Missing API key. Provide X-API-Key header or Authorization: Bearer <key>",
				})
				return
			}

			// Constant-time comparison to prevent timing attacks
			if subtle.ConstantTimeCompare([]byte(key), []byte(apiKey)) != 1 {
				respondJSON(w, http.StatusForbidden, map[string]string{
					"error": "Invalid API key",
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// SignatureHeader carries the renderer's HMAC-SHA256 of the raw request body,
// hex encoded.
const SignatureHeader = "X-Render-Signature"

// WebhookSignature verifies inbound renderer callbacks. A request whose
// signature does not verify is rejected with 401 before any handler runs —
// no job state changes. The verified body is restored for the handler.
func WebhookSignature(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, err := io.ReadAll(r.Body)
			if err != nil {
				respondJSON(w, http.StatusBadRequest, map[string]string{"error": "Failed to read request body"})
				return
			}
			r.Body.Close()
			r.Body = io.NopCloser(bytes.NewReader(body))

			provided := r.Header.Get(SignatureHeader)
			if provided == "" {
				log.Printf("[Webhook] Rejected callback from %s: missing signature", r.RemoteAddr)
				respondJSON(w, http.StatusUnauthorized, map[string]string{"error": "Missing signature"})
				return
			}

			mac := hmac.New(sha256.New, []byte(secret))
			mac.Write(body)
			expected := hex.EncodeToString(mac.Sum(nil))

			if !hmac.Equal([]byte(provided), []byte(expected)) {
				log.Printf("[Webhook] Rejected callback from %s: signature mismatch", r.RemoteAddr)
				respondJSON(w, http.StatusUnauthorized, map[string]string{"error": "Invalid signature"})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// Sign computes the webhook signature for a body. Shared with tests and the
// renderer's integration docs.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
