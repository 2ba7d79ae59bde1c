package handler

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
)

// APIKeyHeader carries the client API key.
const APIKeyHeader = "api_key"

// hashAPIKey computes the peppered HMAC-SHA256 digest of a raw API key.
// Only digests are stored, so a leaked database does not leak usable keys,
// and without the pepper the digests cannot be brute-forced offline.
func hashAPIKey(pepper, key []byte) []byte {
	mac := hmac.New(sha256.New, pepper)
	mac.Write(key)
	return mac.Sum(nil)
}

// RequireAPIKey authenticates requests by the api_key header. The provided
// key is HMAC-hashed, looked up, and compared in constant time to prevent
// timing side-channels.
func (h *Handler) RequireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(APIKeyHeader)
		if key == "" {
			respondError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		digest := hashAPIKey(h.pepper, []byte(key))
		info, err := h.apikeys.FindByHash(r.Context(), hex.EncodeToString(digest))
		if err != nil {
			respondError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		stored, err := hex.DecodeString(info.KeyHash)
		if err != nil || subtle.ConstantTimeCompare(digest, stored) != 1 {
			respondError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		next.ServeHTTP(w, r)
	})
}
