package handler

import (
	"encoding/json"
	"log"
	"net/http"
	"slices"

	"github.com/go-chi/chi/v5"
	"github.com/platanos-shop/storefront/internal/auth"
	"github.com/platanos-shop/storefront/internal/enum"
	"golang.org/x/crypto/bcrypt"
)

// AuthHandler logs operators into the admin API. Operators are the Telegram
// ids listed in ADMIN_IDS and share one bcrypt password hash.
type AuthHandler struct {
	operatorIDs  []int64
	passwordHash string
	jwtSecret    string
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(operatorIDs []int64, passwordHash, jwtSecret string) *AuthHandler {
	return &AuthHandler{operatorIDs: operatorIDs, passwordHash: passwordHash, jwtSecret: jwtSecret}
}

// RegisterRoutes registers auth endpoints on the given Chi router.
func (h *AuthHandler) RegisterRoutes(r chi.Router) {
	r.Post("/auth/login", h.Login)
}

// --- Request / Response types ---

type loginRequest struct {
	OperatorID int64  `json:"operator_id"`
	Password   string `json:"password"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	OperatorID  int64  `json:"operator_id"`
	Role        string `json:"role"`
	ExpiresIn   int64  `json:"expires_in"`
}

// --- Handlers ---

// Login handles operator id + password authentication.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if req.OperatorID == 0 || req.Password == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "operator_id and password are required"})
		return
	}

	if h.passwordHash == "" {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "admin login is disabled"})
		return
	}

	// Compare before the roster check so both failures cost the same.
	pwErr := bcrypt.CompareHashAndPassword([]byte(h.passwordHash), []byte(req.Password))
	if pwErr != nil || !slices.Contains(h.operatorIDs, req.OperatorID) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
		return
	}

	token, err := auth.GenerateToken(h.jwtSecret, req.OperatorID, enum.OperatorRoleAdmin)
	if err != nil {
		log.Printf("ERROR: sign operator token: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken: token,
		OperatorID:  req.OperatorID,
		Role:        enum.OperatorRoleAdmin,
		ExpiresIn:   int64(auth.TokenTTL.Seconds()),
	})
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("ERROR: failed to encode JSON response: %v", err)
	}
}
