package auth

import (
	"Entitle/common"
	"context"
	"net/http"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"golang.org/x/crypto/bcrypt"
)

// Service authenticates the backend clients calling this API. Clients hold a
// named API key; only the bcrypt hash is stored.
type Service struct {
	db *pgxpool.Pool
}

func NewService(db *pgxpool.Pool) *Service {
	return &Service{db: db}
}

// authenticate checks the client's API key against the stored hash and
// returns the client's id.
func (s *Service) authenticate(ctx context.Context, clientName, apiKey string) (int, bool) {
	logger := common.Logger(ctx)

	var clientID int
	var keyHash string
	err := s.db.QueryRow(ctx, `
		SELECT id, api_key_hash
		FROM api_clients
		WHERE name = $1 AND enabled = true
	`, clientName).Scan(&clientID, &keyHash)
	if err != nil {
		if err != pgx.ErrNoRows {
			logger.Printf("Error looking up API client %s: %v", clientName, err)
		}
		return 0, false
	}

	if err := bcrypt.CompareHashAndPassword([]byte(keyHash), []byte(apiKey)); err != nil {
		logger.Printf("API key mismatch for client %s", clientName)
		return 0, false
	}

	return clientID, true
}

// APIKeyMiddleware guards a handler behind X-API-Client / X-API-Key headers
// and puts the authenticated client id on the context.
func (s *Service) APIKeyMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clientName := r.Header.Get("X-API-Client")
		apiKey := r.Header.Get("X-API-Key")
		if clientName == "" || apiKey == "" {
			http.Error(w, "missing API credentials", http.StatusUnauthorized)
			return
		}

		clientID, ok := s.authenticate(r.Context(), clientName, apiKey)
		if !ok {
			http.Error(w, "invalid API credentials", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), common.ClientIDCtxKey, clientID)
		next.ServeHTTP(w, r.WithContext(ctx))
	}
}

// HashAPIKey produces the bcrypt hash stored in api_clients. Exposed for
// provisioning tooling.
func HashAPIKey(apiKey string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(apiKey), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
