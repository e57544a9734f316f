package managers

import (
	"fmt"

	"github.com/chainreact/chainreact/pkg/domain"

	"github.com/golang-jwt/jwt/v5"
)

// CallbackURLSigner mints the stable, signed callback URLs handed to
// manual-setup providers. The token carries no timestamps so the URL stays
// identical across re-activations; the user pastes it once into the
// provider's console.
type CallbackURLSigner struct {
	baseURL string
	secret  []byte
}

type CallbackURLSignerDependencies struct {
	BaseURL       string
	SigningSecret string
}

func NewCallbackURLSigner(deps CallbackURLSignerDependencies) *CallbackURLSigner {
	return &CallbackURLSigner{
		baseURL: deps.BaseURL,
		secret:  []byte(deps.SigningSecret),
	}
}

func (s *CallbackURLSigner) SignedCallbackURL(workflowID string, provider domain.IntegrationType) (string, error) {
	claims := jwt.MapClaims{
		"workflow_id": workflowID,
		"provider":    string(provider),
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign callback token: %w", err)
	}

	return fmt.Sprintf("%s/hooks/%s/%s?token=%s", s.baseURL, workflowID, provider, token), nil
}

// VerifyCallbackToken checks a token presented on an inbound hook and returns
// the workflow id and provider it was minted for.
func (s *CallbackURLSigner) VerifyCallbackToken(tokenString string) (string, domain.IntegrationType, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}

		return s.secret, nil
	})
	if err != nil {
		return "", "", fmt.Errorf("invalid callback token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", "", fmt.Errorf("invalid callback token claims")
	}

	workflowID, _ := claims["workflow_id"].(string)
	provider, _ := claims["provider"].(string)

	if workflowID == "" || provider == "" {
		return "", "", fmt.Errorf("callback token missing workflow or provider claim")
	}

	return workflowID, domain.IntegrationType(provider), nil
}
