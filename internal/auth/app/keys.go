package app

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/aussiebroadwan/passwordless/pkg/cryptox"
	"github.com/aussiebroadwan/passwordless/pkg/jwtx"
)

// InitSessionKeys builds the HS256 signer and verifier from the configured
// secret. In dev a missing secret is replaced by a random one; every token
// then dies with the process.
func InitSessionKeys(cfg Config, logger *slog.Logger) (jwtx.Signer, jwtx.Verifier, error) {
	secret := []byte(cfg.JWTSecret)

	if len(secret) == 0 {
		if !cfg.IsDev() {
			return nil, nil, errors.New("AUTH_JWT_SECRET is required outside dev")
		}
		generated, err := cryptox.GenerateSecret(cryptox.SecretSize256)
		if err != nil {
			return nil, nil, fmt.Errorf("generate dev signing secret: %w", err)
		}
		secret = generated
		logger.Warn("AUTH_JWT_SECRET not set, using a random secret; tokens will not survive a restart")
	}

	signer, err := jwtx.NewSignerHS256(secret)
	if err != nil {
		return nil, nil, fmt.Errorf("session signer: %w", err)
	}
	verifier, err := jwtx.NewVerifierHS256(secret, cfg.Issuer)
	if err != nil {
		return nil, nil, fmt.Errorf("session verifier: %w", err)
	}

	logger.Info("session keys ready", "algorithm", signer.Alg(), "issuer", cfg.Issuer)
	return signer, verifier, nil
}
