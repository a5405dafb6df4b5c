package app

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/openshelf-dev/identity/pkg/jwtx"
)

// initSigner builds the token signer from configuration. EdDSA with a key
// file is the production path; an ephemeral key means every restart
// invalidates all outstanding tokens, which is fine for dev.
func initSigner(cfg Config, logger *slog.Logger) (jwtx.Signer, error) {
	switch cfg.Algorithm {
	case "EdDSA", "":
		if cfg.SigningKeyFile == "" {
			logger.Warn("no signing key file configured, generating ephemeral key")
			return jwtx.NewEphemeralSignerEdDSA()
		}

		pemKey, err := os.ReadFile(cfg.SigningKeyFile)
		if err != nil {
			return nil, fmt.Errorf("read signing key file: %w", err)
		}
		return jwtx.NewSignerEdDSA(pemKey)

	case "HS256":
		return jwtx.NewSignerHS256([]byte(cfg.SigningSecret))

	default:
		return nil, fmt.Errorf("unsupported signing algorithm %q", cfg.Algorithm)
	}
}
