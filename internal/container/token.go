package container

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// Env names carrying the bridge credentials into a container.
const (
	EnvBridgeToken   = "HOSTGUARD_BRIDGE_TOKEN"
	EnvScopeKey      = "HOSTGUARD_SCOPE_KEY"
	EnvContainerName = "HOSTGUARD_CONTAINER_NAME"
)

// NewBridgeToken returns a fresh 24-byte random token, hex encoded.
func NewBridgeToken() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate bridge token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// BridgeEnv returns the runtime-only env for one launch. It belongs in
// Options.ExtraEnv and never in the static config.
func BridgeEnv(token, scopeKey, containerName string) map[string]string {
	env := map[string]string{
		EnvBridgeToken:   token,
		EnvContainerName: containerName,
	}
	if scopeKey != "" {
		env[EnvScopeKey] = scopeKey
	}
	return env
}
