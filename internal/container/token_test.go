package container

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBridgeToken(t *testing.T) {
	first, err := NewBridgeToken()
	require.NoError(t, err)
	second, err := NewBridgeToken()
	require.NoError(t, err)

	assert.Len(t, first, 48)
	_, err = hex.DecodeString(first)
	assert.NoError(t, err)
	assert.NotEqual(t, first, second)
}

func TestBridgeEnv(t *testing.T) {
	env := BridgeEnv("tok", "agent:main", "hostguard-sbx-agent-main")
	assert.Equal(t, map[string]string{
		EnvBridgeToken:   "tok",
		EnvScopeKey:      "agent:main",
		EnvContainerName: "hostguard-sbx-agent-main",
	}, env)

	assert.NotContains(t, BridgeEnv("tok", "", "n"), EnvScopeKey)
}
