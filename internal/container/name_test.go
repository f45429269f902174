package container

import (
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

var engineName = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.-]+$`)

func TestContainerName(t *testing.T) {
	tests := []struct {
		name     string
		prefix   string
		scopeKey string
		want     string
	}{
		{name: "shared", prefix: "hostguard-sbx-", scopeKey: "", want: "hostguard-sbx-shared"},
		{name: "slugged", prefix: "hostguard-sbx-", scopeKey: "Agent:Main/Session 1"},
		{name: "only symbols", prefix: "sbx-", scopeKey: "::::"},
		{name: "long key", prefix: "hostguard-sbx-", scopeKey: strings.Repeat("very-long-session-key-", 10)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ContainerName(tt.prefix, tt.scopeKey)
			if tt.want != "" {
				assert.Equal(t, tt.want, got)
			}
			assert.LessOrEqual(t, len(got), 63)
			assert.Regexp(t, engineName, got)
			assert.True(t, strings.HasPrefix(got, tt.prefix))
			assert.Equal(t, got, ContainerName(tt.prefix, tt.scopeKey))
		})
	}
}

func TestContainerNameDistinctAfterSlug(t *testing.T) {
	// Both keys slug to "agent-main".
	a := ContainerName("sbx-", "agent:main")
	b := ContainerName("sbx-", "agent/main")
	assert.NotEqual(t, a, b)
	assert.True(t, strings.HasPrefix(a, "sbx-agent-main-"))
}
