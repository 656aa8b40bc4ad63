package ports_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tradeboard/gateway/internal/mocks"
	fakes "github.com/tradeboard/gateway/internal/mocks/auth"
	"github.com/tradeboard/gateway/internal/ports"
)

// This test only verifies that our mocks conform to the ports at compile time.
func TestMocksImplementPorts(t *testing.T) {
	t.Helper()

	var _ ports.BackendAuth = (*mocks.MockBackendAuth)(nil)
	var _ ports.RefreshCache = (*mocks.MockRefreshCache)(nil)
	var _ ports.ChallengeVerifier = (*fakes.StaticVerifier)(nil)
	var _ ports.RefreshCache = (*fakes.MemoryRefreshCache)(nil)
	var _ ports.HTTPDoer = (*http.Client)(nil)
}

func TestBackendReply_OK(t *testing.T) {
	assert.True(t, ports.BackendReply{Status: 200}.OK())
	assert.True(t, ports.BackendReply{Status: 204}.OK())
	assert.False(t, ports.BackendReply{Status: 302}.OK())
	assert.False(t, ports.BackendReply{Status: 401}.OK())
	assert.False(t, ports.BackendReply{}.OK())
}
