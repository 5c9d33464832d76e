package conn

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsAuthClose(t *testing.T) {
	assert.True(t, isAuthClose(CloseUnauthorized))
	assert.True(t, isAuthClose(CloseForbidden))
	assert.True(t, isAuthClose(CloseUserNotFound))

	assert.False(t, isAuthClose(CloseTimedOut))
	assert.False(t, isAuthClose(1000))
	assert.False(t, isAuthClose(1006))
	assert.False(t, isAuthClose(1008))
	assert.False(t, isAuthClose(1011))
}

func TestHasAuthReason(t *testing.T) {
	assert.True(t, hasAuthReason("Unauthorized"))
	assert.True(t, hasAuthReason("request forbidden by policy"))
	assert.True(t, hasAuthReason("Invalid token supplied"))
	assert.True(t, hasAuthReason("TOKEN EXPIRED"))
	assert.True(t, hasAuthReason("user not found"))

	assert.False(t, hasAuthReason(""))
	assert.False(t, hasAuthReason("going away"))
	assert.False(t, hasAuthReason("server restart"))
}
