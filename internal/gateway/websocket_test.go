package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBearerHeaderSetsAuthorizationWhenTokenPresent(t *testing.T) {
	h := bearerHeader("secret-token")
	assert.Equal(t, "Bearer secret-token", h.Get("Authorization"))
}

func TestBearerHeaderIsNilWithoutToken(t *testing.T) {
	assert.Nil(t, bearerHeader(""))
}
