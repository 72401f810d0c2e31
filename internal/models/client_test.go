package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHasPermission(t *testing.T) {
	reader := &ApiClient{Name: "reader", Permissions: []string{PermCatalogRead, "sessions:*"}}
	assert.True(t, reader.HasPermission(PermCatalogRead))
	assert.True(t, reader.HasPermission(PermSessionsWrite))
	assert.False(t, reader.HasPermission(PermCompilationsRead))

	admin := &ApiClient{Name: "admin", Permissions: []string{"*"}}
	assert.True(t, admin.HasPermission(PermChat))

	var nobody *ApiClient
	assert.False(t, nobody.HasPermission(PermCatalogRead))
}

func TestMaskedApiKey(t *testing.T) {
	assert.Equal(t, "***", (&ApiClient{ApiKey: "short"}).MaskedApiKey())
	assert.Equal(t, "sk_12345...", (&ApiClient{ApiKey: "sk_1234567890"}).MaskedApiKey())
}
