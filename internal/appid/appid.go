// Package appid resolves the application identity (binary name, env prefix,
// config name) with the embedded identity as fallback.
package appid

import (
	"context"

	"github.com/fulmenhq/gofulmen/appidentity"

	appidentityassets "github.com/paperscope/paperscope/internal/assets/appidentity"
)

const (
	DefaultBinaryName = "paperscope"
	DefaultEnvPrefix  = "PAPERSCOPE_"
)

func init() {
	_ = appidentity.RegisterEmbeddedIdentityYAML(appidentityassets.YAML)
}

func Get(ctx context.Context) (*appidentity.Identity, error) {
	return appidentity.Get(ctx)
}

// EnvPrefix returns the identity's env prefix, or DefaultEnvPrefix.
func EnvPrefix(ctx context.Context) string {
	if identity, err := Get(ctx); err == nil && identity != nil && identity.EnvPrefix != "" {
		return identity.EnvPrefix
	}
	return DefaultEnvPrefix
}

// BinaryName returns the identity's binary name, or DefaultBinaryName.
func BinaryName(ctx context.Context) string {
	if identity, err := Get(ctx); err == nil && identity != nil && identity.BinaryName != "" {
		return identity.BinaryName
	}
	return DefaultBinaryName
}
