package authkit

import "time"

// DefaultIssuer is stamped into access tokens when ServerConfig.Issuer is empty.
const DefaultIssuer = "quizsession"

// ServerConfig configures token signing and lifetimes.
type ServerConfig struct {
	SigningKey []byte
	Issuer     string
	SessionTTL time.Duration
	RefreshTTL time.Duration
}

func (configuration ServerConfig) issuer() string {
	if configuration.Issuer == "" {
		return DefaultIssuer
	}
	return configuration.Issuer
}
