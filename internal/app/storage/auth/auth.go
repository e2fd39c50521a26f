// Package auth resolves short-lived database credentials for PostgreSQL
// connections when static passwords are not used.
package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/leadengine/instance-sync/internal/config"
)

var errNoMethod = errors.New("dynamic auth is configured but no supported method (awsRdsIam) is set")

// BeforeConnect returns a pgx hook that sets a fresh token as the password of
// every new pool connection. It returns nil when dynamic auth is off.
func BeforeConnect(
	ctx context.Context,
	cfg *config.DatabaseConfig,
	user string,
) (func(context.Context, *pgx.ConnConfig) error, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database configuration is required")
	}
	if cfg.DynamicAuth == nil {
		return nil, nil
	}
	if cfg.DynamicAuth.AWSRDSIAM == nil {
		return nil, errNoMethod
	}

	region, err := resolveRegion(ctx, cfg.DynamicAuth.AWSRDSIAM)
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context, connConfig *pgx.ConnConfig) error {
		token, err := rdsToken(ctx, cfg, region, user)
		if err != nil {
			return err
		}
		connConfig.Password = token
		return nil
	}, nil
}

// ResolveToken returns one token for user, for short-lived connections such as
// migrations that cannot use a pool hook. It returns "" when dynamic auth is off.
func ResolveToken(ctx context.Context, cfg *config.DatabaseConfig, user string) (string, error) {
	if cfg == nil {
		return "", fmt.Errorf("database configuration is required")
	}
	if cfg.DynamicAuth == nil {
		return "", nil
	}
	if cfg.DynamicAuth.AWSRDSIAM == nil {
		return "", errNoMethod
	}

	region, err := resolveRegion(ctx, cfg.DynamicAuth.AWSRDSIAM)
	if err != nil {
		return "", err
	}
	return rdsToken(ctx, cfg, region, user)
}

// MigrationConnectionString builds the connection string used by golang-migrate,
// which opens its own connection and so needs the token embedded. Without
// dynamic auth the static password is used.
func MigrationConnectionString(ctx context.Context, cfg *config.DatabaseConfig) (string, error) {
	if cfg == nil {
		return "", fmt.Errorf("database configuration is required")
	}
	user := cfg.GetMigrationUser()

	if cfg.DynamicAuth == nil {
		password, err := cfg.GetPassword()
		if err != nil {
			return "", err
		}
		return cfg.BuildConnectionStringWithAuth(user, password), nil
	}

	token, err := ResolveToken(ctx, cfg, user)
	if err != nil {
		return "", fmt.Errorf("failed to resolve auth token for migration user: %w", err)
	}
	return cfg.BuildConnectionStringWithAuth(user, token), nil
}
