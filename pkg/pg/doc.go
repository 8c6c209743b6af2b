// Package pg manages the PostgreSQL connection pool: environment-driven
// configuration, startup connection with retry, health checks, and goose
// schema migrations bridged onto the pgx pool.
package pg
