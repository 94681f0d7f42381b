// Package pg provides PostgreSQL bootstrap helpers for the job queue:
// a retrying pgxpool connector, goose schema migrations bridged from the
// pool, and a health check closure for readiness probes.
//
// Configuration is described by Config, whose fields are populated from
// environment variables via github.com/caarlos0/env.
package pg
