// Package testutil provides shared test helpers. Redis-backed tests run against
// miniredis, so no external services are needed.
package testutil
