// Package migrations embeds the engine's golang-migrate SQL files so the
// binary and the integration tests apply the same schema.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
