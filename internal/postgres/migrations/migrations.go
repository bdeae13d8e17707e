// Package migrations embeds the schema files applied by the migrate command.
package migrations

import "embed"

// Files lists the migrations in the order they must be applied.
var Files = []string{
	"001_create_users.sql",
	"002_create_tasks.sql",
	"003_create_activities.sql",
}

//go:embed *.sql
var FS embed.FS
