// Package migrations embeds the SQL schema files applied by the migrate
// command.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS

// Files lists the migrations in apply order.
var Files = []string{
	"001_create_tasks.sql",
	"002_create_task_reminders.sql",
	"003_create_deliveries.sql",
	"004_create_channel_settings.sql",
}
