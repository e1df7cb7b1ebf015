package appfs

import "embed"

// FS embeds the database migrations and email templates so deployments
// ship as a single binary.
//go:embed migrations all:templates
var FS embed.FS
