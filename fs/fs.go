// Package appfs embeds files needed at runtime regardless of the working
// directory, such as database migrations.
package appfs

import "embed"

//go:embed migrations
var FS embed.FS
