// Package appfs embeds the files shipped with the binaries.
package appfs

import "embed"

//go:embed migrations
var FS embed.FS
