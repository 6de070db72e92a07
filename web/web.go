// Package web embeds the browser UI.
package web

import "embed"

//go:embed dist
var Assets embed.FS
