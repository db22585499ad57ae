package web

import "embed"

// Templates embeds the HTML templates rendered into PDF documents.
//
//go:embed templates/reports/*.html
var Templates embed.FS
