package web

import "embed"

// DistFS holds the page served at /. The admin screen is the same page at
// /admin.
//
//go:embed all:dist
var DistFS embed.FS
