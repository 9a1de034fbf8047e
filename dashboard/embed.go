// Package dashboard provides the embedded status page for the ping agent.
//
// The page is a single HTML file with inline CSS and JavaScript. It loads
// /api/status once and then follows /api/sse, so it needs no build step and
// ships inside the binary.
//
// The server package serves it at "/" when the status server is enabled.
package dashboard

import "embed"

// Assets is an embedded filesystem containing the status page.
//
// The filesystem structure is:
//
//	assets/
//	  index.html    - Device table with live updates
//
//go:embed assets/*
var Assets embed.FS
