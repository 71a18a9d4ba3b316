// Package schemas holds the JSON Schemas for the evidence bundle documents.
package schemas

import "embed"

// Files exposes the *.schema.json documents.
//
//go:embed *.schema.json
var Files embed.FS
