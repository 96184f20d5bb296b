package server

import (
	_ "embed"
)

// viewerHTML is the single-page hierarchy viewer served at /.
//
//go:embed static/viewer.html
var viewerHTML []byte
