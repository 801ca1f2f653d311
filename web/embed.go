package web

import "embed"

// TemplatesFS embeds the dashboard page and its partials.
//go:embed templates/*.html
var TemplatesFS embed.FS

// StaticFS embeds the stylesheet and the script that draws charts.
//go:embed static/*
var StaticFS embed.FS
