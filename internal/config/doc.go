// Package config defines the packaging pipeline settings and provides
// helpers to load, validate and save them in YAML format.
//
// The Config type describes the application identity, the packaging target,
// helper binary acquisition sources, and build step wiring. Validate fills
// in defaults so a minimal config file only needs the app block.
package config
