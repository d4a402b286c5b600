package config

// Version is the doctrail binary version.
// Set at build time via: -ldflags "-X github.com/persistorai/doctrail/internal/config.Version=<tag>"
// Defaults to "dev" when built without ldflags.
var Version = "dev"
