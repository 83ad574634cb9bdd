package version

// Version is the application version. Overridden at build time via
// -ldflags "-X soartrack/pkg/version.Version=...".
var Version = "0.3.0-dev"
