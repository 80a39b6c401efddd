package version

// Version is the semantic version of this build. Overridden at link time via
// -ldflags "-X github.com/vellum-io/vellum/internal/version.Version=...".
var Version = "0.3.0-dev"
