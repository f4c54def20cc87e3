package version

// Set at build time with -ldflags "-X codeberg.org/mutker/dcsystem/internal/version.Version=..."
var Version = "dev"

const ProcessName = "dcsystem"
