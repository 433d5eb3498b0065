package version

// Version is the build version, overridable via -ldflags.
var Version = "0.1.0"
