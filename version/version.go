package version

// Version is the current walkwithme release, overridden at build time with
// -ldflags "-X github.com/Daskott/walkwithme/version.Version=x.y.z".
var Version = "0.1.0"
