package weave

// Version is the library version, injected at release time.
var Version = "0.1.0-dev"
