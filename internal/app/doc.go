// Package app contains the core application logic. It defines the App struct,
// its configuration, and the lifecycle of one command run against a fleet,
// decoupled from any specific entrypoint like a CLI.
package app
