// Package config provides configuration management for mus.
package config

// Default configuration values for mus.
const (
	// DefaultAlgorithm is the digest algorithm used for new manifests.
	DefaultAlgorithm = "md5"

	// DefaultBufferSize sizes the per-worker read buffer from available memory.
	DefaultBufferSize = AutoBufferSize

	// AutoBufferSize lets the tuner pick the read buffer size.
	AutoBufferSize = "auto"

	// DefaultExtension is the manifest file extension.
	DefaultExtension = "mu5"

	// DefaultHeader is the comment written on the first line of new manifests.
	DefaultHeader = "File created with mus"

	// DefaultRetentionDays is the default number of days to keep run history.
	DefaultRetentionDays = 90

	// DefaultWorkers selects the worker count automatically.
	DefaultWorkers = 0

	// AppName names the per-user directories.
	AppName = "mus"
)

// DefaultExclusions contains patterns skipped by default when generating.
var DefaultExclusions = []string{
	".DS_Store",
	"Thumbs.db",
}

// DefaultComponentLevels are the per-component log levels written by WriteDefault.
var DefaultComponentLevels = map[string]string{
	"engine":   "info",
	"manifest": "info",
	"history":  "info",
	"cli":      "info",
}
