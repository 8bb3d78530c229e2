package config

// Runtime defaults.
const (
	DefaultThreadLimit = 0
	DefaultChunkSize   = 0
)

// Cache defaults.
const (
	DefaultDecodeCacheSize = "64MiB"
	DefaultObjectCacheSize = "4MiB"
	DefaultCacheCompress   = false
)

// Verify defaults.
const (
	DefaultVerifyFileChecksum   = true
	DefaultVerifyObjectChecksum = true
	DefaultVerifyKeepGoing      = false
)

// Count defaults.
const (
	DefaultCountPolicy = "as-is"
)

// Output defaults.
const (
	DefaultOutputFormat = "table"
)

// Logging defaults.
const (
	DefaultLogLevel  = "info"
	DefaultLogFormat = "text"
)

// Metrics defaults.
const (
	DefaultMetricsEnabled = false
	DefaultMetricsAddr    = ":9464"
)
