package reportstore

// Provider identifies the report storage backend.
type Provider string

const (
	ProviderFS    Provider = "fs"
	ProviderMinIO Provider = "minio"
)

// Config holds all settings needed to connect to a report storage
// backend. Only the fields for the selected provider are consulted.
type Config struct {
	// Provider is the storage backend (ProviderFS or ProviderMinIO).
	Provider Provider

	// Dir is the root directory for the filesystem provider.
	Dir string

	// Endpoint is the host:port of the object storage server.
	// Example: "localhost:9000" for local MinIO.
	Endpoint string

	// AccessKey is the access key ID (MinIO / S3 style).
	AccessKey string

	// SecretKey is the secret access key.
	SecretKey string

	// UseSSL controls whether TLS is used for the connection.
	UseSSL bool

	// Region is used by region-aware backends. Leave empty for MinIO.
	Region string

	// Bucket is the bucket reports are written to.
	Bucket string

	// Prefix is prepended to every key, without a trailing slash.
	Prefix string
}

// DefaultConfig returns a local filesystem config writing under
// ./reports.
func DefaultConfig() *Config {
	return &Config{
		Provider: ProviderFS,
		Dir:      "reports",
	}
}
