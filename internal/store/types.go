package store

// Marker store drivers.
const (
	DriverFile     = "file"
	DriverSQLite   = "sqlite"
	DriverRedis    = "redis"
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
)

// StoreConfig configures where the phone-save marker lives.
type StoreConfig struct {
	// Driver is one of DriverFile (default), DriverSQLite, DriverRedis,
	// DriverPostgres, DriverMemory.
	Driver string

	// Path is the local file for the file driver (a JSON key/value document)
	// or the database file for the sqlite driver.
	Path string

	// RedisURL is the redis:// URL for the redis driver.
	RedisURL string

	// PostgresDSN is the connection string for the postgres driver.
	PostgresDSN string

	// Key is the namespaced entry the marker is stored under (default DefaultMarkerKey).
	Key string
}

// MarkerKey returns the configured key or the default.
func (c StoreConfig) MarkerKey() string {
	if c.Key == "" {
		return DefaultMarkerKey
	}
	return c.Key
}
