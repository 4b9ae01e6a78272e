package publisher

// Publisher announces freshly synced canonical records to downstream
// consumers. It is a side channel: the canonical sink path never depends
// on a publish succeeding.
type Publisher interface {
	// Publish publishes a message to a stream under the given key
	Publish(key string, message []byte) error

	// TrimStreams trims all streams to the configured maximum length
	TrimStreams() error

	// Close closes the publisher connection
	Close() error
}
