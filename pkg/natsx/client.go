package natsx

import (
	"os"

	"github.com/nats-io/nats.go"
)

// NewClient connects to the NATS server at url, falling back to the NATS_URL
// environment variable and then nats.DefaultURL. Without options the
// connection is named "bidi" and uses compression.
//
// Parameters:
//   - url: The server url, may be empty.
//   - opts: Connection options; they replace the defaults when given.
//
// Returns:
//   - *nats.Conn: The established connection.
//   - error: Any error encountered while connecting.
func NewClient(url string, opts ...nats.Option) (*nats.Conn, error) {
	if url == "" {
		url = os.Getenv("NATS_URL")
	}
	if url == "" {
		url = nats.DefaultURL
	}
	if len(opts) == 0 {
		opts = append(opts, nats.Name("bidi"), nats.Compression(true))
	}
	return nats.Connect(url, opts...)
}
