package media

import "context"

// Uploader is the binary media storage contract. The messaging subsystem
// only consumes it: hand over the bytes, get back a URL to persist on the
// message. A production deployment points this at object storage; the local
// implementation under media/local serves development setups.
type Uploader interface {
	// Upload stores the object and returns its public URL.
	Upload(ctx context.Context, name string, data []byte) (string, error)
}
