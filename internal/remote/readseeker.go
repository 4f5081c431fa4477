package remote

import "bytes"

// bytesReadSeekCloser adapts an in-memory byte slice to the
// io.ReadSeekCloser the Azure blob SDK's block-stage call expects.
type bytesReadSeekCloser struct {
	*bytes.Reader
}

func (bytesReadSeekCloser) Close() error { return nil }

func newBytesReadSeekCloser(b []byte) bytesReadSeekCloser {
	return bytesReadSeekCloser{bytes.NewReader(b)}
}
