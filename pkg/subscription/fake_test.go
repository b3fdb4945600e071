package subscription_test

import (
	"context"
	"io"
	"sync"

	"github.com/papercomputeco/substream/pkg/subscription"
)

// chunkBody returns one scripted chunk per Read, then readErr (io.EOF by
// default).
type chunkBody struct {
	mu      sync.Mutex
	chunks  []string
	readErr error
	reads   int
	closes  int
}

func newChunkBody(chunks ...string) *chunkBody {
	return &chunkBody{chunks: chunks, readErr: io.EOF}
}

func (b *chunkBody) Read(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.reads++
	if len(b.chunks) == 0 {
		return 0, b.readErr
	}

	chunk := b.chunks[0]
	n := copy(p, chunk)
	if n < len(chunk) {
		b.chunks[0] = chunk[n:]
	} else {
		b.chunks = b.chunks[1:]
	}
	return n, nil
}

func (b *chunkBody) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closes++
	return nil
}

func (b *chunkBody) Reads() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.reads
}

func (b *chunkBody) Closes() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closes
}

// bodyTransport serves body and records the request that opened it.
func bodyTransport(body io.ReadCloser, captured **subscription.Request) subscription.Transport {
	return subscription.TransportFunc(func(_ context.Context, req *subscription.Request) (io.ReadCloser, error) {
		if captured != nil {
			*captured = req
		}
		return body, nil
	})
}
