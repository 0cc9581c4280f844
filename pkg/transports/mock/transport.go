package mock

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/harunnryd/interviewer/pkg/errorsx"
	"github.com/harunnryd/interviewer/pkg/transports"
)

// Transport is an in-memory transport for local runs and tests.
type Transport struct {
	recvCh chan transports.Message
	closed atomic.Bool
	mu     sync.Mutex
	sent   [][]byte
}

func New() *Transport {
	return &Transport{recvCh: make(chan transports.Message, 256)}
}

func (t *Transport) Name() string { return "mock" }

func (t *Transport) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	go func() {
		<-ctx.Done()
		_ = t.Stop()
	}()
	return nil
}

func (t *Transport) Stop() error {
	if t.closed.CompareAndSwap(false, true) {
		t.mu.Lock()
		close(t.recvCh)
		t.mu.Unlock()
	}
	return nil
}

func (t *Transport) Recv() <-chan transports.Message { return t.recvCh }

func (t *Transport) Publish(_ context.Context, payload []byte) error {
	if t.closed.Load() {
		return errorsx.New(errorsx.ReasonTransportNotConnected, "mock transport stopped")
	}
	t.mu.Lock()
	t.sent = append(t.sent, append([]byte(nil), payload...))
	t.mu.Unlock()
	return nil
}

// Push injects an inbound message. It reports false once the transport stopped
// or the buffer is full.
func (t *Transport) Push(m transports.Message) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed.Load() {
		return false
	}
	select {
	case t.recvCh <- m:
		return true
	default:
		return false
	}
}

// Published returns copies of every payload published so far.
func (t *Transport) Published() [][]byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([][]byte, len(t.sent))
	copy(out, t.sent)
	return out
}
