package services

import (
	"bytes"
	"errors"
	"sync"
)

// fakePort serves queued reads and records writes
type fakePort struct {
	mu       sync.Mutex
	reads    [][]byte
	readErr  error
	written  bytes.Buffer
	writes   [][]byte
	writeErr error
	closed   bool
}

func (p *fakePort) queue(s string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reads = append(p.reads, []byte(s))
}

func (p *fakePort) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, errors.New("port closed")
	}
	if p.readErr != nil {
		// a failing read may still hand back what was buffered
		n := 0
		if len(p.reads) > 0 {
			n = copy(b, p.reads[0])
			p.reads = p.reads[1:]
		}
		return n, p.readErr
	}
	if len(p.reads) == 0 {
		return 0, nil
	}
	n := copy(b, p.reads[0])
	if n < len(p.reads[0]) {
		p.reads[0] = p.reads[0][n:]
	} else {
		p.reads = p.reads[1:]
	}
	return n, nil
}

func (p *fakePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.writeErr != nil {
		return 0, p.writeErr
	}
	p.written.Write(b)
	p.writes = append(p.writes, append([]byte(nil), b...))
	return len(b), nil
}

func (p *fakePort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *fakePort) writeLog() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.writes))
	for i, w := range p.writes {
		out[i] = string(w)
	}
	return out
}
