package llm

import (
	"context"
	"fmt"
	"iter"
	"strings"
	"sync"
)

// MockReply scripts one response of the MockClient.
type MockReply struct {
	Fragments []string
	Err       error
	// WaitForCancel blocks after the fragments until the context is done.
	WaitForCancel bool
}

// MockClient replays scripted replies in order and records every request.
// Once the script is exhausted it echoes the request back.
type MockClient struct {
	mu       sync.Mutex
	replies  []MockReply
	requests []Request
}

// NewMockClient scripts one single-fragment reply per text.
func NewMockClient(texts ...string) *MockClient {
	m := &MockClient{}
	for _, t := range texts {
		m.Push(MockReply{Fragments: []string{t}})
	}
	return m
}

func (m *MockClient) Push(r MockReply) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replies = append(m.replies, r)
}

// Requests returns a copy of the requests received so far.
func (m *MockClient) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Request(nil), m.requests...)
}

func (m *MockClient) Stream(ctx context.Context, req Request) iter.Seq2[string, error] {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	var reply MockReply
	if len(m.replies) > 0 {
		reply = m.replies[0]
		m.replies = m.replies[1:]
	} else {
		reply = MockReply{Fragments: []string{fmt.Sprintf("I am a mock model. You said: '%s'.", lastLine(strings.TrimRight(req.UserContent, "\n")))}}
	}
	m.mu.Unlock()

	return func(yield func(string, error) bool) {
		for _, f := range reply.Fragments {
			if err := ctx.Err(); err != nil {
				yield("", err)
				return
			}
			if !yield(f, nil) {
				return
			}
		}
		if reply.WaitForCancel {
			<-ctx.Done()
			yield("", ctx.Err())
			return
		}
		if reply.Err != nil {
			yield("", reply.Err)
		}
	}
}

func lastLine(s string) string {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == '\n' {
			return s[i+1:]
		}
	}
	return s
}
