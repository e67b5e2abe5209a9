package ai

import (
	"context"
	"sync"

	"github.com/bytedance/sonic"
)

// GeneratorMock replays canned responses and records requests.
type GeneratorMock struct {
	mu        sync.Mutex
	responses []Response
	requests  []Request
	Err       error
}

var _ Generator = (*GeneratorMock)(nil)

func NewGeneratorMock() *GeneratorMock {
	return &GeneratorMock{}
}

// Reply queues a text response; non-string values are encoded to JSON.
func (g *GeneratorMock) Reply(v interface{}) *GeneratorMock {
	text, ok := v.(string)
	if !ok {
		text, _ = sonic.ConfigStd.MarshalToString(v)
	}
	return g.queue(Response{Text: text})
}

// ReplyAudio queues an audio response.
func (g *GeneratorMock) ReplyAudio(audio []byte, mimeType string) *GeneratorMock {
	return g.queue(Response{Audio: audio, AudioMIME: mimeType})
}

func (g *GeneratorMock) queue(resp Response) *GeneratorMock {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.responses = append(g.responses, resp)
	return g
}

func (g *GeneratorMock) Generate(_ context.Context, req Request) (Response, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests = append(g.requests, req)
	if g.Err != nil {
		return Response{}, g.Err
	}
	if len(g.responses) == 0 {
		return Response{}, nil
	}
	resp := g.responses[0]
	g.responses = g.responses[1:]
	return resp, nil
}

// Requests returns the requests received so far.
func (g *GeneratorMock) Requests() []Request {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]Request(nil), g.requests...)
}
