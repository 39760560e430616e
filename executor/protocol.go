package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/caffeineduck/wasirt/hostfunc"
	"github.com/caffeineduck/wasirt/taskmanager"
	"github.com/charmbracelet/log"
)

// Guests call host functions by writing \x00WASIRT:{json}\x00 to stderr and
// reading one JSON line per response from stdin.
const (
	protocolPrefix = "\x00WASIRT:"
	protocolSuffix = "\x00"
)

// callRequest with an ID is answered asynchronously and its response
// carries the same ID. Without an ID the call completes before the guest's
// write returns.
type callRequest struct {
	ID   string         `json:"id,omitempty"`
	Fn   string         `json:"fn"`
	Args map[string]any `json:"args"`
}

type callResponse struct {
	ID    string `json:"id,omitempty"`
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}

// protocolHandler intercepts stderr to handle host function calls.
// Regular stderr output passes through; protocol messages trigger host calls.
type protocolHandler struct {
	ctx         context.Context
	env         *taskmanager.Env
	registry    *hostfunc.Registry
	stdinWriter *io.PipeWriter
	logger      *log.Logger

	mu         sync.Mutex
	realStderr bytes.Buffer
	buf        bytes.Buffer

	writeMu sync.Mutex

	helpersMu sync.Mutex
	helpers   []*taskmanager.Handle
}

func newProtocolHandler(ctx context.Context, env *taskmanager.Env, registry *hostfunc.Registry, stdinWriter *io.PipeWriter, logger *log.Logger) *protocolHandler {
	return &protocolHandler{
		ctx:         ctx,
		env:         env,
		registry:    registry,
		stdinWriter: stdinWriter,
		logger:      logger,
	}
}

func (p *protocolHandler) Write(data []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.buf.Write(data)

	for {
		content := p.buf.String()
		payload, before, rest, found, complete := extractMessage(content)
		p.realStderr.WriteString(before)
		p.buf.Reset()
		p.buf.WriteString(rest)
		if !found || !complete {
			break
		}

		var req callRequest
		if err := json.Unmarshal([]byte(payload), &req); err != nil {
			p.respond(callResponse{Error: "invalid call format"})
			continue
		}
		if req.ID != "" && p.env != nil {
			p.dispatch(req)
			continue
		}
		p.respond(p.handleCall(p.ctx, req))
	}

	return len(data), nil
}

// extractMessage splits content around the first protocol message. before
// is plain output preceding it and rest is what remains to be scanned. An
// unterminated message, or a trailing fragment that may begin one, is left
// in rest.
func extractMessage(content string) (payload, before, rest string, found, complete bool) {
	start := strings.Index(content, protocolPrefix)
	if start == -1 {
		keep := partialPrefix(content)
		return "", content[:len(content)-keep], content[len(content)-keep:], false, false
	}
	before = content[:start]
	body := content[start+len(protocolPrefix):]

	end := strings.Index(body, protocolSuffix)
	if end == -1 {
		return "", before, content[start:], true, false
	}
	return body[:end], before, body[end+len(protocolSuffix):], true, true
}

// partialPrefix returns the length of the longest suffix of s that is a
// proper prefix of protocolPrefix.
func partialPrefix(s string) int {
	for n := min(len(s), len(protocolPrefix)-1); n > 0; n-- {
		if strings.HasPrefix(protocolPrefix, s[len(s)-n:]) {
			return n
		}
	}
	return 0
}

// dispatch runs an asynchronous call as a helper unit over the guest's own
// store, so the guest keeps running while the host works.
func (p *protocolHandler) dispatch(req callRequest) {
	h, err := p.env.Spawn(p.ctx, taskmanager.Descriptor{
		Name:  "hostcall:" + req.Fn,
		Type:  taskmanager.CooperativeShared,
		Store: p.env.Store,
		Run: func(ctx context.Context, env *taskmanager.Env) error {
			resp := p.handleCall(ctx, req)
			resp.ID = req.ID
			p.respond(resp)
			return nil
		},
	})
	if err != nil {
		p.logger.Warn("dispatch host call", "fn", req.Fn, "err", err)
		p.respond(callResponse{ID: req.ID, Error: err.Error()})
		return
	}

	p.helpersMu.Lock()
	p.helpers = append(p.helpers, h)
	p.helpersMu.Unlock()
}

func (p *protocolHandler) respond(resp callResponse) {
	data, err := json.Marshal(resp)
	if err != nil {
		p.logger.Warn("encode host call response", "id", resp.ID, "err", err)
		data, _ = json.Marshal(callResponse{ID: resp.ID, Error: fmt.Sprintf("encode result: %v", err)})
	}
	go func() {
		p.writeMu.Lock()
		defer p.writeMu.Unlock()
		p.stdinWriter.Write(append(data, '\n'))
	}()
}

func (p *protocolHandler) handleCall(ctx context.Context, req callRequest) callResponse {
	result, err := p.registry.Call(ctx, req.Fn, req.Args)
	if err != nil {
		return callResponse{Error: err.Error()}
	}
	return callResponse{Data: result}
}

// drain waits for outstanding asynchronous calls. They are canceled first
// when the guest's context is done. The helpers share the guest's store, so
// the guest unit must not end before they do.
func (p *protocolHandler) drain() {
	p.helpersMu.Lock()
	helpers := p.helpers
	p.helpers = nil
	p.helpersMu.Unlock()

	if len(helpers) == 0 || p.env == nil {
		return
	}
	if p.ctx.Err() != nil {
		for _, h := range helpers {
			h.Release()
		}
	}
	p.env.Block(context.WithoutCancel(p.ctx), func() error {
		for _, h := range helpers {
			<-h.Done()
		}
		return nil
	})
}

func (p *protocolHandler) Stderr() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.realStderr.String() + p.buf.String()
}
