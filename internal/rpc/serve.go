package rpc

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"

	"mach/internal/plugin"
)

// Handler is the host side of the protocol.
type Handler interface {
	Resolve(ctx context.Context, req ResolveRequest) (*plugin.ResolveResult, error)
	Transform(ctx context.Context, req TransformRequest) (*plugin.Patch, error)
}

// Serve answers requests on rw until EOF. It is what an engine host written
// in Go runs on its stdin/stdout.
func Serve(ctx context.Context, rw io.ReadWriter, engine string, h Handler) error {
	for {
		frame, err := readFrame(rw)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		var req Envelope
		if err := msgpack.Unmarshal(frame, &req); err != nil {
			return fmt.Errorf("decode request: %w", err)
		}
		resp := Envelope{ID: req.ID}
		out, err := dispatch(ctx, engine, h, &req)
		if err != nil {
			resp.Error = err.Error()
		} else if out != nil {
			if resp.Payload, err = msgpack.Marshal(out); err != nil {
				resp.Error = err.Error()
			}
		}
		data, err := msgpack.Marshal(&resp)
		if err != nil {
			return err
		}
		if err := writeFrame(rw, data); err != nil {
			return err
		}
	}
}

func dispatch(ctx context.Context, engine string, h Handler, req *Envelope) (any, error) {
	switch req.Method {
	case MethodHello:
		var hello HelloRequest
		if err := msgpack.Unmarshal(req.Payload, &hello); err != nil {
			return nil, err
		}
		if hello.Protocol != ProtocolVersion {
			return nil, fmt.Errorf("unsupported protocol %d", hello.Protocol)
		}
		return HelloResponse{Session: hello.Session, Engine: engine}, nil
	case MethodPing:
		return nil, nil
	case MethodResolve:
		var in ResolveRequest
		if err := msgpack.Unmarshal(req.Payload, &in); err != nil {
			return nil, err
		}
		res, err := h.Resolve(ctx, in)
		if err != nil {
			return nil, err
		}
		if res == nil {
			return ResolveResponse{}, nil
		}
		return ResolveResponse{Found: true, FilePath: res.FilePath}, nil
	case MethodTransform:
		var in TransformRequest
		if err := msgpack.Unmarshal(req.Payload, &in); err != nil {
			return nil, err
		}
		patch, err := h.Transform(ctx, in)
		if err != nil {
			return nil, err
		}
		if patch == nil {
			patch = &plugin.Patch{}
		}
		return patch, nil
	default:
		return nil, fmt.Errorf("unknown method %q", req.Method)
	}
}
