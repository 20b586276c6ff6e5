package rpc

import (
	"github.com/vmihailenco/msgpack/v5"

	"mach/internal/asset"
	"mach/internal/plugin"
)

// ProtocolVersion is sent in the hello exchange. Hosts reject versions
// they do not speak.
const ProtocolVersion = 1

const (
	MethodHello     = "hello"
	MethodPing      = "ping"
	MethodResolve   = "resolve"
	MethodTransform = "transform"
)

// Envelope is one request or response. Responses echo the request ID and
// carry either Payload or Error.
type Envelope struct {
	ID      uint64             `msgpack:"id"`
	Method  string             `msgpack:"method,omitempty"`
	Payload msgpack.RawMessage `msgpack:"payload,omitempty"`
	Error   string             `msgpack:"error,omitempty"`
}

type HelloRequest struct {
	Session  string `msgpack:"session"`
	Engine   string `msgpack:"engine"`
	Protocol int    `msgpack:"protocol"`
	Slot     int    `msgpack:"slot"`
}

type HelloResponse struct {
	Session string `msgpack:"session"`
	Engine  string `msgpack:"engine"`
}

type ResolveRequest struct {
	Plugin         string               `msgpack:"plugin"`
	Specifier      string               `msgpack:"specifier"`
	SpecifierType  asset.SpecifierType  `msgpack:"specifier_type"`
	Priority       asset.Priority       `msgpack:"priority"`
	ResolveFrom    string               `msgpack:"resolve_from"`
	LinkingSymbol  asset.LinkingSymbol  `msgpack:"linking_symbol"`
	BundleBehavior asset.BundleBehavior `msgpack:"bundle_behavior"`
}

func resolveRequestOf(pluginName string, dep *asset.Dependency) ResolveRequest {
	return ResolveRequest{
		Plugin:         pluginName,
		Specifier:      dep.Specifier,
		SpecifierType:  dep.SpecifierType,
		Priority:       dep.Priority,
		ResolveFrom:    dep.ResolveFrom,
		LinkingSymbol:  dep.LinkingSymbol,
		BundleBehavior: dep.BundleBehavior,
	}
}

// Dependency rebuilds the dependency a host resolves against.
func (r ResolveRequest) Dependency() *asset.Dependency {
	return &asset.Dependency{
		Specifier:      r.Specifier,
		SpecifierType:  r.SpecifierType,
		Priority:       r.Priority,
		ResolveFrom:    r.ResolveFrom,
		LinkingSymbol:  r.LinkingSymbol,
		BundleBehavior: r.BundleBehavior,
	}
}

// ResolveResponse with Found false means the plugin yields.
type ResolveResponse struct {
	Found    bool   `msgpack:"found"`
	FilePath string `msgpack:"file_path,omitempty"`
}

type TransformRequest struct {
	Plugin string            `msgpack:"plugin"`
	Asset  plugin.AssetView  `msgpack:"asset"`
	Config plugin.ConfigView `msgpack:"config"`
}

// RemoteError is an error reported by the plugin itself, as opposed to a
// transport failure.
type RemoteError struct {
	Method  string
	Message string
}

func (e *RemoteError) Error() string {
	return e.Message
}
