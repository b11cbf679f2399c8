package router

import (
	"context"
	"fmt"
	"sync"

	"github.com/aaltosatellite/porthouse/pkg/module"
	"github.com/aaltosatellite/porthouse/pkg/rpc"
	"github.com/aaltosatellite/porthouse/pkg/types"
)

type entry struct {
	spec      types.EndpointSpec
	ep        Endpoint
	formatter Formatter
}

// Router owns a named endpoint graph and the single-outbound-route-per-
// source table connecting them, grounded on packet_router.py's
// PacketRouter.
type Router struct {
	rt *module.Runtime

	mu        sync.Mutex
	endpoints map[string]*entry
	routes    map[string]string // source name -> destination name
}

// New builds a Router bound to rt. Call LoadEndpoints and ConnectRoute (or
// Describe's RPC surface) to populate its graph.
func New(rt *module.Runtime) *Router {
	return &Router{
		rt:        rt,
		endpoints: make(map[string]*entry),
		routes:    make(map[string]string),
	}
}

// LoadEndpoints builds and connects an Endpoint for every spec, matching
// load_endpoints()'s auto-connect-if-persistent behavior (defaulting
// persistent to true, as the original's config.pop("persistent", True)
// does).
func (rt *Router) LoadEndpoints(ctx context.Context, specs []types.EndpointSpec) error {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	for _, spec := range specs {
		ep, err := buildEndpoint(rt.rt.Broker, rt.rt.Log(), spec, rt.routeFrame)
		if err != nil {
			return err
		}
		e := &entry{spec: spec, ep: ep, formatter: resolveFormatter(formatterName(spec))}
		rt.endpoints[spec.Name] = e

		if spec.Persistent {
			if err := ep.Connect(ctx); err != nil {
				return fmt.Errorf("router: connecting endpoint %q: %w", spec.Name, err)
			}
		}
	}
	return nil
}

// formatterName is a placeholder indirection point: EndpointSpec doesn't
// carry a separate formatter field (the launch spec encodes it in
// Metadata["formatter"]), matching the original's free-form per-endpoint
// config dict.
func formatterName(spec types.EndpointSpec) string {
	if spec.Metadata == nil {
		return ""
	}
	name, _ := spec.Metadata["formatter"].(string)
	return name
}

// ConnectRoute creates or replaces the outbound route from srcName,
// matching create_route(): a self-loop is rejected, and any existing
// route from srcName is silently replaced.
func (rt *Router) ConnectRoute(srcName, dstName string) error {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if srcName == dstName {
		return fmt.Errorf("router: refusing to connect %q to itself", srcName)
	}
	if _, ok := rt.endpoints[srcName]; !ok {
		return fmt.Errorf("router: no endpoint named %q", srcName)
	}
	if _, ok := rt.endpoints[dstName]; !ok {
		return fmt.Errorf("router: no endpoint named %q", dstName)
	}
	rt.routes[srcName] = dstName
	return nil
}

// DisconnectRoute removes srcName's outbound route, if any.
func (rt *Router) DisconnectRoute(srcName string) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	delete(rt.routes, srcName)
}

// DisconnectAll clears every route.
func (rt *Router) DisconnectAll() {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.routes = make(map[string]string)
}

// routeFrame is called by an inbound endpoint with its raw payload; it
// resolves the destination, applies both endpoints' formatters and the
// source/destination/frame metadata merge, and sends onward. Grounded on
// packet_router.py's route_frame(). A frame the source formatter fails to
// decode is logged and discarded; a nil decode result is discarded
// silently, matching the original's "formatter may return None".
func (rt *Router) routeFrame(sourceName string, raw []byte) {
	rt.mu.Lock()
	src, srcOK := rt.endpoints[sourceName]
	dstName, routed := rt.routes[sourceName]
	var dst *entry
	if routed {
		dst, routed = rt.endpoints[dstName]
	}
	rt.mu.Unlock()

	if !srcOK || !routed {
		return
	}

	frame, err := src.formatter.Decode(raw)
	if err != nil {
		rt.rt.Log().Warn().Err(err).Str("source", sourceName).Msg("router: frame decode failed")
		return
	}
	if frame == nil {
		return
	}

	merged := make(map[string]any)
	for k, v := range src.spec.Metadata {
		merged[k] = v
	}
	for k, v := range dst.spec.Metadata {
		merged[k] = v
	}
	if existing, ok := frame["metadata"].(map[string]any); ok {
		for k, v := range existing {
			merged[k] = v
		}
	}
	frame["metadata"] = merged

	if _, ok := frame["source"]; !ok {
		frame["source"] = firstNonEmpty(src.spec.SourceTag, sourceName)
	}
	if _, ok := frame["satellite"]; !ok && src.spec.SatelliteTag != "" {
		frame["satellite"] = src.spec.SatelliteTag
	}

	out, err := dst.formatter.Encode(frame)
	if err != nil {
		rt.rt.Log().Warn().Err(err).Str("destination", dstName).Msg("router: frame encode failed")
		return
	}

	if err := dst.ep.Send(context.Background(), out); err != nil {
		rt.rt.Log().Warn().Err(err).Str("destination", dstName).Msg("router: send failed")
	}
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

// Describe registers the router's control RPC surface, matching
// packet_router.py's rpc_handler bound to "router.rpc.#": each verb is
// served on "<prefix>.rpc.<verb>", so "router.rpc.list" under a "router"
// prefix.
func (rt *Router) Describe() module.Description {
	return module.Description{
		RPCs: []module.RPCReg{
			{Exchange: "packets", Verb: "list", Handler: rt.rpcList},
			{Exchange: "packets", Verb: "connect", Handler: rt.rpcConnect},
			{Exchange: "packets", Verb: "disconnect", Handler: rt.rpcDisconnect},
			{Exchange: "packets", Verb: "disconnect_all", Handler: rt.rpcDisconnectAll},
		},
	}
}

func (rt *Router) rpcList(_ string, _ map[string]any) (map[string]any, error) {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	endpoints := make([]map[string]any, 0, len(rt.endpoints))
	for name, e := range rt.endpoints {
		endpoints = append(endpoints, map[string]any{"name": name, "type": string(e.spec.Kind)})
	}
	routes := make([]map[string]any, 0, len(rt.routes))
	for src, dst := range rt.routes {
		routes = append(routes, map[string]any{"source": src, "destination": dst})
	}
	return map[string]any{"endpoints": endpoints, "routes": routes}, nil
}

func (rt *Router) rpcConnect(_ string, body map[string]any) (map[string]any, error) {
	a, _ := body["a"].(string)
	b, _ := body["b"].(string)
	if err := rt.ConnectRoute(a, b); err != nil {
		return nil, rpc.NewRPCError("%v", err)
	}
	return map[string]any{"ok": true}, nil
}

func (rt *Router) rpcDisconnect(_ string, body map[string]any) (map[string]any, error) {
	a, _ := body["a"].(string)
	rt.DisconnectRoute(a)
	return map[string]any{"ok": true}, nil
}

func (rt *Router) rpcDisconnectAll(_ string, _ map[string]any) (map[string]any, error) {
	rt.DisconnectAll()
	return map[string]any{"ok": true}, nil
}
