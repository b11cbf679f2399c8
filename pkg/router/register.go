package router

import (
	"context"
	"fmt"
	"strings"

	"github.com/aaltosatellite/porthouse/pkg/broker"
	"github.com/aaltosatellite/porthouse/pkg/config"
	"github.com/aaltosatellite/porthouse/pkg/launcher"
	"github.com/aaltosatellite/porthouse/pkg/module"
	"github.com/aaltosatellite/porthouse/pkg/types"
)

// className is the launch spec's module identifier, replacing the
// original's dotted Python import path (mcs.packets.packet_router.PacketRouter).
const className = "router.PacketRouter"

func init() {
	launcher.Register(className, launcher.Factory{
		RequiredParams: []string{"endpoints"},
		New:            newRunner,
	})
}

type runner struct {
	rt     *module.Runtime
	router *Router
	specs  []types.EndpointSpec
	routes []string
}

func (r *runner) Run(ctx context.Context) error {
	if err := r.rt.Start(ctx, r.router); err != nil {
		return err
	}
	if err := r.router.LoadEndpoints(ctx, r.specs); err != nil {
		return err
	}
	for _, route := range r.routes {
		a, b, ok := splitRoute(route)
		if !ok {
			return fmt.Errorf("router: malformed route %q, want \"a > b\"", route)
		}
		if err := r.router.ConnectRoute(a, b); err != nil {
			return err
		}
	}
	<-ctx.Done()
	return nil
}

// splitRoute parses "source > destination", matching the original's
// `"foresail1p_tc > uplink"` route-table string convention.
func splitRoute(s string) (src, dst string, ok bool) {
	parts := strings.SplitN(s, ">", 2)
	if len(parts) != 2 {
		return "", "", false
	}
	return strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1]), true
}

func newRunner(params map[string]any, prefix string, _ bool) (launcher.Runner, error) {
	specs, err := parseEndpointSpecs(params["endpoints"])
	if err != nil {
		return nil, fmt.Errorf("router: %w", err)
	}
	routes := parseRouteList(params["routes"])

	globals, err := config.LoadGlobals()
	if err != nil {
		return nil, fmt.Errorf("router: loading globals: %w", err)
	}

	br := broker.New(globals.AMQPURL)
	rt := module.NewRuntime(br, "router", prefix, "packets")
	rtr := New(rt)

	return &runner{rt: rt, router: rtr, specs: specs, routes: routes}, nil
}

func parseRouteList(v any) []string {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func parseEndpointSpecs(v any) ([]types.EndpointSpec, error) {
	raw, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("endpoints must be a list")
	}
	specs := make([]types.EndpointSpec, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("each endpoint entry must be a map")
		}
		spec := types.EndpointSpec{
			Name:         stringField(m, "name"),
			Kind:         types.EndpointKind(stringField(m, "type")),
			Direction:    types.EndpointDirection(stringField(m, "direction")),
			Address:      stringField(m, "address"),
			RoutingKey:   stringField(m, "routing_key"),
			Topic:        stringField(m, "topic"),
			Multipart:    boolField(m, "multipart", false),
			SourceTag:    stringField(m, "source"),
			SatelliteTag: stringField(m, "satellite"),
			Persistent:   boolField(m, "persistent", true),
		}
		if md, ok := m["metadata"].(map[string]any); ok {
			spec.Metadata = md
		}
		if f, ok := m["formatter"].(string); ok && f != "" {
			if spec.Metadata == nil {
				spec.Metadata = map[string]any{}
			}
			spec.Metadata["formatter"] = f
		}
		if spec.Name == "" {
			return nil, fmt.Errorf("endpoint entry missing name")
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func boolField(m map[string]any, key string, def bool) bool {
	if v, ok := m[key].(bool); ok {
		return v
	}
	return def
}
