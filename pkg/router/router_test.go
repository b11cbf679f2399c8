package router

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aaltosatellite/porthouse/pkg/module"
	"github.com/aaltosatellite/porthouse/pkg/types"
)

type fakeEndpoint struct {
	name string
	sent [][]byte
}

func (f *fakeEndpoint) Name() string                     { return f.name }
func (f *fakeEndpoint) Connect(context.Context) error     { return nil }
func (f *fakeEndpoint) Close() error                      { return nil }
func (f *fakeEndpoint) Send(_ context.Context, raw []byte) error {
	f.sent = append(f.sent, raw)
	return nil
}

func newTestRouter() (*Router, *fakeEndpoint, *fakeEndpoint) {
	rt := module.NewRuntime(nil, "router", "", "packets")
	r := New(rt)
	src := &fakeEndpoint{name: "uplink"}
	dst := &fakeEndpoint{name: "downlink"}
	r.endpoints["uplink"] = &entry{spec: types.EndpointSpec{Name: "uplink"}, ep: src, formatter: JSONFormatter}
	r.endpoints["downlink"] = &entry{spec: types.EndpointSpec{Name: "downlink"}, ep: dst, formatter: JSONFormatter}
	return r, src, dst
}

func TestJSONFormatter_RoundTrips(t *testing.T) {
	frame, err := JSONFormatter.Decode([]byte(`{"a":1}`))
	require.NoError(t, err)
	require.Equal(t, 1.0, frame["a"])
	out, err := JSONFormatter.Encode(frame)
	require.NoError(t, err)
	require.JSONEq(t, `{"a":1}`, string(out))
}

func TestRawHexFormatter_RoundTrips(t *testing.T) {
	frame, err := RawFormatter.Decode([]byte{0xDE, 0xAD, 0xBE, 0xEF})
	require.NoError(t, err)
	require.Equal(t, "deadbeef", frame["data"])
	out, err := RawFormatter.Encode(frame)
	require.NoError(t, err)
	require.Equal(t, []byte{0xDE, 0xAD, 0xBE, 0xEF}, out)
}

func TestConnectRoute_RejectsSelfLoop(t *testing.T) {
	r, _, _ := newTestRouter()
	err := r.ConnectRoute("uplink", "uplink")
	require.Error(t, err)
}

func TestConnectRoute_ReplacesExisting(t *testing.T) {
	r, _, _ := newTestRouter()
	r.endpoints["spare"] = &entry{spec: types.EndpointSpec{Name: "spare"}, ep: &fakeEndpoint{name: "spare"}, formatter: JSONFormatter}
	require.NoError(t, r.ConnectRoute("uplink", "spare"))
	require.Equal(t, "spare", r.routes["uplink"])
	require.NoError(t, r.ConnectRoute("uplink", "downlink"))
	require.Equal(t, "downlink", r.routes["uplink"])
}

func TestRouteFrame_DeliversAndTagsSource(t *testing.T) {
	r, _, dst := newTestRouter()
	require.NoError(t, r.ConnectRoute("uplink", "downlink"))

	r.routeFrame("uplink", []byte(`{"payload":"hi"}`))

	require.Len(t, dst.sent, 1)
	require.Contains(t, string(dst.sent[0]), `"source":"uplink"`)
}

func TestRouteFrame_DropsWhenNoRoute(t *testing.T) {
	r, _, dst := newTestRouter()
	r.routeFrame("uplink", []byte(`{"payload":"hi"}`))
	require.Len(t, dst.sent, 0)
}

func TestRouteFrame_MergesMetadataWithDestinationWinningOverSource(t *testing.T) {
	r, _, dst := newTestRouter()
	r.endpoints["uplink"].spec.Metadata = map[string]any{"link": "uplink-link", "shared": "from-source"}
	r.endpoints["downlink"].spec.Metadata = map[string]any{"shared": "from-dest"}
	require.NoError(t, r.ConnectRoute("uplink", "downlink"))

	r.routeFrame("uplink", []byte(`{"payload":"hi"}`))

	require.Len(t, dst.sent, 1)
	require.Contains(t, string(dst.sent[0]), `"from-dest"`)
	require.Contains(t, string(dst.sent[0]), `"uplink-link"`)
}

func TestDisconnectAll_ClearsEveryRoute(t *testing.T) {
	r, _, _ := newTestRouter()
	require.NoError(t, r.ConnectRoute("uplink", "downlink"))
	r.DisconnectAll()
	require.Empty(t, r.routes)
}

func TestSplitRoute(t *testing.T) {
	a, b, ok := splitRoute("foresail1p_tc > uplink")
	require.True(t, ok)
	require.Equal(t, "foresail1p_tc", a)
	require.Equal(t, "uplink", b)

	_, _, ok = splitRoute("malformed")
	require.False(t, ok)
}
