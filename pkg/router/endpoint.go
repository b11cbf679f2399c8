package router

import (
	"context"
	"fmt"
	"net"

	"github.com/go-zeromq/zmq4"
	"github.com/rs/zerolog"

	"github.com/aaltosatellite/porthouse/pkg/broker"
	"github.com/aaltosatellite/porthouse/pkg/types"
)

// frameReceiver is invoked by an inbound-capable endpoint for every frame
// it receives, matching route_frame(source, packet)'s call site.
type frameReceiver func(sourceName string, raw []byte)

// Endpoint is a named node in the router's graph: something that can send
// raw bytes and, for inbound endpoints, that feeds received bytes to a
// frameReceiver.
type Endpoint interface {
	Name() string
	Connect(ctx context.Context) error
	Close() error
	Send(ctx context.Context, raw []byte) error
}

// buildEndpoint constructs the concrete Endpoint for spec, wiring recv (if
// the kind is inbound-capable) to the router's dispatch.
func buildEndpoint(br *broker.Client, log zerolog.Logger, spec types.EndpointSpec, recv frameReceiver) (Endpoint, error) {
	switch spec.Kind {
	case types.EndpointBrokerIn:
		return newBrokerInEndpoint(br, spec, recv), nil
	case types.EndpointBrokerOut:
		return newBrokerOutEndpoint(br, spec), nil
	case types.EndpointSubscriber:
		return newZMQSubEndpoint(spec, recv, log), nil
	case types.EndpointPublisher:
		return newZMQPubEndpoint(spec), nil
	case types.EndpointUDPIn:
		return newUDPInEndpoint(spec, recv, log), nil
	case types.EndpointUDPOut:
		return newUDPOutEndpoint(spec), nil
	case types.EndpointTCP:
		return newTCPEndpoint(spec, recv, log), nil
	default:
		return nil, fmt.Errorf("router: unknown endpoint kind %q for %q", spec.Kind, spec.Name)
	}
}

// --- broker endpoints ---

type brokerOutEndpoint struct {
	name       string
	br         *broker.Client
	exchange   string
	routingKey string
}

func newBrokerOutEndpoint(br *broker.Client, spec types.EndpointSpec) *brokerOutEndpoint {
	return &brokerOutEndpoint{name: spec.Name, br: br, exchange: spec.Address, routingKey: spec.RoutingKey}
}

func (e *brokerOutEndpoint) Name() string                      { return e.name }
func (e *brokerOutEndpoint) Connect(ctx context.Context) error  { return nil }
func (e *brokerOutEndpoint) Close() error                       { return nil }
func (e *brokerOutEndpoint) Send(_ context.Context, raw []byte) error {
	return e.br.Publish(e.exchange, e.routingKey, raw)
}

type brokerInEndpoint struct {
	name       string
	br         *broker.Client
	exchange   string
	routingKey string
	recv       frameReceiver
}

func newBrokerInEndpoint(br *broker.Client, spec types.EndpointSpec, recv frameReceiver) *brokerInEndpoint {
	return &brokerInEndpoint{name: spec.Name, br: br, exchange: spec.Address, routingKey: spec.RoutingKey, recv: recv}
}

func (e *brokerInEndpoint) Name() string { return e.name }

func (e *brokerInEndpoint) Connect(ctx context.Context) error {
	_, err := e.br.DeclareAndConsume("", []broker.Bind{{Exchange: e.exchange, RoutingKey: e.routingKey}}, func(d broker.Delivery) {
		e.recv(e.name, d.Body)
	})
	return err
}

func (e *brokerInEndpoint) Close() error                      { return nil }
func (e *brokerInEndpoint) Send(context.Context, []byte) error { return fmt.Errorf("router: %q is an inbound-only endpoint", e.name) }

// --- ZeroMQ endpoints ---

type zmqPubEndpoint struct {
	name      string
	addr      string
	multipart bool
	sock      zmq4.Socket
}

func newZMQPubEndpoint(spec types.EndpointSpec) *zmqPubEndpoint {
	return &zmqPubEndpoint{name: spec.Name, addr: spec.Address, multipart: spec.Multipart}
}

func (e *zmqPubEndpoint) Name() string { return e.name }

func (e *zmqPubEndpoint) Connect(ctx context.Context) error {
	e.sock = zmq4.NewPub(ctx)
	return e.sock.Listen(e.addr)
}

func (e *zmqPubEndpoint) Close() error { return e.sock.Close() }

func (e *zmqPubEndpoint) Send(_ context.Context, raw []byte) error {
	return e.sock.Send(zmq4.NewMsg(raw))
}

type zmqSubEndpoint struct {
	name string
	addr string
	topic string
	recv frameReceiver
	log  zerolog.Logger
	sock zmq4.Socket
	stop context.CancelFunc
}

func newZMQSubEndpoint(spec types.EndpointSpec, recv frameReceiver, log zerolog.Logger) *zmqSubEndpoint {
	return &zmqSubEndpoint{name: spec.Name, addr: spec.Address, topic: spec.Topic, recv: recv, log: log}
}

func (e *zmqSubEndpoint) Name() string { return e.name }

func (e *zmqSubEndpoint) Connect(ctx context.Context) error {
	sockCtx, cancel := context.WithCancel(context.Background())
	e.stop = cancel
	e.sock = zmq4.NewSub(sockCtx)
	if err := e.sock.Dial(e.addr); err != nil {
		return err
	}
	if err := e.sock.SetOption(zmq4.OptionSubscribe, e.topic); err != nil {
		return err
	}
	go e.receiveLoop(sockCtx)
	return nil
}

func (e *zmqSubEndpoint) receiveLoop(ctx context.Context) {
	for {
		msg, err := e.sock.Recv()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			e.log.Warn().Err(err).Str("endpoint", e.name).Msg("router: zmq recv failed")
			continue
		}
		if len(msg.Frames) > 0 {
			e.recv(e.name, msg.Frames[0])
		}
	}
}

func (e *zmqSubEndpoint) Close() error {
	if e.stop != nil {
		e.stop()
	}
	return e.sock.Close()
}

func (e *zmqSubEndpoint) Send(context.Context, []byte) error {
	return fmt.Errorf("router: %q is an inbound-only endpoint", e.name)
}

// --- UDP endpoints ---

type udpOutEndpoint struct {
	name string
	addr string
	conn *net.UDPConn
}

func newUDPOutEndpoint(spec types.EndpointSpec) *udpOutEndpoint {
	return &udpOutEndpoint{name: spec.Name, addr: spec.Address}
}

func (e *udpOutEndpoint) Name() string { return e.name }

func (e *udpOutEndpoint) Connect(context.Context) error {
	raddr, err := net.ResolveUDPAddr("udp", e.addr)
	if err != nil {
		return err
	}
	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return err
	}
	e.conn = conn
	return nil
}

func (e *udpOutEndpoint) Close() error { return e.conn.Close() }

func (e *udpOutEndpoint) Send(_ context.Context, raw []byte) error {
	_, err := e.conn.Write(raw)
	return err
}

type udpInEndpoint struct {
	name string
	addr string
	recv frameReceiver
	log  zerolog.Logger
	conn *net.UDPConn
	done chan struct{}
}

func newUDPInEndpoint(spec types.EndpointSpec, recv frameReceiver, log zerolog.Logger) *udpInEndpoint {
	return &udpInEndpoint{name: spec.Name, addr: spec.Address, recv: recv, log: log, done: make(chan struct{})}
}

func (e *udpInEndpoint) Name() string { return e.name }

func (e *udpInEndpoint) Connect(context.Context) error {
	laddr, err := net.ResolveUDPAddr("udp", e.addr)
	if err != nil {
		return err
	}
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return err
	}
	e.conn = conn
	go e.receiveLoop()
	return nil
}

func (e *udpInEndpoint) receiveLoop() {
	buf := make([]byte, 65535)
	for {
		n, _, err := e.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-e.done:
				return
			default:
				e.log.Warn().Err(err).Str("endpoint", e.name).Msg("router: udp read failed")
				return
			}
		}
		frame := make([]byte, n)
		copy(frame, buf[:n])
		e.recv(e.name, frame)
	}
}

func (e *udpInEndpoint) Close() error {
	close(e.done)
	return e.conn.Close()
}

func (e *udpInEndpoint) Send(context.Context, []byte) error {
	return fmt.Errorf("router: %q is an inbound-only endpoint", e.name)
}

// --- TCP endpoint ---

// tcpEndpoint listens (Direction in/bidi) or dials (Direction out) a
// single TCP stream. There is no delimiter framing: the bytes returned by
// each Read are delivered as one frame, and Send writes the payload as is.
type tcpEndpoint struct {
	name    string
	addr    string
	inbound bool
	recv    frameReceiver
	log     zerolog.Logger

	listener net.Listener
	conn     net.Conn
	done     chan struct{}
}

func newTCPEndpoint(spec types.EndpointSpec, recv frameReceiver, log zerolog.Logger) *tcpEndpoint {
	return &tcpEndpoint{
		name:    spec.Name,
		addr:    spec.Address,
		inbound: spec.Direction != types.DirOut,
		recv:    recv,
		log:     log,
		done:    make(chan struct{}),
	}
}

func (e *tcpEndpoint) Name() string { return e.name }

func (e *tcpEndpoint) Connect(ctx context.Context) error {
	if e.inbound {
		ln, err := net.Listen("tcp", e.addr)
		if err != nil {
			return err
		}
		e.listener = ln
		go e.acceptLoop()
		return nil
	}
	conn, err := net.Dial("tcp", e.addr)
	if err != nil {
		return err
	}
	e.conn = conn
	return nil
}

func (e *tcpEndpoint) acceptLoop() {
	for {
		conn, err := e.listener.Accept()
		if err != nil {
			select {
			case <-e.done:
				return
			default:
				e.log.Warn().Err(err).Str("endpoint", e.name).Msg("router: tcp accept failed")
				return
			}
		}
		e.conn = conn
		go e.readLoop(conn)
	}
}

func (e *tcpEndpoint) readLoop(conn net.Conn) {
	buf := make([]byte, 65535)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			return
		}
		frame := make([]byte, n)
		copy(frame, buf[:n])
		e.recv(e.name, frame)
	}
}

func (e *tcpEndpoint) Close() error {
	close(e.done)
	if e.listener != nil {
		_ = e.listener.Close()
	}
	if e.conn != nil {
		return e.conn.Close()
	}
	return nil
}

func (e *tcpEndpoint) Send(_ context.Context, raw []byte) error {
	if e.conn == nil {
		return fmt.Errorf("router: %q has no active connection", e.name)
	}
	_, err := e.conn.Write(raw)
	return err
}
