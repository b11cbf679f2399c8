package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/aaltosatellite/porthouse/pkg/log"
	"github.com/aaltosatellite/porthouse/pkg/metrics"
	"github.com/aaltosatellite/porthouse/pkg/types"
)

// Delivery is the subset of an AMQP delivery a module handler needs.
type Delivery struct {
	Exchange      string
	RoutingKey    string
	Body          []byte
	ContentType   string
	CorrelationID string
	ReplyTo       string
}

// Bind is one routing pattern a queue registration attaches to an exchange.
type Bind struct {
	Exchange   string
	RoutingKey string
}

// consumerReg is a module's declarative queue registration, replayed verbatim
// on reconnect (server-named queues are re-declared with a fresh name).
type consumerReg struct {
	requestedName string
	actualName    string
	exclusive     bool
	autoDelete    bool
	binds         []Bind
	handler       func(Delivery)
}

// Client wraps one AMQP connection/channel pair for a single module process.
type Client struct {
	url string

	mu        sync.Mutex
	conn      *amqp.Connection
	ch        *amqp.Channel
	consumers []*consumerReg

	maxAttempts int
	retryDelay  time.Duration

	log zerolog.Logger
}

// New creates a client bound to url but does not yet connect.
func New(url string) *Client {
	return &Client{
		url:         url,
		maxAttempts: 5,
		retryDelay: 2 * time.Second,
		log:         log.WithComponent("broker"),
	}
}

// Connect dials the broker and opens a channel. Safe to call again after a
// connection loss.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectLocked(ctx)
}

func (c *Client) connectLocked(ctx context.Context) error {
	conn, err := amqp.DialConfig(c.url, amqp.Config{Dial: amqp.DefaultDial(10 * time.Second)})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConnectionLost, err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("%w: %v", ErrChannelClosed, err)
	}
	c.conn = conn
	c.ch = ch
	return nil
}

// Close tears down the channel and connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ch != nil {
		_ = c.ch.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// DeclareExchange asserts one exchange. When redeclare is true (launcher's
// --declare_exchanges mode) an existing exchange is deleted first.
func (c *Client) DeclareExchange(decl types.ExchangeDeclaration, redeclare bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if redeclare {
		_ = c.ch.ExchangeDelete(decl.Name, false, false)
	}
	return c.ch.ExchangeDeclare(decl.Name, string(decl.Kind), decl.Durable, decl.AutoDelete, false, false, nil)
}

// Publish sends body to exchange/routingKey with no special headers.
func (c *Client) Publish(exchange, routingKey string, body []byte) error {
	return c.PublishWithHeaders(exchange, routingKey, body, nil)
}

// PublishWithHeaders is the primitive the RPC transport layers correlation
// ids and reply-to addresses on top of. The well-known "content-type",
// "correlation_id", and "reply_to" keys are mapped onto the AMQP basic
// properties of the same name (spec 4.C step 3: the RPC envelope headers
// are delivered as properties, not as free-form header-table entries) so
// the receiving side's Delivery.CorrelationID/ReplyTo are actually
// populated; any other key is passed through in the headers table.
func (c *Client) PublishWithHeaders(exchange, routingKey string, body []byte, headers map[string]any) error {
	contentType := "text/plain"
	var correlationID, replyTo string
	table := amqp.Table{}
	for k, v := range headers {
		switch k {
		case "content-type":
			if s, ok := v.(string); ok {
				contentType = s
			}
		case "correlation_id":
			if s, ok := v.(string); ok {
				correlationID = s
			}
		case "reply_to":
			if s, ok := v.(string); ok {
				replyTo = s
			}
		default:
			table[k] = v
		}
	}

	var lastErr error
	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		c.mu.Lock()
		if c.ch == nil {
			c.mu.Unlock()
			return fmt.Errorf("%w: not connected", ErrConnectionLost)
		}
		err := c.ch.Publish(exchange, routingKey, false, false, amqp.Publishing{
			ContentType:   contentType,
			CorrelationId: correlationID,
			ReplyTo:       replyTo,
			Headers:       table,
			Body:          body,
			Timestamp:     time.Now(),
		})
		c.mu.Unlock()

		if err == nil {
			return nil
		}
		lastErr = err

		if !isChannelClosed(err) {
			return fmt.Errorf("%w: %v", ErrExchangeMissing, err)
		}

		c.log.Warn().Err(err).Int("attempt", attempt+1).Msg("publish failed, reconnecting")
		if rerr := c.reconnectAndRestore(context.Background()); rerr != nil {
			lastErr = rerr
			time.Sleep(c.retryDelay)
			continue
		}
	}
	return fmt.Errorf("%w: %v", ErrConnectionLost, lastErr)
}

// DeclareAndConsume declares a queue (anonymous if name is ""), binds it to
// the given routing patterns, and starts delivering to handler. It returns
// the queue's actual (possibly server-generated) name. The registration is
// remembered so a reconnect can recreate it verbatim.
func (c *Client) DeclareAndConsume(name string, binds []Bind, handler func(Delivery)) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	reg := &consumerReg{
		requestedName: name,
		exclusive:     true,
		autoDelete:    true,
		binds:         binds,
		handler:       handler,
	}
	actual, err := c.declareConsumeLocked(reg)
	if err != nil {
		return "", err
	}
	c.consumers = append(c.consumers, reg)
	return actual, nil
}

func (c *Client) declareConsumeLocked(reg *consumerReg) (string, error) {
	q, err := c.ch.QueueDeclare(reg.requestedName, false, reg.autoDelete, reg.exclusive, false, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrChannelClosed, err)
	}
	for _, b := range reg.binds {
		if err := c.ch.QueueBind(q.Name, b.RoutingKey, b.Exchange, false, nil); err != nil {
			return "", fmt.Errorf("%w: %v", ErrExchangeMissing, err)
		}
	}
	deliveries, err := c.ch.Consume(q.Name, "", true, reg.exclusive, false, false, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrChannelClosed, err)
	}
	reg.actualName = q.Name

	go func() {
		for d := range deliveries {
			reg.handler(Delivery{
				Exchange:      d.Exchange,
				RoutingKey:    d.RoutingKey,
				Body:          d.Body,
				ContentType:   d.ContentType,
				CorrelationID: d.CorrelationId,
				ReplyTo:       d.ReplyTo,
			})
		}
	}()
	return q.Name, nil
}

// reconnectAndRestore redials and replays every remembered consumer
// registration, giving server-named queues fresh names as spec 4.A requires.
func (c *Client) reconnectAndRestore(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		_ = c.conn.Close()
	}
	if err := c.connectLocked(ctx); err != nil {
		return err
	}
	metrics.BrokerReconnectsTotal.Inc()
	for _, reg := range c.consumers {
		if _, err := c.declareConsumeLocked(reg); err != nil {
			return err
		}
	}
	return nil
}

func isChannelClosed(err error) bool {
	if amqpErr, ok := err.(*amqp.Error); ok {
		return amqpErr.Code == amqp.ChannelError || amqpErr.Code == amqp.ConnectionForced
	}
	return err == amqp.ErrClosed
}
