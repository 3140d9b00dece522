package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

// replyTopicSuffix names the shared reply topic each RPC client reads from,
// filtering to its own correlationId (spec.md §4.6: "replies are posted to
// the caller-supplied replyTo with the matching correlationId").
const replyTopicSuffix = "_replies"

// Request is one RPC call over the queue named by Config.QueueRPC
// (spec.md §4.6): {method, args}.
type Request struct {
	Method string          `json:"method"`
	Args   json.RawMessage `json:"args"`
}

// Reply is the structured response to an RPC call: {message, data} on the
// happy path, or {message: "Invalid method", data: null} for an unknown
// method (spec.md §4.6).
type Reply struct {
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// RPCMethodHandler implements one named RPC method.
type RPCMethodHandler func(ctx context.Context, args json.RawMessage) (Reply, error)

// RPCTransport is the synchronous request/reply layer over the RPC queue
// (spec.md §4.6), reusing the teacher's Writer/Reader construction
// (ingestion/internal/kafka/signal.go) rather than introducing a separate
// client library for request/reply semantics.
type RPCTransport struct {
	brokers     []string
	requestTopic string
	replyTopic   string
	writer       *kafka.Writer
}

func NewRPCTransport(brokers []string, namespace func(string) string, queueRPC string) *RPCTransport {
	requestTopic := namespace(queueRPC)
	replyTopic := namespace(queueRPC + replyTopicSuffix)
	return &RPCTransport{
		brokers:      brokers,
		requestTopic: requestTopic,
		replyTopic:   replyTopic,
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  requestTopic,
			RequiredAcks:           kafka.RequireAll,
			AllowAutoTopicCreation: true,
		},
	}
}

// Call publishes a request and blocks until a matching reply arrives, ctx
// is canceled, or timeout elapses (spec.md §5 "every suspension point MUST
// carry a deadline").
func (t *RPCTransport) Call(ctx context.Context, method string, args json.RawMessage, timeout time.Duration) (Reply, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	correlationID := uuid.NewString()
	req := Request{Method: method, Args: args}
	body, err := json.Marshal(req)
	if err != nil {
		return Reply{}, fmt.Errorf("marshal rpc request: %w", err)
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers: t.brokers,
		GroupID: "rpc-client-" + correlationID,
		Topic:   t.replyTopic,
	})
	defer reader.Close()

	kmsg := kafka.Message{
		Key:   []byte(correlationID),
		Value: body,
		Headers: []kafka.Header{
			{Key: headerCorrelationID, Value: []byte(correlationID)},
			{Key: headerReplyTo, Value: []byte(t.replyTopic)},
		},
	}
	if err := t.writer.WriteMessages(callCtx, kmsg); err != nil {
		return Reply{}, fmt.Errorf("rpc publish request: %w", err)
	}

	for {
		kreply, err := reader.ReadMessage(callCtx)
		if err != nil {
			return Reply{}, fmt.Errorf("rpc await reply: %w", err)
		}
		if !headerEquals(kreply.Headers, headerCorrelationID, correlationID) {
			continue
		}
		var reply Reply
		if err := json.Unmarshal(kreply.Value, &reply); err != nil {
			return Reply{}, fmt.Errorf("unmarshal rpc reply: %w", err)
		}
		return reply, nil
	}
}

// RPCServer consumes requests from the RPC queue and dispatches to
// registered method handlers, replying on the caller's replyTo topic
// (spec.md §4.6).
type RPCServer struct {
	brokers  []string
	methods  map[string]RPCMethodHandler
	reader   *kafka.Reader
}

func NewRPCServer(brokers []string, namespace func(string) string, queueRPC string) *RPCServer {
	return &RPCServer{
		brokers: brokers,
		methods: make(map[string]RPCMethodHandler),
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers: brokers,
			GroupID: namespace(queueRPC) + "-server",
			Topic:   namespace(queueRPC),
		}),
	}
}

// Register binds a method name to its handler.
func (s *RPCServer) Register(method string, handler RPCMethodHandler) {
	s.methods[method] = handler
}

// Run serves requests until ctx is canceled.
func (s *RPCServer) Run(ctx context.Context) error {
	for {
		kmsg, err := s.reader.ReadMessage(ctx)
		if err != nil {
			return fmt.Errorf("rpc server read: %w", err)
		}

		var req Request
		if err := json.Unmarshal(kmsg.Value, &req); err != nil {
			continue
		}

		replyTo := headerValue(kmsg.Headers, headerReplyTo)
		correlationID := headerValue(kmsg.Headers, headerCorrelationID)
		if replyTo == "" || correlationID == "" {
			continue
		}

		reply := s.invoke(ctx, req)
		s.sendReply(ctx, replyTo, correlationID, reply)
	}
}

func (s *RPCServer) invoke(ctx context.Context, req Request) Reply {
	handler, ok := s.methods[req.Method]
	if !ok {
		// spec.md §4.6: "Unknown methods return a structured
		// {message: "Invalid method", data: null}".
		return Reply{Message: "Invalid method"}
	}
	reply, err := handler(ctx, req.Args)
	if err != nil {
		return Reply{Message: err.Error()}
	}
	return reply
}

func (s *RPCServer) sendReply(ctx context.Context, replyTo, correlationID string, reply Reply) {
	body, err := json.Marshal(reply)
	if err != nil {
		return
	}
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(s.brokers...),
		Topic:                  replyTo,
		AllowAutoTopicCreation: true,
	}
	defer writer.Close()

	_ = writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(correlationID),
		Value: body,
		Headers: []kafka.Header{
			{Key: headerCorrelationID, Value: []byte(correlationID)},
		},
	})
}

// Close closes the underlying reader.
func (s *RPCServer) Close() error {
	return s.reader.Close()
}

func headerValue(headers []kafka.Header, key string) string {
	for _, h := range headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func headerEquals(headers []kafka.Header, key, want string) bool {
	return headerValue(headers, key) == want
}
