package codec

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/time/rate"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/danielpatrickdp/triplet-evolve/internal/optimize"
	"github.com/danielpatrickdp/triplet-evolve/internal/triplet"
)

// #region methods
const (
	MethodExtract  = "/triplet.v1.AgentService/Extract"
	MethodRevise   = "/triplet.v1.AgentService/Revise"
	MethodValidate = "/triplet.v1.AgentService/Validate"
)
// #endregion methods

// #region client-struct
// AgentClient talks to an out-of-process extraction/validation agent.
// Messages travel as google.protobuf.Struct so the remote side needs no
// generated stubs.
type AgentClient struct {
	conn    grpc.ClientConnInterface
	closer  func() error
	limiter *rate.Limiter

	mu     sync.RWMutex
	params optimize.ParameterSet
}

// Option configures an AgentClient.
type Option func(*AgentClient)

// WithRateLimit caps outgoing calls per second. Zero disables limiting.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *AgentClient) {
		if perSecond <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}
// #endregion client-struct

// #region constructor
// NewAgentClient connects to the agent gRPC server.
func NewAgentClient(addr string, opts ...Option) (*AgentClient, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("grpc dial %s: %w", addr, err)
	}
	c := NewAgentClientWithConn(conn, opts...)
	c.closer = conn.Close
	return c, nil
}

// NewAgentClientWithConn wraps an existing connection. Used for testing
// without a real server.
func NewAgentClientWithConn(conn grpc.ClientConnInterface, opts ...Option) *AgentClient {
	c := &AgentClient{conn: conn, params: optimize.DefaultParameterSet()}
	for _, o := range opts {
		o(c)
	}
	return c
}
// #endregion constructor

// #region close
// Close shuts down the gRPC connection if the client owns it.
func (c *AgentClient) Close() error {
	if c.closer == nil {
		return nil
	}
	return c.closer()
}
// #endregion close

// Tune sends p along with every subsequent request.
func (c *AgentClient) Tune(p optimize.ParameterSet) {
	c.mu.Lock()
	c.params = p
	c.mu.Unlock()
}

// #region extract
// Extract implements agent.Extractor.
func (c *AgentClient) Extract(ctx context.Context, sentence string) (triplet.Triplet, error) {
	reply, err := c.invoke(ctx, MethodExtract, map[string]any{"sentence": sentence})
	if err != nil {
		return triplet.Triplet{}, fmt.Errorf("extract rpc: %w", err)
	}
	return tripletFrom(reply["triplet"])
}

// Revise implements agent.Extractor.
func (c *AgentClient) Revise(ctx context.Context, sentence string, prev triplet.Triplet, feedback string) (triplet.Triplet, error) {
	reply, err := c.invoke(ctx, MethodRevise, map[string]any{
		"sentence": sentence,
		"previous": tripletValue(prev),
		"feedback": feedback,
	})
	if err != nil {
		return triplet.Triplet{}, fmt.Errorf("revise rpc: %w", err)
	}
	return tripletFrom(reply["triplet"])
}
// #endregion extract

// #region validate
// Validate implements agent.Validator.
func (c *AgentClient) Validate(ctx context.Context, sentence string, t triplet.Triplet) (triplet.ValidationResult, error) {
	reply, err := c.invoke(ctx, MethodValidate, map[string]any{
		"sentence": sentence,
		"triplet":  tripletValue(t),
	})
	if err != nil {
		return triplet.ValidationResult{}, fmt.Errorf("validate rpc: %w", err)
	}

	res := triplet.ValidationResult{}
	res.Valid, _ = reply["valid"].(bool)
	res.Confidence, _ = reply["confidence"].(float64)
	raw, _ := reply["issues"].([]any)
	for _, r := range raw {
		m, ok := r.(map[string]any)
		if !ok {
			return triplet.ValidationResult{}, fmt.Errorf("validate rpc: malformed issue %v", r)
		}
		is := triplet.Issue{
			Layer:    triplet.Layer(str(m["layer"])),
			Message:  str(m["message"]),
			Category: triplet.Category(str(m["category"])),
		}
		if is.Layer == "" {
			is.Layer = triplet.LayerDeepCheck
		}
		res.Issues = append(res.Issues, is)
	}
	if res.Valid && len(res.Issues) > 0 {
		res.Valid = false
	}
	return res, nil
}
// #endregion validate

// #region wire
func (c *AgentClient) invoke(ctx context.Context, method string, body map[string]any) (map[string]any, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	c.mu.RLock()
	body["params"] = map[string]any{
		string(optimize.KnobTemperature):    c.params.Temperature,
		string(optimize.KnobRuleStrictness): c.params.RuleStrictness,
		string(optimize.KnobArgumentCheck):  c.params.ArgumentCheck,
		string(optimize.KnobSamplingRatio):  c.params.SamplingRatio,
	}
	c.mu.RUnlock()

	req, err := structpb.NewStruct(body)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	reply := &structpb.Struct{}
	if err := c.conn.Invoke(ctx, method, req, reply); err != nil {
		return nil, err
	}
	return reply.AsMap(), nil
}

func tripletValue(t triplet.Triplet) map[string]any {
	mods := make(map[string]any, len(t.Modifiers))
	for k, v := range t.Modifiers {
		mods[k] = v
	}
	return map[string]any{
		"subject":   t.Subject,
		"predicate": t.Predicate,
		"object":    t.Object,
		"modifiers": mods,
	}
}

func tripletFrom(v any) (triplet.Triplet, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return triplet.Triplet{}, fmt.Errorf("reply has no triplet object")
	}
	t := triplet.Triplet{
		Subject:   str(m["subject"]),
		Predicate: str(m["predicate"]),
		Object:    str(m["object"]),
	}
	if mods, ok := m["modifiers"].(map[string]any); ok {
		for k, mv := range mods {
			if s := str(mv); s != "" {
				t = t.WithModifier(k, s)
			}
		}
	}
	return t, nil
}

func str(v any) string {
	s, _ := v.(string)
	return s
}
// #endregion wire
