package codec

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/danielpatrickdp/triplet-evolve/internal/optimize"
	"github.com/danielpatrickdp/triplet-evolve/internal/triplet"
)

// #region mock
type mockConn struct {
	replies map[string]map[string]any
	err     error

	method string
	req    map[string]any
}

func (m *mockConn) Invoke(_ context.Context, method string, args, reply any, _ ...grpc.CallOption) error {
	m.method = method
	m.req = args.(*structpb.Struct).AsMap()
	if m.err != nil {
		return m.err
	}
	s, err := structpb.NewStruct(m.replies[method])
	if err != nil {
		return err
	}
	proto.Merge(reply.(proto.Message), s)
	return nil
}

func (m *mockConn) NewStream(context.Context, *grpc.StreamDesc, string, ...grpc.CallOption) (grpc.ClientStream, error) {
	return nil, errors.New("streams not supported")
}

// #endregion mock

// #region constructor-tests
func TestNewAgentClientLazyDial(t *testing.T) {
	client, err := NewAgentClient("localhost:0")
	if err != nil {
		t.Fatalf("unexpected error creating client: %v", err)
	}
	defer client.Close()
}

func TestNewAgentClientWithConnCloseNoop(t *testing.T) {
	c := NewAgentClientWithConn(&mockConn{})
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
}

// #endregion constructor-tests

// #region extract-tests
func TestExtract_Success(t *testing.T) {
	mock := &mockConn{replies: map[string]map[string]any{
		MethodExtract: {"triplet": map[string]any{
			"subject": "小明", "predicate": "跑步",
			"modifiers": map[string]any{"time": "每天早上", "location": ""},
		}},
	}}
	c := NewAgentClientWithConn(mock)
	got, err := c.Extract(context.Background(), "小明每天早上跑步")
	if err != nil {
		t.Fatal(err)
	}
	want := triplet.Triplet{Subject: "小明", Predicate: "跑步", Modifiers: map[string]string{"time": "每天早上"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("triplet (-want +got):\n%s", diff)
	}
	if mock.method != MethodExtract || mock.req["sentence"] != "小明每天早上跑步" {
		t.Errorf("request = %s %v", mock.method, mock.req)
	}
}

func TestExtract_RPCError(t *testing.T) {
	c := NewAgentClientWithConn(&mockConn{err: errors.New("unavailable")})
	if _, err := c.Extract(context.Background(), "s"); err == nil {
		t.Fatal("expected error")
	}
}

func TestExtract_MissingTriplet(t *testing.T) {
	c := NewAgentClientWithConn(&mockConn{replies: map[string]map[string]any{MethodExtract: {}}})
	if _, err := c.Extract(context.Background(), "s"); err == nil {
		t.Fatal("expected error for reply without triplet")
	}
}

func TestRevise_SendsPreviousAndFeedback(t *testing.T) {
	mock := &mockConn{replies: map[string]map[string]any{
		MethodRevise: {"triplet": map[string]any{"subject": "a", "predicate": "b"}},
	}}
	c := NewAgentClientWithConn(mock)
	prev := triplet.Triplet{Subject: "a", Predicate: "x"}
	if _, err := c.Revise(context.Background(), "s", prev, "[structural] wrong predicate"); err != nil {
		t.Fatal(err)
	}
	if mock.req["feedback"] != "[structural] wrong predicate" {
		t.Errorf("feedback = %v", mock.req["feedback"])
	}
	p, _ := mock.req["previous"].(map[string]any)
	if p["predicate"] != "x" {
		t.Errorf("previous = %v", p)
	}
}

// #endregion extract-tests

// #region validate-tests
func TestValidate_Issues(t *testing.T) {
	mock := &mockConn{replies: map[string]map[string]any{
		MethodValidate: {
			"valid":      true,
			"confidence": 0.4,
			"issues": []any{
				map[string]any{"layer": "semantic_completeness", "message": "missing time modifier", "category": "missing_entity"},
				map[string]any{"message": "odd"},
			},
		},
	}}
	res, err := NewAgentClientWithConn(mock).Validate(context.Background(), "s", triplet.Triplet{Predicate: "p"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Valid {
		t.Error("a result with issues must not be valid")
	}
	if res.Confidence != 0.4 || len(res.Issues) != 2 {
		t.Fatalf("result = %+v", res)
	}
	if res.Issues[1].Layer != triplet.LayerDeepCheck {
		t.Errorf("default layer = %s", res.Issues[1].Layer)
	}
}

func TestValidate_MalformedIssue(t *testing.T) {
	mock := &mockConn{replies: map[string]map[string]any{
		MethodValidate: {"valid": false, "issues": []any{"not an object"}},
	}}
	if _, err := NewAgentClientWithConn(mock).Validate(context.Background(), "s", triplet.Triplet{}); err == nil {
		t.Fatal("expected error")
	}
}

// #endregion validate-tests

// #region tune-tests
func TestTuneAttachesParams(t *testing.T) {
	mock := &mockConn{replies: map[string]map[string]any{
		MethodExtract: {"triplet": map[string]any{"predicate": "p"}},
	}}
	c := NewAgentClientWithConn(mock, WithRateLimit(1000, 1))
	p := optimize.DefaultParameterSet()
	p.RuleStrictness = 0.25
	c.Tune(p)
	if _, err := c.Extract(context.Background(), "s"); err != nil {
		t.Fatal(err)
	}
	params, _ := mock.req["params"].(map[string]any)
	if params["rule_strictness"] != 0.25 {
		t.Errorf("params = %v", params)
	}
}

func TestRateLimitHonorsCancellation(t *testing.T) {
	c := NewAgentClientWithConn(&mockConn{}, WithRateLimit(0.001, 1))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.Extract(ctx, "s"); err == nil {
		t.Fatal("expected error from cancelled limiter wait")
	}
}

// #endregion tune-tests
