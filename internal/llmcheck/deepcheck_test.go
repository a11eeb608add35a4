package llmcheck

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/sashabaranov/go-openai"

	"github.com/danielpatrickdp/triplet-evolve/internal/optimize"
	"github.com/danielpatrickdp/triplet-evolve/internal/triplet"
)

type fakeCompleter struct {
	reply string
	err   error
	last  openai.ChatCompletionRequest
}

func (f *fakeCompleter) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.last = req
	if f.err != nil {
		return openai.ChatCompletionResponse{}, f.err
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: f.reply}}},
	}, nil
}

var sample = triplet.Triplet{Subject: "小明", Predicate: "跑步"}

func TestCheckCompleteReplyPasses(t *testing.T) {
	fc := &fakeCompleter{reply: "```json\n{\"complete\": true, \"missing_info\": [], \"recoverable\": true, \"suggestions\": []}\n```"}
	issues, err := New(fc, Config{}).Check(context.Background(), "小明跑步", sample)
	if err != nil {
		t.Fatal(err)
	}
	if len(issues) != 0 {
		t.Errorf("issues = %v", issues)
	}
	if fc.last.Model != "gpt-4o-mini" {
		t.Errorf("model = %q", fc.last.Model)
	}
	if !strings.Contains(fc.last.Messages[1].Content, "跑步(小明, -)") {
		t.Errorf("prompt missing formatted triplet: %q", fc.last.Messages[1].Content)
	}
}

func TestCheckMapsVerdictToIssues(t *testing.T) {
	fc := &fakeCompleter{reply: `Here you go: {"complete": false, "missing_info": ["time"], "recoverable": false, "suggestions": ["add 每天早上"]}`}
	issues, err := New(fc, Config{}).Check(context.Background(), "小明每天早上跑步", sample)
	if err != nil {
		t.Fatal(err)
	}
	if len(issues) != 3 {
		t.Fatalf("issues = %v", issues)
	}
	if issues[0].Category != triplet.CategoryMissingEntity || issues[0].Message != "missing time" {
		t.Errorf("issue[0] = %+v", issues[0])
	}
	if issues[1].Category != triplet.CategoryIncompleteArgument {
		t.Errorf("issue[1] = %+v", issues[1])
	}
	for _, is := range issues {
		if is.Layer != triplet.LayerDeepCheck {
			t.Errorf("layer = %s", is.Layer)
		}
	}
}

func TestCheckPlainTextFallback(t *testing.T) {
	fc := &fakeCompleter{reply: "The triplet is incomplete."}
	issues, _ := New(fc, Config{}).Check(context.Background(), "s", sample)
	if len(issues) != 1 {
		t.Errorf("issues = %v", issues)
	}
}

func TestCheckFailOpen(t *testing.T) {
	fc := &fakeCompleter{err: errors.New("rate limited")}
	issues, err := New(fc, Config{FailOpen: true}).Check(context.Background(), "s", sample)
	if err != nil || issues != nil {
		t.Errorf("fail-open got issues=%v err=%v", issues, err)
	}

	_, err = New(fc, Config{}).Check(context.Background(), "s", sample)
	if err == nil {
		t.Error("expected error when fail-open is off")
	}
}

func TestTuneSetsTemperature(t *testing.T) {
	fc := &fakeCompleter{reply: "{}"}
	c := New(fc, Config{})
	p := optimize.DefaultParameterSet()
	p.Temperature = 0.9
	c.Tune(p)
	if _, err := c.Check(context.Background(), "s", sample); err != nil {
		t.Fatal(err)
	}
	if fc.last.Temperature != float32(0.9) {
		t.Errorf("temperature = %v", fc.last.Temperature)
	}
}
