package task

import "testing"

func TestParseAgentRole(t *testing.T) {
	cases := map[string]Role{
		"worker":   RoleWorker,
		"question": RoleQAndA,
		"answer":   RoleQAndA,
		"q_and_a":  RoleQAndA,
		"":         RoleWorker,
	}
	for in, want := range cases {
		if got := ParseAgentRole(in); got != want {
			t.Errorf("ParseAgentRole(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSchemaNextAction(t *testing.T) {
	reg := NewSchemaRegistry()
	s := reg.Get("booking")
	state := NewConversationState()

	if got := s.NextAction(state); got.Type != ActionAsk {
		t.Fatalf("expected ASK with empty state, got %v", got.Type)
	}

	state.Facts["location"] = "downtown"
	state.Facts["datetime"] = "7pm tomorrow"
	state.Facts["party_size"] = 4
	if got := s.NextAction(state); got.Type != ActionComplete {
		t.Fatalf("expected COMPLETE once all facts present, got %v", got.Type)
	}
}

func TestSchemaNextActionExecutesWorker(t *testing.T) {
	reg := NewSchemaRegistry()
	s := reg.Get("document_request")
	state := NewConversationState()
	state.Facts["document_type"] = "invoice"
	state.Facts["recipient"] = "acme co"

	got := s.NextAction(state)
	if got.Type != ActionExecute || got.WorkerID != "generate_document" {
		t.Fatalf("expected EXECUTE(generate_document), got %+v", got)
	}

	state.SetFlag("generate_document_done", true)
	if got := s.NextAction(state); got.Type != ActionComplete {
		t.Fatalf("expected COMPLETE once worker flag set, got %v", got.Type)
	}
}

func TestInferFromRequest(t *testing.T) {
	reg := NewSchemaRegistry()
	if got := reg.InferFromRequest("I'd like to book a table for tonight"); got.Type != "booking" {
		t.Fatalf("expected booking schema, got %s", got.Type)
	}
	if got := reg.InferFromRequest("my laptop is not working"); got.Type != "it_support" {
		t.Fatalf("expected it_support schema, got %s", got.Type)
	}
	if got := reg.InferFromRequest("say hi"); got.Type != "general" {
		t.Fatalf("expected general fallback, got %s", got.Type)
	}
}
