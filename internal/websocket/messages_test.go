package websocket

import (
	"encoding/json"
	"testing"
)

func TestParseEventStartStream(t *testing.T) {
	raw := []byte(`{"type":"start-stream","userId":"u1","conversationId":"c1","sessionId":"s1"}`)

	event, err := ParseEvent(raw)
	if err != nil {
		t.Fatalf("ParseEvent: %v", err)
	}

	ev, ok := event.(*StartStreamEvent)
	if !ok {
		t.Fatalf("expected *StartStreamEvent, got %T", event)
	}
	if ev.UserID != "u1" || ev.ConversationID != "c1" || ev.SessionID != "s1" {
		t.Errorf("unexpected event: %+v", ev)
	}
}

func TestParseEventAudioChunk(t *testing.T) {
	raw := []byte(`{"type":"audio-chunk","chunk":"QUJD","chunkIndex":3,"isFinal":true}`)

	event, err := ParseEvent(raw)
	if err != nil {
		t.Fatalf("ParseEvent: %v", err)
	}

	ev, ok := event.(*AudioChunkEvent)
	if !ok {
		t.Fatalf("expected *AudioChunkEvent, got %T", event)
	}
	if ev.Chunk != "QUJD" || ev.ChunkIndex != 3 || !ev.IsFinal {
		t.Errorf("unexpected event: %+v", ev)
	}
}

func TestParseEventRejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", `{{{`},
		{"missing type", `{"chunk":"QUJD"}`},
		{"unknown type", `{"type":"warp-drive"}`},
		{"audio chunk without chunk", `{"type":"audio-chunk","chunkIndex":0}`},
		{"audio chunk negative index", `{"type":"audio-chunk","chunk":"QUJD","chunkIndex":-1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseEvent([]byte(tt.raw)); err == nil {
				t.Errorf("expected error for %s", tt.raw)
			}
		})
	}
}

func TestParseEventControlSignals(t *testing.T) {
	for raw, wantType := range map[string]string{
		`{"type":"end-stream","sessionId":"s1"}`:            "*websocket.EndStreamEvent",
		`{"type":"cancel-stream","sessionId":"s1"}`:         "*websocket.CancelStreamEvent",
		`{"type":"end-conversation","conversationId":"c1"}`: "*websocket.EndConversationEvent",
		`{"type":"get-session-info"}`:                       "*websocket.GetSessionInfoEvent",
	} {
		event, err := ParseEvent([]byte(raw))
		if err != nil {
			t.Fatalf("ParseEvent(%s): %v", raw, err)
		}
		var got string
		switch event.(type) {
		case *EndStreamEvent:
			got = "*websocket.EndStreamEvent"
		case *CancelStreamEvent:
			got = "*websocket.CancelStreamEvent"
		case *EndConversationEvent:
			got = "*websocket.EndConversationEvent"
		case *GetSessionInfoEvent:
			got = "*websocket.GetSessionInfoEvent"
		}
		if got != wantType {
			t.Errorf("ParseEvent(%s) = %T, want %s", raw, event, wantType)
		}
	}
}

func TestOutboundMarshalFlattensFields(t *testing.T) {
	out := NewOutbound(EventChunkReceived, map[string]interface{}{
		"chunkIndex":    5,
		"bytesReceived": 1024,
	})

	payload, err := json.Marshal(out)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(payload, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	if decoded["type"] != EventChunkReceived {
		t.Errorf("type = %v, want %s", decoded["type"], EventChunkReceived)
	}
	if decoded["chunkIndex"] != float64(5) {
		t.Errorf("chunkIndex = %v, want 5", decoded["chunkIndex"])
	}
	if _, ok := decoded["timestamp"]; !ok {
		t.Error("missing timestamp")
	}
}

func TestNewErrorEventShape(t *testing.T) {
	out := NewErrorEvent(CodeChunkFailed, "boom")

	payload, err := json.Marshal(out)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(payload, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	if decoded["type"] != EventError || decoded["code"] != CodeChunkFailed || decoded["message"] != "boom" {
		t.Errorf("unexpected error event: %v", decoded)
	}
}
