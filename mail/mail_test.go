package mail

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogSenderOmitsToken(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	s := LogSender{Logger: zap.New(core)}

	err := s.Send(context.Background(), Message{Kind: KindEmailVerification, Recipient: "a@b.c", Token: "secret-token", Locale: "es"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected one log entry, got %d", len(entries))
	}
	for _, f := range entries[0].Context {
		if f.String == "secret-token" {
			t.Fatal("token must not be logged")
		}
	}
	if entries[0].ContextMap()["recipient"] != "a@b.c" {
		t.Fatalf("unexpected fields: %v", entries[0].ContextMap())
	}
}
