package console

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"mt5rtd/internal/domain"
)

func TestSinkPublish(t *testing.T) {
	var buf bytes.Buffer
	s := NewSinkTo(&buf)

	q := domain.Quote{Symbol: "PETR4", Price: 37.11, Bid: 37.1, Ask: 37.12, Time: time.Now(), IsRealtime: true}
	if err := s.Publish(context.Background(), "room1", q); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	line := buf.String()
	if !strings.Contains(line, "[room1]") || !strings.Contains(line, "PETR4") || !strings.Contains(line, "37.11") {
		t.Errorf("unexpected line %q", line)
	}
	if !strings.HasSuffix(line, "RT\n") {
		t.Errorf("expected realtime tag, got %q", line)
	}
	if strings.Contains(line, "\033[") {
		t.Errorf("plain sink must not emit ansi codes: %q", line)
	}

	buf.Reset()
	q.IsRealtime = false
	q.Source = domain.SourceM1Fallback
	s.Publish(context.Background(), "room1", q)
	if !strings.Contains(buf.String(), "M1_fallback") {
		t.Errorf("expected source tag, got %q", buf.String())
	}
}

func TestSinkDirection(t *testing.T) {
	var buf bytes.Buffer
	s := NewSinkTo(&buf)
	ctx := context.Background()

	q := domain.Quote{Symbol: "VALE3", Price: 60, Time: time.Now(), IsRealtime: true}
	s.Publish(ctx, "r", q)
	buf.Reset()

	q.Price = 61
	s.Publish(ctx, "r", q)
	if !strings.Contains(buf.String(), "+     61.00") {
		t.Errorf("expected up marker, got %q", buf.String())
	}
	buf.Reset()

	q.Price = 59.5
	s.Publish(ctx, "r", q)
	if !strings.Contains(buf.String(), "-     59.50") {
		t.Errorf("expected down marker, got %q", buf.String())
	}
	buf.Reset()

	// another room starts its own history
	s.Publish(ctx, "other", q)
	if !strings.Contains(buf.String(), "      59.50") || strings.Contains(buf.String(), "-     59.50") {
		t.Errorf("expected neutral marker for new room, got %q", buf.String())
	}
}
