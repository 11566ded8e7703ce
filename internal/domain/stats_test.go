package domain_test

import (
	"testing"
	"time"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

func TestGrowth(t *testing.T) {
	cases := []struct {
		name      string
		cur, prev float64
		want      float64
	}{
		{name: "zero base with activity", cur: 5, prev: 0, want: 100},
		{name: "zero base without activity", cur: 0, prev: 0, want: 0},
		{name: "double", cur: 10, prev: 5, want: 100},
		{name: "drop", cur: 1, prev: 4, want: -75},
		{name: "rounded to two decimals", cur: 2, prev: 3, want: -33.33},
		{name: "no change", cur: 7, prev: 7, want: 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := domain.Growth(tc.cur, tc.prev); got != tc.want {
				t.Fatalf("Growth(%v, %v)=%v, want %v", tc.cur, tc.prev, got, tc.want)
			}
		})
	}
}

func TestStatsPeriodWindows(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	if got := domain.ParseStatsPeriod("bogus"); got != domain.PeriodWeek {
		t.Fatalf("default period must be week, got %s", got)
	}
	cur, prev := domain.PeriodDay.Windows(now)
	if !cur.Equal(now.Add(-24*time.Hour)) || !prev.Equal(now.Add(-48*time.Hour)) {
		t.Fatalf("unexpected day windows %s %s", cur, prev)
	}
}

func TestNotificationRoundTripThroughOutbox(t *testing.T) {
	draft := domain.NotificationDraft{
		RecipientID: "u-1",
		SenderID:    "u-2",
		Type:        domain.NotificationOfferAccepted,
		Title:       "Offer accepted",
		ProductID:   "p-1",
	}
	msg, err := domain.NewNotificationMessage(draft)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if msg.AggregateType != domain.AggregateNotification || msg.AggregateID != "u-1" {
		t.Fatalf("unexpected outbox message %+v", msg)
	}
	got, ok, err := domain.DecodeNotification(msg)
	if err != nil || !ok || got != draft {
		t.Fatalf("decode mismatch: %+v ok=%v err=%v", got, ok, err)
	}

	event, err := domain.NewEventMessage(domain.AggregateOrder, domain.EventOrderApproved, domain.DomainEvent{AggregateID: "o-1"})
	if err != nil {
		t.Fatalf("event: %v", err)
	}
	if _, ok, _ := domain.DecodeNotification(event); ok {
		t.Fatal("domain event must not decode as notification")
	}
}
