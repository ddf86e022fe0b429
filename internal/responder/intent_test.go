package responder

import (
	"testing"
	"time"
)

var intentNow = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC) // a Monday

func TestExtractIntentTomorrowWithPMTime(t *testing.T) {
	intent := ExtractIntent("Need a plumber tomorrow at 3pm", intentNow)
	if intent == nil {
		t.Fatalf("expected intent, got nil")
	}
	want := time.Date(2026, 3, 3, 15, 0, 0, 0, time.UTC)
	if !intent.Start.Equal(want) {
		t.Fatalf("expected start %s, got %s", want, intent.Start)
	}
	if !intent.End.Equal(want.Add(DefaultBookingDuration)) {
		t.Fatalf("expected 2h window, got end %s", intent.End)
	}
}

func TestExtractIntentDateWithoutTimeDefaultsToMorning(t *testing.T) {
	intent := ExtractIntent("Can you come by tomorrow?", intentNow)
	if intent == nil {
		t.Fatalf("expected intent, got nil")
	}
	if intent.Start.Hour() != 10 || intent.Start.Minute() != 0 {
		t.Fatalf("expected default 10:00 start, got %s", intent.Start)
	}
}

func TestExtractIntentBareTimeWithoutDateIsNil(t *testing.T) {
	if intent := ExtractIntent("I'm usually free around 3pm", intentNow); intent != nil {
		t.Fatalf("expected nil intent for bare time, got %+v", intent)
	}
}

func TestExtractIntentNoMentionIsNil(t *testing.T) {
	if intent := ExtractIntent("How much does a renovation cost?", intentNow); intent != nil {
		t.Fatalf("expected nil intent, got %+v", intent)
	}
}

func TestExtractIntentISODate(t *testing.T) {
	intent := ExtractIntent("Available on 2026-03-10 at 9:30am", intentNow)
	if intent == nil {
		t.Fatalf("expected intent, got nil")
	}
	want := time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC)
	if !intent.Start.Equal(want) {
		t.Fatalf("expected start %s, got %s", want, intent.Start)
	}
}

func TestExtractIntentWeekdayResolvesToNextOccurrence(t *testing.T) {
	intent := ExtractIntent("Does Friday work for you?", intentNow)
	if intent == nil {
		t.Fatalf("expected intent, got nil")
	}
	if intent.Start.Weekday() != time.Friday {
		t.Fatalf("expected Friday, got %s", intent.Start.Weekday())
	}
	if !intent.Start.After(intentNow) {
		t.Fatalf("expected future date, got %s", intent.Start)
	}
	if intent.Start.Sub(intentNow) > 7*24*time.Hour {
		t.Fatalf("expected the next Friday, got %s", intent.Start)
	}
}

func TestExtractIntentSameDayPastTimeRollsForward(t *testing.T) {
	lateNow := time.Date(2026, 3, 2, 18, 0, 0, 0, time.UTC)
	intent := ExtractIntent("Can you come today at 2pm?", lateNow)
	if intent == nil {
		t.Fatalf("expected intent, got nil")
	}
	if intent.Start.Day() != 3 || intent.Start.Hour() != 14 {
		t.Fatalf("expected rollover to next day 14:00, got %s", intent.Start)
	}
}

func TestExtractIntent24HourClock(t *testing.T) {
	intent := ExtractIntent("Tomorrow 16:30 works", intentNow)
	if intent == nil {
		t.Fatalf("expected intent, got nil")
	}
	if intent.Start.Hour() != 16 || intent.Start.Minute() != 30 {
		t.Fatalf("expected 16:30, got %s", intent.Start)
	}
}

func TestExtractIntentNoonAndMidnight(t *testing.T) {
	intent := ExtractIntent("tomorrow at 12pm", intentNow)
	if intent == nil || intent.Start.Hour() != 12 {
		t.Fatalf("expected noon, got %+v", intent)
	}

	intent = ExtractIntent("tomorrow at 12am", intentNow)
	if intent == nil || intent.Start.Hour() != 0 {
		t.Fatalf("expected midnight, got %+v", intent)
	}
}
