package workflow

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestHeuristicSummarizer(t *testing.T) {
	s := HeuristicSummarizer{}
	ctx := context.Background()
	cases := []struct {
		name string
		in   SummaryInput
		want string
	}{
		{"first entry", SummaryInput{Opinion: "Loved", Description: "Track: Blue Bird\nAlbum: x"}, "Loved: Track: Blue Bird"},
		{"default opinion", SummaryInput{Description: "Product: Blanket"}, "Consumed: Product: Blanket"},
		{"append", SummaryInput{Current: "Loved: Track: A", Opinion: "Okish", Description: "Track: B"}, "Loved: Track: A\nOkish: Track: B"},
		{"duplicate", SummaryInput{Current: "Loved: Track: A", Opinion: "Loved", Description: "Track: A"}, "Loved: Track: A"},
	}
	for _, tc := range cases {
		got, err := s.Summarize(ctx, tc.in)
		if err != nil || got != tc.want {
			t.Errorf("%s: got %q, %v; want %q", tc.name, got, err, tc.want)
		}
	}
}

func TestCapSummary(t *testing.T) {
	var lines []string
	for i := 0; i < 80; i++ {
		lines = append(lines, fmt.Sprintf("line %d", i))
	}
	got := CapSummary(strings.Join(lines, "\n"))
	kept := strings.Split(got, "\n")
	if len(kept) != MaxSummaryLines || kept[len(kept)-1] != "line 79" {
		t.Fatalf("expected the last %d lines, got %d ending %q", MaxSummaryLines, len(kept), kept[len(kept)-1])
	}

	long := strings.Repeat("é", MaxSummaryChars+10)
	if n := utf8.RuneCountInString(CapSummary(long)); n != MaxSummaryChars {
		t.Fatalf("expected %d runes, got %d", MaxSummaryChars, n)
	}

	wide := strings.Repeat(strings.Repeat("x", 100)+"\n", 40)
	if n := utf8.RuneCountInString(CapSummary(wide)); n > MaxSummaryChars {
		t.Fatalf("summary over limit: %d", n)
	}
}

type countingSummarizer struct{ calls int }

func (c *countingSummarizer) Summarize(_ context.Context, in SummaryInput) (string, error) {
	c.calls++
	return fmt.Sprintf("%s #%d", in.Opinion, c.calls), nil
}

func TestCachedSummarizer(t *testing.T) {
	inner := &countingSummarizer{}
	s := NewCachedSummarizer(inner, 8, 0)
	ctx := context.Background()
	in := SummaryInput{Opinion: "Loved", Description: "Track: A"}

	first, _ := s.Summarize(ctx, in)
	second, _ := s.Summarize(ctx, in)
	if first != second || inner.calls != 1 {
		t.Fatalf("expected a cache hit, got %q %q after %d calls", first, second, inner.calls)
	}
	in.Current = first
	if _, err := s.Summarize(ctx, in); err != nil || inner.calls != 2 {
		t.Fatalf("changed input should miss the cache, calls=%d err=%v", inner.calls, err)
	}
	if NewCachedSummarizer(inner, 0, 0) != Summarizer(inner) {
		t.Fatal("size 0 should return the inner summarizer")
	}
}
