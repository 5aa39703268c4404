package store

import (
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "prompts.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCreateAndListPrompts(t *testing.T) {
	s := openTestStore(t)

	p, err := s.CreatePrompt("Explain code", "walks through a selection", "Explain this:", []string{"explain", "code"})
	if err != nil {
		t.Fatalf("CreatePrompt: %v", err)
	}
	if p.ID == "" {
		t.Fatal("expected a generated id")
	}

	all, err := s.ListPrompts()
	if err != nil {
		t.Fatalf("ListPrompts: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("len(all) = %d, want 1", len(all))
	}
	if all[0].Title != "Explain code" || len(all[0].Tags) != 2 {
		t.Errorf("got %+v", all[0])
	}
}

func TestUpdatePrompt(t *testing.T) {
	s := openTestStore(t)
	p, _ := s.CreatePrompt("Title", "", "content", nil)

	if err := s.UpdatePrompt(p.ID, "New title", "desc", "new content", []string{"x"}); err != nil {
		t.Fatalf("UpdatePrompt: %v", err)
	}
	all, _ := s.ListPrompts()
	if all[0].Title != "New title" || all[0].Content != "new content" {
		t.Errorf("got %+v", all[0])
	}
}

func TestDeletePromptIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	p, _ := s.CreatePrompt("Title", "", "content", nil)

	if err := s.DeletePrompt(p.ID); err != nil {
		t.Fatalf("DeletePrompt: %v", err)
	}
	if err := s.DeletePrompt(p.ID); err != nil {
		t.Fatalf("second DeletePrompt should be a no-op, got: %v", err)
	}
	all, _ := s.ListPrompts()
	if len(all) != 0 {
		t.Errorf("len(all) = %d, want 0", len(all))
	}
}

func TestRecordUsageIncrementsCountAndStampsLastUsed(t *testing.T) {
	s := openTestStore(t)
	p, _ := s.CreatePrompt("Title", "", "content", nil)

	if err := s.RecordUsage(p.ID); err != nil {
		t.Fatalf("RecordUsage: %v", err)
	}
	if err := s.RecordUsage(p.ID); err != nil {
		t.Fatalf("RecordUsage: %v", err)
	}

	all, _ := s.ListPrompts()
	if all[0].UsageCount != 2 {
		t.Errorf("UsageCount = %d, want 2", all[0].UsageCount)
	}
	if all[0].LastUsedAt == nil {
		t.Error("expected LastUsedAt to be set")
	}
}

func TestListPromptsOrdersByUpdatedAtDescending(t *testing.T) {
	s := openTestStore(t)
	first, _ := s.CreatePrompt("first", "", "c", nil)
	time.Sleep(1100 * time.Millisecond) // updated_at has second resolution
	_, _ = s.CreatePrompt("second", "", "c", nil)
	time.Sleep(1100 * time.Millisecond)

	// Touch "first" so it becomes the most recently updated.
	if err := s.UpdatePrompt(first.ID, "first", "", "c2", nil); err != nil {
		t.Fatal(err)
	}

	all, _ := s.ListPrompts()
	if all[0].Title != "first" {
		t.Errorf("all[0].Title = %q, want first (most recently updated)", all[0].Title)
	}
}
