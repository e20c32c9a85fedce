package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/sakif/people-match/internal/apperror"
	"github.com/sakif/people-match/internal/model"
)

func TestEnsureAssignsPositions(t *testing.T) {
	p := NewQuestionPool(NopJournal{})
	ctx := context.Background()

	q1, _ := p.Ensure(ctx, "Q1")
	q2, _ := p.Ensure(ctx, "Q2")
	again, _ := p.Ensure(ctx, "Q1")

	if q1.ID != 1 || q2.ID != 2 {
		t.Errorf("ids = %d, %d, want 1, 2", q1.ID, q2.ID)
	}
	if again != q1 {
		t.Errorf("Ensure(Q1) again = %+v, want %+v", again, q1)
	}
	if p.Len() != 2 {
		t.Errorf("Len() = %d, want 2", p.Len())
	}
}

func TestEnsureIsExactMatch(t *testing.T) {
	p := NewQuestionPool(NopJournal{})
	ctx := context.Background()

	for _, text := range []string{"Do you like pets?", "do you like pets?", "Do you like pets"} {
		if _, err := p.Ensure(ctx, text); err != nil {
			t.Fatalf("Ensure(%q) error = %v", text, err)
		}
	}
	if p.Len() != 3 {
		t.Errorf("Len() = %d, want 3 distinct questions", p.Len())
	}
}

func TestEnsureRejectsEmpty(t *testing.T) {
	p := NewQuestionPool(NopJournal{})

	for _, text := range []string{"", "   "} {
		_, err := p.Ensure(context.Background(), text)
		if !errors.Is(err, apperror.ErrValidation) {
			t.Errorf("Ensure(%q) error = %v, want ErrValidation", text, err)
		}
	}
}

func TestEnsureJournalFailureLeavesPoolUnchanged(t *testing.T) {
	j := &fakeJournal{failAll: true}
	p := NewQuestionPool(j)

	_, err := p.Ensure(context.Background(), "Q1")
	if !errors.Is(err, errJournal) {
		t.Fatalf("Ensure() error = %v, want errJournal", err)
	}
	if p.Len() != 0 || p.Contains("Q1") {
		t.Error("pool changed despite journal failure")
	}
}

func TestLookups(t *testing.T) {
	p := NewQuestionPool(NopJournal{})
	ctx := context.Background()
	p.Ensure(ctx, "Q1")
	p.Ensure(ctx, "Q2")

	if q, ok := p.ByID(2); !ok || q.Text != "Q2" {
		t.Errorf("ByID(2) = (%+v, %v)", q, ok)
	}
	for _, id := range []int64{0, 3, -1} {
		if _, ok := p.ByID(id); ok {
			t.Errorf("ByID(%d) found a question", id)
		}
	}
	if _, ok := p.Get("Q3"); ok {
		t.Error("Get(Q3) found a question")
	}

	all := p.All()
	all[0].Text = "mutated"
	if q, _ := p.ByID(1); q.Text != "Q1" {
		t.Error("All() returned the internal slice")
	}
}

func TestEnsureConcurrentSameText(t *testing.T) {
	j := &fakeJournal{}
	p := NewQuestionPool(j)

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.Ensure(context.Background(), fmt.Sprintf("Q%d", i%5))
		}()
	}
	wg.Wait()

	if p.Len() != 5 {
		t.Errorf("Len() = %d, want 5", p.Len())
	}
	if got := len(j.kinds()); got != 5 {
		t.Errorf("journaled %d inserts, want 5", got)
	}
	seen := map[int64]bool{}
	for _, q := range p.All() {
		if seen[q.ID] {
			t.Errorf("duplicate id %d", q.ID)
		}
		seen[q.ID] = true
	}
}

func TestRestoreRenumbersAndSkipsDuplicates(t *testing.T) {
	p := NewQuestionPool(&fakeJournal{failAll: true})

	p.restore([]model.Question{{ID: 4, Text: "A"}, {ID: 9, Text: "B"}, {ID: 10, Text: "A"}})

	all := p.All()
	if len(all) != 2 || all[0] != (model.Question{ID: 1, Text: "A"}) || all[1] != (model.Question{ID: 2, Text: "B"}) {
		t.Errorf("All() after restore = %+v", all)
	}
}
