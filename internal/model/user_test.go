package model

import (
	"errors"
	"testing"
	"time"
)

func newTestUser() *User {
	return NewUser("id-1", "Ran", time.Unix(0, 0), "", nil)
}

func record(u *User, q string, a bool) {
	_ = u.Update(func(p *Profile) error { p.RecordAnswer(q, a); return nil })
}

func skip(u *User, q string) {
	_ = u.Update(func(p *Profile) error { p.Skip(q); return nil })
}

func TestAnswerStateMachine(t *testing.T) {
	tests := []struct {
		name  string
		steps func(u *User)
		want  AnswerState
	}{
		{"initial state is unset", func(u *User) {}, AnswerUnset},
		{"unset then answer", func(u *User) { record(u, "Q1", true) }, AnswerYes},
		{"answer overwrites answer", func(u *User) { record(u, "Q1", true); record(u, "Q1", false) }, AnswerNo},
		{"answer then skip discards answer", func(u *User) { record(u, "Q1", true); skip(u, "Q1") }, AnswerSkipped},
		{"skip then answer", func(u *User) { skip(u, "Q1"); record(u, "Q1", true) }, AnswerYes},
		{"skip is idempotent", func(u *User) { skip(u, "Q1"); skip(u, "Q1") }, AnswerSkipped},
		{"cycles indefinitely", func(u *User) {
			for range 3 {
				record(u, "Q1", false)
				skip(u, "Q1")
			}
			record(u, "Q1", false)
		}, AnswerNo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := newTestUser()
			tt.steps(u)
			if got := u.State("Q1"); got != tt.want {
				t.Errorf("State(Q1) = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSkipAndAnswerAreMutuallyExclusive(t *testing.T) {
	// Drive every sequence of length 4 over {answer yes, answer no, skip}.
	ops := []func(u *User){
		func(u *User) { record(u, "Q", true) },
		func(u *User) { record(u, "Q", false) },
		func(u *User) { skip(u, "Q") },
	}

	var walk func(depth int, seq []int)
	walk = func(depth int, seq []int) {
		u := newTestUser()
		for _, i := range seq {
			ops[i](u)
			_, answered := u.Answers()["Q"]
			skipped := false
			for _, s := range u.Skipped() {
				if s == "Q" {
					skipped = true
				}
			}
			if answered && skipped {
				t.Fatalf("sequence %v: question is both answered and skipped", seq)
			}
			if len(seq) > 0 && !answered && !skipped {
				t.Fatalf("sequence %v: question is neither answered nor skipped", seq)
			}
		}
		if depth == 0 {
			return
		}
		for i := range ops {
			walk(depth-1, append(append([]int(nil), seq...), i))
		}
	}
	walk(4, nil)
}

func TestSkipClearsAnswerToAbsentNotFalse(t *testing.T) {
	u := newTestUser()
	record(u, "Q1", true)
	skip(u, "Q1")

	if _, ok := u.Answers()["Q1"]; ok {
		t.Error("answer should be absent after skip")
	}
	var got bool
	var ok bool
	u.View(func(p *Profile) { got, ok = p.Answer("Q1") })
	if ok || got {
		t.Errorf("Answer(Q1) = (%v, %v), want (false, false)", got, ok)
	}
}

func TestPreferencesIndependentOfAnswers(t *testing.T) {
	u := newTestUser()
	_ = u.Update(func(p *Profile) error { p.SetPreference("Travel?", true); return nil })
	skip(u, "Travel?")

	if got := u.Preferences()["Travel?"]; !got {
		t.Error("preference should survive a skip of the same question")
	}
	if u.State("Travel?") != AnswerSkipped {
		t.Error("skip should not be affected by the preference")
	}
}

func TestMergeMetadata(t *testing.T) {
	u := NewUser("id-2", "Milo", time.Now(), "", map[string]string{"city": "Austin"})
	_ = u.Update(func(p *Profile) error {
		p.MergeMetadata("https://img/milo.jpg", map[string]string{"role": "designer"})
		p.MergeMetadata("", map[string]string{"city": "Denver"})
		return nil
	})

	v := u.Snapshot()
	if v.ProfileImageURL != "https://img/milo.jpg" {
		t.Errorf("ProfileImageURL = %q, empty URL must not overwrite", v.ProfileImageURL)
	}
	if v.Details["city"] != "Denver" || v.Details["role"] != "designer" {
		t.Errorf("Details = %v, want city=Denver role=designer", v.Details)
	}
}

func TestUpdateErrorIsReturned(t *testing.T) {
	u := newTestUser()
	boom := errors.New("boom")

	err := u.Update(func(p *Profile) error { return boom })
	if !errors.Is(err, boom) {
		t.Errorf("Update() error = %v, want %v", err, boom)
	}
}

func TestNewUserCopiesDetails(t *testing.T) {
	details := map[string]string{"tagline": "Demo explorer"}
	u := NewUser("id-3", "Alex", time.Now(), "", details)
	details["tagline"] = "changed"

	if got := u.Snapshot().Details["tagline"]; got != "Demo explorer" {
		t.Errorf("Details[tagline] = %q, caller mutation leaked into the user", got)
	}
}

func TestAnswerStateValue(t *testing.T) {
	tests := []struct {
		state  AnswerState
		want   bool
		wantOK bool
	}{
		{AnswerYes, true, true},
		{AnswerNo, false, true},
		{AnswerSkipped, false, false},
		{AnswerUnset, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.state.String(), func(t *testing.T) {
			got, ok := tt.state.Value()
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("Value() = (%v, %v), want (%v, %v)", got, ok, tt.want, tt.wantOK)
			}
			if tt.state.Answered() != tt.wantOK {
				t.Errorf("Answered() = %v, want %v", tt.state.Answered(), tt.wantOK)
			}
		})
	}
}

func TestProfilePreferencesIsACopy(t *testing.T) {
	u := newTestUser()
	_ = u.Update(func(p *Profile) error { p.SetPreference("Travel?", true); return nil })

	u.View(func(p *Profile) {
		prefs := p.Preferences()
		prefs["Travel?"] = false
		prefs["Pets?"] = true
	})

	got := u.Preferences()
	if len(got) != 1 || !got["Travel?"] {
		t.Errorf("Preferences() = %v, want the stored map untouched", got)
	}
}
