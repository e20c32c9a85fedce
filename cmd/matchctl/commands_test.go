package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sqliteRepo "github.com/sakif/people-match/internal/repository/sqlite"
	"github.com/sakif/people-match/internal/service"
)

// seedDB writes a small population through an engine journaling to a file.
func seedDB(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "people.db")
	db, err := sqliteRepo.New(path)
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	e := service.NewEngine(service.Options{Journal: db})
	require.NoError(t, e.SeedQuestions(ctx, []string{"Do you like pets?", "Do you enjoy hiking?"}))

	ran, err := e.Registry.Register(ctx, "Ran", "", nil)
	require.NoError(t, err)
	require.NoError(t, e.Questions.DeclarePreference(ctx, ran, "Do you like pets?", true))
	require.NoError(t, e.Questions.RecordAnswer(ctx, ran, "Do you like pets?", true))

	milo, err := e.Registry.Register(ctx, "Milo", "", nil)
	require.NoError(t, err)
	require.NoError(t, e.Questions.RecordAnswer(ctx, milo, "Do you like pets?", true))
	require.NoError(t, e.Questions.DeclarePreference(ctx, milo, "Do you like pets?", true))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestQuestionsCommand(t *testing.T) {
	db := seedDB(t)

	out, err := run(t, "questions", "--db", db)

	require.NoError(t, err)
	assert.Equal(t, "  1  Do you like pets?\n  2  Do you enjoy hiking?\n", out)
}

func TestNextAndAnswerCommands(t *testing.T) {
	db := seedDB(t)

	out, err := run(t, "next", "Ran", "--db", db)
	require.NoError(t, err)
	assert.Equal(t, "2  Do you enjoy hiking?\n", out)

	out, err = run(t, "answer", "Ran", "Do you enjoy hiking?", "no", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, `answered "Do you enjoy hiking?": no`)

	// The answer was persisted, so a fresh load sees nothing left.
	out, err = run(t, "next", "Ran", "--db", db)
	require.NoError(t, err)
	assert.Equal(t, "No questions left.\n", out)

	_, err = run(t, "answer", "Ran", "Do you enjoy hiking?", "--skip", "--db", db)
	require.NoError(t, err)
	out, err = run(t, "next", "Ran", "--db", db)
	require.NoError(t, err)
	assert.Equal(t, "2  Do you enjoy hiking?\n", out)
}

func TestSearchCommand(t *testing.T) {
	db := seedDB(t)

	out, err := run(t, "search", "-f", "Do you like pets?=yes", "--db", db)
	require.NoError(t, err)
	assert.Equal(t, "Ran\nMilo\n", out)

	out, err = run(t, "search", "-f", "Do you like pets?=yes", "-f", "Do you enjoy hiking?=yes", "--db", db, "--json")
	require.NoError(t, err)
	assert.JSONEq(t, `{"users":[]}`, out)

	_, err = run(t, "search", "-f", "no-answer-here", "--db", db)
	assert.Error(t, err)
}

func TestMatchCommand(t *testing.T) {
	db := seedDB(t)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"one directional", []string{"match", "Ran"}, "Milo (score 1.00)\n"},
		{"mutual", []string{"match", "Ran", "--policy", "mutual"}, "Milo (score 1.00)\n"},
		{"json", []string{"match", "Milo", "--json"}, `{"match":"Ran","score":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := run(t, append(tt.args, "--db", db)...)
			require.NoError(t, err)
			if strings.HasPrefix(tt.want, "{") {
				assert.JSONEq(t, tt.want, out)
				return
			}
			assert.Equal(t, tt.want, out)
		})
	}

	_, err := run(t, "match", "ghost", "--db", db)
	assert.Error(t, err)

	_, err = run(t, "match", "Ran", "--policy", "bogus", "--db", db)
	assert.Error(t, err)
}

func TestParseFilters(t *testing.T) {
	got, err := parseFilters([]string{"Is 1+1=2?=yes", " Do you like pets? = no"})
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"Is 1+1=2?": true, "Do you like pets?": false}, got)
}
