package tags

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	ierrors "github.com/savaki/cfn-actions/internal/errors"
	"github.com/savaki/cfn-actions/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testContext() context.Context {
	logger := zerolog.Nop()
	return logger.WithContext(context.Background())
}

func TestMerge(t *testing.T) {
	tests := []struct {
		name       string
		jsonSource string
		kvSource   string
		want       []models.Tag
	}{
		{
			name:       "key value wins over json",
			jsonSource: `[{"Key":"Team","Value":"core"},{"Key":"Env","Value":"dev"}]`,
			kvSource:   "Env=prod\nOwner = 'alice'\n",
			want: []models.Tag{
				{Key: "Team", Value: "core"},
				{Key: "Env", Value: "prod"},
				{Key: "Owner", Value: "alice"},
			},
		},
		{
			name:       "json object keeps document order",
			jsonSource: `{"B":"2","A":1}`,
			want: []models.Tag{
				{Key: "B", Value: "2"},
				{Key: "A", Value: "1"},
			},
		},
		{
			name:       "unparseable json is skipped",
			jsonSource: `[{"Key":`,
			kvSource:   "Team=core",
			want:       []models.Tag{{Key: "Team", Value: "core"}},
		},
		{
			name:     "comments blanks and junk are skipped",
			kvSource: "# comment\n\n  \nno-equals\n=novalue\nA=\"x=y\"\n",
			want:     []models.Tag{{Key: "A", Value: "x=y"}},
		},
		{
			name:     "duplicate keys collapse to the last",
			kvSource: "A=1\nA=2",
			want:     []models.Tag{{Key: "A", Value: "2"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Merge(testContext(), tt.jsonSource, tt.kvSource)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMerge_Empty(t *testing.T) {
	tests := []struct {
		name       string
		jsonSource string
		kvSource   string
	}{
		{name: "both empty"},
		{name: "empty list", jsonSource: "[]"},
		{name: "only comments", kvSource: "# nothing here"},
		{name: "both unparseable", jsonSource: "nope", kvSource: "nope"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Merge(testContext(), tt.jsonSource, tt.kvSource)
			assert.ErrorIs(t, err, ierrors.ErrNoTags)
		})
	}
}

func TestUnquote(t *testing.T) {
	tests := map[string]string{
		`"quoted"`:   "quoted",
		`'single'`:   "single",
		`"mixed'`:    `"mixed'`,
		`""`:         "",
		`"`:          `"`,
		`plain`:      "plain",
		`""double""`: `"double"`,
	}
	for input, want := range tests {
		if got := unquote(input); got != want {
			t.Errorf("unquote(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestMarshal(t *testing.T) {
	s, err := Marshal([]models.Tag{{Key: "Cost<Center>", Value: "a&b"}})
	require.NoError(t, err)
	assert.Equal(t, `[{"Key":"Cost<Center>","Value":"a&b"}]`, s)
}
