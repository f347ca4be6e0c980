package scenario

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwebster45206/divergence-engine/pkg/state"
)

func TestDefault(t *testing.T) {
	s, err := Default()
	require.NoError(t, err)

	assert.Equal(t, "Ver Potter: Divergence", s.Title)
	assert.NotEmpty(t, s.Role)
	assert.NotEmpty(t, s.Copyright)
	assert.NotEmpty(t, s.Protagonist)
	assert.NotEmpty(t, s.Style)
	assert.NotEmpty(t, s.Output)

	for _, c := range state.Chapters() {
		assert.NotEmpty(t, s.ChapterNote(c), "chapter %s has no note", c)
	}

	good, ok := s.Ending(state.EndingGood)
	require.True(t, ok)
	assert.NotEmpty(t, good.Title)
	bad, ok := s.Ending(state.EndingBad)
	require.True(t, ok)
	assert.NotEmpty(t, bad.Text)
}

func TestDefault_IsShared(t *testing.T) {
	a, err := Default()
	require.NoError(t, err)
	b, err := Default()
	require.NoError(t, err)
	assert.Same(t, a, b)
}

func TestLoad(t *testing.T) {
	valid := `
title: Test
role: narrator
output: ["json only"]
chapters:
  PROLOGUE: start
endings:
  GOOD: {title: g, text: good}
  BAD: {title: b, text: bad}
`
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{name: "valid", yaml: valid},
		{
			name:    "unknown key",
			yaml:    valid + "extra: true\n",
			wantErr: "field extra not found",
		},
		{
			name:    "missing title",
			yaml:    "role: narrator\noutput: [x]\nendings: {GOOD: {title: g, text: g}, BAD: {title: b, text: b}}\n",
			wantErr: "title is required",
		},
		{
			name:    "unknown chapter",
			yaml:    "title: T\nrole: r\noutput: [x]\nchapters: {EPILOGUE: x}\nendings: {GOOD: {title: g, text: g}, BAD: {title: b, text: b}}\n",
			wantErr: `unknown chapter "EPILOGUE"`,
		},
		{
			name:    "missing bad ending",
			yaml:    "title: T\nrole: r\noutput: [x]\nendings: {GOOD: {title: g, text: g}}\n",
			wantErr: "BAD needs a title and text",
		},
		{
			name:    "not yaml",
			yaml:    "title: [unterminated",
			wantErr: "failed to decode scenario",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Load([]byte(tt.yaml))
			if tt.wantErr == "" {
				require.NoError(t, err)
				assert.Equal(t, "start", s.ChapterNote(state.ChapterPrologue))
				assert.Empty(t, s.ChapterNote(state.ChapterCore))
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scenario.yaml")
	require.NoError(t, os.WriteFile(path, defaultYAML, 0o600))

	s, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "Ver Potter: Divergence", s.Title)

	_, err = LoadFile(filepath.Join(dir, "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read scenario file")
}
