package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jwebster45206/divergence-engine/pkg/scene"
	"github.com/jwebster45206/divergence-engine/pkg/state"
	"github.com/jwebster45206/divergence-engine/pkg/turn"
)

var (
	errNoScene       = errors.New("no scene to choose from")
	errGameOver      = errors.New("the story has ended")
	errUnknownChoice = errors.New("unknown choice")
)

// Session is the client-side playthrough. The server is stateless, so
// everything it needs travels in each request built from here.
type Session struct {
	State      state.StoryState
	Chapter    state.Chapter
	Flags      []string
	Log        string
	LastChoice *scene.Choice

	Scene *scene.Scene
	Turns int

	// pending is set once Advance resolves an ending; the next scene is the
	// ending scene.
	pending    state.EndingType
	transcript []string
}

func NewSession() *Session {
	req := turn.NewRequest()
	return &Session{
		State:   req.State,
		Chapter: req.Chapter,
		Flags:   req.Flags,
	}
}

// Request builds the next turn request.
func (s *Session) Request() turn.Request {
	flags := make([]string, len(s.Flags))
	copy(flags, s.Flags)
	return turn.Request{
		State:      s.State,
		Chapter:    s.Chapter,
		LastChoice: s.LastChoice,
		Flags:      flags,
		Log:        s.Log,
	}
}

// Show records a served scene and adopts its chapter and flags.
func (s *Session) Show(sc scene.Scene) {
	s.Scene = &sc
	s.Chapter = sc.Chapter
	s.Flags = append([]string(nil), sc.Flags...)
	s.Turns++

	speaker := sc.Speaker
	if speaker == "" {
		speaker = "나레이션"
	}
	s.record(fmt.Sprintf("[%s] %s: %s", sc.Chapter, speaker, sc.Text))
	if sc.Ending != nil {
		s.record(fmt.Sprintf("== %s END: %s ==", sc.Ending.Type, sc.Ending.Title))
	}
}

// Ended reports whether the last scene closed the story.
func (s *Session) Ended() bool {
	return s.Scene != nil && s.Scene.IsTerminal()
}

// Pending returns the ending the last choice resolved, if any.
func (s *Session) Pending() (state.EndingType, bool) {
	return s.pending, s.pending != ""
}

// Choose applies the delta of the chosen option. ended reports that the
// stats now satisfy an ending rule; one more turn fetches the ending scene.
func (s *Session) Choose(id string) (ending state.EndingType, ended bool, err error) {
	if s.Scene == nil {
		return "", false, errNoScene
	}
	if s.Ended() || s.pending != "" {
		return "", false, errGameOver
	}
	c, ok := s.Scene.Choice(strings.ToUpper(id))
	if !ok {
		return "", false, fmt.Errorf("%w %q", errUnknownChoice, id)
	}

	next, ending, ended := state.Advance(s.State, c.Delta)
	s.State = next
	s.LastChoice = &c
	if ended {
		s.pending = ending
	}
	s.record(fmt.Sprintf("> %s %s %s", c.ID, c.Tag, c.Label))
	return ending, ended, nil
}

// Transcript returns everything shown so far, one entry per line.
func (s *Session) Transcript() string {
	return strings.Join(s.transcript, "\n")
}

func (s *Session) record(line string) {
	s.transcript = append(s.transcript, line)
	s.Log = tail(s.Log+line+"\n", turn.MaxLogLen)
}

// tail keeps the last limit runes of s.
func tail(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[len(r)-limit:])
}
