package boardcal

import (
	"image"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
)

// SessionState is where a ClickSession is in collecting the board corners.
type SessionState string

const (
	// SessionIdle has no clicks.
	SessionIdle = SessionState("idle")
	// SessionCollecting has some clicks but not exactly four.
	SessionCollecting = SessionState("collecting_clicks")
	// SessionReady has exactly four clicks.
	SessionReady = SessionState("ready_to_rectify")
)

// ClickSession collects the four board corners for one image. It owns its click buffer
// and a canvas showing the numbered clicks. A ClickSession is not safe for concurrent use.
type ClickSession struct {
	img     image.Image
	canvas  image.Image
	clicks  []r2.Point
	state   SessionState
	aborted bool
}

// NewClickSession starts an idle session over img.
func NewClickSession(img image.Image) *ClickSession {
	return &ClickSession{img: img, canvas: img, state: SessionIdle}
}

// State is the current state.
func (s *ClickSession) State() SessionState {
	return s.state
}

// Clicks returns a copy of the click buffer.
func (s *ClickSession) Clicks() []r2.Point {
	return append([]r2.Point(nil), s.clicks...)
}

// Canvas is the image with the clicks drawn on it.
func (s *ClickSession) Canvas() image.Image {
	return s.canvas
}

// Image is the image being clicked on.
func (s *ClickSession) Image() image.Image {
	return s.img
}

// AddPoint records a click. Four clicks make the session ready; a fifth returns it to
// collecting, and the operator has to reset.
func (s *ClickSession) AddPoint(p r2.Point) SessionState {
	s.aborted = false
	s.clicks = append(s.clicks, p)
	if len(s.clicks) == 4 {
		s.state = SessionReady
	} else {
		s.state = SessionCollecting
	}
	s.redraw()
	return s.state
}

// Reset clears the clicks.
func (s *ClickSession) Reset() {
	s.clicks = nil
	s.aborted = false
	s.state = SessionIdle
	s.redraw()
}

// Confirm hands back the clicks when exactly four are held and returns the session to
// idle. Otherwise the state is unchanged.
func (s *ClickSession) Confirm() (ClickSet, error) {
	if s.aborted {
		return ClickSet{}, ErrSessionAborted
	}
	if s.state != SessionReady {
		return ClickSet{}, errors.Wrapf(ErrInvalidClickCount, "have %d", len(s.clicks))
	}
	cs, err := NewClickSet(s.clicks)
	if err != nil {
		return ClickSet{}, err
	}
	s.clicks = nil
	s.state = SessionIdle
	s.redraw()
	return cs, nil
}

// Abort drops the clicks. Confirm fails with ErrSessionAborted until a new click arrives.
func (s *ClickSession) Abort() {
	s.clicks = nil
	s.aborted = true
	s.state = SessionIdle
	s.redraw()
}

func (s *ClickSession) redraw() {
	if len(s.clicks) == 0 {
		s.canvas = s.img
		return
	}
	s.canvas = drawClickMarkers(s.img, s.clicks)
}
