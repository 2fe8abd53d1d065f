// Package landmark reduces 68-point facial landmark sets to the 5 anchor
// points used for alignment and holds the canonical reference layouts.
package landmark

import (
	"errors"
	"fmt"

	"github.com/kozaktomas/face-align/internal/transform"
)

// ErrInvalidLandmarkSet is returned for missing, short or malformed detector output.
var ErrInvalidLandmarkSet = errors.New("invalid landmark set")

// SetSize is the number of points produced by the 68-point detector.
const SetSize = 68

// Range is a half-open index range [Start, End) into a landmark set.
type Range struct {
	Start, End int
}

// Semantic regions of the 68-point layout.
var (
	Chin       = Range{0, 17}  // left-right
	BrowLeft   = Range{17, 22} // left-right
	BrowRight  = Range{22, 27} // left-right
	NoseBridge = Range{27, 31} // top-down
	Nostrils   = Range{31, 36} // top-down
	EyeLeft    = Range{36, 42} // left-clockwise
	EyeRight   = Range{42, 48} // left-clockwise
	MouthOuter = Range{48, 60} // left-clockwise
	MouthInner = Range{60, 68} // left-clockwise
)

const (
	noseTip      = 30
	mouthCornerL = 48
	mouthCornerR = 54
)

// Set is an ordered landmark set as produced by the detector.
type Set []transform.Point

// Region returns the points of r.
func (s Set) Region(r Range) []transform.Point {
	return s[r.Start:r.End]
}

// Validate checks that the set holds at least 68 finite points.
func (s Set) Validate() error {
	if len(s) < SetSize {
		return fmt.Errorf("%w: got %d points, need %d", ErrInvalidLandmarkSet, len(s), SetSize)
	}
	for i, p := range s[:SetSize] {
		if !p.IsFinite() {
			return fmt.Errorf("%w: point %d is not finite", ErrInvalidLandmarkSet, i)
		}
	}
	return nil
}

// Anchor indices.
const (
	LeftEye = iota
	RightEye
	Nose
	MouthLeft
	MouthRight
	AnchorCount
)

// Anchors holds the 5 alignment anchors in the order
// left eye, right eye, nose tip, left mouth corner, right mouth corner.
type Anchors [AnchorCount]transform.Point

// Points returns the anchors as a slice.
func (a Anchors) Points() []transform.Point {
	return a[:]
}

// Map applies m to every anchor.
func (a Anchors) Map(m transform.Matrix) Anchors {
	var out Anchors
	for i, p := range a {
		out[i] = m.Apply(p)
	}
	return out
}

// EyeCenter returns the midpoint between the eyes.
func (a Anchors) EyeCenter() transform.Point {
	return a[LeftEye].Add(a[RightEye]).Scale(0.5)
}

// MouthCenter returns the midpoint between the mouth corners.
func (a Anchors) MouthCenter() transform.Point {
	return a[MouthLeft].Add(a[MouthRight]).Scale(0.5)
}

// ExtractAnchors reduces a 68-point set to its 5 anchors. Eye anchors are the
// mean of the eye contour, the others are single landmarks.
func ExtractAnchors(s Set) (Anchors, error) {
	if err := s.Validate(); err != nil {
		return Anchors{}, err
	}
	return Anchors{
		LeftEye:    transform.Mean(s.Region(EyeLeft)),
		RightEye:   transform.Mean(s.Region(EyeRight)),
		Nose:       s[noseTip],
		MouthLeft:  s[mouthCornerL],
		MouthRight: s[mouthCornerR],
	}, nil
}
