package model

import (
	"fmt"
	"runtime/debug"
	"time"
)

type CustomError struct {
	Processor  string                 `json:"processor"`
	Inner      error                  `json:"innerError"`
	Message    string                 `json:"message"`
	StackTrace string                 `json:"stackTrace"`
	Misc       map[string]interface{} `json:"misc"`
}

func (e CustomError) Error() string {
	if e.Inner == nil {
		return fmt.Sprintf("%s: %s", e.Processor, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Processor, e.Message, e.Inner)
}

func (e CustomError) Unwrap() error {
	return e.Inner
}

func GenError(proc string, err error, misc map[string]interface{}, messagef string, args ...interface{}) CustomError {
	return CustomError{
		Processor:  proc,
		Inner:      err,
		Message:    fmt.Sprintf(messagef, args...),
		StackTrace: string(debug.Stack()),
		Misc:       misc,
	}
}

// Direction filters which crossings a Line reports.
type Direction string

const (
	DirectionBoth     Direction = "both"
	DirectionPositive Direction = "positive"
	DirectionNegative Direction = "negative"
)

func ParseDirection(s string) (Direction, error) {
	switch Direction(s) {
	case DirectionBoth, DirectionPositive, DirectionNegative:
		return Direction(s), nil
	case "":
		return DirectionBoth, nil
	}
	return "", fmt.Errorf("invalid line direction %q", s)
}

// Line is the bi-infinite line through (X1,Y1) and (X2,Y2).
type Line struct {
	X1        float64   `json:"x1"`
	Y1        float64   `json:"y1"`
	X2        float64   `json:"x2"`
	Y2        float64   `json:"y2"`
	Direction Direction `json:"direction"`
}

// Side returns the signed cross product of the line vector and (x,y) relative to
// the first point. Positive and negative values are opposite half-planes.
func (l Line) Side(x, y float64) float64 {
	return (l.X2-l.X1)*(y-l.Y1) - (l.Y2-l.Y1)*(x-l.X1)
}

type Box struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

func (b Box) Center() (float64, float64) {
	return (b.X1 + b.X2) / 2, (b.Y1 + b.Y2) / 2
}

func (b Box) Area() float64 {
	w := b.X2 - b.X1
	h := b.Y2 - b.Y1
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

// IoU is the intersection-over-union of two boxes.
func (b Box) IoU(o Box) float64 {
	ix1 := max(b.X1, o.X1)
	iy1 := max(b.Y1, o.Y1)
	ix2 := min(b.X2, o.X2)
	iy2 := min(b.Y2, o.Y2)
	inter := Box{ix1, iy1, ix2, iy2}.Area()
	if inter == 0 {
		return 0
	}
	union := b.Area() + o.Area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// Detection is one object found in a frame. TrackID is nil until the tracker
// has assigned a stable identity.
type Detection struct {
	Box        Box     `json:"box"`
	TrackID    *int    `json:"trackId,omitempty"`
	ClassID    int     `json:"classId"`
	Confidence float32 `json:"confidence"`
}

type CrossingEvent struct {
	TrackID   int       `json:"trackId"`
	ClassID   int       `json:"classId"`
	Direction Direction `json:"direction"`
}

// Counts maps class ID to cumulative crossings.
type Counts map[int]int

func (c Counts) Total() int {
	total := 0
	for _, v := range c {
		total += v
	}
	return total
}

func (c Counts) Copy() Counts {
	out := make(Counts, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

type LedgerRecord struct {
	Timestamp  time.Time `json:"timestamp"`
	ClassName  string    `json:"class_name"`
	TotalSoFar int       `json:"total_so_far"`
}

type Properties struct {
	Width  int     `json:"width"`
	Height int     `json:"height"`
	FPS    float64 `json:"fps"`
}

type PipelineStats struct {
	Name           string  `json:"name"`
	RunID          string  `json:"runId"`
	Source         string  `json:"source"`
	FPS            int     `json:"fps"`
	Frames         int     `json:"frames"`
	ReadErrors     int     `json:"readErrors"`
	DetectorErrors int     `json:"detectorErrors"`
	Crossings      int     `json:"crossings"`
	Uptime         int64   `json:"uptime"`
	AvgProcTime    float64 `json:"avgProcTime"`
	Timestamp      int64   `json:"timestamp"`
}

type StreamStats struct {
	Name      string `json:"name"`
	ClientID  string `json:"clientId"`
	Remote    string `json:"remote"`
	Frames    int    `json:"frames"`
	Bytes     int64  `json:"bytes"`
	Errors    int    `json:"errors"`
	Uptime    int64  `json:"uptime"`
	Timestamp int64  `json:"timestamp"`
}

type RecorderStats struct {
	Name      string `json:"name"`
	File      string `json:"file"`
	Frames    int    `json:"frames"`
	Dropped   int    `json:"dropped"`
	Errors    int    `json:"errors"`
	Uptime    int64  `json:"uptime"`
	Timestamp int64  `json:"timestamp"`
}
