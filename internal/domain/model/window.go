package model

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// DefaultWindow is used wherever a window argument is missing or malformed.
const DefaultWindow = 24 * time.Hour

var ErrInvalidWindow = errors.New("invalid window")

// Window is a look-back duration; All means no cutoff.
type Window struct {
	Duration time.Duration
	All      bool
}

// Since returns nil for the unbounded window.
func (w Window) Since() *time.Duration {
	if w.All {
		return nil
	}
	d := w.Duration
	return &d
}

func (w Window) String() string {
	if w.All {
		return "all"
	}
	return w.Duration.String()
}

// ParseWindow accepts "<N>m", "<N>h", "<N>d" with N a positive integer, or "all".
func ParseWindow(s string) (Window, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "all" {
		return Window{All: true}, nil
	}
	if len(s) < 2 {
		return Window{}, fmt.Errorf("%w: %q", ErrInvalidWindow, s)
	}
	n, err := strconv.Atoi(s[:len(s)-1])
	if err != nil || n <= 0 {
		return Window{}, fmt.Errorf("%w: %q", ErrInvalidWindow, s)
	}
	var unit time.Duration
	switch s[len(s)-1] {
	case 'm':
		unit = time.Minute
	case 'h':
		unit = time.Hour
	case 'd':
		unit = 24 * time.Hour
	default:
		return Window{}, fmt.Errorf("%w: %q", ErrInvalidWindow, s)
	}
	if int64(n) > math.MaxInt64/int64(unit) {
		return Window{}, fmt.Errorf("%w: %q out of range", ErrInvalidWindow, s)
	}
	return Window{Duration: time.Duration(n) * unit}, nil
}

// WindowOrDefault maps empty or malformed input to DefaultWindow.
func WindowOrDefault(s string) Window {
	w, err := ParseWindow(s)
	if err != nil {
		return Window{Duration: DefaultWindow}
	}
	return w
}
