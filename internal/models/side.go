package models

import (
	"fmt"
	"strconv"
	"strings"
)

// Side is one of the two mutually exclusive market outcomes.
type Side string

const (
	SideUp   Side = "UP"
	SideDown Side = "DOWN"
)

// Sides lists the sides in evaluation order.
var Sides = [2]Side{SideUp, SideDown}

// Opposite returns the other outcome.
func (s Side) Opposite() Side {
	if s == SideUp {
		return SideDown
	}
	return SideUp
}

// Valid reports whether s is UP or DOWN.
func (s Side) Valid() bool {
	return s == SideUp || s == SideDown
}

func (s Side) index() int {
	if s == SideDown {
		return 1
	}
	return 0
}

// label is the mixed-case prefix used in persisted tier keys ("Up1", "Down3").
func (s Side) label() string {
	if s == SideDown {
		return "Down"
	}
	return "Up"
}

// ParseSide accepts "up"/"down" in any case.
func ParseSide(v string) (Side, error) {
	switch strings.ToUpper(strings.TrimSpace(v)) {
	case string(SideUp):
		return SideUp, nil
	case string(SideDown):
		return SideDown, nil
	}
	return "", fmt.Errorf("invalid side %q", v)
}

// Level is a tier level, 1 through MaxLevel.
type Level int

const MaxLevel = 5

// Valid reports whether l is within 1..MaxLevel.
func (l Level) Valid() bool {
	return l >= 1 && l <= MaxLevel
}

// TierKey identifies a tier by side and level.
type TierKey struct {
	Side  Side  `json:"side"`
	Level Level `json:"level"`
}

// String renders the persisted key form, e.g. "Up1" or "Down5".
func (k TierKey) String() string {
	return k.Side.label() + strconv.Itoa(int(k.Level))
}

// ParseTierKey parses "Up1".."Down5", case-insensitively.
func ParseTierKey(v string) (TierKey, error) {
	lower := strings.ToLower(strings.TrimSpace(v))
	var side Side
	var rest string
	switch {
	case strings.HasPrefix(lower, "up"):
		side, rest = SideUp, lower[len("up"):]
	case strings.HasPrefix(lower, "down"):
		side, rest = SideDown, lower[len("down"):]
	default:
		return TierKey{}, fmt.Errorf("invalid tier key %q", v)
	}
	n, err := strconv.Atoi(rest)
	if err != nil || !Level(n).Valid() {
		return TierKey{}, fmt.Errorf("invalid tier level in %q", v)
	}
	return TierKey{Side: side, Level: Level(n)}, nil
}
