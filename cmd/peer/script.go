package main

import (
	"fmt"

	"github.com/Zidane-Khaled/RetroVerse/internal/driver"
	"github.com/Zidane-Khaled/RetroVerse/internal/input"
)

// script returns the headless input source named by INPUT_SCRIPT.
func script(name string) (driver.InputSource, error) {
	switch name {
	case "", "idle":
		return driver.InputFunc(func() input.State { return input.State{} }), nil
	case "wander":
		// walks a square and taps A at every corner
		n := 0
		return driver.InputFunc(func() input.State {
			leg := (n / 120) % 4
			s := input.State{
				Right: leg == 0,
				Down:  leg == 1,
				Left:  leg == 2,
				Up:    leg == 3,
				A:     n%120 == 0,
			}
			n++
			return s
		}), nil
	default:
		return nil, fmt.Errorf("unknown input script %q", name)
	}
}
