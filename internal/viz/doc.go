// Package viz renders primitive unrolls in the terminal.
//
// [Model] is a Bubble Tea program that steps a primitive in real time and draws its
// path on a Braille [Canvas] next to asciigraph charts of phase and goal distance.
//
// # Key Bindings
//
//	Space  - Pause/Resume
//	R      - Restart the motion
//	Up/K   - Slow down (τ +10%)
//	Down/J - Speed up (τ -10%)
//	[ ]    - Scrub through recorded ticks
//	?      - Show help overlay
//	Q      - Quit
package viz
