package dataset

import (
	"fmt"
	"math/rand"

	"github.com/SyedDaiam9101/forecast-service/internal/window"
)

// MovingSquares renders bright squares drifting across a dark frame and
// bouncing off the borders. Each sample is PreLen input frames followed by
// AftLen target frames of the same clip.
type MovingSquares struct {
	PreLen   int
	AftLen   int
	Channels int
	Height   int
	Width    int
	Size     int
	Squares  int
}

// Generate renders n clips with the given seed.
func (g MovingSquares) Generate(n int, seed int64) (inputs, targets *window.Window, err error) {
	if g.PreLen <= 0 || g.AftLen <= 0 {
		return nil, nil, fmt.Errorf("invalid sequence lengths pre=%d aft=%d", g.PreLen, g.AftLen)
	}
	if g.Channels <= 0 || g.Height <= 0 || g.Width <= 0 {
		return nil, nil, fmt.Errorf("invalid frame shape %dx%dx%d", g.Channels, g.Height, g.Width)
	}
	size := g.Size
	if size <= 0 {
		size = max(1, min(g.Height, g.Width)/4)
	}
	if size > g.Height || size > g.Width {
		return nil, nil, fmt.Errorf("square size %d does not fit %dx%d frame", size, g.Height, g.Width)
	}
	squares := g.Squares
	if squares <= 0 {
		squares = 1
	}

	rng := rand.New(rand.NewSource(seed))
	inputs = window.New(n, g.PreLen, g.Channels, g.Height, g.Width)
	targets = window.New(n, g.AftLen, g.Channels, g.Height, g.Width)
	total := g.PreLen + g.AftLen

	for i := 0; i < n; i++ {
		type square struct{ y, x, dy, dx int }
		sq := make([]square, squares)
		for k := range sq {
			sq[k] = square{
				y:  rng.Intn(g.Height - size + 1),
				x:  rng.Intn(g.Width - size + 1),
				dy: rng.Intn(3) - 1,
				dx: rng.Intn(3) - 1,
			}
			if sq[k].dy == 0 && sq[k].dx == 0 {
				sq[k].dx = 1
			}
		}
		for f := 0; f < total; f++ {
			var frame []float32
			if f < g.PreLen {
				frame = inputs.Frame(i, f)
			} else {
				frame = targets.Frame(i, f-g.PreLen)
			}
			for k := range sq {
				g.draw(frame, sq[k].y, sq[k].x, size)
				sq[k].y, sq[k].dy = bounce(sq[k].y, sq[k].dy, g.Height-size)
				sq[k].x, sq[k].dx = bounce(sq[k].x, sq[k].dx, g.Width-size)
			}
		}
	}
	return inputs, targets, nil
}

func (g MovingSquares) draw(frame []float32, y0, x0, size int) {
	plane := g.Height * g.Width
	for c := 0; c < g.Channels; c++ {
		for y := y0; y < y0+size; y++ {
			for x := x0; x < x0+size; x++ {
				frame[c*plane+y*g.Width+x] = 1
			}
		}
	}
}

// bounce advances pos by vel, reflecting off [0, limit].
func bounce(pos, vel, limit int) (int, int) {
	next := pos + vel
	if next < 0 || next > limit {
		vel = -vel
		next = pos + vel
	}
	if next < 0 || next > limit {
		next = pos
	}
	return next, vel
}
