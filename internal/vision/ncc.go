package vision

import (
	"image"
	"math"
)

const (
	// flatEpsilon is the variance below which a window counts as uniform.
	flatEpsilon = 1e-6

	// pruneStride is how many template rows are summed between two checks
	// of the upper bound in reaches.
	pruneStride = 4

	// pruneSlack absorbs float rounding so a bound is never trusted to
	// reject a placement that exactly meets the threshold.
	pruneSlack = 1e-6
)

// integral holds summed-area tables of pixel values and squared values.
type integral struct {
	w, h int
	sum  []int64
	sq   []int64
}

func newIntegral(g *image.Gray) *integral {
	w, h := g.Rect.Dx(), g.Rect.Dy()
	ii := &integral{
		w:   w,
		h:   h,
		sum: make([]int64, (w+1)*(h+1)),
		sq:  make([]int64, (w+1)*(h+1)),
	}
	stride := w + 1
	for y := 0; y < h; y++ {
		var rowSum, rowSq int64
		row := g.Pix[y*g.Stride : y*g.Stride+w]
		for x, p := range row {
			v := int64(p)
			rowSum += v
			rowSq += v * v
			i := (y+1)*stride + x + 1
			ii.sum[i] = ii.sum[i-stride] + rowSum
			ii.sq[i] = ii.sq[i-stride] + rowSq
		}
	}
	return ii
}

// rect returns the pixel sum and squared sum of the w x h window at (x, y).
func (ii *integral) rect(x, y, w, h int) (int64, int64) {
	stride := ii.w + 1
	a := y*stride + x
	b := a + w
	c := (y+h)*stride + x
	d := c + w
	return ii.sum[d] - ii.sum[b] - ii.sum[c] + ii.sum[a],
		ii.sq[d] - ii.sq[b] - ii.sq[c] + ii.sq[a]
}

// pattern is a template with its precomputed statistics.
type pattern struct {
	img  *image.Gray
	w, h int
	n    float64
	sum  float64
	varT float64 // sum of squared deviations from the mean

	// restDev[k] and restVar[k] are the sums of (t - mean) and
	// (t - mean)^2 over rows k and below; both have h+1 entries.
	restDev []float64
	restVar []float64
}

func newPattern(t *image.Gray) *pattern {
	w, h := t.Rect.Dx(), t.Rect.Dy()
	var s, sq float64
	for y := 0; y < h; y++ {
		for _, p := range t.Pix[y*t.Stride : y*t.Stride+w] {
			v := float64(p)
			s += v
			sq += v * v
		}
	}
	n := float64(w * h)
	p := &pattern{
		img:     t,
		w:       w,
		h:       h,
		n:       n,
		sum:     s,
		varT:    sq - s*s/n,
		restDev: make([]float64, h+1),
		restVar: make([]float64, h+1),
	}

	mean := s / n
	for y := h - 1; y >= 0; y-- {
		var dev, v float64
		for _, px := range t.Pix[y*t.Stride : y*t.Stride+w] {
			d := float64(px) - mean
			dev += d
			v += d * d
		}
		p.restDev[y] = p.restDev[y+1] + dev
		p.restVar[y] = p.restVar[y+1] + v
	}
	return p
}

// scorer evaluates the normalised correlation coefficient of one pattern
// against one frame.
type scorer struct {
	frame *image.Gray
	ii    *integral
	p     *pattern
}

func newScorer(frame *image.Gray, p *pattern) *scorer {
	return &scorer{frame: frame, ii: newIntegral(frame), p: p}
}

// at returns the score of the pattern placed with its top-left corner at (x, y).
func (s *scorer) at(x, y int) float64 {
	p := s.p
	winSum, winSq := s.ii.rect(x, y, p.w, p.h)
	ws := float64(winSum)
	varI := float64(winSq) - ws*ws/p.n

	if p.varT < flatEpsilon {
		// Uniform template: only a uniform window of the same level matches.
		if varI < flatEpsilon && math.Abs(ws/p.n-p.sum/p.n) < 1 {
			return 1
		}
		return 0
	}
	if varI < flatEpsilon {
		return 0
	}

	var cross int64
	f := s.frame
	for ty := 0; ty < p.h; ty++ {
		frow := f.Pix[(y+ty)*f.Stride+x : (y+ty)*f.Stride+x+p.w]
		trow := p.img.Pix[ty*p.img.Stride : ty*p.img.Stride+p.w]
		for tx, tv := range trow {
			cross += int64(frow[tx]) * int64(tv)
		}
	}
	num := float64(cross) - ws*p.sum/p.n
	return num / math.Sqrt(p.varT*varI)
}

// reaches reports whether the score at (x, y) is at least threshold. Its
// answer always equals s.at(x, y) >= threshold.
//
// Rows are summed top to bottom. Every pruneStride rows the numerator of
// the rows still to come is bounded with Cauchy-Schwarz against the
// window's remaining rows centred on their own mean; once even that bound
// cannot lift the score to threshold the placement is rejected. On
// unrelated content this stops after a few rows.
func (s *scorer) reaches(x, y int, threshold float64) bool {
	p := s.p
	winSum, winSq := s.ii.rect(x, y, p.w, p.h)
	ws := float64(winSum)
	varI := float64(winSq) - ws*ws/p.n
	if p.varT < flatEpsilon || varI < flatEpsilon {
		return s.at(x, y) >= threshold
	}

	denom := math.Sqrt(p.varT * varI)
	target := threshold * denom
	slack := pruneSlack * denom
	mean := p.sum / p.n

	var cross int64
	f := s.frame
	for ty := 0; ty < p.h; ty++ {
		frow := f.Pix[(y+ty)*f.Stride+x : (y+ty)*f.Stride+x+p.w]
		trow := p.img.Pix[ty*p.img.Stride : ty*p.img.Stride+p.w]
		for tx, tv := range trow {
			cross += int64(frow[tx]) * int64(tv)
		}

		done := ty + 1
		if done == p.h || done%pruneStride != 0 {
			continue
		}
		doneSum, _ := s.ii.rect(x, y, p.w, done)
		partial := float64(cross) - mean*float64(doneSum)

		restSum, restSq := s.ii.rect(x, y+done, p.w, p.h-done)
		restMean := float64(restSum) / float64(p.w*(p.h-done))
		restVarI := max(0, float64(restSq)-float64(restSum)*restMean)

		bound := partial + restMean*p.restDev[done] + math.Sqrt(restVarI*p.restVar[done])
		if bound < target-slack {
			return false
		}
	}

	num := float64(cross) - ws*p.sum/p.n
	return num/math.Sqrt(p.varT*varI) >= threshold
}

// locate returns the top-left corners of every placement scoring at least
// threshold whose window lies within the first maxY rows, in row-major
// order. When first is set it stops at the first hit.
func locate(frame, tmpl *image.Gray, threshold float64, maxY int, first bool) []Point {
	fw, fh := frame.Rect.Dx(), frame.Rect.Dy()
	tw, th := tmpl.Rect.Dx(), tmpl.Rect.Dy()
	if tw == 0 || th == 0 || tw > fw || th > fh {
		return nil
	}
	if maxY <= 0 || maxY > fh {
		maxY = fh
	}
	lastY := maxY - th
	lastX := fw - tw
	if lastY < 0 {
		return nil
	}

	sc := newScorer(frame, newPattern(tmpl))
	var hits []Point
	for y := 0; y <= lastY; y++ {
		for x := 0; x <= lastX; x++ {
			if sc.reaches(x, y, threshold) {
				hits = append(hits, Point{X: x, Y: y})
				if first {
					return hits
				}
			}
		}
	}
	return hits
}

// BestMatch searches frame for tmpl and returns the centre of the first
// placement (row-major) scoring at least threshold.
func BestMatch(frame, tmpl *image.Gray, threshold float64) (Point, bool) {
	frame, tmpl = Grayscale(frame), Grayscale(tmpl)
	hits := locate(frame, tmpl, threshold, 0, true)
	if len(hits) == 0 {
		return Point{}, false
	}
	return Point{
		X: hits[0].X + tmpl.Rect.Dx()/2,
		Y: hits[0].Y + tmpl.Rect.Dy()/2,
	}, true
}

// CountMatches counts distinct placements of tmpl scoring at least
// threshold. A placement counts only when the whole template lies within
// the top yLimit rows; yLimit <= 0 searches the full frame.
//
// Neighbouring placements of one visual match all score highly, so hits
// are suppressed greedily in row-major order: a hit overlapping an already
// counted one is not counted again.
func CountMatches(frame, tmpl *image.Gray, threshold float64, yLimit int) int {
	frame, tmpl = Grayscale(frame), Grayscale(tmpl)
	hits := locate(frame, tmpl, threshold, yLimit, false)
	tw, th := tmpl.Rect.Dx(), tmpl.Rect.Dy()

	var kept []Point
	for _, h := range hits {
		overlaps := false
		for _, k := range kept {
			if abs(h.X-k.X) < tw && abs(h.Y-k.Y) < th {
				overlaps = true
				break
			}
		}
		if !overlaps {
			kept = append(kept, h)
		}
	}
	return len(kept)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
