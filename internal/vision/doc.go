// Package vision locates visual anchors in device captures.
//
// Every function here is pure: it reads a capture and reference data and
// returns a value. "Not found" is reported through a boolean (or a zero
// count), never through an error, because a miss is the normal outcome of
// a single poll.
//
// Three queries are provided:
//
//   - BestMatch: normalised cross-correlation (the TM_CCOEFF_NORMED score)
//     of a grayscale template against a grayscale capture. Returns the
//     centre of the first location, in row-major order, whose score
//     reaches the threshold.
//   - CountMatches: the same score, optionally restricted to the top
//     yLimit rows, counting distinct non-overlapping matches. Used for
//     saturation checks such as "the friend list is full".
//   - FindPixel: the first pixel of a colour capture within a per-channel
//     tolerance of a target RGB value.
//
// Every placement is scored at full resolution. A placement is abandoned
// part-way once an upper bound on its remaining rows shows it cannot reach
// the threshold, which never changes the answer.
package vision
