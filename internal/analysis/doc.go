// Package analysis derives the statistical models from a channel snapshot:
// sliding-window peak detection, exponential recession fitting on the falling
// limb after each peak, ordinary-least-squares regression between two paired
// channels, and percentile summaries over ensemble forecast members.
//
// All functions are pure: they read an immutable snapshot and return values.
// Per-peak rejections during recession fitting (short baseline window,
// amplitude below the rise threshold, too few decay points, non-negative
// slope, weak R²) are normal filtering outcomes, not errors. The only typed
// failures are ErrInsufficientData (regression needs at least 100 pairs) and
// ErrDegenerateModel (a zero-slope model cannot be inverted).
//
// Regression moments use population denominators (n, not n−1) so repeated
// runs on identical input reproduce the published model byte-for-byte.
package analysis
