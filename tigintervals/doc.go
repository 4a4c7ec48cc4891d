// Package tigintervals provides interval-union and interval-depth utilities
// over tig-local coordinates, used by the orphan/bubble merger and the
// repeat splitter to collapse many overlapping placement intervals into
// candidate regions. The endpoint-index scan follows the same sort-and-sweep
// shape as a BED interval-union scanner; the depth-collapsing logic is new,
// grounded on the region-filtering step of the repeat splitter (see the
// repeat package).
package tigintervals
