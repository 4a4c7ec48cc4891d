// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package bogartsimd provides batch scan primitives over the packed overlap
// scores that OverlapCache keeps in its arena: finding the lowest score, and
// counting scores at or below a threshold. These are the integer-array
// analogues of the packed-nibble scans biosimd provides for sequence bytes;
// the split between a generic fallback and an amd64-tagged file mirrors that
// package's layout, though the amd64 file here is ordinary Go rather than
// hand-verified assembly (see DESIGN.md).
package bogartsimd
