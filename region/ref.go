// Copyright 2026 the Panopticon authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package region

// A Ref addresses one byte in a named region.
type Ref struct {
	Region string `json:"region"`
	Offset Offset `json:"offset"`
}
