// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// This file implements the file existence probe (C7): a cheap presence and
// size check, with an optional full integrity scan.
package dcp

import "os"

// Check reports whether path exists, is exactly expectedSize bytes, and -
// when checksum is non-empty - passes a full Verify. A missing file is not
// an error: it simply fails the check.
func (e *Engine) Check(path string, expectedSize int64, checksum string) bool {
	fi, err := os.Stat(path)
	if err != nil {
		return false
	}
	if fi.Size() != expectedSize {
		return false
	}
	if checksum == "" {
		return true
	}
	return e.Verify(path) == nil
}
