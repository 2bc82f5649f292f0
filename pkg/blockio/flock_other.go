// +build !linux,!darwin

package blockio

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2020 vorteil.io Pty Ltd
 */

import "os"

// lockExclusive is a no-op on platforms without flock semantics; the
// exclusive-mount guard is a convenience, not a correctness requirement of
// the spec's single-process model.
func lockExclusive(f *os.File) error { return nil }

func unlockExclusive(f *os.File) error { return nil }
