// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package steptrace

import "errors"

// Sentinel errors for the steptrace service.
var (
	// ErrEmptySource indicates a request without code.
	ErrEmptySource = errors.New("no code provided")

	// ErrSourceTooLarge indicates code above the configured byte limit.
	ErrSourceTooLarge = errors.New("source exceeds size limit")

	// ErrBusy indicates every trace slot stayed busy past the acquire wait.
	ErrBusy = errors.New("all trace slots are busy")
)
