// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package environment

import "errors"

var (
	ErrInvalidSpec           = errors.New("environment: invalid spec")
	ErrIllegalAction         = errors.New("environment: illegal action")
	ErrNoLegalActions        = errors.New("environment: no legal actions")
	ErrRewardOutOfRange      = errors.New("environment: reward outside declared bounds")
	ErrObservationOutOfRange = errors.New("environment: observation does not fit declared width")
	ErrMalformedPercept      = errors.New("environment: malformed percept encoding")
	ErrTerminated            = errors.New("environment: episode terminated")
	ErrUnknownEnvironment    = errors.New("environment: unknown environment")
	ErrInvalidOption         = errors.New("environment: invalid option")
)
