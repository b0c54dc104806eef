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

import (
	"context"
	"fmt"
	"slices"
)

// Validated enforces an environment's declared Spec at the boundary.
//
// Actions outside the current legal set, percepts whose reward falls outside
// [MinReward, MaxReward], and observations wider than ObservationBits are
// reported as errors instead of flowing into the model.
type Validated struct {
	inner Environment
	spec  Spec
}

// Validate wraps env after checking its Spec.
//
// Outputs:
//   - *Validated: The wrapper
//   - error: ErrInvalidSpec if the declared spec is inconsistent
func Validate(env Environment) (*Validated, error) {
	if v, ok := env.(*Validated); ok {
		return v, nil
	}
	spec := env.Spec()
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	return &Validated{inner: env, spec: spec}, nil
}

func (v *Validated) Spec() Spec { return v.spec }

// Legal returns the inner legal actions that are also declared in Spec.
func (v *Validated) Legal() []int {
	var out []int
	for _, a := range v.inner.Legal() {
		if v.spec.IsAction(a) {
			out = append(out, a)
		}
	}
	return out
}

func (v *Validated) Act(ctx context.Context, action int) (Percept, error) {
	if v.inner.Terminated() {
		return Percept{}, ErrTerminated
	}
	if !slices.Contains(v.Legal(), action) {
		return Percept{}, fmt.Errorf("%w: %d", ErrIllegalAction, action)
	}
	p, err := v.inner.Act(ctx, action)
	if err != nil {
		return Percept{}, err
	}
	if err := v.spec.CheckPercept(p); err != nil {
		return Percept{}, err
	}
	return p, nil
}

func (v *Validated) Percept() Percept { return v.inner.Percept() }

func (v *Validated) Terminated() bool { return v.inner.Terminated() }

// Unwrap returns the wrapped environment.
func (v *Validated) Unwrap() Environment { return v.inner }
