// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bus

import (
	"context"
	"fmt"
)

// levels driven on RST_N during the reset sequence.
const (
	resetActive       = 1
	resetIntermediate = 0
	resetInactive     = 1
)

// Reset puts the device into its initial state.
//
// RST_N is driven to its active level, then to its intermediate level, and
// finally back to its inactive level right after the next rising edge of
// the clock. Reset blocks until that edge happens.
func Reset(ctx context.Context, sig Signals) error {
	sig.Set(RSTN, resetActive)
	err := sig.Wait(ctx, 1*NS)
	if err != nil {
		return fmt.Errorf("bus: could not reset device: %w", err)
	}

	sig.Set(RSTN, resetIntermediate)
	err = sig.Wait(ctx, 1*NS)
	if err != nil {
		return fmt.Errorf("bus: could not reset device: %w", err)
	}

	err = sig.RisingEdge(ctx, CLK)
	if err != nil {
		return fmt.Errorf("bus: could not reset device: %w", err)
	}
	sig.Set(RSTN, resetInactive)

	return nil
}
