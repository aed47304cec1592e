// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package rpcwallet

import (
	"errors"
	"math"
	"math/rand"
	"time"
)

// jitterInterval returns a random duration within d * (1 +/- scaler).
// Waiters started together use it so their polls drift apart.
//
// NOTE: when scaler is 0, d is returned unchanged.
func jitterInterval(d time.Duration, scaler float64) time.Duration {
	min, max := calculateMinMax(d, scaler)
	if max == min {
		return d
	}

	jittered := time.Duration(rand.Int63n(max-min) + min) //nolint:gosec
	if jittered <= 0 {
		return d
	}

	return jittered
}

// calculateMinMax calculates the min and max duration values. If the
// calculated min is negative, it will be set to 0.
func calculateMinMax(d time.Duration, scaler float64) (int64, int64) {
	// If the scaler is negative, we will panic.
	if scaler < 0 {
		panic(errors.New("scaler must be positive"))
	}

	min := math.Floor(float64(d) * (1 - scaler))
	max := math.Ceil(float64(d) * (1 + scaler))

	// If the scaler is greater than 1, we would use a zero min instead of
	// a negative one.
	if 1-scaler < 0 {
		min = 0
	}

	return int64(min), int64(max)
}
