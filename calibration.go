// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package nwb

import (
	"fmt"
	"math"
)

// Scales are microvolts per count on the API side and volts per count in
// the container.
const microvoltsPerVolt = 1e6

// ToFixedPoint converts a physical sample to a stored count using a scale in
// physical units per count. Values outside the int16 range saturate.
func ToFixedPoint(physical, scale float64) (int16, error) {
	if err := checkScale(scale); err != nil {
		return 0, err
	}
	return toFixedPoint(physical, scale), nil
}

// ToPhysical converts a stored count back to physical units.
func ToPhysical(raw int16, scale float64) (float64, error) {
	if err := checkScale(scale); err != nil {
		return 0, err
	}
	return float64(raw) * scale, nil
}

func checkScale(scale float64) error {
	if scale == 0 || math.IsNaN(scale) || math.IsInf(scale, 0) {
		return fmt.Errorf("%w: scale %v", ErrInvalidCalibration, scale)
	}
	return nil
}

// toFixedPoint assumes a validated scale.
func toFixedPoint(physical, scale float64) int16 {
	v := math.Round(physical / scale)
	switch {
	case math.IsNaN(v):
		return 0
	case v > math.MaxInt16:
		return math.MaxInt16
	case v < math.MinInt16:
		return math.MinInt16
	}
	return int16(v)
}

// convertBlock converts a block of physical samples, reusing dst when it is large enough.
func convertBlock(dst []int16, samples []float32, scale float64) []int16 {
	if cap(dst) < len(samples) {
		dst = make([]int16, len(samples))
	}
	dst = dst[:len(samples)]
	for i, x := range samples {
		dst[i] = toFixedPoint(float64(x), scale)
	}
	return dst
}

func bitVoltsToConversion(bitVolts float64) float64 {
	return bitVolts / microvoltsPerVolt
}

func conversionToBitVolts(conversion float64) float64 {
	return conversion * microvoltsPerVolt
}
