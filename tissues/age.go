// Copyright (c) 2024, The CCNLab Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tissues

import "math"

// Age validity ranges for the two skull thickness fits. The Roche growth data
// covers birth (pushed back to 6 months pre-term) to 20 years; the Lillie
// adult data takes over from there.
const (
	SkullRocheMinAge  = -0.5
	SkullRocheMaxAge  = 20.0
	SkullLillieMinAge = 20.0
	SkullLillieMaxAge = 100.0

	SkullCondMinAge = 0.0
	SkullCondMaxAge = 100.0
)

func clip(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ageToSkullThicknessesRoche evaluates the three polynomial regressions of
// the Roche growth study (vertex, lambda, nasion-bregma), valid 0..20 years.
func ageToSkullThicknessesRoche(age float64) (vertex, lambda, nasionBregma float64) {
	age = clip(age, SkullRocheMinAge, SkullRocheMaxAge)

	vertex = 0.00000944624263660154*math.Pow(age, 5) -
		0.000620319286298091*math.Pow(age, 4) +
		0.0156238702574324*math.Pow(age, 3) -
		0.193411281780735*math.Pow(age, 2) +
		1.30479784896483*age +
		0.801749159837984

	lambda = -0.000000874303233450169*math.Pow(age, 6) +
		0.0000668067379378107*math.Pow(age, 5) -
		0.00204664899368126*math.Pow(age, 4) +
		0.0322588294778569*math.Pow(age, 3) -
		0.287182885923529*math.Pow(age, 2) +
		1.59920122738993*age +
		0.84134546086354

	nasionBregma = -0.00000143602849400626*math.Pow(age, 6) +
		0.000102422066281027*math.Pow(age, 5) -
		0.0028856608447644*math.Pow(age, 4) +
		0.040738161856106*math.Pow(age, 3) -
		0.306182846374295*math.Pow(age, 2) +
		1.31104939932351*age +
		1.24842821082324

	return
}

func ageToSkullThicknessRoche(age float64) float64 {
	vertex, lambda, nasionBregma := ageToSkullThicknessesRoche(age)
	t := (vertex + lambda + nasionBregma) / 3
	if t < 0 {
		t = 0
	}
	return t
}

// ageToSkullThicknessLillie is the adult linear fit: a global ~10% increase
// over the 20..100 year range.
func ageToSkullThicknessLillie(age float64) float64 {
	age = clip(age, SkullLillieMinAge, SkullLillieMaxAge)
	return 5.00 + (age-SkullLillieMinAge)/(SkullLillieMaxAge-SkullLillieMinAge)*(5.50-5.00)
}

// AgeToSkullThickness returns the expected mean skull thickness in mm at the
// given age in years. The Roche and Lillie fits do not meet at 20 years, so
// the adult branch is rescaled by a constant ratio to keep the composite
// curve continuous.
func AgeToSkullThickness(age float64) float64 {
	if age <= SkullRocheMaxAge {
		return ageToSkullThicknessRoche(age)
	}
	ratio := ageToSkullThicknessRoche(SkullRocheMaxAge) / ageToSkullThicknessLillie(SkullRocheMaxAge)
	return ageToSkullThicknessLillie(age) * ratio
}

// Age-to-conductivity endpoints: the skull starts highly conductive at birth
// (unfused, thin, wet bone) and decays toward a dense adult floor. The decay
// constant gives about 0.011 S/m at 30 years, near the default whole-skull
// conductivity.
const (
	skullCondFloor = 0.0033
	skullCondSpan  = 0.0456
	skullCondTau   = 16.8
)

// AgeToSkullConductivity maps age in years (clipped to [0, 100]) to an
// absolute skull conductivity in S/m. The mapping is strictly decreasing.
func AgeToSkullConductivity(age float64) float64 {
	age = clip(age, SkullCondMinAge, SkullCondMaxAge)
	return skullCondFloor + skullCondSpan*math.Exp(-age/skullCondTau)
}
