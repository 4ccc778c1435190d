package foc

// SVM performs seven-segment space-vector modulation via the equivalent
// min-max common-mode injection method: project the alpha-beta modulation
// vector onto three phase references, then shift all three by the average
// of their max and min so the result uses the full DC-bus headroom — the
// standard way of getting seven-segment SVM's duty cycles without explicitly
// enumerating sectors and segment times (spec §4.4 step 9).
//
// Inputs are normalized modulation indices (mod_alpha, mod_beta); outputs
// are duty fractions in [0, 1] for phases A, B, C. The 2/3 scale maps a
// modulation magnitude of sqrt(3)/2 to the full duty range, so the current
// loop's 0.80*sqrt(3)/2 cap leaves exactly the 20% SVM reserve.
func SVM(modAlpha, modBeta float64) (tA, tB, tC float64) {
	va := modAlpha
	vb := -0.5*modAlpha + sqrt3By2*modBeta
	vc := -0.5*modAlpha - sqrt3By2*modBeta

	vmax := max3(va, vb, vc)
	vmin := min3(va, vb, vc)
	vcom := 0.5 * (vmax + vmin)

	const scale = 2.0 / 3.0
	tA = 0.5 + scale*(va-vcom)
	tB = 0.5 + scale*(vb-vcom)
	tC = 0.5 + scale*(vc-vcom)
	return tA, tB, tC
}

func max3(a, b, c float64) float64 {
	m := a
	if b > m {
		m = b
	}
	if c > m {
		m = c
	}
	return m
}

func min3(a, b, c float64) float64 {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}
