package noise

// Smoothstep applies the cubic ease curve 3t² - 2t³. Its derivative is zero
// at t=0 and t=1, which hides the lattice at cell boundaries.
func Smoothstep(t float64) float64 {
	return 3*t*t - 2*t*t*t
}

// Lerp linearly interpolates between a and b.
func Lerp(a, b, t float64) float64 {
	return a + t*(b-a)
}

// Remap maps a raw noise value from [-1, 1] to [0, 1].
func Remap(v float64) float64 {
	return (v + 1) / 2
}
