package temporal

import "math"

// chiSquarePValue returns P(X > stat) for a chi-square distribution with
// the given degrees of freedom, i.e. the upper-tail (survival) probability
// used by the unusual_timing_distribution test (spec §4.3). No library in
// the example corpus provides this directly, so it is implemented here via
// the regularized upper incomplete gamma function (standard Lanczos +
// continued-fraction routine).
func chiSquarePValue(stat float64, df int) float64 {
	if stat <= 0 {
		return 1
	}
	return upperIncompleteGammaRegularized(float64(df)/2, stat/2)
}

// upperIncompleteGammaRegularized computes Q(a,x) = Γ(a,x)/Γ(a).
func upperIncompleteGammaRegularized(a, x float64) float64 {
	if x < 0 || a <= 0 {
		return 1
	}
	if x == 0 {
		return 1
	}
	if x < a+1 {
		return 1 - lowerSeries(a, x)
	}
	return upperContinuedFraction(a, x)
}

// lowerSeries computes P(a,x) via its series representation, valid for
// x < a+1.
func lowerSeries(a, x float64) float64 {
	gln := lnGamma(a)
	ap := a
	sum := 1.0 / a
	del := sum
	for n := 0; n < 200; n++ {
		ap++
		del *= x / ap
		sum += del
		if math.Abs(del) < math.Abs(sum)*1e-12 {
			break
		}
	}
	return sum * math.Exp(-x+a*math.Log(x)-gln)
}

// upperContinuedFraction computes Q(a,x) via Lentz's continued-fraction
// method, valid for x >= a+1.
func upperContinuedFraction(a, x float64) float64 {
	const fpmin = 1e-300
	gln := lnGamma(a)
	b := x + 1 - a
	c := 1 / fpmin
	d := 1 / b
	h := d
	for i := 1; i < 200; i++ {
		an := -float64(i) * (float64(i) - a)
		b += 2
		d = an*d + b
		if math.Abs(d) < fpmin {
			d = fpmin
		}
		c = b + an/c
		if math.Abs(c) < fpmin {
			c = fpmin
		}
		d = 1 / d
		del := d * c
		h *= del
		if math.Abs(del-1) < 1e-12 {
			break
		}
	}
	return math.Exp(-x+a*math.Log(x)-gln) * h
}

// lnGamma is the Lanczos approximation of ln(Γ(x)).
func lnGamma(x float64) float64 {
	coef := []float64{
		76.18009172947146, -86.50532032941677, 24.01409824083091,
		-1.231739572450155, 0.1208650973866179e-2, -0.5395239384953e-5,
	}
	y := x
	tmp := x + 5.5
	tmp -= (x + 0.5) * math.Log(tmp)
	ser := 1.000000000190015
	for _, c := range coef {
		y++
		ser += c / y
	}
	return -tmp + math.Log(2.5066282746310005*ser/x)
}
