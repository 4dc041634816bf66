package stats

import (
	"errors"
	"fmt"
	"math"
)

// ErrDomain is returned when an argument lies outside a function's domain:
// probabilities outside (0, 1), non-positive degrees of freedom, and so on.
var ErrDomain = errors.New("argument outside function domain")

const (
	sqrt2Pi = 2.50662827463100050242

	// Above this many degrees of freedom the t distribution is treated as normal.
	normalApproxDF = 100

	betaMaxIterations = 100
	betaEpsilon       = 3e-7

	tInverseMaxIterations = 10
	tInverseTolerance     = 1e-10
)

// Erf is the error function.
func Erf(x float64) float64 {
	return math.Erf(x)
}

// NormalCDF returns P(Z <= x) for a standard normal Z.
func NormalCDF(x float64) float64 {
	return 0.5 * (1 + Erf(x/math.Sqrt2))
}

// NormalPDF is the standard normal density.
func NormalPDF(x float64) float64 {
	return math.Exp(-0.5*x*x) / sqrt2Pi
}

// NormalInverseCDF returns the z such that NormalCDF(z) = p.
//
// The lower half is computed with Acklam's rational approximation (tail and
// central regions) followed by one Halley refinement step; the upper half
// uses symmetry.
func NormalInverseCDF(p float64) (float64, error) {
	if !(p > 0 && p < 1) {
		return 0, fmt.Errorf("%w: normal quantile needs p in (0, 1), got %v", ErrDomain, p)
	}
	if p == 0.5 {
		return 0, nil
	}
	if p > 0.5 {
		z, err := NormalInverseCDF(1 - p)
		return -z, err
	}

	a := [6]float64{-3.969683028665376e+01, 2.209460984245205e+02,
		-2.759285104469687e+02, 1.383577518672690e+02,
		-3.066479806614716e+01, 2.506628277459239e+00}
	b := [5]float64{-5.447609879822406e+01, 1.615858368580409e+02,
		-1.556989798598866e+02, 6.680131188771972e+01,
		-1.328068155288572e+01}
	c := [6]float64{-7.784894002430293e-03, -3.223964580411365e-01,
		-2.400758277161838e+00, -2.549732539343734e+00,
		4.374664141464968e+00, 2.938163982698783e+00}
	d := [4]float64{7.784695709041462e-03, 3.224671290700398e-01,
		2.445134137142996e+00, 3.754408661907416e+00}

	const pLow = 0.02425

	var x float64
	if p < pLow {
		q := math.Sqrt(-2 * math.Log(p))
		x = (((((c[0]*q+c[1])*q+c[2])*q+c[3])*q+c[4])*q + c[5]) /
			((((d[0]*q+d[1])*q+d[2])*q+d[3])*q + 1)
	} else {
		q := p - 0.5
		r := q * q
		x = (((((a[0]*r+a[1])*r+a[2])*r+a[3])*r+a[4])*r + a[5]) * q /
			(((((b[0]*r+b[1])*r+b[2])*r+b[3])*r+b[4])*r + 1)
	}

	// Halley step against the exact CDF.
	e := 0.5*math.Erfc(-x/math.Sqrt2) - p
	u := e * sqrt2Pi * math.Exp(x*x/2)
	x = x - u/(1+x*u/2)

	return x, nil
}

// LogGamma returns ln Γ(x) for x > 0 using the Lanczos series.
func LogGamma(x float64) float64 {
	cof := [6]float64{
		76.18009172947146, -86.50532032941677, 24.01409824083091,
		-1.231739572450155, 0.1208650973866179e-2, -0.5395239384953e-5,
	}

	y := x
	tmp := x + 5.5
	tmp -= (x + 0.5) * math.Log(tmp)
	ser := 1.000000000190015
	for _, c := range cof {
		y++
		ser += c / y
	}

	return -tmp + math.Log(sqrt2Pi*ser/x)
}

// IncompleteBeta returns the regularized incomplete beta function I_x(a, b).
func IncompleteBeta(x, a, b float64) float64 {
	if math.IsNaN(x) {
		return math.NaN()
	}
	if x <= 0 {
		return 0
	}
	if x >= 1 {
		return 1
	}

	bt := math.Exp(LogGamma(a+b) - LogGamma(a) - LogGamma(b) +
		a*math.Log(x) + b*math.Log(1-x))

	// The continued fraction converges fastest below (a+1)/(a+b+2).
	if x < (a+1)/(a+b+2) {
		return bt * betaCF(x, a, b) / a
	}
	return 1 - bt*betaCF(1-x, b, a)/b
}

// betaCF evaluates the continued fraction for the incomplete beta function
// with the modified Lentz method.
func betaCF(x, a, b float64) float64 {
	floor := func(v float64) float64 {
		if math.Abs(v) < betaEpsilon {
			return betaEpsilon
		}
		return v
	}

	qab := a + b
	qap := a + 1
	qam := a - 1

	c := 1.0
	d := 1 / floor(1-qab*x/qap)
	h := d

	for m := 1; m <= betaMaxIterations; m++ {
		fm := float64(m)
		m2 := 2 * fm

		aa := fm * (b - fm) * x / ((qam + m2) * (a + m2))
		d = 1 / floor(1+aa*d)
		c = floor(1 + aa/c)
		h *= d * c

		aa = -(a + fm) * (qab + fm) * x / ((a + m2) * (qap + m2))
		d = 1 / floor(1+aa*d)
		c = floor(1 + aa/c)
		del := d * c
		h *= del

		if math.Abs(del-1) < betaEpsilon {
			break
		}
	}

	return h
}

// TCDF returns P(T <= t) for a Student t distribution with df degrees of freedom.
func TCDF(t, df float64) (float64, error) {
	if !(df > 0) {
		return 0, fmt.Errorf("%w: degrees of freedom must be positive, got %v", ErrDomain, df)
	}
	if math.IsNaN(t) {
		return math.NaN(), nil
	}
	if df > normalApproxDF {
		return NormalCDF(t), nil
	}

	// Two-sided tail mass P(|T| > |t|).
	tail := IncompleteBeta(df/(df+t*t), df/2, 0.5)

	p := 0.5 * tail
	if t >= 0 {
		p = 1 - p
	}

	return math.Max(0, math.Min(1, p)), nil
}

// TPDF is the Student t density. It returns NaN when df is not positive.
func TPDF(t, df float64) float64 {
	if !(df > 0) {
		return math.NaN()
	}
	logNorm := LogGamma((df+1)/2) - LogGamma(df/2) - 0.5*math.Log(df*math.Pi)
	return math.Exp(logNorm) * math.Pow(1+t*t/df, -(df+1)/2)
}

// TInverseCDF returns the t such that TCDF(t, df) = p, refining the normal
// quantile with Newton-Raphson.
func TInverseCDF(p, df float64) (float64, error) {
	if !(p > 0 && p < 1) {
		return 0, fmt.Errorf("%w: t quantile needs p in (0, 1), got %v", ErrDomain, p)
	}
	if !(df > 0) {
		return 0, fmt.Errorf("%w: degrees of freedom must be positive, got %v", ErrDomain, df)
	}
	if df > normalApproxDF {
		return NormalInverseCDF(p)
	}

	x, err := NormalInverseCDF(p)
	if err != nil {
		return 0, err
	}

	for i := 0; i < tInverseMaxIterations; i++ {
		cdf, err := TCDF(x, df)
		if err != nil {
			return 0, err
		}
		fx := cdf - p
		if math.Abs(fx) < tInverseTolerance {
			break
		}
		slope := TPDF(x, df)
		if slope == 0 || math.IsNaN(slope) {
			break
		}
		x -= fx / slope
	}

	return x, nil
}
