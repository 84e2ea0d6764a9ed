package tabstep

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Fraction is a rational time value in whole notes: a quarter note is 1/4, a
// 3/4 measure is 3/4 long. The zero value is treated as 0.
type Fraction struct {
	Numerator   int
	Denominator int
}

// maxDecimalDenominator bounds the search when a decimal such as 0.375 is
// converted to a fraction.
const maxDecimalDenominator = 1920

// NewFraction returns num/den in lowest terms with a positive denominator. A
// zero denominator yields 0.
func NewFraction(num, den int) Fraction {
	if den == 0 {
		return Fraction{0, 1}
	}
	if den < 0 {
		num, den = -num, -den
	}
	if g := gcd(abs(num), den); g > 1 {
		num, den = num/g, den/g
	}
	return Fraction{num, den}
}

// Whole returns the fraction n/1.
func Whole(n int) Fraction { return Fraction{n, 1} }

func (f Fraction) norm() Fraction {
	if f.Denominator == 0 {
		return Fraction{0, 1}
	}
	return NewFraction(f.Numerator, f.Denominator)
}

// RealValue returns the fraction as a float64.
func (f Fraction) RealValue() float64 {
	if f.Denominator == 0 {
		return 0
	}
	return float64(f.Numerator) / float64(f.Denominator)
}

func (f Fraction) Add(g Fraction) Fraction {
	f, g = f.norm(), g.norm()
	return NewFraction(f.Numerator*g.Denominator+g.Numerator*f.Denominator, f.Denominator*g.Denominator)
}

func (f Fraction) Sub(g Fraction) Fraction {
	g = g.norm()
	return f.Add(Fraction{-g.Numerator, g.Denominator})
}

// Cmp returns -1, 0 or +1 depending on whether f is less than, equal to or
// greater than g.
func (f Fraction) Cmp(g Fraction) int {
	f, g = f.norm(), g.norm()
	l, r := f.Numerator*g.Denominator, g.Numerator*f.Denominator
	switch {
	case l < r:
		return -1
	case l > r:
		return 1
	}
	return 0
}

func (f Fraction) Less(g Fraction) bool  { return f.Cmp(g) < 0 }
func (f Fraction) Equal(g Fraction) bool { return f.Cmp(g) == 0 }

// Floor returns the largest integer not greater than the fraction.
func (f Fraction) Floor() int {
	return int(math.Floor(f.RealValue()))
}

func (f Fraction) String() string {
	f = f.norm()
	if f.Denominator == 1 {
		return strconv.Itoa(f.Numerator)
	}
	return fmt.Sprintf("%d/%d", f.Numerator, f.Denominator)
}

func (f Fraction) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// UnmarshalText accepts "n/d", integers and decimals ("0.25"). Decimals are
// converted to the nearest fraction with a denominator up to 1920.
func (f *Fraction) UnmarshalText(text []byte) error {
	s := strings.TrimSpace(string(text))
	if num, den, ok := strings.Cut(s, "/"); ok {
		n, err := strconv.Atoi(strings.TrimSpace(num))
		if err != nil {
			return errors.Wrapf(err, "invalid fraction numerator in %q", s)
		}
		d, err := strconv.Atoi(strings.TrimSpace(den))
		if err != nil {
			return errors.Wrapf(err, "invalid fraction denominator in %q", s)
		}
		if d == 0 {
			return errors.Errorf("fraction %q has a zero denominator", s)
		}
		*f = NewFraction(n, d)
		return nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		*f = Whole(n)
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return errors.Wrapf(err, "invalid fraction %q", s)
	}
	for d := 1; d <= maxDecimalDenominator; d++ {
		n := math.Round(v * float64(d))
		if math.Abs(n-v*float64(d)) < 1e-9 {
			*f = NewFraction(int(n), d)
			return nil
		}
	}
	return errors.Errorf("decimal %q has no fraction with a denominator up to %d", s, maxDecimalDenominator)
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

func abs(a int) int {
	if a < 0 {
		return -a
	}
	return a
}
