package core

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"
	"strings"

	"github.com/signalsfoundry/su2-hmc/lattice"
	"github.com/signalsfoundry/su2-hmc/model"
)

// DefaultInvariantTolerance is the deviation allowed by the invariant checks
// run after every trajectory.
const DefaultInvariantTolerance = 1e-10

// maxRecordedViolations caps the sites kept in a report.
const maxRecordedViolations = 16

// ErrInvariantViolation indicates a link left SU(2) or a momentum left su(2).
var ErrInvariantViolation = errors.New("field invariant violated")

// Violation is one offending (site, direction).
type Violation struct {
	Site      lattice.Coord
	Mu        int
	Deviation float64
}

// ViolationReport is the result of an invariant check. A report with no
// violations is a pass; otherwise it can be returned as an error that
// matches ErrInvariantViolation.
type ViolationReport struct {
	Kind      string
	Tolerance float64
	Checked   int
	Failed    int
	// Worst is the largest deviation seen, violating or not.
	Worst      float64
	Violations []Violation
}

// OK reports whether nothing exceeded the tolerance.
func (r *ViolationReport) OK() bool { return r.Failed == 0 }

// Err returns r as an error, or nil when the check passed.
func (r *ViolationReport) Err() error {
	if r.OK() {
		return nil
	}
	return r
}

func (r *ViolationReport) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %d of %d entries exceed tolerance %g (worst %g)",
		r.Kind, r.Failed, r.Checked, r.Tolerance, r.Worst)
	for _, v := range r.Violations {
		fmt.Fprintf(&b, "; %v mu=%d dev=%g", v.Site, v.Mu, v.Deviation)
	}
	return b.String()
}

func (r *ViolationReport) Unwrap() error { return ErrInvariantViolation }

func check(f *lattice.Field, kind string, tol float64, deviation func(model.Matrix) float64) *ViolationReport {
	rep := &ViolationReport{Kind: kind, Tolerance: tol, Checked: f.Size()}
	for i := 0; i < f.Size(); i++ {
		d := deviation(f.Flat(i))
		if math.IsNaN(d) {
			d = math.Inf(1)
		}
		rep.Worst = math.Max(rep.Worst, d)
		if d <= tol {
			continue
		}
		rep.Failed++
		if len(rep.Violations) < maxRecordedViolations {
			c, mu := f.Coord(i)
			rep.Violations = append(rep.Violations, Violation{Site: c, Mu: mu, Deviation: d})
		}
	}
	return rep
}

// UnitarityDeviation is max(|U·U† − I|, |det U − 1|) element-wise.
func UnitarityDeviation(u model.Matrix) float64 {
	d := u.Mul(u.Adjoint()).Sub(model.Identity()).MaxAbs()
	return math.Max(d, cmplx.Abs(u.Det()-1))
}

// AlgebraDeviation is max(|π − π†|, |tr π|) element-wise.
func AlgebraDeviation(p model.Matrix) float64 {
	d := p.Sub(p.Adjoint()).MaxAbs()
	return math.Max(d, cmplx.Abs(p.Trace()))
}

// CheckLinks verifies every link is in SU(2) within tol.
func CheckLinks(links *lattice.Field, tol float64) *ViolationReport {
	return check(links, "links not in SU(2)", tol, UnitarityDeviation)
}

// CheckMomenta verifies every momentum is traceless Hermitian within tol.
func CheckMomenta(momenta *lattice.Field, tol float64) *ViolationReport {
	return check(momenta, "momenta not in su(2)", tol, AlgebraDeviation)
}
