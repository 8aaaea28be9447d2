package boardcal

import (
	"math"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"
)

// residualFunc fills dst with the residuals at x.
type residualFunc func(dst, x []float64)

type lmResult struct {
	x          []float64
	cost       float64
	iterations int
}

func sumSquares(r []float64) float64 {
	s := 0.0
	for _, v := range r {
		s += v * v
	}
	return s
}

func allFinite(v []float64) bool {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}

// levenbergMarquardt minimizes the sum of squared residuals of f, which produces m values,
// starting from x0. The Jacobian is estimated with central differences and the damping is
// scaled by the diagonal of JᵀJ.
func levenbergMarquardt(f residualFunc, m int, x0 []float64, maxIter int) lmResult {
	n := len(x0)
	x := append([]float64(nil), x0...)
	r := make([]float64, m)
	f(r, x)
	cost := sumSquares(r)

	jac := mat.NewDense(m, n, nil)
	settings := &fd.JacobianSettings{Formula: fd.Central}
	xNew := make([]float64, n)
	rNew := make([]float64, m)
	mu := 1e-3

	iter := 0
	for ; iter < maxIter; iter++ {
		fd.Jacobian(jac, f, x, settings)

		var jtj mat.Dense
		jtj.Mul(jac.T(), jac)
		var grad mat.VecDense
		grad.MulVec(jac.T(), mat.NewVecDense(m, r))

		accepted := false
		converged := false
		for mu < 1e16 {
			a := mat.DenseCopyOf(&jtj)
			for i := 0; i < n; i++ {
				d := jtj.At(i, i)
				a.Set(i, i, d+mu*math.Max(d, 1e-9))
			}
			var step mat.VecDense
			if err := step.SolveVec(a, &grad); err != nil {
				if _, ok := err.(mat.Condition); !ok {
					mu *= 10
					continue
				}
			}
			stepNorm := 0.0
			xNorm := 0.0
			for i := 0; i < n; i++ {
				xNew[i] = x[i] - step.AtVec(i)
				stepNorm += step.AtVec(i) * step.AtVec(i)
				xNorm += x[i] * x[i]
			}
			f(rNew, xNew)
			newCost := sumSquares(rNew)
			if allFinite(rNew) && newCost < cost {
				converged = cost-newCost <= 1e-12*cost || math.Sqrt(stepNorm) <= 1e-12*(math.Sqrt(xNorm)+1e-12)
				copy(x, xNew)
				copy(r, rNew)
				cost = newCost
				mu = math.Max(mu*0.1, 1e-12)
				accepted = true
				break
			}
			mu *= 10
		}
		if !accepted || converged {
			break
		}
	}
	return lmResult{x: x, cost: cost, iterations: iter}
}
