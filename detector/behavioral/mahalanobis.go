package behavioral

import "math"

// mahalanobis computes the Mahalanobis distance of x from the baseline
// mean, using the sample covariance of history regularized by Σ + 1e-6·I
// (spec §4.1 step 2). Returns (0, false) if the regularized covariance is
// still singular — callers skip the multivariate check rather than fail.
func mahalanobis(x []float64, mean []float64, history [][]float64) (float64, bool) {
	n := len(x)
	cov := sampleCovariance(history, mean, n)
	for i := 0; i < n; i++ {
		cov[i][i] += 1e-6
	}

	inv := invertSymmetric(cov)
	if inv == nil {
		return 0, false
	}

	diff := make([]float64, n)
	for i := range diff {
		diff[i] = x[i] - mean[i]
	}

	var quad float64
	Mv := make([]float64, n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			Mv[i] += inv[i][j] * diff[j]
		}
	}
	for i := 0; i < n; i++ {
		quad += diff[i] * Mv[i]
	}
	if quad < 0 {
		quad = 0
	}
	return math.Sqrt(quad), true
}

func sampleCovariance(history [][]float64, mean []float64, n int) [][]float64 {
	cov := make([][]float64, n)
	for i := range cov {
		cov[i] = make([]float64, n)
	}
	m := len(history)
	if m < 2 {
		return cov
	}
	for _, row := range history {
		for i := 0; i < n; i++ {
			di := row[i] - mean[i]
			for j := 0; j < n; j++ {
				dj := row[j] - mean[j]
				cov[i][j] += di * dj
			}
		}
	}
	denom := float64(m - 1)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			cov[i][j] /= denom
		}
	}
	return cov
}

// invertSymmetric inverts a symmetric positive-definite matrix via
// Cholesky decomposition (Σ = LLᵀ). Returns nil if Σ is singular or not
// positive-definite — the caller treats this as "skip, don't fail" per
// spec §4.1.
func invertSymmetric(a [][]float64) [][]float64 {
	n := len(a)
	L := choleskyDecompose(a)
	if L == nil {
		return nil
	}
	Linv := invertLowerTriangular(L)
	if Linv == nil {
		return nil
	}
	inv := make([][]float64, n)
	for i := range inv {
		inv[i] = make([]float64, n)
		for j := 0; j < n; j++ {
			for k := 0; k < n; k++ {
				inv[i][j] += Linv[k][i] * Linv[k][j]
			}
		}
	}
	return inv
}

func choleskyDecompose(a [][]float64) [][]float64 {
	n := len(a)
	L := make([][]float64, n)
	for i := range L {
		L[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := 0; j <= i; j++ {
			sum := a[i][j]
			for k := 0; k < j; k++ {
				sum -= L[i][k] * L[j][k]
			}
			if i == j {
				if sum <= 0 {
					return nil
				}
				L[i][j] = math.Sqrt(sum)
			} else {
				if L[j][j] == 0 {
					return nil
				}
				L[i][j] = sum / L[j][j]
			}
		}
	}
	return L
}

func invertLowerTriangular(L [][]float64) [][]float64 {
	n := len(L)
	inv := make([][]float64, n)
	for i := range inv {
		inv[i] = make([]float64, n)
	}
	for j := 0; j < n; j++ {
		if L[j][j] == 0 {
			return nil
		}
		inv[j][j] = 1.0 / L[j][j]
		for i := j + 1; i < n; i++ {
			var sum float64
			for k := j; k < i; k++ {
				sum -= L[i][k] * inv[k][j]
			}
			inv[i][j] = sum / L[i][i]
		}
	}
	return inv
}
