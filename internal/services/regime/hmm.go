package regime

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

const (
	numStates = 3
	numFeats  = 3
	varFloor  = 1e-6
)

// hmm is a fixed-cardinality Gaussian hidden Markov model with diagonal
// covariance over the normalized feature vectors. Exported fields so the
// model round-trips through gob.
type hmm struct {
	Init  [numStates]float64
	Trans [numStates][numStates]float64
	Mean  [numStates][numFeats]float64
	Var   [numStates][numFeats]float64
}

// logGauss is the diagonal-covariance Gaussian log-density of x under state s.
func (h *hmm) logGauss(s int, x [numFeats]float64) float64 {
	ll := 0.0
	for d := 0; d < numFeats; d++ {
		v := h.Var[s][d]
		if v < varFloor {
			v = varFloor
		}
		diff := x[d] - h.Mean[s][d]
		ll += -0.5*math.Log(2*math.Pi*v) - diff*diff/(2*v)
	}
	return ll
}

// forward runs the forward pass in log space and returns per-step log alphas
// plus the total log-likelihood.
func (h *hmm) forward(obs [][numFeats]float64) ([][numStates]float64, float64) {
	n := len(obs)
	alpha := make([][numStates]float64, n)
	for s := 0; s < numStates; s++ {
		alpha[0][s] = safeLog(h.Init[s]) + h.logGauss(s, obs[0])
	}
	buf := make([]float64, numStates)
	for t := 1; t < n; t++ {
		for s := 0; s < numStates; s++ {
			for p := 0; p < numStates; p++ {
				buf[p] = alpha[t-1][p] + safeLog(h.Trans[p][s])
			}
			alpha[t][s] = floats.LogSumExp(buf) + h.logGauss(s, obs[t])
		}
	}
	last := alpha[n-1]
	ll := floats.LogSumExp(last[:])
	return alpha, ll
}

// backward runs the backward pass in log space.
func (h *hmm) backward(obs [][numFeats]float64) [][numStates]float64 {
	n := len(obs)
	beta := make([][numStates]float64, n)
	// beta[n-1] is all zeros (log 1)
	buf := make([]float64, numStates)
	for t := n - 2; t >= 0; t-- {
		for s := 0; s < numStates; s++ {
			for nx := 0; nx < numStates; nx++ {
				buf[nx] = safeLog(h.Trans[s][nx]) + h.logGauss(nx, obs[t+1]) + beta[t+1][nx]
			}
			beta[t][s] = floats.LogSumExp(buf)
		}
	}
	return beta
}

// posteriorLast returns the posterior state distribution for the final
// observation of the window.
func (h *hmm) posteriorLast(obs [][numFeats]float64) [numStates]float64 {
	alpha, ll := h.forward(obs)
	var post [numStates]float64
	last := alpha[len(obs)-1]
	for s := 0; s < numStates; s++ {
		post[s] = math.Exp(last[s] - ll)
	}
	return post
}

// fit runs expectation-maximization over the observations. maxIter bounds
// the work; tol is the relative log-likelihood improvement at which fitting
// stops. A window the model cannot explain (degenerate likelihood) is a
// non-convergence error, never a panic.
func (h *hmm) fit(obs [][numFeats]float64, maxIter int, tol float64) error {
	n := len(obs)
	if n < numStates*2 {
		return fmt.Errorf("hmm fit: %d observations, need at least %d", n, numStates*2)
	}
	h.initFrom(obs)

	prevLL := math.Inf(-1)
	for iter := 0; iter < maxIter; iter++ {
		alpha, ll := h.forward(obs)
		if math.IsNaN(ll) || math.IsInf(ll, 1) {
			return fmt.Errorf("hmm fit: degenerate likelihood at iteration %d", iter)
		}
		beta := h.backward(obs)

		// gamma[t][s] = P(state_t = s | obs)
		gamma := make([][numStates]float64, n)
		for t := 0; t < n; t++ {
			for s := 0; s < numStates; s++ {
				gamma[t][s] = math.Exp(alpha[t][s] + beta[t][s] - ll)
			}
		}

		// xiSum[p][s] = sum_t P(state_t = p, state_t+1 = s | obs)
		var xiSum [numStates][numStates]float64
		for t := 0; t < n-1; t++ {
			for p := 0; p < numStates; p++ {
				for s := 0; s < numStates; s++ {
					xiSum[p][s] += math.Exp(alpha[t][p] + safeLog(h.Trans[p][s]) +
						h.logGauss(s, obs[t+1]) + beta[t+1][s] - ll)
				}
			}
		}

		// M-step
		for s := 0; s < numStates; s++ {
			h.Init[s] = gamma[0][s]

			var rowSum float64
			for nx := 0; nx < numStates; nx++ {
				rowSum += xiSum[s][nx]
			}
			if rowSum > 0 {
				for nx := 0; nx < numStates; nx++ {
					h.Trans[s][nx] = xiSum[s][nx] / rowSum
				}
			}

			var weight float64
			var mean, m2 [numFeats]float64
			for t := 0; t < n; t++ {
				weight += gamma[t][s]
				for d := 0; d < numFeats; d++ {
					mean[d] += gamma[t][s] * obs[t][d]
				}
			}
			if weight <= 0 {
				return fmt.Errorf("hmm fit: state %d collapsed at iteration %d", s, iter)
			}
			for d := 0; d < numFeats; d++ {
				mean[d] /= weight
			}
			for t := 0; t < n; t++ {
				for d := 0; d < numFeats; d++ {
					diff := obs[t][d] - mean[d]
					m2[d] += gamma[t][s] * diff * diff
				}
			}
			for d := 0; d < numFeats; d++ {
				v := m2[d] / weight
				if v < varFloor {
					v = varFloor
				}
				h.Mean[s][d] = mean[d]
				h.Var[s][d] = v
			}
		}

		if ll-prevLL < tol*math.Abs(prevLL) && iter > 0 {
			return nil
		}
		prevLL = ll
	}
	return nil
}

// initFrom seeds states by splitting the window into volatility terciles so
// EM starts from distinguishable states rather than a symmetric saddle.
func (h *hmm) initFrom(obs [][numFeats]float64) {
	n := len(obs)
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool { return obs[idx[a]][2] < obs[idx[b]][2] })

	third := n / numStates
	for s := 0; s < numStates; s++ {
		lo := s * third
		hi := lo + third
		if s == numStates-1 {
			hi = n
		}
		cols := make([][]float64, numFeats)
		for d := range cols {
			cols[d] = make([]float64, 0, hi-lo)
		}
		for _, i := range idx[lo:hi] {
			for d := 0; d < numFeats; d++ {
				cols[d] = append(cols[d], obs[i][d])
			}
		}
		for d := 0; d < numFeats; d++ {
			mean, std := stat.MeanStdDev(cols[d], nil)
			v := std * std
			if v < varFloor || math.IsNaN(v) {
				v = 1
			}
			h.Mean[s][d] = mean
			h.Var[s][d] = v
		}
		h.Init[s] = 1.0 / numStates
		for nx := 0; nx < numStates; nx++ {
			if nx == s {
				h.Trans[s][nx] = 0.9
			} else {
				h.Trans[s][nx] = 0.05
			}
		}
	}
}

func safeLog(x float64) float64 {
	if x <= 0 {
		return math.Inf(-1)
	}
	return math.Log(x)
}
