// Package numeric provides the pure numerical integrators user blocks invoke
// from Step: explicit Euler and classical Runge-Kutta 4. Neither integrator
// touches the graph, the signal registry, or I/O — both operate purely on
// state vectors and a derivative function, per spec.md's scope note keeping
// concrete integration schemes as library functions invoked from blocks.
package numeric

// Derivative computes dx/dt at time t given state x. State is represented as
// a plain []float64 so blocks can use it for scalars (length 1) or small
// fixed-size vectors alike without a generic numeric type.
type Derivative func(t float64, x []float64) []float64

// Euler advances x by one step of dt using the explicit (forward) Euler
// method: x_{k+1} = x_k + dt * f(t_k, x_k). Returns a new slice; x is not
// mutated.
func Euler(f Derivative, t float64, x []float64, dt float64) []float64 {
	dx := f(t, x)
	out := make([]float64, len(x))
	for i := range x {
		out[i] = x[i] + dt*dx[i]
	}
	return out
}

// RK4 advances x by one step of dt using the classical 4th-order
// Runge-Kutta method. Returns a new slice; x is not mutated.
func RK4(f Derivative, t float64, x []float64, dt float64) []float64 {
	n := len(x)

	k1 := f(t, x)

	x2 := make([]float64, n)
	for i := 0; i < n; i++ {
		x2[i] = x[i] + dt/2*k1[i]
	}
	k2 := f(t+dt/2, x2)

	x3 := make([]float64, n)
	for i := 0; i < n; i++ {
		x3[i] = x[i] + dt/2*k2[i]
	}
	k3 := f(t+dt/2, x3)

	x4 := make([]float64, n)
	for i := 0; i < n; i++ {
		x4[i] = x[i] + dt*k3[i]
	}
	k4 := f(t+dt, x4)

	out := make([]float64, n)
	for i := 0; i < n; i++ {
		out[i] = x[i] + dt/6*(k1[i]+2*k2[i]+2*k3[i]+k4[i])
	}
	return out
}
