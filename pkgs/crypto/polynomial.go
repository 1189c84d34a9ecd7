package crypto

import (
	"io"

	"github.com/pkg/errors"
)

// Polynomial is a secret sharing polynomial over Z_q. coeffs[0] is the shared secret.
type Polynomial struct {
	coeffs []*Scalar
}

// NewRandomPolynomial samples a polynomial of the given degree with random coefficients.
func NewRandomPolynomial(r io.Reader, degree int) (*Polynomial, error) {
	if degree < 0 {
		return nil, errors.New("negative polynomial degree")
	}
	coeffs := make([]*Scalar, degree+1)
	for i := range coeffs {
		c, err := RandomScalar(r)
		if err != nil {
			return nil, err
		}
		coeffs[i] = c
	}
	return &Polynomial{coeffs: coeffs}, nil
}

func (p *Polynomial) Degree() int {
	return len(p.coeffs) - 1
}

func (p *Polynomial) Secret() *Scalar {
	return new(Scalar).Set(p.coeffs[0])
}

// Evaluate returns f(x) using Horner's rule.
func (p *Polynomial) Evaluate(x uint16) *Scalar {
	xs := ScalarFromIndex(x)
	acc := new(Scalar)
	for i := len(p.coeffs) - 1; i >= 0; i-- {
		acc.Mul(xs).Add(p.coeffs[i])
	}
	return acc
}

// Commit returns the Feldman commitments a_k*G of every coefficient.
func (p *Polynomial) Commit() []*Point {
	commits := make([]*Point, len(p.coeffs))
	for i, c := range p.coeffs {
		commits[i] = BaseMul(c)
	}
	return commits
}

// Zeroize wipes the coefficients.
func (p *Polynomial) Zeroize() {
	for _, c := range p.coeffs {
		c.Zero()
	}
}

// EvaluateCommitments returns f(x)*G computed from the coefficient commitments.
func EvaluateCommitments(commits []*Point, x uint16) *Point {
	xs := ScalarFromIndex(x)
	acc := Identity()
	for i := len(commits) - 1; i >= 0; i-- {
		acc = acc.Mul(xs).Add(commits[i])
	}
	return acc
}

// VerifyShare checks share*G against the dealer's commitments at index x.
func VerifyShare(share *Scalar, commits []*Point, x uint16) bool {
	return BaseMul(share).Equal(EvaluateCommitments(commits, x))
}

// LagrangeCoefficient returns the coefficient of index at zero over the given index set.
func LagrangeCoefficient(index uint16, set []uint16) (*Scalar, error) {
	if index == 0 {
		return nil, errors.New("index 0 is not a valid evaluation point")
	}
	num := new(Scalar).SetInt(1)
	den := new(Scalar).SetInt(1)
	xi := ScalarFromIndex(index)
	found := false
	for _, j := range set {
		if j == index {
			if found {
				return nil, errors.Errorf("duplicate index %d", j)
			}
			found = true
			continue
		}
		if j == 0 {
			return nil, errors.New("index 0 is not a valid evaluation point")
		}
		xj := ScalarFromIndex(j)
		num.Mul(xj)
		den.Mul(new(Scalar).NegateVal(xi).Add(xj))
	}
	if !found {
		return nil, errors.Errorf("index %d is not part of the set", index)
	}
	return num.Mul(den.InverseNonConst()), nil
}

// InterpolateAtZero recovers F(0)*G from points F(j)*G over the given index set.
func InterpolateAtZero(points map[uint16]*Point) (*Point, error) {
	set := make([]uint16, 0, len(points))
	for j := range points {
		set = append(set, j)
	}
	acc := Identity()
	for _, j := range set {
		l, err := LagrangeCoefficient(j, set)
		if err != nil {
			return nil, err
		}
		acc = acc.Add(points[j].Mul(l))
	}
	return acc, nil
}
