package srp

import (
	"bytes"
	"crypto/rand"
	"errors"
	"math/big"
)

// Client is the user side of an SRP-6a exchange.
type Client struct {
	group *Group
	a     *big.Int
	A     *big.Int
	M1    []byte
	M2    []byte
	K     []byte
}

// NewClient picks a random secret when a is empty.
func NewClient(group *Group, a []byte) *Client {
	if len(a) == 0 {
		a = make([]byte, 32)
		rand.Read(a)
	}
	secret := new(big.Int).SetBytes(a)
	return &Client{
		group: group,
		a:     secret,
		A:     new(big.Int).Exp(group.G, secret, group.N),
	}
}

func (c *Client) PublicKey() []byte {
	return c.A.Bytes()
}

// ProcessChallenge derives the session key K and the proofs M1/M2 from the server salt and public key B.
func (c *Client) ProcessChallenge(username, password, salt, B []byte) error {
	g := c.group
	bigB := new(big.Int).SetBytes(B)
	if bigB.Sign() <= 0 || g.N.Cmp(bigB) <= 0 {
		return errors.New("invalid server-supplied 'B', must be 1..N-1")
	}
	x := g.x(salt, username, password)
	u := g.u(c.A, bigB)
	if u.Sign() == 0 {
		return errors.New("invalid scrambling parameter")
	}
	// S = (B - k*g^x) ^ (a + u*x) mod N
	gx := new(big.Int).Exp(g.G, x, g.N)
	base := new(big.Int).Sub(bigB, new(big.Int).Mul(g.multiplier(), gx))
	base.Mod(base, g.N)
	exp := new(big.Int).Add(c.a, new(big.Int).Mul(u, x))
	S := new(big.Int).Exp(base, exp, g.N)

	c.K = g.digest(g.pad(S))
	A := g.pad(c.A)
	c.M1 = g.m1(username, salt, A, B, c.K)
	c.M2 = g.m2(A, c.M1, c.K)
	return nil
}

func (c *Client) SessionKey() []byte {
	return c.K
}

func (c *Client) VerifyM2(M2 []byte) error {
	if !bytes.Equal(c.M2, M2) {
		return errors.New("server proof M2 mismatch")
	}
	return nil
}

// Verifier computes v = g^x mod N, used by tests to play the server side.
func Verifier(group *Group, salt, username, password []byte) *big.Int {
	return new(big.Int).Exp(group.G, group.x(salt, username, password), group.N)
}
