package srp

import (
	"crypto"
	"encoding/hex"
	"hash"
	"math/big"
	"strings"
)

// Group is the <g, N> pair plus hash an SRP exchange runs over.
type Group struct {
	G     *big.Int
	N     *big.Int
	Hash  crypto.Hash
	NBits int
	// apple 计算x的时候不带用户名
	NoUserNameInX bool
}

// RFC 5054 2048 bit group, the one GrandSlam uses.
var Group2048 = newGroup(2, 2048, crypto.SHA256, `
	AC6BDB41 324A9A9B F166DE5E 1389582F AF72B665 1987EE07 FC319294
	3DB56050 A37329CB B4A099ED 8193E075 7767A13D D52312AB 4B03310D
	CD7F48A9 DA04FD50 E8083969 EDB767B0 CF609517 9A163AB3 661A05FB
	D5FAAAE8 2918A996 2F0B93B8 55F97993 EC975EEA A80D740A DBF4FF74
	7359D041 D5C33EA7 1D281E44 6B14773B CA97B43A 23FB8016 76BD207A
	436C6481 F1D2B907 8717461A 5B9D32E6 88F87748 544523B5 24B0D57D
	5EA77A27 75D2ECFA 032CFBDB F52FB378 61602790 04E57AE6 AF874E73
	03CE5329 9CCC041C 7BC308D8 2A5698F3 A8D0C382 71AE35F8 E9DBFBB6
	94B5C803 D89F7AE4 35DE236D 525F5475 9B65E372 FCD68EF2 0FA7111F
	9E4AFF73`)

func newGroup(g int64, bits int, h crypto.Hash, nHex string) *Group {
	cleaned := strings.Join(strings.Fields(nHex), "")
	n, e := hex.DecodeString(cleaned)
	if e != nil {
		panic(e)
	}
	return &Group{
		G:             big.NewInt(g),
		N:             new(big.Int).SetBytes(n),
		Hash:          h,
		NBits:         bits,
		NoUserNameInX: true,
	}
}

func (g *Group) digest(parts ...[]byte) []byte {
	h := g.Hash.New()
	for _, p := range parts {
		h.Write(p)
	}
	return h.Sum(nil)
}

func (g *Group) pad(number *big.Int) []byte {
	b := number.Bytes()
	length := g.NBits / 8
	if len(b) >= length {
		return b
	}
	return append(make([]byte, length-len(b)), b...)
}

// k = H(N | pad(g))
func (g *Group) multiplier() *big.Int {
	return hashToInt(g.Hash.New(), g.N.Bytes(), g.pad(g.G))
}

// x = H(s | H([I] | ":" | p))
func (g *Group) x(salt, username, password []byte) *big.Int {
	var inner []byte
	if g.NoUserNameInX {
		inner = g.digest([]byte(":"), password)
	} else {
		inner = g.digest(username, []byte(":"), password)
	}
	return new(big.Int).SetBytes(g.digest(salt, inner))
}

// u = H(pad(A) | pad(B))
func (g *Group) u(A, B *big.Int) *big.Int {
	return hashToInt(g.Hash.New(), g.pad(A), g.pad(B))
}

// M1 = H(H(N) xor H(g) | H(I) | s | A | B | K)
func (g *Group) m1(username, salt, A, B, K []byte) []byte {
	hn := g.digest(g.N.Bytes())
	hg := g.digest(g.pad(g.G))
	xor := make([]byte, len(hn))
	for i := range hn {
		xor[i] = hn[i] ^ hg[i]
	}
	return g.digest(xor, g.digest(username), salt, A, B, K)
}

func (g *Group) m2(A, M1, K []byte) []byte {
	return g.digest(A, M1, K)
}

func hashToInt(h hash.Hash, parts ...[]byte) *big.Int {
	for _, p := range parts {
		h.Write(p)
	}
	return new(big.Int).SetBytes(h.Sum(nil))
}
