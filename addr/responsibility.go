package addr

import "math/big"

// ResponsibilityRadius computes the radius within which a peer considers
// itself a replica: the larger (less restrictive) of the distance to the
// k-th closest known peer and the density-derived floor
// MaxDistance / networkSize * k. Both the record store's admission
// control and the quoter's payee-range check share this computation, so
// it lives here rather than in either of those packages.
//
// haveKth is false when the routing view holds fewer than k peers (an
// immature table); networkSize <= 0 disables the density floor (an
// unknown or zero estimate carries no information).
func ResponsibilityRadius(self, kthPeer Address, haveKth bool, k int, networkSize int64) *big.Int {
	var rRouting *big.Int
	if haveKth {
		rRouting = Dist(self, kthPeer).BigInt()
	}

	var rDensity *big.Int
	if networkSize > 0 && k > 0 {
		rDensity = new(big.Int).Mul(MaxDistance(), big.NewInt(int64(k)))
		rDensity.Div(rDensity, big.NewInt(networkSize))
	}

	switch {
	case rRouting == nil && rDensity == nil:
		return MaxDistance()
	case rRouting == nil:
		return rDensity
	case rDensity == nil:
		return rRouting
	case rRouting.Cmp(rDensity) >= 0:
		return rRouting
	default:
		return rDensity
	}
}
