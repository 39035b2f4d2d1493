package responder

import (
	"gonum.org/v1/gonum/spatial/r3"
)

// Exchange is the momentum exchange of a two-group collision. Impulses are
// those received by side a; side b receives their negation.
type Exchange struct {
	Normal       r3.Vec // unit vector from a to b
	Full         r3.Vec // total impulse for restitution coefficient e
	Loading      r3.Vec // impulse that brings both sides to LoadVelocity
	Restitution  r3.Vec // Full - Loading, applied at restitution time
	LoadVelocity r3.Vec // mass-weighted common velocity
}

// Resolve computes the exchange between side a (mass ma, velocity va, contact
// point pa) and side b. Coincident contact points yield no normal impulse.
func Resolve(pa, pb, va, vb r3.Vec, ma, mb, e float64) Exchange {
	var x Exchange
	total := ma + mb
	x.LoadVelocity = r3.Scale(1/total, r3.Add(r3.Scale(ma, va), r3.Scale(mb, vb)))
	x.Loading = r3.Scale(ma, r3.Sub(x.LoadVelocity, va))

	d := r3.Sub(pb, pa)
	if norm := r3.Norm(d); norm > 0 {
		x.Normal = r3.Scale(1/norm, d)
		reduced := ma * mb / total
		approach := r3.Dot(r3.Sub(vb, va), x.Normal)
		x.Full = r3.Scale((1+e)*reduced*approach, x.Normal)
	}
	x.Restitution = r3.Sub(x.Full, x.Loading)
	return x
}
