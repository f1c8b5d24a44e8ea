package flowtable

import "spintraffic/internal/model"

// SameFlow reports whether a and b describe the same logical flow.
//
// Ports must match positionally. Beyond that, the flows are the same if both
// MAC pairs are equal, or if the from sides and the to sides each share at
// least one IP or domain. Note that two flows with no MAC on either side match
// on the MAC branch alone.
func SameFlow(a, b *model.FlowRecord) bool {
	if a.FromPort != b.FromPort || a.ToPort != b.ToPort {
		return false
	}
	if a.From.MAC == b.From.MAC && a.To.MAC == b.To.MAC {
		return true
	}
	return overlaps(a.From, b.From) && overlaps(a.To, b.To)
}

// overlaps reports whether the endpoints share an IP or a domain.
func overlaps(a, b model.Endpoint) bool {
	return intersects(a.IPs, b.IPs) || intersects(a.Domains, b.Domains)
}

func intersects(a, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}
