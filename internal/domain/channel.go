package domain

// Node identifies a routing network participant (hex encoded public key).
// No other node attributes are modeled.
type Node = string

// Channel is one direction of a payment channel as advertised in the network
// snapshot. Both directions of a bidirectional channel are separate records.
type Channel struct {
	Source       Node  // forwarding node
	Destination  Node  // next hop
	CapacityMsat int64 // channel capacity in millisatoshi, 0 when unknown
	FeeBaseMsat  int64 // fixed fee per forwarded payment (msat)
	FeeRatePPM   int64 // proportional fee, parts-per-million of the forwarded amount
}
