// Package quoter prices storage requests and validates the payment
// proofs attached to incoming StoreRecord requests. Uptime tracking is
// a single local start time, since the live-time discount applies to
// this peer's own continuous-operation duration, not a remote peer's.
package quoter

import (
	"math"
	"sync"
	"time"

	"github.com/antstorage/ant/addr"
	"github.com/antstorage/ant/anterrs"
	"github.com/antstorage/ant/antconfig"
	"github.com/antstorage/ant/keys"
	"github.com/antstorage/ant/record"
	"github.com/antstorage/ant/routing"
)

// RoutingView is the subset of routing.Table the quoter needs to
// validate a payment proof's payee range, mirroring store.RoutingView.
type RoutingView interface {
	Closest(target addr.Address, n int) []routing.PeerInfo
	EstimateNetworkSize() int64
}

// RecordCounter reports how many records the local store currently
// holds, the utilization term of the pricing
// formula. store.Store.Len satisfies this.
type RecordCounter interface {
	Len() int
}

// utilizationTier is one row of the utilization multiplier table.
type utilizationTier struct {
	ceiling    float64 // exclusive upper bound on u, except the last tier
	multiplier float64
}

var utilizationTiers = []utilizationTier{
	{ceiling: 0.5, multiplier: 1},
	{ceiling: 0.75, multiplier: 2},
	{ceiling: 0.9, multiplier: 5},
	{ceiling: math.Inf(1), multiplier: 10},
}

func utilizationMultiplier(u float64) float64 {
	for _, t := range utilizationTiers {
		if u < t.ceiling {
			return t.multiplier
		}
	}
	return utilizationTiers[len(utilizationTiers)-1].multiplier
}

// liveTimeDiscountThreshold is the uptime cutover: the discount is 0.9
// once the peer has been continuously up for at least an hour, else 1.
const liveTimeDiscountThreshold = time.Hour

// Config bundles the quoter's pricing constants. BasePrice and
// SizeSurchargePerByte are deployment-tunable and therefore not baked
// into antconfig.Parameters, which holds protocol-level knobs instead.
type Config struct {
	BasePrice            float64
	SizeSurchargePerByte float64
	PriceValidity        time.Duration
}

// DefaultConfig returns conservative pricing defaults.
func DefaultConfig() Config {
	return Config{
		BasePrice:            1000,
		SizeSurchargePerByte: 0.01,
		PriceValidity:        5 * time.Minute,
	}
}

// Quoter issues and validates quotes for the local peer.
type Quoter struct {
	self      addr.Address
	keys      *keys.KeyPair
	cfg       antconfig.Parameters
	pricing   Config
	view      RoutingView
	records   RecordCounter
	startedAt time.Time

	mu               sync.Mutex
	receivedPayments uint64
	scheduleVersion  uint32
}

// New constructs a Quoter. startedAt marks the instant the local peer
// process began continuous operation, the reference point for
// live_time_discount.
func New(self addr.Address, kp *keys.KeyPair, cfg antconfig.Parameters, pricing Config, view RoutingView, records RecordCounter, startedAt time.Time) *Quoter {
	return &Quoter{
		self:      self,
		keys:      kp,
		cfg:       cfg,
		pricing:   pricing,
		view:      view,
		records:   records,
		startedAt: startedAt,
	}
}

// GetQuote issues a signed, time-limited price offer for storing size
// bytes of kind at recordName.
func (q *Quoter) GetQuote(recordName addr.Address, kind record.Kind, size int64, now time.Time) (record.Quote, error) {
	u := q.utilization()
	mult := utilizationMultiplier(u)

	q.mu.Lock()
	received := q.receivedPayments
	version := q.scheduleVersion
	q.mu.Unlock()

	price := q.pricing.BasePrice * mult * (1 + 0.1*float64(received)) * q.liveTimeDiscount(now)
	price += q.sizeSurcharge(size)

	quote := record.Quote{
		PeerID:               q.self,
		PeerPublicKey:        q.keys.Public.Bytes(),
		Price:                uint64(math.Round(price)),
		PriceExpiryTime:      now.Add(q.pricing.PriceValidity),
		PriceScheduleVersion: version,
	}
	quote.Signature = keys.Sign(q.keys.Private, quote.SigningBytes(recordName, kind))
	return quote, nil
}

// utilization returns u = close_records_stored / MaxRecords, the
// fraction of local storage capacity currently in use.
func (q *Quoter) utilization() float64 {
	if q.records == nil || q.cfg.MaxRecords <= 0 {
		return 0
	}
	return float64(q.records.Len()) / float64(q.cfg.MaxRecords)
}

// liveTimeDiscount returns 0.9 once the peer has run continuously for
// at least an hour, else 1.
func (q *Quoter) liveTimeDiscount(now time.Time) float64 {
	if now.Sub(q.startedAt) >= liveTimeDiscountThreshold {
		return 0.9
	}
	return 1
}

func (q *Quoter) sizeSurcharge(size int64) float64 {
	return q.pricing.SizeSurchargePerByte * float64(size)
}

// RecordPaymentReceived bumps the received-payment counter that feeds
// the next quote's "1 + 0.1 * received_payment_count" term, called
// once a StoreRecord's payment proof has passed ValidatePayment.
func (q *Quoter) RecordPaymentReceived() {
	q.mu.Lock()
	q.receivedPayments++
	q.mu.Unlock()
}

// ValidatePayment runs the three StoreRecord payment checks: the
// local peer must be a listed payee, at least one payee must
// fall within the payee-range rule, and every quote must verify (a
// valid signature, unexpired within clockSkew).
func (q *Quoter) ValidatePayment(proof record.PaymentProof, quotes []record.Quote, now time.Time) error {
	if !proof.ListsPayee(q.self) {
		return anterrs.ErrPaymentNotForUs
	}

	if !q.anyPayeeInRange(proof.RecordName, proof.Payees) {
		return anterrs.ErrPayeesOutOfRange
	}

	for _, quote := range quotes {
		if err := quote.Verify(proof.RecordName, proof.Kind, now, q.cfg.ClockSkew); err != nil {
			return err
		}
	}
	return nil
}

// anyPayeeInRange reports whether at least one payee is either among
// the k closest peers to the record address in the local routing view,
// or within the local responsibility ring. The ring tolerance lets
// callers with a slightly stale routing view still pay the right peers.
func (q *Quoter) anyPayeeInRange(recordName addr.Address, payees []addr.Address) bool {
	if len(payees) == 0 {
		return false
	}
	if q.view == nil {
		return true // no routing view to check against; nothing to reject with
	}

	k := q.cfg.CloseGroupSize
	list := q.view.Closest(recordName, k)
	closest := make(map[addr.Address]struct{}, len(list))
	for _, p := range list {
		closest[p.Address] = struct{}{}
	}

	selfList := q.view.Closest(q.self, k)
	var kth addr.Address
	var haveKth bool
	if len(selfList) > 0 {
		kth, haveKth = selfList[len(selfList)-1].Address, true
	}
	radius := addr.ResponsibilityRadius(q.self, kth, haveKth, k, q.view.EstimateNetworkSize())

	for _, payee := range payees {
		if _, ok := closest[payee]; ok {
			return true
		}
		if addr.Dist(q.self, payee).BigInt().Cmp(radius) <= 0 {
			return true
		}
	}
	return false
}
