package record

import "github.com/antstorage/ant/addr"

// PaymentProofTag names the settlement scheme behind an opaque
// PaymentProof. A tagged variant rather than an interface; the tag is
// carried on the wire, and payment validation does not switch on it.
type PaymentProofTag uint8

const (
	PaymentEvm PaymentProofTag = iota + 1
	PaymentNative
)

// PaymentProof is opaque to the core: it semantically asserts that each
// payee in a set of quotes has been paid at least the quoted amount for a
// given record name and kind, within price-validity.
//
// The core never inspects Opaque or Tag; it reads Payees/RecordName/Kind
// to run the payee-range check.
type PaymentProof struct {
	Tag        PaymentProofTag
	RecordName addr.Address
	Kind       Kind
	Payees     []addr.Address
	Opaque     []byte
}

// ListsPayee reports whether self is among the proof's payees, the first
// payment-validation check.
func (p PaymentProof) ListsPayee(self addr.Address) bool {
	for _, payee := range p.Payees {
		if payee == self {
			return true
		}
	}
	return false
}
