package order

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/exchangev2/pkg/crypto"
	"github.com/uhyunpark/exchangev2/pkg/errs"
)

// Verifier authorises orders for a submitting caller
type Verifier struct {
	codec *Codec
}

// NewVerifier creates a verifier over codec's domain
func NewVerifier(codec *Codec) *Verifier {
	return &Verifier{codec: codec}
}

// Verify authorises o for caller. A maker submitting its own order needs no
// signature; zero-salt orders may only be submitted by their maker.
func (v *Verifier) Verify(o Order, signature []byte, caller common.Address) error {
	if o.IsOnChain() {
		if caller != o.Maker {
			return errs.ErrMakerNotSender
		}
		return nil
	}
	if caller == o.Maker {
		return nil
	}

	digest, err := v.codec.Digest(o)
	if err != nil {
		return errs.ErrInvalidSignature.Wrap(err)
	}
	return checkSigner(o.Maker, digest, signature)
}

// VerifyBatch is Verify for batch orders
func (v *Verifier) VerifyBatch(b OrderBatch, signature []byte, caller common.Address) error {
	if b.IsOnChain() {
		if caller != b.Maker {
			return errs.ErrMakerNotSender
		}
		return nil
	}
	if caller == b.Maker {
		return nil
	}

	digest, err := v.codec.DigestBatch(b)
	if err != nil {
		return errs.ErrInvalidSignature.Wrap(err)
	}
	return checkSigner(b.Maker, digest, signature)
}

func checkSigner(maker common.Address, digest common.Hash, signature []byte) error {
	recovered, err := crypto.RecoverAddress(digest.Bytes(), signature)
	if err != nil {
		return errs.ErrInvalidSignature.Wrap(err)
	}
	if recovered != maker {
		return errs.ErrInvalidSignature
	}
	return nil
}
