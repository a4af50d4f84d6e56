package wallet

import (
	"errors"
	"math/big"
	"testing"
)

func TestIsSafeSendError(t *testing.T) {
	cases := []struct {
		err  error
		safe bool
	}{
		{errors.New("insufficient funds for gas * price + value"), true},
		{errors.New("intrinsic gas too low: gas limit reached"), true},
		{errors.New("execution reverted: ERC20: transfer amount exceeds balance"), true},
		{errors.New("nonce too low"), true},
		{errors.New("replacement transaction underpriced"), true},
		{errors.New("connection refused"), false},
		{errors.New("context deadline exceeded"), false},
		{nil, false},
	}
	for _, c := range cases {
		if got := IsSafeSendError(c.err); got != c.safe {
			t.Fatalf("IsSafeSendError(%v) = %v, want %v", c.err, got, c.safe)
		}
	}
}

func TestBoostByTenPercent(t *testing.T) {
	boosted := boostByTenPercent(big.NewInt(1000))
	if boosted.Int64() != 1100 {
		t.Fatalf("expected 1100, got %s", boosted.String())
	}
}
