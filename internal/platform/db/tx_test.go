package db

import (
	"context"
	"testing"
)

func TestTxFromContextEmpty(t *testing.T) {
	if tx := TxFromContext(context.Background()); tx != nil {
		t.Errorf("expected nil tx outside WithTx, got %v", tx)
	}
}
