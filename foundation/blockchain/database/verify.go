package database

import (
	"sync"

	"github.com/panjf2000/ants/v2"
)

// Verifier checks the signatures of a block's transactions in parallel on a
// bounded pool of goroutines.
type Verifier struct {
	pool *ants.Pool
}

// NewVerifier constructs a verifier backed by a pool of the specified size.
func NewVerifier(size int) (*Verifier, error) {
	pool, err := ants.NewPool(size, ants.WithNonblocking(false))
	if err != nil {
		return nil, err
	}

	return &Verifier{pool: pool}, nil
}

// VerifyAll validates every transaction and returns the error of the first
// transaction in block order that failed. A nil Verifier validates the
// transactions on the calling goroutine.
func (v *Verifier) VerifyAll(trans []BlockTx) error {
	errs := make([]error, len(trans))

	if v == nil {
		for i, tx := range trans {
			errs[i] = tx.Validate()
		}
		return firstError(errs)
	}

	var wg sync.WaitGroup
	for i := range trans {
		i := i
		wg.Add(1)

		task := func() {
			defer wg.Done()
			errs[i] = trans[i].Validate()
		}

		if err := v.pool.Submit(task); err != nil {
			task()
		}
	}
	wg.Wait()

	return firstError(errs)
}

// Release closes the pool.
func (v *Verifier) Release() {
	if v != nil {
		v.pool.Release()
	}
}

func firstError(errs []error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
