package crypto

import "context"

type result struct {
	value string
	err   error
}

// EncryptContext runs Encrypt on its own goroutine. If ctx finishes first,
// ctx.Err() is returned and the in-flight result is discarded.
func (u *Utility) EncryptContext(ctx context.Context, plaintext, password string) (string, error) {
	return race(ctx, func() (string, error) {
		return u.Encrypt(plaintext, password)
	})
}

// DecryptContext runs Decrypt on its own goroutine. If ctx finishes first,
// ctx.Err() is returned and the in-flight result is discarded.
func (u *Utility) DecryptContext(ctx context.Context, envelope, password string) (string, error) {
	return race(ctx, func() (string, error) {
		return u.Decrypt(envelope, password)
	})
}

func race(ctx context.Context, fn func() (string, error)) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	// Buffered so the worker never blocks after the caller has gone.
	done := make(chan result, 1)
	go func() {
		v, err := fn()
		done <- result{value: v, err: err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-done:
		return r.value, r.err
	}
}
