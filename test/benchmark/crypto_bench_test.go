package benchmark

import (
	"context"
	"crypto/rand"
	"fmt"
	"strings"
	"testing"

	"github.com/castleatlas/atlas/internal/crypto"
)

func BenchmarkKeyDerivationIterations(b *testing.B) {
	for _, iterations := range []int{100000, 200000, 600000} {
		b.Run(fmt.Sprintf("%dk", iterations/1000), func(b *testing.B) {
			util, err := crypto.New(crypto.WithIterations(iterations))
			if err != nil {
				b.Fatal(err)
			}
			salt := make([]byte, crypto.SaltSize)
			rand.Read(salt)

			b.ResetTimer()
			b.ReportAllocs()

			for i := 0; i < b.N; i++ {
				if _, err := util.DeriveKey("password123", salt); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkPasswordNormalization(b *testing.B) {
	plain := crypto.Default()
	normalized, err := crypto.New(crypto.WithPasswordNormalization())
	if err != nil {
		b.Fatal(err)
	}

	salt := make([]byte, crypto.SaltSize)
	rand.Read(salt)
	password := "ｐａｓｓｗｏｒｄ①②③"

	b.Run("Off", func(b *testing.B) {
		b.ReportAllocs()
		for i := 0; i < b.N; i++ {
			if _, err := plain.DeriveKey(password, salt); err != nil {
				b.Fatal(err)
			}
		}
	})

	b.Run("NFKC", func(b *testing.B) {
		b.ReportAllocs()
		for i := 0; i < b.N; i++ {
			if _, err := normalized.DeriveKey(password, salt); err != nil {
				b.Fatal(err)
			}
		}
	})
}

func BenchmarkEnvelopeSizes(b *testing.B) {
	util := crypto.Default()

	sizes := []int{
		64,      // token
		1024,    // 1KB
		102400,  // 100KB
		1048576, // 1MB
	}

	for _, size := range sizes {
		plaintext := strings.Repeat("a", size)

		b.Run(fmt.Sprintf("Encrypt_%dB", size), func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(size))

			for i := 0; i < b.N; i++ {
				if _, err := util.Encrypt(plaintext, "password"); err != nil {
					b.Fatal(err)
				}
			}
		})

		envelope, err := util.Encrypt(plaintext, "password")
		if err != nil {
			b.Fatal(err)
		}

		b.Run(fmt.Sprintf("Decrypt_%dB", size), func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(size))

			for i := 0; i < b.N; i++ {
				if _, err := util.Decrypt(envelope, "password"); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkConcurrentDecryption(b *testing.B) {
	util := crypto.Default()
	envelope, err := util.Encrypt("session token", "password")
	if err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	b.ReportAllocs()

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if _, err := util.DecryptContext(context.Background(), envelope, "password"); err != nil {
				b.Fatal(err)
			}
		}
	})
}

func BenchmarkHashSizes(b *testing.B) {
	for _, size := range []int{32, 1024, 1048576} {
		data := strings.Repeat("x", size)

		b.Run(fmt.Sprintf("%dB", size), func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(size))

			for i := 0; i < b.N; i++ {
				crypto.Hash(data)
			}
		})
	}
}

func BenchmarkGenerateToken(b *testing.B) {
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, err := crypto.GenerateToken(crypto.DefaultTokenLength); err != nil {
			b.Fatal(err)
		}
	}
}
