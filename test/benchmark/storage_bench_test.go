package benchmark

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/castleatlas/atlas/internal/crypto"
	"github.com/castleatlas/atlas/internal/sanitize"
	"github.com/castleatlas/atlas/internal/state"
	"github.com/castleatlas/atlas/test/testutil"
)

// stores opens one of each backend under b.TempDir.
func stores(b *testing.B) map[string]state.Store {
	b.Helper()

	dir := b.TempDir()
	logger := testutil.NewTestLogger()

	jsonStore, err := state.NewJSONStore(filepath.Join(dir, "json"), logger)
	if err != nil {
		b.Fatal(err)
	}

	sqliteStore, err := state.NewSQLiteStore(filepath.Join(dir, "session.db"), logger)
	if err != nil {
		b.Fatal(err)
	}

	result := map[string]state.Store{
		"Memory": state.NewMemoryStore(),
		"JSON":   jsonStore,
		"SQLite": sqliteStore,
	}

	b.Cleanup(func() {
		for _, s := range result {
			s.Close()
		}
	})
	return result
}

func BenchmarkStoreSet(b *testing.B) {
	for name, store := range stores(b) {
		b.Run(name, func(b *testing.B) {
			b.ReportAllocs()

			for i := 0; i < b.N; i++ {
				if err := store.Set(state.TokenKey, fmt.Sprintf("token-%d", i)); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkStoreGet(b *testing.B) {
	for name, store := range stores(b) {
		if err := store.Set(state.UserKey, `{"id":"1","email":"test@example.com","name":"Test User"}`); err != nil {
			b.Fatal(err)
		}

		b.Run(name, func(b *testing.B) {
			b.ReportAllocs()

			for i := 0; i < b.N; i++ {
				if _, err := store.Get(state.UserKey); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkSecureStore(b *testing.B) {
	secure, err := state.NewSecureStore(state.NewMemoryStore(), crypto.Default(), "passphrase")
	if err != nil {
		b.Fatal(err)
	}

	b.Run("Set", func(b *testing.B) {
		b.ReportAllocs()
		for i := 0; i < b.N; i++ {
			if err := secure.Set(state.TokenKey, "token"); err != nil {
				b.Fatal(err)
			}
		}
	})

	b.Run("Get", func(b *testing.B) {
		b.ReportAllocs()
		for i := 0; i < b.N; i++ {
			if _, err := secure.Get(state.TokenKey); err != nil {
				b.Fatal(err)
			}
		}
	})
}

func BenchmarkConcurrentAccess(b *testing.B) {
	for name, store := range stores(b) {
		for i := 0; i < 10; i++ {
			store.Set(fmt.Sprintf("key_%d", i), "value")
		}

		b.Run(name, func(b *testing.B) {
			b.ReportAllocs()

			b.RunParallel(func(pb *testing.PB) {
				i := 0
				for pb.Next() {
					key := fmt.Sprintf("key_%d", i%10)
					if i%4 == 0 {
						store.Set(key, fmt.Sprintf("value-%d", i))
					} else {
						store.Get(key)
					}
					i++
				}
			})
		})
	}
}

func BenchmarkMigrate(b *testing.B) {
	src := state.NewMemoryStore()
	for i := 0; i < 50; i++ {
		src.Set(fmt.Sprintf("key_%d", i), "value")
	}

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		if err := state.Migrate(src, state.NewMemoryStore()); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkSanitize(b *testing.B) {
	inputs := map[string]func(){
		"Filename": func() { sanitize.Filename("../../My Documents/report (final)?.pdf") },
		"HTML":     func() { sanitize.HTML(`<p onclick="x()">Hello <a href="https://example.com">world</a><script>bad()</script></p>`) },
		"Email":    func() { sanitize.Email("Test.User+tag@Example.com") },
		"Query":    func() { sanitize.SearchQuery("castle <b>architecture</b> & heraldry") },
	}

	for name, fn := range inputs {
		b.Run(name, func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				fn()
			}
		})
	}
}
