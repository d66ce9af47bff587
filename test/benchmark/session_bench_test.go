package benchmark

import (
	"context"
	"testing"
	"time"

	"github.com/castleatlas/atlas/internal/mockapi"
	"github.com/castleatlas/atlas/internal/progress"
	"github.com/castleatlas/atlas/internal/services/auth"
	"github.com/castleatlas/atlas/internal/state"
	"github.com/castleatlas/atlas/test/testutil"
)

func BenchmarkLogin(b *testing.B) {
	api, err := mockapi.NewServer()
	if err != nil {
		b.Fatal(err)
	}
	defer api.Close()

	service := auth.NewService(api, state.NewMemoryStore(), testutil.NewTestLogger())
	ctx := context.Background()

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		if _, err := service.Login(ctx, mockapi.SeedEmail, mockapi.SeedPassword, ""); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkProgressRefresh(b *testing.B) {
	api, err := mockapi.NewServer()
	if err != nil {
		b.Fatal(err)
	}
	defer api.Close()

	ctx := context.Background()
	authService := auth.NewService(api, nil, testutil.NewTestLogger())
	if _, err := authService.Login(ctx, mockapi.SeedEmail, mockapi.SeedPassword, ""); err != nil {
		b.Fatal(err)
	}

	manager := progress.NewManager(progress.NewClient(api, testutil.NewTestLogger()), authService, testutil.NewTestLogger())

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		if err := manager.Refresh(ctx); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkProgressDispatch(b *testing.B) {
	store := progress.NewStore(time.Now)
	skills := []string{"history", "architecture", "heraldry", "siegecraft"}

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		store.Dispatch(progress.UpdateSkillProgress(skills[i%len(skills)], float64(i%101)))
	}
}

func BenchmarkProgressSubscribers(b *testing.B) {
	store := progress.NewStore(time.Now)
	for i := 0; i < 8; i++ {
		store.Subscribe(func(progress.State) {})
	}

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		store.Dispatch(progress.UpdateProgress(float64(i % 101)))
	}
}
