package memory

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/cadm/internal/domain"
)

func seedOrder(t *testing.T, repo domain.OrderRepository, id string, createdAt time.Time, mutate func(*domain.Order)) domain.Order {
	t.Helper()
	order := domain.Order{
		ID:           id,
		CustomerName: "Customer " + id,
		Phone:        "+880170000000",
		Address:      "12 Market Road",
		Status:       domain.OrderStatusPending,
		Cart: []domain.CartLine{
			{ProductID: "p1", ProductName: "Sneaker", Size: "42", Quantity: 1, PriceMinor: 2500},
		},
		TotalMinor:    2560,
		DeliveryMinor: 60,
		CreatedAt:     createdAt,
		UpdatedAt:     createdAt,
	}
	if mutate != nil {
		mutate(&order)
	}
	if err := repo.Create(order); err != nil {
		t.Fatalf("seed %s: %v", id, err)
	}
	return order
}

func TestOrderRepositoryCRUD(t *testing.T) {
	repo := NewOrderRepository()
	now := time.Now().UTC()

	created := seedOrder(t, repo, "o1", now, nil)

	got, err := repo.Get("o1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.CustomerName != created.CustomerName {
		t.Fatalf("unexpected order: %+v", got)
	}

	if err := repo.Create(created); !errors.Is(err, domain.ErrVersionConflict) {
		t.Fatalf("duplicate create: expected conflict, got %v", err)
	}

	got.Status = domain.OrderStatusConfirm
	if err := repo.Save(got); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	updated, _ := repo.Get("o1")
	if updated.Status != domain.OrderStatusConfirm {
		t.Fatalf("status not saved, got %s", updated.Status)
	}
	if updated.Version != got.Version+1 {
		t.Fatalf("version not bumped: %d", updated.Version)
	}

	// Save со старой версией отклоняется.
	got.Status = domain.OrderStatusPack
	if err := repo.Save(got); !errors.Is(err, domain.ErrVersionConflict) {
		t.Fatalf("expected version conflict, got %v", err)
	}

	if err := repo.Delete("o1"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, err := repo.Get("o1"); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := repo.Delete("o1"); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("double delete: expected not found, got %v", err)
	}
}

func TestOrderRepositoryListNewestFirst(t *testing.T) {
	repo := NewOrderRepository()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		seedOrder(t, repo, fmt.Sprintf("o%d", i), base.Add(time.Duration(i)*time.Hour), nil)
	}

	page, err := repo.List(domain.Query{Limit: 3})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(page.Items) != 3 || !page.HasMore {
		t.Fatalf("unexpected page: %d items, hasMore=%v", len(page.Items), page.HasMore)
	}
	if page.Items[0].ID != "o4" || page.Items[2].ID != "o2" {
		t.Fatalf("unexpected order: %s..%s", page.Items[0].ID, page.Items[2].ID)
	}
}

func TestOrderRepositoryListAfterCursor(t *testing.T) {
	repo := NewOrderRepository()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		seedOrder(t, repo, fmt.Sprintf("o%d", i), base.Add(time.Duration(i)*time.Hour), nil)
	}

	first, err := repo.List(domain.Query{Limit: 2})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	second, err := repo.List(domain.Query{After: first.Items[len(first.Items)-1].ID, Limit: 2})
	if err != nil {
		t.Fatalf("list after cursor failed: %v", err)
	}

	if second.Items[0].ID != "o2" || second.Items[1].ID != "o1" {
		t.Fatalf("unexpected second page: %s, %s", second.Items[0].ID, second.Items[1].ID)
	}
	if !second.HasMore {
		t.Fatal("one more page expected")
	}

	third, err := repo.List(domain.Query{After: second.Items[1].ID, Limit: 2})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(third.Items) != 1 || third.HasMore {
		t.Fatalf("unexpected tail page: %d items, hasMore=%v", len(third.Items), third.HasMore)
	}
}

func TestOrderRepositoryListUnknownCursorEndsSet(t *testing.T) {
	repo := NewOrderRepository()
	seedOrder(t, repo, "o1", time.Now().UTC(), nil)

	page, err := repo.List(domain.Query{After: "deleted-meanwhile", Limit: 2})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(page.Items) != 0 || page.HasMore {
		t.Fatalf("unknown cursor must end the set, got %d items", len(page.Items))
	}
}

func TestOrderRepositoryListSearch(t *testing.T) {
	repo := NewOrderRepository()
	now := time.Now().UTC()
	seedOrder(t, repo, "o1", now, func(o *domain.Order) {
		o.CustomerName = "Rahim Uddin"
	})
	seedOrder(t, repo, "o2", now.Add(time.Minute), func(o *domain.Order) {
		o.CustomerName = "Karim Mia"
		o.Cart[0].ProductName = "Leather Boot"
	})

	page, err := repo.List(domain.Query{Filter: domain.Filter{Search: "rahim"}, Limit: 10})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(page.Items) != 1 || page.Items[0].ID != "o1" {
		t.Fatalf("search by customer failed: %+v", page.Items)
	}

	// Поиск и по названиям позиций корзины.
	page, err = repo.List(domain.Query{Filter: domain.Filter{Search: "boot"}, Limit: 10})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(page.Items) != 1 || page.Items[0].ID != "o2" {
		t.Fatalf("search by cart line failed: %+v", page.Items)
	}
}

func TestOrderRepositoryListDateRange(t *testing.T) {
	repo := NewOrderRepository()
	seedOrder(t, repo, "old", time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC), nil)
	seedOrder(t, repo, "mid", time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC), nil)
	seedOrder(t, repo, "new", time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC), nil)

	page, err := repo.List(domain.Query{
		Filter: domain.Filter{
			DateFrom: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
			DateTo:   time.Date(2024, 2, 28, 0, 0, 0, 0, time.UTC),
		},
		Limit: 10,
	})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(page.Items) != 1 || page.Items[0].ID != "mid" {
		t.Fatalf("date range filter failed: %+v", page.Items)
	}
}
