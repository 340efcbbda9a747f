package processor

import (
	"context"
	"errors"
	"lc_escrow/internal/domain"
	"lc_escrow/internal/repository/memory"
	"lc_escrow/internal/service"
	"testing"
	"time"
)

func TestRoleRegistry_BootstrapAdmin(t *testing.T) {
	ctx := context.Background()
	exec := NewExecutor(nil)

	registry, err := NewRoleRegistry(ctx, memory.NewRoleRepository(), exec, admin, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !registry.HasRole(ctx, admin, domain.RoleAdmin) {
		t.Errorf("expected bootstrap account to hold ADMIN")
	}
	if registry.HasRole(ctx, admin, domain.RoleBank) {
		t.Errorf("expected bootstrap account to hold only ADMIN")
	}
	if _, err := NewRoleRegistry(ctx, memory.NewRoleRepository(), exec, "not-an-address", nil); err == nil {
		t.Errorf("expected error for malformed admin account")
	}
}

func TestRoleRegistry_GrantRequiresAdmin(t *testing.T) {
	env := setup(t)

	err := env.roles.GrantRole(context.Background(), bank, outsider, domain.RoleBank)

	if !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if env.roles.HasRole(context.Background(), outsider, domain.RoleBank) {
		t.Errorf("expected no role granted")
	}
}

func TestRoleRegistry_GrantIsIdempotent(t *testing.T) {
	ctx := context.Background()
	env := setup(t)
	before := len(env.events.Events())

	if err := env.roles.GrantRole(ctx, admin, bank, domain.RoleBank); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if after := len(env.events.Events()); after != before {
		t.Errorf("expected no event for a repeated grant, got %d", after-before)
	}

	if err := env.roles.GrantRole(ctx, admin, bank, domain.RoleImporter); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	roles := env.roles.Roles(ctx, bank)
	if !roles.Has(domain.RoleBank) || !roles.Has(domain.RoleImporter) {
		t.Errorf("expected BANK and IMPORTER, got %v", roles.Names())
	}
}

func TestRoleRegistry_RejectsBadInput(t *testing.T) {
	ctx := context.Background()
	env := setup(t)

	if err := env.roles.GrantRole(ctx, admin, outsider, domain.RoleNone); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for NONE, got %v", err)
	}
	if err := env.roles.GrantRole(ctx, admin, "0x1234", domain.RoleBank); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for short account, got %v", err)
	}
}

func TestRoleRegistry_AccountsCompareCaseInsensitively(t *testing.T) {
	env := setup(t)

	if !env.roles.HasRole(context.Background(), "0x70997970c51812dc3a010c7d01b50e0d17dc79c8", domain.RoleBank) {
		t.Errorf("expected lower-case address to match granted role")
	}
}

func TestProductLedger_Lifecycle(t *testing.T) {
	ctx := context.Background()
	env := setup(t)

	first, err := env.products.CreateProduct(ctx, importer, "  Coffee Beans  ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, _ := env.products.CreateProduct(ctx, importer, "Cocoa")
	if first.ID != 0 || second.ID != 1 {
		t.Fatalf("expected sequential ids 0 and 1, got %d and %d", first.ID, second.ID)
	}
	if first.Name != "Coffee Beans" || first.Status != domain.ProductCreated {
		t.Errorf("unexpected product: %+v", first)
	}

	if delivered, _ := env.products.IsDelivered(ctx, first.ID); delivered {
		t.Errorf("expected new product not delivered")
	}
	if err := env.products.MarkDelivered(ctx, logistics, first.ID); err != nil {
		t.Fatalf("mark delivered: %v", err)
	}
	if err := env.products.ConfirmReceived(ctx, importer, first.ID); err != nil {
		t.Fatalf("confirm received: %v", err)
	}

	status, _ := env.products.GetStatus(ctx, first.ID)
	if status != domain.ProductReceived {
		t.Errorf("expected Received, got %s", status)
	}
	if delivered, _ := env.products.IsDelivered(ctx, first.ID); !delivered {
		t.Errorf("expected received product to count as delivered")
	}
	if count, _ := env.products.ProductCount(ctx); count != 2 {
		t.Errorf("expected 2 products, got %d", count)
	}
}

func TestProductLedger_Authorization(t *testing.T) {
	ctx := context.Background()
	env := setup(t)
	otherImporter := "0x14dC79964da2C08b23698B3D3cc7Ca32193d9955"
	_ = env.roles.GrantRole(ctx, admin, otherImporter, domain.RoleImporter)

	if _, err := env.products.CreateProduct(ctx, exporter, "Tea"); !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized for exporter creating product, got %v", err)
	}
	product, _ := env.products.CreateProduct(ctx, importer, "Tea")
	if err := env.products.MarkDelivered(ctx, bank, product.ID); !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized for bank marking delivery, got %v", err)
	}
	_ = env.products.MarkDelivered(ctx, logistics, product.ID)
	if err := env.products.ConfirmReceived(ctx, otherImporter, product.ID); !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized for foreign importer, got %v", err)
	}
	if status, _ := env.products.GetStatus(ctx, product.ID); status != domain.ProductDelivered {
		t.Errorf("expected Delivered, got %s", status)
	}
}

func TestProductLedger_NoSkippedOrRepeatedSteps(t *testing.T) {
	ctx := context.Background()
	env := setup(t)
	product, _ := env.products.CreateProduct(ctx, importer, "Tea")

	if err := env.products.ConfirmReceived(ctx, importer, product.ID); !errors.Is(err, domain.ErrInvalidState) {
		t.Errorf("expected ErrInvalidState skipping delivery, got %v", err)
	}
	_ = env.products.MarkDelivered(ctx, logistics, product.ID)
	if err := env.products.MarkDelivered(ctx, logistics, product.ID); !errors.Is(err, domain.ErrInvalidState) {
		t.Errorf("expected ErrInvalidState on repeated delivery, got %v", err)
	}
}

func TestProductLedger_RejectsBadNames(t *testing.T) {
	env := setup(t)

	if _, err := env.products.CreateProduct(context.Background(), importer, "   "); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for blank name, got %v", err)
	}
	if count, _ := env.products.ProductCount(context.Background()); count != 0 {
		t.Errorf("expected no product stored, got %d", count)
	}
}

func TestProductLedger_UnknownProduct(t *testing.T) {
	ctx := context.Background()
	env := setup(t)

	if _, err := env.products.GetStatus(ctx, 7); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound from GetStatus, got %v", err)
	}
	if _, err := env.products.IsReceived(ctx, 7); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound from IsReceived, got %v", err)
	}
	if err := env.products.MarkDelivered(ctx, logistics, 7); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound from MarkDelivered, got %v", err)
	}
}

func TestExecutor_CancelledContext(t *testing.T) {
	env := setup(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := env.products.CreateProduct(ctx, importer, "Tea")

	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

type blockedSink struct {
	release chan struct{}
}

func (s *blockedSink) Name() string { return "blocked" }

func (s *blockedSink) Deliver(ctx context.Context, event domain.Event) error {
	select {
	case <-s.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func TestExecutor_StalledNotificationsDoNotBlockCommands(t *testing.T) {
	sink := &blockedSink{release: make(chan struct{})}
	notifier := service.NewNotificationService([]service.Sink{sink}, 1, nil, nil,
		service.WithQueueSize(4), service.WithDeliveryTimeout(time.Minute))
	defer func() {
		close(sink.release)
		_ = notifier.Shutdown(context.Background())
	}()

	exec := NewExecutor(nil, WithPublisher(notifier))
	roles, err := NewRoleRegistry(context.Background(), memory.NewRoleRepository(), exec, admin, nil)
	if err != nil {
		t.Fatalf("role registry: %v", err)
	}
	if err := roles.GrantRole(context.Background(), admin, importer, domain.RoleImporter); err != nil {
		t.Fatalf("grant importer: %v", err)
	}
	products := NewProductLedger(memory.NewProductRepository(), roles, exec, nil)

	for i := 0; i < 50; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		_, err := products.CreateProduct(ctx, importer, "Tea")
		cancel()
		if err != nil {
			t.Fatalf("command %d failed while notifications were stalled: %v", i, err)
		}
	}
	if count, _ := products.ProductCount(context.Background()); count != 50 {
		t.Errorf("expected 50 products, got %d", count)
	}
}

func TestExecutor_ViewRejectsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false

	err := NewExecutor(nil).View(ctx, func() error {
		called = true
		return nil
	})

	if !errors.Is(err, context.Canceled) || called {
		t.Errorf("expected context.Canceled without running fn, got %v (called=%v)", err, called)
	}
}
