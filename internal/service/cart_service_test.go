package service

import (
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"daily-grocer-go/internal/model"
	"daily-grocer-go/internal/repository"
)

func openCartTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	// 每个测试一个命名内存库，连接池内共享且测试间互不串库
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("打开测试数据库失败: %v", err)
	}
	err = db.AutoMigrate(
		&model.Category{}, &model.Product{}, &model.CartItem{},
		&model.Order{}, &model.OrderItem{},
	)
	if err != nil {
		t.Fatalf("迁移测试表失败: %v", err)
	}
	return db
}

func seedProduct(t *testing.T, db *gorm.DB, p model.Product) model.Product {
	t.Helper()
	cat := model.Category{Name: "Pantry-" + p.SKU, IsActive: true}
	if err := db.Create(&cat).Error; err != nil {
		t.Fatalf("seed category: %v", err)
	}
	p.CategoryID = cat.ID
	if err := db.Create(&p).Error; err != nil {
		t.Fatalf("seed product: %v", err)
	}
	// default:true 的列在零值时由数据库默认值接管，false 需要显式落列
	if !p.IsActive {
		if err := db.Model(&model.Product{}).Where("id = ?", p.ID).Update("is_active", false).Error; err != nil {
			t.Fatalf("seed inactive flag: %v", err)
		}
	}
	return p
}

func newTestCartService(db *gorm.DB) CartService {
	return NewCartService(repository.NewCartRepository(db), repository.NewProductRepository(db))
}

func TestAddItemAccumulatesQuantity(t *testing.T) {
	db := openCartTestDB(t)
	p := seedProduct(t, db, model.Product{Name: "Olive Oil", SKU: "OIL-1", Price: 8.99, StockQuantity: 20, MaxOrderQuantity: 10, IsActive: true})
	svc := newTestCartService(db)

	if _, err := svc.AddItem(1, p.ID, 2); err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	summary, err := svc.AddItem(1, p.ID, 3)
	if err != nil {
		t.Fatalf("AddItem again: %v", err)
	}
	if summary.ItemCount != 1 || summary.TotalItems != 5 {
		t.Fatalf("expected one line with quantity 5, got %+v", summary)
	}
	if math.Abs(summary.Subtotal-8.99*5) > 1e-9 {
		t.Fatalf("unexpected subtotal %v", summary.Subtotal)
	}
}

func TestAddItemEnforcesLimits(t *testing.T) {
	db := openCartTestDB(t)
	scarce := seedProduct(t, db, model.Product{Name: "Saffron", SKU: "SAF-1", Price: 12.0, StockQuantity: 2, MaxOrderQuantity: 10, IsActive: true})
	limited := seedProduct(t, db, model.Product{Name: "Eggs", SKU: "EGG-1", Price: 4.5, StockQuantity: 100, MaxOrderQuantity: 3, IsActive: true})
	svc := newTestCartService(db)

	if _, err := svc.AddItem(1, scarce.ID, 3); !errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
	if _, err := svc.AddItem(1, limited.ID, 4); !errors.Is(err, ErrExceedsMaxOrder) {
		t.Fatalf("expected ErrExceedsMaxOrder, got %v", err)
	}

	// 累加到超限同样被拒
	if _, err := svc.AddItem(1, limited.ID, 2); err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	if _, err := svc.AddItem(1, limited.ID, 2); !errors.Is(err, ErrExceedsMaxOrder) {
		t.Fatalf("accumulated quantity over the limit should be rejected, got %v", err)
	}
}

func TestAddItemRejectsInactiveProduct(t *testing.T) {
	db := openCartTestDB(t)
	p := seedProduct(t, db, model.Product{Name: "Discontinued Tea", SKU: "TEA-1", Price: 3.0, StockQuantity: 5, MaxOrderQuantity: 10, IsActive: false})
	svc := newTestCartService(db)

	if _, err := svc.AddItem(1, p.ID, 1); !errors.Is(err, ErrProductNotFound) {
		t.Fatalf("inactive product should look like a missing one, got %v", err)
	}
}

func TestUpdateItemZeroQuantityRemoves(t *testing.T) {
	db := openCartTestDB(t)
	p := seedProduct(t, db, model.Product{Name: "Rice", SKU: "RICE-1", Price: 6.0, StockQuantity: 50, MaxOrderQuantity: 10, IsActive: true})
	svc := newTestCartService(db)

	summary, err := svc.AddItem(1, p.ID, 2)
	if err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	itemID := summary.Items[0].ID

	summary, err = svc.UpdateItem(1, itemID, 0)
	if err != nil {
		t.Fatalf("UpdateItem: %v", err)
	}
	if summary.ItemCount != 0 {
		t.Fatalf("item should be removed, got %+v", summary)
	}
}

func TestUpdateItemUnknownID(t *testing.T) {
	db := openCartTestDB(t)
	svc := newTestCartService(db)

	if _, err := svc.UpdateItem(1, 999, 2); !errors.Is(err, ErrCartItemNotFound) {
		t.Fatalf("expected ErrCartItemNotFound, got %v", err)
	}
	if _, err := svc.RemoveItem(1, 999); !errors.Is(err, ErrCartItemNotFound) {
		t.Fatalf("expected ErrCartItemNotFound, got %v", err)
	}
}

func TestCheckoutCreatesOrderAndClearsCart(t *testing.T) {
	db := openCartTestDB(t)
	p := seedProduct(t, db, model.Product{Name: "Pasta", SKU: "PAS-1", Price: 2.5, StockQuantity: 10, MaxOrderQuantity: 10, IsActive: true})
	cartSvc := newTestCartService(db)
	orderSvc := NewOrderService(repository.NewOrderRepository(db), repository.NewCartRepository(db))

	if _, err := cartSvc.AddItem(1, p.ID, 4); err != nil {
		t.Fatalf("AddItem: %v", err)
	}

	order, err := orderSvc.Checkout(1, "12 Main St", "card", "")
	if err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	if order.TotalAmount != 10.0 {
		t.Fatalf("unexpected total %v", order.TotalAmount)
	}
	// 未达免运费门槛
	if order.DeliveryFee != 4.99 || math.Abs(order.FinalAmount-14.99) > 1e-9 {
		t.Fatalf("unexpected fee/final: %v / %v", order.DeliveryFee, order.FinalAmount)
	}
	if len(order.Items) != 1 || order.Items[0].ProductName != "Pasta" || order.Items[0].UnitPrice != 2.5 {
		t.Fatalf("order item should snapshot name and price: %+v", order.Items)
	}

	// 库存已扣，购物车已清空
	var fresh model.Product
	db.First(&fresh, p.ID)
	if fresh.StockQuantity != 6 {
		t.Fatalf("stock should drop to 6, got %d", fresh.StockQuantity)
	}
	cart, _ := cartSvc.GetCart(1)
	if cart.ItemCount != 0 {
		t.Fatalf("cart should be empty after checkout, got %+v", cart)
	}
}

func TestCheckoutEmptyCartAndInsufficientStock(t *testing.T) {
	db := openCartTestDB(t)
	p := seedProduct(t, db, model.Product{Name: "Milk", SKU: "MLK-1", Price: 1.5, StockQuantity: 5, MaxOrderQuantity: 10, IsActive: true})
	cartSvc := newTestCartService(db)
	orderSvc := NewOrderService(repository.NewOrderRepository(db), repository.NewCartRepository(db))

	if _, err := orderSvc.Checkout(1, "addr", "card", ""); !errors.Is(err, ErrEmptyCart) {
		t.Fatalf("expected ErrEmptyCart, got %v", err)
	}

	if _, err := cartSvc.AddItem(1, p.ID, 5); err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	// 下单前库存被其他渠道扣走
	db.Model(&model.Product{}).Where("id = ?", p.ID).Update("stock_quantity", 3)

	if _, err := orderSvc.Checkout(1, "addr", "card", ""); !errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
	// 整单事务回滚：库存不变，购物车保留
	var fresh model.Product
	db.First(&fresh, p.ID)
	if fresh.StockQuantity != 3 {
		t.Fatalf("stock must be untouched after a failed checkout, got %d", fresh.StockQuantity)
	}
	cart, _ := cartSvc.GetCart(1)
	if cart.ItemCount != 1 {
		t.Fatalf("cart must survive a failed checkout, got %+v", cart)
	}
}

func TestCancelOnlyEarlyStatuses(t *testing.T) {
	db := openCartTestDB(t)
	p := seedProduct(t, db, model.Product{Name: "Bread", SKU: "BRD-1", Price: 3.0, StockQuantity: 10, MaxOrderQuantity: 10, IsActive: true})
	cartSvc := newTestCartService(db)
	orderSvc := NewOrderService(repository.NewOrderRepository(db), repository.NewCartRepository(db))

	if _, err := cartSvc.AddItem(1, p.ID, 1); err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	order, err := orderSvc.Checkout(1, "addr", "card", "")
	if err != nil {
		t.Fatalf("Checkout: %v", err)
	}

	if _, err := orderSvc.Cancel(2, order.ID); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("another user must not see the order, got %v", err)
	}

	cancelled, err := orderSvc.Cancel(1, order.ID)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if cancelled.Status != model.OrderStatusCancelled {
		t.Fatalf("expected cancelled status, got %q", cancelled.Status)
	}

	if _, err := orderSvc.Cancel(1, order.ID); !errors.Is(err, ErrOrderNotCancelable) {
		t.Fatalf("a cancelled order cannot be cancelled again, got %v", err)
	}
}
