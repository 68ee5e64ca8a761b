// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"errors"
	"io"
	"time"

	"gorm.io/gorm"

	"daily-grocer-go/internal/config"
	"daily-grocer-go/internal/model"
	"daily-grocer-go/internal/repository"
	"daily-grocer-go/pkg/es"
	"daily-grocer-go/pkg/log"
	"daily-grocer-go/pkg/storage"
)

// ErrProductNotFound 表示请求的商品不存在。
var ErrProductNotFound = errors.New("product not found")

// ProductService 接口定义了商品的业务操作。
type ProductService interface {
	List(filter repository.ProductFilter) ([]model.Product, int64, error)
	Get(id uint) (*model.Product, error)
	Search(ctx context.Context, query string, limit int) ([]model.Product, error)
	Create(ctx context.Context, product *model.Product) error
	Update(ctx context.Context, id uint, updates map[string]interface{}) (*model.Product, error)
	Delete(ctx context.Context, id uint) error
	UploadImage(ctx context.Context, fileName string, reader io.Reader, size int64, contentType string) (string, error)
	LowStock() ([]model.Product, error)
}

type productService struct {
	productRepo repository.ProductRepository
}

// NewProductService 创建一个新的 ProductService 实例。
func NewProductService(productRepo repository.ProductRepository) ProductService {
	return &productService{productRepo: productRepo}
}

func (s *productService) List(filter repository.ProductFilter) ([]model.Product, int64, error) {
	if filter.Limit <= 0 || filter.Limit > 100 {
		filter.Limit = 20
	}
	return s.productRepo.FindWithFilter(filter)
}

func (s *productService) Get(id uint) (*model.Product, error) {
	product, err := s.productRepo.FindByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProductNotFound
		}
		return nil, err
	}
	return product, nil
}

// Search 优先走 Elasticsearch 全文检索，检索失败时回退到数据库 LIKE 查询。
func (s *productService) Search(ctx context.Context, query string, limit int) ([]model.Product, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	if es.ESClient != nil {
		ids, err := es.SearchProducts(ctx, config.Conf.Elasticsearch.IndexName, query, limit)
		if err == nil {
			return s.productRepo.FindByIDs(ids)
		}
		log.Warnf("Elasticsearch 检索失败，回退到数据库检索: %v", err)
	}

	products, _, err := s.productRepo.FindWithFilter(repository.ProductFilter{
		Search:     query,
		OnlyActive: true,
		Limit:      limit,
	})
	return products, err
}

// Create 创建商品并同步写入搜索索引。索引失败只记日志，不影响主流程。
func (s *productService) Create(ctx context.Context, product *model.Product) error {
	if err := s.productRepo.Create(product); err != nil {
		return err
	}
	s.indexProduct(ctx, product)
	return nil
}

// Update 按字段更新商品并同步搜索索引。
func (s *productService) Update(ctx context.Context, id uint, updates map[string]interface{}) (*model.Product, error) {
	product, err := s.Get(id)
	if err != nil {
		return nil, err
	}

	applyProductUpdates(product, updates)
	if err := s.productRepo.Update(product); err != nil {
		return nil, err
	}
	s.indexProduct(ctx, product)
	return product, nil
}

// Delete 下架并删除商品，同时移除搜索索引中的文档。
func (s *productService) Delete(ctx context.Context, id uint) error {
	if _, err := s.Get(id); err != nil {
		return err
	}
	if err := s.productRepo.Delete(id); err != nil {
		return err
	}
	if es.ESClient != nil {
		if err := es.DeleteProduct(ctx, config.Conf.Elasticsearch.IndexName, id); err != nil {
			log.Warnf("删除商品搜索索引失败: id=%d, %v", id, err)
		}
	}
	return nil
}

// UploadImage 上传商品图片到对象存储，返回带签名的访问地址。
func (s *productService) UploadImage(ctx context.Context, fileName string, reader io.Reader, size int64, contentType string) (string, error) {
	bucket := config.Conf.MinIO.BucketName
	objectName, err := storage.UploadProductImage(ctx, bucket, fileName, reader, size, contentType)
	if err != nil {
		return "", err
	}
	return storage.GetPresignedURL(bucket, objectName, 7*24*time.Hour)
}

func (s *productService) LowStock() ([]model.Product, error) {
	return s.productRepo.FindLowStock()
}

func (s *productService) indexProduct(ctx context.Context, product *model.Product) {
	if es.ESClient == nil {
		return
	}
	doc := es.ProductDoc{
		ID:          product.ID,
		Name:        product.Name,
		Description: product.Description,
		Brand:       product.Brand,
		Tags:        product.Tags,
		CategoryID:  product.CategoryID,
		Price:       product.EffectivePrice(),
		IsActive:    product.IsActive,
	}
	if err := es.IndexProduct(ctx, config.Conf.Elasticsearch.IndexName, doc); err != nil {
		log.Warnf("写入商品搜索索引失败: id=%d, %v", product.ID, err)
	}
}

// applyProductUpdates 将请求中的字段套用到商品上，未出现的字段不动。
func applyProductUpdates(product *model.Product, updates map[string]interface{}) {
	if v, ok := updates["name"].(string); ok && v != "" {
		product.Name = v
	}
	if v, ok := updates["description"].(string); ok {
		product.Description = v
	}
	if v, ok := updates["brand"].(string); ok {
		product.Brand = v
	}
	if v, ok := updates["unit"].(string); ok && v != "" {
		product.Unit = v
	}
	if v, ok := updates["tags"].(string); ok {
		product.Tags = v
	}
	if v, ok := updates["imageUrls"].(string); ok {
		product.ImageURLs = v
	}
	if v, ok := updates["price"].(float64); ok && v > 0 {
		product.Price = v
	}
	if v, ok := updates["discountedPrice"].(float64); ok {
		if v > 0 {
			product.DiscountedPrice = &v
		} else {
			product.DiscountedPrice = nil
		}
	}
	if v, ok := updates["stockQuantity"].(float64); ok && v >= 0 {
		product.StockQuantity = int(v)
	}
	if v, ok := updates["minStockLevel"].(float64); ok && v >= 0 {
		product.MinStockLevel = int(v)
	}
	if v, ok := updates["maxOrderQuantity"].(float64); ok && v > 0 {
		product.MaxOrderQuantity = int(v)
	}
	if v, ok := updates["isFeatured"].(bool); ok {
		product.IsFeatured = v
	}
	if v, ok := updates["isActive"].(bool); ok {
		product.IsActive = v
	}
	if v, ok := updates["categoryId"].(float64); ok && v > 0 {
		product.CategoryID = uint(v)
	}
}
