package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cloud-wave-best-zizon/commerce-service/internal/domain"
)

type ProductService struct {
	productRepo ProductRepository
	cache       ProductCache
	logger      *zap.Logger
}

func NewProductService(productRepo ProductRepository, logger *zap.Logger) *ProductService {
	return &ProductService{
		productRepo: productRepo,
		logger:      logger,
	}
}

func (s *ProductService) SetCache(cache ProductCache) {
	s.cache = cache
}

func (s *ProductService) CreateProduct(ctx context.Context, req domain.CreateProductRequest) (*domain.Product, error) {
	if req.Price == nil {
		return nil, domain.ErrInvalidPrice
	}
	if err := domain.ValidatePrice(*req.Price); err != nil {
		return nil, err
	}
	if req.Stock == nil {
		return nil, domain.Validation("stock is required")
	}
	if err := domain.ValidateStock(*req.Stock); err != nil {
		return nil, err
	}

	productID := req.ProductID
	if productID == "" {
		productID = uuid.NewString()
	}

	now := time.Now().UTC()
	product := &domain.Product{
		ProductID: productID,
		Name:      req.Name,
		Category:  req.Category,
		Price:     *req.Price,
		Stock:     *req.Stock,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.productRepo.CreateProduct(ctx, product); err != nil {
		s.logger.Error("Failed to save product",
			zap.String("product_id", product.ProductID),
			zap.Error(err))
		return nil, domain.Storage("create product", err)
	}

	s.logger.Info("Product created successfully",
		zap.String("product_id", product.ProductID),
		zap.Int("initial_stock", product.Stock))

	return product, nil
}

func (s *ProductService) GetProduct(ctx context.Context, productID string) (*domain.Product, error) {
	if s.cache != nil {
		cached, err := s.cache.Get(ctx, productID)
		if err != nil {
			s.logger.Warn("Product cache read failed", zap.String("product_id", productID), zap.Error(err))
		} else if cached != nil {
			return cached, nil
		}
	}

	product, err := s.productRepo.GetProduct(ctx, productID)
	if err != nil {
		return nil, domain.Storage("get product", err)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, product); err != nil {
			s.logger.Warn("Product cache write failed", zap.String("product_id", productID), zap.Error(err))
		}
	}
	return product, nil
}

func (s *ProductService) ListProducts(ctx context.Context, filter domain.ProductFilter) (domain.ProductPage, error) {
	if filter.MinPrice != nil && filter.MaxPrice != nil && filter.MinPrice.GreaterThan(*filter.MaxPrice) {
		return domain.ProductPage{}, domain.Validation("minPrice must not exceed maxPrice")
	}
	filter.Page = filter.Page.Normalize()

	page, err := s.productRepo.ListProducts(ctx, filter)
	if err != nil {
		return domain.ProductPage{}, domain.Storage("list products", err)
	}
	return page, nil
}

func (s *ProductService) UpdateProduct(ctx context.Context, productID string, req domain.UpdateProductRequest) (*domain.Product, error) {
	if req.Empty() {
		return nil, domain.Validation("nothing to update")
	}
	if req.Price != nil {
		if err := domain.ValidatePrice(*req.Price); err != nil {
			return nil, err
		}
	}

	product, err := s.productRepo.UpdateProduct(ctx, productID, req)
	if err != nil {
		return nil, domain.Storage("update product", err)
	}
	s.evict(ctx, productID)

	s.logger.Info("Product updated",
		zap.String("product_id", productID),
		zap.String("price", product.Price.String()))

	return product, nil
}

func (s *ProductService) DeleteProduct(ctx context.Context, productID string) error {
	if err := s.productRepo.DeleteProduct(ctx, productID); err != nil {
		return domain.Storage("delete product", err)
	}
	s.evict(ctx, productID)

	s.logger.Info("Product deleted", zap.String("product_id", productID))
	return nil
}

// Restock increases stock in a single atomic statement. The store refuses
// the increment when it would lift stock above domain.MaxStock.
func (s *ProductService) Restock(ctx context.Context, productID string, quantity int) (*domain.Product, error) {
	if quantity <= 0 || quantity > domain.MaxStock {
		return nil, domain.InvalidQuantity(productID)
	}

	product, err := s.productRepo.Restock(ctx, productID, quantity)
	if err != nil {
		return nil, domain.Storage("restock product", err)
	}
	s.evict(ctx, productID)

	s.logger.Info("Stock restocked successfully",
		zap.String("product_id", productID),
		zap.Int("added", quantity),
		zap.Int("new_stock", product.Stock))

	return product, nil
}

func (s *ProductService) evict(ctx context.Context, productID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, productID); err != nil {
		s.logger.Warn("Failed to invalidate product cache", zap.String("product_id", productID), zap.Error(err))
	}
}
