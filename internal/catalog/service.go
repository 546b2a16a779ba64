package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	dbpkg "github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

// Service manages products, their variant axes, and materialized combinations.
type Service interface {
	CreateProduct(ctx context.Context, input CreateProductInput) (*ProductDTO, error)
	UpdateProduct(ctx context.Context, productID uuid.UUID, input UpdateProductInput) (*ProductDTO, error)
	GetProduct(ctx context.Context, productID uuid.UUID) (*ProductDTO, error)

	AddAxis(ctx context.Context, productID uuid.UUID, input AddAxisInput) (*AxisDTO, error)
	RenameAxis(ctx context.Context, axisID uuid.UUID, name string) (*AxisDTO, error)
	AddOption(ctx context.Context, axisID uuid.UUID, value string) (*AxisDTO, error)
	RenameOption(ctx context.Context, axisID uuid.UUID, oldValue, newValue string) (*AxisDTO, error)
	RemoveOption(ctx context.Context, axisID uuid.UUID, value string) (*RemoveOptionResult, error)

	AddCombination(ctx context.Context, productID uuid.UUID, input AddCombinationInput) (*CombinationDTO, error)
	UpdateCombination(ctx context.Context, combinationID uuid.UUID, input UpdateCombinationInput) (*CombinationDTO, error)
	DeleteCombination(ctx context.Context, combinationID uuid.UUID) error
	LockStatus(ctx context.Context, combinationID uuid.UUID) (bool, error)
	ValidOptions(ctx context.Context, productID uuid.UUID, prefix []string) (*ValidOptionsDTO, error)

	ResolveLine(ctx context.Context, tx *gorm.DB, productID uuid.UUID, combinationID *uuid.UUID) (*LineInfo, error)
	MarkLocked(ctx context.Context, tx *gorm.DB, combinationID uuid.UUID) error
	RecomputeLock(ctx context.Context, tx *gorm.DB, combinationID uuid.UUID) (bool, error)
}

// CreateProductInput holds the validated payload to create a product.
type CreateProductInput struct {
	Name        string
	HasVariants bool
	Price       *decimal.Decimal
}

// UpdateProductInput holds optional product mutations.
type UpdateProductInput struct {
	Name        *string
	HasVariants *bool
	Price       *decimal.Decimal
}

// AddAxisInput names a new axis and its initial options.
type AddAxisInput struct {
	Name    string
	Options []string
}

// AddCombinationInput describes a new combination.
type AddCombinationInput struct {
	Values []AxisValue
	Price  decimal.Decimal
	Images []string
}

// UpdateCombinationInput carries optional combination edits. A nil Values
// leaves the tuple untouched.
type UpdateCombinationInput struct {
	Values        []AxisValue
	Price         *decimal.Decimal
	AddedImages   []string
	DeletedImages []string
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type service struct {
	repo *Repository
	tx   txRunner
}

// NewService constructs the catalog service.
func NewService(repo *Repository, tx txRunner) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("catalog repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	return &service{repo: repo, tx: tx}, nil
}

func (s *service) CreateProduct(ctx context.Context, input CreateProductInput) (*ProductDTO, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "name is required")
	}
	product := &models.Product{
		ID:          uuid.New(),
		Name:        name,
		HasVariants: input.HasVariants,
	}
	if input.Price != nil {
		if err := validatePrice(*input.Price); err != nil {
			return nil, err
		}
		product.Price = decimal.NewNullDecimal(*input.Price)
	}
	if err := s.repo.CreateProduct(ctx, product); err != nil {
		return nil, dbpkg.MapError(err, "create product")
	}
	return s.GetProduct(ctx, product.ID)
}

func (s *service) UpdateProduct(ctx context.Context, productID uuid.UUID, input UpdateProductInput) (*ProductDTO, error) {
	if input.Price != nil {
		if err := validatePrice(*input.Price); err != nil {
			return nil, err
		}
	}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		product, err := repo.LockProduct(ctx, productID)
		if err != nil {
			return dbpkg.MapError(err, "load product")
		}
		if input.HasVariants != nil && *input.HasVariants != product.HasVariants {
			count, err := repo.CountCombinations(ctx, productID)
			if err != nil {
				return dbpkg.MapError(err, "count combinations")
			}
			if count > 0 {
				return pkgerrors.New(pkgerrors.CodeConflict, "has_variants cannot change once combinations exist")
			}
			product.HasVariants = *input.HasVariants
		}
		if input.Name != nil {
			name := strings.TrimSpace(*input.Name)
			if name == "" {
				return pkgerrors.New(pkgerrors.CodeValidation, "name is required")
			}
			product.Name = name
		}
		if input.Price != nil {
			product.Price = decimal.NewNullDecimal(*input.Price)
		}
		return dbpkg.MapError(repo.SaveProduct(ctx, product), "update product")
	})
	if err != nil {
		return nil, err
	}
	return s.GetProduct(ctx, productID)
}

func (s *service) GetProduct(ctx context.Context, productID uuid.UUID) (*ProductDTO, error) {
	product, err := s.repo.GetProductDetail(ctx, productID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, dbpkg.MapError(err, "load product detail")
	}
	return NewProductDTO(product), nil
}

func (s *service) AddAxis(ctx context.Context, productID uuid.UUID, input AddAxisInput) (*AxisDTO, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "axis name is required")
	}
	options, err := normalizeOptions(input.Options)
	if err != nil {
		return nil, err
	}

	var created models.VariantAxis
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		product, err := repo.LockProduct(ctx, productID)
		if err != nil {
			return dbpkg.MapError(err, "load product")
		}
		if !product.HasVariants {
			return pkgerrors.New(pkgerrors.CodeValidation, "product does not have variants")
		}
		count, err := repo.CountCombinations(ctx, productID)
		if err != nil {
			return dbpkg.MapError(err, "count combinations")
		}
		if count > 0 {
			return pkgerrors.New(pkgerrors.CodeConflict, "axes cannot be added once combinations exist")
		}
		axes, err := repo.ListAxes(ctx, productID)
		if err != nil {
			return dbpkg.MapError(err, "list axes")
		}
		nextPosition := 0
		for _, axis := range axes {
			if strings.EqualFold(axis.Name, name) {
				return pkgerrors.New(pkgerrors.CodeConflict, "axis name already exists").
					WithDetails(map[string]any{"name": name})
			}
			if axis.Position >= nextPosition {
				nextPosition = axis.Position + 1
			}
		}

		created = models.VariantAxis{
			ID:        uuid.New(),
			ProductID: productID,
			Name:      name,
			Position:  nextPosition,
		}
		for i, value := range options {
			created.Options = append(created.Options, models.VariantAxisOption{
				ID:       uuid.New(),
				Value:    value,
				Position: i,
			})
		}
		return dbpkg.MapError(repo.CreateAxis(ctx, &created), "create axis")
	})
	if err != nil {
		return nil, err
	}
	dto := NewAxisDTO(created)
	return &dto, nil
}

func (s *service) RenameAxis(ctx context.Context, axisID uuid.UUID, name string) (*AxisDTO, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "axis name is required")
	}
	return s.mutateAxis(ctx, axisID, func(repo *Repository, axis *models.VariantAxis) error {
		referenced, err := repo.AxisReferenced(ctx, axis.ID)
		if err != nil {
			return dbpkg.MapError(err, "check axis references")
		}
		if referenced {
			return pkgerrors.New(pkgerrors.CodeConflict, "axis is used by existing combinations")
		}
		siblings, err := repo.ListAxes(ctx, axis.ProductID)
		if err != nil {
			return dbpkg.MapError(err, "list axes")
		}
		for _, sibling := range siblings {
			if sibling.ID != axis.ID && strings.EqualFold(sibling.Name, name) {
				return pkgerrors.New(pkgerrors.CodeConflict, "axis name already exists").
					WithDetails(map[string]any{"name": name})
			}
		}
		if err := repo.RenameAxis(ctx, axis.ID, name); err != nil {
			return dbpkg.MapError(err, "rename axis")
		}
		axis.Name = name
		return nil
	})
}

func (s *service) AddOption(ctx context.Context, axisID uuid.UUID, value string) (*AxisDTO, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "option value is required")
	}
	return s.mutateAxis(ctx, axisID, func(repo *Repository, axis *models.VariantAxis) error {
		nextPosition := 0
		for _, opt := range axis.Options {
			if strings.EqualFold(opt.Value, value) {
				return pkgerrors.New(pkgerrors.CodeConflict, "option already exists").
					WithDetails(map[string]any{"value": value})
			}
			if opt.Position >= nextPosition {
				nextPosition = opt.Position + 1
			}
		}
		option := models.VariantAxisOption{
			ID:       uuid.New(),
			AxisID:   axis.ID,
			Value:    value,
			Position: nextPosition,
		}
		if err := repo.CreateOption(ctx, &option); err != nil {
			return dbpkg.MapError(err, "create option")
		}
		axis.Options = append(axis.Options, option)
		return nil
	})
}

func (s *service) RenameOption(ctx context.Context, axisID uuid.UUID, oldValue, newValue string) (*AxisDTO, error) {
	newValue = strings.TrimSpace(newValue)
	if newValue == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "option value is required")
	}
	return s.mutateAxis(ctx, axisID, func(repo *Repository, axis *models.VariantAxis) error {
		idx := findOption(axis.Options, oldValue)
		if idx < 0 {
			return pkgerrors.New(pkgerrors.CodeNotFound, "option not found")
		}
		current := axis.Options[idx]
		referenced, err := repo.OptionReferenced(ctx, axis.ID, current.Value)
		if err != nil {
			return dbpkg.MapError(err, "check option references")
		}
		if referenced {
			return pkgerrors.New(pkgerrors.CodeConflict, "option is used by existing combinations").
				WithDetails(map[string]any{"value": current.Value})
		}
		for i, opt := range axis.Options {
			if i != idx && strings.EqualFold(opt.Value, newValue) {
				return pkgerrors.New(pkgerrors.CodeConflict, "option already exists").
					WithDetails(map[string]any{"value": newValue})
			}
		}
		if err := repo.RenameOption(ctx, current.ID, newValue); err != nil {
			return dbpkg.MapError(err, "rename option")
		}
		axis.Options[idx].Value = newValue
		return nil
	})
}

// RemoveOption deletes an unused option. Removing the last option removes the
// axis as well, which the result reports as AxisRemoved.
func (s *service) RemoveOption(ctx context.Context, axisID uuid.UUID, value string) (*RemoveOptionResult, error) {
	var removedAxis bool
	dto, err := s.mutateAxis(ctx, axisID, func(repo *Repository, axis *models.VariantAxis) error {
		idx := findOption(axis.Options, value)
		if idx < 0 {
			return pkgerrors.New(pkgerrors.CodeNotFound, "option not found")
		}
		current := axis.Options[idx]
		referenced, err := repo.OptionReferenced(ctx, axis.ID, current.Value)
		if err != nil {
			return dbpkg.MapError(err, "check option references")
		}
		if referenced {
			return pkgerrors.New(pkgerrors.CodeConflict, "option is used by existing combinations").
				WithDetails(map[string]any{"value": current.Value})
		}

		if len(axis.Options) == 1 {
			count, err := repo.CountCombinations(ctx, axis.ProductID)
			if err != nil {
				return dbpkg.MapError(err, "count combinations")
			}
			if count > 0 {
				return pkgerrors.New(pkgerrors.CodeConflict, "axis cannot be removed once combinations exist")
			}
			if err := repo.DeleteAxis(ctx, axis.ID); err != nil {
				return dbpkg.MapError(err, "delete axis")
			}
			removedAxis = true
			return nil
		}

		if err := repo.DeleteOption(ctx, current.ID); err != nil {
			return dbpkg.MapError(err, "delete option")
		}
		axis.Options = append(axis.Options[:idx], axis.Options[idx+1:]...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if removedAxis {
		return &RemoveOptionResult{AxisRemoved: true}, nil
	}
	return &RemoveOptionResult{Axis: dto}, nil
}

// mutateAxis runs fn with the owning product locked so structural edits on the
// same product serialize.
func (s *service) mutateAxis(ctx context.Context, axisID uuid.UUID, fn func(repo *Repository, axis *models.VariantAxis) error) (*AxisDTO, error) {
	var result models.VariantAxis
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		axis, err := repo.FindAxis(ctx, axisID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "axis not found")
			}
			return dbpkg.MapError(err, "load axis")
		}
		if _, err := repo.LockProduct(ctx, axis.ProductID); err != nil {
			return dbpkg.MapError(err, "lock product")
		}
		if err := fn(repo, axis); err != nil {
			return err
		}
		result = *axis
		return nil
	})
	if err != nil {
		return nil, err
	}
	dto := NewAxisDTO(result)
	return &dto, nil
}

func (s *service) AddCombination(ctx context.Context, productID uuid.UUID, input AddCombinationInput) (*CombinationDTO, error) {
	if err := validatePrice(input.Price); err != nil {
		return nil, err
	}
	images, err := normalizePaths(input.Images)
	if err != nil {
		return nil, err
	}

	var comboID uuid.UUID
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		product, err := repo.LockProduct(ctx, productID)
		if err != nil {
			return dbpkg.MapError(err, "load product")
		}
		if !product.HasVariants {
			return pkgerrors.New(pkgerrors.CodeValidation, "product does not have variants")
		}
		axes, err := repo.ListAxes(ctx, productID)
		if err != nil {
			return dbpkg.MapError(err, "list axes")
		}
		values, key, err := canonicalTuple(axes, input.Values)
		if err != nil {
			return err
		}
		if err := ensureUniqueTuple(ctx, repo, productID, key, uuid.Nil); err != nil {
			return err
		}

		combo := &models.VariantCombination{
			ID:         uuid.New(),
			ProductID:  productID,
			VariantKey: key,
			Price:      input.Price,
			IsLocked:   false,
		}
		for _, v := range values {
			combo.Values = append(combo.Values, models.VariantCombinationValue{AxisID: v.AxisID, Value: v.Value})
		}
		for i, path := range images {
			combo.Images = append(combo.Images, models.VariantCombinationImage{ID: uuid.New(), Path: path, Position: i})
		}
		if err := repo.CreateCombination(ctx, combo); err != nil {
			return dbpkg.MapError(err, "create combination")
		}
		comboID = combo.ID
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.loadCombination(ctx, s.repo, comboID)
}

func (s *service) UpdateCombination(ctx context.Context, combinationID uuid.UUID, input UpdateCombinationInput) (*CombinationDTO, error) {
	if input.Price != nil {
		if err := validatePrice(*input.Price); err != nil {
			return nil, err
		}
	}
	added, err := normalizePaths(input.AddedImages)
	if err != nil {
		return nil, err
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		combo, err := repo.FindCombination(ctx, combinationID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "combination not found")
			}
			return dbpkg.MapError(err, "load combination")
		}
		if _, err := repo.LockProduct(ctx, combo.ProductID); err != nil {
			return dbpkg.MapError(err, "lock product")
		}
		locked, err := repo.LockCombination(ctx, combinationID)
		if err != nil {
			return dbpkg.MapError(err, "lock combination")
		}

		if input.Values != nil {
			axes, err := repo.ListAxes(ctx, combo.ProductID)
			if err != nil {
				return dbpkg.MapError(err, "list axes")
			}
			values, key, err := canonicalTuple(axes, input.Values)
			if err != nil {
				return err
			}
			if key != combo.VariantKey {
				if locked.IsLocked {
					return pkgerrors.New(pkgerrors.CodeConflict, "combination is locked by stock entries").
						WithDetails(map[string]any{"combination_id": combinationID})
				}
				if err := ensureUniqueTuple(ctx, repo, combo.ProductID, key, combinationID); err != nil {
					return err
				}
				rows := make([]models.VariantCombinationValue, 0, len(values))
				for _, v := range values {
					rows = append(rows, models.VariantCombinationValue{AxisID: v.AxisID, Value: v.Value})
				}
				if err := repo.ReplaceCombinationValues(ctx, combinationID, key, rows); err != nil {
					return dbpkg.MapError(err, "replace combination values")
				}
			}
		}

		if input.Price != nil {
			if err := repo.UpdateCombinationPrice(ctx, combinationID, *input.Price); err != nil {
				return dbpkg.MapError(err, "update combination price")
			}
		}

		if len(input.DeletedImages) > 0 {
			existing := make(map[string]struct{}, len(combo.Images))
			for _, img := range combo.Images {
				existing[img.Path] = struct{}{}
			}
			for _, path := range input.DeletedImages {
				if _, ok := existing[path]; !ok {
					return pkgerrors.New(pkgerrors.CodeValidation, "image not attached to combination").
						WithDetails(map[string]any{"path": path})
				}
			}
			if err := repo.DeleteImages(ctx, combinationID, input.DeletedImages); err != nil {
				return dbpkg.MapError(err, "delete images")
			}
		}

		if len(added) > 0 {
			next := 0
			for _, img := range combo.Images {
				if img.Position >= next {
					next = img.Position + 1
				}
			}
			rows := make([]models.VariantCombinationImage, 0, len(added))
			for i, path := range added {
				rows = append(rows, models.VariantCombinationImage{
					CombinationID: combinationID,
					Path:          path,
					Position:      next + i,
				})
			}
			if err := repo.AddImages(ctx, rows); err != nil {
				return dbpkg.MapError(err, "add images")
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.loadCombination(ctx, s.repo, combinationID)
}

func (s *service) DeleteCombination(ctx context.Context, combinationID uuid.UUID) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		combo, err := repo.LockCombination(ctx, combinationID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "combination not found")
			}
			return dbpkg.MapError(err, "load combination")
		}
		if combo.IsLocked {
			return pkgerrors.New(pkgerrors.CodeConflict, "combination is locked by stock entries").
				WithDetails(map[string]any{"combination_id": combinationID})
		}
		return dbpkg.MapError(repo.DeleteCombination(ctx, combinationID), "delete combination")
	})
}

func (s *service) LockStatus(ctx context.Context, combinationID uuid.UUID) (bool, error) {
	combo, err := s.repo.FindCombination(ctx, combinationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, pkgerrors.New(pkgerrors.CodeNotFound, "combination not found")
		}
		return false, dbpkg.MapError(err, "load combination")
	}
	return combo.IsLocked, nil
}

func (s *service) ValidOptions(ctx context.Context, productID uuid.UUID, prefix []string) (*ValidOptionsDTO, error) {
	product, err := s.repo.FindProduct(ctx, productID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, dbpkg.MapError(err, "load product")
	}
	if !product.HasVariants {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product does not have variants")
	}
	axes, err := s.repo.ListAxes(ctx, productID)
	if err != nil {
		return nil, dbpkg.MapError(err, "list axes")
	}
	if len(prefix) > len(axes) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "prefix longer than axis count")
	}
	canonical := make([]string, len(prefix))
	for i, value := range prefix {
		idx := findOption(axes[i].Options, value)
		if idx < 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "prefix value is not an option of its axis").
				WithDetails(map[string]any{"axis": axes[i].Name, "value": value})
		}
		canonical[i] = axes[i].Options[idx].Value
	}

	combos, err := s.repo.ListCombinations(ctx, productID)
	if err != nil {
		return nil, dbpkg.MapError(err, "list combinations")
	}
	solverAxes, existing := solverInput(axes, combos)

	result := &ValidOptionsDTO{
		ProductID:        productID,
		Prefix:           canonical,
		Options:          []OptionState{},
		CompletionsExist: ValidCompletionsExist(solverAxes, canonical, existing),
	}
	if len(canonical) < len(axes) {
		next := NewAxisDTO(axes[len(canonical)])
		result.NextAxis = &next
		result.Options = ValidOptions(solverAxes, canonical, existing)
	}
	return result, nil
}

// ResolveLine validates a (product, combination) key and prices it. Priced is
// false for a simple product that has no price yet.
func (s *service) ResolveLine(ctx context.Context, tx *gorm.DB, productID uuid.UUID, combinationID *uuid.UUID) (*LineInfo, error) {
	repo := s.repo.WithTx(tx)
	product, err := repo.FindProduct(ctx, productID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found").
				WithDetails(map[string]any{"product_id": productID})
		}
		return nil, dbpkg.MapError(err, "load product")
	}
	info := &LineInfo{
		ProductID:   product.ID,
		ProductName: product.Name,
		HasVariants: product.HasVariants,
	}
	if !product.HasVariants {
		if combinationID != nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "product does not have variants").
				WithDetails(map[string]any{"product_id": productID})
		}
		if product.Price.Valid {
			info.UnitPrice = product.Price.Decimal
			info.Priced = true
		}
		return info, nil
	}

	if combinationID == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "variant combination is required").
			WithDetails(map[string]any{"product_id": productID})
	}
	combo, err := repo.FindCombination(ctx, *combinationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "variant combination not found").
				WithDetails(map[string]any{"combination_id": *combinationID})
		}
		return nil, dbpkg.MapError(err, "load combination")
	}
	if combo.ProductID != productID {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "variant combination does not belong to product").
			WithDetails(map[string]any{"product_id": productID, "combination_id": *combinationID})
	}
	id := combo.ID
	info.CombinationID = &id
	info.VariantKey = combo.VariantKey
	info.UnitPrice = combo.Price
	info.Priced = true
	return info, nil
}

// MarkLocked flips the combination's lock flag inside the caller's transaction.
func (s *service) MarkLocked(ctx context.Context, tx *gorm.DB, combinationID uuid.UUID) error {
	repo := s.repo.WithTx(tx)
	if _, err := repo.LockCombination(ctx, combinationID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "combination not found")
		}
		return dbpkg.MapError(err, "lock combination")
	}
	_, err := repo.SetLocked(ctx, combinationID, true)
	return dbpkg.MapError(err, "mark combination locked")
}

// RecomputeLock derives the lock flag from the stock entries that reference
// the combination and stores it.
func (s *service) RecomputeLock(ctx context.Context, tx *gorm.DB, combinationID uuid.UUID) (bool, error) {
	repo := s.repo.WithTx(tx)
	if _, err := repo.LockCombination(ctx, combinationID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, pkgerrors.New(pkgerrors.CodeNotFound, "combination not found")
		}
		return false, dbpkg.MapError(err, "lock combination")
	}
	refs, err := repo.CountStockReferences(ctx, combinationID)
	if err != nil {
		return false, dbpkg.MapError(err, "count stock references")
	}
	locked := refs > 0
	if _, err := repo.SetLocked(ctx, combinationID, locked); err != nil {
		return false, dbpkg.MapError(err, "store lock flag")
	}
	return locked, nil
}

func (s *service) loadCombination(ctx context.Context, repo *Repository, combinationID uuid.UUID) (*CombinationDTO, error) {
	combo, err := repo.FindCombination(ctx, combinationID)
	if err != nil {
		return nil, dbpkg.MapError(err, "load combination")
	}
	axes, err := repo.ListAxes(ctx, combo.ProductID)
	if err != nil {
		return nil, dbpkg.MapError(err, "list axes")
	}
	dto := NewCombinationDTO(combo, axisPositions(axes))
	return &dto, nil
}

// canonicalTuple checks that values name every axis exactly once with a known
// option and returns the values in stored casing with their variant key.
func canonicalTuple(axes []models.VariantAxis, values []AxisValue) ([]AxisValue, string, error) {
	if len(axes) == 0 {
		return nil, "", pkgerrors.New(pkgerrors.CodeValidation, "product has no variant axes")
	}
	if len(values) != len(axes) {
		return nil, "", pkgerrors.New(pkgerrors.CodeValidation, "exactly one value per axis is required").
			WithDetails(map[string]any{"expected": len(axes), "got": len(values)})
	}
	byID := make(map[uuid.UUID]models.VariantAxis, len(axes))
	for _, axis := range axes {
		byID[axis.ID] = axis
	}
	seen := make(map[uuid.UUID]struct{}, len(values))
	canonical := make([]AxisValue, 0, len(values))
	for _, v := range values {
		axis, ok := byID[v.AxisID]
		if !ok {
			return nil, "", pkgerrors.New(pkgerrors.CodeValidation, "unknown axis").
				WithDetails(map[string]any{"axis_id": v.AxisID})
		}
		if _, dup := seen[v.AxisID]; dup {
			return nil, "", pkgerrors.New(pkgerrors.CodeValidation, "axis given more than once").
				WithDetails(map[string]any{"axis_id": v.AxisID})
		}
		seen[v.AxisID] = struct{}{}
		idx := findOption(axis.Options, v.Value)
		if idx < 0 {
			return nil, "", pkgerrors.New(pkgerrors.CodeValidation, "value is not an option of its axis").
				WithDetails(map[string]any{"axis": axis.Name, "value": v.Value})
		}
		canonical = append(canonical, AxisValue{AxisID: axis.ID, Value: axis.Options[idx].Value})
	}
	positions := axisPositions(axes)
	canonical = orderValues(canonical, positions)
	return canonical, VariantKey(canonical, positions), nil
}

func ensureUniqueTuple(ctx context.Context, repo *Repository, productID uuid.UUID, key string, self uuid.UUID) error {
	combos, err := repo.ListCombinations(ctx, productID)
	if err != nil {
		return dbpkg.MapError(err, "list combinations")
	}
	for _, combo := range combos {
		if combo.ID != self && combo.VariantKey == key {
			return pkgerrors.New(pkgerrors.CodeConflict, "combination already exists").
				WithDetails(map[string]any{"combination_id": combo.ID})
		}
	}
	return nil
}

func solverInput(axes []models.VariantAxis, combos []models.VariantCombination) ([]AxisOptions, [][]string) {
	solverAxes := make([]AxisOptions, len(axes))
	index := make(map[uuid.UUID]int, len(axes))
	for i, axis := range axes {
		solverAxes[i] = AxisOptions{AxisID: axis.ID, Options: axis.OptionValues()}
		index[axis.ID] = i
	}
	existing := make([][]string, 0, len(combos))
	for _, combo := range combos {
		tuple := make([]string, len(axes))
		filled := 0
		for _, v := range combo.Values {
			if i, ok := index[v.AxisID]; ok {
				tuple[i] = v.Value
				filled++
			}
		}
		if filled == len(axes) {
			existing = append(existing, tuple)
		}
	}
	return solverAxes, existing
}

func axisPositions(axes []models.VariantAxis) map[uuid.UUID]int {
	positions := make(map[uuid.UUID]int, len(axes))
	for _, axis := range axes {
		positions[axis.ID] = axis.Position
	}
	return positions
}

func findOption(options []models.VariantAxisOption, value string) int {
	value = strings.TrimSpace(value)
	for i, opt := range options {
		if strings.EqualFold(opt.Value, value) {
			return i
		}
	}
	return -1
}

func normalizeOptions(values []string) ([]string, error) {
	if len(values) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one option is required")
	}
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, raw := range values {
		value := strings.TrimSpace(raw)
		if value == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "option value is required")
		}
		folded := strings.ToLower(value)
		if _, dup := seen[folded]; dup {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "duplicate option").
				WithDetails(map[string]any{"value": value})
		}
		seen[folded] = struct{}{}
		out = append(out, value)
	}
	return out, nil
}

func normalizePaths(paths []string) ([]string, error) {
	out := make([]string, 0, len(paths))
	for _, raw := range paths {
		path := strings.TrimSpace(raw)
		if path == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "image path is required")
		}
		out = append(out, path)
	}
	return out, nil
}

func validatePrice(price decimal.Decimal) error {
	if price.IsNegative() {
		return pkgerrors.New(pkgerrors.CodeValidation, "price must be non-negative")
	}
	return nil
}
