package stock

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/catalog"
	dbpkg "github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
)

// SystemActor is recorded as changed_by for transitions made by allocation.
const SystemActor = "system"

const depletedReason = "depleted by allocation"

// Ledger manages stock batches and commits stock to orders.
type Ledger interface {
	CreateBatch(ctx context.Context, actor string, input CreateBatchInput) (*BatchDTO, error)
	EditBatch(ctx context.Context, id uuid.UUID, input EditBatchInput) (*BatchDTO, error)
	DeleteBatch(ctx context.Context, id uuid.UUID) error
	Transition(ctx context.Context, id uuid.UUID, to enums.BatchStatus, reason *string, actor string) (*BatchDTO, error)
	GetBatch(ctx context.Context, id uuid.UUID) (*BatchDTO, error)
	ListBatches(ctx context.Context, filter ListFilter) ([]BatchDTO, error)

	Allocate(ctx context.Context, tx *gorm.DB, key Key, qty int) ([]Allocation, error)
	AvailableQuantity(ctx context.Context, tx *gorm.DB, key Key) (int, error)
	LockAvailable(ctx context.Context, tx *gorm.DB, key Key) (int, error)
}

// CreateBatchInput describes a new draft batch.
type CreateBatchInput struct {
	ProductID     uuid.UUID
	CombinationID *uuid.UUID
	BatchCode     string
	ImportPrice   decimal.Decimal
	Quantity      int
	ImportDate    time.Time
	Note          *string
}

// EditBatchInput carries optional draft edits. CombinationID moves the batch
// to another combination of the same product.
type EditBatchInput struct {
	BatchCode     *string
	CombinationID *uuid.UUID
	ImportPrice   *decimal.Decimal
	Quantity      *int
	ImportDate    *time.Time
	Note          *string
}

// Allocation is the portion of one batch committed to a request.
type Allocation struct {
	StockEntryID uuid.UUID `json:"stock_entry_id"`
	BatchCode    string    `json:"batch_code"`
	Quantity     int       `json:"quantity"`
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type lineResolver interface {
	ResolveLine(ctx context.Context, tx *gorm.DB, productID uuid.UUID, combinationID *uuid.UUID) (*catalog.LineInfo, error)
	MarkLocked(ctx context.Context, tx *gorm.DB, combinationID uuid.UUID) error
	RecomputeLock(ctx context.Context, tx *gorm.DB, combinationID uuid.UUID) (bool, error)
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type service struct {
	repo    *Repository
	tx      txRunner
	catalog lineResolver
	outbox  outboxPublisher
	metrics *metrics.InventoryMetrics
	logg    *logger.Logger
}

// ServiceParams bundles the ledger dependencies.
type ServiceParams struct {
	Repository *Repository
	Tx         txRunner
	Catalog    lineResolver
	Outbox     outboxPublisher
	Metrics    *metrics.InventoryMetrics
	Logger     *logger.Logger
}

// NewService constructs the stock ledger.
func NewService(params ServiceParams) (Ledger, error) {
	if params.Repository == nil {
		return nil, fmt.Errorf("stock repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if params.Catalog == nil {
		return nil, fmt.Errorf("catalog required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	return &service{
		repo:    params.Repository,
		tx:      params.Tx,
		catalog: params.Catalog,
		outbox:  params.Outbox,
		metrics: params.Metrics,
		logg:    params.Logger,
	}, nil
}

func (s *service) CreateBatch(ctx context.Context, actor string, input CreateBatchInput) (*BatchDTO, error) {
	code := strings.TrimSpace(input.BatchCode)
	if code == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "batch_code is required")
	}
	if input.Quantity < 1 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1")
	}
	if input.ImportPrice.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "import_price must be non-negative")
	}
	importDate := input.ImportDate
	if importDate.IsZero() {
		importDate = time.Now()
	}
	key := NewKey(input.ProductID, input.CombinationID)

	var entryID uuid.UUID
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.checkBatchKey(ctx, tx, key); err != nil {
			return err
		}
		repo := s.repo.WithTx(tx)
		exists, err := repo.BatchCodeExists(ctx, key.ProductID, code, uuid.Nil)
		if err != nil {
			return dbpkg.MapError(err, "check batch code")
		}
		if exists {
			return duplicateBatchCode(code)
		}

		entry := &models.StockEntry{
			ID:                   uuid.New(),
			ProductID:            key.ProductID,
			VariantCombinationID: key.CombinationID,
			BatchCode:            code,
			ImportPrice:          input.ImportPrice,
			Quantity:             input.Quantity,
			RemainingQuantity:    input.Quantity,
			ImportDate:           importDate.UTC(),
			Status:               enums.BatchStatusDraft,
			Note:                 input.Note,
			Version:              1,
		}
		if err := repo.Create(ctx, entry); err != nil {
			if dbpkg.IsUniqueViolation(err, "") {
				return duplicateBatchCode(code)
			}
			return dbpkg.MapError(err, "create stock entry")
		}
		if err := repo.AppendHistory(ctx, &models.StockStatusHistory{
			StockEntryID: entry.ID,
			Status:       enums.BatchStatusDraft,
			ChangedBy:    actorOrSystem(actor),
		}); err != nil {
			return dbpkg.MapError(err, "append history")
		}
		if key.CombinationID != nil {
			if err := s.catalog.MarkLocked(ctx, tx, *key.CombinationID); err != nil {
				return err
			}
		}
		entryID = entry.ID
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetBatch(ctx, entryID)
}

func (s *service) EditBatch(ctx context.Context, id uuid.UUID, input EditBatchInput) (*BatchDTO, error) {
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		entry, err := repo.LockByID(ctx, id)
		if err != nil {
			return notFoundOr(err, "load stock entry")
		}
		if entry.Status != enums.BatchStatusDraft {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "only draft batches can be edited").
				WithDetails(map[string]any{"status": entry.Status})
		}
		if input.BatchCode != nil {
			code := strings.TrimSpace(*input.BatchCode)
			if code == "" {
				return pkgerrors.New(pkgerrors.CodeValidation, "batch_code is required")
			}
			if code != entry.BatchCode {
				exists, err := repo.BatchCodeExists(ctx, entry.ProductID, code, entry.ID)
				if err != nil {
					return dbpkg.MapError(err, "check batch code")
				}
				if exists {
					return duplicateBatchCode(code)
				}
			}
			entry.BatchCode = code
		}
		previous := entry.VariantCombinationID
		if input.CombinationID != nil && !sameCombination(previous, input.CombinationID) {
			if err := s.checkBatchKey(ctx, tx, NewKey(entry.ProductID, input.CombinationID)); err != nil {
				return err
			}
			moved := *input.CombinationID
			entry.VariantCombinationID = &moved
		}
		if input.ImportPrice != nil {
			if input.ImportPrice.IsNegative() {
				return pkgerrors.New(pkgerrors.CodeValidation, "import_price must be non-negative")
			}
			entry.ImportPrice = *input.ImportPrice
		}
		if input.Quantity != nil {
			if *input.Quantity < 1 {
				return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1")
			}
			entry.Quantity = *input.Quantity
			entry.RemainingQuantity = *input.Quantity
		}
		if input.ImportDate != nil {
			entry.ImportDate = input.ImportDate.UTC()
		}
		if input.Note != nil {
			entry.Note = input.Note
		}
		if err := repo.UpdateDraft(ctx, entry); err != nil {
			if dbpkg.IsUniqueViolation(err, "") {
				return duplicateBatchCode(entry.BatchCode)
			}
			return dbpkg.MapError(err, "update stock entry")
		}
		if sameCombination(previous, entry.VariantCombinationID) {
			return nil
		}
		if err := s.catalog.MarkLocked(ctx, tx, *entry.VariantCombinationID); err != nil {
			return err
		}
		if previous != nil {
			if _, err := s.catalog.RecomputeLock(ctx, tx, *previous); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetBatch(ctx, id)
}

// checkBatchKey validates that key names a stockable product or combination.
// Unknown references are a bad request here, not a missing resource.
func (s *service) checkBatchKey(ctx context.Context, tx *gorm.DB, key Key) error {
	if _, err := s.catalog.ResolveLine(ctx, tx, key.ProductID, key.CombinationID); err != nil {
		if typed := pkgerrors.As(err); typed != nil && typed.Code() == pkgerrors.CodeNotFound {
			return pkgerrors.New(pkgerrors.CodeValidation, typed.Message()).WithDetails(typed.Details())
		}
		return err
	}
	return nil
}

func sameCombination(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func (s *service) DeleteBatch(ctx context.Context, id uuid.UUID) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		entry, err := repo.LockByID(ctx, id)
		if err != nil {
			return notFoundOr(err, "load stock entry")
		}
		if entry.Status != enums.BatchStatusDraft {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "only draft batches can be deleted").
				WithDetails(map[string]any{"status": entry.Status})
		}
		if err := repo.Delete(ctx, id); err != nil {
			return dbpkg.MapError(err, "delete stock entry")
		}
		if entry.VariantCombinationID != nil {
			if _, err := s.catalog.RecomputeLock(ctx, tx, *entry.VariantCombinationID); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *service) Transition(ctx context.Context, id uuid.UUID, to enums.BatchStatus, reason *string, actor string) (*BatchDTO, error) {
	if !to.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown batch status").
			WithDetails(map[string]any{"status": to})
	}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		entry, err := repo.LockByID(ctx, id)
		if err != nil {
			return notFoundOr(err, "load stock entry")
		}
		if !CanTransition(entry.Status, to) {
			return invalidTransition(entry.Status, to)
		}
		return s.applyStatus(ctx, tx, entry, to, reason, actorOrSystem(actor))
	})
	if err != nil {
		return nil, err
	}
	return s.GetBatch(ctx, id)
}

// applyStatus writes the new status with its history row and event. It never
// alters remaining_quantity.
func (s *service) applyStatus(ctx context.Context, tx *gorm.DB, entry *models.StockEntry, to enums.BatchStatus, reason *string, actor string) error {
	repo := s.repo.WithTx(tx)
	from := entry.Status
	if err := repo.SetStatus(ctx, entry.ID, to); err != nil {
		return dbpkg.MapError(err, "update stock status")
	}
	if err := repo.AppendHistory(ctx, &models.StockStatusHistory{
		StockEntryID: entry.ID,
		Status:       to,
		ChangedBy:    actor,
		Reason:       reason,
	}); err != nil {
		return dbpkg.MapError(err, "append history")
	}
	entry.Status = to

	payload := payloads.BatchStatusChangedEvent{
		StockEntryID:  entry.ID,
		ProductID:     entry.ProductID,
		CombinationID: entry.VariantCombinationID,
		BatchCode:     entry.BatchCode,
		From:          from,
		To:            to,
		ChangedBy:     actor,
	}
	if reason != nil {
		payload.Reason = *reason
	}
	actorRef := &outbox.ActorRef{Role: enums.ActorRoleAdmin}
	if actor == SystemActor {
		actorRef = outbox.SystemActor()
	} else if userID, err := uuid.Parse(actor); err == nil {
		actorRef.UserID = &userID
	}
	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventBatchStatusChanged,
		AggregateType: enums.AggregateStockEntry,
		AggregateID:   entry.ID,
		Actor:         actorRef,
		Data:          payload,
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit batch status event")
	}
	return nil
}

func (s *service) GetBatch(ctx context.Context, id uuid.UUID) (*BatchDTO, error) {
	entry, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "load stock entry")
	}
	return NewBatchDTO(entry), nil
}

func (s *service) ListBatches(ctx context.Context, filter ListFilter) ([]BatchDTO, error) {
	if filter.ProductID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product_id is required")
	}
	if filter.Status != nil && !filter.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown batch status")
	}
	entries, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, dbpkg.MapError(err, "list stock entries")
	}
	out := make([]BatchDTO, 0, len(entries))
	for i := range entries {
		out = append(out, *NewBatchDTO(&entries[i]))
	}
	return out, nil
}

// Allocate consumes qty units of the key from imported batches oldest first.
// It runs inside the caller's transaction and either commits the full
// quantity or changes nothing.
func (s *service) Allocate(ctx context.Context, tx *gorm.DB, key Key, qty int) ([]Allocation, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "allocation requires a transaction")
	}
	if qty < 1 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1")
	}
	repo := s.repo.WithTx(tx)
	batches, err := repo.LockAllocatable(ctx, key)
	if err != nil {
		s.metrics.ObserveAllocation(metrics.OutcomeError, 0)
		return nil, dbpkg.MapError(err, "lock stock entries")
	}

	available := 0
	for _, b := range batches {
		available += b.RemainingQuantity
	}
	if available < qty {
		s.metrics.ObserveAllocation(metrics.OutcomeInsufficient, 0)
		return nil, InsufficientStock(key, qty, available)
	}

	need := qty
	allocations := make([]Allocation, 0, len(batches))
	for i := range batches {
		if need == 0 {
			break
		}
		batch := &batches[i]
		take := batch.RemainingQuantity
		if take > need {
			take = need
		}
		ok, err := repo.DecrementCAS(ctx, batch.ID, batch.Version, take)
		if err != nil {
			s.metrics.ObserveAllocation(metrics.OutcomeError, 0)
			return nil, dbpkg.MapError(err, "decrement stock entry")
		}
		if !ok {
			s.metrics.ObserveAllocation(metrics.OutcomeConflict, 0)
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "stock entry changed concurrently").
				WithDetails(map[string]any{"stock_entry_id": batch.ID, "batch_code": batch.BatchCode})
		}
		batch.RemainingQuantity -= take
		batch.Version++
		need -= take
		allocations = append(allocations, Allocation{
			StockEntryID: batch.ID,
			BatchCode:    batch.BatchCode,
			Quantity:     take,
		})

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventStockAllocated,
			AggregateType: enums.AggregateStockEntry,
			AggregateID:   batch.ID,
			Actor:         outbox.SystemActor(),
			Data: payloads.StockAllocatedEvent{
				StockEntryID:  batch.ID,
				ProductID:     batch.ProductID,
				CombinationID: batch.VariantCombinationID,
				BatchCode:     batch.BatchCode,
				Quantity:      take,
				Remaining:     batch.RemainingQuantity,
			},
		}); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit allocation event")
		}

		if batch.RemainingQuantity == 0 {
			reason := depletedReason
			if err := s.applyStatus(ctx, tx, batch, enums.BatchStatusSoldOut, &reason, SystemActor); err != nil {
				return nil, err
			}
			s.metrics.IncSoldOut()
		}
	}

	s.metrics.ObserveAllocation(metrics.OutcomeOK, qty)
	if s.logg != nil {
		logCtx := s.logg.WithStockKey(ctx, key.ProductID.String(), key.combinationString())
		logCtx = s.logg.WithFields(logCtx, map[string]any{"quantity": qty, "batches": len(allocations)})
		s.logg.Debug(logCtx, "stock allocated")
	}
	return allocations, nil
}

func (s *service) AvailableQuantity(ctx context.Context, tx *gorm.DB, key Key) (int, error) {
	total, err := s.repo.WithTx(tx).SumAvailable(ctx, key)
	if err != nil {
		return 0, dbpkg.MapError(err, "sum available stock")
	}
	return total, nil
}

// LockAvailable locks the key's allocatable batches and returns their total.
// Callers hold the locks until their transaction ends.
func (s *service) LockAvailable(ctx context.Context, tx *gorm.DB, key Key) (int, error) {
	if tx == nil {
		return 0, pkgerrors.New(pkgerrors.CodeInternal, "locking requires a transaction")
	}
	batches, err := s.repo.WithTx(tx).LockAllocatable(ctx, key)
	if err != nil {
		return 0, dbpkg.MapError(err, "lock stock entries")
	}
	total := 0
	for _, b := range batches {
		total += b.RemainingQuantity
	}
	return total, nil
}

// InsufficientStock builds the conflict returned when a key cannot cover a request.
func InsufficientStock(key Key, requested, available int) error {
	details := map[string]any{
		"reason":     "INSUFFICIENT_STOCK",
		"product_id": key.ProductID,
		"requested":  requested,
		"available":  available,
	}
	if key.CombinationID != nil {
		details["combination_id"] = *key.CombinationID
	}
	return pkgerrors.New(pkgerrors.CodeConflict, "insufficient stock").WithDetails(details)
}

func duplicateBatchCode(code string) error {
	return pkgerrors.New(pkgerrors.CodeConflict, "batch code already exists for product").
		WithDetails(map[string]any{"batch_code": code})
}

func notFoundOr(err error, op string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "stock entry not found")
	}
	return dbpkg.MapError(err, op)
}

func actorOrSystem(actor string) string {
	if strings.TrimSpace(actor) == "" {
		return SystemActor
	}
	return actor
}
