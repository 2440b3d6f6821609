package service

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/craftline/craftline-backend/internal/inventory/domain"
	"github.com/craftline/craftline-backend/internal/inventory/events"
	"github.com/craftline/craftline-backend/internal/inventory/repository"
	"github.com/craftline/craftline-backend/pkg/actor"
	"github.com/craftline/craftline-backend/pkg/database"
	"github.com/craftline/craftline-backend/pkg/errors"
	"github.com/craftline/craftline-backend/pkg/logger"
)

// CreateAuditRequest opens a counting session. An empty scope snapshots
// every item that has a balance row.
type CreateAuditRequest struct {
	Scope []ItemRefRequest `json:"scope" validate:"omitempty,dive"`
	Notes *string          `json:"notes"`
}

// ItemRefRequest identifies an item in request payloads
type ItemRefRequest struct {
	ItemKind string `json:"item_kind" validate:"required"`
	ItemID   string `json:"item_id" validate:"required"`
}

// RecordCountRequest records a physical count for one audit line
type RecordCountRequest struct {
	ActualQuantity decimal.Decimal `json:"actual_quantity"`
	Notes          *string         `json:"notes"`
}

// AuditResult bundles an audit header with its lines
type AuditResult struct {
	Audit *repository.InventoryAudit      `json:"audit"`
	Items []*repository.InventoryAuditItem `json:"items"`
}

// AuditService runs physical-count reconciliation: snapshot the books,
// record counts, and post adjusting transactions for the differences.
type AuditService struct {
	db          *database.DB
	auditRepo   *repository.AuditRepository
	balanceRepo *repository.BalanceRepository
	ledger      *LedgerService
	items       domain.ItemLookup
	locks       *KeyedLocker
	publisher   *events.StockEventPublisher
	logger      *logger.Logger
}

// NewAuditService creates a new audit service
func NewAuditService(
	db *database.DB,
	auditRepo *repository.AuditRepository,
	balanceRepo *repository.BalanceRepository,
	ledger *LedgerService,
	items domain.ItemLookup,
	publisher *events.StockEventPublisher,
	log *logger.Logger,
) *AuditService {
	return &AuditService{
		db:          db,
		auditRepo:   auditRepo,
		balanceRepo: balanceRepo,
		ledger:      ledger,
		items:       items,
		locks:       NewKeyedLocker(),
		publisher:   publisher,
		logger:      log,
	}
}

// CreateAudit opens an audit in draft, snapshotting expected quantity and
// cost per item so counts compare against the books as of this moment.
func (s *AuditService) CreateAudit(ctx context.Context, req *CreateAuditRequest) (*AuditResult, error) {
	who := actor.FromContextOrSystem(ctx)

	var balances []*repository.InventoryBalance
	if len(req.Scope) == 0 {
		all, err := s.balanceRepo.List(ctx)
		if err != nil {
			return nil, err
		}
		balances = all
	} else {
		for _, sc := range req.Scope {
			ref, err := parseRef(sc.ItemKind, sc.ItemID)
			if err != nil {
				return nil, err
			}
			balance, err := s.ledger.GetBalance(ctx, ref)
			if err != nil {
				return nil, err
			}
			balances = append(balances, balance)
		}
	}
	if len(balances) == 0 {
		return nil, errors.BadRequest("no items to audit")
	}

	audit := &repository.InventoryAudit{
		Status:    domain.AuditStatusDraft,
		Notes:     req.Notes,
		CreatedBy: who.ID,
	}
	var lines []*repository.InventoryAuditItem
	err := s.db.WithTx(ctx, func(txCtx context.Context) error {
		if err := s.auditRepo.Create(txCtx, audit); err != nil {
			return err
		}
		for _, balance := range balances {
			name := balance.ItemID
			if item, err := s.items.Lookup(txCtx, balance.Ref()); err == nil {
				name = item.Name
			}
			line := &repository.InventoryAuditItem{
				AuditID:          audit.ID,
				ItemKind:         balance.ItemKind,
				ItemID:           balance.ItemID,
				ItemName:         name,
				Unit:             balance.Unit,
				ExpectedQuantity: balance.TotalQuantity,
				CostPerUnit:      balance.AveragePrice,
			}
			if err := s.auditRepo.CreateItem(txCtx, line); err != nil {
				return err
			}
			lines = append(lines, line)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().Str("audit_id", audit.ID).Int("items", len(lines)).Msg("audit created")
	return &AuditResult{Audit: audit, Items: lines}, nil
}

// StartAudit moves a draft audit into counting.
func (s *AuditService) StartAudit(ctx context.Context, auditID string) error {
	unlock := s.locks.Lock(auditID)
	defer unlock()

	if _, err := s.auditRepo.GetByID(ctx, auditID); err != nil {
		return err
	}
	return s.auditRepo.UpdateStatus(ctx, auditID, domain.AuditStatusDraft, domain.AuditStatusInProgress, nil)
}

// RecordCount stores a counted quantity on an audit line and appends to the
// line's count history. Recounts overwrite the current value; the history
// keeps every entry.
func (s *AuditService) RecordCount(ctx context.Context, auditID, lineID string, req *RecordCountRequest) (*repository.InventoryAuditItem, error) {
	if req.ActualQuantity.IsNegative() {
		return nil, errors.InvalidQuantity("counted quantity cannot be negative")
	}
	who := actor.FromContextOrSystem(ctx)

	unlock := s.locks.Lock(auditID)
	defer unlock()

	audit, err := s.auditRepo.GetByID(ctx, auditID)
	if err != nil {
		return nil, err
	}
	if audit.Status != domain.AuditStatusInProgress {
		return nil, errors.InvalidTransition(string(audit.Status), "record count")
	}

	line, err := s.auditRepo.GetItem(ctx, auditID, lineID)
	if err != nil {
		return nil, err
	}

	err = s.db.WithTx(ctx, func(txCtx context.Context) error {
		if err := s.auditRepo.RecordCount(txCtx, lineID, req.ActualQuantity, req.Notes, who.ID); err != nil {
			return err
		}
		history := &repository.AuditItemHistory{
			AuditItemID: lineID,
			OldQuantity: line.ActualQuantity,
			NewQuantity: req.ActualQuantity,
			CountedBy:   who.ID,
		}
		return s.auditRepo.AppendHistory(txCtx, history)
	})
	if err != nil {
		return nil, err
	}

	return s.auditRepo.GetItem(ctx, auditID, lineID)
}

// CompleteAudit closes an in-progress audit. With applyAdjustments set, every
// counted line whose difference is non-zero posts a ledger adjustment priced
// at the snapshotted cost per unit.
func (s *AuditService) CompleteAudit(ctx context.Context, auditID string, applyAdjustments bool) (*AuditResult, error) {
	who := actor.FromContextOrSystem(ctx)

	unlock := s.locks.Lock(auditID)
	defer unlock()

	audit, err := s.auditRepo.GetByID(ctx, auditID)
	if err != nil {
		return nil, err
	}
	if audit.Status != domain.AuditStatusInProgress {
		return nil, errors.InvalidTransition(string(audit.Status), string(domain.AuditStatusCompleted))
	}

	lines, err := s.auditRepo.ListItems(ctx, auditID)
	if err != nil {
		return nil, err
	}
	uncounted, err := s.auditRepo.CountUncounted(ctx, auditID)
	if err != nil {
		return nil, err
	}

	adjustable := func(line *repository.InventoryAuditItem) bool {
		return applyAdjustments && line.ActualQuantity.Valid &&
			line.Difference.Valid && !line.Difference.Decimal.IsZero()
	}

	// Every adjusted item's lock stays held until the transaction commits,
	// the same way the batch engine holds its component locks. Releasing a
	// lock while the adjustment is still uncommitted would let a concurrent
	// writer read the stale balance.
	var refs []domain.ItemRef
	for _, line := range lines {
		if adjustable(line) {
			refs = append(refs, line.Ref())
		}
	}
	if len(refs) > 0 {
		unlockItems := s.ledger.Locks().LockAll(refs)
		defer unlockItems()
	}

	counted := 0
	err = s.db.WithTx(ctx, func(txCtx context.Context) error {
		if err := s.auditRepo.UpdateStatus(txCtx, auditID, domain.AuditStatusInProgress, domain.AuditStatusCompleted, &who.ID); err != nil {
			return err
		}
		for _, line := range lines {
			if !line.ActualQuantity.Valid {
				continue
			}
			counted++
			if !adjustable(line) {
				continue
			}
			note := "inventory audit " + auditID + ": counted " + line.ActualQuantity.Decimal.String() +
				", expected " + line.ExpectedQuantity.String()
			if _, err := s.ledger.AdjustLocked(txCtx, line.Ref(), line.Difference.Decimal, line.CostPerUnit, note); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("audit_id", auditID).
		Int("items_counted", counted).
		Int64("items_uncounted", uncounted).
		Bool("adjustments_applied", applyAdjustments).
		Msg("audit completed")
	s.publisher.PublishAuditCompleted(ctx, auditID, counted, applyAdjustments, who.ID)

	return s.GetAudit(ctx, auditID)
}

// CancelAudit abandons a draft or in-progress audit with no ledger effect.
func (s *AuditService) CancelAudit(ctx context.Context, auditID string) error {
	unlock := s.locks.Lock(auditID)
	defer unlock()

	audit, err := s.auditRepo.GetByID(ctx, auditID)
	if err != nil {
		return err
	}
	if audit.Status != domain.AuditStatusDraft && audit.Status != domain.AuditStatusInProgress {
		return errors.InvalidTransition(string(audit.Status), string(domain.AuditStatusCancelled))
	}
	return s.auditRepo.UpdateStatus(ctx, auditID, audit.Status, domain.AuditStatusCancelled, nil)
}

// GetAudit returns an audit with its lines.
func (s *AuditService) GetAudit(ctx context.Context, auditID string) (*AuditResult, error) {
	audit, err := s.auditRepo.GetByID(ctx, auditID)
	if err != nil {
		return nil, err
	}
	lines, err := s.auditRepo.ListItems(ctx, auditID)
	if err != nil {
		return nil, err
	}
	return &AuditResult{Audit: audit, Items: lines}, nil
}

// ListAudits returns audit headers, optionally filtered by status.
func (s *AuditService) ListAudits(ctx context.Context, status *domain.AuditStatus) ([]*repository.InventoryAudit, error) {
	return s.auditRepo.List(ctx, status)
}

// GetItemHistory returns the count trail of one audit line.
func (s *AuditService) GetItemHistory(ctx context.Context, auditID, lineID string) ([]*repository.AuditItemHistory, error) {
	if _, err := s.auditRepo.GetItem(ctx, auditID, lineID); err != nil {
		return nil, err
	}
	return s.auditRepo.ListItemHistory(ctx, lineID)
}
