package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/troveledger/internal/domain"
)

const maxDelegateName = 64

// DelegateService maintains display names for batch managers.
type DelegateService struct {
	store  domain.DelegateStore
	audit  domain.AuditStore
	logger *slog.Logger
}

// NewDelegateService creates a DelegateService. audit may be nil.
func NewDelegateService(store domain.DelegateStore, audit domain.AuditStore, logger *slog.Logger) *DelegateService {
	return &DelegateService{
		store:  store,
		audit:  audit,
		logger: logger.With(slog.String("component", "delegate_service")),
	}
}

// Rename sets the display name of a batch manager given as a hex address.
// Timelines pick the name up on their next rebuild.
func (s *DelegateService) Rename(ctx context.Context, manager, name string) (domain.Delegate, error) {
	if !common.IsHexAddress(manager) {
		return domain.Delegate{}, &domain.InputConstraintError{Field: "manager", Reason: "not a hex address"}
	}
	name = strings.TrimSpace(name)
	if name == "" || len(name) > maxDelegateName {
		return domain.Delegate{}, &domain.InputConstraintError{
			Field:  "name",
			Reason: fmt.Sprintf("must be 1-%d characters", maxDelegateName),
		}
	}

	d := domain.Delegate{Manager: common.HexToAddress(manager), Name: name}
	if err := s.store.Upsert(ctx, d); err != nil {
		return domain.Delegate{}, fmt.Errorf("delegate_service: rename: %w", err)
	}
	if s.audit != nil {
		if err := s.audit.Log(ctx, "delegate.renamed", map[string]any{
			"manager": d.Manager.Hex(),
			"name":    name,
		}); err != nil {
			s.logger.WarnContext(ctx, "audit rename failed", slog.String("error", err.Error()))
		}
	}
	return s.store.Get(ctx, d.Manager)
}

// List returns every named delegate.
func (s *DelegateService) List(ctx context.Context) ([]domain.Delegate, error) {
	list, err := s.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("delegate_service: list: %w", err)
	}
	return list, nil
}
