package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/troveledger/internal/domain"
)

func TestRenameDelegate(t *testing.T) {
	require := require.New(t)

	store := &fakeDelegates{byManager: map[common.Address]domain.Delegate{}}
	audit := &fakeAudit{}
	svc := NewDelegateService(store, audit, quietLogger())

	got, err := svc.Rename(context.Background(), manager.Hex(), "  Alpha Rates ")
	require.NoError(err)
	require.Equal("Alpha Rates", got.Name)
	require.Equal(manager, got.Manager)
	require.Len(audit.entries, 1)
	require.Equal("delegate.renamed", audit.entries[0].Event)

	list, err := svc.List(context.Background())
	require.NoError(err)
	require.Len(list, 1)
}

func TestRenameDelegateRejectsBadInput(t *testing.T) {
	require := require.New(t)

	svc := NewDelegateService(&fakeDelegates{byManager: map[common.Address]domain.Delegate{}}, nil, quietLogger())
	ctx := context.Background()

	_, err := svc.Rename(ctx, "not-an-address", "x")
	var ice *domain.InputConstraintError
	require.True(errors.As(err, &ice))
	require.Equal("manager", ice.Field)

	_, err = svc.Rename(ctx, manager.Hex(), "   ")
	require.True(errors.Is(err, domain.ErrInputConstraint))

	_, err = svc.Rename(ctx, manager.Hex(), strings.Repeat("n", maxDelegateName+1))
	require.True(errors.Is(err, domain.ErrInputConstraint))
}
