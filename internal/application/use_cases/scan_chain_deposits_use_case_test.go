//go:build !integration

package use_cases

import (
	"context"
	"math/big"
	"testing"
	"time"

	"depositwatch/internal/application/dto"
	"depositwatch/internal/domain/entities"
	valueobjects "depositwatch/internal/domain/value_objects"
	apperrors "depositwatch/internal/shared_kernel/errors"

	"github.com/shopspring/decimal"
)

type scanFixture struct {
	adapter   *fakeAdapter
	blocks    *fakeBlockSource
	addresses *memoryAddressRepository
	ledger    *memoryLedger
	cursors   *memoryCursorRepository
	metrics   *recordingMetrics
	now       time.Time
}

func newETHScanFixture(head int64) *scanFixture {
	blocks := newFakeBlockSource(head)
	adapter := newETHAdapter()
	adapter.blocks = blocks
	return &scanFixture{
		adapter:   adapter,
		blocks:    blocks,
		addresses: newMemoryAddressRepository(),
		ledger:    newMemoryLedger(),
		cursors:   newMemoryCursorRepository(),
		metrics:   newRecordingMetrics(),
		now:       time.Date(2026, 10, 2, 12, 0, 0, 0, time.UTC),
	}
}

func (f *scanFixture) register(t *testing.T, userID string) dto.DepositAddressResource {
	t.Helper()
	useCase := NewGetOrCreateDepositAddressUseCase(newFakeRegistry(f.adapter), f.addresses, fixedClock{now: f.now})
	output, appErr := useCase.Execute(context.Background(), dto.GetOrCreateDepositAddressCommand{
		UserID:          userID,
		Chain:           f.adapter.chain.String(),
		CreateIfMissing: true,
	})
	if appErr != nil {
		t.Fatalf("register %s: %v", userID, appErr)
	}
	return output.Resource
}

func (f *scanFixture) setCursor(position int64) {
	f.cursors.cursors[f.adapter.chain] = entities.ScanCursor{Chain: f.adapter.chain, Position: position}
}

func (f *scanFixture) scan(ctx context.Context, maxBlocks int) (dto.ScanChainDepositsOutput, *apperrors.AppError) {
	useCase := NewScanChainDepositsUseCase(
		newFakeRegistry(f.adapter),
		f.addresses,
		f.ledger,
		f.cursors,
		f.metrics,
		&sequentialIDs{},
		fixedClock{now: f.now},
	)
	return useCase.Execute(ctx, dto.ScanChainDepositsCommand{
		Chain:            f.adapter.chain.String(),
		MaxBlocksPerTick: maxBlocks,
	})
}

func nativeTransfer(txRef string, to string, minor *big.Int) dto.ObservedTransfer {
	return dto.ObservedTransfer{TxRef: txRef, To: to, AmountMinor: minor}
}

func TestScanChainDepositsRecordsEveryMatchAcrossRange(t *testing.T) {
	f := newETHScanFixture(10)
	f.register(t, "alice")
	f.register(t, "bob")
	f.setCursor(0)

	f.blocks.addTransfer(2, nativeTransfer("0x02", aliceETHCanonical, big.NewInt(1)))
	f.blocks.addTransfer(4, nativeTransfer("0x04", "0x000000000000000000000000000000000000dead", big.NewInt(7)))
	f.blocks.addTransfer(7, nativeTransfer("0x07", bobETHCanonical, big.NewInt(3)))
	f.blocks.addTransfer(10, nativeTransfer("0x10", aliceETHCanonical, big.NewInt(5)))

	output, appErr := f.scan(context.Background(), 0)
	if appErr != nil {
		t.Fatalf("expected no error, got %v", appErr)
	}
	if output.BlocksScanned != 10 || output.FromCursor != 0 || output.ToCursor != 10 {
		t.Fatalf("unexpected progress: %+v", output)
	}
	if f.cursors.position(valueobjects.ChainETH) != 10 {
		t.Fatalf("expected cursor 10, got %d", f.cursors.position(valueobjects.ChainETH))
	}
	if output.DepositsRecorded != 3 || output.TransfersMatched != 3 {
		t.Fatalf("expected three deposits, got %+v", output)
	}

	heights := sortedHeights(f.ledger.all())
	if len(heights) != 3 || heights[0] != 2 || heights[1] != 7 || heights[2] != 10 {
		t.Fatalf("unexpected recorded heights: %v", heights)
	}
	if f.metrics.cursors[valueobjects.ChainETH] != 10 || f.metrics.deposits["eth/ETH"] != 3 {
		t.Fatalf("unexpected metrics: %+v %+v", f.metrics.cursors, f.metrics.deposits)
	}

	again, appErr := f.scan(context.Background(), 0)
	if appErr != nil {
		t.Fatalf("expected no error on idle tick, got %v", appErr)
	}
	if again.BlocksScanned != 0 || again.DepositsRecorded != 0 {
		t.Fatalf("expected idle tick, got %+v", again)
	}
}

func TestScanChainDepositsAlicePaidTwoAndAHalfEther(t *testing.T) {
	f := newETHScanFixture(3)
	alice := f.register(t, "alice")
	if alice.DerivationIndex != 0x2bd806c9 {
		t.Fatalf("unexpected alice index %#x", alice.DerivationIndex)
	}
	f.setCursor(0)

	f.blocks.addTransfer(3, nativeTransfer("0xabc", alice.Address, weiFromEther(2, 5)))

	if _, appErr := f.scan(context.Background(), 0); appErr != nil {
		t.Fatalf("expected no error, got %v", appErr)
	}

	rows := f.ledger.all()
	if len(rows) != 1 {
		t.Fatalf("expected exactly one ledger row, got %d", len(rows))
	}
	row := rows[0]
	if row.UserID != "alice" || row.Chain != valueobjects.ChainETH || row.Token != "ETH" || row.TxRef != "0xabc" {
		t.Fatalf("unexpected row: %+v", row)
	}
	if !row.Amount.Equal(decimal.RequireFromString("2.5")) {
		t.Fatalf("expected amount 2.5, got %s", row.Amount)
	}
	if row.BlockHeight != 3 || !row.ObservedAt.Equal(f.now) {
		t.Fatalf("unexpected row position: %+v", row)
	}
}

func TestScanChainDepositsResumesAfterInterruption(t *testing.T) {
	f := newETHScanFixture(10)
	f.register(t, "alice")
	f.setCursor(0)
	for height := int64(1); height <= 10; height++ {
		f.blocks.addTransfer(height, nativeTransfer("0xtx"+big.NewInt(height).String(), aliceETHCanonical, big.NewInt(height)))
	}
	f.blocks.failAt[6] = apperrors.NewUnavailable("chain_rpc_timeout", "timed out", nil)

	_, appErr := f.scan(context.Background(), 0)
	if appErr == nil || appErr.Code != "chain_rpc_timeout" {
		t.Fatalf("expected interruption at block 6, got %+v", appErr)
	}
	if appErr.Details["height"] != int64(6) {
		t.Fatalf("expected failing height in details, got %+v", appErr.Details)
	}
	if f.cursors.position(valueobjects.ChainETH) != 5 {
		t.Fatalf("expected cursor 5 after interruption, got %d", f.cursors.position(valueobjects.ChainETH))
	}
	if len(f.ledger.all()) != 5 {
		t.Fatalf("expected deposits from blocks 1..5, got %d", len(f.ledger.all()))
	}

	delete(f.blocks.failAt, 6)
	f.blocks.requested = nil

	output, appErr := f.scan(context.Background(), 0)
	if appErr != nil {
		t.Fatalf("expected resume to succeed, got %v", appErr)
	}
	requested := f.blocks.requestedHeights()
	if len(requested) != 5 || requested[0] != 6 || requested[4] != 10 {
		t.Fatalf("expected blocks 6..10 to be fetched, got %v", requested)
	}
	if output.DepositsRecorded != 5 || output.Duplicates != 0 {
		t.Fatalf("unexpected resume counters: %+v", output)
	}
	if len(f.ledger.all()) != 10 {
		t.Fatalf("expected ten deposits overall, got %d", len(f.ledger.all()))
	}
}

func TestScanChainDepositsReprocessedBlocksAreNoOps(t *testing.T) {
	f := newETHScanFixture(2)
	f.register(t, "alice")
	f.setCursor(0)
	f.blocks.addTransfer(2, nativeTransfer("0xdup", aliceETHCanonical, big.NewInt(9)))

	if _, appErr := f.scan(context.Background(), 0); appErr != nil {
		t.Fatalf("first scan: %v", appErr)
	}

	// A restarted process that lost its cursor write replays the same block.
	f.cursors.cursors[valueobjects.ChainETH] = entities.ScanCursor{Chain: valueobjects.ChainETH, Position: 1}
	output, appErr := f.scan(context.Background(), 0)
	if appErr != nil {
		t.Fatalf("second scan: %v", appErr)
	}
	if output.Duplicates != 1 || output.DepositsRecorded != 0 {
		t.Fatalf("expected one duplicate, got %+v", output)
	}
	if len(f.ledger.all()) != 1 {
		t.Fatalf("expected one ledger row, got %d", len(f.ledger.all()))
	}
}

func TestScanChainDepositsSkipsZeroValueAndKeepsMultipleTransfers(t *testing.T) {
	f := newETHScanFixture(1)
	f.register(t, "alice")
	f.setCursor(0)
	f.blocks.addTransfer(1, nativeTransfer("0xzero", aliceETHCanonical, big.NewInt(0)))
	f.blocks.addTransfer(1, nativeTransfer("0xa", aliceETHCanonical, big.NewInt(10)))
	f.blocks.addTransfer(1, dto.ObservedTransfer{
		TxRef:       "0xb:3",
		To:          aliceETHCanonical,
		Token:       "USDC",
		Decimals:    6,
		AmountMinor: big.NewInt(1500000),
	})

	output, appErr := f.scan(context.Background(), 0)
	if appErr != nil {
		t.Fatalf("expected no error, got %v", appErr)
	}
	if output.DepositsRecorded != 2 || output.TransfersMatched != 2 {
		t.Fatalf("expected two deposits, got %+v", output)
	}

	rows := f.ledger.all()
	if rows[1].Token != "USDC" || !rows[1].Amount.Equal(decimal.RequireFromString("1.5")) {
		t.Fatalf("unexpected token deposit: %+v", rows[1])
	}
}

func TestScanChainDepositsOnlyMatchesRegisteredAddresses(t *testing.T) {
	f := newETHScanFixture(2)
	f.setCursor(0)
	f.blocks.addTransfer(1, nativeTransfer("0xearly", aliceETHCanonical, big.NewInt(1)))

	if _, appErr := f.scan(context.Background(), 1); appErr != nil {
		t.Fatalf("first scan: %v", appErr)
	}
	if len(f.ledger.all()) != 0 {
		t.Fatalf("expected no deposits before registration")
	}

	f.register(t, "alice")
	f.blocks.addTransfer(2, nativeTransfer("0xlate", aliceETHCanonical, big.NewInt(1)))
	if _, appErr := f.scan(context.Background(), 1); appErr != nil {
		t.Fatalf("second scan: %v", appErr)
	}

	rows := f.ledger.all()
	if len(rows) != 1 || rows[0].TxRef != "0xlate" {
		t.Fatalf("expected only the post-registration transfer, got %+v", rows)
	}
}

func TestScanChainDepositsCapsBlocksPerTick(t *testing.T) {
	f := newETHScanFixture(100)
	f.setCursor(10)

	output, appErr := f.scan(context.Background(), 25)
	if appErr != nil {
		t.Fatalf("expected no error, got %v", appErr)
	}
	if output.BlocksScanned != 25 || output.ToCursor != 35 {
		t.Fatalf("expected 25 blocks to cursor 35, got %+v", output)
	}
}

func TestScanChainDepositsInitializesAtHead(t *testing.T) {
	f := newETHScanFixture(1200)

	output, appErr := f.scan(context.Background(), 0)
	if appErr != nil {
		t.Fatalf("expected no error, got %v", appErr)
	}
	if !output.Initialized || output.ToCursor != 1200 || output.BlocksScanned != 0 {
		t.Fatalf("expected initialization at head, got %+v", output)
	}
	if len(f.blocks.requestedHeights()) != 0 {
		t.Fatalf("expected no history replay, got %v", f.blocks.requestedHeights())
	}
}

func TestScanChainDepositsInitializesAtConfiguredStartHeight(t *testing.T) {
	f := newETHScanFixture(12)
	useCase := NewScanChainDepositsUseCase(newFakeRegistry(f.adapter), f.addresses, f.ledger, f.cursors, nil, nil, fixedClock{now: f.now})
	start := int64(10)

	output, appErr := useCase.Execute(context.Background(), dto.ScanChainDepositsCommand{Chain: "eth", StartHeight: &start})
	if appErr != nil {
		t.Fatalf("expected no error, got %v", appErr)
	}
	if !output.Initialized || output.FromCursor != 9 || output.ToCursor != 12 || output.BlocksScanned != 3 {
		t.Fatalf("unexpected output: %+v", output)
	}
}

func TestScanChainDepositsStopsCleanlyOnCancellation(t *testing.T) {
	f := newETHScanFixture(10)
	f.setCursor(0)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.blocks.onFetch = func(height int64) {
		if height == 4 {
			cancel()
		}
	}
	f.blocks.failAt[4] = apperrors.NewUnavailable("chain_rpc_timeout", "context canceled", nil)

	output, appErr := f.scan(ctx, 0)
	if appErr != nil {
		t.Fatalf("expected cancellation to end the tick without error, got %v", appErr)
	}
	if output.ToCursor != 3 || f.cursors.position(valueobjects.ChainETH) != 3 {
		t.Fatalf("expected cursor to stop at last complete block 3, got %+v", output)
	}
}

func TestScanChainDepositsHeadFailureKeepsCursor(t *testing.T) {
	f := newETHScanFixture(10)
	f.setCursor(4)
	f.blocks.headErr = apperrors.NewUnavailable("chain_rpc_unavailable", "connection refused", nil)

	_, appErr := f.scan(context.Background(), 0)
	if appErr == nil || appErr.Type != apperrors.TypeUnavailable {
		t.Fatalf("expected unavailable error, got %+v", appErr)
	}
	if f.cursors.position(valueobjects.ChainETH) != 4 {
		t.Fatalf("expected cursor to stay at 4")
	}
}

func TestScanChainDepositsLedgerFailureDoesNotAdvance(t *testing.T) {
	f := newETHScanFixture(3)
	f.register(t, "alice")
	f.setCursor(0)
	f.blocks.addTransfer(2, nativeTransfer("0x2", aliceETHCanonical, big.NewInt(1)))
	f.ledger.failErr = apperrors.NewInternal("deposit_ledger_write_failed", "disk full", nil)

	_, appErr := f.scan(context.Background(), 0)
	if appErr == nil || appErr.Code != "deposit_ledger_write_failed" {
		t.Fatalf("expected ledger failure, got %+v", appErr)
	}
	if f.cursors.position(valueobjects.ChainETH) != 1 {
		t.Fatalf("expected cursor to stop at 1, got %d", f.cursors.position(valueobjects.ChainETH))
	}
}

func TestScanChainDepositsValidatesCommand(t *testing.T) {
	f := newETHScanFixture(1)
	useCase := NewScanChainDepositsUseCase(newFakeRegistry(f.adapter), f.addresses, f.ledger, f.cursors, nil, nil, nil)

	_, appErr := useCase.Execute(context.Background(), dto.ScanChainDepositsCommand{Chain: "eth", MaxBlocksPerTick: -1})
	if appErr == nil || appErr.Code != "scan_max_blocks_invalid" {
		t.Fatalf("expected scan_max_blocks_invalid, got %+v", appErr)
	}

	_, appErr = useCase.Execute(context.Background(), dto.ScanChainDepositsCommand{Chain: "sol"})
	if appErr == nil || appErr.Code != "unsupported_chain" {
		t.Fatalf("expected unsupported_chain, got %+v", appErr)
	}
}

func newXRPFixture(history *fakeHistorySource) *scanFixture {
	adapter := &fakeAdapter{
		chain:   valueobjects.ChainXRP,
		derive:  memoDerive(xrpSharedAddress),
		history: history,
		shared:  xrpSharedAddress,
	}
	return &scanFixture{
		adapter:   adapter,
		addresses: newMemoryAddressRepository(),
		ledger:    newMemoryLedger(),
		cursors:   newMemoryCursorRepository(),
		metrics:   newRecordingMetrics(),
		now:       time.Date(2026, 10, 2, 12, 0, 0, 0, time.UTC),
	}
}

func TestScanChainDepositsAttributesMemoToOwner(t *testing.T) {
	aliceMemo := valueobjects.NewDerivationIndex("alice").Uint32()
	strangerMemo := uint32(42)
	history := &fakeHistorySource{
		pages: map[string]dto.AccountHistoryPage{
			"": {
				Transfers: []dto.ObservedTransfer{
					{TxRef: "A1", To: xrpSharedAddress, Memo: &aliceMemo, AmountMinor: big.NewInt(1000001), Height: 95},
					{TxRef: "S1", To: xrpSharedAddress, Memo: &strangerMemo, AmountMinor: big.NewInt(5), Height: 96},
					{TxRef: "N1", To: xrpSharedAddress, AmountMinor: big.NewInt(5), Height: 96},
				},
				UpperBound: 100,
			},
		},
	}
	f := newXRPFixture(history)
	alice := f.register(t, "alice")
	bob := f.register(t, "bob")
	if alice.Address != bob.Address || *alice.Memo == *bob.Memo {
		t.Fatalf("expected shared address with distinct memos")
	}
	f.setCursor(90)

	output, appErr := f.scan(context.Background(), 0)
	if appErr != nil {
		t.Fatalf("expected no error, got %v", appErr)
	}
	if output.ToCursor != 100 || f.cursors.position(valueobjects.ChainXRP) != 100 {
		t.Fatalf("expected cursor 100, got %+v", output)
	}
	if history.queries[0].SinceCursor != 90 || history.queries[0].Address != xrpSharedAddress {
		t.Fatalf("unexpected history query: %+v", history.queries[0])
	}

	rows := f.ledger.all()
	if len(rows) != 1 {
		t.Fatalf("expected one attributed deposit, got %d", len(rows))
	}
	if rows[0].UserID != "alice" || rows[0].Token != "XRP" || !rows[0].Amount.Equal(decimal.RequireFromString("1.000001")) {
		t.Fatalf("unexpected deposit: %+v", rows[0])
	}
	if rows[0].Memo == nil || *rows[0].Memo != aliceMemo || rows[0].BlockHeight != 95 {
		t.Fatalf("unexpected deposit position: %+v", rows[0])
	}

	bobRows, _ := f.ledger.ListByUser(context.Background(), "bob", 10)
	if len(bobRows) != 0 {
		t.Fatalf("expected nothing attributed to bob")
	}
}

func TestScanChainDepositsFollowsHistoryMarkers(t *testing.T) {
	bobMemo := valueobjects.NewDerivationIndex("bob").Uint32()
	history := &fakeHistorySource{
		pages: map[string]dto.AccountHistoryPage{
			"":   {Transfers: []dto.ObservedTransfer{{TxRef: "B1", Memo: &bobMemo, AmountMinor: big.NewInt(1)}}, Marker: "m1", UpperBound: 120},
			"m1": {Transfers: []dto.ObservedTransfer{{TxRef: "B2", Memo: &bobMemo, AmountMinor: big.NewInt(2)}}, UpperBound: 120},
		},
	}
	f := newXRPFixture(history)
	f.register(t, "bob")
	f.setCursor(100)

	output, appErr := f.scan(context.Background(), 0)
	if appErr != nil {
		t.Fatalf("expected no error, got %v", appErr)
	}
	if len(history.queries) != 2 || history.queries[1].Marker != "m1" {
		t.Fatalf("expected two paged queries, got %+v", history.queries)
	}
	if output.DepositsRecorded != 2 || output.ToCursor != 120 || output.BlocksScanned != 20 {
		t.Fatalf("unexpected output: %+v", output)
	}
}

func TestScanChainDepositsRejectsStalledMarker(t *testing.T) {
	history := &fakeHistorySource{
		pages: map[string]dto.AccountHistoryPage{
			"":   {Marker: "m1", UpperBound: 120},
			"m1": {Marker: "m1", UpperBound: 120},
		},
	}
	f := newXRPFixture(history)
	f.setCursor(100)

	_, appErr := f.scan(context.Background(), 0)
	if appErr == nil || appErr.Code != "chain_history_marker_stalled" {
		t.Fatalf("expected stalled marker error, got %+v", appErr)
	}
	if f.cursors.position(valueobjects.ChainXRP) != 100 {
		t.Fatalf("expected cursor to stay at 100")
	}
}

func TestScanChainDepositsInitializesHistoryCursor(t *testing.T) {
	f := newXRPFixture(&fakeHistorySource{current: 88000})

	output, appErr := f.scan(context.Background(), 0)
	if appErr != nil {
		t.Fatalf("expected no error, got %v", appErr)
	}
	if !output.Initialized || output.ToCursor != 88000 {
		t.Fatalf("expected cursor at validated ledger, got %+v", output)
	}
}
