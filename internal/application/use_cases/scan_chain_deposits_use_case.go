package use_cases

import (
	"context"
	"strconv"
	"time"

	"depositwatch/internal/application/dto"
	portsin "depositwatch/internal/application/ports/in"
	portsout "depositwatch/internal/application/ports/out"
	"depositwatch/internal/domain/entities"
	"depositwatch/internal/domain/policies"
	valueobjects "depositwatch/internal/domain/value_objects"
	apperrors "depositwatch/internal/shared_kernel/errors"
)

type scanChainDepositsUseCase struct {
	registry  portsout.ChainRegistry
	addresses portsout.DepositAddressRepository
	ledger    portsout.DepositLedgerRepository
	cursors   portsout.ScanCursorRepository
	metrics   portsout.ScanMetricsRecorder
	ids       IDGenerator
	clock     Clock
}

func NewScanChainDepositsUseCase(
	registry portsout.ChainRegistry,
	addresses portsout.DepositAddressRepository,
	ledger portsout.DepositLedgerRepository,
	cursors portsout.ScanCursorRepository,
	metrics portsout.ScanMetricsRecorder,
	ids IDGenerator,
	clock Clock,
) portsin.ScanChainDepositsUseCase {
	if metrics == nil {
		metrics = portsout.NoopScanMetricsRecorder()
	}
	if ids == nil {
		ids = NewUUIDGenerator()
	}
	if clock == nil {
		clock = NewSystemClock()
	}

	return &scanChainDepositsUseCase{
		registry:  registry,
		addresses: addresses,
		ledger:    ledger,
		cursors:   cursors,
		metrics:   metrics,
		ids:       ids,
		clock:     clock,
	}
}

// scanTick carries the state of one Execute call.
type scanTick struct {
	chain   valueobjects.Chain
	now     time.Time
	cursor  entities.ScanCursor
	watched map[string]entities.DepositAddress
	output  dto.ScanChainDepositsOutput
}

func (u *scanChainDepositsUseCase) Execute(
	ctx context.Context,
	command dto.ScanChainDepositsCommand,
) (dto.ScanChainDepositsOutput, *apperrors.AppError) {
	if appErr := u.validateDependencies(); appErr != nil {
		return dto.ScanChainDepositsOutput{}, appErr
	}
	if command.MaxBlocksPerTick < 0 {
		return dto.ScanChainDepositsOutput{}, apperrors.NewValidation(
			"scan_max_blocks_invalid",
			"max blocks per tick must not be negative",
			map[string]any{"max_blocks_per_tick": command.MaxBlocksPerTick},
		)
	}
	if command.StartHeight != nil && *command.StartHeight < 0 {
		return dto.ScanChainDepositsOutput{}, apperrors.NewValidation(
			"scan_start_height_invalid",
			"start height must not be negative",
			map[string]any{"start_height": *command.StartHeight},
		)
	}

	chain, appErr := valueobjects.ParseChain(command.Chain)
	if appErr != nil {
		return dto.ScanChainDepositsOutput{}, appErr
	}
	adapter, appErr := u.registry.Adapter(chain)
	if appErr != nil {
		return dto.ScanChainDepositsOutput{}, appErr
	}

	now := command.Now
	if now.IsZero() {
		now = u.clock.NowUTC()
	}

	tick := &scanTick{
		chain:  chain,
		now:    now,
		output: dto.ScanChainDepositsOutput{Chain: chain.String()},
	}

	cursor, found, appErr := u.cursors.Get(ctx, chain)
	if appErr != nil {
		return tick.output, appErr
	}
	if !found {
		position, initErr := u.initialPosition(ctx, adapter, command.StartHeight)
		if initErr != nil {
			return tick.output, initErr
		}
		cursor = entities.ScanCursor{Chain: chain, Position: position, UpdatedAt: now}
		if saveErr := u.cursors.Save(ctx, cursor); saveErr != nil {
			return tick.output, saveErr
		}
		u.metrics.CursorAdvanced(chain, position)
		tick.output.Initialized = true
	}
	tick.cursor = cursor
	tick.output.FromCursor = cursor.Position
	tick.output.ToCursor = cursor.Position

	watched, appErr := u.loadWatched(ctx, chain)
	if appErr != nil {
		return tick.output, appErr
	}
	tick.watched = watched

	if source, ok := adapter.BlockSource(); ok {
		return u.scanBlocks(ctx, tick, source, command.MaxBlocksPerTick)
	}
	if history, ok := adapter.AccountHistorySource(); ok {
		sharedAddress, _ := adapter.SharedAddress()
		return u.scanAccountHistory(ctx, tick, history, sharedAddress)
	}

	return tick.output, apperrors.NewInternal(
		"chain_observation_unsupported",
		"chain adapter exposes no observation source",
		map[string]any{"chain": chain.String()},
	)
}

func (u *scanChainDepositsUseCase) validateDependencies() *apperrors.AppError {
	switch {
	case u.registry == nil:
		return apperrors.NewInternal("chain_registry_missing", "chain registry is required", nil)
	case u.addresses == nil:
		return apperrors.NewInternal("deposit_address_repository_missing", "deposit address repository is required", nil)
	case u.ledger == nil:
		return apperrors.NewInternal("deposit_ledger_repository_missing", "deposit ledger repository is required", nil)
	case u.cursors == nil:
		return apperrors.NewInternal("scan_cursor_repository_missing", "scan cursor repository is required", nil)
	}
	return nil
}

// initialPosition is the cursor for a chain that was never scanned: one below
// the configured start height, otherwise the current head so that history
// before the first run is not replayed.
func (u *scanChainDepositsUseCase) initialPosition(
	ctx context.Context,
	adapter portsout.ChainAdapter,
	startHeight *int64,
) (int64, *apperrors.AppError) {
	if startHeight != nil {
		return *startHeight - 1, nil
	}
	if source, ok := adapter.BlockSource(); ok {
		return source.CurrentHeight(ctx)
	}
	if history, ok := adapter.AccountHistorySource(); ok {
		return history.CurrentCursor(ctx)
	}
	return 0, apperrors.NewInternal(
		"chain_observation_unsupported",
		"chain adapter exposes no observation source",
		map[string]any{"chain": adapter.Chain().String()},
	)
}

func (u *scanChainDepositsUseCase) loadWatched(
	ctx context.Context,
	chain valueobjects.Chain,
) (map[string]entities.DepositAddress, *apperrors.AppError) {
	addresses, appErr := u.addresses.ListByChain(ctx, chain)
	if appErr != nil {
		return nil, appErr
	}

	watched := make(map[string]entities.DepositAddress, len(addresses))
	for _, address := range addresses {
		key := address.MatchKey()
		// On an index collision the earliest registration keeps the memo.
		if _, exists := watched[key]; exists {
			continue
		}
		watched[key] = address
	}
	return watched, nil
}

func (u *scanChainDepositsUseCase) scanBlocks(
	ctx context.Context,
	tick *scanTick,
	source portsout.BlockSource,
	maxBlocks int,
) (dto.ScanChainDepositsOutput, *apperrors.AppError) {
	head, appErr := source.CurrentHeight(ctx)
	if appErr != nil {
		return tick.output, abortOnCancel(ctx, appErr)
	}

	scanRange := policies.NextScanRange(tick.cursor.Position, head, maxBlocks)
	if scanRange.Empty {
		return tick.output, nil
	}

	for height := scanRange.From; height <= scanRange.To; height++ {
		if ctx.Err() != nil {
			return tick.output, nil
		}

		block, blockErr := source.Block(ctx, height)
		if blockErr != nil {
			return tick.output, abortOnCancel(ctx, blockErr.WithDetail("height", height))
		}
		if block.Height == 0 {
			block.Height = height
		}

		if recordErr := u.recordTransfers(ctx, tick, block.Transfers, block.Height); recordErr != nil {
			return tick.output, abortOnCancel(ctx, recordErr)
		}
		if advanceErr := u.advance(ctx, tick, height); advanceErr != nil {
			return tick.output, abortOnCancel(ctx, advanceErr)
		}
		tick.output.BlocksScanned++
	}

	return tick.output, nil
}

func (u *scanChainDepositsUseCase) scanAccountHistory(
	ctx context.Context,
	tick *scanTick,
	history portsout.AccountHistorySource,
	sharedAddress string,
) (dto.ScanChainDepositsOutput, *apperrors.AppError) {
	if sharedAddress == "" {
		return tick.output, apperrors.NewInternal(
			"shared_address_missing",
			"account history scanning requires a shared address",
			map[string]any{"chain": tick.chain.String()},
		)
	}

	query := dto.AccountHistoryQuery{Address: sharedAddress, SinceCursor: tick.cursor.Position}
	upperBound := tick.cursor.Position
	for {
		if ctx.Err() != nil {
			return tick.output, nil
		}

		page, appErr := history.AccountTransactions(ctx, query)
		if appErr != nil {
			return tick.output, abortOnCancel(ctx, appErr)
		}
		if recordErr := u.recordTransfers(ctx, tick, page.Transfers, 0); recordErr != nil {
			return tick.output, abortOnCancel(ctx, recordErr)
		}
		if page.UpperBound > upperBound {
			upperBound = page.UpperBound
		}

		if page.Marker == "" {
			break
		}
		if page.Marker == query.Marker {
			return tick.output, apperrors.NewUnavailable(
				"chain_history_marker_stalled",
				"account history pagination did not advance",
				map[string]any{"chain": tick.chain.String(), "marker": page.Marker},
			)
		}
		query.Marker = page.Marker
	}

	if upperBound > tick.cursor.Position {
		tick.output.BlocksScanned = int(upperBound - tick.cursor.Position)
	}
	if appErr := u.advance(ctx, tick, upperBound); appErr != nil {
		return tick.output, abortOnCancel(ctx, appErr)
	}
	return tick.output, nil
}

func (u *scanChainDepositsUseCase) recordTransfers(
	ctx context.Context,
	tick *scanTick,
	transfers []dto.ObservedTransfer,
	blockHeight int64,
) *apperrors.AppError {
	for _, transfer := range transfers {
		if transfer.AmountMinor == nil || transfer.AmountMinor.Sign() <= 0 {
			continue
		}
		owner, matched := tick.match(transfer)
		if !matched {
			continue
		}
		tick.output.TransfersMatched++

		token := transfer.Token
		decimals := transfer.Decimals
		if token == "" {
			token = tick.chain.NativeSymbol()
			decimals = tick.chain.NativeDecimals()
		}
		height := transfer.Height
		if height == 0 {
			height = blockHeight
		}

		inserted, appErr := u.ledger.Record(ctx, entities.Deposit{
			ID:          u.ids.NewID(),
			UserID:      owner.UserID,
			Chain:       tick.chain,
			Token:       token,
			Amount:      valueobjects.AmountFromMinor(transfer.AmountMinor, decimals),
			TxRef:       transfer.TxRef,
			Address:     owner.Address,
			Memo:        transfer.Memo,
			BlockHeight: height,
			ObservedAt:  tick.now,
		})
		if appErr != nil {
			return appErr
		}
		if !inserted {
			tick.output.Duplicates++
			continue
		}
		tick.output.DepositsRecorded++
		u.metrics.DepositRecorded(tick.chain, token)
	}
	return nil
}

func (u *scanChainDepositsUseCase) advance(ctx context.Context, tick *scanTick, position int64) *apperrors.AppError {
	advanced, moved := tick.cursor.Advance(position, tick.now)
	if !moved {
		return nil
	}
	if appErr := u.cursors.Save(ctx, advanced); appErr != nil {
		return appErr
	}
	tick.cursor = advanced
	tick.output.ToCursor = advanced.Position
	u.metrics.CursorAdvanced(tick.chain, advanced.Position)
	return nil
}

func (t *scanTick) match(transfer dto.ObservedTransfer) (entities.DepositAddress, bool) {
	if t.chain.UsesSharedAddress() {
		if transfer.Memo == nil {
			return entities.DepositAddress{}, false
		}
		owner, ok := t.watched[strconv.FormatUint(uint64(*transfer.Memo), 10)]
		return owner, ok
	}

	canonical, appErr := valueobjects.NormalizeAddress(t.chain, transfer.To)
	if appErr != nil {
		return entities.DepositAddress{}, false
	}
	owner, ok := t.watched[canonical]
	return owner, ok
}

// abortOnCancel drops errors caused by shutdown: the cursor already marks the
// last complete block, so the next run resumes there.
func abortOnCancel(ctx context.Context, appErr *apperrors.AppError) *apperrors.AppError {
	if ctx.Err() != nil {
		return nil
	}
	return appErr
}
