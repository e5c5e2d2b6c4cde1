//go:build !integration

package use_cases

import (
	"context"
	"math/big"
	"sort"
	"strconv"
	"sync"
	"time"

	"depositwatch/internal/application/dto"
	portsout "depositwatch/internal/application/ports/out"
	"depositwatch/internal/domain/entities"
	valueobjects "depositwatch/internal/domain/value_objects"
	apperrors "depositwatch/internal/shared_kernel/errors"
)

type fakeRegistry struct {
	adapters map[valueobjects.Chain]portsout.ChainAdapter
	order    []valueobjects.Chain
}

func newFakeRegistry(adapters ...portsout.ChainAdapter) *fakeRegistry {
	registry := &fakeRegistry{adapters: map[valueobjects.Chain]portsout.ChainAdapter{}}
	for _, adapter := range adapters {
		registry.adapters[adapter.Chain()] = adapter
		registry.order = append(registry.order, adapter.Chain())
	}
	return registry
}

func (r *fakeRegistry) Adapter(chain valueobjects.Chain) (portsout.ChainAdapter, *apperrors.AppError) {
	adapter, ok := r.adapters[chain]
	if !ok {
		return nil, apperrors.NewValidation(
			"unsupported_chain",
			"chain not supported",
			map[string]any{"chain": chain.String()},
		)
	}
	return adapter, nil
}

func (r *fakeRegistry) Chains() []valueobjects.Chain {
	return append([]valueobjects.Chain(nil), r.order...)
}

type fakeAdapter struct {
	chain   valueobjects.Chain
	derive  func(userID string) (portsout.DerivedAddress, *apperrors.AppError)
	blocks  *fakeBlockSource
	history *fakeHistorySource
	shared  string
}

func (a *fakeAdapter) Chain() valueobjects.Chain {
	return a.chain
}

func (a *fakeAdapter) DeriveAddress(userID string) (portsout.DerivedAddress, *apperrors.AppError) {
	if a.derive == nil {
		return portsout.DerivedAddress{}, apperrors.NewInternal("derive_missing", "no derive func", nil)
	}
	return a.derive(userID)
}

func (a *fakeAdapter) BlockSource() (portsout.BlockSource, bool) {
	if a.blocks == nil {
		return nil, false
	}
	return a.blocks, true
}

func (a *fakeAdapter) AccountHistorySource() (portsout.AccountHistorySource, bool) {
	if a.history == nil {
		return nil, false
	}
	return a.history, true
}

func (a *fakeAdapter) SharedAddress() (string, bool) {
	return a.shared, a.shared != ""
}

// staticEVMDerive maps every user to a fixed canonical address.
func staticEVMDerive(chain valueobjects.Chain, addresses map[string]string) func(string) (portsout.DerivedAddress, *apperrors.AppError) {
	return func(userID string) (portsout.DerivedAddress, *apperrors.AppError) {
		canonical, ok := addresses[userID]
		if !ok {
			return portsout.DerivedAddress{}, apperrors.NewInternal("unknown_user", "no address for user", nil)
		}
		return portsout.DerivedAddress{
			Address:          valueobjects.FormatAddress(chain, canonical),
			AddressCanonical: canonical,
			DerivationIndex:  valueobjects.NewDerivationIndex(userID),
		}, nil
	}
}

func memoDerive(shared string) func(string) (portsout.DerivedAddress, *apperrors.AppError) {
	return func(userID string) (portsout.DerivedAddress, *apperrors.AppError) {
		index := valueobjects.NewDerivationIndex(userID)
		memo := index.Uint32()
		return portsout.DerivedAddress{
			Address:          shared,
			AddressCanonical: shared,
			Memo:             &memo,
			DerivationIndex:  index,
		}, nil
	}
}

type fakeBlockSource struct {
	mu        sync.Mutex
	head      int64
	headErr   *apperrors.AppError
	blocks    map[int64]dto.ObservedBlock
	failAt    map[int64]*apperrors.AppError
	onFetch   func(height int64)
	requested []int64
}

func newFakeBlockSource(head int64) *fakeBlockSource {
	return &fakeBlockSource{
		head:   head,
		blocks: map[int64]dto.ObservedBlock{},
		failAt: map[int64]*apperrors.AppError{},
	}
}

func (s *fakeBlockSource) CurrentHeight(_ context.Context) (int64, *apperrors.AppError) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.head, s.headErr
}

func (s *fakeBlockSource) Block(_ context.Context, height int64) (dto.ObservedBlock, *apperrors.AppError) {
	s.mu.Lock()
	s.requested = append(s.requested, height)
	onFetch := s.onFetch
	failure := s.failAt[height]
	block, ok := s.blocks[height]
	s.mu.Unlock()

	if onFetch != nil {
		onFetch(height)
	}
	if failure != nil {
		return dto.ObservedBlock{}, failure
	}
	if !ok {
		block = dto.ObservedBlock{Height: height}
	}
	return block, nil
}

func (s *fakeBlockSource) addTransfer(height int64, transfer dto.ObservedTransfer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	block := s.blocks[height]
	block.Height = height
	block.Transfers = append(block.Transfers, transfer)
	s.blocks[height] = block
}

func (s *fakeBlockSource) requestedHeights() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int64(nil), s.requested...)
}

type fakeHistorySource struct {
	mu      sync.Mutex
	current int64
	pages   map[string]dto.AccountHistoryPage
	queries []dto.AccountHistoryQuery
}

func (s *fakeHistorySource) CurrentCursor(_ context.Context) (int64, *apperrors.AppError) {
	return s.current, nil
}

func (s *fakeHistorySource) AccountTransactions(_ context.Context, query dto.AccountHistoryQuery) (dto.AccountHistoryPage, *apperrors.AppError) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries = append(s.queries, query)
	return s.pages[query.Marker], nil
}

type memoryAddressRepository struct {
	mu      sync.Mutex
	rows    map[string]entities.DepositAddress
	order   []string
	inserts int
}

func newMemoryAddressRepository() *memoryAddressRepository {
	return &memoryAddressRepository{rows: map[string]entities.DepositAddress{}}
}

func addressKey(userID string, chain valueobjects.Chain) string {
	return chain.String() + "/" + userID
}

func (r *memoryAddressRepository) Find(_ context.Context, userID string, chain valueobjects.Chain) (entities.DepositAddress, bool, *apperrors.AppError) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[addressKey(userID, chain)]
	return row, ok, nil
}

func (r *memoryAddressRepository) GetOrCreate(_ context.Context, candidate entities.DepositAddress) (entities.DepositAddress, bool, *apperrors.AppError) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := addressKey(candidate.UserID, candidate.Chain)
	if existing, ok := r.rows[key]; ok {
		return existing, false, nil
	}
	r.rows[key] = candidate
	r.order = append(r.order, key)
	r.inserts++
	return candidate, true, nil
}

func (r *memoryAddressRepository) ListByChain(_ context.Context, chain valueobjects.Chain) ([]entities.DepositAddress, *apperrors.AppError) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []entities.DepositAddress{}
	for _, key := range r.order {
		if row := r.rows[key]; row.Chain == chain {
			out = append(out, row)
		}
	}
	return out, nil
}

type memoryLedger struct {
	mu      sync.Mutex
	rows    []entities.Deposit
	byRef   map[string]struct{}
	failErr *apperrors.AppError
}

func newMemoryLedger() *memoryLedger {
	return &memoryLedger{byRef: map[string]struct{}{}}
}

func (l *memoryLedger) Record(_ context.Context, deposit entities.Deposit) (bool, *apperrors.AppError) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failErr != nil {
		return false, l.failErr
	}
	key := deposit.Chain.String() + "/" + deposit.TxRef
	if _, exists := l.byRef[key]; exists {
		return false, nil
	}
	l.byRef[key] = struct{}{}
	l.rows = append(l.rows, deposit)
	return true, nil
}

func (l *memoryLedger) ListByUser(_ context.Context, userID string, limit int) ([]entities.Deposit, *apperrors.AppError) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := []entities.Deposit{}
	for _, row := range l.rows {
		if row.UserID != userID {
			continue
		}
		out = append(out, row)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (l *memoryLedger) all() []entities.Deposit {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]entities.Deposit(nil), l.rows...)
}

type memoryCursorRepository struct {
	mu      sync.Mutex
	cursors map[valueobjects.Chain]entities.ScanCursor
	saves   int
}

func newMemoryCursorRepository() *memoryCursorRepository {
	return &memoryCursorRepository{cursors: map[valueobjects.Chain]entities.ScanCursor{}}
}

func (r *memoryCursorRepository) Get(_ context.Context, chain valueobjects.Chain) (entities.ScanCursor, bool, *apperrors.AppError) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cursor, ok := r.cursors[chain]
	return cursor, ok, nil
}

func (r *memoryCursorRepository) Save(_ context.Context, cursor entities.ScanCursor) *apperrors.AppError {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saves++
	if existing, ok := r.cursors[cursor.Chain]; ok && existing.Position >= cursor.Position {
		return nil
	}
	r.cursors[cursor.Chain] = cursor
	return nil
}

func (r *memoryCursorRepository) position(chain valueobjects.Chain) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cursors[chain].Position
}

type recordingMetrics struct {
	mu       sync.Mutex
	cursors  map[valueobjects.Chain]int64
	deposits map[string]int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{cursors: map[valueobjects.Chain]int64{}, deposits: map[string]int{}}
}

func (m *recordingMetrics) CursorAdvanced(chain valueobjects.Chain, position int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cursors[chain] = position
}

func (m *recordingMetrics) DepositRecorded(chain valueobjects.Chain, token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deposits[chain.String()+"/"+token]++
}

func (m *recordingMetrics) TickFailed(valueobjects.Chain, string) {}

type fixedClock struct {
	now time.Time
}

func (c fixedClock) NowUTC() time.Time {
	return c.now
}

type sequentialIDs struct {
	mu   sync.Mutex
	next int
}

func (s *sequentialIDs) NewID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	return "dep-" + strconv.Itoa(s.next)
}

func weiFromEther(whole int64, tenths int64) *big.Int {
	wei := new(big.Int).Mul(big.NewInt(whole*10+tenths), new(big.Int).Exp(big.NewInt(10), big.NewInt(17), nil))
	return wei
}

func sortedHeights(deposits []entities.Deposit) []int64 {
	heights := make([]int64, 0, len(deposits))
	for _, deposit := range deposits {
		heights = append(heights, deposit.BlockHeight)
	}
	sort.Slice(heights, func(i, j int) bool { return heights[i] < heights[j] })
	return heights
}
