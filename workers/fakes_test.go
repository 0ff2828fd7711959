package workers

import (
	"context"
	"database/sql/driver"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"gorealisbridge/backoff"
	"gorealisbridge/decoder"
	"gorealisbridge/journal"
	"gorealisbridge/journal/sqlstore"
	"gorealisbridge/notify"
	"gorealisbridge/types"
)

const (
	alice  = "5GrwvaEF5zXb26Fz9rcQpDWS57CtERHpNehXCPcNoHGKutQY"
	bscAcc = "0x6D1eee1CFeEAb71A4d7Fcc73f0EF67A9CA2cD943"

	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

func newTestJournal(t *testing.T, store journal.Store) *journal.Journal {
	t.Helper()
	if store == nil {
		s, err := sqlstore.OpenInMemory()
		require.NoError(t, err)
		store = s
	}
	j := journal.New(store, backoff.Policy{Attempts: 2, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond}, zerolog.Nop())
	t.Cleanup(func() { j.Close() })
	return j
}

// tokenRaw is a BSC TransferToRealis log as the client hands it over.
func tokenRaw(hash string, height uint64) types.RawEvent {
	return types.RawEvent{
		Chain:       types.BSC,
		BlockHeight: &height,
		TxHash:      hash,
		Method:      decoder.BSCTransferToRealis,
		Params:      []string{alice, "1000000000000", bscAcc},
	}
}

func tokenEvent(hash string, height uint64) types.CrossChainEvent {
	return types.TokenTransferObserved{
		EventMeta: types.EventMeta{
			Chain:       types.BSC,
			BlockHeight: &height,
			TxHash:      hash,
			From:        types.Account{Chain: types.BSC, Address: bscAcc},
			To:          types.Account{Chain: types.Realis, Address: alice},
		},
		Amount: types.AmountFromUint64(1000000000000),
	}
}

type fakeSub struct {
	heads  chan uint64
	errs   chan error
	closed chan struct{}
	once   sync.Once
}

func newFakeSub() *fakeSub {
	return &fakeSub{heads: make(chan uint64, 8), errs: make(chan error, 1), closed: make(chan struct{})}
}

func (s *fakeSub) Next() (uint64, error) {
	select {
	case h := <-s.heads:
		return h, nil
	case err := <-s.errs:
		return 0, err
	case <-s.closed:
		return 0, types.ErrSubscriptionClosed
	}
}

func (s *fakeSub) Close() {
	s.once.Do(func() { close(s.closed) })
}

type fakeSource struct {
	chain        types.Chain
	sub          *fakeSub
	subscribeErr error

	mu      sync.Mutex
	blocks  map[uint64][]types.RawEvent
	fetched []uint64
	closed  bool
}

func newFakeSource(blocks map[uint64][]types.RawEvent) *fakeSource {
	return &fakeSource{chain: types.BSC, sub: newFakeSub(), blocks: blocks}
}

func (s *fakeSource) Chain() types.Chain { return s.chain }

func (s *fakeSource) SubscribeHeads(context.Context) (types.HeadSubscription, error) {
	if s.subscribeErr != nil {
		return nil, s.subscribeErr
	}
	return s.sub, nil
}

func (s *fakeSource) BlockEvents(_ context.Context, height uint64) ([]types.RawEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetched = append(s.fetched, height)
	return s.blocks[height], nil
}

func (s *fakeSource) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

func (s *fakeSource) fetchedHeights() []uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]uint64(nil), s.fetched...)
}

// fakeExecutor fails the hashes listed in errs. When release is set every
// call waits for it.
type fakeExecutor struct {
	chain   types.Chain
	errs    map[string]error
	release chan struct{}
	started chan string

	mu       sync.Mutex
	executed []string
}

func newFakeExecutor() *fakeExecutor {
	return &fakeExecutor{chain: types.Realis, errs: map[string]error{}, started: make(chan string, 16)}
}

func (e *fakeExecutor) Chain() types.Chain { return e.chain }

func (e *fakeExecutor) Execute(ctx context.Context, ev types.CrossChainEvent) (string, error) {
	hash := ev.Meta().TxHash
	e.started <- hash
	if e.release != nil {
		<-e.release
	}
	e.mu.Lock()
	e.executed = append(e.executed, hash)
	e.mu.Unlock()
	return "0xtarget" + hash, e.errs[hash]
}

func (e *fakeExecutor) Close() {}

func (e *fakeExecutor) executedHashes() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.executed...)
}

type recordingNotifier struct {
	mu       sync.Mutex
	outcomes []notify.Outcome
}

func (n *recordingNotifier) Publish(o notify.Outcome) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.outcomes = append(n.outcomes, o)
}

func (n *recordingNotifier) all() []notify.Outcome {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notify.Outcome(nil), n.outcomes...)
}

// statusMissing stands for a record that cannot be read.
const statusMissing types.Status = 255

// statusOf is safe to call from assert.Eventually conditions.
func statusOf(j *journal.Journal, hash string) types.Status {
	rec, err := j.Get(context.Background(), types.BSC, hash)
	if err != nil {
		return statusMissing
	}
	return rec.Status
}

// fatalStore refuses every insert with an error the sql store classifies
// as fatal.
type fatalStore struct {
	*sqlstore.Store
}

func (s fatalStore) InsertEvent(context.Context, types.JournalRecord) (bool, error) {
	return false, errNoSuchTable
}

func fatalJournal(t *testing.T) *journal.Journal {
	t.Helper()
	s, err := sqlstore.OpenInMemory()
	require.NoError(t, err)
	return newTestJournal(t, fatalStore{Store: s})
}

// lostAckStore commits the first insert and then reports a dropped
// connection, as if the reply never arrived.
type lostAckStore struct {
	*sqlstore.Store
	once sync.Once
}

func (s *lostAckStore) InsertEvent(ctx context.Context, rec types.JournalRecord) (bool, error) {
	var lost bool
	s.once.Do(func() { lost = true })
	inserted, err := s.Store.InsertEvent(ctx, rec)
	if lost && err == nil {
		return false, driver.ErrBadConn
	}
	return inserted, err
}
