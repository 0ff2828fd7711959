package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"sort"
	"strconv"
	"syscall"
	"time"

	"github.com/gomodule/redigo/redis"

	"gorealisbridge/journal"
	"gorealisbridge/types"
)

// Key layout:
//
//	journal:{chain}:tx:{hash}       JSON record, created by insertScript
//	journal:{chain}:status:{n}      set of hashes in status n
//	journal:{chain}:blocks          sorted set of checkpoint heights
//	journal:undecoded               list of undecoded payloads
const undecodedKey = "journal:undecoded"

func recordKey(chain types.Chain, hash string) string {
	return fmt.Sprintf("journal:%s:tx:%s", chain, hash)
}

func statusKey(chain types.Chain, status types.Status) string {
	return statusPrefix(chain) + strconv.Itoa(int(status))
}

// statusPrefix is statusKey without the status number.
func statusPrefix(chain types.Chain) string {
	return fmt.Sprintf("journal:%s:status:", chain)
}

func blocksKey(chain types.Chain) string {
	return fmt.Sprintf("journal:%s:blocks", chain)
}

// record is the JSON stored under recordKey.
type record struct {
	Hash      string          `json:"hash"`
	Block     *uint64         `json:"block,omitempty"`
	From      string          `json:"from"`
	To        string          `json:"to"`
	Value     json.RawMessage `json:"value"`
	Type      uint8           `json:"type"`
	Status    uint8           `json:"status"`
	UpdatedAt int64           `json:"updated_at"`
}

type undecoded struct {
	Chain string `json:"chain"`
	Block uint64 `json:"block"`
	Hash  string `json:"hash"`
	Data  []byte `json:"data"`
}

// Store is the redis journal backend.
type Store struct {
	pool *redis.Pool
}

func timeoutDialOptions() []redis.DialOption {
	return []redis.DialOption{
		redis.DialConnectTimeout(5 * time.Second),
		redis.DialReadTimeout(5 * time.Second),
		redis.DialWriteTimeout(5 * time.Second),
	}
}

func New(host string, port int) *Store {
	return NewWithAddr(fmt.Sprintf("%s:%d", host, port))
}

func NewWithAddr(addr string) *Store {
	return &Store{
		pool: &redis.Pool{
			MaxIdle:     5,
			IdleTimeout: 4 * time.Minute,
			Dial:        func() (redis.Conn, error) { return redis.Dial("tcp", addr, timeoutDialOptions()...) },
		},
	}
}

func (s *Store) InsertEvent(ctx context.Context, rec types.JournalRecord) (bool, error) {
	conn, err := s.pool.GetContext(ctx)
	if err != nil {
		return false, err
	}
	defer conn.Close()

	data, err := json.Marshal(record{
		Hash:      rec.Hash,
		Block:     rec.Block,
		From:      rec.From,
		To:        rec.To,
		Value:     rec.Value,
		Type:      uint8(rec.Kind),
		Status:    uint8(rec.Status),
		UpdatedAt: rec.UpdatedAt.UnixNano(),
	})
	if err != nil {
		return false, fmt.Errorf("cannot marshal journal record to JSON: %w", err)
	}

	created, err := redis.Int(insertScript.Do(conn,
		recordKey(rec.Chain, rec.Hash),
		statusKey(rec.Chain, rec.Status),
		statusPrefix(rec.Chain),
		data, rec.Hash))
	if err != nil {
		return false, err
	}
	return created == 1, nil
}

// insertScript creates the record and adds it to its status set. When the
// record already exists its hash is added again to the set of its current
// status, which heals a SADD lost after an earlier SETNX.
//
// KEYS[1] record, KEYS[2] status set of the new record, KEYS[3] status key
// prefix. ARGV[1] record JSON, ARGV[2] hash.
var insertScript = redis.NewScript(3, `
if redis.call('SETNX', KEYS[1], ARGV[1]) == 1 then
	redis.call('SADD', KEYS[2], ARGV[2])
	return 1
end
local rec = cjson.decode(redis.call('GET', KEYS[1]))
redis.call('SADD', KEYS[3] .. rec.status, ARGV[2])
return 0
`)

func (s *Store) UpdateStatus(ctx context.Context, chain types.Chain, hash string, status types.Status, at time.Time) error {
	conn, err := s.pool.GetContext(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	rec, err := getRecord(conn, chain, hash)
	if err != nil {
		return err
	}
	prev := types.Status(rec.Status)
	rec.Status = uint8(status)
	rec.UpdatedAt = at.UnixNano()

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("cannot marshal journal record to JSON: %w", err)
	}

	conn.Send("MULTI")
	conn.Send("SET", recordKey(chain, hash), data)
	conn.Send("SREM", statusKey(chain, prev), hash)
	conn.Send("SADD", statusKey(chain, status), hash)
	_, err = conn.Do("EXEC")
	return err
}

func (s *Store) InsertCheckpoint(ctx context.Context, chain types.Chain, height uint64) error {
	conn, err := s.pool.GetContext(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	_, err = conn.Do("ZADD", blocksKey(chain), height, strconv.FormatUint(height, 10))
	return err
}

func (s *Store) MaxCheckpoint(ctx context.Context, chain types.Chain) (uint64, bool, error) {
	conn, err := s.pool.GetContext(ctx)
	if err != nil {
		return 0, false, err
	}
	defer conn.Close()

	members, err := redis.Strings(conn.Do("ZREVRANGE", blocksKey(chain), 0, 0))
	if err != nil {
		return 0, false, err
	}
	if len(members) == 0 {
		return 0, false, nil
	}
	height, err := strconv.ParseUint(members[0], 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("corrupt checkpoint %q: %w", members[0], err)
	}
	return height, true, nil
}

func (s *Store) InsertUndecoded(ctx context.Context, ev types.UndecodedEvent) error {
	conn, err := s.pool.GetContext(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	data, err := json.Marshal(undecoded{Chain: ev.Chain.String(), Block: ev.Block, Hash: ev.Hash, Data: ev.Data})
	if err != nil {
		return fmt.Errorf("cannot marshal undecoded event to JSON: %w", err)
	}
	_, err = conn.Do("RPUSH", undecodedKey, data)
	return err
}

func (s *Store) Get(ctx context.Context, chain types.Chain, hash string) (types.JournalRecord, error) {
	conn, err := s.pool.GetContext(ctx)
	if err != nil {
		return types.JournalRecord{}, err
	}
	defer conn.Close()

	rec, err := getRecord(conn, chain, hash)
	if err != nil {
		return types.JournalRecord{}, err
	}
	return rec.journalRecord(chain), nil
}

func (s *Store) ListByStatus(ctx context.Context, chain types.Chain, status types.Status, limit int) ([]types.JournalRecord, error) {
	recs, err := s.membersOf(ctx, chain, status)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(recs, func(i, j int) bool {
		bi, bj := blockOf(recs[i]), blockOf(recs[j])
		if bi != bj {
			return bi < bj
		}
		return recs[i].UpdatedAt.Before(recs[j].UpdatedAt)
	})
	return truncate(recs, limit), nil
}

func (s *Store) ListStuck(ctx context.Context, chain types.Chain, before time.Time, limit int) ([]types.JournalRecord, error) {
	recs, err := s.membersOf(ctx, chain, types.StatusInProgress)
	if err != nil {
		return nil, err
	}
	stuck := recs[:0]
	for _, r := range recs {
		if r.UpdatedAt.Before(before) {
			stuck = append(stuck, r)
		}
	}
	sort.SliceStable(stuck, func(i, j int) bool { return stuck[i].UpdatedAt.Before(stuck[j].UpdatedAt) })
	return truncate(stuck, limit), nil
}

func (s *Store) membersOf(ctx context.Context, chain types.Chain, status types.Status) ([]types.JournalRecord, error) {
	conn, err := s.pool.GetContext(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	hashes, err := redis.Strings(conn.Do("SMEMBERS", statusKey(chain, status)))
	if err != nil {
		return nil, err
	}
	if len(hashes) == 0 {
		return nil, nil
	}

	args := make([]interface{}, 0, len(hashes))
	for _, h := range hashes {
		args = append(args, recordKey(chain, h))
	}
	values, err := redis.ByteSlices(conn.Do("MGET", args...))
	if err != nil {
		return nil, err
	}

	out := make([]types.JournalRecord, 0, len(values))
	for _, v := range values {
		// a record can vanish between SMEMBERS and MGET
		if v == nil {
			continue
		}
		var rec record
		if err := json.Unmarshal(v, &rec); err != nil {
			return nil, fmt.Errorf("cannot unmarshal journal record: %w", err)
		}
		out = append(out, rec.journalRecord(chain))
	}
	return out, nil
}

func (s *Store) Ping(ctx context.Context) error {
	conn, err := s.pool.GetContext(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	_, err = conn.Do("PING")
	return err
}

// IsTransient treats connection level failures as transient. Error replies
// from the server (wrong type, script errors, OOM refusals) are fatal.
func (s *Store) IsTransient(err error) bool {
	if err == nil || errors.Is(err, journal.ErrNotFound) || errors.Is(err, context.Canceled) {
		return false
	}
	var reply redis.Error
	if errors.As(err, &reply) {
		return false
	}
	if errors.Is(err, redis.ErrPoolExhausted) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func (s *Store) Close() error {
	return s.pool.Close()
}

func getRecord(conn redis.Conn, chain types.Chain, hash string) (record, error) {
	data, err := redis.Bytes(conn.Do("GET", recordKey(chain, hash)))
	if errors.Is(err, redis.ErrNil) {
		return record{}, fmt.Errorf("%w: %s %s", journal.ErrNotFound, chain, hash)
	}
	if err != nil {
		return record{}, err
	}

	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return record{}, fmt.Errorf("cannot unmarshal journal record: %w", err)
	}
	return rec, nil
}

func (r record) journalRecord(chain types.Chain) types.JournalRecord {
	return types.JournalRecord{
		Chain:     chain,
		Hash:      r.Hash,
		Block:     r.Block,
		From:      r.From,
		To:        r.To,
		Value:     []byte(r.Value),
		Kind:      types.EventKind(r.Type),
		Status:    types.Status(r.Status),
		UpdatedAt: time.Unix(0, r.UpdatedAt),
	}
}

func blockOf(r types.JournalRecord) uint64 {
	if r.Block == nil {
		return 0
	}
	return *r.Block
}

func truncate(recs []types.JournalRecord, limit int) []types.JournalRecord {
	if limit > 0 && len(recs) > limit {
		return recs[:limit]
	}
	return recs
}
