package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/vmihailenco/msgpack/v5"
)

// BadgerOptions configures the Badger-backed store.
type BadgerOptions struct {
	// Dir holds the database files. Required unless InMemory is set.
	Dir      string
	InMemory bool
	Logger   *slog.Logger
}

// Badger stores calls under "call/<id>" and transcripts under
// "transcript/<call_id>/<ulid>", so a prefix scan yields creation order.
type Badger struct {
	db *badger.DB
}

func NewBadger(opts BadgerOptions) (*Badger, error) {
	if !opts.InMemory && opts.Dir == "" {
		return nil, errors.New("store: BadgerOptions.Dir is required for on-disk mode")
	}
	dbOpts := badger.DefaultOptions(opts.Dir)
	if opts.InMemory {
		dbOpts = badger.DefaultOptions("").WithInMemory(true)
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	dbOpts = dbOpts.WithLogger(badgerLogger{log: log.With(slog.String("component", "badger"))})
	db, err := badger.Open(dbOpts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &Badger{db: db}, nil
}

func callKey(id string) []byte { return []byte("call/" + id) }

func transcriptPrefix(callID string) []byte { return []byte("transcript/" + callID + "/") }

func (b *Badger) CreateCall(_ context.Context) (Call, error) {
	call := newCall(time.Now())
	if err := b.put(callKey(call.ID), call); err != nil {
		return Call{}, err
	}
	return call, nil
}

func (b *Badger) FinishCall(_ context.Context, id string, end time.Time) (Call, error) {
	var call Call
	err := b.db.Update(func(txn *badger.Txn) error {
		if err := getTxn(txn, callKey(id), &call); err != nil {
			return err
		}
		end = end.UTC()
		call.EndTime = &end
		raw, err := msgpack.Marshal(call)
		if err != nil {
			return err
		}
		return txn.Set(callKey(id), raw)
	})
	if err != nil {
		return Call{}, fmt.Errorf("finish call %s: %w", id, err)
	}
	return call, nil
}

func (b *Badger) GetCall(_ context.Context, id string) (Call, error) {
	var call Call
	err := b.db.View(func(txn *badger.Txn) error {
		return getTxn(txn, callKey(id), &call)
	})
	if err != nil {
		return Call{}, fmt.Errorf("get call %s: %w", id, err)
	}
	return call, nil
}

func (b *Badger) AddTranscript(ctx context.Context, callID, text string, isUser bool) (Transcript, error) {
	if _, err := b.GetCall(ctx, callID); err != nil {
		return Transcript{}, err
	}
	tr := newTranscript(callID, text, isUser, time.Now())
	key := append(transcriptPrefix(callID), tr.ID...)
	if err := b.put(key, tr); err != nil {
		return Transcript{}, err
	}
	return tr, nil
}

func (b *Badger) ListTranscripts(_ context.Context, callID string) ([]Transcript, error) {
	prefix := transcriptPrefix(callID)
	var out []Transcript
	err := b.db.View(func(txn *badger.Txn) error {
		iterOpts := badger.DefaultIteratorOptions
		iterOpts.Prefix = prefix
		it := txn.NewIterator(iterOpts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			raw, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			var tr Transcript
			if err := msgpack.Unmarshal(raw, &tr); err != nil {
				return err
			}
			out = append(out, tr)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list transcripts %s: %w", callID, err)
	}
	return out, nil
}

func (b *Badger) Close() error {
	return b.db.Close()
}

func (b *Badger) put(key []byte, v any) error {
	raw, err := msgpack.Marshal(v)
	if err != nil {
		return err
	}
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, raw)
	})
}

func getTxn(txn *badger.Txn, key []byte, out any) error {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	raw, err := item.ValueCopy(nil)
	if err != nil {
		return err
	}
	return msgpack.Unmarshal(raw, out)
}

// badgerLogger routes badger's printf logging into slog, dropping info and debug.
type badgerLogger struct {
	log *slog.Logger
}

func (l badgerLogger) Errorf(f string, v ...interface{}) { l.log.Error(fmt.Sprintf(f, v...)) }
func (l badgerLogger) Warningf(f string, v ...interface{}) {
	l.log.Warn(fmt.Sprintf(f, v...))
}
func (badgerLogger) Infof(string, ...interface{})  {}
func (badgerLogger) Debugf(string, ...interface{}) {}

var _ Store = (*Badger)(nil)
