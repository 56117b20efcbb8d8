package ignite

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/source-c/go-gridgain-thin/internal/wire"
	"golang.org/x/sync/singleflight"
)

const (
	opGetBinaryType int16 = 3002
	opPutBinaryType int16 = 3003
)

// requestSender sends a request that is not bound to a key.
type requestSender interface {
	send(ctx context.Context, opCode int16, writer func(output *wire.Output) error, reader func(input *wire.Input) error) error
}

// typeStorage caches binary type metadata of the cluster. Lookups read an immutable snapshot, misses
// for the same type id share one server round trip.
type typeStorage struct {
	sender   requestSender
	snapshot atomic.Pointer[map[int32]*binaryMetadata]
	mu       sync.Mutex
	inflight singleflight.Group
}

func newTypeStorage(sender requestSender) *typeStorage {
	s := &typeStorage{sender: sender}
	empty := make(map[int32]*binaryMetadata)
	s.snapshot.Store(&empty)
	return s
}

func (s *typeStorage) cached(typeId int32) *binaryMetadata {
	return (*s.snapshot.Load())[typeId]
}

// getType returns the metadata of typeId, nil if the cluster does not know the type.
func (s *typeStorage) getType(ctx context.Context, typeId int32) (*binaryMetadata, error) {
	if meta := s.cached(typeId); meta != nil {
		return meta, nil
	}
	return s.fetchType(ctx, typeId)
}

// getSchema returns the schema of an object layout. A schema unknown locally triggers one refetch of
// the type, the server may have learned it from another client.
func (s *typeStorage) getSchema(ctx context.Context, typeId int32, schemaId int32) (*binarySchema, error) {
	if meta := s.cached(typeId); meta != nil {
		if schema, ok := meta.schemas[schemaId]; ok {
			return schema, nil
		}
	}
	meta, err := s.fetchType(ctx, typeId)
	if err != nil || meta == nil {
		return nil, err
	}
	return meta.schemas[schemaId], nil
}

func (s *typeStorage) fetchType(ctx context.Context, typeId int32) (*binaryMetadata, error) {
	ch := s.inflight.DoChan(strconv.FormatInt(int64(typeId), 10), func() (interface{}, error) {
		var meta *binaryMetadata
		// The fetch is shared, one caller giving up must not fail the others.
		err := s.sender.send(context.WithoutCancel(ctx), opGetBinaryType, func(output *wire.Output) error {
			output.WriteInt32(typeId)
			return nil
		}, func(input *wire.Input) error {
			if input.ReadBool() {
				meta = unmarshalBinaryMetadata(input)
			}
			return nil
		})
		if err != nil || meta == nil {
			return meta, err
		}
		return s.publish(meta, true), nil
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*binaryMetadata), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// putType registers new fields, schemas or enum constants of a type with the cluster. Nothing is sent
// when the cluster already knows everything meta declares.
func (s *typeStorage) putType(ctx context.Context, meta *binaryMetadata) error {
	merged, changed, err := mergeMetadata(s.cached(meta.typeId), meta)
	if err != nil {
		return &IllegalArgumentError{ClientError{Message: "incompatible binary type", Cause: err}}
	}
	if !changed {
		return nil
	}
	err = s.sender.send(ctx, opPutBinaryType, func(output *wire.Output) error {
		merged.marshal(output)
		return nil
	}, nil)
	if err != nil {
		return err
	}
	s.publish(merged, false)
	return nil
}

// publish merges meta into the snapshot and returns the stored value. Metadata received from the
// server replaces a local entry it conflicts with.
func (s *typeStorage) publish(meta *binaryMetadata, fromServer bool) *binaryMetadata {
	s.mu.Lock()
	defer s.mu.Unlock()
	current := *s.snapshot.Load()
	stored := meta
	if merged, _, err := mergeMetadata(current[meta.typeId], meta); err == nil {
		stored = merged
	} else if !fromServer {
		return current[meta.typeId]
	}
	next := make(map[int32]*binaryMetadata, len(current)+1)
	for id, m := range current {
		next[id] = m
	}
	next[meta.typeId] = stored
	s.snapshot.Store(&next)
	return stored
}
