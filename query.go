package ignite

import (
	"context"
	"time"

	"github.com/source-c/go-gridgain-thin/internal/wire"
)

const (
	opQueryScan          int16 = 2000
	opQueryScanPage      int16 = 2001
	opQuerySql           int16 = 2002
	opQuerySqlPage       int16 = 2003
	opQuerySqlFields     int16 = 2004
	opQuerySqlFieldsPage int16 = 2005
)

const defaultQueryPageSize = 1024

// ScanQuery iterates over the entries of a cache. Create it with [NewScanQuery], Partition -1 scans
// every partition.
type ScanQuery struct {
	PageSize  int
	Partition int
	Local     bool
}

// NewScanQuery returns a scan over all partitions with the default page size.
func NewScanQuery() ScanQuery {
	return ScanQuery{PageSize: defaultQueryPageSize, Partition: -1}
}

// SqlQuery selects entries of value type Type with the WHERE part of an SQL statement.
type SqlQuery struct {
	Type             string
	Sql              string
	Args             []interface{}
	PageSize         int
	DistributedJoins bool
	Local            bool
	ReplicatedOnly   bool
	Timeout          time.Duration
}

// StatementType restricts the kind of statement a fields query may run.
type StatementType int8

const (
	// AnyStatement allows both queries and updates.
	AnyStatement StatementType = 0
	// SelectStatement allows only SELECT statements.
	SelectStatement StatementType = 1
	// UpdateStatement allows only DML and DDL statements.
	UpdateStatement StatementType = 2
)

// SqlFieldsQuery runs an SQL statement and yields its rows as slices of column values. MaxRows 0
// means no limit.
type SqlFieldsQuery struct {
	Schema            string
	Sql               string
	Args              []interface{}
	PageSize          int
	MaxRows           int
	StatementType     StatementType
	DistributedJoins  bool
	Local             bool
	ReplicatedOnly    bool
	EnforceJoinOrder  bool
	Collocated        bool
	Lazy              bool
	Timeout           time.Duration
	IncludeFieldNames bool
}

func pageSize(size int) int32 {
	if size <= 0 {
		return defaultQueryPageSize
	}
	return int32(size)
}

// Scan starts a scan query. A query restricted to one partition runs on the node owning it.
func (cache *Cache) Scan(ctx context.Context, query ScanQuery) (*QueryCursor[KeyValue], error) {
	if err := cache.cli.checkOpen(); err != nil {
		return nil, err
	}
	cursor := cache.entryCursor(opQueryScanPage)
	writer := func(output *wire.Output) error {
		if err := cache.writeCacheInfo(output); err != nil {
			return err
		}
		output.WriteInt8(NullType) // filter
		output.WriteInt32(pageSize(query.PageSize))
		output.WriteInt32(int32(query.Partition))
		output.WriteBool(query.Local)
		return nil
	}
	reader := cursor.firstPageReader(ctx, nil)
	var err error
	if query.Partition >= 0 {
		cursor.conn, err = cache.cli.router.sendToPartition(ctx, cache.id, query.Partition, opQueryScan, writer, reader)
	} else {
		cursor.conn, err = cache.cli.router.sendVia(ctx, nil, opQueryScan, writer, reader)
	}
	if err != nil {
		return nil, err
	}
	return cursor, nil
}

// Query starts an SQL query over entries of the cache.
func (cache *Cache) Query(ctx context.Context, query SqlQuery) (*QueryCursor[KeyValue], error) {
	if query.Type == "" || query.Sql == "" {
		return nil, newIllegalArgumentError("sql query needs a type and a statement")
	}
	if err := cache.cli.checkOpen(); err != nil {
		return nil, err
	}
	cursor := cache.entryCursor(opQuerySqlPage)
	conn, err := cache.cli.router.sendVia(ctx, nil, opQuerySql, func(output *wire.Output) error {
		if err := cache.writeCacheInfo(output); err != nil {
			return err
		}
		writeObjectString(output, query.Type)
		writeObjectString(output, query.Sql)
		if err := cache.writeArgs(ctx, output, query.Args); err != nil {
			return err
		}
		output.WriteBool(query.DistributedJoins)
		output.WriteBool(query.Local)
		output.WriteBool(query.ReplicatedOnly)
		output.WriteInt32(pageSize(query.PageSize))
		output.WriteInt64(query.Timeout.Milliseconds())
		return nil
	}, cursor.firstPageReader(ctx, nil))
	if err != nil {
		return nil, err
	}
	cursor.conn = conn
	return cursor, nil
}

// QueryFields runs an SQL statement in the context of the cache.
func (cache *Cache) QueryFields(ctx context.Context, query SqlFieldsQuery) (*QueryCursor[[]interface{}], error) {
	if query.Sql == "" {
		return nil, newIllegalArgumentError("sql statement is empty")
	}
	if err := cache.cli.checkOpen(); err != nil {
		return nil, err
	}
	var columns int
	cursor := &QueryCursor[[]interface{}]{
		cli:    cache.cli,
		pageOp: opQuerySqlFieldsPage,
		readRow: func(ctx context.Context, input *wire.Input) ([]interface{}, error) {
			row := make([]interface{}, columns)
			for i := range row {
				val, err := cache.cli.codec.unmarshal(ctx, input)
				if err != nil {
					return nil, err
				}
				row[i] = val
			}
			return row, nil
		},
	}
	maxRows := int32(query.MaxRows)
	if maxRows <= 0 {
		maxRows = -1
	}
	conn, err := cache.cli.router.sendVia(ctx, nil, opQuerySqlFields, func(output *wire.Output) error {
		if err := cache.writeCacheInfo(output); err != nil {
			return err
		}
		writeObjectString(output, query.Schema)
		output.WriteInt32(pageSize(query.PageSize))
		output.WriteInt32(maxRows)
		writeObjectString(output, query.Sql)
		if err := cache.writeArgs(ctx, output, query.Args); err != nil {
			return err
		}
		output.WriteInt8(int8(query.StatementType))
		output.WriteBool(query.DistributedJoins)
		output.WriteBool(query.Local)
		output.WriteBool(query.ReplicatedOnly)
		output.WriteBool(query.EnforceJoinOrder)
		output.WriteBool(query.Collocated)
		output.WriteBool(query.Lazy)
		output.WriteInt64(query.Timeout.Milliseconds())
		output.WriteBool(query.IncludeFieldNames)
		return nil
	}, cursor.firstPageReader(ctx, func(input *wire.Input) {
		columns = readLength(input)
		if query.IncludeFieldNames {
			cursor.fieldNames = make([]string, columns)
			for i := range cursor.fieldNames {
				cursor.fieldNames[i] = readObjectString(input)
			}
		}
	}))
	if err != nil {
		return nil, err
	}
	cursor.conn = conn
	return cursor, nil
}

func (cache *Cache) entryCursor(pageOp int16) *QueryCursor[KeyValue] {
	return &QueryCursor[KeyValue]{
		cli:    cache.cli,
		pageOp: pageOp,
		readRow: func(ctx context.Context, input *wire.Input) (KeyValue, error) {
			key, err := cache.cli.codec.unmarshal(ctx, input)
			if err != nil {
				return KeyValue{}, err
			}
			value, err := cache.cli.codec.unmarshal(ctx, input)
			if err != nil {
				return KeyValue{}, err
			}
			return KeyValue{Key: key, Value: value}, nil
		},
	}
}

func (cache *Cache) writeArgs(ctx context.Context, output *wire.Output, args []interface{}) error {
	output.WriteInt32(int32(len(args)))
	for _, arg := range args {
		if err := cache.cli.codec.marshal(ctx, output, arg); err != nil {
			return err
		}
	}
	return nil
}

// firstPageReader reads the cursor id, an optional query specific header and the first page.
func (c *QueryCursor[T]) firstPageReader(ctx context.Context, header func(input *wire.Input)) func(input *wire.Input) error {
	return func(input *wire.Input) error {
		c.id = input.ReadInt64()
		if header != nil {
			header(input)
		}
		return c.readPage(ctx, input)
	}
}
