package ignite

import (
	"context"

	"github.com/source-c/go-gridgain-thin/internal/wire"
)

const opResourceClose int16 = 0

type cursorState int

const (
	cursorOpen cursorState = iota
	cursorExhausted
	cursorClosed
)

// QueryCursor iterates over the rows of a query page by page. Following pages are fetched from the
// node that ran the query. A cursor is not safe for concurrent use.
type QueryCursor[T any] struct {
	cli        *Client
	conn       *connection
	id         int64
	pageOp     int16
	readRow    func(ctx context.Context, input *wire.Input) (T, error)
	fieldNames []string
	page       []T
	pos        int
	hasMore    bool
	state      cursorState
}

// FieldNames returns the column names of a fields query, nil unless they were requested.
func (c *QueryCursor[T]) FieldNames() []string {
	return c.fieldNames
}

// Next returns the next row. The second result is false when the cursor is exhausted or closed.
func (c *QueryCursor[T]) Next(ctx context.Context) (T, bool, error) {
	var zero T
	for {
		switch c.state {
		case cursorClosed:
			return zero, false, newIllegalStateError("cursor is closed")
		case cursorExhausted:
			return zero, false, nil
		}
		if c.pos < len(c.page) {
			row := c.page[c.pos]
			c.page[c.pos] = zero
			c.pos++
			return row, true, nil
		}
		if !c.hasMore {
			c.state = cursorExhausted
			continue
		}
		if err := c.fetch(ctx); err != nil {
			return zero, false, err
		}
	}
}

// GetAll drains the cursor and returns the rows that were not read yet.
func (c *QueryCursor[T]) GetAll(ctx context.Context) ([]T, error) {
	if c.state == cursorClosed {
		return nil, newIllegalStateError("cursor is closed")
	}
	ret := make([]T, 0, len(c.page)-c.pos)
	for {
		row, ok, err := c.Next(ctx)
		if err != nil {
			return ret, err
		}
		if !ok {
			return ret, nil
		}
		ret = append(ret, row)
	}
}

// Close releases the server resource of an unfinished cursor. A failure to release it is logged.
func (c *QueryCursor[T]) Close(ctx context.Context) {
	if c.state == cursorClosed {
		return
	}
	release := c.state == cursorOpen && c.hasMore
	c.state = cursorClosed
	c.page = nil
	c.pos = 0
	if !release {
		return
	}
	err := c.conn.send(ctx, opResourceClose, func(output *wire.Output) error {
		output.WriteInt64(c.id)
		return nil
	}, nil)
	if err != nil {
		c.cli.cfg.logger.Warnf("failed to close cursor %d on %s: %s", c.id, c.conn, err)
	}
}

func (c *QueryCursor[T]) fetch(ctx context.Context) error {
	return c.conn.send(ctx, c.pageOp, func(output *wire.Output) error {
		output.WriteInt64(c.id)
		return nil
	}, func(input *wire.Input) error {
		return c.readPage(ctx, input)
	})
}

// readPage reads a row count, the rows and the flag telling whether more pages exist.
func (c *QueryCursor[T]) readPage(ctx context.Context, input *wire.Input) error {
	n := readLength(input)
	page := make([]T, 0, n)
	for i := 0; i < n; i++ {
		row, err := c.readRow(ctx, input)
		if err != nil {
			return err
		}
		page = append(page, row)
	}
	c.page = page
	c.pos = 0
	c.hasMore = input.ReadBool()
	return nil
}
