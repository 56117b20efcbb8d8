package bitset

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func randomSet(sz uint) *BitSet {
	bs := New()
	for i := uint(0); i < sz; i++ {
		if rand.Int()%2 == 0 {
			bs.Set(i)
		}
	}
	return bs
}

func TestSetClear(t *testing.T) {
	for _, sz := range []uint{1, 7, 8, 9, 64, 1000} {
		bs := New()
		for i := uint(0); i < sz; i += 3 {
			bs.Set(i)
		}
		for i := uint(0); i < sz; i++ {
			assert.Equalf(t, i%3 == 0, bs.Test(i), "sz=%d, idx=%d", sz, i)
		}
		for i := uint(0); i < sz; i++ {
			bs.Clear(i)
			assert.Falsef(t, bs.Test(i), "sz=%d, idx=%d", sz, i)
		}
		assert.Emptyf(t, bs.Bytes(), "sz=%d", sz)
	}
	bs := New()
	bs.Clear(100)
	assert.Empty(t, bs.Bytes())
}

func TestEquals(t *testing.T) {
	even, odd := New(), New()
	for i := uint(0); i < 100; i++ {
		if i%2 == 0 {
			even.Set(i)
		} else {
			odd.Set(i)
		}
	}
	assert.False(t, even.Equals(odd))
	assert.False(t, even.Equals(New()))
	assert.True(t, New().Equals(FromBytes([]byte{0, 0})))

	odd.Set(200)
	odd.Clear(200)
	assert.True(t, odd.Equals(FromBytes(odd.Bytes())))
}

func TestAnd(t *testing.T) {
	fixtures := []struct {
		name     string
		left     []byte
		right    []byte
		expected []byte
	}{
		{"disjoint", []byte{0x0F}, []byte{0xF0}, []byte{}},
		{"subset", []byte{0xFF, 0x01}, []byte{0x81}, []byte{0x81}},
		{"longer right", []byte{0x03}, []byte{0x01, 0xFF}, []byte{0x01}},
		{"empty right", []byte{0x03}, nil, []byte{}},
		{"trailing zero", []byte{0x01, 0x02}, []byte{0x01, 0x01}, []byte{0x01}},
	}
	for _, f := range fixtures {
		t.Run(f.name, func(t *testing.T) {
			bs := FromBytes(f.left)
			bs.And(FromBytes(f.right))
			assert.Equal(t, f.expected, bs.Bytes())
		})
	}

	left, right := randomSet(300), randomSet(300)
	and := FromBytes(left.Bytes())
	and.And(right)
	for i := uint(0); i < 300; i++ {
		assert.Equal(t, left.Test(i) && right.Test(i), and.Test(i), "idx=%d", i)
	}
}

func TestSerialization(t *testing.T) {
	for sz := uint(0); sz <= 256; sz++ {
		bs1 := randomSet(sz)
		bs2 := FromBytes(append(bs1.Bytes(), 0))

		assert.True(t, bs1.Equals(bs2))
		for i := uint(0); i < sz; i++ {
			assert.Equal(t, bs1.Test(i), bs2.Test(i))
		}
	}
}

func TestWireLayout(t *testing.T) {
	bs := New()
	bs.Set(0)
	bs.Set(8)
	bs.Set(17)
	assert.Equal(t, []byte{0x01, 0x01, 0x02}, bs.Bytes())

	bs = FromBytes([]byte{0x00, 0x01})
	assert.True(t, bs.Test(8))
	assert.False(t, bs.Test(0))
	assert.False(t, bs.Test(9))
	assert.False(t, bs.Test(70))

	data := []byte{0x05}
	bs = FromBytes(data)
	data[0] = 0
	assert.True(t, bs.Test(2), "FromBytes must copy its input")
}
