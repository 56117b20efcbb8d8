package ignite

import (
	"fmt"
	"time"
)

// TypeDesc is the one-byte type code that prefixes every value in the binary format.
type TypeDesc = int8

const (
	objectType TypeDesc = iota - 1
	unregisteredType
	ByteType
	ShortType
	IntType
	LongType
	FloatType
	DoubleType
	CharType
	BoolType
	StringType
	UuidType
	DateType
	ByteArrayType
	ShortArrayType
	IntArrayType
	LongArrayType
	FloatArrayType
	DoubleArrayType
	CharArrayType
	BoolArrayType
	StringArrayType
	UuidArrayType
	DateArrayType
	ObjectArrayType
	CollectionType
	MapType
	wrappedObjectType
	EnumType
	EnumArrayType
	DecimalType        TypeDesc = 30
	DecimalArrayType   TypeDesc = 31
	TimestampType      TypeDesc = 33
	TimestampArrayType TypeDesc = 34
	TimeType           TypeDesc = 36
	TimeArrayType      TypeDesc = 37
	BinaryEnumType     TypeDesc = 38
	NullType           TypeDesc = 101
	handleType         TypeDesc = 102
	BinaryObjectType   TypeDesc = 103
)

// Time is a time of day in milliseconds, as the server's java.sql.Time.
type Time int64

// Date is a point in time with millisecond precision, as the server's java.util.Date.
type Date int64

func NewTime(val time.Time) Time {
	return Time(toMillis(val))
}

func (t Time) Time() time.Time {
	return fromMillis(int64(t))
}

func (t Time) String() string {
	return t.Time().UTC().Format("15:04:05.000")
}

func NewDate(val time.Time) Date {
	return Date(toMillis(val))
}

func (d Date) Time() time.Time {
	return fromMillis(int64(d))
}

func (d Date) String() string {
	return d.Time().String()
}

func toMillis(val time.Time) int64 {
	utc := val.UTC()
	return utc.Unix()*1000 + int64(utc.Nanosecond())/int64(time.Millisecond)
}

func fromMillis(millis int64) time.Time {
	return time.Unix(millis/1000, (millis%1000)*int64(time.Millisecond))
}

// CollectionKind tells the server which Java collection to materialize.
type CollectionKind = int8

const (
	UserSet CollectionKind = iota - 1
	UserCollection
	ArrayList
	LinkedList
	HashSet
	LinkedHashSet
	SingletonList
	HashMap       CollectionKind = 1
	LinkedHashMap CollectionKind = 2
)

// Collection is an ordered sequence of values tagged with its [CollectionKind].
type Collection struct {
	kind   CollectionKind
	values []interface{}
}

func (col *Collection) Kind() CollectionKind {
	return col.kind
}

func (col *Collection) Values() []interface{} {
	return col.values
}

func (col *Collection) Size() int {
	return len(col.values)
}

func NewUserCollection[T any](values ...T) Collection {
	return newCollection(UserCollection, values...)
}

func NewArrayList[T any](values ...T) Collection {
	return newCollection(ArrayList, values...)
}

func NewLinkedList[T any](values ...T) Collection {
	return newCollection(LinkedList, values...)
}

func NewSingletonList[T any](value T) Collection {
	return newCollection(SingletonList, value)
}

func NewHashSet[T any](values ...T) Collection {
	return newCollection(HashSet, values...)
}

func NewLinkedHashSet[T any](values ...T) Collection {
	return newCollection(LinkedHashSet, values...)
}

func newCollection[T any](kind CollectionKind, values ...T) Collection {
	boxed := make([]interface{}, len(values))
	for i, value := range values {
		boxed[i] = value
	}
	return Collection{kind: kind, values: boxed}
}

// KeyValue is a single map entry.
type KeyValue struct {
	Key   interface{}
	Value interface{}
}

// Map is an ordered list of entries tagged with its [CollectionKind]. Entry order is kept on the wire,
// which matters for LinkedHashMap.
type Map struct {
	kind    CollectionKind
	entries []KeyValue
}

func (m *Map) Kind() CollectionKind {
	return m.kind
}

func (m *Map) Entries() []KeyValue {
	return m.entries
}

func (m *Map) Size() int {
	return len(m.entries)
}

// NewHashMap returns a HashMap of the given entries.
func NewHashMap(entries ...KeyValue) Map {
	return Map{kind: HashMap, entries: entries}
}

// ToHashMap converts a Go map into a HashMap.
func ToHashMap[K comparable, V any](m map[K]V) Map {
	return toMap(HashMap, m)
}

// NewLinkedHashMap returns a LinkedHashMap that keeps the order of entries.
func NewLinkedHashMap(entries ...KeyValue) Map {
	return Map{kind: LinkedHashMap, entries: entries}
}

// ToLinkedHashMap converts a Go map into a LinkedHashMap, in Go map iteration order.
func ToLinkedHashMap[K comparable, V any](m map[K]V) Map {
	return toMap(LinkedHashMap, m)
}

// ToMap converts a decoded [Map] into a Go map, failing on the first key or value of another type.
func ToMap[K comparable, V any](m Map) (map[K]V, error) {
	ret := make(map[K]V, len(m.entries))
	for _, entry := range m.entries {
		key, ok := entry.Key.(K)
		if !ok {
			return nil, fmt.Errorf("invalid key type: %T", entry.Key)
		}
		var val V
		if entry.Value != nil {
			if val, ok = entry.Value.(V); !ok {
				return nil, fmt.Errorf("invalid value type: %T", entry.Value)
			}
		}
		ret[key] = val
	}
	return ret, nil
}

func toMap[K comparable, V any](kind CollectionKind, m map[K]V) Map {
	entries := make([]KeyValue, 0, len(m))
	for k, v := range m {
		entries = append(entries, KeyValue{Key: k, Value: v})
	}
	return Map{kind: kind, entries: entries}
}
