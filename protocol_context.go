package ignite

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/source-c/go-gridgain-thin/internal/bitset"
	"github.com/source-c/go-gridgain-thin/internal/wire"
)

// AttributeFeature is a bit of the feature bitmap negotiated since protocol 1.7.
type AttributeFeature uint

const (
	UserAttributesFeature AttributeFeature = iota
	ExecuteTaskByNameFeature
	ClusterStatesFeature
	ClusterGroupGetNodesEndpointsFeature
	ClusterGroupsFeature
	ServiceInvokeFeature
	DefaultQueryTimeoutFeature
	QueryPartitionsBatchSizeFeature
	BinaryConfigurationFeature
	GetServiceDescriptorsFeature
	ServiceInvokeCallContextFeature
	HeartbeatFeature
	DataReplicationOperationsFeature
	AllAffinityMappingsFeature
	IndexQueryFeature
	IndexQueryLimitFeature
	ServiceTopologyFeature
	_minFeature = UserAttributesFeature
	_maxFeature = ServiceTopologyFeature
)

// ProtocolVersion is a thin client protocol version.
type ProtocolVersion struct {
	Major int16
	Minor int16
	Patch int16
}

var (
	minProtocolVersion     = ProtocolVersion{1, 0, 0}
	defaultProtocolVersion = ProtocolVersion{1, 7, 0}
)

// supportedVersions lists the versions the client can speak, newest first.
var supportedVersions = []ProtocolVersion{
	{1, 7, 0},
	{1, 6, 0},
	{1, 5, 0},
	{1, 4, 0},
	{1, 3, 0},
	{1, 2, 0},
	{1, 1, 0},
	{1, 0, 0},
}

func isSupportedVersion(ver ProtocolVersion) bool {
	for _, v := range supportedVersions {
		if v == ver {
			return true
		}
	}
	return false
}

// ProtocolContext is the negotiated version of a connection and its feature flags.
type ProtocolContext struct {
	version  ProtocolVersion
	features *bitset.BitSet
}

// NewProtocolContext creates a new protocol context. Features are ignored for versions without the
// feature bitmap.
func NewProtocolContext(version ProtocolVersion, features ...AttributeFeature) *ProtocolContext {
	ctx := ProtocolContext{
		version: version,
	}
	if ctx.SupportsBitmapFeatures() {
		ctx.features = bitset.New()
		for _, feature := range features {
			ctx.features.Set(uint(feature))
		}
	}
	return &ctx
}

func (ctx *ProtocolContext) Version() ProtocolVersion {
	return ctx.version
}

func (ctx *ProtocolContext) featureList() []AttributeFeature {
	var ret []AttributeFeature
	for f := _minFeature; f <= _maxFeature; f++ {
		if ctx.SupportsAttributeFeature(f) {
			ret = append(ret, f)
		}
	}
	return ret
}

// withVersion returns a context for another version with the same requested features.
func (ctx *ProtocolContext) withVersion(version ProtocolVersion) *ProtocolContext {
	return NewProtocolContext(version, ctx.featureList()...)
}

// marshal writes the version part of a handshake request.
func (ctx *ProtocolContext) marshal(w *wire.Output) {
	w.WriteInt16(ctx.version.Major)
	w.WriteInt16(ctx.version.Minor)
	w.WriteInt16(ctx.version.Patch)
	w.WriteInt8(clientTypeCode)
	if ctx.SupportsBitmapFeatures() {
		w.WriteInt8(int8(ByteArrayType))
		bytes := ctx.features.Bytes()
		w.WriteInt32(int32(len(bytes)))
		w.WriteBytes(bytes)
	}
}

// intersectFeatures keeps only the features the server announced.
func (ctx *ProtocolContext) intersectFeatures(server *bitset.BitSet) {
	if ctx.features == nil {
		return
	}
	if server == nil {
		ctx.features = bitset.New()
		return
	}
	ctx.features.And(server)
}

func (ctx *ProtocolContext) SupportsAttributeFeature(f AttributeFeature) bool {
	if ctx.features == nil {
		return false
	}
	return ctx.features.Test(uint(f))
}

func (ctx *ProtocolContext) SupportsAuthorization() bool {
	return ctx.version.Compare(ProtocolVersion{1, 1, 0}) >= 0
}

func (ctx *ProtocolContext) SupportsQueryEntityPrecisionAndScale() bool {
	return ctx.version.Compare(ProtocolVersion{1, 2, 0}) >= 0
}

func (ctx *ProtocolContext) SupportsPartitionAwareness() bool {
	return ctx.version.Compare(ProtocolVersion{1, 4, 0}) >= 0
}

func (ctx *ProtocolContext) SupportsExpiryPolicy() bool {
	return ctx.version.Compare(ProtocolVersion{1, 6, 0}) >= 0
}

func (ctx *ProtocolContext) SupportsBitmapFeatures() bool {
	return ctx.version.Compare(ProtocolVersion{1, 7, 0}) >= 0
}

// ParseVersion parses "major.minor.patch", the second result is false on malformed input.
func ParseVersion(ver string) (ProtocolVersion, bool) {
	res := ProtocolVersion{}
	parts := strings.Split(ver, ".")
	if len(parts) != 3 {
		return res, false
	}
	var nums [3]int16
	for i, part := range parts {
		n, err := strconv.ParseInt(part, 10, 16)
		if err != nil {
			return res, false
		}
		nums[i] = int16(n)
	}
	return ProtocolVersion{nums[0], nums[1], nums[2]}, true
}

func (curr ProtocolVersion) String() string {
	return fmt.Sprintf("%d.%d.%d", curr.Major, curr.Minor, curr.Patch)
}

// Compare returns 0 if versions are equal, a positive number if curr is newer than other and a
// negative one otherwise.
func (curr ProtocolVersion) Compare(other ProtocolVersion) int {
	if diff := curr.Major - other.Major; diff != 0 {
		return int(diff)
	}
	if diff := curr.Minor - other.Minor; diff != 0 {
		return int(diff)
	}
	return int(curr.Patch - other.Patch)
}
