package ignite

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/source-c/go-gridgain-thin/internal"
	"github.com/source-c/go-gridgain-thin/internal/wire"
	"github.com/source-c/go-gridgain-thin/logger"
)

// Client is a handle representing connections to an Apache Ignite or GridGain cluster. It is safe for
// concurrent use by multiple goroutines.
type Client struct {
	cfg    *clientConfiguration
	router *router
	types  *typeStorage
	codec  *binaryCodec
	closed atomic.Bool
}

const (
	defaultPort                        = 10800
	opCacheGetNames              int16 = 1050
	opCacheCreateWithName        int16 = 1051
	opCacheGetOrCreateWithName   int16 = 1052
	opCacheCreateWithConfig      int16 = 1053
	opCacheGetOrCreateWithConfig int16 = 1054
	opCacheGetConfig             int16 = 1055
	opCacheDestroy               int16 = 1056
)

func (cli *Client) checkOpen() error {
	if cli.closed.Load() {
		return newIllegalStateError("client is closed")
	}
	return nil
}

// CacheNames returns names of the caches currently present in the cluster.
func (cli *Client) CacheNames(ctx context.Context) ([]string, error) {
	if err := cli.checkOpen(); err != nil {
		return nil, err
	}
	var names []string
	err := cli.router.send(ctx, opCacheGetNames, nil, func(input *wire.Input) error {
		names = make([]string, readLength(input))
		for i := range names {
			names[i] = readObjectString(input)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return names, nil
}

// CreateCache creates a cache with default configuration, it fails if the cache exists.
func (cli *Client) CreateCache(ctx context.Context, name string) (*Cache, error) {
	return cli.createByName(ctx, opCacheCreateWithName, name)
}

// GetOrCreateCache returns an existing cache or creates one with default configuration.
func (cli *Client) GetOrCreateCache(ctx context.Context, name string) (*Cache, error) {
	return cli.createByName(ctx, opCacheGetOrCreateWithName, name)
}

func (cli *Client) createByName(ctx context.Context, opCode int16, name string) (*Cache, error) {
	if err := cli.checkOpen(); err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if len(name) == 0 {
		return nil, newIllegalArgumentError("cache name is empty")
	}
	err := cli.router.send(ctx, opCode, func(output *wire.Output) error {
		writeObjectString(output, name)
		return nil
	}, nil)
	if err != nil {
		return nil, err
	}
	return cli.newCache(name), nil
}

// CreateCacheWithConfiguration creates a cache with config, it fails if the cache exists.
func (cli *Client) CreateCacheWithConfiguration(ctx context.Context, config CacheConfiguration) (*Cache, error) {
	return cli.createWithConfig(ctx, opCacheCreateWithConfig, config)
}

// GetOrCreateCacheWithConfiguration returns an existing cache or creates one with config.
func (cli *Client) GetOrCreateCacheWithConfiguration(ctx context.Context, config CacheConfiguration) (*Cache, error) {
	return cli.createWithConfig(ctx, opCacheGetOrCreateWithConfig, config)
}

func (cli *Client) createWithConfig(ctx context.Context, opCode int16, config CacheConfiguration) (*Cache, error) {
	if err := cli.checkOpen(); err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(config.Name)) == 0 {
		return nil, newIllegalArgumentError("cache name is empty")
	}
	err := cli.router.send(ctx, opCode, func(output *wire.Output) error {
		return config.marshal(ctx, cli.codec, cli.protocolContext(), output)
	}, nil)
	if err != nil {
		return nil, err
	}
	return cli.newCache(config.Name), nil
}

// Cache returns a handle of an existing cache without contacting the cluster.
func (cli *Client) Cache(name string) (*Cache, error) {
	name = strings.TrimSpace(name)
	if len(name) == 0 {
		return nil, newIllegalArgumentError("cache name is empty")
	}
	return cli.newCache(name), nil
}

// DestroyCache destroys the cache with specified name.
func (cli *Client) DestroyCache(ctx context.Context, name string) error {
	if err := cli.checkOpen(); err != nil {
		return err
	}
	return cli.router.send(ctx, opCacheDestroy, func(output *wire.Output) error {
		output.WriteInt32(internal.HashCode(name))
		return nil
	}, nil)
}

func (cli *Client) newCache(name string) *Cache {
	return &Cache{
		cli:  cli,
		name: name,
		id:   internal.HashCode(name),
	}
}

func (cli *Client) protocolContext() *ProtocolContext {
	if pCtx := cli.router.protocolContext(); pCtx != nil {
		return pCtx
	}
	return cli.cfg.protocolContext
}

// Version returns the protocol version negotiated with the cluster.
func (cli *Client) Version() ProtocolVersion {
	return cli.protocolContext().Version()
}

// Close closes client, waits until all underlying chores are done.
func (cli *Client) Close(ctx context.Context) error {
	if !cli.closed.CompareAndSwap(false, true) {
		return nil
	}
	cli.router.close(ctx)
	return nil
}

type clientConfiguration struct {
	addressesSupplier      func(ctx context.Context) ([]string, error)
	shuffleAddresses       bool
	user                   string
	password               string
	attrs                  map[string]string
	tlsConfigSupplier      func() (*tls.Config, error)
	requestTimeout         time.Duration
	idleTimeout            time.Duration
	retryLimit             int
	partitionAwareness     bool
	logger                 *logger.Logger
	protocolContext        *ProtocolContext
	enableAutoBinaryConfig bool
	compactFooter          bool
	binaryIdMapper         BinaryIdMapper
}

type ClientConfigurationOption func(config *clientConfiguration) error

// WithAddressSupplier returns [ClientConfigurationOption] that sets address supplier. The supplier must return slice of addresses of
// cluster nodes or error if failed. It is called again when every connection is lost.
//
// WARNING: Adding result of [WithAddresses] after this will override this [ClientConfigurationOption] and vice versa.
func WithAddressSupplier(supplier func(ctx context.Context) ([]string, error)) ClientConfigurationOption {
	return func(config *clientConfiguration) error {
		if supplier == nil {
			return newIllegalArgumentError("nil address supplier")
		}
		config.addressesSupplier = supplier
		return nil
	}
}

// WithShuffleAddresses returns [ClientConfigurationOption] that sets whether addresses of cluster nodes will be shuffled after
// obtaining from addresses supplier. See also: [WithAddressSupplier]
func WithShuffleAddresses(shuffle bool) ClientConfigurationOption {
	return func(config *clientConfiguration) error {
		config.shuffleAddresses = shuffle
		return nil
	}
}

// WithAddresses returns [ClientConfigurationOption] that sets addresses of cluster nodes to connect. An address without
// a port gets the default port 10800.
//
// WARNING: Adding result of [WithAddressSupplier] after this will override this [ClientConfigurationOption] and vice versa.
func WithAddresses(addresses ...string) ClientConfigurationOption {
	return func(config *clientConfiguration) error {
		if len(addresses) == 0 {
			return newIllegalArgumentError("empty addresses supplied")
		}
		prepared := make([]string, 0, len(addresses))
		for _, addr := range addresses {
			if _, _, err := net.SplitHostPort(addr); err != nil {
				addr = net.JoinHostPort(addr, strconv.Itoa(defaultPort))
			}
			if _, _, err := net.SplitHostPort(addr); err != nil {
				return err
			}
			prepared = append(prepared, addr)
		}
		config.addressesSupplier = func(_ context.Context) ([]string, error) {
			return prepared, nil
		}
		return nil
	}
}

// WithCredentials returns [ClientConfigurationOption] that sets credentials (username and password) used to authenticate client.
func WithCredentials(username string, password string) ClientConfigurationOption {
	return func(config *clientConfiguration) error {
		if len(username) != 0 && len(password) != 0 {
			config.user = username
			config.password = password
		}
		return nil
	}
}

// WithTls returns [ClientConfigurationOption] that sets TLS configuration supplier. The supplier must return tls configuration or error if failed.
func WithTls(supplier func() (*tls.Config, error)) ClientConfigurationOption {
	return func(config *clientConfiguration) error {
		if supplier == nil {
			return newIllegalArgumentError("nil tls configuration supplier")
		}
		config.tlsConfigSupplier = supplier
		return nil
	}
}

// WithRequestTimeout returns [ClientConfigurationOption] that sets requests timeout. Setting zero or negative duration means no timeout.
func WithRequestTimeout(timeout time.Duration) ClientConfigurationOption {
	return func(config *clientConfiguration) error {
		config.requestTimeout = max(timeout, 0)
		return nil
	}
}

// WithIdleTimeout returns [ClientConfigurationOption] that closes connections without requests for the given duration.
// Zero disables idle closing.
func WithIdleTimeout(timeout time.Duration) ClientConfigurationOption {
	return func(config *clientConfiguration) error {
		config.idleTimeout = max(timeout, 0)
		return nil
	}
}

// WithRetryLimit returns [ClientConfigurationOption] that sets how many times a request lost with its connection is
// retried on another connection. One retry is made by default.
func WithRetryLimit(limit int) ClientConfigurationOption {
	return func(config *clientConfiguration) error {
		if limit < 0 {
			return newIllegalArgumentError("negative retry limit %d", limit)
		}
		config.retryLimit = limit
		return nil
	}
}

// WithPartitionAwareness returns [ClientConfigurationOption] that enables or disables partition awareness. When enabled
// the client connects to every configured node and sends key-based requests to the node that owns the key.
// It is enabled by default.
func WithPartitionAwareness(enabled bool) ClientConfigurationOption {
	return func(config *clientConfiguration) error {
		config.partitionAwareness = enabled
		return nil
	}
}

// WithClientAttribute returns [ClientConfigurationOption] that adds key-value pair to optional client connection attributes.
func WithClientAttribute(key string, value string) ClientConfigurationOption {
	return func(config *clientConfiguration) error {
		if len(key) != 0 && len(value) != 0 {
			if config.attrs == nil {
				config.attrs = make(map[string]string)
			}
			config.attrs[key] = value
		}
		return nil
	}
}

// WithLoggingSink return [ClientConfigurationOption] that configures client logging by setting logger sink.
// See also [logger]
func WithLoggingSink(sink logger.Sink) ClientConfigurationOption {
	return func(config *clientConfiguration) error {
		if sink == nil {
			return nil
		}
		config.logger = logger.New(sink)
		return nil
	}
}

// WithProtocolContext return [ClientConfigurationOption] that sets initial client protocol version and protocol features.
// See [ProtocolContext] for details.
func WithProtocolContext(version ProtocolVersion, features ...AttributeFeature) ClientConfigurationOption {
	return func(config *clientConfiguration) error {
		if !isSupportedVersion(version) {
			return newIllegalArgumentError("protocol version %s is not supported", version)
		}
		config.protocolContext = NewProtocolContext(version, features...)
		return nil
	}
}

// WithDisabledAutoBinaryConfiguration returns [ClientConfigurationOption] that disables automatic retrieving the current
// binary configuration from the cluster.
func WithDisabledAutoBinaryConfiguration() ClientConfigurationOption {
	return func(config *clientConfiguration) error {
		config.enableAutoBinaryConfig = false
		return nil
	}
}

// WithBinaryCompactFooter returns [ClientConfigurationOption] that sets compact footer support to binary object serialization.
// It is set to true by default.
func WithBinaryCompactFooter(isCompact bool) ClientConfigurationOption {
	return func(config *clientConfiguration) error {
		config.compactFooter = isCompact
		return nil
	}
}

// WithBinaryIdMapper returns [ClientConfigurationOption] that sets custom [BinaryIdMapper] to binary object serialization.
// [BinaryBasicIdMapper] is set by default.
func WithBinaryIdMapper(mapper BinaryIdMapper) ClientConfigurationOption {
	return func(config *clientConfiguration) error {
		config.binaryIdMapper = mapper
		return nil
	}
}

// Start creates and initializes a new Client.
// Passing opts parameter allows user to configure Client to be created.
func Start(ctx context.Context, opts ...ClientConfigurationOption) (*Client, error) {
	cfg := clientConfiguration{
		shuffleAddresses:   true,
		partitionAwareness: true,
		protocolContext: NewProtocolContext(
			defaultProtocolVersion,
			UserAttributesFeature,
			BinaryConfigurationFeature,
		),
		compactFooter:          true,
		enableAutoBinaryConfig: true,
	}
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}
	if cfg.logger == nil {
		dfltSink, _ := logger.NewSink(nil, logger.OffLevel)
		cfg.logger = logger.New(dfltSink)
	}
	if cfg.binaryIdMapper == nil {
		cfg.binaryIdMapper = &BinaryBasicIdMapper{}
	}
	r, err := newRouter(ctx, &cfg)
	if err != nil {
		return nil, err
	}
	types := newTypeStorage(r)
	codec := newBinaryCodec(types, cfg.binaryIdMapper, cfg.compactFooter)
	r.codec = codec
	cli := &Client{cfg: &cfg, router: r, types: types, codec: codec}
	if cfg.enableAutoBinaryConfig {
		if err = codec.loadBinaryConfiguration(ctx, r, cli.protocolContext()); err != nil {
			_ = cli.Close(ctx)
			return nil, err
		}
	}
	return cli, nil
}

// IsClusterUnavailable reports whether err means that no node of the cluster could be reached.
func IsClusterUnavailable(err error) bool {
	var target *ClusterUnavailableError
	return errors.As(err, &target)
}
