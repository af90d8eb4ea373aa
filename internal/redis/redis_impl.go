package redis

import (
	"context"
	"fmt"
	"time"

	"TableSync/internal/connection"
	"TableSync/internal/logger"
	"TableSync/internal/ssh"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/multierr"
)

// releaseScript deletes the key only when it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// renewScript extends the expiry only when the key still carries our token.
var renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// RedisLock implements RunLock with SET NX PX on a shared Redis server, so
// several processes pointed at the same destination never run concurrently.
type RedisLock struct {
	client    *redis.Client
	prefix    string
	forwarder *ssh.LocalForwarder
}

// NewRedisLock connects to Redis and verifies the connection with PING.
func NewRedisLock(config connection.ConnectionConfig, prefix string) (*RedisLock, error) {
	port := config.Port
	if port <= 0 {
		port = 6379
	}
	addr := fmt.Sprintf("%s:%d", config.Host, port)

	l := &RedisLock{prefix: prefix}
	if config.UseSSH {
		forwarder, err := ssh.GetOrCreateLocalForwarder(config.SSH, config.Host, port)
		if err != nil {
			return nil, fmt.Errorf("创建 SSH 隧道失败: %w", err)
		}
		l.forwarder = forwarder
		addr = forwarder.LocalAddr
		logger.Infof("Redis 通过 SSH 隧道连接: %s -> %s:%d", addr, config.Host, port)
	}

	timeout := time.Duration(config.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	opts := &redis.Options{
		Addr:         addr,
		Username:     config.User,
		Password:     config.Password,
		DB:           config.RedisDB,
		DialTimeout:  timeout,
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
	}
	l.client = redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), opts.DialTimeout)
	defer cancel()
	if err := l.client.Ping(ctx).Err(); err != nil {
		_ = l.Close()
		return nil, fmt.Errorf("Redis 连接失败: %w", err)
	}

	logger.Infof("Redis 连接成功: %s DB=%d", addr, config.RedisDB)
	return l, nil
}

func (l *RedisLock) Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, error) {
	if l.client == nil {
		return nil, fmt.Errorf("Redis 客户端未连接")
	}
	full := l.prefix + key
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, full, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("获取运行锁失败：%w", err)
	}
	if !ok {
		return nil, ErrLocked
	}
	lease := &redisLease{client: l.client, key: full, token: token}
	lease.stop = keepAlive(full, ttl, func(ctx context.Context) (bool, error) {
		n, err := renewScript.Run(ctx, lease.client, []string{full}, token, ttl.Milliseconds()).Int()
		if err != nil && err != redis.Nil {
			return false, err
		}
		return n == 1, nil
	})
	return lease, nil
}

// Close closes the client and the SSH tunnel behind it.
func (l *RedisLock) Close() error {
	var err error
	if l.client != nil {
		err = multierr.Append(err, l.client.Close())
		l.client = nil
	}
	if l.forwarder != nil {
		err = multierr.Append(err, l.forwarder.Close())
		l.forwarder = nil
	}
	return err
}

type redisLease struct {
	client *redis.Client
	key    string
	token  string
	stop   func()
}

func (l *redisLease) Key() string { return l.key }

func (l *redisLease) Release(ctx context.Context) error {
	l.stop()
	n, err := releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Int()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("释放运行锁失败：%w", err)
	}
	if n == 0 {
		logger.Warnf("运行锁 %s 已过期或被其他进程持有，跳过释放", l.key)
	}
	return nil
}
