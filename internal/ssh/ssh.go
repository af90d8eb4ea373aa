package ssh

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"sync"
	"time"

	"TableSync/internal/connection"
	"TableSync/internal/logger"

	"github.com/go-sql-driver/mysql"
	"go.uber.org/multierr"
	"golang.org/x/crypto/ssh"
)

// connectSSH establishes an SSH connection
func connectSSH(config connection.SSHConfig) (*ssh.Client, error) {
	authMethods := []ssh.AuthMethod{}

	if config.KeyPath != "" {
		key, err := os.ReadFile(config.KeyPath)
		if err != nil {
			logger.Warnf("读取 SSH 私钥失败：路径=%s 原因=%v", config.KeyPath, err)
		} else {
			signer, err := ssh.ParsePrivateKey(key)
			if err != nil {
				logger.Warnf("解析 SSH 私钥失败：路径=%s 原因=%v", config.KeyPath, err)
			} else {
				authMethods = append(authMethods, ssh.PublicKeys(signer))
			}
		}
	}

	if config.Password != "" {
		authMethods = append(authMethods, ssh.Password(config.Password))
	}
	if len(authMethods) == 0 {
		return nil, fmt.Errorf("SSH 未配置可用的认证方式（私钥或密码）")
	}

	port := config.Port
	if port <= 0 {
		port = 22
	}

	sshConfig := &ssh.ClientConfig{
		User:            config.User,
		Auth:            authMethods,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         10 * time.Second,
	}

	addr := net.JoinHostPort(config.Host, strconv.Itoa(port))
	return ssh.Dial("tcp", addr, sshConfig)
}

// RegisterSSHNetwork registers a unique network name for a specific SSH tunnel.
// Returns the network name to use in a MySQL DSN.
func RegisterSSHNetwork(sshConfig connection.SSHConfig) (string, error) {
	client, err := connectSSH(sshConfig)
	if err != nil {
		return "", err
	}

	netName := fmt.Sprintf("ssh_%s_%d", sshConfig.Host, time.Now().UnixNano())

	mysql.RegisterDialContext(netName, func(ctx context.Context, addr string) (net.Conn, error) {
		return client.Dial("tcp", addr)
	})

	return netName, nil
}

// LocalForwarder listens on a loopback port and forwards every accepted
// connection to RemoteAddr through an SSH client.
type LocalForwarder struct {
	LocalAddr  string
	RemoteAddr string

	key      string
	client   *ssh.Client
	listener net.Listener
	closed   chan struct{}
	once     sync.Once
}

var (
	forwardersMu sync.Mutex
	forwarders   = map[string]*LocalForwarder{}
)

func forwarderKey(cfg connection.SSHConfig, remoteHost string, remotePort int) string {
	return fmt.Sprintf("%s@%s:%d->%s:%d", cfg.User, cfg.Host, cfg.Port, remoteHost, remotePort)
}

// GetOrCreateLocalForwarder returns a running forwarder for the given SSH host and
// remote address, creating it on first use.
func GetOrCreateLocalForwarder(cfg connection.SSHConfig, remoteHost string, remotePort int) (*LocalForwarder, error) {
	key := forwarderKey(cfg, remoteHost, remotePort)

	forwardersMu.Lock()
	defer forwardersMu.Unlock()

	if f, ok := forwarders[key]; ok {
		select {
		case <-f.closed:
			delete(forwarders, key)
		default:
			return f, nil
		}
	}

	client, err := connectSSH(cfg)
	if err != nil {
		return nil, fmt.Errorf("建立 SSH 连接失败：%w", err)
	}

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("监听本地转发端口失败：%w", err)
	}

	f := &LocalForwarder{
		LocalAddr:  listener.Addr().String(),
		RemoteAddr: net.JoinHostPort(remoteHost, strconv.Itoa(remotePort)),
		key:        key,
		client:     client,
		listener:   listener,
		closed:     make(chan struct{}),
	}
	go f.serve()
	forwarders[key] = f
	logger.Infof("SSH 本地端口转发已建立：%s -> %s（经由 %s）", f.LocalAddr, f.RemoteAddr, cfg.Host)
	return f, nil
}

func (f *LocalForwarder) serve() {
	for {
		local, err := f.listener.Accept()
		if err != nil {
			select {
			case <-f.closed:
			default:
				logger.Warnf("SSH 本地转发停止接受连接：%v", err)
			}
			return
		}
		go f.forward(local)
	}
}

func (f *LocalForwarder) forward(local net.Conn) {
	remote, err := f.client.Dial("tcp", f.RemoteAddr)
	if err != nil {
		logger.Warnf("SSH 转发连接远端失败：%s，原因：%v", f.RemoteAddr, err)
		_ = local.Close()
		return
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, _ = io.Copy(remote, local)
		_ = remote.Close()
	}()
	go func() {
		defer wg.Done()
		_, _ = io.Copy(local, remote)
		_ = local.Close()
	}()
	wg.Wait()
}

// Close stops the listener and the SSH client.
func (f *LocalForwarder) Close() error {
	var err error
	f.once.Do(func() {
		close(f.closed)
		err = multierr.Combine(f.listener.Close(), f.client.Close())

		forwardersMu.Lock()
		if cur, ok := forwarders[f.key]; ok && cur == f {
			delete(forwarders, f.key)
		}
		forwardersMu.Unlock()
	})
	return err
}

// CloseAllForwarders closes every forwarder created by this process.
func CloseAllForwarders() error {
	forwardersMu.Lock()
	list := make([]*LocalForwarder, 0, len(forwarders))
	for _, f := range forwarders {
		list = append(list, f)
	}
	forwardersMu.Unlock()

	var err error
	for _, f := range list {
		err = multierr.Append(err, f.Close())
	}
	return err
}
