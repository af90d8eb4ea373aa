package db

import (
	"fmt"
	"net"
	"strconv"

	"TableSync/internal/connection"
	"TableSync/internal/logger"
	"TableSync/internal/ssh"
)

// forwardThroughSSH rewrites config to point at a local SSH port forward when
// UseSSH is set. Drivers that cannot take a custom dialer connect this way.
func forwardThroughSSH(config connection.ConnectionConfig, label string) (connection.ConnectionConfig, *ssh.LocalForwarder, error) {
	if !config.UseSSH {
		return config, nil, nil
	}

	logger.Infof("%s 使用 SSH 连接：地址=%s:%d 用户=%s", label, config.Host, config.Port, config.User)

	forwarder, err := ssh.GetOrCreateLocalForwarder(config.SSH, config.Host, config.Port)
	if err != nil {
		return config, nil, fmt.Errorf("创建 SSH 隧道失败：%w", err)
	}

	host, portStr, err := net.SplitHostPort(forwarder.LocalAddr)
	if err != nil {
		return config, nil, fmt.Errorf("解析本地转发地址失败：%w", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return config, nil, fmt.Errorf("解析本地端口失败：%w", err)
	}

	localConfig := config
	localConfig.Host = host
	localConfig.Port = port
	localConfig.UseSSH = false

	logger.Infof("%s 通过本地端口转发连接：%s -> %s:%d", label, forwarder.LocalAddr, config.Host, config.Port)
	return localConfig, forwarder, nil
}
